package app

import (
	"context"
	"fmt"
	"time"

	"github.com/joho/godotenv"

	"net/http"

	"gptchat/internal/retention"
	"gptchat/pkg/api/handlers"
	"gptchat/pkg/chat"
	"gptchat/pkg/config"
	"gptchat/pkg/progressor"
	"gptchat/pkg/relay"
	"gptchat/pkg/sensor"
	"gptchat/pkg/state"
	"gptchat/pkg/store"
	"gptchat/pkg/subscribe"
	"gptchat/pkg/telemetry"
	"gptchat/pkg/validation"
)

// App encapsulates the server components and lifecycle.
type App struct {
	eff       config.EffectiveConfigResult
	version   string
	commit    string
	buildDate string

	broker   *subscribe.Broker
	relay    *relay.Relay
	composer *chat.Composer
	monitor  *sensor.Monitor

	srv *http.Server
}

// New initializes resources that do not require a running context (DB,
// validation rules, runtime secrets, the relay and the broker). It does
// not start the HTTP listeners; call Run to start those and block until
// shutdown.
func New(eff config.EffectiveConfigResult, version, commit, buildDate string) (*App, error) {
	_ = godotenv.Load(".env")

	// validate effective config early and fail fast
	if err := validateConfig(eff); err != nil {
		return nil, err
	}

	// runtime secrets
	runtimeCfg := &config.RuntimeConfig{BackendKeys: map[string]struct{}{}, SessionSecrets: map[string]struct{}{}}
	for _, k := range eff.Config.Security.APIKeys.Backend {
		runtimeCfg.BackendKeys[k] = struct{}{}
	}
	for _, s := range eff.Config.Auth.SessionSecrets {
		runtimeCfg.SessionSecrets[s] = struct{}{}
	}
	if len(eff.Config.Auth.SessionSecrets) > 0 {
		runtimeCfg.SigningSecret = eff.Config.Auth.SessionSecrets[0]
	}
	config.SetRuntime(runtimeCfg)

	// validation rules
	validation.SetRules(validation.Rules{
		MaxPromptLen: eff.Config.Limits.MaxPromptLen,
		MaxTitleLen:  eff.Config.Limits.MaxTitleLen,
	})

	// runtime folder layout, then the store
	if err := state.EnsureStateDirs(eff.DBPath); err != nil {
		return nil, fmt.Errorf("failed to prepare state dirs under %s: %w", eff.DBPath, err)
	}
	if err := store.Open(state.PathsVar.Store); err != nil {
		return nil, fmt.Errorf("failed to open pebble at %s: %w", state.PathsVar.Store, err)
	}
	telemetry.SetStateDir(state.PathsVar.Telemetry)

	// upgrade stored records when the binary version changed
	if _, err := progressor.Run(context.Background(), version); err != nil {
		return nil, fmt.Errorf("version migration failed: %w", err)
	}

	// live subscriptions observe every store mutation
	broker := subscribe.NewBroker()
	store.SetNotifier(broker)

	rl := relay.New(eff.Config.OpenAI)
	composer := chat.NewComposer(rl)

	sessionTTL := eff.Config.Auth.SessionTTL.Duration()
	handlers.Configure(handlers.Deps{
		Composer:      composer,
		Relay:         rl,
		Broker:        broker,
		SessionTTL:    sessionTTL,
		SecureCookies: eff.Config.Auth.SecureCookies,
		MaxBodyBytes:  eff.Config.Limits.MaxRequestBody.Int64(),
	})

	a := &App{
		eff:       eff,
		version:   version,
		commit:    commit,
		buildDate: buildDate,
		broker:    broker,
		relay:     rl,
		composer:  composer,
	}
	return a, nil
}

// Run starts the HTTP listeners and blocks until ctx is canceled or a
// fatal server error occurs.
func (a *App) Run(ctx context.Context) error {
	a.printBanner()

	stopSweep, err := retention.Start(ctx, a.eff)
	if err != nil {
		return err
	}
	defer stopSweep()

	mcfg := sensor.DefaultMonitorConfig()
	mcfg.Budget = a.eff.Config.Limits.MaxStoreBytes.Int64()
	a.monitor = sensor.StartMonitor(ctx, mcfg)
	defer a.monitor.Stop()

	a.startHealthListener()
	errCh := a.startHTTP(ctx)

	select {
	case <-ctx.Done():
		return a.shutdown()
	case err := <-errCh:
		return err
	}
}

// shutdown drains the HTTP server and closes the store.
func (a *App) shutdown() error {
	if a.srv != nil {
		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = a.srv.Shutdown(sctx)
	}
	return store.Close()
}
