package app

import (
	"fmt"
	"os"

	"gptchat/pkg/config"
)

// validateConfig performs quick, fail-fast validation of the effective
// configuration before starting long-running services. Keep checks light
// and focused so callers can surface user-friendly errors.
func validateConfig(eff config.EffectiveConfigResult) error {
	// DB path must be present
	if p := eff.DBPath; p == "" {
		return fmt.Errorf("database path is empty: set --db flag, GPTCHAT_DB_PATH env, or server.db_path in config")
	}

	// sessions are unusable without a signing secret
	if len(eff.Config.Auth.SessionSecrets) == 0 {
		return fmt.Errorf("no session secrets configured: set auth.session_secrets in config or GPTCHAT_SESSION_SECRETS env")
	}

	// TLS cert/key presence check if one is set
	cert := eff.Config.Server.TLS.CertFile
	key := eff.Config.Server.TLS.KeyFile
	if (cert != "" && key == "") || (cert == "" && key != "") {
		return fmt.Errorf("incomplete TLS configuration: both server.tls.cert_file and server.tls.key_file must be set")
	}
	if cert != "" {
		if _, err := os.Stat(cert); err != nil {
			return fmt.Errorf("tls cert file not accessible: %w", err)
		}
		if _, err := os.Stat(key); err != nil {
			return fmt.Errorf("tls key file not accessible: %w", err)
		}
	}

	// health listener engine must be a known value when configured
	if hc := eff.Config.Server.Health; hc.Addr != "" {
		switch hc.Engine {
		case "", "nethttp", "fasthttp":
		default:
			return fmt.Errorf("unknown health engine %q: expected nethttp or fasthttp", hc.Engine)
		}
	}

	return nil
}
