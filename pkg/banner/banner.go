package banner

import (
	"fmt"

	"gptchat/pkg/config"
)

const banner = `
 ██████╗ ██████╗ ████████╗ ██████╗██╗  ██╗ █████╗ ████████╗
██╔════╝ ██╔══██╗╚══██╔══╝██╔════╝██║  ██║██╔══██╗╚══██╔══╝
██║  ███╗██████╔╝   ██║   ██║     ███████║███████║   ██║
██║   ██║██╔═══╝    ██║   ██║     ██╔══██║██╔══██║   ██║
╚██████╔╝██║        ██║   ╚██████╗██║  ██║██║  ██║   ██║
 ╚═════╝ ╚═╝        ╚═╝    ╚═════╝╚═╝  ╚═╝╚═╝  ╚═╝   ╚═╝
`

// PrintWithEff prints the startup banner using an EffectiveConfigResult
// which provides richer context (config, addr, dbpath, source).
func PrintWithEff(eff config.EffectiveConfigResult, version string) {
	addr := eff.Addr
	if addr == "" && eff.Config != nil {
		addr = eff.Config.Addr()
	}
	dbPath := eff.DBPath
	if dbPath == "" && eff.Config != nil {
		dbPath = eff.Config.Server.DBPath
	}
	src := eff.Source
	if src == "" {
		src = "flags"
	}

	fmt.Print(banner)
	fmt.Println("== Config =====================================================")
	fmt.Printf("Listen:   %s\n", addr)
	fmt.Printf("DB Path:  %s\n", dbPath)
	if version != "" {
		fmt.Printf("Version:  %s\n", version)
	}
	fmt.Printf("Config:   %s\n", src)

	fmt.Println("\n== Endpoints ==================================================")
	fmt.Println("POST /v1/auth/login          - Sign in, receive a session cookie")
	fmt.Println("GET  /v1/threads             - List your chat threads")
	fmt.Println("POST /v1/chat/send           - Send a message, get a completion")
	fmt.Println("GET  /v1/threads/events      - Live thread list (SSE)")
	fmt.Println("GET  /v1/threads/{id}/events - Live message list (SSE)")

	fmt.Println("\n== Production? =================================================")
	if eff.Config != nil {
		if len(eff.Config.Auth.SessionSecrets) > 0 {
			fmt.Printf("- Session secrets: OK (%d)\n", len(eff.Config.Auth.SessionSecrets))
		} else {
			fmt.Println("- Session secrets: MISSING (login will not work)")
		}
		if eff.Config.OpenAI.APIKey != "" {
			fmt.Println("- OpenAI API key: OK")
		} else {
			fmt.Println("- OpenAI API key: MISSING (completions will fail)")
		}
		if be := len(eff.Config.Security.APIKeys.Backend); be > 0 {
			fmt.Printf("- Backend API keys: OK (%d)\n", be)
		} else {
			fmt.Println("- Backend API keys: none (backend surface disabled)")
		}
		if eff.Config.Server.TLS.CertFile != "" && eff.Config.Server.TLS.KeyFile != "" {
			fmt.Println("- TLS: configured")
		} else {
			fmt.Println("- TLS: unconfigured")
		}
		if eff.Config.Server.Health.Addr != "" {
			fmt.Printf("- Health listener: %s (%s)\n", eff.Config.Server.Health.Addr, eff.Config.Server.Health.Engine)
		}
	}

	fmt.Println("\n== Logs: =================================================")
}
