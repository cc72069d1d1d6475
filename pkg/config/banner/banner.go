package banner

import (
	"fmt"
	"io"

	"github.com/dustin/go-humanize"

	"github.com/yz174/kliq/pkg/config"
)

const banner = `
██╗  ██╗██╗     ██╗ ██████╗
██║ ██╔╝██║     ██║██╔═══██╗
█████╔╝ ██║     ██║██║   ██║
██╔═██╗ ██║     ██║██║▄▄ ██║
██║  ██╗███████╗██║╚██████╔╝
╚═╝  ╚═╝╚══════╝╚═╝ ╚══▀▀═╝
`

// Print writes the startup banner and a readiness checklist for the
// effective configuration.
func Print(w io.Writer, eff config.EffectiveConfigResult, version string) {
	src := eff.Source
	if src == "" {
		src = "flags"
	}
	fmt.Fprint(w, banner)
	fmt.Fprintln(w, "== Config =====================================================")
	fmt.Fprintf(w, "Listen:   %s\n", eff.Addr)
	fmt.Fprintf(w, "DB Path:  %s\n", eff.DBPath)
	if version != "" {
		fmt.Fprintf(w, "Version:  %s\n", version)
	}
	fmt.Fprintf(w, "Config:   %s\n", src)

	c := eff.Config
	if c == nil {
		return
	}
	fmt.Fprintln(w, "\n== Production? =================================================")
	check := func(label string, n int, missing string) {
		if n > 0 {
			fmt.Fprintf(w, "- %s: OK (%d)\n", label, n)
		} else {
			fmt.Fprintf(w, "- %s: MISSING (%s)\n", label, missing)
		}
	}
	check("Backend API keys", len(c.Security.APIKeys.Backend), "required for backend services")
	check("Frontend API keys", len(c.Security.APIKeys.Frontend), "required for browser clients")
	check("Admin API keys", len(c.Security.APIKeys.Admin), "admin routes unreachable")
	if c.AI.Provider == "none" {
		fmt.Fprintln(w, "- AI provider: DISABLED (commands and search will fail)")
	} else {
		fmt.Fprintf(w, "- AI provider: %s (%s, %s)\n", c.AI.Provider, c.AI.Model, c.AI.EmbeddingModel)
	}
	fmt.Fprintf(w, "- Job workers: %d (queue %s)\n", c.Jobs.Workers, humanize.Comma(int64(c.Jobs.QueueCapacity)))
	fmt.Fprintf(w, "- Max request body: %s\n", c.Server.MaxRequestBody)
	if c.Retention.Enabled {
		fmt.Fprintf(w, "- Retention: ON (%s, keep %s)\n", c.Retention.Cron, c.Retention.Period)
	} else {
		fmt.Fprintln(w, "- Retention: OFF")
	}
	fmt.Fprintln(w)
}
