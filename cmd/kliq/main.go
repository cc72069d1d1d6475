package main

import (
	"context"
	"os"
	"runtime"
	"time"

	"github.com/joho/godotenv"

	"github.com/yz174/kliq/internal/app"
	"github.com/yz174/kliq/pkg/config"
	"github.com/yz174/kliq/pkg/config/banner"
	"github.com/yz174/kliq/pkg/logger"
)

// set by -ldflags at build time
var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	// load .env file if present
	_ = godotenv.Load(".env")

	flags, err := config.ParseConfigFlags(os.Args[1:])
	if err != nil {
		app.Abort("invalid flags", err)
	}

	fileCfg, fileExists, err := config.ParseConfigFile(flags)
	if err != nil {
		app.Abort("failed to load config file", err)
	}

	envCfg, _ := config.ParseConfigEnvs()

	eff, err := config.LoadEffectiveConfig(flags, fileCfg, fileExists, envCfg)
	if err != nil {
		app.Abort("failed to build effective config", err)
	}
	if err := config.ValidateConfig(eff); err != nil {
		app.Abort("invalid configuration", err)
	}

	// initialize logger after config is fully loaded
	logger.Init(eff.Config.Logging.Level)
	defer logger.Sync()
	logger.Info("effective_config_loaded", "source", eff.Source, "addr", eff.Addr, "db_path", eff.DBPath)
	logger.Info("system_logical_cores", "logical_cores", runtime.NumCPU())

	verStr := version
	if commit != "none" {
		verStr += " (" + commit + ")"
	}
	if buildDate != "unknown" {
		verStr += " @ " + buildDate
	}
	banner.Print(os.Stdout, eff, verStr)

	a, err := app.New(eff, version, app.Options{})
	if err != nil {
		app.Abort("failed to initialize app", err)
	}

	ctx, cancel := app.SetupSignalHandler(context.Background())
	defer cancel()

	runErr := a.Run(ctx)

	// bounded so teardown cannot hang forever
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer shutdownCancel()
	_ = a.Shutdown(shutdownCtx)

	if runErr != nil {
		app.Abort("app run failed", runErr)
	}
}
