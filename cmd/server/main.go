package main

import (
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"

	"ad-reporting-engine/internal/app/server"
	"ad-reporting-engine/internal/config"
)

func main() {
	flags := pflag.NewFlagSet("reporting-server", pflag.ExitOnError)
	configFile := flags.String("config", "", "path to the YAML config (default configs/application.yaml)")
	flags.String("addr", "", "listen address, overrides server.addr")
	flags.String("log-level", "", "debug, info, warn or error")
	flags.String("log-format", "", "console or json")
	flags.Bool("migrate", false, "apply database migrations on start")
	_ = flags.Parse(os.Args[1:])

	loader := config.NewLoader(*configFile, flags)
	cfg, err := loader.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	config.SetupLogging(cfg.Server.LogLevel, cfg.Server.LogFormat)

	server.Run(cfg, loader)
}
