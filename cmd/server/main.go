package main // Entry point package

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/iliyamo/library-auth/internal/app"
	"github.com/iliyamo/library-auth/internal/config"
	"github.com/iliyamo/library-auth/internal/logger"
)

func main() {
	cfg := config.MustLoad()
	log := logger.New(cfg.Env, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("startup failed")
	}

	err = a.Run(ctx)
	a.Close()
	if err != nil {
		log.Error().Err(err).Msg("server stopped")
		os.Exit(1)
	}
	log.Info().Msg("shutdown complete")
}
