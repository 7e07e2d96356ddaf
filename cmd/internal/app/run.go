package app

import (
	"context"
	"os/signal"
	"syscall"
)

// Run is the process entrypoint used by cmd/atelier. It returns an error
// instead of calling os.Exit so deferred cleanup always runs.
func Run() error {
	cfg := LoadConfig()
	log := NewLogger(cfg.LogLevel)

	if err := ValidateSecurityConfig(cfg); err != nil {
		log.Error("config.invalid", "err", err)
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := New(cfg, log)
	if err != nil {
		log.Error("startup.fail", "err", err)
		return err
	}

	return a.Run(ctx)
}
