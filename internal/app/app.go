// Package app wires configuration into running components and owns the
// process lifecycle. Each mode composes a different subset of the
// dependency graph: scan is detection only, execute adds the engine,
// monitor is read-only, full runs everything.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/predarb/internal/config"
)

// App is the top-level application object. It holds no domain state of
// its own; everything lives in the wired dependencies.
type App struct {
	cfg    config.Config
	logger *slog.Logger
}

// New creates an App from a validated configuration.
func New(cfg config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
	}
}

// Run wires the dependency graph for the configured mode and blocks until
// the context is cancelled or a component fails. Cleanup runs before
// return regardless of how the mode exits.
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting",
		slog.String("mode", a.cfg.Mode),
	)

	deps, cleanup, err := Wire(ctx, &a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire: %w", err)
	}
	defer cleanup()

	switch a.cfg.Mode {
	case "scan":
		err = a.ScanMode(ctx, deps)
	case "execute":
		err = a.ExecuteMode(ctx, deps)
	case "monitor":
		err = a.MonitorMode(ctx, deps)
	case "full":
		err = a.FullMode(ctx, deps)
	default:
		return fmt.Errorf("app: unknown mode %q", a.cfg.Mode)
	}

	if err != nil && ctx.Err() == nil {
		return fmt.Errorf("app: %s mode: %w", a.cfg.Mode, err)
	}
	a.logger.Info("stopped")
	return nil
}
