package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/archonops/supervisor/internal/driver"
	"github.com/archonops/supervisor/internal/observability"
)

// StartCmd runs the control loop in the foreground until a terminal halt,
// goal completion, or an interrupt/SIGTERM signal (spec.md §6 "start",
// mirroring the teacher's serve.go signal-handling pattern).
type StartCmd struct {
	ProjectID string `name:"project-id" help:"Project id used as the sandbox subdirectory for audit/prompt logs."`
}

func (c *StartCmd) Run(e *env) error {
	sink, err := buildAuditSink(e.cfg, c.ProjectID)
	if err != nil {
		return fmt.Errorf("open audit sink: %w", err)
	}

	_, shutdownTracer, err := observability.InitTracer(context.Background(), observability.TracerConfig{
		Enabled:     e.cfg.Observability.TracingEnabled,
		ServiceName: e.cfg.Observability.ServiceName,
	})
	if err != nil {
		return fmt.Errorf("init tracer: %w", err)
	}
	defer func() { _ = shutdownTracer(context.Background()) }()

	metrics := buildMetrics()
	if addr := e.cfg.Observability.MetricsAddr; addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		go func() {
			if serveErr := http.ListenAndServe(addr, mux); serveErr != nil {
				slog.Error("metrics endpoint stopped", "addr", addr, "error", serveErr)
			}
		}()
	}

	catalog, err := loadCatalog(e.cfg)
	if err != nil {
		return err
	}

	d := driver.New(
		e.store,
		e.queue,
		buildDispatcher(e.cfg),
		buildSessionManager(e.cfg),
		buildRetryPolicy(e.cfg),
		sink,
		metrics,
		catalog,
		e.cfg,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	slog.Info("supervisor starting", "project_id", c.ProjectID, "poll_interval", e.cfg.PollInterval)

	if err := d.Run(ctx); err != nil {
		if ctx.Err() != nil {
			slog.Info("supervisor stopped", "reason", "signal")
			return nil
		}
		return fmt.Errorf("control loop: %w", err)
	}

	slog.Info("supervisor stopped", "reason", "terminal state reached")
	return nil
}
