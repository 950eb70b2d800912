// Package workers runs the background jobs of the engine on an asynq
// server backed by Redis. In single-instance deployments without Redis the
// caller falls back to an in-process ticker instead.
package workers

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/greenfelt/club-engine/services"
)

const TypeTimeoutSweep = "table:sweep_timeouts"

// SweepWorker owns the asynq server and scheduler for the periodic timeout
// sweep.
type SweepWorker struct {
	redisOpt  asynq.RedisClientOpt
	sweep     services.SweepService
	interval  string
	logger    *slog.Logger
	server    *asynq.Server
	scheduler *asynq.Scheduler
}

func NewSweepWorker(redisAddr string, sweep services.SweepService, intervalSeconds int, logger *slog.Logger) *SweepWorker {
	return &SweepWorker{
		redisOpt: asynq.RedisClientOpt{Addr: redisAddr},
		sweep:    sweep,
		interval: fmt.Sprintf("@every %ds", intervalSeconds),
		logger:   logger,
	}
}

// Run starts the server and the periodic schedule. It blocks until Shutdown
// is called.
func (w *SweepWorker) Run() error {
	w.server = asynq.NewServer(w.redisOpt, asynq.Config{
		// Sweeps must not pile up; one at a time is the point.
		Concurrency: 1,
	})

	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeTimeoutSweep, w.handleSweep)

	w.scheduler = asynq.NewScheduler(w.redisOpt, nil)
	if _, err := w.scheduler.Register(w.interval, asynq.NewTask(TypeTimeoutSweep, nil)); err != nil {
		return fmt.Errorf("register sweep schedule: %w", err)
	}

	go func() {
		if err := w.scheduler.Run(); err != nil {
			w.logger.Error("sweep scheduler stopped", slog.Any("error", err))
		}
	}()

	w.logger.Info("sweep worker started", slog.String("schedule", w.interval))
	return w.server.Run(mux)
}

func (w *SweepWorker) Shutdown() {
	if w.scheduler != nil {
		w.scheduler.Shutdown()
	}
	if w.server != nil {
		w.server.Shutdown()
	}
}

func (w *SweepWorker) handleSweep(ctx context.Context, t *asynq.Task) error {
	_, err := w.sweep.SweepTimeouts(ctx)
	return err
}
