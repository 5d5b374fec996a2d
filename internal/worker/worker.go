// Package worker runs the periodic sweep that drives automatic promotion
// and inactivity delegation.
package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"ideaforge/internal/engine"
)

type Worker struct {
	Engine   engine.Engine
	Log      *zap.Logger
	Interval time.Duration
}

func New(e engine.Engine, log *zap.Logger) *Worker {
	interval := time.Duration(e.Config.Sweep.IntervalMinutes) * time.Minute
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Worker{Engine: e, Log: log, Interval: interval}
}

// Run sweeps immediately, then on every tick until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.Interval)
	defer ticker.Stop()
	for {
		w.sweep(ctx)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (w *Worker) sweep(ctx context.Context) {
	start := time.Now()
	res, err := w.Engine.RunSweep(ctx)
	if err != nil {
		w.Log.Error("sweep failed", zap.Error(err))
		return
	}
	fields := []zap.Field{
		zap.Int("checked", res.Checked),
		zap.Int("promotions", res.Promotions),
		zap.Int("delegations", res.Delegations),
		zap.Duration("elapsed", time.Since(start)),
	}
	if !res.Success {
		fields = append(fields, zap.Strings("errors", res.Errors))
		w.Log.Warn("sweep finished with errors", fields...)
		return
	}
	w.Log.Info("sweep finished", fields...)
}
