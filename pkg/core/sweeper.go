package core

import (
	"context"
	"errors"
	"time"

	"github.com/robfig/cron/v3"
)

// sweepTimeout bounds one scheduled sweep.
const sweepTimeout = 5 * time.Minute

// StartSweeper runs Sweep on a cron schedule such as "@every 1h" or
// "0 3 * * *". Only one sweeper runs per engine.
func (e *Engine) StartSweeper(spec string) error {
	const op = "StartSweeper"

	e.sweepMu.Lock()
	defer e.sweepMu.Unlock()
	if e.cron != nil {
		return NewMemoryError(op, ErrInvalidConfig, errors.New("sweeper already running"))
	}

	c := cron.New()
	if _, err := c.AddFunc(spec, e.runSweep); err != nil {
		return NewMemoryError(op, ErrInvalidConfig, err)
	}
	c.Start()
	e.cron = c
	e.logger.Info("sweeper started", "spec", spec)
	return nil
}

// StopSweeper stops the scheduled sweep and waits for a running one.
func (e *Engine) StopSweeper() {
	e.sweepMu.Lock()
	defer e.sweepMu.Unlock()
	if e.cron == nil {
		return
	}
	<-e.cron.Stop().Done()
	e.cron = nil
}

func (e *Engine) runSweep() {
	ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
	defer cancel()
	if _, err := e.Sweep(ctx); err != nil {
		e.logger.Error("sweep failed", "error", err)
	}
}
