package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// RunConfig controls the background worker loop.
type RunConfig struct {
	Workers int
	// Interval is the pause between cycles on one worker. After a cycle that
	// found nothing to do it doubles on each consecutive idle cycle, up to
	// MaxInterval.
	Interval    time.Duration
	MaxInterval time.Duration
	// OnCycle, if set, observes every finished cycle.
	OnCycle func(Cycle)
}

// Run processes cycles on cfg.Workers goroutines until ctx is cancelled.
// Concurrent cycles are safe; the incident store serializes consolidation.
func (o *Orchestrator) Run(ctx context.Context, cfg RunConfig) error {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	if cfg.MaxInterval < cfg.Interval {
		cfg.MaxInterval = cfg.Interval
	}

	o.logger.Info("pipeline started", "workers", cfg.Workers, "interval", cfg.Interval)
	if o.metrics != nil {
		o.metrics.PipelineRunning.Set(1)
		defer o.metrics.PipelineRunning.Set(0)
	}

	var wg sync.WaitGroup
	for range cfg.Workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			o.work(ctx, cfg)
		}()
	}
	wg.Wait()
	o.logger.Info("pipeline stopping", "reason", ctx.Err())
	return nil
}

func (o *Orchestrator) work(ctx context.Context, cfg RunConfig) {
	backoff := cfg.Interval
	for ctx.Err() == nil {
		cycle := o.ProcessNext(ctx)
		if cfg.OnCycle != nil {
			cfg.OnCycle(cycle)
		}
		pause := cfg.Interval
		if cycle.Status == StatusWaiting {
			pause = backoff
			backoff = nextBackoff(backoff, cfg.MaxInterval)
		} else {
			backoff = cfg.Interval
		}
		if !sleepWithContext(ctx, o.cfg.Clock, pause) {
			return
		}
	}
}

func nextBackoff(current, maxBackoff time.Duration) time.Duration {
	next := current * 2
	if next > maxBackoff {
		return maxBackoff
	}
	return next
}

func sleepWithContext(ctx context.Context, clock clockwork.Clock, d time.Duration) bool {
	if d <= 0 {
		return true
	}

	timer := clock.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.Chan():
		return true
	}
}
