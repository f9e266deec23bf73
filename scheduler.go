package xchpay

import (
	"context"
	"errors"
	"fmt"

	"github.com/robfig/cron/v3"
)

// newScheduler builds the cron scheduler for the configured schedules.
// Jobs never overlap with themselves: a slow poll skips the next tick.
func (e *Engine) newScheduler(ctx context.Context) (*cron.Cron, error) {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))

	if e.config.PollSchedule != "" {
		if _, err := c.AddFunc(e.config.PollSchedule, func() { e.runReconcile(ctx) }); err != nil {
			return nil, fmt.Errorf("xchpay: invalid poll schedule %q: %w", e.config.PollSchedule, err)
		}
	}

	if e.config.LifecycleSchedule != "" {
		if _, err := c.AddFunc(e.config.LifecycleSchedule, func() {
			if err := e.RunLifecycle(ctx); err != nil {
				e.logger.Error("lifecycle sweep failed", "error", err)
			}
		}); err != nil {
			return nil, fmt.Errorf("xchpay: invalid lifecycle schedule %q: %w", e.config.LifecycleSchedule, err)
		}
	}

	return c, nil
}

func (e *Engine) runReconcile(ctx context.Context) {
	res, err := e.ReconcileUnpaid(ctx)
	switch {
	case err != nil:
		e.logger.Error("reconcile unpaid invoices failed", "error", err)
	case res.Failed() > 0:
		e.logger.Warn("reconcile finished with failures",
			"scanned", res.Scanned,
			"failed", res.Failed(),
			"error", res.Errors.First(),
		)
	default:
		e.logger.Debug("reconcile finished", "scanned", res.Scanned)
	}

	resumed, err := e.ResumePendingActivations(ctx)
	switch {
	case err != nil:
		e.logger.Error("resume pending activations failed", "error", err)
	case resumed.Failed() > 0:
		e.logger.Warn("resume pending activations finished with failures",
			"scanned", resumed.Scanned,
			"failed", resumed.Failed(),
			"error", resumed.Errors.First(),
		)
	case resumed.Changed > 0:
		e.logger.Info("resumed pending activations", "count", resumed.Changed)
	}
}

// RunLifecycle runs the expiration, grace period and termination sweeps in
// order. A failing sweep does not stop the following ones. Only listing
// failures are returned; per-subscription failures are logged.
func (e *Engine) RunLifecycle(ctx context.Context) error {
	var errs []error
	sweep := func(name string, run func(context.Context) (*BatchResult, error)) *BatchResult {
		res, err := run(ctx)
		if err != nil {
			errs = append(errs, err)
		}
		if res.Failed() > 0 {
			e.logger.Warn("lifecycle sweep finished with failures",
				"sweep", name,
				"scanned", res.Scanned,
				"failed", res.Failed(),
				"error", res.Errors.First(),
			)
		}
		return res
	}

	expiring := sweep("expiration", e.CheckSubscriptionsForExpiration)
	grace := sweep("grace_period", e.SetSubscriptionsToGracePeriod)
	terminated := sweep("termination", e.TerminateExpiredGracePeriods)

	e.logger.Info("lifecycle sweep finished",
		"expiring", expiring.Scanned,
		"grace_period", grace.Changed,
		"terminated", terminated.Changed,
	)
	return errors.Join(errs...)
}
