/*
scheduler.go - Periodic ledger reconciliation

PURPOSE:
  Runs the balance audit on a fixed interval and keeps the last report
  for GET /api/reconciliation. Discrepancies are logged by the reconciler
  itself; the scheduler never corrects balances.

DESIGN:
  - Run blocks until the context is cancelled, so it fits an errgroup
  - The first check happens immediately on start
  - A failed run is logged and retried on the next tick

CONFIGURATION:
  - reconciliation.enabled:  start the scheduler (default: true)
  - reconciliation.interval: time between runs (default: 1h)

USAGE:
  scheduler := NewReconciliationScheduler(engine.Reconciler, time.Hour, log)
  g.Go(func() error { return scheduler.Run(ctx) })

SEE ALSO:
  - generic/reconcile.go: Reconciler
  - handlers.go: Reconciliation endpoint
*/
package api

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/warp/order-engine/generic"
)

// ReconciliationScheduler runs the reconciler periodically.
type ReconciliationScheduler struct {
	Reconciler *generic.Reconciler
	Interval   time.Duration
	Log        logrus.FieldLogger

	mu   sync.Mutex
	last *generic.ReconciliationReport
}

// NewReconciliationScheduler creates a new scheduler.
func NewReconciliationScheduler(r *generic.Reconciler, interval time.Duration, log logrus.FieldLogger) *ReconciliationScheduler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if interval <= 0 {
		interval = time.Hour
	}
	return &ReconciliationScheduler{
		Reconciler: r,
		Interval:   interval,
		Log:        log.WithField("component", "scheduler"),
	}
}

// Run checks immediately and then on every tick until ctx is done.
func (rs *ReconciliationScheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(rs.Interval)
	defer ticker.Stop()

	rs.Log.WithField("interval", rs.Interval).Info("reconciliation scheduler started")
	rs.RunNow(ctx)
	for {
		select {
		case <-ticker.C:
			rs.RunNow(ctx)
		case <-ctx.Done():
			rs.Log.Info("reconciliation scheduler stopped")
			return nil
		}
	}
}

// RunNow performs one reconciliation and stores the report. It returns
// nil when the run failed.
func (rs *ReconciliationScheduler) RunNow(ctx context.Context) *generic.ReconciliationReport {
	report, err := rs.Reconciler.Run(ctx)
	if err != nil {
		if ctx.Err() == nil {
			rs.Log.WithError(err).Error("reconciliation failed")
		}
		return nil
	}

	rs.mu.Lock()
	rs.last = report
	rs.mu.Unlock()

	rs.Log.WithFields(logrus.Fields{
		"balances":      report.Balances,
		"discrepancies": len(report.Discrepancies),
	}).Info("reconciliation finished")
	return report
}

// Last returns the most recent successful report, or nil before the
// first run.
func (rs *ReconciliationScheduler) Last() *generic.ReconciliationReport {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.last
}
