package sharing

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/apache/airavata-custos-sub001/pkg/observability"
)

// Reconciler periodically rebuilds the derived shared_count values from the
// ledger and sweeps sharing rows orphaned by entity deletion. shared_count
// is a cache; the reconciler keeps it honest even if a process died between
// a ledger write and a recount.
type Reconciler struct {
	store    *Store
	logger   *observability.Logger
	cron     *cron.Cron
	schedule string
	timeout  time.Duration
	metrics  *observability.Metrics
}

// NewReconciler creates a reconciler running on the given cron schedule
func NewReconciler(store *Store, logger *observability.Logger, schedule string, timeout time.Duration) *Reconciler {
	return &Reconciler{
		store:    store,
		logger:   logger,
		cron:     cron.New(),
		schedule: schedule,
		timeout:  timeout,
	}
}

// SetMetrics enables reconciliation run accounting
func (r *Reconciler) SetMetrics(m *observability.Metrics) {
	r.metrics = m
}

// Start schedules the reconciliation job
func (r *Reconciler) Start() error {
	if _, err := r.cron.AddFunc(r.schedule, r.runOnce); err != nil {
		return err
	}
	r.cron.Start()
	return nil
}

// Stop stops the schedule and waits for a running job to finish
func (r *Reconciler) Stop() {
	ctx := r.cron.Stop()
	<-ctx.Done()
}

func (r *Reconciler) runOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	if err := r.Run(ctx); err != nil {
		r.logger.WithError(err).Error("sharing reconciliation failed")
	}
}

// Run performs one reconciliation pass. Exposed so operators can trigger it
// outside the schedule.
func (r *Reconciler) Run(ctx context.Context) error {
	start := time.Now()

	removed, err := r.store.SweepOrphanedSharings(ctx)
	if err != nil {
		if r.metrics != nil {
			r.metrics.ReconcilerRunsTotal.WithLabelValues("error").Inc()
		}
		return err
	}

	if err := r.store.RebuildSharedCounts(ctx); err != nil {
		if r.metrics != nil {
			r.metrics.ReconcilerRunsTotal.WithLabelValues("error").Inc()
		}
		return err
	}

	if r.metrics != nil {
		r.metrics.ReconcilerRunsTotal.WithLabelValues("success").Inc()
		r.metrics.ReconcilerOrphansSwept.Add(float64(removed))
	}

	r.logger.WithFields(map[string]interface{}{
		"orphaned_rows_removed": removed,
		"duration":              time.Since(start).String(),
	}).Info("sharing reconciliation completed")
	return nil
}
