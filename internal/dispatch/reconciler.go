package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"marketplace-messaging/internal/ingest"
	"marketplace-messaging/internal/interaction"
	"marketplace-messaging/internal/messaging"
)

// Reconciler backfills delivery state for sent interactions whose callback
// never arrived (webhooks are at-least-once, not guaranteed). It polls the
// provider for the current status and feeds it through the same ingestor the
// callbacks use, so idempotency and anomaly handling stay in one place.
type Reconciler struct {
	store     interaction.Store
	messenger messaging.Messenger
	ingestor  *ingest.DeliveryIngestor
	interval  time.Duration
	lookback  time.Duration
	log       *slog.Logger
	clock     func() time.Time
}

func NewReconciler(store interaction.Store, messenger messaging.Messenger, ingestor *ingest.DeliveryIngestor, interval, lookback time.Duration, log *slog.Logger) *Reconciler {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if lookback <= 0 {
		lookback = 24 * time.Hour
	}
	if log == nil {
		log = slog.Default()
	}
	return &Reconciler{
		store:     store,
		messenger: messenger,
		ingestor:  ingestor,
		interval:  interval,
		lookback:  lookback,
		log:       log,
		clock:     time.Now,
	}
}

// Run executes reconcile passes on the configured interval until ctx is
// cancelled.
func (r *Reconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.log.Info("status reconciler started", "interval", r.interval.String())
	for {
		select {
		case <-ctx.Done():
			r.log.Info("status reconciler stopped")
			return
		case <-ticker.C:
			if _, err := r.RunOnce(ctx); err != nil {
				r.log.Error("reconcile pass failed", "error", err)
			}
		}
	}
}

// RunOnce checks every recently sent, not yet delivered interaction against
// the provider and returns how many it examined.
func (r *Reconciler) RunOnce(ctx context.Context) (int, error) {
	cutoff := r.clock().UTC().Add(-r.lookback)
	pending, err := r.store.FindSentNotDelivered(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("reconcile: load sent: %w", err)
	}

	for _, it := range pending {
		res, err := r.messenger.GetStatus(ctx, it.ExternalMessageID)
		if err != nil {
			r.log.Warn("status fetch failed",
				"interaction_id", it.ID, "external_id", it.ExternalMessageID, "error", err)
			continue
		}
		if res.Status == "" || res.Status == it.ExternalStatus {
			continue
		}
		if err := r.ingestor.Apply(ctx, it.ExternalMessageID, res.Status); err != nil {
			r.log.Warn("status apply failed",
				"interaction_id", it.ID, "external_id", it.ExternalMessageID, "error", err)
		}
	}
	return len(pending), nil
}
