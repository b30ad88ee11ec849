package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"marketplace-messaging/internal/audit"
	"marketplace-messaging/internal/contacts"
	"marketplace-messaging/internal/ingest"
	"marketplace-messaging/internal/interaction"
	"marketplace-messaging/internal/messaging"
)

// Guard bounds how many dispatch cycles run concurrently across instances.
// utils.RedisCycleGuard satisfies this; single-instance runs pass nil.
type Guard interface {
	Acquire(ctx context.Context) (release func(), ok bool, err error)
}

// Config holds the tunables for the dispatch loop.
type Config struct {
	Interval         time.Duration
	SendTimeout      time.Duration
	MaxAttempts      int
	BatchConcurrency int
	Backoff          Backoff
}

func (c Config) withDefaults() Config {
	if c.Interval <= 0 {
		c.Interval = time.Minute
	}
	if c.SendTimeout <= 0 {
		c.SendTimeout = 10 * time.Second
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 5
	}
	if c.BatchConcurrency <= 0 {
		c.BatchConcurrency = 4
	}
	if c.Backoff.Base <= 0 {
		c.Backoff.Base = time.Minute
	}
	if c.Backoff.Max <= 0 {
		c.Backoff.Max = 30 * time.Minute
	}
	return c
}

// Worker sends due pending interactions and retry-eligible failed ones. Each
// interaction is processed independently: one item's failure never aborts the
// batch, and per-item writes are serialized by the lock plus the store's
// version check.
type Worker struct {
	cfg       Config
	store     interaction.Store
	messenger messaging.Messenger
	resolver  contacts.Resolver
	locks     ingest.Locker
	guard     Guard
	anomalies *audit.Service
	log       *slog.Logger
	clock     func() time.Time
}

func NewWorker(cfg Config, store interaction.Store, messenger messaging.Messenger, resolver contacts.Resolver, locks ingest.Locker, guard Guard, anomalies *audit.Service, log *slog.Logger) *Worker {
	if locks == nil {
		locks = ingest.NoopLocker{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &Worker{
		cfg:       cfg.withDefaults(),
		store:     store,
		messenger: messenger,
		resolver:  resolver,
		locks:     locks,
		guard:     guard,
		anomalies: anomalies,
		log:       log,
		clock:     time.Now,
	}
}

// Run executes cycles on the configured interval until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()

	w.log.Info("dispatch worker started", "interval", w.cfg.Interval.String())
	for {
		select {
		case <-ctx.Done():
			w.log.Info("dispatch worker stopped")
			return
		case <-ticker.C:
			if _, err := w.RunOnce(ctx); err != nil {
				w.log.Error("dispatch cycle failed", "error", err)
			}
		}
	}
}

// RunOnce executes a single dispatch cycle and returns how many interactions
// it attempted to send.
func (w *Worker) RunOnce(ctx context.Context) (int, error) {
	if w.guard != nil {
		release, ok, err := w.guard.Acquire(ctx)
		if err != nil {
			return 0, fmt.Errorf("dispatch: acquire cycle slot: %w", err)
		}
		if !ok {
			w.log.Debug("dispatch cycle skipped, concurrency cap reached")
			return 0, nil
		}
		defer release()
	}

	now := w.clock().UTC()

	due, err := w.store.FindPendingDueBy(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("dispatch: load pending: %w", err)
	}
	retry, err := w.store.FindFailedRetryableBy(ctx, now, w.cfg.MaxAttempts)
	if err != nil {
		return 0, fmt.Errorf("dispatch: load retryable: %w", err)
	}
	batch := append(due, retry...)
	if len(batch) == 0 {
		return 0, nil
	}

	sem := make(chan struct{}, w.cfg.BatchConcurrency)
	var wg sync.WaitGroup
	for _, it := range batch {
		wg.Add(1)
		sem <- struct{}{}
		go func(id string) {
			defer wg.Done()
			defer func() { <-sem }()
			if err := w.process(ctx, id); err != nil {
				w.log.Error("dispatch item failed", "interaction_id", id, "error", err)
			}
		}(it.ID)
	}
	wg.Wait()
	return len(batch), nil
}

// process handles one interaction through a full send attempt.
func (w *Worker) process(ctx context.Context, id string) error {
	release, locked, err := w.locks.Acquire(ctx, ingest.LockKey(id))
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !locked {
		w.log.Debug("interaction locked elsewhere, skipped", "interaction_id", id)
		return nil
	}
	defer release()

	it, err := w.store.FindByID(ctx, id)
	if err != nil {
		return fmt.Errorf("reload: %w", err)
	}
	now := w.clock().UTC()

	// A retry-eligible failure re-enters pending for a fresh cycle.
	if it.Status == interaction.StatusFailed {
		if !it.RetryEligible(w.cfg.MaxAttempts) {
			return nil
		}
		if err := it.ResetForRetry(now); err != nil {
			w.anomalies.TransitionConflict(ctx, it.ID, "reset for retry rejected: "+err.Error())
			return nil
		}
	}
	if it.Status != interaction.StatusPending || it.ScheduledFor.After(now) {
		// Raced with a callback or another worker since the batch was loaded.
		return nil
	}

	contact, found, err := w.resolver.Resolve(ctx, it.SubjectID, it.Direction)
	if err != nil {
		return fmt.Errorf("resolve contact: %w", err)
	}
	if !found {
		// No verified contact is terminal; retrying cannot fix it.
		if err := it.MarkFailed("no verified contact for subject", now); err != nil {
			w.anomalies.TransitionConflict(ctx, it.ID, "mark failed rejected: "+err.Error())
			return nil
		}
		w.anomalies.ContactMissing(ctx, it.ID, it.SubjectID)
		return w.save(ctx, it)
	}

	sendCtx, cancel := context.WithTimeout(ctx, w.cfg.SendTimeout)
	res, sendErr := w.messenger.Send(sendCtx, contact, it.MessageContent)
	cancel()

	if sendErr != nil {
		return w.recordFailure(ctx, it, sendErr)
	}

	if err := it.MarkSent(res.ExternalMessageID, contact, w.clock().UTC()); err != nil {
		w.anomalies.TransitionConflict(ctx, it.ID, "mark sent rejected: "+err.Error())
		return nil
	}
	w.log.Info("interaction sent",
		"interaction_id", it.ID, "subject_id", it.SubjectID,
		"external_id", res.ExternalMessageID, "attempts", it.Metadata.Retry.Attempts)
	return w.save(ctx, it)
}

// recordFailure classifies a send error and books either a scheduled retry or
// a permanent failure.
func (w *Worker) recordFailure(ctx context.Context, it interaction.Interaction, sendErr error) error {
	now := w.clock().UTC()
	attempts := it.Metadata.Retry.Attempts + 1
	retryable := messaging.IsRetryable(sendErr)

	var next *time.Time
	if retryable && attempts < w.cfg.MaxAttempts {
		at := now.Add(w.cfg.Backoff.Delay(attempts))
		next = &at
	}

	if err := it.RecordSendFailure(sendErr.Error(), next, now); err != nil {
		w.anomalies.TransitionConflict(ctx, it.ID, "record send failure rejected: "+err.Error())
		return nil
	}

	if next != nil {
		w.log.Warn("send failed, retry scheduled",
			"interaction_id", it.ID, "attempts", attempts,
			"next_attempt_at", next.Format(time.RFC3339), "error", sendErr.Error())
	} else {
		w.log.Warn("send failed permanently",
			"interaction_id", it.ID, "attempts", attempts,
			"retryable", retryable, "error", sendErr.Error())
	}
	return w.save(ctx, it)
}

// save persists the mutated interaction; a version conflict means a callback
// won the race and is an anomaly, not a cycle failure.
func (w *Worker) save(ctx context.Context, it interaction.Interaction) error {
	if _, err := w.store.Save(ctx, it); err != nil {
		if errors.Is(err, interaction.ErrVersionConflict) {
			w.anomalies.TransitionConflict(ctx, it.ID, "dispatch write lost the race")
			return nil
		}
		return fmt.Errorf("save: %w", err)
	}
	return nil
}
