package events

import (
	"context"
	"database/sql"
	"log/slog"
	"time"
)

// Relay drains pending outbox rows to the publisher. Publishing is
// at-least-once: a crash between publish and MarkSent re-sends the record,
// so consumers deduplicate on event_id.
type Relay struct {
	db       *sql.DB
	pub      Publisher
	log      *slog.Logger
	interval time.Duration
	batch    int
}

func NewRelay(db *sql.DB, pub Publisher, log *slog.Logger, interval time.Duration, batch int) *Relay {
	if batch <= 0 {
		batch = 100
	}
	return &Relay{db: db, pub: pub, log: log, interval: interval, batch: batch}
}

// Run polls until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.Drain(ctx); err != nil {
				r.log.Error("outbox drain failed", "error", err)
			}
		}
	}
}

// Drain publishes one batch of pending records. It stops at the first
// publish failure so ordering within the batch is preserved on retry.
func (r *Relay) Drain(ctx context.Context) error {
	records, err := FetchPending(ctx, r.db, r.batch)
	if err != nil {
		return err
	}

	for _, rec := range records {
		if err := r.pub.Publish(ctx, rec.Topic, rec.Key, rec.Payload); err != nil {
			return err
		}
		if err := MarkSent(ctx, r.db, rec.ID); err != nil {
			return err
		}
		r.log.Debug("outbox record published", "event_id", rec.EventID, "topic", rec.Topic)
	}

	return nil
}
