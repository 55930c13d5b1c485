// Package audit appends outcome records for privileged ledger actions.
package audit

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Outcome classifies the result of a privileged action.
type Outcome string

const (
	OutcomeSuccess Outcome = "SUCCESS"
	OutcomeBlocked Outcome = "BLOCKED"
	OutcomeFailed  Outcome = "FAILED"
)

// Record is one append-only audit event.
type Record struct {
	TenantID       uuid.UUID
	EventType      string
	EntityType     string
	EntityID       string
	Action         string
	Outcome        Outcome
	Reason         string
	UserID         int64
	PermissionUsed string
	At             time.Time
}

// Recorder appends records to a durable sink.
type Recorder interface {
	Record(ctx context.Context, rec Record) error
}

// PGRecorder writes records into audit_events.
type PGRecorder struct {
	pool *pgxpool.Pool
}

// NewPGRecorder returns a new PGRecorder.
func NewPGRecorder(pool *pgxpool.Pool) *PGRecorder {
	return &PGRecorder{pool: pool}
}

// Record persists the event.
func (r *PGRecorder) Record(ctx context.Context, rec Record) error {
	if r == nil || r.pool == nil {
		return errors.New("audit: recorder not initialised")
	}
	if rec.EventType == "" || rec.EntityType == "" || rec.EntityID == "" {
		return errors.New("audit: event requires event_type/entity_type/entity_id")
	}
	at := rec.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	_, err := r.pool.Exec(ctx, `INSERT INTO audit_events
	(tenant_id, event_type, entity_type, entity_id, action, outcome, reason, user_id, permission_used, occurred_at)
	VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		rec.TenantID, rec.EventType, rec.EntityType, rec.EntityID, rec.Action,
		rec.Outcome, rec.Reason, rec.UserID, rec.PermissionUsed, at)
	return err
}

// Sink is what the posting services depend on. Recording is fire-and-forget:
// a sink failure must never convert a legitimate rejection into a different
// error, so Try has no error return.
type Sink interface {
	Try(ctx context.Context, rec Record)
}

// BestEffort wraps a Recorder, logging and discarding its failures.
type BestEffort struct {
	recorder Recorder
	logger   *slog.Logger
}

// NewBestEffort constructs the best-effort sink.
func NewBestEffort(recorder Recorder, logger *slog.Logger) *BestEffort {
	return &BestEffort{recorder: recorder, logger: logger}
}

// Try records the event, swallowing any failure.
func (b *BestEffort) Try(ctx context.Context, rec Record) {
	if b == nil || b.recorder == nil {
		return
	}
	if err := b.recorder.Record(ctx, rec); err != nil {
		if b.logger != nil {
			b.logger.Warn("audit record dropped",
				slog.String("entity", rec.EntityType),
				slog.String("entity_id", rec.EntityID),
				slog.String("action", rec.Action),
				slog.Any("error", err))
		}
	}
}
