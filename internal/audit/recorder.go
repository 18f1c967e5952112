package audit

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Executor is the subset of pgx executors the recorder writes through.
// Both *pgxpool.Pool and pgx.Tx satisfy it, so a lifecycle mutation can put
// its audit row inside the same transaction.
type Executor interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Recorder appends entries to audit_logs. A failed write is returned to the
// caller so the surrounding mutation aborts with it: audit logging is part
// of the write contract, not best-effort telemetry.
type Recorder struct {
	pool *pgxpool.Pool
}

// NewRecorder returns a Recorder writing through the given pool.
func NewRecorder(pool *pgxpool.Pool) *Recorder {
	return &Recorder{pool: pool}
}

// Record appends an entry outside any caller-managed transaction.
func (r *Recorder) Record(ctx context.Context, entry Entry) error {
	if r == nil || r.pool == nil {
		return errors.New("audit: recorder not initialised")
	}
	return r.RecordIn(ctx, r.pool, entry)
}

// RecordIn appends an entry through the provided executor, typically an
// open transaction that also carries the state mutation being described.
func (r *Recorder) RecordIn(ctx context.Context, exec Executor, entry Entry) error {
	if exec == nil {
		return errors.New("audit: executor required")
	}
	if entry.Action == "" {
		return errors.New("audit: entry requires an action")
	}
	var meta []byte
	if entry.Meta != nil {
		var err error
		meta, err = json.Marshal(entry.Meta)
		if err != nil {
			return errors.New("audit: entry meta is not serialisable")
		}
	}
	at := entry.CreatedAt
	if at.IsZero() {
		at = time.Now().UTC()
	}
	_, err := exec.Exec(ctx, `
		INSERT INTO audit_logs (actor_user_id, target_user_id, action, resource, resource_id, meta, ip_address, user_agent, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		entry.ActorUserID,
		entry.TargetUserID,
		string(entry.Action),
		nullable(entry.Resource),
		nullable(entry.ResourceID),
		meta,
		nullable(entry.IPAddress),
		nullable(entry.UserAgent),
		at,
	)
	return err
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
