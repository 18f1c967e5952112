package sessions

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gigboard/gigboard/internal/audit"
	"github.com/gigboard/gigboard/internal/platform/db"
	"github.com/gigboard/gigboard/internal/shared"
)

// Store is the persistence surface for tracked sessions. Touch and the
// revocations are conditional updates so a revocation racing a request
// always wins: once revoked_at is set, nothing brings the row back.
type Store interface {
	CreateSession(ctx context.Context, sess UserSession, entry audit.Entry) (*UserSession, error)
	GetBySessionID(ctx context.Context, sessionID string) (*UserSession, error)
	ListForUser(ctx context.Context, userID int64) ([]UserSession, error)
	TouchSession(ctx context.Context, sessionID string, now time.Time, meta audit.ClientMeta) (*UserSession, error)
	RevokeSession(ctx context.Context, sessionID string, now time.Time, entry audit.Entry) error
	RevokeAllForUser(ctx context.Context, userID int64, exceptSessionID string, now time.Time, entry audit.Entry) (int64, error)
	ExpireStale(ctx context.Context, now time.Time) (int64, error)
	DeleteTerminatedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type PGStore struct {
	pool     *pgxpool.Pool
	recorder *audit.Recorder
}

func NewPGStore(pool *pgxpool.Pool, recorder *audit.Recorder) *PGStore {
	return &PGStore{pool: pool, recorder: recorder}
}

const sessionColumns = `id, user_id, session_id, ip_address, user_agent, created_at, last_activity_at, expires_at, revoked_at`

func scanSession(row pgx.Row) (*UserSession, error) {
	var s UserSession
	err := row.Scan(&s.ID, &s.UserID, &s.SessionID, &s.IPAddress, &s.UserAgent, &s.CreatedAt, &s.LastActivityAt, &s.ExpiresAt, &s.RevokedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, fmt.Errorf("sessions: scan session: %w", err)
	}
	return &s, nil
}

func (s *PGStore) CreateSession(ctx context.Context, sess UserSession, entry audit.Entry) (*UserSession, error) {
	var created *UserSession
	err := db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
			INSERT INTO user_sessions (user_id, session_id, ip_address, user_agent, last_activity_at, expires_at)
			VALUES ($1, $2, $3, $4, now(), $5)
			RETURNING `+sessionColumns,
			sess.UserID, sess.SessionID, sess.IPAddress, sess.UserAgent, sess.ExpiresAt)
		got, err := scanSession(row)
		if err != nil {
			return err
		}
		created = got
		entry.ResourceID = got.SessionID
		return s.recorder.RecordIn(ctx, tx, entry)
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (s *PGStore) GetBySessionID(ctx context.Context, sessionID string) (*UserSession, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+sessionColumns+` FROM user_sessions WHERE session_id = $1`, sessionID)
	return scanSession(row)
}

func (s *PGStore) ListForUser(ctx context.Context, userID int64) ([]UserSession, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+sessionColumns+`
		FROM user_sessions
		WHERE user_id = $1
		ORDER BY last_activity_at DESC, id DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("sessions: list for user: %w", err)
	}
	defer rows.Close()

	var out []UserSession
	for rows.Next() {
		var sess UserSession
		if err := rows.Scan(&sess.ID, &sess.UserID, &sess.SessionID, &sess.IPAddress, &sess.UserAgent, &sess.CreatedAt, &sess.LastActivityAt, &sess.ExpiresAt, &sess.RevokedAt); err != nil {
			return nil, fmt.Errorf("sessions: scan session: %w", err)
		}
		out = append(out, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sessions: list for user: %w", err)
	}
	return out, nil
}

// TouchSession advances last_activity_at on a live session. GREATEST keeps
// the column monotonic under out-of-order requests. When the row is dead
// the call classifies it: revoked wins over everything, expiry stamps
// revoked_at and writes the expiry audit entry exactly once.
func (s *PGStore) TouchSession(ctx context.Context, sessionID string, now time.Time, meta audit.ClientMeta) (*UserSession, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE user_sessions
		SET last_activity_at = GREATEST(last_activity_at, $2)
		WHERE session_id = $1 AND revoked_at IS NULL AND expires_at > $2
		RETURNING `+sessionColumns, sessionID, now)
	sess, err := scanSession(row)
	if err == nil {
		return sess, nil
	}
	if !errors.Is(err, shared.ErrNotFound) {
		return nil, err
	}

	existing, err := s.GetBySessionID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if existing.RevokedAt != nil {
		return nil, fmt.Errorf("sessions: session revoked: %w", shared.ErrAlreadyResolved)
	}
	// Expired but not yet stamped: terminate it now, once.
	err = db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE user_sessions
			SET revoked_at = $2
			WHERE session_id = $1 AND revoked_at IS NULL`, sessionID, now)
		if err != nil {
			return fmt.Errorf("sessions: stamp expired: %w", err)
		}
		if tag.RowsAffected() == 0 {
			// A concurrent request stamped it first.
			return nil
		}
		return s.recorder.RecordIn(ctx, tx, audit.Entry{
			TargetUserID: &existing.UserID,
			Action:       audit.ActionSessionExpired,
			Resource:     audit.ResourceSession,
			ResourceID:   sessionID,
			IPAddress:    meta.IPAddress,
			UserAgent:    meta.UserAgent,
			CreatedAt:    now,
		})
	})
	if err != nil {
		return nil, err
	}
	return nil, shared.ErrExpired
}

func (s *PGStore) RevokeSession(ctx context.Context, sessionID string, now time.Time, entry audit.Entry) error {
	return db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE user_sessions
			SET revoked_at = $2
			WHERE session_id = $1 AND revoked_at IS NULL`, sessionID, now)
		if err != nil {
			return fmt.Errorf("sessions: revoke: %w", err)
		}
		if tag.RowsAffected() == 0 {
			if _, err := s.GetBySessionID(ctx, sessionID); err != nil {
				return err
			}
			return shared.ErrAlreadyResolved
		}
		return s.recorder.RecordIn(ctx, tx, entry)
	})
}

// RevokeAllForUser terminates every live session of a user, optionally
// sparing one (the caller's own, on a password change for instance).
func (s *PGStore) RevokeAllForUser(ctx context.Context, userID int64, exceptSessionID string, now time.Time, entry audit.Entry) (int64, error) {
	var n int64
	err := db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE user_sessions
			SET revoked_at = $2
			WHERE user_id = $1 AND revoked_at IS NULL AND session_id <> $3`, userID, now, exceptSessionID)
		if err != nil {
			return fmt.Errorf("sessions: revoke all: %w", err)
		}
		n = tag.RowsAffected()
		if n == 0 {
			return nil
		}
		if entry.Meta == nil {
			entry.Meta = map[string]any{}
		}
		entry.Meta["count"] = n
		return s.recorder.RecordIn(ctx, tx, entry)
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

// ExpireStale stamps revoked_at on live sessions whose expiry has passed.
// The touch path already terminates expired sessions on contact; this
// sweep catches the ones nobody touched.
func (s *PGStore) ExpireStale(ctx context.Context, now time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE user_sessions
		SET revoked_at = $1
		WHERE revoked_at IS NULL AND expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("sessions: expire stale: %w", err)
	}
	return tag.RowsAffected(), nil
}

// DeleteTerminatedBefore removes terminated rows older than the cutoff.
func (s *PGStore) DeleteTerminatedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM user_sessions
		WHERE revoked_at IS NOT NULL AND revoked_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("sessions: delete terminated: %w", err)
	}
	return tag.RowsAffected(), nil
}
