package invitations

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gigboard/gigboard/internal/audit"
	"github.com/gigboard/gigboard/internal/platform/db"
	"github.com/gigboard/gigboard/internal/shared"
	"github.com/gigboard/gigboard/internal/users"
)

const uniqueViolation = "23505"

// Store is the persistence surface for invitations. Acceptance and
// revocation are guarded by conditional updates so that concurrent calls
// resolve to exactly one winner; audit entries ride in the same transaction
// as the state change they describe.
type Store interface {
	CreateInvitation(ctx context.Context, inv Invitation, entry audit.Entry) (*Invitation, error)
	GetByID(ctx context.Context, id int64) (*Invitation, error)
	GetByToken(ctx context.Context, token string) (*Invitation, error)
	ListPending(ctx context.Context, now time.Time) ([]Invitation, error)
	ListByInviter(ctx context.Context, inviterID int64) ([]Invitation, error)
	AcceptInvitation(ctx context.Context, token string, account users.NewUser, now time.Time, meta audit.ClientMeta) (*Invitation, *users.User, error)
	RevokeInvitation(ctx context.Context, id int64, now time.Time, entry audit.Entry) error
	ExpirePending(ctx context.Context, now time.Time) (int64, error)
}

type PGStore struct {
	pool     *pgxpool.Pool
	recorder *audit.Recorder
}

func NewPGStore(pool *pgxpool.Pool, recorder *audit.Recorder) *PGStore {
	return &PGStore{pool: pool, recorder: recorder}
}

const invitationColumns = `id, email, role, token, invited_by, created_at, expires_at, accepted_at, revoked_at`

func scanInvitation(row pgx.Row) (*Invitation, error) {
	var inv Invitation
	err := row.Scan(&inv.ID, &inv.Email, &inv.Role, &inv.Token, &inv.InvitedBy, &inv.CreatedAt, &inv.ExpiresAt, &inv.AcceptedAt, &inv.RevokedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, fmt.Errorf("invitations: scan invitation: %w", err)
	}
	return &inv, nil
}

func (s *PGStore) CreateInvitation(ctx context.Context, inv Invitation, entry audit.Entry) (*Invitation, error) {
	var created *Invitation
	err := db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
			INSERT INTO invitations (email, role, token, invited_by, expires_at)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING `+invitationColumns,
			inv.Email, inv.Role, inv.Token, inv.InvitedBy, inv.ExpiresAt)
		got, err := scanInvitation(row)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
				return fmt.Errorf("invitations: pending invitation exists for %s: %w", inv.Email, shared.ErrAlreadyResolved)
			}
			return err
		}
		created = got
		entry.ResourceID = fmt.Sprintf("%d", got.ID)
		return s.recorder.RecordIn(ctx, tx, entry)
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (s *PGStore) GetByID(ctx context.Context, id int64) (*Invitation, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+invitationColumns+` FROM invitations WHERE id = $1`, id)
	return scanInvitation(row)
}

func (s *PGStore) GetByToken(ctx context.Context, token string) (*Invitation, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+invitationColumns+` FROM invitations WHERE token = $1`, token)
	return scanInvitation(row)
}

func (s *PGStore) ListPending(ctx context.Context, now time.Time) ([]Invitation, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+invitationColumns+`
		FROM invitations
		WHERE accepted_at IS NULL AND revoked_at IS NULL AND expires_at > $1
		ORDER BY created_at DESC, id DESC`, now)
	if err != nil {
		return nil, fmt.Errorf("invitations: list pending: %w", err)
	}
	return collectInvitations(rows)
}

func (s *PGStore) ListByInviter(ctx context.Context, inviterID int64) ([]Invitation, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+invitationColumns+`
		FROM invitations
		WHERE invited_by = $1
		ORDER BY created_at DESC, id DESC`, inviterID)
	if err != nil {
		return nil, fmt.Errorf("invitations: list by inviter: %w", err)
	}
	return collectInvitations(rows)
}

func collectInvitations(rows pgx.Rows) ([]Invitation, error) {
	defer rows.Close()
	var out []Invitation
	for rows.Next() {
		var inv Invitation
		if err := rows.Scan(&inv.ID, &inv.Email, &inv.Role, &inv.Token, &inv.InvitedBy, &inv.CreatedAt, &inv.ExpiresAt, &inv.AcceptedAt, &inv.RevokedAt); err != nil {
			return nil, fmt.Errorf("invitations: scan invitation: %w", err)
		}
		out = append(out, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("invitations: collect invitations: %w", err)
	}
	return out, nil
}

// AcceptInvitation redeems the token and provisions the invited account in
// one transaction. The conditional update is the linearization point: of
// any number of concurrent accepts, exactly one sees a row flip from
// pending to accepted; the rest fall through to classification.
func (s *PGStore) AcceptInvitation(ctx context.Context, token string, account users.NewUser, now time.Time, meta audit.ClientMeta) (*Invitation, *users.User, error) {
	var (
		accepted *Invitation
		created  *users.User
	)
	err := db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
			UPDATE invitations
			SET accepted_at = $2
			WHERE token = $1
			  AND accepted_at IS NULL
			  AND revoked_at IS NULL
			  AND expires_at > $2
			RETURNING `+invitationColumns, token, now)
		inv, err := scanInvitation(row)
		if err != nil {
			if errors.Is(err, shared.ErrNotFound) {
				return s.classifyAccept(ctx, token, now)
			}
			return err
		}
		accepted = inv

		account.Email = inv.Email
		account.Role = inv.Role
		userRow := tx.QueryRow(ctx, `
			INSERT INTO users (username, email, full_name, role, status, password_hash)
			VALUES ($1, $2, $3, $4, 'ACTIVE', $5)
			RETURNING id, username, email, full_name, role, status, password_hash, last_login_at, created_at, updated_at`,
			account.Username, account.Email, account.FullName, account.Role, account.PasswordHash)
		var u users.User
		if err := userRow.Scan(&u.ID, &u.Username, &u.Email, &u.FullName, &u.Role, &u.Status, &u.PasswordHash, &u.LastLoginAt, &u.CreatedAt, &u.UpdatedAt); err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
				return fmt.Errorf("invitations: account exists for %s: %w", account.Email, shared.ErrAlreadyResolved)
			}
			return fmt.Errorf("invitations: create invited user: %w", err)
		}
		created = &u

		return s.recorder.RecordIn(ctx, tx, audit.Entry{
			ActorUserID:  &u.ID,
			TargetUserID: &u.ID,
			Action:       audit.ActionInviteAccepted,
			Resource:     audit.ResourceInvitation,
			ResourceID:   fmt.Sprintf("%d", inv.ID),
			Meta: map[string]any{
				"email": inv.Email,
				"role":  string(inv.Role),
			},
			IPAddress: meta.IPAddress,
			UserAgent: meta.UserAgent,
			CreatedAt: now,
		})
	})
	if err != nil {
		return nil, nil, err
	}
	return accepted, created, nil
}

// classifyAccept explains why the conditional update matched nothing.
// Expiry is checked before resolution so an invitation that was swept
// after expiring still reads as expired, not revoked.
func (s *PGStore) classifyAccept(ctx context.Context, token string, now time.Time) error {
	inv, err := s.GetByToken(ctx, token)
	if err != nil {
		return err
	}
	switch inv.Status(now) {
	case StatusExpired:
		return shared.ErrExpired
	case StatusAccepted, StatusRevoked:
		return shared.ErrAlreadyResolved
	default:
		return shared.ErrAlreadyResolved
	}
}

func (s *PGStore) RevokeInvitation(ctx context.Context, id int64, now time.Time, entry audit.Entry) error {
	return db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE invitations
			SET revoked_at = $2
			WHERE id = $1 AND accepted_at IS NULL AND revoked_at IS NULL`, id, now)
		if err != nil {
			return fmt.Errorf("invitations: revoke: %w", err)
		}
		if tag.RowsAffected() == 0 {
			inv, err := s.GetByID(ctx, id)
			if err != nil {
				return err
			}
			if inv.Status(now) == StatusExpired {
				return shared.ErrExpired
			}
			return shared.ErrAlreadyResolved
		}
		return s.recorder.RecordIn(ctx, tx, entry)
	})
}

// ExpirePending stamps revoked_at on pending invitations whose expiry has
// passed. Correctness never depends on this sweep; acceptance checks
// expires_at directly.
func (s *PGStore) ExpirePending(ctx context.Context, now time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE invitations
		SET revoked_at = $1
		WHERE accepted_at IS NULL AND revoked_at IS NULL AND expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("invitations: expire pending: %w", err)
	}
	return tag.RowsAffected(), nil
}
