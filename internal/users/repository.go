package users

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gigboard/gigboard/internal/audit"
	"github.com/gigboard/gigboard/internal/platform/db"
	"github.com/gigboard/gigboard/internal/rbac"
	"github.com/gigboard/gigboard/internal/shared"
)

// Store is the persistence surface the service depends on. Mutations
// that take an audit.Entry must write the row and the entry in one
// transaction; if either fails the whole mutation rolls back.
type Store interface {
	GetUser(ctx context.Context, id int64) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	ListUsers(ctx context.Context, offset, limit int) ([]User, error)
	CreateUser(ctx context.Context, nu NewUser, entry audit.Entry) (*User, error)
	UpdateUserRole(ctx context.Context, id int64, role rbac.Role, entry audit.Entry) error
	UpdateUserStatus(ctx context.Context, id int64, status rbac.UserStatus, entry audit.Entry) error
	TouchLastLogin(ctx context.Context, id int64) error
}

type PGStore struct {
	pool     *pgxpool.Pool
	recorder *audit.Recorder
}

func NewPGStore(pool *pgxpool.Pool, recorder *audit.Recorder) *PGStore {
	return &PGStore{pool: pool, recorder: recorder}
}

const userColumns = `id, username, email, full_name, role, status, password_hash, last_login_at, created_at, updated_at`

func scanUser(row pgx.Row) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.FullName, &u.Role, &u.Status, &u.PasswordHash, &u.LastLoginAt, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, fmt.Errorf("users: scan user: %w", err)
	}
	return &u, nil
}

func (s *PGStore) GetUser(ctx context.Context, id int64) (*User, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	return scanUser(row)
}

func (s *PGStore) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE lower(email) = lower($1)`, email)
	return scanUser(row)
}

func (s *PGStore) ListUsers(ctx context.Context, offset, limit int) ([]User, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+userColumns+`
		FROM users
		ORDER BY created_at ASC, id ASC
		OFFSET $1 LIMIT $2`, offset, limit)
	if err != nil {
		return nil, fmt.Errorf("users: list users: %w", err)
	}
	defer rows.Close()

	var out []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Username, &u.Email, &u.FullName, &u.Role, &u.Status, &u.PasswordHash, &u.LastLoginAt, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, fmt.Errorf("users: scan user: %w", err)
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("users: list users: %w", err)
	}
	return out, nil
}

func (s *PGStore) CreateUser(ctx context.Context, nu NewUser, entry audit.Entry) (*User, error) {
	var created *User
	err := db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
			INSERT INTO users (username, email, full_name, role, status, password_hash)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING `+userColumns,
			nu.Username, nu.Email, nu.FullName, nu.Role, rbac.StatusActive, nu.PasswordHash)
		u, err := scanUser(row)
		if err != nil {
			return err
		}
		created = u
		entry.TargetUserID = &u.ID
		entry.ResourceID = fmt.Sprintf("%d", u.ID)
		return s.recorder.RecordIn(ctx, tx, entry)
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (s *PGStore) UpdateUserRole(ctx context.Context, id int64, role rbac.Role, entry audit.Entry) error {
	return db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `UPDATE users SET role = $1, updated_at = now() WHERE id = $2`, role, id)
		if err != nil {
			return fmt.Errorf("users: update role: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return shared.ErrNotFound
		}
		return s.recorder.RecordIn(ctx, tx, entry)
	})
}

func (s *PGStore) UpdateUserStatus(ctx context.Context, id int64, status rbac.UserStatus, entry audit.Entry) error {
	return db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `UPDATE users SET status = $1, updated_at = now() WHERE id = $2`, status, id)
		if err != nil {
			return fmt.Errorf("users: update status: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return shared.ErrNotFound
		}
		return s.recorder.RecordIn(ctx, tx, entry)
	})
}

func (s *PGStore) TouchLastLogin(ctx context.Context, id int64) error {
	_, err := s.pool.Exec(ctx, `UPDATE users SET last_login_at = now(), updated_at = now() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("users: touch last login: %w", err)
	}
	return nil
}
