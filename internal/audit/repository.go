package audit

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL audit repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// ListEntries returns matching rows ordered newest first.
func (r *PGRepository) ListEntries(ctx context.Context, filters Filters, offset, limit int) ([]Entry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, actor_user_id, target_user_id, action, resource, resource_id, meta, ip_address, user_agent, created_at
		FROM audit_logs
		WHERE ($1::bigint IS NULL OR actor_user_id = $1)
		  AND ($2::bigint IS NULL OR target_user_id = $2)
		  AND ($3::varchar IS NULL OR action = $3)
		  AND ($4::timestamptz IS NULL OR created_at >= $4)
		  AND ($5::timestamptz IS NULL OR created_at <= $5)
		ORDER BY created_at DESC, id DESC
		OFFSET $6 LIMIT $7`,
		optionalInt8(filters.ActorUserID),
		optionalInt8(filters.TargetUserID),
		optionalText(string(filters.Action)),
		optionalTime(filters.From),
		optionalTime(filters.To),
		offset,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			entry      Entry
			actor      pgtype.Int8
			target     pgtype.Int8
			resource   pgtype.Text
			resourceID pgtype.Text
			meta       []byte
			ip         pgtype.Text
			ua         pgtype.Text
		)
		if err := rows.Scan(&entry.ID, &actor, &target, &entry.Action, &resource, &resourceID, &meta, &ip, &ua, &entry.CreatedAt); err != nil {
			return nil, err
		}
		if actor.Valid {
			entry.ActorUserID = &actor.Int64
		}
		if target.Valid {
			entry.TargetUserID = &target.Int64
		}
		entry.Resource = resource.String
		entry.ResourceID = resourceID.String
		entry.IPAddress = ip.String
		entry.UserAgent = ua.String
		if len(meta) > 0 {
			_ = json.Unmarshal(meta, &entry.Meta)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

func optionalInt8(v *int64) pgtype.Int8 {
	if v == nil {
		return pgtype.Int8{}
	}
	return pgtype.Int8{Int64: *v, Valid: true}
}

func optionalText(value string) pgtype.Text {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return pgtype.Text{}
	}
	return pgtype.Text{String: trimmed, Valid: true}
}

func optionalTime(t time.Time) pgtype.Timestamptz {
	if t.IsZero() {
		return pgtype.Timestamptz{}
	}
	return pgtype.Timestamptz{Time: t, Valid: true}
}
