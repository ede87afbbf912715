package session

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Registry records login sessions for operator visibility.
type Registry interface {
	Register(ctx context.Context, key string, userID, roleID int64, expiresAt time.Time, ip, ua string) error
	Remove(ctx context.Context, key string) error
}

// PGRegistry implements Registry on PostgreSQL.
type PGRegistry struct {
	pool *pgxpool.Pool
}

// NewRegistry constructs a PostgreSQL-backed registry.
func NewRegistry(pool *pgxpool.Pool) *PGRegistry {
	return &PGRegistry{pool: pool}
}

// Register persists a login session record. A repeated key is treated as
// already registered rather than an error.
func (r *PGRegistry) Register(ctx context.Context, key string, userID, roleID int64, expiresAt time.Time, ip, ua string) error {
	now := time.Now().UTC()
	_, err := r.pool.Exec(ctx,
		`INSERT INTO login_sessions (id, user_id, role_id, created_at, expires_at, ip, ua)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		key, userID, roleID,
		pgtype.Timestamptz{Time: now, Valid: true},
		pgtype.Timestamptz{Time: expiresAt.UTC(), Valid: true},
		pgtype.Text{String: ip, Valid: ip != ""},
		pgtype.Text{String: ua, Valid: ua != ""},
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return nil
	}
	return err
}

// Remove deletes a login session record.
func (r *PGRegistry) Remove(ctx context.Context, key string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM login_sessions WHERE id = $1`, key)
	return err
}

var _ Registry = (*PGRegistry)(nil)
