package shared

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Auth event actions recorded in the audit trail.
const (
	AuditLogin              = "auth.login"
	AuditLoginBlocked       = "auth.login.blocked"
	AuditLogout             = "auth.logout"
	AuditForcedSignout      = "auth.forced_signout"
	AuditPermissionsRefresh = "auth.permissions.refresh"
)

// AuditLog represents an authentication event stored in audit_logs.
// Subject is the account email the event concerns; ActorID is zero when the
// event has no authenticated actor (e.g. a blocked login attempt).
type AuditLog struct {
	ActorID int64
	Action  string
	Subject string
	Meta    map[string]any
	At      time.Time
}

// AuditLogger writes auth events into audit_logs. Recording is best-effort
// everywhere it is called: a failing audit insert never blocks an auth flow.
type AuditLogger struct {
	pool *pgxpool.Pool
}

// NewAuditLogger returns a new AuditLogger.
func NewAuditLogger(pool *pgxpool.Pool) *AuditLogger {
	return &AuditLogger{pool: pool}
}

// Record persists the event.
func (l *AuditLogger) Record(ctx context.Context, log AuditLog) error {
	if l == nil {
		return errors.New("audit logger not initialised")
	}
	if log.Action == "" || log.Subject == "" {
		return errors.New("audit log requires action and subject")
	}
	metaJSON, err := json.Marshal(log.Meta)
	if err != nil {
		return err
	}
	_, err = l.pool.Exec(ctx,
		`INSERT INTO audit_logs (actor_id, action, subject, meta, occurred_at) VALUES ($1, $2, $3, $4, COALESCE($5, NOW()))`,
		log.ActorID, log.Action, log.Subject, metaJSON, log.At)
	return err
}
