package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/meridian-commerce/meridian-admin/internal/authz"
	"github.com/meridian-commerce/meridian-admin/internal/session"
	"github.com/meridian-commerce/meridian-admin/internal/shared"
)

// SnapshotRefresher rewrites the permission snapshot of persisted sessions
// after a role's permissions were edited. Snapshots are per-role, so a
// single fetch serves every session in the fan-out.
type SnapshotRefresher struct {
	store    *session.Store
	platform session.Platform
	logger   *slog.Logger
}

// NewSnapshotRefresher constructs a SnapshotRefresher.
func NewSnapshotRefresher(store *session.Store, platform session.Platform, logger *slog.Logger) *SnapshotRefresher {
	return &SnapshotRefresher{store: store, platform: platform, logger: logger}
}

// HandlePermissionsRefresh processes TaskPermissionsRefresh tasks.
func (j *SnapshotRefresher) HandlePermissionsRefresh(ctx context.Context, t *asynq.Task) error {
	var payload PermissionsRefreshPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.RoleID <= 0 {
		return asynq.SkipRetry
	}

	keys, err := j.store.SessionsByRole(ctx, payload.RoleID)
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}

	var snapshot authz.Snapshot
	fetched := false
	updated := 0
	for _, key := range keys {
		rec, err := j.store.Load(ctx, key)
		if err != nil {
			if errors.Is(err, shared.ErrNoSession) {
				continue
			}
			return err
		}
		if !fetched {
			snapshot, err = j.platform.RoleSnapshot(ctx, rec.Token, payload.RoleID)
			if err != nil {
				return err
			}
			fetched = true
		}
		rec.Snapshot = snapshot
		rec.SnapshotLoaded = true
		if err := j.store.Save(ctx, key, *rec); err != nil {
			return err
		}
		updated++
	}

	j.logger.Info("permission snapshots refreshed",
		slog.Int64("role_id", payload.RoleID), slog.Int("sessions", updated))
	return nil
}

// HandleSessionsSweep processes TaskSessionsSweep tasks, dropping index
// entries whose session record has expired.
func (j *SnapshotRefresher) HandleSessionsSweep(ctx context.Context, t *asynq.Task) error {
	roles := []int64{authz.RoleSuperAdmin, authz.RoleManager, authz.RoleStaff}
	total := 0
	for _, roleID := range roles {
		removed, err := j.store.SweepRoleIndex(ctx, roleID)
		if err != nil {
			return err
		}
		total += removed
	}
	if total > 0 {
		j.logger.Info("session role indexes swept", slog.Int("removed", total))
	}
	return nil
}
