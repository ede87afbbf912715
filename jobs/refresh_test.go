package jobs_test

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian-commerce/meridian-admin/internal/authz"
	"github.com/meridian-commerce/meridian-admin/internal/session"
	"github.com/meridian-commerce/meridian-admin/jobs"
	_ "github.com/meridian-commerce/meridian-admin/testing"
)

type stubPlatform struct {
	snapshot authz.Snapshot
	err      error
	calls    int
}

func (s *stubPlatform) Authenticate(ctx context.Context, email, password string) (session.Credentials, error) {
	return session.Credentials{}, errors.New("not used")
}

func (s *stubPlatform) RoleSnapshot(ctx context.Context, token string, roleID int64) (authz.Snapshot, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.snapshot, nil
}

func newRefresher(t *testing.T, platform session.Platform) (*jobs.SnapshotRefresher, *session.Store) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := session.NewStore(client, time.Hour)
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	return jobs.NewSnapshotRefresher(store, platform, logger), store
}

func refreshTask(t *testing.T, roleID int64) *asynq.Task {
	t.Helper()
	task, err := jobs.NewPermissionsRefreshTask(jobs.PermissionsRefreshPayload{RoleID: roleID})
	require.NoError(t, err)
	return task
}

func TestPermissionsRefreshFansOutToAllSessions(t *testing.T) {
	platform := &stubPlatform{snapshot: authz.Snapshot{{ID: 5, Name: "export:order", IsActive: true}}}
	refresher, store := newRefresher(t, platform)
	ctx := context.Background()

	identity := session.Identity{ID: 1, RoleID: authz.RoleManager}
	for _, key := range []string{"key-a", "key-b"} {
		rec := session.Record{Token: "tok-" + key, Identity: identity, SnapshotLoaded: false}
		require.NoError(t, store.Save(ctx, key, rec))
		require.NoError(t, store.IndexRole(ctx, authz.RoleManager, key))
	}

	require.NoError(t, refresher.HandlePermissionsRefresh(ctx, refreshTask(t, authz.RoleManager)))

	// One fetch serves the whole fan-out.
	assert.Equal(t, 1, platform.calls)
	for _, key := range []string{"key-a", "key-b"} {
		rec, err := store.Load(ctx, key)
		require.NoError(t, err)
		assert.True(t, rec.SnapshotLoaded)
		assert.True(t, rec.Snapshot.Allows("export:order"))
	}
}

func TestPermissionsRefreshSkipsExpiredSessions(t *testing.T) {
	platform := &stubPlatform{snapshot: authz.Snapshot{}}
	refresher, store := newRefresher(t, platform)
	ctx := context.Background()

	require.NoError(t, store.IndexRole(ctx, authz.RoleManager, "gone"))
	require.NoError(t, refresher.HandlePermissionsRefresh(ctx, refreshTask(t, authz.RoleManager)))
	assert.Zero(t, platform.calls)
}

func TestPermissionsRefreshBadPayloadSkipsRetry(t *testing.T) {
	refresher, _ := newRefresher(t, &stubPlatform{})
	task := asynq.NewTask(jobs.TaskPermissionsRefresh, []byte("not json"))
	err := refresher.HandlePermissionsRefresh(context.Background(), task)
	assert.ErrorIs(t, err, asynq.SkipRetry)

	payload, err := json.Marshal(jobs.PermissionsRefreshPayload{RoleID: 0})
	require.NoError(t, err)
	err = refresher.HandlePermissionsRefresh(context.Background(), asynq.NewTask(jobs.TaskPermissionsRefresh, payload))
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

func TestPermissionsRefreshUpstreamFailureRetries(t *testing.T) {
	platform := &stubPlatform{err: errors.New("platform down")}
	refresher, store := newRefresher(t, platform)
	ctx := context.Background()

	rec := session.Record{Token: "tok", Identity: session.Identity{ID: 1, RoleID: authz.RoleManager}}
	require.NoError(t, store.Save(ctx, "key-a", rec))
	require.NoError(t, store.IndexRole(ctx, authz.RoleManager, "key-a"))

	err := refresher.HandlePermissionsRefresh(ctx, refreshTask(t, authz.RoleManager))
	require.Error(t, err)
	assert.NotErrorIs(t, err, asynq.SkipRetry)
}

func TestSessionsSweep(t *testing.T) {
	refresher, store := newRefresher(t, &stubPlatform{})
	ctx := context.Background()

	rec := session.Record{Token: "tok", Identity: session.Identity{ID: 1, RoleID: authz.RoleStaff}}
	require.NoError(t, store.Save(ctx, "live", rec))
	require.NoError(t, store.IndexRole(ctx, authz.RoleStaff, "live"))
	require.NoError(t, store.IndexRole(ctx, authz.RoleStaff, "stale"))

	require.NoError(t, refresher.HandleSessionsSweep(ctx, jobs.NewSessionsSweepTask()))

	keys, err := store.SessionsByRole(ctx, authz.RoleStaff)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"live"}, keys)
}
