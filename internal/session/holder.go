package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/meridian-commerce/meridian-admin/internal/authz"
	"github.com/meridian-commerce/meridian-admin/internal/shared"
)

// Platform is the external collaborator the holder authenticates against.
type Platform interface {
	Authenticate(ctx context.Context, email, password string) (Credentials, error)
	RoleSnapshot(ctx context.Context, token string, roleID int64) (authz.Snapshot, error)
}

// Holder owns a single session's authorization state and is the sole entry
// point for authorization queries about that session. A mutex guards the
// state since the gateway serves a session from concurrent requests; the
// transient Authenticating and PermissionLoading states are therefore never
// observable from outside a mutating call.
type Holder struct {
	mu             sync.Mutex
	key            string
	state          State
	identity       *Identity
	token          string
	snapshot       authz.Snapshot
	snapshotLoaded bool

	store    *Store
	platform Platform
	logger   *slog.Logger
	group    *singleflight.Group
}

// Key returns the opaque session key.
func (h *Holder) Key() string {
	return h.key
}

// State returns the current lifecycle state.
func (h *Holder) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Authenticated reports whether the session serves authorization queries.
func (h *Holder) Authenticated() bool {
	return h.State() == StateAuthenticated
}

// Identity returns a copy of the current identity, or nil when unauthenticated.
func (h *Holder) Identity() *Identity {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.identity == nil {
		return nil
	}
	id := *h.identity
	return &id
}

// Token returns the session's bearer token, empty when unauthenticated.
func (h *Holder) Token() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.token
}

// SnapshotLoaded reports whether the fine-grained permission snapshot was
// successfully fetched. False means the session runs on coarse role checks
// only until the next refresh.
func (h *Holder) SnapshotLoaded() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.snapshotLoaded
}

// Login authenticates credentials against the platform and populates the
// session. The blocked-role gate runs after upstream authentication but
// before anything is persisted: a blocked identity never reaches the store,
// so there is no window where it is observably authenticated. A failing
// snapshot fetch does not fail the login; the session proceeds with an empty
// snapshot and coarse role-based access only.
func (h *Holder) Login(ctx context.Context, email, password string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.state = StateAuthenticating
	creds, err := h.platform.Authenticate(ctx, email, password)
	if err != nil {
		h.state = StateUnauthenticated
		return err
	}
	if creds.Identity.RoleID == authz.RoleBlocked {
		h.state = StateUnauthenticated
		return shared.ErrAccountBlocked
	}

	rec := Record{Token: creds.Token, Identity: creds.Identity, CreatedAt: time.Now().UTC()}
	if err := h.store.Save(ctx, h.key, rec); err != nil {
		h.state = StateUnauthenticated
		return fmt.Errorf("persist session: %w", err)
	}

	identity := creds.Identity
	h.identity = &identity
	h.token = creds.Token

	h.state = StatePermissionLoading
	h.loadSnapshotLocked(ctx, &rec)

	if err := h.store.IndexRole(ctx, identity.RoleID, h.key); err != nil {
		h.logger.Warn("index session role", slog.Any("error", err))
	}
	h.state = StateAuthenticated
	return nil
}

// Restore rebuilds the session from the durable store. A missing record
// leaves the session unauthenticated; that is a completed restore, not an
// error, so callers can tell "confirmed unauthenticated" from "still
// deciding". A present record is trusted optimistically without a validation
// round trip. The permission snapshot is backfilled when the stored record
// does not carry one; failure to do so is tolerated.
func (h *Holder) Restore(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	rec, err := h.store.Load(ctx, h.key)
	if err != nil {
		if errors.Is(err, shared.ErrNoSession) {
			h.clearLocked()
			return nil
		}
		return err
	}

	identity := rec.Identity
	h.identity = &identity
	h.token = rec.Token

	if rec.SnapshotLoaded {
		h.snapshot = rec.Snapshot
		h.snapshotLoaded = true
	} else {
		h.state = StatePermissionLoading
		h.loadSnapshotLocked(ctx, rec)
	}
	h.state = StateAuthenticated
	return nil
}

// Logout clears the durable record and the in-memory state. Idempotent:
// logging out an unauthenticated session is a no-op. Store failures are
// logged, never surfaced; the in-memory state always converges to
// unauthenticated.
func (h *Holder) Logout(ctx context.Context) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.identity != nil {
		if err := h.store.UnindexRole(ctx, h.identity.RoleID, h.key); err != nil {
			h.logger.Warn("unindex session role", slog.Any("error", err))
		}
	}
	if err := h.store.Delete(ctx, h.key); err != nil {
		h.logger.Warn("delete session record", slog.Any("error", err))
	}
	h.clearLocked()
}

// ForceClear is the entry point for the global unauthorized handler: when a
// previously valid token is rejected upstream mid-session, the session must
// converge to unauthenticated exactly as if Logout had been called.
func (h *Holder) ForceClear(ctx context.Context) {
	h.Logout(ctx)
}

// RefreshPermissions replaces the permission snapshot on demand, e.g. after
// an administrator edited the role's permissions. Unlike the login-time
// fetch, failures surface to the caller.
func (h *Holder) RefreshPermissions(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.state != StateAuthenticated || h.identity == nil {
		return shared.ErrUnauthenticated
	}
	snapshot, err := h.fetchSnapshotLocked(ctx, h.token, h.identity.RoleID)
	if err != nil {
		return fmt.Errorf("refresh permissions: %w", err)
	}
	h.snapshot = snapshot
	h.snapshotLoaded = true

	rec := Record{Token: h.token, Identity: *h.identity, Snapshot: snapshot, SnapshotLoaded: true, CreatedAt: time.Now().UTC()}
	if err := h.store.Save(ctx, h.key, rec); err != nil {
		h.logger.Warn("persist refreshed snapshot", slog.Any("error", err))
	}
	return nil
}

// HasRole answers a coarse capability query from the static role policy.
// Always false when unauthenticated.
func (h *Holder) HasRole(capability string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state != StateAuthenticated || h.identity == nil {
		return false
	}
	return authz.Grants(h.identity.RoleID, capability)
}

// HasPermission answers a fine-grained permission query from the snapshot.
// Always false when unauthenticated. Between login and snapshot arrival the
// snapshot is empty, so non-super roles fail closed.
func (h *Holder) HasPermission(name string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state != StateAuthenticated || h.identity == nil {
		return false
	}
	return authz.HasPermission(h.identity.RoleID, h.snapshot, name)
}

// HasAnyPermission reports whether at least one named permission is held.
func (h *Holder) HasAnyPermission(names ...string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state != StateAuthenticated || h.identity == nil {
		return false
	}
	return authz.CheckAny(h.identity.RoleID, h.snapshot, names...)
}

// HasAllPermissions reports whether every named permission is held.
func (h *Holder) HasAllPermissions(names ...string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state != StateAuthenticated || h.identity == nil {
		return false
	}
	return authz.CheckAll(h.identity.RoleID, h.snapshot, names...)
}

// loadSnapshotLocked performs the non-fatal snapshot fetch used by Login and
// Restore, updating both the holder and the durable record on success.
func (h *Holder) loadSnapshotLocked(ctx context.Context, rec *Record) {
	snapshot, err := h.fetchSnapshotLocked(ctx, h.token, h.identity.RoleID)
	if err != nil {
		h.logger.Warn("permission snapshot fetch failed, continuing with role-based access only",
			slog.Int64("role_id", h.identity.RoleID), slog.Any("error", err))
		h.snapshot = nil
		h.snapshotLoaded = false
		return
	}
	h.snapshot = snapshot
	h.snapshotLoaded = true
	rec.Snapshot = snapshot
	rec.SnapshotLoaded = true
	if err := h.store.Save(ctx, h.key, *rec); err != nil {
		h.logger.Warn("persist snapshot", slog.Any("error", err))
	}
}

// fetchSnapshotLocked deduplicates concurrent fetches for the same role
// across sessions; snapshots are per-role, so one flight serves them all.
func (h *Holder) fetchSnapshotLocked(ctx context.Context, token string, roleID int64) (authz.Snapshot, error) {
	v, err, _ := h.group.Do(fmt.Sprintf("role:%d", roleID), func() (any, error) {
		return h.platform.RoleSnapshot(ctx, token, roleID)
	})
	if err != nil {
		return nil, err
	}
	snapshot, ok := v.(authz.Snapshot)
	if !ok {
		return nil, fmt.Errorf("unexpected snapshot type %T", v)
	}
	return snapshot, nil
}

func (h *Holder) clearLocked() {
	h.identity = nil
	h.token = ""
	h.snapshot = nil
	h.snapshotLoaded = false
	h.state = StateUnauthenticated
}
