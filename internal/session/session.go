// Package session owns the per-dashboard-session authorization state:
// identity, bearer token and permission snapshot. One Holder exists per
// dashboard session; every authorization query the gateway answers is served
// from it without a network round trip.
package session

import (
	"time"

	"github.com/meridian-commerce/meridian-admin/internal/authz"
)

// State tracks the session lifecycle.
type State int

const (
	// StateUnauthenticated is the initial state: no identity, token or snapshot.
	StateUnauthenticated State = iota
	// StateAuthenticating is transient while the upstream login is in flight.
	StateAuthenticating
	// StatePermissionLoading is transient: identity and token are set, the
	// permission snapshot fetch is in flight.
	StatePermissionLoading
	// StateAuthenticated serves all authorization queries until logout or a
	// forced sign-out.
	StateAuthenticated
)

func (s State) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateAuthenticating:
		return "authenticating"
	case StatePermissionLoading:
		return "permission_loading"
	case StateAuthenticated:
		return "authenticated"
	default:
		return "unknown"
	}
}

// Identity is the authenticated actor. Immutable once set: a new login
// produces a new Identity, never a field mutation.
type Identity struct {
	ID         int64    `json:"id"`
	Email      string   `json:"email"`
	Name       string   `json:"name"`
	RoleID     int64    `json:"role_id"`
	RoleLabels []string `json:"role_labels,omitempty"`
}

// Credentials is what the platform hands back on a successful login.
type Credentials struct {
	Token    string
	Identity Identity
}

// Record is the durable form of a session. Token and identity are always
// written and cleared together; the snapshot rides along so a restored
// session does not refetch permissions on every request.
type Record struct {
	Token          string         `json:"token"`
	Identity       Identity       `json:"identity"`
	Snapshot       authz.Snapshot `json:"snapshot,omitempty"`
	SnapshotLoaded bool           `json:"snapshot_loaded"`
	CreatedAt      time.Time      `json:"created_at"`
}
