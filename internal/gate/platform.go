// Package gate exposes the gateway's HTTP surface: login/logout/session
// endpoints, authorization queries, route gating middleware and the guarded
// admin API proxy.
package gate

import (
	"context"

	"github.com/meridian-commerce/meridian-admin/internal/authz"
	"github.com/meridian-commerce/meridian-admin/internal/session"
	"github.com/meridian-commerce/meridian-admin/internal/upstream"
)

// Platform adapts the upstream client to the session.Platform contract.
type Platform struct {
	Client *upstream.Client
}

// Authenticate exchanges credentials for a token and identity.
func (p Platform) Authenticate(ctx context.Context, email, password string) (session.Credentials, error) {
	result, err := p.Client.Authenticate(ctx, email, password)
	if err != nil {
		return session.Credentials{}, err
	}
	return session.Credentials{
		Token: result.Token,
		Identity: session.Identity{
			ID:         result.User.ID,
			Email:      result.User.Email,
			Name:       result.User.Name,
			RoleID:     result.User.RoleID,
			RoleLabels: result.User.Roles,
		},
	}, nil
}

// RoleSnapshot fetches and condenses the role's permission assignments,
// dropping entries without an embedded permission.
func (p Platform) RoleSnapshot(ctx context.Context, token string, roleID int64) (authz.Snapshot, error) {
	assignments, err := p.Client.RolePermissions(ctx, token, roleID)
	if err != nil {
		return nil, err
	}
	return upstream.SnapshotOf(assignments), nil
}

var _ session.Platform = Platform{}
