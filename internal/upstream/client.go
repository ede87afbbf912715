// Package upstream wraps the e-commerce platform REST API consumed by the
// gateway: credential authentication and role-permission lookups. Endpoint
// shapes are owned by the platform; this client only enforces the contracts
// the authorization core relies on.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/meridian-commerce/meridian-admin/internal/authz"
	"github.com/meridian-commerce/meridian-admin/internal/shared"
)

// Client wraps interactions with the platform API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient constructs a new client.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// User is the identity payload returned by the platform on login.
type User struct {
	ID     int64    `json:"id"`
	Email  string   `json:"email"`
	Name   string   `json:"name"`
	RoleID int64    `json:"role_id"`
	Roles  []string `json:"roles"`
}

// LoginResult carries the bearer token and identity of a successful login.
type LoginResult struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

// Assignment ties a permission to a role. The embedded permission may be
// absent; such entries carry no grant and are dropped during snapshot build.
type Assignment struct {
	RoleID       int64             `json:"role_id"`
	PermissionID int64             `json:"permission_id"`
	Permission   *authz.Permission `json:"permission,omitempty"`
}

// Ping checks if the platform API is reachable.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/health", c.baseURL), nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("upstream returned status %d", resp.StatusCode)
	}
	return nil
}

// Authenticate exchanges credentials for a token and identity. Any 4xx from
// the platform surfaces as ErrInvalidCredentials; the gateway does not
// interpret the failure reason further.
func (c *Client) Authenticate(ctx context.Context, email, password string) (*LoginResult, error) {
	payload, err := json.Marshal(map[string]string{"email": email, "password": password})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fmt.Sprintf("%s/auth/login", c.baseURL), bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	switch {
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return nil, shared.ErrInvalidCredentials
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("upstream login failed with status %d", resp.StatusCode)
	}

	var result LoginResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode login response: %w", err)
	}
	if result.Token == "" {
		return nil, fmt.Errorf("upstream login response missing token")
	}
	return &result, nil
}

// RolePermissions fetches the permission assignments for a role using the
// session's bearer token.
func (c *Client) RolePermissions(ctx context.Context, token string, roleID int64) ([]Assignment, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/roles/%d/permissions", c.baseURL, roleID), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("fetch role permissions failed with status %d", resp.StatusCode)
	}

	var assignments []Assignment
	if err := json.NewDecoder(resp.Body).Decode(&assignments); err != nil {
		return nil, fmt.Errorf("decode role permissions: %w", err)
	}
	return assignments, nil
}

// SnapshotOf builds a permission snapshot from assignments, keeping only
// entries that embed a permission.
func SnapshotOf(assignments []Assignment) authz.Snapshot {
	snapshot := make(authz.Snapshot, 0, len(assignments))
	for _, a := range assignments {
		if a.Permission == nil {
			continue
		}
		snapshot = append(snapshot, *a.Permission)
	}
	return snapshot
}
