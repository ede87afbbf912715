package upstream

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian-commerce/meridian-admin/internal/authz"
	"github.com/meridian-commerce/meridian-admin/internal/shared"
)

func TestClient_Authenticate_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/auth/login", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "admin@shop.test", body["email"])
		assert.Equal(t, "secret", body["password"])

		_ = json.NewEncoder(w).Encode(LoginResult{
			Token: "tok-123",
			User: User{
				ID:     7,
				Email:  "admin@shop.test",
				Name:   "Admin",
				RoleID: 2,
				Roles:  []string{"manager"},
			},
		})
	}))
	defer srv.Close()

	client := NewClient(srv.URL)

	result, err := client.Authenticate(context.Background(), "admin@shop.test", "secret")
	require.NoError(t, err)
	assert.Equal(t, "tok-123", result.Token)
	assert.Equal(t, int64(7), result.User.ID)
	assert.Equal(t, int64(2), result.User.RoleID)
}

func TestClient_Authenticate_InvalidCredentials(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	client := NewClient(srv.URL)

	_, err := client.Authenticate(context.Background(), "admin@shop.test", "wrong")
	require.ErrorIs(t, err, shared.ErrInvalidCredentials)
}

func TestClient_Authenticate_UpstreamFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewClient(srv.URL)

	_, err := client.Authenticate(context.Background(), "admin@shop.test", "secret")
	require.Error(t, err)
	assert.NotErrorIs(t, err, shared.ErrInvalidCredentials)
	assert.Contains(t, err.Error(), "500")
}

func TestClient_Authenticate_MissingToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(LoginResult{User: User{ID: 7}})
	}))
	defer srv.Close()

	client := NewClient(srv.URL)

	_, err := client.Authenticate(context.Background(), "admin@shop.test", "secret")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing token")
}

func TestClient_RolePermissions(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/roles/2/permissions", r.URL.Path)
		assert.Equal(t, "Bearer tok-123", r.Header.Get("Authorization"))

		_ = json.NewEncoder(w).Encode([]Assignment{
			{
				RoleID:       2,
				PermissionID: 11,
				Permission: &authz.Permission{
					ID:       11,
					Name:     authz.CapProductManager,
					IsActive: true,
				},
			},
			{RoleID: 2, PermissionID: 12},
		})
	}))
	defer srv.Close()

	client := NewClient(srv.URL)

	assignments, err := client.RolePermissions(context.Background(), "tok-123", 2)
	require.NoError(t, err)
	require.Len(t, assignments, 2)
	assert.Equal(t, authz.CapProductManager, assignments[0].Permission.Name)
	assert.Nil(t, assignments[1].Permission)
}

func TestClient_RolePermissions_Error(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	client := NewClient(srv.URL)

	_, err := client.RolePermissions(context.Background(), "tok-123", 2)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
}

func TestSnapshotOf_DropsEntriesWithoutPermission(t *testing.T) {
	assignments := []Assignment{
		{RoleID: 2, PermissionID: 11, Permission: &authz.Permission{ID: 11, Name: authz.CapOrderManager, IsActive: true}},
		{RoleID: 2, PermissionID: 12},
		{RoleID: 2, PermissionID: 13, Permission: &authz.Permission{ID: 13, Name: authz.CapDashboardAccess, IsActive: false}},
	}

	snapshot := SnapshotOf(assignments)
	require.Len(t, snapshot, 2)
	assert.True(t, snapshot.Allows(authz.CapOrderManager))
	assert.False(t, snapshot.Allows(authz.CapDashboardAccess))
}

func TestClient_Ping(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/health", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	require.NoError(t, NewClient(srv.URL).Ping(context.Background()))
}

func TestClient_Ping_Down(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	require.Error(t, NewClient(srv.URL).Ping(context.Background()))
}
