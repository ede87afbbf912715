package gate_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian-commerce/meridian-admin/internal/authz"
	"github.com/meridian-commerce/meridian-admin/internal/gate"
	"github.com/meridian-commerce/meridian-admin/internal/platform/httpx"
	"github.com/meridian-commerce/meridian-admin/internal/session"
)

type proxyEnv struct {
	router   chi.Router
	sessions *session.Manager
	redis    *miniredis.Miniredis
	upstream *httptest.Server
}

func newProxyEnv(t *testing.T, upstream http.HandlerFunc, platform session.Platform) *proxyEnv {
	t.Helper()
	srv := httptest.NewServer(upstream)
	t.Cleanup(srv.Close)

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := session.NewStore(client, time.Hour)
	logger := slog.New(slog.NewTextHandler(testWriter{t}, nil))
	sessions := session.NewManager(store, platform, logger, "meridian_session", false)

	proxy, err := gate.NewProxy(srv.URL, sessions, logger, nil)
	require.NoError(t, err)

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			holder, err := sessions.Load(req.Context(), req)
			if err != nil {
				httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
				return
			}
			next.ServeHTTP(w, req.WithContext(session.WithHolder(req.Context(), holder)))
		})
	})
	r.Route("/api", func(r chi.Router) {
		proxy.MountRoutes(r, gate.Middleware{Logger: logger})
	})

	return &proxyEnv{router: r, sessions: sessions, redis: mr, upstream: srv}
}

func loginHolder(t *testing.T, env *proxyEnv) *http.Cookie {
	t.Helper()
	holder := env.sessions.NewHolder()
	require.NoError(t, holder.Login(context.Background(), "user@shop.test", "secret"))
	return &http.Cookie{Name: "meridian_session", Value: holder.Key()}
}

func TestProxy_ForwardsWithBearerToken(t *testing.T) {
	var gotAuth, gotCookie, gotPath string
	env := newProxyEnv(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotCookie = r.Header.Get("Cookie")
		gotPath = r.URL.Path
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}, &stubPlatform{
		creds: session.Credentials{
			Token:    "tok-proxy",
			Identity: session.Identity{ID: 9, Email: "user@shop.test", RoleID: authz.RoleManager},
		},
	})

	cookie := loginHolder(t, env)
	req := httptest.NewRequest(http.MethodGet, "/api/orders/15", nil)
	req.AddCookie(cookie)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Bearer tok-proxy", gotAuth)
	assert.Empty(t, gotCookie)
	assert.Equal(t, "/orders/15", gotPath)
}

func TestProxy_CapabilityGuardDenies(t *testing.T) {
	env := newProxyEnv(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("request must not reach upstream")
	}, &stubPlatform{
		creds: session.Credentials{
			Token:    "tok-proxy",
			Identity: session.Identity{ID: 9, Email: "user@shop.test", RoleID: authz.RoleStaff},
		},
	})

	cookie := loginHolder(t, env)
	req := httptest.NewRequest(http.MethodGet, "/api/orders", nil)
	req.AddCookie(cookie)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestProxy_SuperRoleRoutes(t *testing.T) {
	env := newProxyEnv(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}, &stubPlatform{
		creds: session.Credentials{
			Token:    "tok-proxy",
			Identity: session.Identity{ID: 1, Email: "root@shop.test", RoleID: authz.RoleSuperAdmin},
		},
	})

	cookie := loginHolder(t, env)
	for _, path := range []string{"/api/roles", "/api/users/3", "/api/permissions"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.AddCookie(cookie)
		rec := httptest.NewRecorder()
		env.router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}
}

func TestProxy_Unauthenticated(t *testing.T) {
	env := newProxyEnv(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("request must not reach upstream")
	}, &stubPlatform{})

	req := httptest.NewRequest(http.MethodGet, "/api/orders", nil)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestProxy_Upstream401ForcesSignout(t *testing.T) {
	env := newProxyEnv(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}, &stubPlatform{
		creds: session.Credentials{
			Token:    "tok-stale",
			Identity: session.Identity{ID: 9, Email: "user@shop.test", RoleID: authz.RoleManager},
		},
	})

	cookie := loginHolder(t, env)
	require.True(t, env.redis.Exists("session:"+cookie.Value))

	req := httptest.NewRequest(http.MethodGet, "/api/orders", nil)
	req.AddCookie(cookie)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)

	var problem httpx.ProblemDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
	assert.Equal(t, http.StatusUnauthorized, problem.Status)

	expired := sessionCookie(t, rec)
	assert.Empty(t, expired.Value)

	assert.False(t, env.redis.Exists("session:"+cookie.Value))
}

func TestProxy_UpstreamDown(t *testing.T) {
	env := newProxyEnv(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}, &stubPlatform{
		creds: session.Credentials{
			Token:    "tok-proxy",
			Identity: session.Identity{ID: 9, Email: "user@shop.test", RoleID: authz.RoleManager},
		},
	})
	env.upstream.Close()

	cookie := loginHolder(t, env)
	req := httptest.NewRequest(http.MethodGet, "/api/orders", nil)
	req.AddCookie(cookie)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadGateway, rec.Code)
}
