package gate

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/meridian-commerce/meridian-admin/internal/authz"
	"github.com/meridian-commerce/meridian-admin/internal/observability"
	"github.com/meridian-commerce/meridian-admin/internal/platform/httpx"
	"github.com/meridian-commerce/meridian-admin/internal/session"
)

// Proxy forwards admin API calls to the platform with the session's bearer
// token attached. It also hosts the global unauthorized handler: when the
// platform rejects a previously valid token, the session is force-cleared so
// it converges to unauthenticated without an explicit logout.
type Proxy struct {
	logger   *slog.Logger
	sessions *session.Manager
	metrics  *observability.Metrics
	reverse  *httputil.ReverseProxy
}

// NewProxy constructs a Proxy targeting the platform base URL.
func NewProxy(baseURL string, sessions *session.Manager, logger *slog.Logger, metrics *observability.Metrics) (*Proxy, error) {
	target, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("gate: parse upstream url: %w", err)
	}

	p := &Proxy{logger: logger, sessions: sessions, metrics: metrics}
	p.reverse = &httputil.ReverseProxy{
		Rewrite: func(r *httputil.ProxyRequest) {
			r.SetURL(target)
			r.Out.URL.Path = strings.TrimPrefix(r.In.URL.Path, "/api")
			r.Out.Host = target.Host
			// The platform must never see the gateway's session cookie.
			r.Out.Header.Del("Cookie")
			if holder := session.FromContext(r.In.Context()); holder != nil {
				if token := holder.Token(); token != "" {
					r.Out.Header.Set("Authorization", "Bearer "+token)
				}
			}
		},
		ModifyResponse: p.interceptUnauthorized,
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			logger.Error("proxy upstream", slog.String("path", r.URL.Path), slog.Any("error", err))
			httpx.Problem(w, http.StatusBadGateway, "Upstream Unavailable", "")
		},
	}
	return p, nil
}

// MountRoutes attaches the guarded admin resources under the router. Each
// resource family is gated by the capability that unlocks it; role and user
// administration is reserved for the super role.
func (p *Proxy) MountRoutes(r chi.Router, mw Middleware) {
	guard := func(capability string, paths ...string) {
		r.Group(func(r chi.Router) {
			r.Use(mw.RequireCapability(capability))
			for _, path := range paths {
				r.Handle(path, p)
				r.Handle(path+"/*", p)
			}
		})
	}

	guard(authz.CapProductManager, "/products", "/categories", "/brands", "/collections")
	guard(authz.CapOrderManager, "/orders")
	guard(authz.CapCustomerManager, "/customers")
	guard(authz.CapMarketingManager, "/coupons")
	guard(authz.CapDashboardAccess, "/dashboard")

	r.Group(func(r chi.Router) {
		r.Use(mw.RequireSuperRole())
		for _, path := range []string{"/roles", "/permissions", "/users"} {
			r.Handle(path, p)
			r.Handle(path+"/*", p)
		}
	})
}

// ServeHTTP forwards the request upstream.
func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p.reverse.ServeHTTP(w, r)
}

// interceptUnauthorized implements the global unauthorized handler: an
// upstream 401 force-clears the session and rewrites the response into the
// navigation signal (problem JSON plus a deleted session cookie).
func (p *Proxy) interceptUnauthorized(resp *http.Response) error {
	if resp.StatusCode != http.StatusUnauthorized {
		return nil
	}

	ctx := resp.Request.Context()
	if holder := session.FromContext(ctx); holder != nil && holder.Authenticated() {
		p.logger.Warn("upstream rejected session token, forcing sign-out",
			slog.String("session", holder.Key()))
		holder.ForceClear(ctx)
		p.metrics.ObserveForcedSignout()
	}

	if resp.Body != nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}
	problem, err := json.Marshal(httpx.ProblemDetail{
		Title:  "Unauthorized",
		Status: http.StatusUnauthorized,
		Detail: "session expired, sign in again",
	})
	if err != nil {
		return err
	}
	resp.Body = io.NopCloser(bytes.NewReader(problem))
	resp.ContentLength = int64(len(problem))
	resp.Header = http.Header{}
	resp.Header.Set("Content-Type", "application/json")
	resp.Header.Set("Content-Length", fmt.Sprint(len(problem)))
	expired := &http.Cookie{
		Name:     p.sessions.CookieName(),
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	}
	resp.Header.Set("Set-Cookie", expired.String())
	return nil
}
