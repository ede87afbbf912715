package gate

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"
	"github.com/hibiken/asynq"

	"github.com/meridian-commerce/meridian-admin/internal/observability"
	"github.com/meridian-commerce/meridian-admin/internal/platform/httpx"
	"github.com/meridian-commerce/meridian-admin/internal/session"
	"github.com/meridian-commerce/meridian-admin/internal/shared"
	"github.com/meridian-commerce/meridian-admin/jobs"
)

// TaskEnqueuer queues background tasks; satisfied by *asynq.Client.
type TaskEnqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Handler wires HTTP endpoints for authentication and authorization queries.
type Handler struct {
	logger    *slog.Logger
	sessions  *session.Manager
	registry  session.Registry
	audit     *shared.AuditLogger
	metrics   *observability.Metrics
	enqueuer  TaskEnqueuer
	csrf      *shared.CSRFManager
	validator *validator.Validate
}

// NewHandler constructs a Handler instance. Registry, audit, metrics and
// enqueuer are optional; a nil value disables the corresponding side effect.
func NewHandler(logger *slog.Logger, sessions *session.Manager, registry session.Registry, audit *shared.AuditLogger, metrics *observability.Metrics, enqueuer TaskEnqueuer, csrf *shared.CSRFManager) *Handler {
	return &Handler{
		logger:    logger,
		sessions:  sessions,
		registry:  registry,
		audit:     audit,
		metrics:   metrics,
		enqueuer:  enqueuer,
		csrf:      csrf,
		validator: validator.New(),
	}
}

// MountRoutes registers auth routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.With(httprate.LimitByIP(10, time.Minute)).Post("/login", h.handleLogin)
	r.Post("/logout", h.handleLogout)
	r.Get("/session", h.handleSession)
	r.Get("/authorize", h.handleAuthorize)
	r.Post("/permissions/refresh", h.handleRefresh)
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type sessionResponse struct {
	Authenticated     bool              `json:"authenticated"`
	User              *session.Identity `json:"user,omitempty"`
	PermissionsLoaded bool              `json:"permissions_loaded"`
	CSRFToken         string            `json:"csrf_token,omitempty"`
}

// csrfToken derives the token the SPA must echo on state-changing requests.
func (h *Handler) csrfToken(holder *session.Holder) string {
	if h.csrf == nil {
		return ""
	}
	return h.csrf.TokenFor(holder.Key())
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var form loginRequest
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	// Login always runs on a fresh holder so the session key rotates on
	// every successful authentication.
	holder := h.sessions.NewHolder()
	if err := holder.Login(r.Context(), form.Email, form.Password); err != nil {
		switch {
		case errors.Is(err, shared.ErrAccountBlocked):
			h.metrics.ObserveLogin(observability.LoginOutcomeBlocked)
			h.recordAudit(r.Context(), 0, shared.AuditLoginBlocked, form.Email)
			h.logger.Warn("blocked account login attempt", slog.String("email", form.Email))
		case errors.Is(err, shared.ErrInvalidCredentials):
			h.metrics.ObserveLogin(observability.LoginOutcomeFailed)
		default:
			h.metrics.ObserveLogin(observability.LoginOutcomeFailed)
			h.logger.Error("login failed", slog.Any("error", err))
		}
		httpx.RespondError(w, err)
		return
	}

	identity := holder.Identity()
	h.metrics.ObserveLogin(observability.LoginOutcomeSuccess)
	h.recordAudit(r.Context(), identity.ID, shared.AuditLogin, identity.Email)
	if h.registry != nil {
		expiresAt := time.Now().Add(h.sessions.Store().TTL())
		if err := h.registry.Register(r.Context(), holder.Key(), identity.ID, identity.RoleID, expiresAt, r.RemoteAddr, r.UserAgent()); err != nil {
			h.logger.Warn("register session", slog.Any("error", err))
		}
	}

	h.sessions.WriteCookie(w, holder)
	httpx.JSON(w, http.StatusOK, sessionResponse{
		Authenticated:     true,
		User:              identity,
		PermissionsLoaded: holder.SnapshotLoaded(),
		CSRFToken:         h.csrfToken(holder),
	})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	holder := session.FromContext(r.Context())
	if holder != nil {
		if identity := holder.Identity(); identity != nil {
			h.recordAudit(r.Context(), identity.ID, shared.AuditLogout, identity.Email)
		}
		if h.registry != nil {
			if err := h.registry.Remove(r.Context(), holder.Key()); err != nil {
				h.logger.Warn("remove session", slog.Any("error", err))
			}
		}
		holder.Logout(r.Context())
	}
	h.sessions.ClearCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

// handleSession reports the restore-aware session status. The session
// middleware completed the restore before this runs, so the answer is always
// decided: the SPA route guard never flashes the login screen while waiting.
func (h *Handler) handleSession(w http.ResponseWriter, r *http.Request) {
	holder := session.FromContext(r.Context())
	if holder == nil || !holder.Authenticated() {
		httpx.JSON(w, http.StatusOK, sessionResponse{Authenticated: false})
		return
	}
	httpx.JSON(w, http.StatusOK, sessionResponse{
		Authenticated:     true,
		User:              holder.Identity(),
		PermissionsLoaded: holder.SnapshotLoaded(),
		CSRFToken:         h.csrfToken(holder),
	})
}

type authorizeResponse struct {
	Capabilities map[string]bool `json:"capabilities,omitempty"`
	Permissions  map[string]bool `json:"permissions,omitempty"`
}

// handleAuthorize answers UI gating queries: which of the asked capabilities
// and permissions the current session holds. Unauthenticated sessions get a
// full set of denials rather than an error so conditional rendering stays
// simple.
func (h *Handler) handleAuthorize(w http.ResponseWriter, r *http.Request) {
	holder := session.FromContext(r.Context())
	query := r.URL.Query()
	resp := authorizeResponse{}

	if caps := query["capability"]; len(caps) > 0 {
		resp.Capabilities = make(map[string]bool, len(caps))
		for _, c := range caps {
			resp.Capabilities[c] = holder != nil && holder.HasRole(c)
		}
	}
	if perms := query["permission"]; len(perms) > 0 {
		resp.Permissions = make(map[string]bool, len(perms))
		for _, p := range perms {
			resp.Permissions[p] = holder != nil && holder.HasPermission(p)
		}
	}
	httpx.JSON(w, http.StatusOK, resp)
}

type refreshRequest struct {
	RoleID int64 `json:"role_id"`
}

// handleRefresh replaces the session's permission snapshot on demand. When
// the body names a role whose permissions were just edited, a fan-out task
// refreshes every active session holding that role.
func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	holder := session.FromContext(r.Context())
	if holder == nil || !holder.Authenticated() {
		httpx.RespondError(w, shared.ErrUnauthenticated)
		return
	}

	if err := holder.RefreshPermissions(r.Context()); err != nil {
		h.logger.Error("refresh permissions", slog.Any("error", err))
		httpx.Problem(w, http.StatusBadGateway, "Refresh Failed", "could not fetch permissions from the platform")
		return
	}
	identity := holder.Identity()
	h.recordAudit(r.Context(), identity.ID, shared.AuditPermissionsRefresh, identity.Email)

	var form refreshRequest
	if r.Body != nil && r.ContentLength > 0 {
		if err := httpx.DecodeJSON(r, &form); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
			return
		}
	}
	if form.RoleID > 0 && h.enqueuer != nil {
		task, err := jobs.NewPermissionsRefreshTask(jobs.PermissionsRefreshPayload{RoleID: form.RoleID})
		if err == nil {
			_, err = h.enqueuer.EnqueueContext(r.Context(), task)
		}
		if err != nil {
			h.logger.Warn("enqueue permissions refresh", slog.Int64("role_id", form.RoleID), slog.Any("error", err))
		}
	}

	httpx.JSON(w, http.StatusOK, sessionResponse{
		Authenticated:     true,
		User:              identity,
		PermissionsLoaded: holder.SnapshotLoaded(),
		CSRFToken:         h.csrfToken(holder),
	})
}

func (h *Handler) recordAudit(ctx context.Context, actorID int64, action, subject string) {
	if h.audit == nil {
		return
	}
	err := h.audit.Record(ctx, shared.AuditLog{
		ActorID: actorID,
		Action:  action,
		Subject: subject,
		At:      time.Now().UTC(),
	})
	if err != nil {
		h.logger.Warn("audit record", slog.String("action", action), slog.Any("error", err))
	}
}
