package httpx

import (
	"errors"
	"net/http"

	"github.com/meridian-commerce/meridian-admin/internal/shared"
)

// Machine-readable problem types surfaced to the dashboard.
const (
	ProblemAccountBlocked = "account_blocked"
)

// RespondError maps domain errors to HTTP responses using RFC7807.
// Policy denials are ordinary outcomes, not server failures: a blocked
// account is 403 with a distinguishable type so the UI can show a specific
// message, bad credentials are a plain 401.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, shared.ErrAccountBlocked):
		TypedProblem(w, http.StatusForbidden, ProblemAccountBlocked, "Account Blocked", "this account is not allowed to sign in")
	case errors.Is(err, shared.ErrInvalidCredentials):
		Problem(w, http.StatusUnauthorized, "Unauthorized", "login did not succeed")
	case errors.Is(err, shared.ErrUnauthenticated):
		Problem(w, http.StatusUnauthorized, "Unauthorized", "authentication required")
	case errors.Is(err, shared.ErrCSRFTokenMissing), errors.Is(err, shared.ErrCSRFTokenMismatch):
		Problem(w, http.StatusForbidden, "Forbidden", "csrf token invalid")
	case errors.Is(err, shared.ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
