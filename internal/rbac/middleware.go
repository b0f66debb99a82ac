package rbac

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/meridian-erp/meridian-erp/internal/platform/httpx"
)

type contextKey struct{}

// ContextWithPrincipal stores the principal in the context.
func ContextWithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, contextKey{}, p)
}

// PrincipalFromContext returns the principal or a zero value.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(contextKey{}).(Principal)
	return p, ok
}

// Headers populated by the identity layer in front of this service.
const (
	HeaderUserID = "X-User-Id"
	HeaderRole   = "X-User-Role"
	HeaderBranch = "X-Branch-Id"
)

// Middleware resolves the upstream-authenticated principal and enforces
// capabilities on routes.
type Middleware struct {
	Logger *slog.Logger
}

// Authenticate extracts the principal from identity headers. Requests without
// a resolvable principal are rejected before reaching any handler.
func (m Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, err := strconv.ParseInt(r.Header.Get(HeaderUserID), 10, 64)
		if err != nil || userID <= 0 {
			httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "missing caller identity")
			return
		}
		role, err := ParseRole(r.Header.Get(HeaderRole))
		if err != nil {
			if m.Logger != nil {
				m.Logger.Warn("rejected unknown role", slog.String("role", r.Header.Get(HeaderRole)))
			}
			httpx.Problem(w, http.StatusForbidden, "Forbidden", "unknown role")
			return
		}
		var branchID int64
		if raw := r.Header.Get(HeaderBranch); raw != "" {
			branchID, err = strconv.ParseInt(raw, 10, 64)
			if err != nil || branchID < 0 {
				httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid branch scope")
				return
			}
		}
		p := Principal{UserID: userID, Role: role, BranchID: branchID}
		next.ServeHTTP(w, r.WithContext(ContextWithPrincipal(r.Context(), p)))
	})
}

// Require guards a route group with a capability check.
func (m Middleware) Require(cap Capability) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := PrincipalFromContext(r.Context())
			if !ok {
				httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "missing caller identity")
				return
			}
			if !p.Role.Can(cap) {
				if m.Logger != nil {
					m.Logger.Warn("capability denied",
						slog.Int64("user_id", p.UserID),
						slog.String("role", string(p.Role)),
						slog.String("capability", string(cap)))
				}
				httpx.Problem(w, http.StatusForbidden, "Forbidden", "capability not granted")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
