package identity

import (
	"context"
	"net/http"
	"strconv"

	appErrors "github.com/videobot/broadcast-backend/internal/errors"
)

// Operator roles.
const (
	RoleSuperAdmin = "super_admin"
	RoleAdmin      = "admin"
	RoleModerator  = "moderator"
	RoleViewer     = "viewer"
)

// Operator is the authenticated admin acting on a request.
type Operator struct {
	ID   int
	Role string
}

// IsElevated reports whether the operator may approve broadcasts and send
// unapproved ones.
func (o Operator) IsElevated() bool {
	return o.Role == RoleSuperAdmin || o.Role == RoleAdmin
}

// Provider resolves the acting operator from a request. Authentication
// itself lives outside this system; the provider only consumes its result.
type Provider interface {
	FromRequest(r *http.Request) (Operator, error)
}

// HeaderProvider trusts identity headers set by the authenticating proxy.
type HeaderProvider struct{}

func (HeaderProvider) FromRequest(r *http.Request) (Operator, error) {
	idStr := r.Header.Get("X-Operator-Id")
	role := r.Header.Get("X-Operator-Role")
	if idStr == "" || role == "" {
		return Operator{}, appErrors.NewPermission("missing operator identity")
	}
	id, err := strconv.Atoi(idStr)
	if err != nil {
		return Operator{}, appErrors.NewPermission("malformed operator identity")
	}
	return Operator{ID: id, Role: role}, nil
}

type contextKey struct{}

// Middleware resolves the operator once per request and rejects requests
// without one. Handlers read it back with FromContext.
func Middleware(p Provider) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			op, err := p.FromRequest(r)
			if err != nil {
				http.Error(w, "operator identity required", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithOperator(r.Context(), op)))
		})
	}
}

// WithOperator stores the operator on the context.
func WithOperator(ctx context.Context, op Operator) context.Context {
	return context.WithValue(ctx, contextKey{}, op)
}

// FromContext returns the operator placed by Middleware.
func FromContext(ctx context.Context) (Operator, bool) {
	op, ok := ctx.Value(contextKey{}).(Operator)
	return op, ok
}
