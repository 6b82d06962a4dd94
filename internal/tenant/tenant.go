// Package tenant resolves the caller's tenant. Registration and access gating live outside this
// service; everything here trusts the identifier it is handed once it is well formed.
package tenant

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strings"

	"github.com/invix-erp/invix/internal/platform/httpx"
	"github.com/invix-erp/invix/internal/shared"
)

// HeaderName carries the tenant identifier on inbound requests.
const HeaderName = "X-Tenant-ID"

var idPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]{0,63}$`)

// ErrInvalidID indicates a missing or malformed tenant identifier.
var ErrInvalidID = fmt.Errorf("%w: tenant: invalid tenant id", shared.ErrValidation)

// Validate checks the identifier shape.
func Validate(id string) error {
	if !idPattern.MatchString(id) {
		return ErrInvalidID
	}
	return nil
}

type contextKey struct{}

// ContextWithID stores the tenant id in context.
func ContextWithID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

// IDFromContext extracts the tenant id from context.
func IDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(contextKey{}).(string)
	return id, ok && id != ""
}

// Resolver maps a request to a tenant identifier.
type Resolver interface {
	Resolve(r *http.Request) (string, error)
}

// HeaderResolver reads the tenant from HeaderName.
type HeaderResolver struct{}

// Resolve implements Resolver.
func (HeaderResolver) Resolve(r *http.Request) (string, error) {
	id := strings.TrimSpace(r.Header.Get(HeaderName))
	if err := Validate(id); err != nil {
		return "", err
	}
	return id, nil
}

// Middleware rejects requests without a resolvable tenant.
func Middleware(resolver Resolver, logger *slog.Logger) func(http.Handler) http.Handler {
	if resolver == nil {
		resolver = HeaderResolver{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, err := resolver.Resolve(r)
			if err != nil {
				if logger != nil {
					logger.Warn("tenant resolve", slog.String("path", r.URL.Path), slog.Any("error", err))
				}
				httpx.Problem(w, http.StatusBadRequest, "Tenant Required", err.Error())
				return
			}
			next.ServeHTTP(w, r.WithContext(ContextWithID(r.Context(), id)))
		})
	}
}
