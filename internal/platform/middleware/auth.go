package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
)

// IdentityValidator resolves a bearer token into the caller's identity and
// venue association. The core trusts this result without re-validating.
type IdentityValidator interface {
	ValidateToken(tokenString string) (*Identity, error)
}

// Identity is the pre-validated caller context supplied by the identity
// provider: who is calling, which venue they belong to, and their user group
// for allocation rules.
type Identity struct {
	UserID    string
	VenueID   string
	UserGroup string
	Role      string
}

type contextKeyUserID struct{}
type contextKeyVenueID struct{}
type contextKeyUserGroup struct{}
type contextKeyRole struct{}

// Exported for use in handlers and test helpers.
var (
	ContextKeyUserID    = contextKeyUserID{}
	ContextKeyVenueID   = contextKeyVenueID{}
	ContextKeyUserGroup = contextKeyUserGroup{}
	ContextKeyRole      = contextKeyRole{}
)

// GetUserID retrieves the authenticated user ID from the context.
func GetUserID(ctx context.Context) string {
	userID, ok := ctx.Value(ContextKeyUserID).(string)
	if !ok {
		return ""
	}
	return userID
}

// GetVenueID retrieves the caller's venue association from the context.
func GetVenueID(ctx context.Context) string {
	venueID, ok := ctx.Value(ContextKeyVenueID).(string)
	if !ok {
		return ""
	}
	return venueID
}

// GetUserGroup retrieves the caller's user group from the context.
func GetUserGroup(ctx context.Context) string {
	group, ok := ctx.Value(ContextKeyUserGroup).(string)
	if !ok {
		return ""
	}
	return group
}

// GetRole retrieves the caller's venue role from the context.
func GetRole(ctx context.Context) string {
	role, ok := ctx.Value(ContextKeyRole).(string)
	if !ok {
		return ""
	}
	return role
}

func RequireAuth(validator IdentityValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			const bearerPrefix = "Bearer "
			if token, ok := strings.CutPrefix(authHeader, bearerPrefix); ok {
				identity, err := validator.ValidateToken(token)
				if err != nil {
					ctx := r.Context()
					logger.WarnContext(ctx, "unauthorized access - invalid token",
						"error", err,
						"request_id", GetRequestID(ctx),
					)
					writeUnauthorized(w, "Invalid or expired token")
					return
				}

				ctx := r.Context()
				ctx = context.WithValue(ctx, ContextKeyUserID, identity.UserID)
				ctx = context.WithValue(ctx, ContextKeyVenueID, identity.VenueID)
				ctx = context.WithValue(ctx, ContextKeyUserGroup, identity.UserGroup)
				ctx = context.WithValue(ctx, ContextKeyRole, identity.Role)

				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			ctx := r.Context()
			logger.WarnContext(ctx, "unauthorized access - missing token",
				"request_id", GetRequestID(ctx),
			)
			writeUnauthorized(w, "Missing or invalid Authorization header")
		})
	}
}

// RequireRole gates staff-only operations (redeem, validate) on the venue
// role resolved by RequireAuth.
func RequireRole(role string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			got := GetRole(ctx)
			if got != role && got != "admin" {
				logger.WarnContext(ctx, "forbidden - insufficient role",
					"required", role,
					"got", got,
					"request_id", GetRequestID(ctx),
				)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusForbidden)
				_, _ = w.Write([]byte(`{"error":"forbidden","error_description":"Insufficient role"}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeUnauthorized(w http.ResponseWriter, description string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"unauthorized","error_description":"` + description + `"}`))
}
