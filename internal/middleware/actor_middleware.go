package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"acadgen/internal/auth"
	"acadgen/internal/models"
	"acadgen/internal/utils"
)

// ContextKey defines the type for context keys to avoid conflicts
type ContextKey string

const (
	// ActorClaimsKey is the context key for the authenticated actor
	ActorClaimsKey ContextKey = "actorClaims"
)

// AuditRecorder receives audit entries for refused requests.
// Satisfied by recorder.Recorder.
type AuditRecorder interface {
	RecordAudit(ctx context.Context, entry *models.AuditEntry)
}

// ActorMiddleware validates portal JWTs, embeds the actor claims into
// the request context, and records an audit entry for every refusal
func ActorMiddleware(secret []byte, audits AuditRecorder, requiredRoles ...auth.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString := r.Header.Get("Authorization")
			if tokenString == "" {
				utils.RespondWithError(w, http.StatusUnauthorized, "Missing authentication token")
				return
			}
			tokenString = strings.TrimPrefix(tokenString, "Bearer ")

			claims, err := auth.ValidateActorJWT(tokenString, secret)
			if err != nil {
				recordDenied(r, audits, "", "invalid or expired token")
				utils.RespondWithError(w, http.StatusUnauthorized, "Invalid or expired token")
				return
			}

			if len(requiredRoles) > 0 && !hasAnyRole(claims, requiredRoles) {
				recordDenied(r, audits, claims.ActorID(), "insufficient role")
				utils.RespondWithError(w, http.StatusForbidden, "Insufficient permissions")
				return
			}

			ctx := context.WithValue(r.Context(), ActorClaimsKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func hasAnyRole(claims *auth.ActorClaims, required []auth.Role) bool {
	for _, requiredRole := range required {
		for _, actorRoleStr := range claims.Roles {
			if auth.Role(actorRoleStr).HasPermission(requiredRole) {
				return true
			}
		}
	}
	return false
}

func recordDenied(r *http.Request, audits AuditRecorder, actorID, reason string) {
	if audits == nil {
		return
	}
	audits.RecordAudit(r.Context(), &models.AuditEntry{
		ID:        uuid.New(),
		ActorID:   actorID,
		Action:    models.AuditActionDeniedAccess,
		ObjectRef: r.URL.Path,
		Changes:   models.JSONB{"reason": reason, "method": r.Method},
		Origin:    r.RemoteAddr,
		CreatedAt: time.Now(),
	})
}

// GetActorClaims retrieves the actor claims from the request context
func GetActorClaims(ctx context.Context) (*auth.ActorClaims, bool) {
	claims, ok := ctx.Value(ActorClaimsKey).(*auth.ActorClaims)
	return claims, ok
}
