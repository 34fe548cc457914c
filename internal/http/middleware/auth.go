// README: Firebase ID token authentication and role gates.
package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"fitdash/internal/apperr"
	"fitdash/internal/infra"
	"fitdash/internal/modules/user"
	"fitdash/internal/types"
)

const (
	callerUIDKey  = "caller_uid"
	callerRoleKey = "caller_role"
)

// RoleResolver looks up a caller's role. *user.Directory satisfies it.
type RoleResolver interface {
	RoleOf(ctx context.Context, id types.ID) (user.Role, error)
}

// Auth requires a valid "Authorization: Bearer <Firebase ID token>" header.
func Auth(verifier infra.TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(raw) == "" {
			AbortWithError(c, apperr.Unauthenticated("missing bearer token"))
			return
		}
		token, err := verifier.VerifyIDToken(c.Request.Context(), strings.TrimSpace(raw))
		if err != nil || token == nil || token.UID == "" {
			AbortWithError(c, apperr.Unauthenticated("invalid token"))
			return
		}
		c.Set(callerUIDKey, types.ID(token.UID))
		c.Next()
	}
}

// RequireRole lets the request through only when the caller's recorded role
// is one of allowed.
func RequireRole(roles RoleResolver, allowed ...user.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		role, err := roles.RoleOf(c.Request.Context(), CallerUID(c))
		if err != nil {
			AbortWithError(c, apperr.Internal(err, "role lookup failed"))
			return
		}
		for _, r := range allowed {
			if r == role {
				c.Set(callerRoleKey, role)
				c.Next()
				return
			}
		}
		AbortWithError(c, apperr.PermissionDenied("%s role cannot call this endpoint", role))
	}
}

func CallerUID(c *gin.Context) types.ID {
	v, _ := c.Get(callerUIDKey)
	id, _ := v.(types.ID)
	return id
}

// CallerRole is empty unless a RequireRole gate ran.
func CallerRole(c *gin.Context) user.Role {
	v, _ := c.Get(callerRoleKey)
	role, _ := v.(user.Role)
	return role
}
