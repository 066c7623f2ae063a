package auth

import (
	"net/http"
	"slices"
	"strings"

	"github.com/KevinKickass/OpenRotoCore/internal/types"
	"github.com/gin-gonic/gin"
)

const identityKey = "identity"

// AuthMiddleware requires a bearer token and stores the caller's Identity on the context.
func (a *AuthService) AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				types.NewErrorResponse("AUTH_401", "missing authorization header", nil))
			return
		}

		scheme, token, ok := strings.Cut(authHeader, " ")
		if !ok || scheme != "Bearer" || token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				types.NewErrorResponse("AUTH_401", "invalid authorization header format", nil))
			return
		}

		identity, err := a.ValidateToken(c.Request.Context(), token, c.ClientIP(), c.GetHeader("User-Agent"))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				types.NewErrorResponse("AUTH_401", "invalid or expired token", nil))
			return
		}

		c.Set(identityKey, identity)
		c.Next()
	}
}

// RequirePermission aborts with 403 unless the caller holds required.
func RequirePermission(required Permission) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity := GetIdentity(c)
		if identity == nil {
			c.AbortWithStatusJSON(http.StatusForbidden,
				types.NewErrorResponse("AUTH_403", "no permissions found", nil))
			return
		}

		if !slices.Contains(identity.Permissions, required) {
			c.AbortWithStatusJSON(http.StatusForbidden,
				types.NewErrorResponse("AUTH_403", "insufficient permissions",
					map[string]interface{}{"required": string(required)}))
			return
		}

		c.Next()
	}
}

// RequireMachineScope aborts with 403 when a machine-bound caller addresses another
// machine through the route parameter param. Routes without the parameter pass.
func RequireMachineScope(param string) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity := GetIdentity(c)
		if identity == nil || identity.MachineID == "" {
			c.Next()
			return
		}

		if target := c.Param(param); target != "" && target != identity.MachineID {
			c.AbortWithStatusJSON(http.StatusForbidden,
				types.NewErrorResponse("AUTH_403", "token is bound to another machine",
					map[string]interface{}{"machine_id": identity.MachineID}))
			return
		}

		c.Next()
	}
}

func GetIdentity(c *gin.Context) *Identity {
	if v, ok := c.Get(identityKey); ok {
		if identity, ok := v.(*Identity); ok {
			return identity
		}
	}
	return nil
}

// SetIdentity is used by callers that authenticate outside AuthMiddleware.
func SetIdentity(c *gin.Context, identity *Identity) {
	c.Set(identityKey, identity)
}
