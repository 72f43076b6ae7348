package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"

	"callbridge/internal/apperr"
)

const authorizationHeader = "Authorization"
const bearerPrefix = "Bearer "

// SessionChecker reports whether a session id is still live server-side.
// Tokens of revoked sessions are rejected even before they expire.
type SessionChecker interface {
	Active(ctx context.Context, sessionID string) (bool, error)
}

// RequireSession verifies a User-Session token and injects the identity.
// checker may be nil, in which case revocation is not consulted.
func RequireSession(m *Manager, checker SessionChecker, clk clockwork.Clock) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := verifyBearer(c, m, TokenTypeSession, clk)
		if !ok {
			return
		}
		if checker != nil {
			active, err := checker.Active(c.Request.Context(), claims.ID)
			if err != nil {
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
				return
			}
			if !active {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "session revoked"})
				return
			}
		}
		setIdentity(c, Identity{SessionID: claims.ID, Phone: claims.Phone})
		c.Next()
	}
}

// RequireOperator verifies an operator token. RBAC checks belong to internal/rbac.
func RequireOperator(m *Manager, clk clockwork.Clock) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := verifyBearer(c, m, TokenTypeOperator, clk)
		if !ok {
			return
		}
		setIdentity(c, Identity{Subject: claims.Subject, Role: claims.Role})
		c.Next()
	}
}

func verifyBearer(c *gin.Context, m *Manager, typ TokenType, clk clockwork.Clock) (Claims, bool) {
	raw := strings.TrimSpace(c.GetHeader(authorizationHeader))
	if raw == "" || !strings.HasPrefix(raw, bearerPrefix) {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
		return Claims{}, false
	}
	claims, err := m.Verify(strings.TrimPrefix(raw, bearerPrefix), typ, clk.Now())
	if err != nil {
		msg := "invalid token"
		if errors.Is(err, apperr.ErrExpired) {
			msg = apperr.PublicMessage(err)
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": msg})
		return Claims{}, false
	}
	return claims, true
}

func setIdentity(c *gin.Context, id Identity) {
	c.Request = c.Request.WithContext(WithIdentity(c.Request.Context(), id))
	c.Set("identity", id)
}
