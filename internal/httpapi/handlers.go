package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"

	"callbridge/internal/apperr"
	"callbridge/internal/auth"
	"callbridge/internal/calls"
	"callbridge/internal/feedback"
	"callbridge/internal/ratelimit"
	"callbridge/internal/recommender"
	"callbridge/internal/reporting"
	"callbridge/internal/schedule"
	"callbridge/internal/session"
	"callbridge/internal/verification"
)

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.
type Handlers struct {
	Verification *verification.Service
	Sessions     session.Store
	Destinations *recommender.Service
	Calls        *calls.Orchestrator
	Schedules    *schedule.Service
	Reports      *reporting.Service
	Feedback     *feedback.Service
	Clock        clockwork.Clock

	// AllCountriesDefault makes suggestions draw from every country when
	// the request names none.
	AllCountriesDefault bool
}

func (h Handlers) now() clockwork.Clock {
	if h.Clock == nil {
		return clockwork.NewRealClock()
	}
	return h.Clock
}

// session loads the server-side session behind the verified token.
func (h Handlers) session(c *gin.Context) (session.Session, bool) {
	id, err := auth.IdentityFrom(c.Request.Context())
	if err != nil || id.SessionID == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "session required"})
		return session.Session{}, false
	}
	sess, err := h.Sessions.Get(c.Request.Context(), id.SessionID)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindNotFound {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "session expired"})
			return session.Session{}, false
		}
		writeError(c, err)
		return session.Session{}, false
	}
	return sess, true
}

// clientIP prefers the address resolved once by ratelimit.ClientIP.
func clientIP(c *gin.Context) string {
	if ip := ratelimit.ClientIPFromContext(c.Request.Context()); ip != "" {
		return ip
	}
	return c.ClientIP()
}

func Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
