package httpapi

import (
	"errors"
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"callbridge/internal/apperr"
	"callbridge/internal/auth"
	"callbridge/internal/reporting"
	"callbridge/pkg/logger"
)

// writeError maps err to a status code and a message safe for Users.
func writeError(c *gin.Context, err error) {
	log := logger.FromGin(c)
	switch {
	case errors.Is(err, auth.ErrInvalidToken):
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	case errors.Is(err, reporting.ErrInvalidRequest):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid report range"})
		return
	}

	switch apperr.KindOf(err) {
	case apperr.KindThrottled:
		ra, _ := apperr.RetryAfterOf(err)
		secs := int(math.Ceil(ra.Seconds()))
		if secs < 1 {
			secs = 1
		}
		c.Header("Retry-After", strconv.Itoa(secs))
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"error":       apperr.PublicMessage(err),
			"retry_after": secs,
		})
	case apperr.KindValidation:
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": apperr.PublicMessage(err)})
	case apperr.KindExpired:
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": apperr.PublicMessage(err)})
	case apperr.KindNotFound:
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": apperr.PublicMessage(err)})
	case apperr.KindConflict:
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": apperr.PublicMessage(err)})
	case apperr.KindCarrier:
		log.Error("carrier failure", "err", err)
		c.AbortWithStatusJSON(http.StatusBadGateway, gin.H{"error": apperr.PublicMessage(err)})
	default:
		log.Error("unhandled error", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
