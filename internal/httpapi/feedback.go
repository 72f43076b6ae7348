package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"callbridge/internal/apperr"
	"callbridge/internal/feedback"
)

// GetFeedback tells the questionnaire page whether the token can still be
// used and who the User talked to.
func (h Handlers) GetFeedback(c *gin.Context) {
	st, err := h.Feedback.Status(c.Request.Context(), c.Param("token"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

// SubmitFeedback stores the answers for a token. The token is the only
// credential, so no session is required.
func (h Handlers) SubmitFeedback(c *gin.Context) {
	var sub feedback.Submission
	if err := c.ShouldBindJSON(&sub); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	err := h.Feedback.Submit(c.Request.Context(), c.Param("token"), sub)
	if apperr.KindOf(err) == apperr.KindExpired {
		c.AbortWithStatusJSON(http.StatusGone, gin.H{"error": apperr.PublicMessage(err)})
		return
	}
	if err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
