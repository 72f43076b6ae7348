package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

type verificationRequest struct {
	PhoneNumber string `json:"phone_number"`
}

type confirmRequest struct {
	AttemptID string `json:"attempt_id"`
	Code      string `json:"code"`
}

type confirmResponse struct {
	SessionToken string    `json:"session_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// RequestVerification sends a code to the given number.
func (h Handlers) RequestVerification(c *gin.Context) {
	var req verificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	id, err := h.Verification.Request(c.Request.Context(), req.PhoneNumber, clientIP(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"attempt_id": id})
}

// ConfirmVerification exchanges a correct code for a session token.
func (h Handlers) ConfirmVerification(c *gin.Context) {
	var req confirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.AttemptID == "" || req.Code == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "attempt_id and code required"})
		return
	}
	res, err := h.Verification.Confirm(c.Request.Context(), req.AttemptID, req.Code, clientIP(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, confirmResponse{SessionToken: res.SessionToken, ExpiresAt: res.ExpiresAt})
}

// Logout revokes the current session. The token stops working at once.
func (h Handlers) Logout(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	if err := h.Sessions.Revoke(c.Request.Context(), sess.ID); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
