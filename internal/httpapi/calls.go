package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"callbridge/internal/apperr"
	"callbridge/internal/calls"
	"callbridge/internal/phone"
)

type startCallRequest struct {
	// DestinationID defaults to the session's selected Destination.
	DestinationID string `json:"destination_id"`
}

type callResponse struct {
	CallID string      `json:"call_id"`
	State  calls.State `json:"state"`
}

type callDetail struct {
	calls.Call
	// FeedbackToken is set once a completed call has a questionnaire.
	FeedbackToken string `json:"feedback_token,omitempty"`
}

// StartCall places an Instant Call to the session's number.
func (h Handlers) StartCall(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	var req startCallRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
			return
		}
	}
	if req.DestinationID == "" {
		req.DestinationID = sess.SelectedDestinationID
	}
	num, err := phone.Parse(sess.Phone, "")
	if err != nil {
		writeError(c, err)
		return
	}

	call, err := h.Calls.StartInstant(c.Request.Context(), calls.InstantRequest{
		SessionID:     sess.ID,
		Phone:         num,
		PhoneHash:     sess.PhoneHash,
		DestinationID: req.DestinationID,
		IP:            clientIP(c),
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, callResponse{CallID: call.ID, State: call.State})
}

// GetCall returns a call owned by the session's number.
func (h Handlers) GetCall(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	call, err := h.Calls.Get(c.Request.Context(), c.Param("id"))
	if err != nil && apperr.KindOf(err) != apperr.KindNotFound {
		writeError(c, err)
		return
	}
	if err != nil || call.PhoneHash != sess.PhoneHash {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "call not found"})
		return
	}
	out := callDetail{Call: call}
	if h.Feedback != nil && call.State == calls.StateCompleted {
		f, err := h.Feedback.ForCall(c.Request.Context(), call.ID)
		switch {
		case err == nil:
			out.FeedbackToken = f.Token
		case apperr.KindOf(err) != apperr.KindNotFound:
			writeError(c, err)
			return
		}
	}
	c.JSON(http.StatusOK, out)
}

// CancelCall ends a call before or during bridging.
func (h Handlers) CancelCall(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	call, err := h.Calls.Cancel(c.Request.Context(), c.Param("id"), sess.PhoneHash)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, callResponse{CallID: call.ID, State: call.State})
}
