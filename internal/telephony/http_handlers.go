package telephony

import (
	"errors"
	"net/http"
	"time"

	"callbridge/internal/apperr"
	"callbridge/pkg/logger"

	"github.com/gin-gonic/gin"
)

// TwilioWebhookHandler converts Twilio callbacks to Events and hands them to
// the sink. No call logic here.
type TwilioWebhookHandler struct {
	Sink EventSink

	// AuthToken enables X-Twilio-Signature validation when set.
	AuthToken string
	// PublicBaseURL is the externally visible origin Twilio signed against.
	PublicBaseURL string

	Now func() time.Time
}

func (h TwilioWebhookHandler) Register(r gin.IRoutes) {
	r.POST("/webhooks/twilio/voice", h.HandleVoice)
	r.POST("/webhooks/twilio/status", h.HandleStatus)
	r.POST("/webhooks/twilio/gather", h.HandleGather)
}

// HandleVoice answers the leg with hold TwiML and reports it answered. A leg
// whose call already ended is hung up.
func (h TwilioWebhookHandler) HandleVoice(c *gin.Context) {
	form, ok := h.parse(c)
	if !ok {
		return
	}
	h.holdOrHangup(c, form.AnsweredEvent(h.now()))
}

func (h TwilioWebhookHandler) HandleStatus(c *gin.Context) {
	form, ok := h.parse(c)
	if !ok {
		return
	}
	if ev, ok := form.StatusEvent(h.now()); ok {
		_ = h.deliver(c, ev)
	}
	c.Status(http.StatusNoContent)
}

// HandleGather reports the digit and keeps the leg on hold until the next
// prompt or bridge update arrives.
func (h TwilioWebhookHandler) HandleGather(c *gin.Context) {
	form, ok := h.parse(c)
	if !ok {
		return
	}
	h.holdOrHangup(c, form.DigitsEvent(h.now()))
}

func (h TwilioWebhookHandler) parse(c *gin.Context) (TwilioCallbackForm, bool) {
	log := logger.FromGin(c)
	if h.Sink == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "event sink not configured"})
		return TwilioCallbackForm{}, false
	}
	form, err := ParseTwilioCallback(c.Request)
	if err != nil {
		log.Warn("twilio webhook parse failed", "err", err)
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid form"})
		return TwilioCallbackForm{}, false
	}
	if h.AuthToken != "" {
		full := h.PublicBaseURL + c.Request.URL.RequestURI()
		if !ValidTwilioSignature(h.AuthToken, full, c.Request.PostForm, c.GetHeader("X-Twilio-Signature")) {
			log.Warn("twilio signature mismatch", "path", c.Request.URL.Path)
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "invalid signature"})
			return TwilioCallbackForm{}, false
		}
	}
	return form, true
}

// deliver never fails the webhook: Twilio retries are not useful for events
// about calls we no longer track.
func (h TwilioWebhookHandler) deliver(c *gin.Context, ev Event) error {
	err := h.Sink.HandleEvent(c.Request.Context(), ev)
	if err != nil {
		logger.FromGin(c).Warn("carrier event dropped", "call_id", ev.CallID, "type", ev.Type, "err", err)
	}
	return err
}

func (h TwilioWebhookHandler) holdOrHangup(c *gin.Context, ev Event) {
	if err := h.deliver(c, ev); errors.Is(err, apperr.ErrNotFound) {
		writeTwiML(c, RenderHangup)
		return
	}
	writeTwiML(c, RenderHold)
}

func (h TwilioWebhookHandler) now() time.Time {
	if h.Now == nil {
		return time.Now()
	}
	return h.Now()
}

func writeTwiML(c *gin.Context, render func() (string, error)) {
	twiml, err := render()
	if err != nil {
		logger.FromGin(c).Error("twiml render failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "twiml failed"})
		return
	}
	c.Header("Content-Type", "application/xml")
	c.String(http.StatusOK, twiml)
}
