package httpapi

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"callbridge/internal/apperr"
	"callbridge/internal/config"
	"callbridge/internal/phone"
	"callbridge/internal/schedule"
)

// spanJSON is a weekly span on the wire: day 0 is Sunday, times are HH:MM.
type spanJSON struct {
	Day   int    `json:"day"`
	Start string `json:"start"`
	End   string `json:"end"`
}

type scheduleRequest struct {
	TimeZone      string     `json:"timezone"`
	Spans         []spanJSON `json:"spans"`
	DestinationID string     `json:"destination_id"`
}

type scheduleResponse struct {
	ID            string     `json:"id"`
	TimeZone      string     `json:"timezone"`
	Spans         []spanJSON `json:"spans"`
	DestinationID string     `json:"destination_id"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

func toSpans(in []spanJSON) ([]schedule.Span, error) {
	out := make([]schedule.Span, 0, len(in))
	for i, s := range in {
		start, err := config.ParseClock(s.Start)
		if err != nil {
			return nil, apperr.Validation("span %d: %v", i, err)
		}
		end, err := config.ParseClock(s.End)
		if err != nil {
			return nil, apperr.Validation("span %d: %v", i, err)
		}
		out = append(out, schedule.Span{Day: time.Weekday(s.Day), Start: start, End: end})
	}
	return out, nil
}

func clockString(m int) string { return fmt.Sprintf("%02d:%02d", m/60, m%60) }

func scheduleJSON(s schedule.Schedule) scheduleResponse {
	spans := make([]spanJSON, 0, len(s.Spans))
	for _, sp := range s.Spans {
		spans = append(spans, spanJSON{Day: int(sp.Day), Start: clockString(sp.Start), End: clockString(sp.End)})
	}
	return scheduleResponse{ID: s.ID, TimeZone: s.TimeZone, Spans: spans, DestinationID: s.DestinationID, UpdatedAt: s.UpdatedAt}
}

// PutSchedule replaces the session number's Schedule.
func (h Handlers) PutSchedule(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	var req scheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	spans, err := toSpans(req.Spans)
	if err != nil {
		writeError(c, err)
		return
	}
	num, err := phone.Parse(sess.Phone, "")
	if err != nil {
		writeError(c, err)
		return
	}
	s, err := h.Schedules.Submit(c.Request.Context(), schedule.SubmitRequest{
		Phone:         num,
		PhoneHash:     sess.PhoneHash,
		TimeZone:      req.TimeZone,
		Spans:         spans,
		DestinationID: req.DestinationID,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, scheduleJSON(s))
}

func (h Handlers) GetSchedule(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	s, err := h.Schedules.Get(c.Request.Context(), sess.PhoneHash)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, scheduleJSON(s))
}

func (h Handlers) DeleteSchedule(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	if err := h.Schedules.Delete(c.Request.Context(), sess.PhoneHash); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
