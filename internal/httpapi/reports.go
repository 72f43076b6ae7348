package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"callbridge/internal/reporting"
)

const defaultReportSpan = 24 * time.Hour

// reportRange reads from/to (RFC 3339). Missing bounds default to the last
// day.
func (h Handlers) reportRange(c *gin.Context) (reporting.TimeRange, bool) {
	now := h.now().Now().UTC()
	r := reporting.TimeRange{From: now.Add(-defaultReportSpan), To: now}
	for _, p := range []struct {
		name string
		dst  *time.Time
	}{{"from", &r.From}, {"to", &r.To}} {
		v := c.Query(p.name)
		if v == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": p.name + " must be RFC 3339"})
			return reporting.TimeRange{}, false
		}
		*p.dst = t.UTC()
	}
	return r, true
}

func (h Handlers) CallsReport(c *gin.Context) {
	r, ok := h.reportRange(c)
	if !ok {
		return
	}
	out, err := h.Reports.CallsSummary(c.Request.Context(), reporting.CallsSummaryRequest{Range: r, Kind: c.Query("kind")})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h Handlers) VerificationsReport(c *gin.Context) {
	r, ok := h.reportRange(c)
	if !ok {
		return
	}
	out, err := h.Reports.VerificationSummary(c.Request.Context(), r.From)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h Handlers) CostsReport(c *gin.Context) {
	r, ok := h.reportRange(c)
	if !ok {
		return
	}
	out, err := h.Reports.CostSummary(c.Request.Context(), reporting.CostSummaryRequest{Range: r})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h Handlers) SchedulesReport(c *gin.Context) {
	r, ok := h.reportRange(c)
	if !ok {
		return
	}
	out, err := h.Reports.ScheduleSummary(c.Request.Context(), r.From)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}
