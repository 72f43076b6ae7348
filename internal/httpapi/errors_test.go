package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"callbridge/internal/apperr"
	"callbridge/internal/auth"
)

func TestWriteErrorMapping(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cases := []struct {
		err  error
		code int
		body string
	}{
		{apperr.Throttled(1500*time.Millisecond, "rate limit exceeded"), http.StatusTooManyRequests, "rate limit exceeded"},
		{apperr.Validation("empty schedule"), http.StatusBadRequest, "empty schedule"},
		{apperr.Expired("code expired, request a new one"), http.StatusUnauthorized, "code expired"},
		{fmt.Errorf("wrap: %w", apperr.NotFound("destination %q", "x")), http.StatusNotFound, "destination"},
		{apperr.Conflict("a call is already in progress for this number"), http.StatusConflict, "already in progress"},
		{apperr.Carrier("21215: geo permission", errors.New("http 400")), http.StatusBadGateway, "call failed, try again"},
		{fmt.Errorf("%w: bad sig", auth.ErrInvalidToken), http.StatusUnauthorized, "invalid token"},
		{errors.New("db down"), http.StatusInternalServerError, "internal error"},
	}
	for _, tc := range cases {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		writeError(c, tc.err)
		if w.Code != tc.code {
			t.Fatalf("%v: expected %d, got %d", tc.err, tc.code, w.Code)
		}
		if !strings.Contains(w.Body.String(), tc.body) {
			t.Fatalf("%v: body %q missing %q", tc.err, w.Body.String(), tc.body)
		}
		if strings.Contains(w.Body.String(), "21215") {
			t.Fatalf("carrier reason leaked: %s", w.Body.String())
		}
	}
}

func TestThrottledRetryAfterRoundsUp(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	writeError(c, apperr.Throttled(1500*time.Millisecond, "slow down"))
	if got := w.Header().Get("Retry-After"); got != "2" {
		t.Fatalf("expected Retry-After 2, got %q", got)
	}

	w = httptest.NewRecorder()
	c, _ = gin.CreateTestContext(w)
	writeError(c, apperr.Throttled(0, "slow down"))
	if got := w.Header().Get("Retry-After"); got != "1" {
		t.Fatalf("expected Retry-After 1, got %q", got)
	}
}
