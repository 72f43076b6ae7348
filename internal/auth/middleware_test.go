package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"
)

type stubChecker map[string]bool

func (s stubChecker) Active(_ context.Context, id string) (bool, error) { return s[id], nil }

func TestRequireSession(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := newTestManager(t)
	fc := clockwork.NewFakeClockAt(time.Unix(1700000000, 0).UTC())

	r := gin.New()
	r.GET("/me", RequireSession(m, stubChecker{"live": true}, fc), func(c *gin.Context) {
		id, err := IdentityFrom(c.Request.Context())
		if err != nil {
			c.Status(http.StatusInternalServerError)
			return
		}
		c.String(http.StatusOK, id.Phone)
	})

	do := func(tok string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		if tok != "" {
			req.Header.Set("Authorization", "Bearer "+tok)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	live, _, _ := m.IssueSession(fc.Now(), "live", "+431234567")
	revoked, _, _ := m.IssueSession(fc.Now(), "gone", "+431234567")

	if w := do(""); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", w.Code)
	}
	if w := do(live); w.Code != http.StatusOK || w.Body.String() != "+431234567" {
		t.Fatalf("expected identity, got %d %q", w.Code, w.Body.String())
	}
	if w := do(revoked); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected revoked session rejected, got %d", w.Code)
	}
	fc.Advance(time.Hour)
	if w := do(live); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected expired session rejected, got %d", w.Code)
	}
}
