package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"

	"callbridge/internal/audit"
	"callbridge/internal/auth"
	"callbridge/internal/calls"
	"callbridge/internal/config"
	"callbridge/internal/feedback"
	"callbridge/internal/phone"
	"callbridge/internal/pricing"
	"callbridge/internal/ratelimit"
	"callbridge/internal/rbac"
	"callbridge/internal/recommender"
	"callbridge/internal/reporting"
	"callbridge/internal/schedule"
	"callbridge/internal/session"
	"callbridge/internal/telephony"
	"callbridge/internal/verification"
	"callbridge/pkg/logger"
)

const testPhone = "+32470123456"

type captureSender struct {
	mu   sync.Mutex
	sent map[string]string
}

func (s *captureSender) SendCode(_ context.Context, to, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent[to] = code
	return nil
}

type testAPI struct {
	r      *gin.Engine
	clock  *clockwork.FakeClock
	tokens *auth.Manager
	calls  *calls.MemoryRepo
	orch   *calls.Orchestrator
}

func newTestAPI(t *testing.T, limits map[string]ratelimit.ActionPolicy) *testAPI {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log := logger.Discard()
	clk := clockwork.NewFakeClockAt(time.Date(2026, 10, 19, 10, 0, 0, 0, time.UTC))

	tokens, err := auth.NewManager(config.AuthConfig{JWTSecret: "test-secret", SessionTTL: time.Hour, OperatorTokenTTL: time.Hour})
	if err != nil {
		t.Fatalf("auth: %v", err)
	}
	sessions := session.NewMemoryStore(clk)
	limiter := ratelimit.New(ratelimit.NewMemoryStore(), limits, ratelimit.WithClock(clk), ratelimit.WithLogger(log))
	auditSvc := audit.NewService(audit.NewMemoryRepo()).WithClock(clk.Now)

	verRepo := verification.NewMemoryRepo()
	ver, err := verification.NewService(verification.Deps{
		Repo:     verRepo,
		Sessions: sessions,
		Tokens:   tokens,
		Sender:   &captureSender{sent: map[string]string{}},
		Limiter:  limiter,
		Audit:    auditSvc,
		Hasher:   phone.NewHasher("pepper"),
		Policy:   config.VerificationPolicy{CodeTTL: 5 * time.Minute, MaxAttempts: 3, CodeLength: 6},
		Clock:    clk,
		NewCode:  func(int) (string, error) { return "123456", nil },
		Logger:   log,
	})
	if err != nil {
		t.Fatalf("verification: %v", err)
	}

	recs := recommender.NewService(recommender.NewMemoryRepo(
		recommender.Destination{ID: "d1", Name: "Jane Doe", Country: "BE", Phone: "+3222840001", Swayability: 1},
		recommender.Destination{ID: "d2", Name: "John Roe", Country: "DE", Phone: "+49302270", Swayability: 1},
	), sessions, recommender.NewPicker(1, nil), clk, log)

	callRepo := calls.NewMemoryRepo()
	orch, err := calls.NewOrchestrator(calls.Deps{
		Repo:         callRepo,
		Carrier:      telephony.NewDryRunCarrier(log, false),
		Limiter:      limiter,
		Destinations: recs,
		Audit:        auditSvc,
		Policy: config.CallPolicy{
			NoAnswerTimeout:    30 * time.Second,
			DestinationTimeout: 30 * time.Second,
			IVRTimeout:         10 * time.Second,
			IVRMaxRepeats:      2,
			MaxDuration:        time.Hour,
		},
		Clock:  clk,
		Logger: log,
	})
	if err != nil {
		t.Fatalf("orchestrator: %v", err)
	}
	t.Cleanup(func() { _ = orch.Close(context.Background()) })
	fb := feedback.NewService(feedback.NewMemoryRepo(), recs, time.Hour, clk, log)
	orch.OnFinish(fb.Issue)

	schedRepo := schedule.NewMemoryRepo()
	h := Handlers{
		Verification: ver,
		Sessions:     sessions,
		Destinations: recs,
		Calls:        orch,
		Schedules:    schedule.NewService(schedRepo, schedRepo, recs, auditSvc, clk, log),
		Reports: reporting.NewService(callRepo, verRepo, schedRepo, pricing.NewService(pricing.FromPolicy(config.PricingPolicy{
			Currency: "EUR", DefaultMinor: 5,
		}))),
		Feedback: fb,
		Clock:    clk,
	}

	r := gin.New()
	r.GET("/healthz", Health)
	v1 := r.Group("/v1")
	v1.POST("/verification/request", h.RequestVerification)
	v1.POST("/verification/confirm", h.ConfirmVerification)
	v1.GET("/destinations/search", h.SearchDestinations)
	v1.GET("/call/feedback/:token", h.GetFeedback)
	v1.POST("/call/feedback/:token", h.SubmitFeedback)

	user := v1.Group("")
	user.Use(auth.RequireSession(tokens, sessions, clk))
	user.POST("/session/logout", h.Logout)
	user.GET("/destinations/suggested", h.SuggestDestination)
	user.POST("/destinations/:id/select", h.SelectDestination)
	user.POST("/calls", h.StartCall)
	user.GET("/calls/:id", h.GetCall)
	user.POST("/calls/:id/cancel", h.CancelCall)
	user.PUT("/schedule", h.PutSchedule)
	user.GET("/schedule", h.GetSchedule)
	user.DELETE("/schedule", h.DeleteSchedule)

	reports := v1.Group("/admin/reports")
	reports.Use(auth.RequireOperator(tokens, clk))
	reports.GET("/calls", rbac.RequireAnyRole(rbac.RoleAnalyst), h.CallsReport)
	reports.GET("/costs", rbac.RequireAnyRole(rbac.RoleFinance), h.CostsReport)

	return &testAPI{r: r, clock: clk, tokens: tokens, calls: callRepo, orch: orch}
}

func (a *testAPI) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = "192.0.2.10:40000"
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	a.r.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return out
}

// login runs the verification flow and returns a session token.
func (a *testAPI) login(t *testing.T) string {
	t.Helper()
	w := a.do(t, http.MethodPost, "/v1/verification/request", "", gin.H{"phone_number": testPhone})
	if w.Code != http.StatusAccepted {
		t.Fatalf("request verification: %d %s", w.Code, w.Body.String())
	}
	attempt := decode[map[string]string](t, w)["attempt_id"]

	w = a.do(t, http.MethodPost, "/v1/verification/confirm", "", gin.H{"attempt_id": attempt, "code": "123456"})
	if w.Code != http.StatusOK {
		t.Fatalf("confirm: %d %s", w.Code, w.Body.String())
	}
	return decode[confirmResponse](t, w).SessionToken
}

func TestInstantCallFlow(t *testing.T) {
	api := newTestAPI(t, nil)
	tok := api.login(t)

	w := api.do(t, http.MethodGet, "/v1/destinations/suggested", tok, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("suggest: %d %s", w.Code, w.Body.String())
	}
	if d := decode[recommender.Destination](t, w); d.Country != "BE" {
		t.Fatalf("expected a Destination from the User's country, got %+v", d)
	}

	w = api.do(t, http.MethodPost, "/v1/destinations/d1/select", tok, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("select: %d %s", w.Code, w.Body.String())
	}

	w = api.do(t, http.MethodPost, "/v1/calls", tok, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("start call: %d %s", w.Code, w.Body.String())
	}
	started := decode[callResponse](t, w)
	if started.State != calls.StateUserDialing {
		t.Fatalf("expected user_dialing, got %s", started.State)
	}

	w = api.do(t, http.MethodPost, "/v1/calls", tok, gin.H{"destination_id": "d2"})
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409 for a second concurrent call, got %d", w.Code)
	}

	w = api.do(t, http.MethodGet, "/v1/calls/"+started.CallID, tok, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get call: %d %s", w.Code, w.Body.String())
	}
	if bytes.Contains(w.Body.Bytes(), []byte("phone_hash")) {
		t.Fatalf("phone hash leaked: %s", w.Body.String())
	}

	w = api.do(t, http.MethodPost, "/v1/calls/"+started.CallID+"/cancel", tok, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("cancel: %d %s", w.Code, w.Body.String())
	}
	if got := decode[callResponse](t, w).State; got != calls.StateCanceled {
		t.Fatalf("expected canceled, got %s", got)
	}
}

func TestUnknownDestinationIs404(t *testing.T) {
	api := newTestAPI(t, nil)
	tok := api.login(t)
	w := api.do(t, http.MethodPost, "/v1/calls", tok, gin.H{"destination_id": "nope"})
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d %s", w.Code, w.Body.String())
	}
	if rows, _ := api.calls.List(context.Background(), calls.Filter{}); len(rows) != 0 {
		t.Fatalf("expected no call rows, got %d", len(rows))
	}
}

func TestVerificationThrottledReturnsRetryAfter(t *testing.T) {
	api := newTestAPI(t, map[string]ratelimit.ActionPolicy{
		config.ActionSMS: {Rules: []ratelimit.Rule{{Window: time.Hour, Max: 1, Key: []ratelimit.KeyPart{ratelimit.PartIP}}}},
	})
	w := api.do(t, http.MethodPost, "/v1/verification/request", "", gin.H{"phone_number": testPhone})
	if w.Code != http.StatusAccepted {
		t.Fatalf("first request: %d %s", w.Code, w.Body.String())
	}
	w = api.do(t, http.MethodPost, "/v1/verification/request", "", gin.H{"phone_number": "+32470999999"})
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", w.Code)
	}
	if w.Header().Get("Retry-After") != "3600" {
		t.Fatalf("unexpected Retry-After %q", w.Header().Get("Retry-After"))
	}
}

func TestWrongCodeAndMalformedNumber(t *testing.T) {
	api := newTestAPI(t, nil)
	w := api.do(t, http.MethodPost, "/v1/verification/request", "", gin.H{"phone_number": "12"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed number, got %d", w.Code)
	}

	w = api.do(t, http.MethodPost, "/v1/verification/request", "", gin.H{"phone_number": testPhone})
	attempt := decode[map[string]string](t, w)["attempt_id"]
	w = api.do(t, http.MethodPost, "/v1/verification/confirm", "", gin.H{"attempt_id": attempt, "code": "000000"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for wrong code, got %d", w.Code)
	}
}

func TestLogoutRevokesToken(t *testing.T) {
	api := newTestAPI(t, nil)
	tok := api.login(t)
	if w := api.do(t, http.MethodPost, "/v1/session/logout", tok, nil); w.Code != http.StatusNoContent {
		t.Fatalf("logout: %d %s", w.Code, w.Body.String())
	}
	if w := api.do(t, http.MethodGet, "/v1/destinations/suggested", tok, nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 after logout, got %d", w.Code)
	}
}

func TestScheduleLifecycle(t *testing.T) {
	api := newTestAPI(t, nil)
	tok := api.login(t)

	overlap := gin.H{
		"timezone":       "Europe/Brussels",
		"destination_id": "d1",
		"spans": []gin.H{
			{"day": 1, "start": "09:00", "end": "11:00"},
			{"day": 1, "start": "10:00", "end": "12:00"},
		},
	}
	if w := api.do(t, http.MethodPut, "/v1/schedule", tok, overlap); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for overlapping spans, got %d", w.Code)
	}

	good := gin.H{
		"timezone":       "Europe/Brussels",
		"destination_id": "d1",
		"spans":          []gin.H{{"day": 1, "start": "09:00", "end": "09:30"}},
	}
	w := api.do(t, http.MethodPut, "/v1/schedule", tok, good)
	if w.Code != http.StatusOK {
		t.Fatalf("put schedule: %d %s", w.Code, w.Body.String())
	}
	first := decode[scheduleResponse](t, w)
	if len(first.Spans) != 1 || first.Spans[0].Start != "09:00" || first.Spans[0].End != "09:30" {
		t.Fatalf("unexpected spans %+v", first.Spans)
	}

	w = api.do(t, http.MethodGet, "/v1/schedule", tok, nil)
	if w.Code != http.StatusOK || decode[scheduleResponse](t, w).ID != first.ID {
		t.Fatalf("get schedule: %d %s", w.Code, w.Body.String())
	}
	if w := api.do(t, http.MethodDelete, "/v1/schedule", tok, nil); w.Code != http.StatusNoContent {
		t.Fatalf("delete schedule: %d", w.Code)
	}
	if w := api.do(t, http.MethodGet, "/v1/schedule", tok, nil); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", w.Code)
	}
}

func TestReportsRequireRole(t *testing.T) {
	api := newTestAPI(t, nil)
	analyst, err := api.tokens.IssueOperator(api.clock.Now(), "t1", "ops", rbac.RoleAnalyst)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	finance, err := api.tokens.IssueOperator(api.clock.Now(), "t2", "cfo", rbac.RoleFinance)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	if w := api.do(t, http.MethodGet, "/v1/admin/reports/calls", analyst, nil); w.Code != http.StatusOK {
		t.Fatalf("analyst calls report: %d %s", w.Code, w.Body.String())
	}
	if w := api.do(t, http.MethodGet, "/v1/admin/reports/costs", analyst, nil); w.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for analyst costs, got %d", w.Code)
	}
	w := api.do(t, http.MethodGet, "/v1/admin/reports/costs", finance, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("finance costs report: %d %s", w.Code, w.Body.String())
	}
	if w := api.do(t, http.MethodGet, "/v1/admin/reports/calls?from=yesterday", analyst, nil); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for a bad range, got %d", w.Code)
	}

	// A session token is not an operator token.
	if w := api.do(t, http.MethodGet, "/v1/admin/reports/calls", api.login(t), nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for a session token, got %d", w.Code)
	}
}

func TestSearchDestinations(t *testing.T) {
	api := newTestAPI(t, nil)

	w := api.do(t, http.MethodGet, "/v1/destinations/search?name=roe&country=be", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("search: %d %s", w.Code, w.Body.String())
	}
	res := decode[searchResponse](t, w).Results
	if len(res) != 1 || res[0].ID != "d2" {
		t.Fatalf("unexpected results %+v", res)
	}
	if bytes.Contains(w.Body.Bytes(), []byte("+49")) {
		t.Fatalf("destination phone leaked: %s", w.Body.String())
	}

	if w := api.do(t, http.MethodGet, "/v1/destinations/search?name=doe&all_countries=false&country=de", "", nil); w.Code != http.StatusOK || len(decode[searchResponse](t, w).Results) != 0 {
		t.Fatalf("expected empty results outside the country, got %d %s", w.Code, w.Body.String())
	}
	for _, q := range []string{"", "?name=doe&all_countries=false", "?name=doe&limit=21", "?name=doe&limit=x"} {
		if w := api.do(t, http.MethodGet, "/v1/destinations/search"+q, "", nil); w.Code != http.StatusBadRequest {
			t.Fatalf("%q: expected 400, got %d", q, w.Code)
		}
	}
}

func TestFeedbackAfterCompletedCall(t *testing.T) {
	api := newTestAPI(t, nil)
	tok := api.login(t)
	ctx := context.Background()

	w := api.do(t, http.MethodPost, "/v1/calls", tok, gin.H{"destination_id": "d1"})
	if w.Code != http.StatusCreated {
		t.Fatalf("start call: %d %s", w.Code, w.Body.String())
	}
	id := decode[callResponse](t, w).CallID
	for _, ev := range []telephony.Event{
		{CallID: id, Role: telephony.LegUser, Type: telephony.EventAnswered},
		{CallID: id, Role: telephony.LegUser, Type: telephony.EventDigits, Digits: "1"},
		{CallID: id, Role: telephony.LegDestination, Type: telephony.EventAnswered},
		{CallID: id, Role: telephony.LegUser, Type: telephony.EventHangup},
	} {
		if err := api.orch.HandleEvent(ctx, ev); err != nil {
			t.Fatalf("event %s: %v", ev.Type, err)
		}
	}

	w = api.do(t, http.MethodGet, "/v1/calls/"+id, tok, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get call: %d %s", w.Code, w.Body.String())
	}
	detail := decode[map[string]any](t, w)
	fbTok, _ := detail["feedback_token"].(string)
	if detail["state"] != string(calls.StateCompleted) || fbTok == "" {
		t.Fatalf("expected completed call with feedback token, got %+v", detail)
	}

	w = api.do(t, http.MethodGet, "/v1/call/feedback/"+fbTok, "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("feedback status: %d %s", w.Code, w.Body.String())
	}
	if st := decode[feedback.Status](t, w); st.Used || st.Expired || st.Destination.ID != "d1" {
		t.Fatalf("unexpected status %+v", st)
	}

	answers := gin.H{"convinced": "likely-yes", "technical_problems": false, "additional": "nice"}
	if w := api.do(t, http.MethodPost, "/v1/call/feedback/"+fbTok, "", gin.H{"convinced": "sure"}); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for an unknown answer, got %d", w.Code)
	}
	if w := api.do(t, http.MethodPost, "/v1/call/feedback/"+fbTok, "", answers); w.Code != http.StatusNoContent {
		t.Fatalf("submit: %d %s", w.Code, w.Body.String())
	}
	if w := api.do(t, http.MethodPost, "/v1/call/feedback/"+fbTok, "", answers); w.Code != http.StatusConflict {
		t.Fatalf("expected 409 on reuse, got %d", w.Code)
	}
	if w := api.do(t, http.MethodGet, "/v1/call/feedback/00000000-0000-0000-0000-000000000000", "", nil); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown token, got %d", w.Code)
	}
}

func TestFeedbackTokenExpires(t *testing.T) {
	api := newTestAPI(t, nil)
	tok := api.login(t)
	ctx := context.Background()

	w := api.do(t, http.MethodPost, "/v1/calls", tok, gin.H{"destination_id": "d1"})
	id := decode[callResponse](t, w).CallID
	for _, ev := range []telephony.Event{
		{CallID: id, Role: telephony.LegUser, Type: telephony.EventAnswered},
		{CallID: id, Role: telephony.LegUser, Type: telephony.EventDigits, Digits: "1"},
		{CallID: id, Role: telephony.LegDestination, Type: telephony.EventAnswered},
		{CallID: id, Role: telephony.LegDestination, Type: telephony.EventHangup},
	} {
		if err := api.orch.HandleEvent(ctx, ev); err != nil {
			t.Fatalf("event %s: %v", ev.Type, err)
		}
	}
	fbTok, _ := decode[map[string]any](t, api.do(t, http.MethodGet, "/v1/calls/"+id, tok, nil))["feedback_token"].(string)
	if fbTok == "" {
		t.Fatalf("expected feedback token")
	}

	api.clock.Advance(2 * time.Hour)
	if w := api.do(t, http.MethodPost, "/v1/call/feedback/"+fbTok, "", gin.H{"convinced": "no"}); w.Code != http.StatusGone {
		t.Fatalf("expected 410 after expiry, got %d %s", w.Code, w.Body.String())
	}
}
