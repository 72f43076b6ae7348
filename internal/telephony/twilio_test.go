package telephony

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	twclient "github.com/twilio/twilio-go/client"
)

// redirectTransport sends every request to the test server, keeping the path
// the SDK built.
type redirectTransport struct {
	target *url.URL
	next   http.RoundTripper
}

func (rt redirectTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.URL.Scheme = rt.target.Scheme
	req.URL.Host = rt.target.Host
	req.Host = rt.target.Host
	return rt.next.RoundTrip(req)
}

type twilioRecorder struct {
	mu    sync.Mutex
	paths []string
	forms []map[string]string
}

func (r *twilioRecorder) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		user, pass, ok := req.BasicAuth()
		if !ok || user != "AC1" || pass != "tok" {
			t.Errorf("missing basic auth")
		}
		_ = req.ParseForm()
		f := map[string]string{}
		for k := range req.PostForm {
			f[k] = req.PostForm.Get(k)
		}
		r.mu.Lock()
		r.paths = append(r.paths, req.Method+" "+req.URL.Path)
		r.forms = append(r.forms, f)
		r.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasSuffix(req.URL.Path, "/Calls.json"):
			if f["To"] == "+32000000000" {
				w.WriteHeader(http.StatusBadRequest)
				_, _ = w.Write([]byte(`{"code":21215,"message":"geo permission","status":400}`))
				return
			}
			_, _ = w.Write([]byte(`{"sid":"CA100"}`))
		default:
			_, _ = w.Write([]byte(`{"sid":"X"}`))
		}
	}
}

func newTestCarrier(t *testing.T) (*TwilioCarrier, *twilioRecorder) {
	t.Helper()
	rec := &twilioRecorder{}
	srv := httptest.NewServer(rec.handler(t))
	t.Cleanup(srv.Close)
	target, _ := url.Parse(srv.URL)
	hc := &http.Client{
		Timeout:   5 * time.Second,
		Transport: redirectTransport{target: target, next: srv.Client().Transport},
	}
	c, err := NewTwilioCarrier(TwilioConfig{
		AccountSID:    "AC1",
		AuthToken:     "tok",
		FromNumber:    "+3220000000",
		PublicBaseURL: "https://cb.example/",
	}, hc)
	if err != nil {
		t.Fatalf("new carrier: %v", err)
	}
	return c, rec
}

func TestTwilioPlaceLegSetsCallbacks(t *testing.T) {
	c, rec := newTestCarrier(t)
	sid, err := c.PlaceLeg(context.Background(), LegRequest{CallID: "c1", Role: LegUser, To: "+431234567", RingTimeout: 30 * time.Second})
	if err != nil {
		t.Fatalf("place leg: %v", err)
	}
	if sid != "CA100" {
		t.Fatalf("unexpected sid %q", sid)
	}
	f := rec.forms[0]
	if rec.paths[0] != "POST /2010-04-01/Accounts/AC1/Calls.json" {
		t.Fatalf("unexpected path %q", rec.paths[0])
	}
	if f["Url"] != "https://cb.example/webhooks/twilio/voice?call_id=c1&role=user" {
		t.Fatalf("unexpected voice url %q", f["Url"])
	}
	if f["StatusCallback"] != "https://cb.example/webhooks/twilio/status?call_id=c1&role=user" {
		t.Fatalf("unexpected status url %q", f["StatusCallback"])
	}
	if f["Timeout"] != "30" || f["From"] != "+3220000000" {
		t.Fatalf("unexpected form %+v", f)
	}
}

func TestTwilioErrorIsTyped(t *testing.T) {
	c, _ := newTestCarrier(t)
	_, err := c.PlaceLeg(context.Background(), LegRequest{CallID: "c1", Role: LegDestination, To: "+32000000000"})
	var te *twclient.TwilioRestError
	if !errors.As(err, &te) {
		t.Fatalf("expected TwilioRestError, got %v", err)
	}
	if te.Status != http.StatusBadRequest || te.Code != 21215 {
		t.Fatalf("unexpected error %+v", te)
	}
}

func TestTwilioPromptBridgeHangup(t *testing.T) {
	c, rec := newTestCarrier(t)
	ctx := context.Background()
	if _, err := c.PlaceLeg(ctx, LegRequest{CallID: "c1", Role: LegUser, To: "+431234567"}); err != nil {
		t.Fatalf("place leg: %v", err)
	}
	if err := c.SendPrompt(ctx, "CA100", Prompt{Name: PromptMainMenu, Gather: true, Timeout: 10 * time.Second}); err != nil {
		t.Fatalf("prompt: %v", err)
	}
	if err := c.Bridge(ctx, "CA100", "CA200"); err != nil {
		t.Fatalf("bridge: %v", err)
	}
	if err := c.Hangup(ctx, "CA100"); err != nil {
		t.Fatalf("hangup: %v", err)
	}

	want := []string{
		"POST /2010-04-01/Accounts/AC1/Calls.json",
		"POST /2010-04-01/Accounts/AC1/Calls/CA100.json",
		"POST /2010-04-01/Accounts/AC1/Calls/CA100.json",
		"POST /2010-04-01/Accounts/AC1/Calls/CA200.json",
		"POST /2010-04-01/Accounts/AC1/Calls/CA100.json",
	}
	if strings.Join(rec.paths, ",") != strings.Join(want, ",") {
		t.Fatalf("unexpected requests %v", rec.paths)
	}
	if !strings.Contains(rec.forms[1]["Twiml"], "gather?call_id=c1&amp;role=user") {
		t.Fatalf("prompt twiml missing gather url: %s", rec.forms[1]["Twiml"])
	}
	if !strings.Contains(rec.forms[3]["Twiml"], "bridge-CA100") {
		t.Fatalf("bridge twiml missing room: %s", rec.forms[3]["Twiml"])
	}
	if rec.forms[4]["Status"] != "completed" {
		t.Fatalf("expected hangup status, got %+v", rec.forms[4])
	}
}

func TestTwilioForgetDropsBinding(t *testing.T) {
	c, _ := newTestCarrier(t)
	ctx := context.Background()
	if _, err := c.PlaceLeg(ctx, LegRequest{CallID: "c1", Role: LegUser, To: "+431234567"}); err != nil {
		t.Fatalf("place leg: %v", err)
	}
	if err := c.Hangup(ctx, "CA100"); err != nil {
		t.Fatalf("hangup: %v", err)
	}
	if _, ok := c.legs.Load("CA100"); !ok {
		t.Fatalf("hangup should keep the binding until the leg reports its end")
	}
	c.Forget("CA100")
	c.Forget("CA999")
	n := 0
	c.legs.Range(func(_, _ any) bool { n++; return true })
	if n != 0 {
		t.Fatalf("expected no bindings left, got %d", n)
	}
	if err := c.SendPrompt(ctx, "CA100", Prompt{Name: PromptGoodbye}); err == nil {
		t.Fatalf("expected prompt on a forgotten leg to fail")
	}
}

func TestTwilioSendCode(t *testing.T) {
	c, rec := newTestCarrier(t)
	if err := c.SendCode(context.Background(), "+431234567", "482913"); err != nil {
		t.Fatalf("send code: %v", err)
	}
	if rec.paths[0] != "POST /2010-04-01/Accounts/AC1/Messages.json" || !strings.Contains(rec.forms[0]["Body"], "482913") {
		t.Fatalf("unexpected request %v %+v", rec.paths, rec.forms)
	}
}

func TestNewTwilioCarrierRequiresConfig(t *testing.T) {
	if _, err := NewTwilioCarrier(TwilioConfig{AccountSID: "AC1"}, nil); err == nil {
		t.Fatalf("expected error")
	}
}
