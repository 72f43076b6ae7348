package telephony

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	twilio "github.com/twilio/twilio-go"
	twclient "github.com/twilio/twilio-go/client"
	twapi "github.com/twilio/twilio-go/rest/api/v2010"
)

type TwilioConfig struct {
	AccountSID string
	AuthToken  string
	FromNumber string
	// PublicBaseURL is where Twilio reaches our webhooks, without trailing slash.
	PublicBaseURL string
}

// TwilioCarrier drives legs through the Twilio REST API. Legs answer into a
// hold TwiML served by the voice webhook; prompts and bridging are applied by
// updating the live call with new TwiML.
type TwilioCarrier struct {
	cfg  TwilioConfig
	api  *twapi.ApiService
	legs sync.Map // leg sid -> legBinding
}

type legBinding struct {
	callID string
	role   LegRole
}

// NewTwilioCarrier builds the carrier on the Twilio SDK. hc bounds every REST
// request; nil uses a client with a 10s timeout.
func NewTwilioCarrier(cfg TwilioConfig, hc *http.Client) (*TwilioCarrier, error) {
	if cfg.AccountSID == "" || cfg.AuthToken == "" || cfg.FromNumber == "" {
		return nil, errors.New("telephony: twilio credentials and from number required")
	}
	if cfg.PublicBaseURL == "" {
		return nil, errors.New("telephony: public base url required")
	}
	cfg.PublicBaseURL = strings.TrimRight(cfg.PublicBaseURL, "/")
	if hc == nil {
		hc = &http.Client{Timeout: 10 * time.Second}
	}

	base := &twclient.Client{
		Credentials: twclient.NewCredentials(cfg.AccountSID, cfg.AuthToken),
		HTTPClient:  hc,
	}
	base.SetAccountSid(cfg.AccountSID)
	rest := twilio.NewRestClientWithParams(twilio.ClientParams{Client: base})
	return &TwilioCarrier{cfg: cfg, api: rest.Api}, nil
}

func (p *TwilioCarrier) Name() string { return "twilio" }

func (p *TwilioCarrier) HealthCheck(ctx context.Context) error {
	_, err := withContext(ctx, func() (*twapi.ApiV2010Account, error) {
		return p.api.FetchAccount(p.cfg.AccountSID)
	})
	return err
}

func (p *TwilioCarrier) PlaceLeg(ctx context.Context, req LegRequest) (string, error) {
	if req.CallID == "" || req.To == "" {
		return "", errors.New("telephony: call id and target required")
	}
	params := &twapi.CreateCallParams{}
	params.SetTo(req.To)
	params.SetFrom(p.cfg.FromNumber)
	params.SetUrl(p.webhookURL("voice", req.CallID, req.Role))
	params.SetMethod(http.MethodPost)
	params.SetStatusCallback(p.webhookURL("status", req.CallID, req.Role))
	params.SetStatusCallbackMethod(http.MethodPost)
	if req.RingTimeout > 0 {
		params.SetTimeout(int(req.RingTimeout.Seconds()))
	}

	call, err := withContext(ctx, func() (*twapi.ApiV2010Call, error) {
		return p.api.CreateCall(params)
	})
	if err != nil {
		return "", err
	}
	if call.Sid == nil || *call.Sid == "" {
		return "", errors.New("telephony: twilio returned no call sid")
	}
	p.legs.Store(*call.Sid, legBinding{callID: req.CallID, role: req.Role})
	return *call.Sid, nil
}

// SendPrompt needs the call id and role for the gather callback. Only legs
// placed by this process can be prompted.
func (p *TwilioCarrier) SendPrompt(ctx context.Context, legID string, pr Prompt) error {
	v, ok := p.legs.Load(legID)
	if !ok {
		return errors.New("telephony: leg " + legID + " is not bound to a call")
	}
	b := v.(legBinding)
	twiml, err := RenderPrompt(pr, p.webhookURL("gather", b.callID, b.role))
	if err != nil {
		return err
	}
	params := &twapi.UpdateCallParams{}
	params.SetTwiml(twiml)
	return p.updateCall(ctx, legID, params)
}

func (p *TwilioCarrier) Bridge(ctx context.Context, legA, legB string) error {
	twiml, err := RenderConference("bridge-" + legA)
	if err != nil {
		return err
	}
	for _, leg := range []string{legA, legB} {
		params := &twapi.UpdateCallParams{}
		params.SetTwiml(twiml)
		if err := p.updateCall(ctx, leg, params); err != nil {
			return err
		}
	}
	return nil
}

func (p *TwilioCarrier) Hangup(ctx context.Context, legID string) error {
	params := &twapi.UpdateCallParams{}
	params.SetStatus("completed")
	return p.updateCall(ctx, legID, params)
}

// Forget drops the call binding of a leg that has ended.
func (p *TwilioCarrier) Forget(legID string) {
	p.legs.Delete(legID)
}

// SendCode delivers a verification code by SMS.
func (p *TwilioCarrier) SendCode(ctx context.Context, phoneE164, code string) error {
	params := &twapi.CreateMessageParams{}
	params.SetTo(phoneE164)
	params.SetFrom(p.cfg.FromNumber)
	params.SetBody("Your verification code is " + code)
	_, err := withContext(ctx, func() (*twapi.ApiV2010Message, error) {
		return p.api.CreateMessage(params)
	})
	return err
}

func (p *TwilioCarrier) updateCall(ctx context.Context, legID string, params *twapi.UpdateCallParams) error {
	_, err := withContext(ctx, func() (*twapi.ApiV2010Call, error) {
		return p.api.UpdateCall(legID, params)
	})
	return err
}

func (p *TwilioCarrier) webhookURL(kind, callID string, role LegRole) string {
	q := url.Values{}
	q.Set("call_id", callID)
	q.Set("role", string(role))
	return p.cfg.PublicBaseURL + "/webhooks/twilio/" + kind + "?" + q.Encode()
}

// withContext runs a blocking SDK request and returns early when ctx ends.
// The SDK takes no context; the HTTP client timeout bounds the abandoned
// request.
func withContext[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}
	type result struct {
		v   T
		err error
	}
	done := make(chan result, 1)
	go func() {
		v, err := fn()
		done <- result{v: v, err: err}
	}()
	select {
	case r := <-done:
		return r.v, r.err
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}
