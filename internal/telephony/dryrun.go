package telephony

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DryRunCarrier places no real calls and sends no SMS. It logs every request
// and, with AutoAnswer, simulates a cooperative User: legs answer right away
// and the main menu is answered with "1". Useful for local runs without a
// carrier account.
type DryRunCarrier struct {
	Log        *slog.Logger
	AutoAnswer bool

	mu   sync.Mutex
	sink EventSink
	legs map[string]LegRequest
}

func NewDryRunCarrier(log *slog.Logger, autoAnswer bool) *DryRunCarrier {
	if log == nil {
		log = slog.Default()
	}
	return &DryRunCarrier{Log: log, AutoAnswer: autoAnswer, legs: map[string]LegRequest{}}
}

// SetSink connects simulated events to the orchestrator. The orchestrator is
// built after the carrier, hence the setter.
func (p *DryRunCarrier) SetSink(s EventSink) {
	p.mu.Lock()
	p.sink = s
	p.mu.Unlock()
}

func (p *DryRunCarrier) Name() string { return "dry-run" }

func (p *DryRunCarrier) HealthCheck(ctx context.Context) error { return nil }

func (p *DryRunCarrier) PlaceLeg(ctx context.Context, req LegRequest) (string, error) {
	id := "dry-" + uuid.NewString()
	p.mu.Lock()
	p.legs[id] = req
	p.mu.Unlock()
	p.Log.Info("dry-run place leg", "call_id", req.CallID, "role", req.Role, "leg_id", id)
	p.emit(Event{CallID: req.CallID, LegID: id, Role: req.Role, Type: EventAnswered})
	return id, nil
}

func (p *DryRunCarrier) SendPrompt(ctx context.Context, legID string, pr Prompt) error {
	req, ok := p.leg(legID)
	p.Log.Info("dry-run prompt", "leg_id", legID, "prompt", pr.Name, "gather", pr.Gather)
	if ok && pr.Gather && pr.Name == PromptMainMenu {
		p.emit(Event{CallID: req.CallID, LegID: legID, Role: req.Role, Type: EventDigits, Digits: "1"})
	}
	return nil
}

func (p *DryRunCarrier) Bridge(ctx context.Context, legA, legB string) error {
	p.Log.Info("dry-run bridge", "leg_a", legA, "leg_b", legB)
	return nil
}

func (p *DryRunCarrier) Hangup(ctx context.Context, legID string) error {
	p.Log.Info("dry-run hangup", "leg_id", legID)
	return nil
}

func (p *DryRunCarrier) Forget(legID string) {
	p.mu.Lock()
	delete(p.legs, legID)
	p.mu.Unlock()
}

func (p *DryRunCarrier) SendCode(ctx context.Context, phoneE164, code string) error {
	// The code is logged so local runs can complete verification.
	p.Log.Info("dry-run sms", "to_suffix", suffix(phoneE164, 4), "code", code)
	return nil
}

func (p *DryRunCarrier) leg(id string) (LegRequest, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	req, ok := p.legs[id]
	return req, ok
}

func (p *DryRunCarrier) emit(ev Event) {
	p.mu.Lock()
	sink := p.sink
	p.mu.Unlock()
	if !p.AutoAnswer || sink == nil {
		return
	}
	ev.At = time.Now()
	// Async: the caller is usually the orchestrator actor that owns this call.
	go func() {
		if err := sink.HandleEvent(context.Background(), ev); err != nil {
			p.Log.Warn("dry-run event dropped", "call_id", ev.CallID, "err", err)
		}
	}()
}

func suffix(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
