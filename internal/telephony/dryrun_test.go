package telephony

import (
	"context"
	"testing"
	"time"

	"callbridge/pkg/logger"
)

func TestDryRunCarrierImplementsInterfaces(t *testing.T) {
	var _ Carrier = (*DryRunCarrier)(nil)
	var _ SMSSender = (*DryRunCarrier)(nil)
	var _ Carrier = (*TwilioCarrier)(nil)
	var _ SMSSender = (*TwilioCarrier)(nil)
}

func TestDryRunAutoAnswerSimulatesUser(t *testing.T) {
	sink := &sinkRecorder{}
	p := NewDryRunCarrier(logger.Discard(), true)
	p.SetSink(sink)
	ctx := context.Background()

	leg, err := p.PlaceLeg(ctx, LegRequest{CallID: "c1", Role: LegUser, To: "+431234567"})
	if err != nil {
		t.Fatalf("place leg: %v", err)
	}
	if err := p.SendPrompt(ctx, leg, Prompt{Name: PromptMainMenu, Gather: true}); err != nil {
		t.Fatalf("prompt: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for len(sink.all()) < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	evs := sink.all()
	if len(evs) != 2 {
		t.Fatalf("expected 2 simulated events, got %+v", evs)
	}
	var answered, digits bool
	for _, ev := range evs {
		switch ev.Type {
		case EventAnswered:
			answered = ev.LegID == leg
		case EventDigits:
			digits = ev.Digits == "1"
		}
	}
	if !answered || !digits {
		t.Fatalf("unexpected events %+v", evs)
	}
}

func TestDryRunWithoutAutoAnswerIsSilent(t *testing.T) {
	sink := &sinkRecorder{}
	p := NewDryRunCarrier(logger.Discard(), false)
	p.SetSink(sink)
	if _, err := p.PlaceLeg(context.Background(), LegRequest{CallID: "c1", Role: LegUser, To: "+1"}); err != nil {
		t.Fatalf("place leg: %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	if len(sink.all()) != 0 {
		t.Fatalf("expected no events")
	}
}
