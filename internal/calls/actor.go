package calls

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"callbridge/internal/apperr"
	"callbridge/internal/config"
	"callbridge/internal/ratelimit"
	"callbridge/internal/recommender"
	"callbridge/internal/telephony"
)

var errActorGone = apperr.NotFound("call is no longer active")

type envelope struct {
	in Input
	// seq identifies the timer arming that produced a timeout input.
	seq   uint64
	reply chan Call
}

type armedTimer struct {
	t   clockwork.Timer
	seq uint64
}

type actor struct {
	o         *Orchestrator
	call      Call
	m         Machine
	dest      recommender.Destination
	userPhone string
	guardHeld bool

	// phoneHash is set before the actor is published and never changes, so
	// request goroutines may read it without going through the inbox.
	phoneHash string

	inbox chan envelope
	quit  chan struct{}

	timers   map[Timer]armedTimer
	timerSeq uint64

	log *slog.Logger
}

// post delivers in and waits until it has been applied.
func (a *actor) post(ctx context.Context, in Input, seq uint64) (Call, error) {
	env := envelope{in: in, seq: seq, reply: make(chan Call, 1)}
	select {
	case a.inbox <- env:
	case <-a.quit:
		return Call{}, errActorGone
	case <-ctx.Done():
		return Call{}, ctx.Err()
	}
	select {
	case c := <-env.reply:
		return c, nil
	case <-a.quit:
		// The actor may have replied just before exiting.
		select {
		case c := <-env.reply:
			return c, nil
		default:
			return Call{}, errActorGone
		}
	case <-ctx.Done():
		return Call{}, ctx.Err()
	}
}

func (a *actor) run() {
	defer a.o.wg.Done()
	defer close(a.quit)
	for {
		select {
		case env := <-a.inbox:
			a.handle(env)
			done := a.m.State.Terminal()
			if done {
				a.finish()
			}
			env.reply <- a.call
			if done {
				return
			}
		case <-a.o.base.Done():
			a.stopTimers()
			return
		}
	}
}

func (a *actor) handle(env envelope) {
	if env.in.Kind == InTimeout && !a.timerCurrent(env.in.Timer, env.seq) {
		return
	}
	queue := []Input{env.in}
	for len(queue) > 0 {
		in := queue[0]
		queue = queue[1:]

		prev := a.m.State
		next, effects := Step(a.m, in)
		a.m = next
		if next.State != prev {
			a.log.Info("call transition", "from", prev, "to", next.State, "input", in.Kind)
		}
		a.sync(prev)

		for _, eff := range effects {
			if follow, ok := a.execute(eff); ok {
				queue = append(queue, follow)
			}
		}
	}
}

// execute performs one side effect. Effects that report back (leg placed,
// gate decision, carrier failure) return the follow-up input.
func (a *actor) execute(eff Effect) (Input, bool) {
	switch eff.Kind {
	case EffStartTimer:
		a.startTimer(eff.Timer)
	case EffStopTimer:
		a.stopTimer(eff.Timer)
	case EffCheckDestination:
		return a.checkDestination(), true
	case EffPlaceLeg:
		return a.placeLeg(eff.Role)
	case EffPrompt:
		leg := a.leg(eff.Role)
		if leg == "" {
			a.log.Warn("prompt without leg", "prompt", eff.Prompt.Name)
			return Input{}, false
		}
		p := eff.Prompt
		p.Timeout = a.o.policy.IVRTimeout
		p.Vars = map[string]string{"destination": a.dest.Name}
		return a.carrierCall("send_prompt", func(ctx context.Context) error {
			return a.o.carrier.SendPrompt(ctx, leg, p)
		})
	case EffBridge:
		userLeg, destLeg := a.m.UserLeg, a.m.DestinationLeg
		return a.carrierCall("bridge", func(ctx context.Context) error {
			return a.o.carrier.Bridge(ctx, userLeg, destLeg)
		})
	case EffHangup:
		leg := a.leg(eff.Role)
		if leg == "" {
			return Input{}, false
		}
		ctx, cancel := context.WithTimeout(a.o.base, carrierRequestTimeout)
		defer cancel()
		// The leg may already be gone; that is not a call failure.
		if err := a.o.carrier.Hangup(ctx, leg); err != nil {
			a.log.Warn("hangup failed", "role", eff.Role, "err", err)
		}
	}
	return Input{}, false
}

func (a *actor) placeLeg(role telephony.LegRole) (Input, bool) {
	req := telephony.LegRequest{CallID: a.call.ID, Role: role}
	switch role {
	case telephony.LegUser:
		req.To = a.userPhone
		req.RingTimeout = a.o.policy.NoAnswerTimeout
	case telephony.LegDestination:
		req.To = a.dest.Phone
		req.RingTimeout = a.o.policy.DestinationTimeout
	}
	ctx, cancel := context.WithTimeout(a.o.base, carrierRequestTimeout)
	defer cancel()
	legID, err := a.o.carrier.PlaceLeg(ctx, req)
	if err != nil {
		a.log.Error("place leg failed", "role", role, "reason", err.Error())
		return Input{Kind: InCarrierError, Reason: "place " + string(role) + " leg: " + err.Error()}, true
	}
	return Input{Kind: InLegPlaced, Role: role, LegID: legID}, true
}

func (a *actor) carrierCall(op string, fn func(ctx context.Context) error) (Input, bool) {
	ctx, cancel := context.WithTimeout(a.o.base, carrierRequestTimeout)
	defer cancel()
	if err := fn(ctx); err != nil {
		a.log.Error("carrier request failed", "op", op, "reason", err.Error())
		return Input{Kind: InCarrierError, Reason: op + ": " + err.Error()}, true
	}
	return Input{}, false
}

// checkDestination gates the Destination leg: the per-Destination rate limit
// first, then the in-call guard. Gate errors deny the call.
func (a *actor) checkDestination() Input {
	ctx, cancel := context.WithTimeout(a.o.base, carrierRequestTimeout)
	defer cancel()

	err := a.o.limiter.Allow(ctx, config.ActionDestinationCall, ratelimit.Scope{DestinationID: a.dest.ID})
	if err != nil {
		reason := "destination rate limited"
		if !errors.Is(err, apperr.ErrThrottled) {
			reason = "destination gate error: " + err.Error()
		}
		return Input{Kind: InDestinationDenied, Reason: reason}
	}

	ok, err := a.o.guard.Acquire(ctx, a.dest.ID, a.call.ID)
	if err != nil {
		a.log.Error("destination guard failed", "err", err)
		return Input{Kind: InDestinationDenied, Reason: "destination guard error: " + err.Error()}
	}
	if !ok {
		return Input{Kind: InDestinationDenied, Reason: "destination already in a call"}
	}
	a.guardHeld = true
	return Input{Kind: InDestinationCleared}
}

// sync copies machine state into the Call row and stores it when it changed.
func (a *actor) sync(prev State) {
	c := a.call
	now := a.o.clock.Now().UTC()
	changed := c.State != a.m.State || c.UserLegID != a.m.UserLeg || c.DestinationLegID != a.m.DestinationLeg
	if !changed {
		return
	}
	c.State = a.m.State
	c.UserLegID = a.m.UserLeg
	c.DestinationLegID = a.m.DestinationLeg
	c.Reason = a.m.Reason
	c.UpdatedAt = now
	if prev != c.State {
		switch {
		case c.State == StateUserConnected:
			c.AnsweredAt = &now
		case c.State == StateBridged:
			c.BridgedAt = &now
		case c.State.Terminal():
			c.EndedAt = &now
			if c.BridgedAt != nil {
				c.DurationSeconds = int(now.Sub(*c.BridgedAt).Round(time.Second) / time.Second)
			}
		}
	}
	ctx, cancel := context.WithTimeout(a.o.base, carrierRequestTimeout)
	defer cancel()
	if err := a.o.repo.Update(ctx, c); err != nil {
		a.log.Error("persist call failed", "state", c.State, "err", err)
	}
	a.call = c
}

func (a *actor) finish() {
	a.stopTimers()
	a.o.mu.Lock()
	delete(a.o.actors, a.call.ID)
	subs := append([]FinishFunc(nil), a.o.onFinish...)
	a.o.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), carrierRequestTimeout)
	defer cancel()

	if a.guardHeld {
		if err := a.o.guard.Release(ctx, a.dest.ID, a.call.ID); err != nil {
			a.log.Warn("destination guard release failed", "err", err)
		}
		a.guardHeld = false
	}
	for _, leg := range []string{a.m.UserLeg, a.m.DestinationLeg} {
		if leg != "" {
			a.o.carrier.Forget(leg)
		}
	}

	c := a.call
	if c.State == StateCompleted {
		a.log.Info("call completed", "duration", c.DurationSeconds)
	} else {
		lvl := slog.LevelInfo
		if c.State == StateCarrierError {
			lvl = slog.LevelError
		}
		a.log.Log(ctx, lvl, "call ended", "outcome", c.State, "reason", c.Reason)
		if a.o.audit != nil {
			if err := a.o.audit.LogCallFailure(ctx, c.ID, c.DestinationID, c.PhoneHash, string(c.State), c.Reason); err != nil {
				a.log.Warn("audit call failure failed", "err", err)
			}
		}
	}
	for _, fn := range subs {
		fn(ctx, c)
	}
}

func (a *actor) leg(role telephony.LegRole) string {
	if role == telephony.LegDestination {
		return a.m.DestinationLeg
	}
	return a.m.UserLeg
}

func (a *actor) startTimer(name Timer) {
	a.stopTimer(name)
	a.timerSeq++
	seq := a.timerSeq
	t := a.o.clock.AfterFunc(a.o.timeout(name), func() {
		_, _ = a.post(a.o.base, Input{Kind: InTimeout, Timer: name}, seq)
	})
	a.timers[name] = armedTimer{t: t, seq: seq}
}

func (a *actor) stopTimer(name Timer) {
	if at, ok := a.timers[name]; ok {
		at.t.Stop()
		delete(a.timers, name)
	}
}

func (a *actor) stopTimers() {
	for _, name := range allTimers {
		a.stopTimer(name)
	}
}

// timerCurrent drops expiries of timers that were stopped or re-armed after
// the expiry was queued.
func (a *actor) timerCurrent(name Timer, seq uint64) bool {
	at, ok := a.timers[name]
	if !ok || at.seq != seq {
		return false
	}
	delete(a.timers, name)
	return true
}
