package calls

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"callbridge/internal/apperr"
	"callbridge/internal/audit"
	"callbridge/internal/config"
	"callbridge/internal/phone"
	"callbridge/internal/ratelimit"
	"callbridge/internal/recommender"
	"callbridge/internal/telephony"
)

const (
	carrierRequestTimeout = 10 * time.Second
	// ivrPromptAllowance covers speaking the menu before the carrier's own
	// gather timeout starts. The IVR timer is a backstop for lost callbacks.
	ivrPromptAllowance = 45 * time.Second
	inboxSize          = 16
)

// Limiter is the subset of ratelimit.Limiter used here.
type Limiter interface {
	Allow(ctx context.Context, action string, scope ratelimit.Scope) error
}

// Destinations resolves a Destination that may be dialed.
type Destinations interface {
	IsValidChoice(ctx context.Context, id string) (recommender.Destination, bool, error)
}

// FinishFunc observes calls reaching a terminal state.
type FinishFunc func(ctx context.Context, c Call)

type Deps struct {
	Repo         Repository
	Carrier      telephony.Carrier
	Limiter      Limiter
	Destinations Destinations
	Guard        Guard
	Audit        *audit.Service
	Policy       config.CallPolicy
	Clock        clockwork.Clock
	Logger       *slog.Logger
}

// Orchestrator runs one actor goroutine per active Call. Carrier events,
// timer expiries and cancellations are delivered to the owning actor's inbox;
// only the actor touches its Call. Other goroutines read only the fields fixed
// when the actor is created.
type Orchestrator struct {
	repo         Repository
	carrier      telephony.Carrier
	limiter      Limiter
	destinations Destinations
	guard        Guard
	audit        *audit.Service
	policy       config.CallPolicy
	clock        clockwork.Clock
	log          *slog.Logger

	base     context.Context
	stop     context.CancelFunc
	wg       sync.WaitGroup
	mu       sync.Mutex
	actors   map[string]*actor
	closed   bool
	onFinish []FinishFunc
}

func NewOrchestrator(d Deps) (*Orchestrator, error) {
	if d.Repo == nil || d.Carrier == nil || d.Limiter == nil || d.Destinations == nil {
		return nil, errors.New("calls: missing dependency")
	}
	o := &Orchestrator{
		repo:         d.Repo,
		carrier:      d.Carrier,
		limiter:      d.Limiter,
		destinations: d.Destinations,
		guard:        d.Guard,
		audit:        d.Audit,
		policy:       d.Policy,
		clock:        d.Clock,
		log:          d.Logger,
		actors:       map[string]*actor{},
	}
	if o.guard == nil {
		o.guard = NewMemoryGuard()
	}
	if o.clock == nil {
		o.clock = clockwork.NewRealClock()
	}
	if o.log == nil {
		o.log = slog.Default()
	}
	o.base, o.stop = context.WithCancel(context.Background())
	return o, nil
}

// OnFinish registers fn to run after a call reaches a terminal state and the
// final row is stored. Register before starting calls.
func (o *Orchestrator) OnFinish(fn FinishFunc) {
	o.mu.Lock()
	o.onFinish = append(o.onFinish, fn)
	o.mu.Unlock()
}

type InstantRequest struct {
	SessionID     string
	Phone         phone.Number
	PhoneHash     string
	DestinationID string
	IP            string
}

type ScheduledRequest struct {
	ScheduleID    string
	WindowID      string
	Phone         phone.Number
	PhoneHash     string
	DestinationID string
}

// StartInstant places a call the User asked for right now. A rate limit
// denial returns a throttling error and creates no Call.
func (o *Orchestrator) StartInstant(ctx context.Context, req InstantRequest) (Call, error) {
	dest, err := o.destination(ctx, req.DestinationID)
	if err != nil {
		return Call{}, err
	}
	if err := o.limiter.Allow(ctx, config.ActionCall, ratelimit.Scope{IP: req.IP, PhoneHash: req.PhoneHash}); err != nil {
		o.logThrottled(ctx, err, req.PhoneHash, req.IP)
		return Call{}, err
	}
	return o.start(ctx, Call{
		Kind:      KindInstant,
		SessionID: req.SessionID,
	}, req.Phone, req.PhoneHash, dest)
}

// StartScheduled places the system-initiated call for one Schedule window.
func (o *Orchestrator) StartScheduled(ctx context.Context, req ScheduledRequest) (Call, error) {
	dest, err := o.destination(ctx, req.DestinationID)
	if err != nil {
		return Call{}, err
	}
	if err := o.limiter.Allow(ctx, config.ActionCall, ratelimit.Scope{PhoneHash: req.PhoneHash}); err != nil {
		o.logThrottled(ctx, err, req.PhoneHash, "")
		return Call{}, err
	}
	return o.start(ctx, Call{
		Kind:       KindScheduled,
		ScheduleID: req.ScheduleID,
		WindowID:   req.WindowID,
	}, req.Phone, req.PhoneHash, dest)
}

func (o *Orchestrator) destination(ctx context.Context, id string) (recommender.Destination, error) {
	if id == "" {
		return recommender.Destination{}, apperr.Validation("destination_id is required")
	}
	dest, ok, err := o.destinations.IsValidChoice(ctx, id)
	if err != nil {
		return recommender.Destination{}, err
	}
	if !ok {
		return recommender.Destination{}, apperr.NotFound("destination %q", id)
	}
	return dest, nil
}

func (o *Orchestrator) start(ctx context.Context, c Call, num phone.Number, phoneHash string, dest recommender.Destination) (Call, error) {
	now := o.clock.Now().UTC()
	c.ID = uuid.NewString()
	c.State = StatePending
	c.PhoneHash = phoneHash
	c.CallingCode = num.CallingCode
	c.UserRegion = num.Region
	c.DestinationID = dest.ID
	c.DestinationCountry = dest.Country
	c.CreatedAt = now
	c.UpdatedAt = now

	a := &actor{
		o:         o,
		call:      c,
		m:         NewMachine(o.policy.IVRMaxRepeats),
		dest:      dest,
		userPhone: num.E164,
		phoneHash: phoneHash,
		inbox:     make(chan envelope, inboxSize),
		quit:      make(chan struct{}),
		timers:    map[Timer]armedTimer{},
		log:       o.log.With("call_id", c.ID, "kind", c.Kind, "destination_id", dest.ID),
	}

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return Call{}, errors.New("calls: orchestrator closed")
	}
	for _, other := range o.actors {
		if other.phoneHash == phoneHash {
			o.mu.Unlock()
			return Call{}, apperr.Conflict("a call is already in progress for this number")
		}
	}
	o.actors[c.ID] = a
	o.wg.Add(1)
	o.mu.Unlock()

	if err := o.repo.Create(ctx, c); err != nil {
		o.mu.Lock()
		delete(o.actors, c.ID)
		o.mu.Unlock()
		o.wg.Done()
		return Call{}, fmt.Errorf("calls: create: %w", err)
	}

	go a.run()

	out, err := a.post(ctx, Input{Kind: InStart}, 0)
	if err != nil {
		return c, err
	}
	if out.State == StateCarrierError {
		return out, apperr.Carrier(out.Reason, nil)
	}
	return out, nil
}

// HandleEvent routes a carrier event to the owning call and returns once it
// has been applied. A leg that ended is dropped from the carrier's bindings
// whether or not its call is still tracked.
func (o *Orchestrator) HandleEvent(ctx context.Context, ev telephony.Event) error {
	if ev.Type.Terminal() && ev.LegID != "" {
		defer o.carrier.Forget(ev.LegID)
	}
	in, ok := inputFor(ev)
	if !ok {
		return nil
	}
	a := o.actor(ev.CallID)
	if a == nil {
		return apperr.NotFound("call %q is not active", ev.CallID)
	}
	_, err := a.post(ctx, in, 0)
	return err
}

// Cancel ends a call owned by phoneHash, hanging up any dialed leg.
func (o *Orchestrator) Cancel(ctx context.Context, callID, phoneHash string) (Call, error) {
	if a := o.actor(callID); a != nil {
		if a.phoneHash != phoneHash {
			return Call{}, apperr.NotFound("call %q", callID)
		}
		out, err := a.post(ctx, Input{Kind: InCancel}, 0)
		if err == nil {
			return out, nil
		}
		if !errors.Is(err, errActorGone) {
			return Call{}, err
		}
	}

	c, err := o.repo.Get(ctx, callID)
	if err != nil {
		return Call{}, err
	}
	if c.PhoneHash != phoneHash {
		return Call{}, apperr.NotFound("call %q", callID)
	}
	if c.State.Terminal() {
		return c, apperr.Conflict("call %q already ended", callID)
	}
	// A non-terminal row with no actor was left behind by a previous process.
	now := o.clock.Now().UTC()
	c.State = StateCanceled
	c.Reason = "canceled by user after restart"
	c.UpdatedAt = now
	c.EndedAt = &now
	if err := o.repo.Update(ctx, c); err != nil {
		return Call{}, err
	}
	return c, nil
}

func (o *Orchestrator) Get(ctx context.Context, id string) (Call, error) {
	return o.repo.Get(ctx, id)
}

// Active is the number of calls in flight.
func (o *Orchestrator) Active() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.actors)
}

// Close stops accepting calls and waits for actors to exit. In-flight calls
// are abandoned, not hung up.
func (o *Orchestrator) Close(ctx context.Context) error {
	o.mu.Lock()
	o.closed = true
	o.mu.Unlock()
	o.stop()

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (o *Orchestrator) actor(id string) *actor {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.actors[id]
}

// timeout falls back to a minute for a timer the policy leaves unset, so a
// missing value never expires a leg the moment it is dialed.
func (o *Orchestrator) timeout(t Timer) time.Duration {
	var d time.Duration
	switch t {
	case TimerUserAnswer:
		d = o.policy.NoAnswerTimeout
	case TimerIVR:
		d = o.policy.IVRTimeout + ivrPromptAllowance
	case TimerDestinationAnswer:
		d = o.policy.DestinationTimeout
	case TimerMaxDuration:
		d = o.policy.MaxDuration
	}
	if d <= 0 {
		return time.Minute
	}
	return d
}

func (o *Orchestrator) logThrottled(ctx context.Context, err error, phoneHash, ip string) {
	ra, ok := apperr.RetryAfterOf(err)
	if !ok || o.audit == nil {
		return
	}
	if aerr := o.audit.LogThrottled(ctx, config.ActionCall, phoneHash, ip, ra); aerr != nil {
		o.log.Warn("audit throttled call failed", "err", aerr)
	}
}

// inputFor maps a carrier event to a machine input.
func inputFor(ev telephony.Event) (Input, bool) {
	in := Input{Role: ev.Role, LegID: ev.LegID, Digits: ev.Digits, Reason: ev.Reason}
	user := ev.Role == telephony.LegUser
	switch ev.Type {
	case telephony.EventAnswered:
		in.Kind = pick(user, InUserAnswered, InDestinationAnswered)
	case telephony.EventNoAnswer:
		in.Kind = pick(user, InUserNoAnswer, InDestinationNoAnswer)
	case telephony.EventBusy:
		in.Kind = pick(user, InUserBusy, InDestinationBusy)
	case telephony.EventHangup:
		in.Kind = pick(user, InUserHangup, InDestinationHangup)
	case telephony.EventFailed:
		in.Kind = pick(user, InUserFailed, InDestinationFailed)
	case telephony.EventDigits:
		if !user {
			return Input{}, false
		}
		in.Kind = InDigits
	default:
		return Input{}, false
	}
	return in, true
}

func pick(user bool, u, d InputKind) InputKind {
	if user {
		return u
	}
	return d
}
