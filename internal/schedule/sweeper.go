package schedule

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"

	"callbridge/internal/apperr"
	"callbridge/internal/audit"
	"callbridge/internal/calls"
	"callbridge/internal/config"
	"callbridge/internal/phone"
	"callbridge/pkg/utils"
)

// ErrSweepRunning is returned when another sweep holds the lock.
var ErrSweepRunning = errors.New("schedule: sweep already running")

// Starter is the orchestrator's scheduled-call entry point.
type Starter interface {
	StartScheduled(ctx context.Context, req calls.ScheduledRequest) (calls.Call, error)
}

// Locker provides cross-process mutual exclusion for the sweep.
type Locker interface {
	TryLock(ctx context.Context) (unlock func(context.Context) error, err error)
}

// RedisLocker is a SET NX lease shared by every API instance.
type RedisLocker struct {
	rdb *redis.Client
	key string
	ttl time.Duration
}

func NewRedisLocker(rdb *redis.Client, ttl time.Duration) *RedisLocker {
	return &RedisLocker{rdb: rdb, key: "lock:schedule-sweep", ttl: ttl}
}

func (l *RedisLocker) TryLock(ctx context.Context) (func(context.Context) error, error) {
	lk, err := utils.TryLock(ctx, l.rdb, l.key, l.ttl)
	if errors.Is(err, utils.ErrLockHeld) {
		return nil, ErrSweepRunning
	}
	if err != nil {
		return nil, err
	}
	return lk.Unlock, nil
}

type SweepResult struct {
	Due     int
	Started int
	// Handled counts due windows that already had a marker.
	Handled int
	Failed  int
}

// Sweeper fires Scheduled Calls. A sweep never overlaps another one, in this
// process (mutex) or across processes (Locker).
type Sweeper struct {
	repo     Repository
	attempts AttemptStore
	starter  Starter
	locker   Locker
	audit    *audit.Service
	interval time.Duration
	office   officeHours
	clock    clockwork.Clock
	log      *slog.Logger

	mu sync.Mutex
}

type SweeperDeps struct {
	Repo     Repository
	Attempts AttemptStore
	Starter  Starter
	// Locker is optional; without it only in-process exclusion applies.
	Locker Locker
	Audit  *audit.Service
	Policy config.SchedulerPolicy
	Clock  clockwork.Clock
	Logger *slog.Logger
}

func NewSweeper(d SweeperDeps) (*Sweeper, error) {
	if d.Repo == nil || d.Attempts == nil || d.Starter == nil {
		return nil, errors.New("schedule: missing dependency")
	}
	office, err := parseOfficeHours(d.Policy.OfficeHours)
	if err != nil {
		return nil, err
	}
	s := &Sweeper{
		repo:     d.Repo,
		attempts: d.Attempts,
		starter:  d.Starter,
		locker:   d.Locker,
		audit:    d.Audit,
		interval: d.Policy.SweepInterval,
		office:   office,
		clock:    d.Clock,
		log:      d.Logger,
	}
	if s.interval <= 0 {
		s.interval = time.Minute
	}
	if s.clock == nil {
		s.clock = clockwork.NewRealClock()
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	return s, nil
}

// Run sweeps on every tick until ctx is done. Ticks that arrive while a sweep
// is still running are dropped.
func (s *Sweeper) Run(ctx context.Context) error {
	tk := s.clock.NewTicker(s.interval)
	defer tk.Stop()
	s.log.Info("scheduler started", "interval", s.interval.String())
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-tk.Chan():
			res, err := s.Sweep(ctx)
			if errors.Is(err, ErrSweepRunning) {
				s.log.Debug("sweep skipped, already running")
				continue
			}
			if err != nil {
				s.log.Error("sweep failed", "err", err)
				continue
			}
			if res.Due > 0 {
				s.log.Info("sweep done", "due", res.Due, "started", res.Started, "handled", res.Handled, "failed", res.Failed)
			}
		}
	}
}

// Sweep fires every Schedule whose current local time is inside one of its
// spans and whose window has no marker yet. The marker is written before the
// call is placed, so a crash between the two skips the window instead of
// dialing it twice.
func (s *Sweeper) Sweep(ctx context.Context) (SweepResult, error) {
	if !s.mu.TryLock() {
		return SweepResult{}, ErrSweepRunning
	}
	defer s.mu.Unlock()

	if s.locker != nil {
		unlock, err := s.locker.TryLock(ctx)
		if err != nil {
			return SweepResult{}, err
		}
		defer func() {
			if err := unlock(context.WithoutCancel(ctx)); err != nil {
				s.log.Warn("sweep unlock failed", "err", err)
			}
		}()
	}

	var res SweepResult
	now := s.clock.Now()
	if !s.office.open(now) {
		return res, nil
	}

	schedules, err := s.repo.List(ctx)
	if err != nil {
		return res, err
	}
	for _, sch := range schedules {
		window, ok := ActiveWindow(sch, now)
		if !ok {
			continue
		}
		res.Due++
		created, err := s.attempts.MarkAttempt(ctx, sch.ID, window, now.UTC())
		if err != nil {
			res.Failed++
			s.log.Error("mark attempt failed", "schedule_id", sch.ID, "window_id", window, "err", err)
			continue
		}
		if !created {
			res.Handled++
			continue
		}
		if s.fire(ctx, sch, window, now) {
			res.Started++
		} else {
			res.Failed++
		}
	}
	return res, nil
}

func (s *Sweeper) fire(ctx context.Context, sch Schedule, window string, now time.Time) bool {
	log := s.log.With("schedule_id", sch.ID, "window_id", window)
	num, err := phone.Parse(sch.PhoneE164, "")
	if err == nil {
		var c calls.Call
		c, err = s.starter.StartScheduled(ctx, calls.ScheduledRequest{
			ScheduleID:    sch.ID,
			WindowID:      window,
			Phone:         num,
			PhoneHash:     sch.PhoneHash,
			DestinationID: sch.DestinationID,
		})
		if c.ID != "" {
			if err != nil {
				// Ended at once; OnFinish has already recorded the outcome.
				log.Warn("scheduled call ended at once", "call_id", c.ID, "err", err)
				return false
			}
			if !c.State.Terminal() {
				if serr := s.attempts.SetOutcome(ctx, sch.ID, window, c.ID, OutcomeStarted, now.UTC()); serr != nil {
					log.Warn("record window outcome failed", "err", serr)
				}
			}
			log.Info("scheduled call started", "call_id", c.ID)
			return true
		}
	}

	outcome := OutcomeFailed
	if errors.Is(err, apperr.ErrThrottled) {
		outcome = OutcomeThrottled
	}
	log.Warn("scheduled call not started", "outcome", outcome, "err", err)
	if serr := s.attempts.SetOutcome(ctx, sch.ID, window, "", outcome, now.UTC()); serr != nil {
		log.Warn("record window outcome failed", "err", serr)
	}
	if s.audit != nil {
		if aerr := s.audit.LogScheduleMissed(ctx, "", sch.PhoneHash, window, outcome); aerr != nil {
			log.Warn("audit missed window failed", "err", aerr)
		}
	}
	return false
}
