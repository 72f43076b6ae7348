package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	"callbridge/internal/audit"
	"callbridge/internal/auth"
	"callbridge/internal/calls"
	"callbridge/internal/config"
	"callbridge/internal/feedback"
	"callbridge/internal/httpapi"
	"callbridge/internal/phone"
	"callbridge/internal/pricing"
	"callbridge/internal/ratelimit"
	"callbridge/internal/recommender"
	"callbridge/internal/reporting"
	"callbridge/internal/schedule"
	"callbridge/internal/session"
	"callbridge/internal/telephony"
	"callbridge/internal/verification"
	"callbridge/pkg/logger"
	"callbridge/pkg/utils"
)

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)

	if err := run(rootCtx, cfg, log); err != nil {
		log.Error("api stopped", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	policy, err := config.LoadPolicy(cfg.PolicyFile)
	if err != nil {
		return err
	}

	authManager, err := auth.NewManager(cfg.Auth)
	if err != nil {
		return err
	}

	db, err := utils.OpenPostgres(ctx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{})
	if err != nil {
		return err
	}
	defer db.Close()

	if err := utils.EnsureTables(ctx, db, audit.Schema, recommender.Schema, verification.Schema, calls.Schema, schedule.Schema, feedback.Schema); err != nil {
		return err
	}

	rdb, err := utils.OpenRedis(ctx, utils.RedisConfig{Addr: cfg.RedisAddr(), Password: cfg.Redis.Password})
	if err != nil {
		return err
	}
	defer rdb.Close()

	clk := clockwork.NewRealClock()
	hasher := phone.NewHasher(cfg.Phone.Pepper)
	auditSvc := audit.NewService(audit.NewPostgresRepo(db))
	sessions := session.NewRedisStore(rdb, clk)
	limiter := ratelimit.New(ratelimit.NewRedisStore(rdb), ratelimit.PoliciesFromConfig(policy.RateLimits),
		ratelimit.WithClock(clk), ratelimit.WithLogger(log.With("component", "ratelimit")))

	carrier, sender, dryRun, err := newCarrier(cfg, log)
	if err != nil {
		return err
	}

	verRepo := verification.NewPostgresRepo(db)
	ver, err := verification.NewService(verification.Deps{
		Repo:          verRepo,
		Sessions:      sessions,
		Tokens:        authManager,
		Sender:        sender,
		Limiter:       limiter,
		Audit:         auditSvc,
		Hasher:        hasher,
		Policy:        policy.Verification,
		DefaultRegion: cfg.Phone.DefaultRegion,
		Clock:         clk,
		Logger:        log.With("component", "verification"),
	})
	if err != nil {
		return err
	}

	recs := recommender.NewService(recommender.NewPostgresRepo(db), sessions,
		recommender.NewPicker(policy.Recommender.RotationWindow, nil), clk, log.With("component", "recommender"))

	callRepo := calls.NewPostgresRepo(db)
	orch, err := calls.NewOrchestrator(calls.Deps{
		Repo:         callRepo,
		Carrier:      carrier,
		Limiter:      limiter,
		Destinations: recs,
		Guard:        calls.NewRedisGuard(rdb, policy.Calls.DestinationTimeout+policy.Calls.MaxDuration),
		Audit:        auditSvc,
		Policy:       policy.Calls,
		Clock:        clk,
		Logger:       log.With("component", "calls"),
	})
	if err != nil {
		return err
	}
	if dryRun != nil {
		dryRun.SetSink(orch)
	}

	schedRepo := schedule.NewPostgresRepo(db)
	schedules := schedule.NewService(schedRepo, schedRepo, recs, auditSvc, clk, log.With("component", "schedule"))
	orch.OnFinish(schedules.RecordOutcome)
	feedbacks := feedback.NewService(feedback.NewPostgresRepo(db), recs, policy.Feedback.TokenTTL, clk, log.With("component", "feedback"))
	orch.OnFinish(feedbacks.Issue)
	sweeper, err := schedule.NewSweeper(schedule.SweeperDeps{
		Repo:     schedRepo,
		Attempts: schedRepo,
		Starter:  orch,
		Locker:   schedule.NewRedisLocker(rdb, policy.Scheduler.SweepInterval),
		Audit:    auditSvc,
		Policy:   policy.Scheduler,
		Clock:    clk,
		Logger:   log.With("component", "scheduler"),
	})
	if err != nil {
		return err
	}

	reports := reporting.NewService(callRepo, verRepo, schedRepo, pricing.NewService(pricing.FromPolicy(policy.Pricing)))

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))
	r.Use(ratelimit.ClientIP())

	ready := map[string]httpapi.ReadyCheck{
		"postgres": func(ctx context.Context) error { return utils.HealthCheck(ctx, db, 2*time.Second) },
		"redis":    func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
		"carrier":  carrier.HealthCheck,
	}

	registerRoutes(r, routeDeps{
		cfg:      cfg,
		ready:    ready,
		policy:   policy,
		auth:     authManager,
		sessions: sessions,
		limiter:  limiter,
		sink:     orch,
		clock:    clk,
		verify:   ver,
		recs:     recs,
		calls:    orch,
		sched:    schedules,
		reports:  reports,
		feedback: feedbacks,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env, "carrier", carrier.Name())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return sweeper.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutdown initiated")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("http shutdown failed", "err", err)
		}
		if err := orch.Close(shutdownCtx); err != nil {
			log.Error("orchestrator shutdown failed", "err", err, "active_calls", orch.Active())
		}
		return nil
	})
	return g.Wait()
}

// newCarrier picks Twilio or the dry-run carrier. The dry-run carrier is
// returned separately so its event sink can be attached later.
func newCarrier(cfg config.Config, log *slog.Logger) (telephony.Carrier, verification.Sender, *telephony.DryRunCarrier, error) {
	if cfg.Telephony.DryRun {
		dr := telephony.NewDryRunCarrier(log.With("component", "carrier"), true)
		return dr, dr, dr, nil
	}
	tw, err := telephony.NewTwilioCarrier(telephony.TwilioConfig{
		AccountSID:    cfg.Telephony.AccountSID,
		AuthToken:     cfg.Telephony.AuthToken,
		FromNumber:    cfg.Telephony.FromNumber,
		PublicBaseURL: cfg.App.PublicBaseURL,
	}, &http.Client{Timeout: 15 * time.Second})
	if err != nil {
		return nil, nil, nil, err
	}
	return tw, tw, nil, nil
}
