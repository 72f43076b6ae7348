package main

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"

	"callbridge/internal/auth"
	"callbridge/internal/calls"
	"callbridge/internal/config"
	"callbridge/internal/feedback"
	"callbridge/internal/httpapi"
	"callbridge/internal/ratelimit"
	"callbridge/internal/rbac"
	"callbridge/internal/recommender"
	"callbridge/internal/reporting"
	"callbridge/internal/schedule"
	"callbridge/internal/session"
	"callbridge/internal/telephony"
	"callbridge/internal/verification"
)

type routeDeps struct {
	cfg      config.Config
	ready    map[string]httpapi.ReadyCheck
	policy   config.Policy
	auth     *auth.Manager
	sessions session.Store
	limiter  *ratelimit.Limiter
	sink     telephony.EventSink
	clock    clockwork.Clock

	verify   *verification.Service
	recs     *recommender.Service
	calls    *calls.Orchestrator
	sched    *schedule.Service
	reports  *reporting.Service
	feedback *feedback.Service
}

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, d routeDeps) {
	h := httpapi.Handlers{
		Verification:        d.verify,
		Sessions:            d.sessions,
		Destinations:        d.recs,
		Calls:               d.calls,
		Schedules:           d.sched,
		Reports:             d.reports,
		Feedback:            d.feedback,
		Clock:               d.clock,
		AllCountriesDefault: d.policy.Recommender.AllCountriesDefault,
	}

	// public
	r.GET("/healthz", httpapi.Health)
	r.GET("/readyz", httpapi.Ready(d.ready))

	// Carrier webhooks. Signatures are checked whenever a real carrier is configured.
	hook := telephony.TwilioWebhookHandler{
		Sink:          d.sink,
		PublicBaseURL: d.cfg.App.PublicBaseURL,
		Now:           time.Now,
	}
	if !d.cfg.Telephony.DryRun {
		hook.AuthToken = d.cfg.Telephony.AuthToken
	}
	hook.Register(r)

	v1 := r.Group("/v1")

	verify := v1.Group("/verification")
	{
		verify.POST("/request", h.RequestVerification)
		verify.POST("/confirm", h.ConfirmVerification)
	}

	// Public lookups. The feedback token is its own credential.
	public := v1.Group("", ratelimit.Middleware(d.limiter, config.ActionSuggest))
	{
		public.GET("/destinations/search", h.SearchDestinations)
		public.GET("/call/feedback/:token", h.GetFeedback)
		public.POST("/call/feedback/:token", h.SubmitFeedback)
	}

	// User routes need a live User-Session.
	user := v1.Group("")
	user.Use(auth.RequireSession(d.auth, d.sessions, d.clock))
	{
		user.POST("/session/logout", h.Logout)

		user.GET("/destinations/suggested", ratelimit.Middleware(d.limiter, config.ActionSuggest), h.SuggestDestination)
		user.POST("/destinations/:id/select", h.SelectDestination)

		user.POST("/calls", h.StartCall)
		user.GET("/calls/:id", h.GetCall)
		user.POST("/calls/:id/cancel", h.CancelCall)

		user.GET("/schedule", h.GetSchedule)
		user.PUT("/schedule", ratelimit.Middleware(d.limiter, config.ActionSchedule), h.PutSchedule)
		user.DELETE("/schedule", h.DeleteSchedule)
	}

	// Operator reports. admin passes every role check.
	reports := v1.Group("/admin/reports")
	reports.Use(auth.RequireOperator(d.auth, d.clock))
	{
		reports.GET("/calls", rbac.RequireAnyRole(rbac.RoleAnalyst), h.CallsReport)
		reports.GET("/verifications", rbac.RequireAnyRole(rbac.RoleAnalyst), h.VerificationsReport)
		reports.GET("/schedules", rbac.RequireAnyRole(rbac.RoleAnalyst), h.SchedulesReport)
		reports.GET("/costs", rbac.RequireAnyRole(rbac.RoleFinance), h.CostsReport)
	}
}
