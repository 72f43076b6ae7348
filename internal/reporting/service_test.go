package reporting

import (
	"context"
	"testing"
	"time"

	"callbridge/internal/calls"
	"callbridge/internal/config"
	"callbridge/internal/pricing"
	"callbridge/internal/schedule"
	"callbridge/internal/verification"
)

var now = time.Unix(1700000000, 0).UTC()

func seedCalls(t *testing.T, rows ...calls.Call) *calls.MemoryRepo {
	t.Helper()
	repo := calls.NewMemoryRepo()
	for _, c := range rows {
		if err := repo.Create(context.Background(), c); err != nil {
			t.Fatalf("seed %s: %v", c.ID, err)
		}
	}
	return repo
}

func bridged(id, region, country string, seconds int) calls.Call {
	at := now.Add(time.Minute)
	return calls.Call{
		ID: id, Kind: calls.KindInstant, State: calls.StateCompleted,
		UserRegion: region, DestinationCountry: country,
		BridgedAt: &at, DurationSeconds: seconds, CreatedAt: now,
	}
}

func TestCallsSummaryCountsOutcomes(t *testing.T) {
	repo := seedCalls(t,
		bridged("c1", "DE", "BE", 30),
		bridged("c2", "DE", "BE", 90),
		calls.Call{ID: "c3", Kind: calls.KindScheduled, State: calls.StateUserNoAnswer, CreatedAt: now},
		calls.Call{ID: "c4", Kind: calls.KindInstant, State: calls.StateDestinationUnavailable, CreatedAt: now},
		calls.Call{ID: "c5", Kind: calls.KindInstant, State: calls.StateBridged, CreatedAt: now},
		calls.Call{ID: "old", Kind: calls.KindInstant, State: calls.StateCompleted, CreatedAt: now.Add(-48 * time.Hour)},
	)
	svc := NewService(repo, nil, nil, nil)
	rng := TimeRange{From: now.Add(-time.Hour), To: now.Add(time.Hour)}

	out, err := svc.CallsSummary(context.Background(), CallsSummaryRequest{Range: rng})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if out.TotalCalls != 5 || out.CompletedCalls != 2 || out.NoAnswerCalls != 1 || out.UnavailableCalls != 1 || out.InProgressCalls != 1 {
		t.Fatalf("unexpected summary %+v", out)
	}
	if out.AverageDurationSeconds != 60 || out.ByState["completed"] != 2 {
		t.Fatalf("unexpected durations %+v", out)
	}

	out, err = svc.CallsSummary(context.Background(), CallsSummaryRequest{Range: rng, Kind: "scheduled"})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if out.TotalCalls != 1 {
		t.Fatalf("expected 1 scheduled call, got %d", out.TotalCalls)
	}

	if _, err := svc.CallsSummary(context.Background(), CallsSummaryRequest{Range: TimeRange{From: now, To: now}}); err != ErrInvalidRequest {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
}

func TestCostSummaryPricesBridgedCalls(t *testing.T) {
	repo := seedCalls(t,
		bridged("c1", "DE", "BE", 30),
		bridged("c2", "DE", "FR", 90),
		calls.Call{ID: "c3", Kind: calls.KindInstant, State: calls.StateUserNoAnswer, CreatedAt: now},
	)
	pricer := pricing.NewService(pricing.FromPolicy(config.PricingPolicy{
		Currency:       "EUR",
		PerMinuteMinor: map[string]int64{"BE": 3, "DE": 4},
		DefaultMinor:   10,
	}))
	svc := NewService(repo, nil, nil, pricer)

	out, err := svc.CostSummary(context.Background(), CostSummaryRequest{Range: TimeRange{From: now.Add(-time.Hour), To: now.Add(time.Hour)}})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	// c1: 1 min * (4+3) = 7; c2: 2 min * (4+10) = 28
	if out.PricedCalls != 2 || out.TotalMinor != 35 || out.BillableMinutes != 3 {
		t.Fatalf("unexpected cost summary %+v", out)
	}
	if out.ByDestinationCountry["BE"] != 7 || out.ByDestinationCountry["FR"] != 28 || out.Currency != "EUR" {
		t.Fatalf("unexpected split %+v", out)
	}
}

func TestVerificationSummary(t *testing.T) {
	repo := verification.NewMemoryRepo()
	for i, st := range []verification.Status{verification.StatusConsumed, verification.StatusLocked, verification.StatusPending, verification.StatusConsumed} {
		a := verification.Attempt{ID: string(rune('a' + i)), Status: st, CreatedAt: now}
		if err := repo.Create(context.Background(), a); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	svc := NewService(nil, repo, nil, nil)
	out, err := svc.VerificationSummary(context.Background(), now.Add(-time.Hour))
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if out.Requested != 4 || out.Consumed != 2 || out.Locked != 1 || out.SuccessRate != 0.5 {
		t.Fatalf("unexpected summary %+v", out)
	}
}

func TestScheduleSummary(t *testing.T) {
	repo := schedule.NewMemoryRepo()
	ctx := context.Background()
	for _, w := range []string{"w1", "w2", "w3"} {
		if _, err := repo.MarkAttempt(ctx, "s1", w, now); err != nil {
			t.Fatalf("mark: %v", err)
		}
	}
	_ = repo.SetOutcome(ctx, "s1", "w1", "c1", string(calls.StateCompleted), now)
	_ = repo.SetOutcome(ctx, "s1", "w2", "", schedule.OutcomeThrottled, now)

	svc := NewService(nil, nil, repo, nil)
	out, err := svc.ScheduleSummary(ctx, now.Add(-time.Hour))
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if out.Windows != 3 || out.Completed != 1 || out.Missed != 1 || out.Open != 1 {
		t.Fatalf("unexpected summary %+v", out)
	}
}
