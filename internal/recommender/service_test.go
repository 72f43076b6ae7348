package recommender

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"callbridge/internal/apperr"
	"callbridge/internal/session"
	"callbridge/pkg/logger"
)

func newTestService(t *testing.T, k int, dests ...Destination) (*Service, *MemoryRepo, *session.MemoryStore) {
	t.Helper()
	fc := clockwork.NewFakeClockAt(time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC))
	repo := NewMemoryRepo(dests...)
	sessions := session.NewMemoryStore(fc)
	if err := sessions.Create(context.Background(), session.Session{ID: "s1", Phone: "+431234567", ExpiresAt: fc.Now().Add(time.Hour)}); err != nil {
		t.Fatalf("create session: %v", err)
	}
	svc := NewService(repo, sessions, NewPicker(k, rand.New(rand.NewSource(7))), fc, logger.Discard())
	return svc, repo, sessions
}

func TestSuggestForSessionRotates(t *testing.T) {
	svc, repo, sessions := newTestService(t, 2, pool("a", "b", "c")...)
	ctx := context.Background()

	var got []string
	for i := 0; i < 6; i++ {
		d, err := svc.SuggestForSession(ctx, "s1", "at")
		if err != nil {
			t.Fatalf("suggest: %v", err)
		}
		got = append(got, d.ID)
	}
	for i := 2; i < len(got); i++ {
		if got[i] == got[i-1] || got[i] == got[i-2] {
			t.Fatalf("suggestion %d repeats one of the last 2: %v", i, got)
		}
	}
	s, _ := sessions.Get(ctx, "s1")
	if s.SelectedDestinationID != got[len(got)-1] || len(s.Recent) != 2 {
		t.Fatalf("unexpected session state %+v", s)
	}
	d, _ := repo.Get(ctx, got[0])
	if d.SuggestedCount == 0 {
		t.Fatalf("expected suggestion counter to be bumped")
	}
}

func TestSuggestForSessionConcurrentRenewals(t *testing.T) {
	svc, _, sessions := newTestService(t, 1, pool("a", "b", "c", "d")...)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.SuggestForSession(ctx, "s1", ""); err != nil {
				t.Errorf("suggest: %v", err)
			}
		}()
	}
	wg.Wait()
	s, _ := sessions.Get(ctx, "s1")
	if len(s.Recent) != 1 {
		t.Fatalf("expected bounded recent list, got %v", s.Recent)
	}
}

func TestSuggestEmptyPool(t *testing.T) {
	svc, _, _ := newTestService(t, 2, pool("a")...)
	if _, err := svc.SuggestForSession(context.Background(), "s1", "DE"); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found for empty pool, got %v", err)
	}
	if _, err := svc.Suggest(context.Background(), "DE", nil); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found for empty pool, got %v", err)
	}
}

func TestSelectBypassesWeightingAndUpdatesRecent(t *testing.T) {
	dests := []Destination{
		{ID: "popular", Country: "AT", Swayability: 1},
		{ID: "ignored", Country: "AT", Swayability: 0},
	}
	svc, repo, sessions := newTestService(t, 1, dests...)
	ctx := context.Background()

	d, err := svc.Select(ctx, "s1", "ignored")
	if err != nil || d.ID != "ignored" {
		t.Fatalf("select: %+v %v", d, err)
	}
	s, _ := sessions.Get(ctx, "s1")
	if s.SelectedDestinationID != "ignored" || s.Last() != "ignored" {
		t.Fatalf("unexpected session %+v", s)
	}
	next, _ := svc.SuggestForSession(ctx, "s1", "AT")
	if next.ID == "ignored" {
		t.Fatalf("renew re-suggested the selected destination")
	}
	if evs := repo.Events(); len(evs) != 2 || evs[0].Kind != SelectionSelected {
		t.Fatalf("unexpected selection log %+v", evs)
	}
	if _, err := svc.Select(ctx, "s1", "nope"); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestIsValidChoice(t *testing.T) {
	svc, _, _ := newTestService(t, 1,
		Destination{ID: "a", Country: "AT", Phone: "+4311111"},
		Destination{ID: "b", Country: "AT"},
	)
	ctx := context.Background()
	if _, ok, _ := svc.IsValidChoice(ctx, "a"); !ok {
		t.Fatalf("expected a valid")
	}
	if _, ok, _ := svc.IsValidChoice(ctx, "b"); ok {
		t.Fatalf("expected destination without number to be invalid")
	}
	if _, ok, err := svc.IsValidChoice(ctx, "zz"); ok || err != nil {
		t.Fatalf("expected unknown id invalid without error, got %v %v", ok, err)
	}
}

func TestSearchByName(t *testing.T) {
	svc, _, _ := newTestService(t, 1,
		Destination{ID: "at1", Name: "Anna Miersch", Country: "AT"},
		Destination{ID: "de1", Name: "Jan Miersen", Country: "DE"},
		Destination{ID: "de2", Name: "Karl Maier", Country: "DE"},
		Destination{ID: "be1", Name: "Els MIERS", Country: "BE"},
	)
	ctx := context.Background()

	got, err := svc.Search(ctx, "miers", "de", true, 0)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	ids := make([]string, len(got))
	for i, d := range got {
		ids[i] = d.ID
	}
	if len(ids) != 3 || ids[0] != "de1" {
		t.Fatalf("expected three matches with DE first, got %v", ids)
	}

	got, err = svc.Search(ctx, "MIERS", "DE", false, 0)
	if err != nil || len(got) != 1 || got[0].ID != "de1" {
		t.Fatalf("expected only the DE match, got %+v %v", got, err)
	}

	got, err = svc.Search(ctx, "miers", "", true, 1)
	if err != nil || len(got) != 1 {
		t.Fatalf("expected limit to apply, got %+v %v", got, err)
	}
}

func TestSearchValidation(t *testing.T) {
	svc, _, _ := newTestService(t, 1, pool("a")...)
	ctx := context.Background()
	cases := []struct {
		name, country string
		all           bool
		limit         int
	}{
		{name: " ", all: true},
		{name: "x", all: false},
		{name: "x", all: true, limit: MaxSearchResults + 1},
		{name: "x", all: true, limit: -1},
	}
	for _, tc := range cases {
		if _, err := svc.Search(ctx, tc.name, tc.country, tc.all, tc.limit); !errors.Is(err, apperr.ErrValidation) {
			t.Fatalf("%+v: expected validation error, got %v", tc, err)
		}
	}
}
