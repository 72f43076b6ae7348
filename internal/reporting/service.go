package reporting

import (
	"context"
	"errors"
	"time"

	"callbridge/internal/calls"
	"callbridge/internal/pricing"
	"callbridge/internal/schedule"
	"callbridge/internal/verification"
)

var ErrInvalidRequest = errors.New("reporting: invalid request")

// Sources are the read paths reporting aggregates over. Reports are computed
// from immutable or terminal records only; nothing here writes.
type CallSource interface {
	List(ctx context.Context, f calls.Filter) ([]calls.Call, error)
}

type VerificationSource interface {
	Stats(ctx context.Context, since time.Time) (verification.Stats, error)
}

type ScheduleSource interface {
	ListAttempts(ctx context.Context, since time.Time) ([]schedule.Attempt, error)
}

type Pricer interface {
	CalculateCallCost(ctx context.Context, req pricing.CallCostRequest) (pricing.CallCost, error)
}

type Service struct {
	calls         CallSource
	verifications VerificationSource
	schedules     ScheduleSource
	pricer        Pricer
}

func NewService(c CallSource, v VerificationSource, s ScheduleSource, p Pricer) *Service {
	return &Service{calls: c, verifications: v, schedules: s, pricer: p}
}

func (r TimeRange) valid() bool {
	return !r.From.IsZero() && !r.To.IsZero() && r.To.After(r.From)
}

func (s *Service) CallsSummary(ctx context.Context, req CallsSummaryRequest) (CallsSummary, error) {
	if !req.Range.valid() {
		return CallsSummary{}, ErrInvalidRequest
	}
	if req.Kind != "" && req.Kind != string(calls.KindInstant) && req.Kind != string(calls.KindScheduled) {
		return CallsSummary{}, ErrInvalidRequest
	}
	if s.calls == nil {
		return CallsSummary{}, errors.New("reporting: call source not configured")
	}

	rows, err := s.calls.List(ctx, calls.Filter{Since: req.Range.From, Until: req.Range.To, Kind: calls.Kind(req.Kind)})
	if err != nil {
		return CallsSummary{}, err
	}

	out := CallsSummary{Range: req.Range, Kind: req.Kind, ByState: map[string]int{}}
	for _, c := range rows {
		out.TotalCalls++
		out.TotalDurationSeconds += c.DurationSeconds
		out.ByState[string(c.State)]++
		switch c.State {
		case calls.StateCompleted:
			out.CompletedCalls++
		case calls.StateUserNoAnswer, calls.StateDestinationNoAnswer:
			out.NoAnswerCalls++
		case calls.StateUserRejected:
			out.RejectedCalls++
		case calls.StateDestinationBusy:
			out.BusyCalls++
		case calls.StateDestinationUnavailable:
			out.UnavailableCalls++
		case calls.StateCarrierError:
			out.CarrierErrors++
		case calls.StateCanceled:
			out.CanceledCalls++
		default:
			out.InProgressCalls++
		}
	}
	if out.CompletedCalls > 0 {
		out.AverageDurationSeconds = out.TotalDurationSeconds / out.CompletedCalls
	}
	return out, nil
}

func (s *Service) VerificationSummary(ctx context.Context, since time.Time) (VerificationSummary, error) {
	if s.verifications == nil {
		return VerificationSummary{}, errors.New("reporting: verification source not configured")
	}
	st, err := s.verifications.Stats(ctx, since)
	if err != nil {
		return VerificationSummary{}, err
	}
	out := VerificationSummary{
		Since:     since,
		Requested: st.Requested,
		Consumed:  st.Consumed,
		Locked:    st.Locked,
		Expired:   st.Expired,
		Pending:   st.Pending,
	}
	if st.Requested > 0 {
		out.SuccessRate = float64(st.Consumed) / float64(st.Requested)
	}
	return out, nil
}

// CostSummary prices every call that was bridged in the range. Calls that
// cannot be priced are counted, not failed.
func (s *Service) CostSummary(ctx context.Context, req CostSummaryRequest) (CostSummary, error) {
	if !req.Range.valid() {
		return CostSummary{}, ErrInvalidRequest
	}
	if s.calls == nil || s.pricer == nil {
		return CostSummary{}, errors.New("reporting: cost sources not configured")
	}

	rows, err := s.calls.List(ctx, calls.Filter{Since: req.Range.From, Until: req.Range.To})
	if err != nil {
		return CostSummary{}, err
	}

	out := CostSummary{Range: req.Range, ByDestinationCountry: map[string]int64{}}
	for _, c := range rows {
		if c.BridgedAt == nil || c.DurationSeconds <= 0 {
			continue
		}
		cost, err := s.pricer.CalculateCallCost(ctx, pricing.CallCostRequest{
			UserCountry:        c.UserRegion,
			DestinationCountry: c.DestinationCountry,
			DurationSeconds:    c.DurationSeconds,
			At:                 *c.BridgedAt,
		})
		if err != nil {
			out.UnpricedCalls++
			continue
		}
		if out.Currency == "" {
			out.Currency = cost.Currency
		}
		if cost.Currency != out.Currency {
			out.UnpricedCalls++
			continue
		}
		out.PricedCalls++
		out.BillableMinutes += cost.BillableMinutes
		out.TotalMinor += cost.TotalMinor
		out.ByDestinationCountry[c.DestinationCountry] += cost.TotalMinor
	}
	if out.Currency == "" {
		out.Currency = "UNKNOWN"
	}
	return out, nil
}

func (s *Service) ScheduleSummary(ctx context.Context, since time.Time) (ScheduleSummary, error) {
	if s.schedules == nil {
		return ScheduleSummary{}, errors.New("reporting: schedule source not configured")
	}
	attempts, err := s.schedules.ListAttempts(ctx, since)
	if err != nil {
		return ScheduleSummary{}, err
	}
	out := ScheduleSummary{Since: since, ByOutcome: map[string]int{}}
	for _, a := range attempts {
		out.Windows++
		out.ByOutcome[a.Outcome]++
		switch a.Outcome {
		case string(calls.StateCompleted):
			out.Completed++
		case schedule.OutcomePending, schedule.OutcomeStarted:
			out.Open++
		default:
			out.Missed++
		}
	}
	return out, nil
}
