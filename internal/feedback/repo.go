package feedback

import "context"

type Repository interface {
	Create(ctx context.Context, f Feedback) error
	Get(ctx context.Context, token string) (Feedback, error)
	// ForCall returns the Feedback issued for callID.
	ForCall(ctx context.Context, callID string) (Feedback, error)
	// Update applies fn to the stored row atomically and stores the result
	// unless fn fails.
	Update(ctx context.Context, token string, fn func(*Feedback) error) (Feedback, error)
}
