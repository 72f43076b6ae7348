package verification

import (
	"context"
	"time"
)

type Repository interface {
	Create(ctx context.Context, a Attempt) error
	Get(ctx context.Context, id string) (Attempt, error)
	// Update applies fn to the attempt under a row lock and persists the
	// result unless fn returns an error.
	Update(ctx context.Context, id string, fn func(*Attempt) error) (Attempt, error)
	Stats(ctx context.Context, since time.Time) (Stats, error)
}
