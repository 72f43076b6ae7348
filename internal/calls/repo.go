package calls

import "context"

type Repository interface {
	Create(ctx context.Context, c Call) error
	// Update overwrites a non-terminal row. Terminal rows are immutable and
	// updating one returns a conflict.
	Update(ctx context.Context, c Call) error
	Get(ctx context.Context, id string) (Call, error)
	// List returns calls created in the filter's range, oldest first.
	List(ctx context.Context, f Filter) ([]Call, error)
}

func (f Filter) limit() int {
	if f.Limit <= 0 || f.Limit > 10000 {
		return 10000
	}
	return f.Limit
}
