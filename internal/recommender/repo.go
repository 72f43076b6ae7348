package recommender

import "context"

type Repository interface {
	// List returns Destinations in country, or all of them for "".
	List(ctx context.Context, country string) ([]Destination, error)
	Get(ctx context.Context, id string) (Destination, error)
	// Search matches q.Name case-insensitively anywhere in the name.
	// Destinations of q.Country come first when all countries are searched.
	Search(ctx context.Context, q SearchQuery) ([]Destination, error)
	// RecordSelection appends to the selection log and bumps the
	// Destination's suggestion counters.
	RecordSelection(ctx context.Context, e SelectionEvent) error
}
