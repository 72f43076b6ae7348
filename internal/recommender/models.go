package recommender

import "time"

// Destination is a person Users can be connected to. Records are owned by the
// campaign import and read-mostly here.
type Destination struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Country string `json:"country"`
	// Phone is the E.164 number dialed for the Destination leg.
	Phone string `json:"-"`

	// Swayability is the campaign-assigned weight. Higher is suggested more
	// often; values <= 0 are never preferred over positive ones.
	Swayability float64 `json:"swayability"`

	SuggestedCount  int64     `json:"suggested_count"`
	LastSuggestedAt time.Time `json:"last_suggested_at,omitempty"`
}

// MaxSearchResults caps one name search.
const MaxSearchResults = 20

type SearchQuery struct {
	Name    string
	Country string
	// AllCountries searches every country, ranking Country first if set.
	AllCountries bool
	Limit        int
}

type SelectionKind string

const (
	SelectionSuggested SelectionKind = "suggested"
	SelectionSelected  SelectionKind = "selected"
)

// SelectionEvent is one entry of the selection log.
type SelectionEvent struct {
	ID            string
	DestinationID string
	Kind          SelectionKind
	SessionID     string
	CreatedAt     time.Time
}
