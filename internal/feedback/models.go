package feedback

import "time"

// Feedback is the post-call questionnaire of one completed Call. The token is
// handed to the User when the call ends and is good for a single submission.
type Feedback struct {
	Token         string
	CallID        string
	DestinationID string
	PhoneHash     string
	CallingCode   int

	IssuedAt  time.Time
	ExpiresAt time.Time
	// EnteredAt is set once the User submitted.
	EnteredAt *time.Time

	Convinced         Convinced
	TechnicalProblems *bool
	Additional        string
}

func (f Feedback) Used() bool { return f.EnteredAt != nil }

func (f Feedback) Expired(now time.Time) bool { return !now.Before(f.ExpiresAt) }

// Convinced is the User's guess whether the Destination was swayed.
type Convinced string

const (
	ConvincedYes       Convinced = "yes"
	ConvincedLikelyYes Convinced = "likely-yes"
	ConvincedLikelyNo  Convinced = "likely-no"
	ConvincedNo        Convinced = "no"
)

func (c Convinced) Valid() bool {
	switch c {
	case "", ConvincedYes, ConvincedLikelyYes, ConvincedLikelyNo, ConvincedNo:
		return true
	}
	return false
}

// Submission is what the User enters. Every field is optional.
type Submission struct {
	Convinced         Convinced `json:"convinced"`
	TechnicalProblems *bool     `json:"technical_problems"`
	Additional        string    `json:"additional"`
}
