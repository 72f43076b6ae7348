package verification

import "time"

type Status string

const (
	StatusPending  Status = "pending"
	StatusConsumed Status = "consumed"
	// StatusLocked marks an attempt invalidated by too many wrong codes.
	StatusLocked  Status = "locked"
	StatusExpired Status = "expired"
)

// Attempt is one requested verification code for one phone number.
type Attempt struct {
	ID          string
	PhoneE164   string
	PhoneHash   string
	CallingCode int

	// CodeDigest is a keyed digest of the code; the code itself is only ever
	// held in memory long enough to send it.
	CodeDigest string

	// Failures counts rejected submissions.
	Failures int
	Status   Status

	CreatedAt time.Time
	ExpiresAt time.Time
	UpdatedAt time.Time
}

// Result is returned by a successful confirmation.
type Result struct {
	SessionID    string
	SessionToken string
	ExpiresAt    time.Time
}

// Stats are verification outcome counts for reporting.
type Stats struct {
	Requested int
	Consumed  int
	Locked    int
	Expired   int
	Pending   int
}
