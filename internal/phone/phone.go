// Package phone normalizes User phone numbers and derives the peppered hash
// stored in place of the raw number wherever dialing does not need it.
package phone

import (
	"crypto/sha256"
	"encoding/base64"
	"strings"

	"github.com/nyaruka/phonenumbers"

	"callbridge/internal/apperr"
)

type Number struct {
	// E164 is the canonical dialable form, e.g. +431234567.
	E164        string
	CallingCode int
	// Region is the ISO 3166 code the number belongs to, "" if ambiguous.
	Region string
}

// Parse normalizes raw to E.164. defaultRegion is consulted only for input
// without a leading +. Numbers that cannot be a dialable number return a
// validation error.
func Parse(raw, defaultRegion string) (Number, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Number{}, apperr.Validation("phone number is required")
	}
	num, err := phonenumbers.Parse(raw, defaultRegion)
	if err != nil {
		return Number{}, apperr.Validation("malformed phone number")
	}
	if !phonenumbers.IsPossibleNumber(num) {
		return Number{}, apperr.Validation("malformed phone number")
	}
	return Number{
		E164:        phonenumbers.Format(num, phonenumbers.E164),
		CallingCode: int(num.GetCountryCode()),
		Region:      phonenumbers.GetRegionCodeForNumber(num),
	}, nil
}

// Hasher derives stable, non-reversible identifiers for numbers.
type Hasher struct {
	pepper []byte
}

func NewHasher(pepper string) Hasher {
	return Hasher{pepper: []byte(pepper)}
}

// Hash returns base64(sha256(pepper || e164)).
func (h Hasher) Hash(e164 string) string {
	sum := sha256.New()
	sum.Write(h.pepper)
	sum.Write([]byte(e164))
	return base64.StdEncoding.EncodeToString(sum.Sum(nil))
}

// Mask keeps the calling code and the last two digits for logs.
func Mask(e164 string) string {
	if len(e164) <= 5 {
		return "***"
	}
	return e164[:3] + strings.Repeat("*", len(e164)-5) + e164[len(e164)-2:]
}
