package telephony

import (
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	twclient "github.com/twilio/twilio-go/client"
)

// TwilioCallbackForm captures the subset of voice callback fields we care
// about. Twilio posts application/x-www-form-urlencoded; call_id and role come
// from the query string we attached when placing the leg.
type TwilioCallbackForm struct {
	CallID     string
	Role       LegRole
	CallSid    string
	CallStatus string
	Digits     string
	ErrorCode  string
	SipCode    string
}

var ErrMissingBinding = errors.New("telephony: callback without call binding")

func ParseTwilioCallback(r *http.Request) (TwilioCallbackForm, error) {
	if err := r.ParseForm(); err != nil {
		return TwilioCallbackForm{}, err
	}
	q := r.URL.Query()
	f := TwilioCallbackForm{
		CallID:     strings.TrimSpace(q.Get("call_id")),
		Role:       LegRole(q.Get("role")),
		CallSid:    r.PostFormValue("CallSid"),
		CallStatus: r.PostFormValue("CallStatus"),
		ErrorCode:  r.PostFormValue("ErrorCode"),
		SipCode:    r.PostFormValue("SipResponseCode"),
	}
	f.Digits = strings.TrimSpace(r.PostFormValue("Digits"))
	if f.CallID == "" || (f.Role != LegUser && f.Role != LegDestination) {
		return f, ErrMissingBinding
	}
	return f, nil
}

// StatusEvent maps a status callback to an Event. Progress statuses such as
// ringing are not events and return ok=false.
func (f TwilioCallbackForm) StatusEvent(at time.Time) (Event, bool) {
	ev := Event{CallID: f.CallID, LegID: f.CallSid, Role: f.Role, At: at}
	switch f.CallStatus {
	case "in-progress":
		ev.Type = EventAnswered
	case "completed", "canceled":
		ev.Type = EventHangup
	case "busy":
		ev.Type = EventBusy
	case "no-answer":
		ev.Type = EventNoAnswer
	case "failed":
		ev.Type = EventFailed
		ev.Reason = f.reason()
	default:
		return Event{}, false
	}
	return ev, true
}

// AnsweredEvent is emitted when Twilio fetches the voice URL, which happens
// once the leg is picked up.
func (f TwilioCallbackForm) AnsweredEvent(at time.Time) Event {
	return Event{CallID: f.CallID, LegID: f.CallSid, Role: f.Role, Type: EventAnswered, At: at}
}

// DigitsEvent reports gathered input. A redirect after a silent gather
// carries no Digits and maps to empty input.
func (f TwilioCallbackForm) DigitsEvent(at time.Time) Event {
	return Event{CallID: f.CallID, LegID: f.CallSid, Role: f.Role, Type: EventDigits, Digits: f.Digits, At: at}
}

func (f TwilioCallbackForm) reason() string {
	parts := make([]string, 0, 2)
	if f.ErrorCode != "" {
		parts = append(parts, "error_code="+f.ErrorCode)
	}
	if f.SipCode != "" {
		parts = append(parts, "sip="+f.SipCode)
	}
	return strings.Join(parts, " ")
}

// ValidTwilioSignature checks X-Twilio-Signature for a form POST to fullURL.
// Twilio posts each field once, so only the first value of a key is signed.
func ValidTwilioSignature(authToken, fullURL string, form url.Values, signature string) bool {
	if signature == "" {
		return false
	}
	params := make(map[string]string, len(form))
	for k := range form {
		params[k] = form.Get(k)
	}
	rv := twclient.NewRequestValidator(authToken)
	return rv.Validate(fullURL, params, signature)
}
