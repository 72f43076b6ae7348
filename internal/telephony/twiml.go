package telephony

import (
	"errors"
	"strconv"
	"strings"

	"github.com/twilio/twilio-go/twiml"
)

// holdSeconds is one Pause; two of them keep an idle leg open for two minutes.
const holdSeconds = "60"

// RenderHold keeps an answered leg open until the orchestrator updates it.
func RenderHold() (string, error) {
	return twiml.Voice([]twiml.Element{
		&twiml.VoicePause{Length: holdSeconds},
		&twiml.VoicePause{Length: holdSeconds},
	})
}

// RenderPrompt speaks p. Gather prompts post the digit to gatherURL; when the
// caller enters nothing, the trailing Redirect posts an empty Digits value so
// the timeout surfaces as an EventDigits too. Non-gather prompts keep the leg
// open afterwards unless HangupAfter is set.
func RenderPrompt(p Prompt, gatherURL string) (string, error) {
	text := p.Text()
	if text == "" {
		return "", errors.New("telephony: unknown prompt " + string(p.Name))
	}
	say := &twiml.VoiceSay{Message: text}
	if !p.Gather {
		var tail twiml.Element = &twiml.VoicePause{Length: holdSeconds}
		if p.HangupAfter {
			tail = &twiml.VoiceHangup{}
		}
		return twiml.Voice([]twiml.Element{say, tail})
	}
	if strings.TrimSpace(gatherURL) == "" {
		return "", errors.New("telephony: gather url required")
	}
	timeout := int(p.Timeout.Seconds())
	if timeout < 1 {
		timeout = 5
	}
	return twiml.Voice([]twiml.Element{
		&twiml.VoiceGather{
			Input:         "dtmf",
			NumDigits:     "1",
			Timeout:       strconv.Itoa(timeout),
			Action:        gatherURL,
			Method:        "POST",
			InnerElements: []twiml.Element{say},
		},
		&twiml.VoiceRedirect{Url: gatherURL, Method: "POST"},
	})
}

// RenderConference joins a leg into the named conference. The conference
// ends as soon as either party leaves.
func RenderConference(room string) (string, error) {
	if strings.TrimSpace(room) == "" {
		return "", errors.New("telephony: conference room required")
	}
	return twiml.Voice([]twiml.Element{
		&twiml.VoiceDial{InnerElements: []twiml.Element{
			&twiml.VoiceConference{
				Name:                   room,
				StartConferenceOnEnter: "true",
				EndConferenceOnExit:    "true",
				Beep:                   "false",
			},
		}},
	})
}

func RenderHangup() (string, error) {
	return twiml.Voice([]twiml.Element{&twiml.VoiceHangup{}})
}
