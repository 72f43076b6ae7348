package telephony

import (
	"strings"
	"time"
)

type PromptName string

const (
	PromptMainMenu               PromptName = "main_menu"
	PromptTalkingPoints          PromptName = "talking_points"
	PromptInvalidInput           PromptName = "invalid_input"
	PromptConnecting             PromptName = "connecting"
	PromptDestinationUnavailable PromptName = "destination_unavailable"
	PromptDestinationBusy        PromptName = "destination_busy"
	PromptDestinationNoAnswer    PromptName = "destination_no_answer"
	PromptTechnicalError         PromptName = "technical_error"
	PromptGoodbye                PromptName = "goodbye"
)

// Prompt is something played on a leg. Gather prompts collect one DTMF digit
// and report it as an EventDigits, empty on timeout.
type Prompt struct {
	Name    PromptName
	Gather  bool
	Timeout time.Duration
	// Preface is spoken first, inside the same gather.
	Preface PromptName
	// HangupAfter ends the leg once the prompt finished playing.
	HangupAfter bool
	// Vars fill placeholders such as the Destination name.
	Vars map[string]string
}

// defaultPromptText is spoken through text-to-speech.
var defaultPromptText = map[PromptName]string{
	PromptMainMenu:               "You asked us to connect you with {destination}. Press 1 to be connected. Press 5 to hear some arguments first. Press 9 to end the call.",
	PromptTalkingPoints:          "Here are some arguments you can use in your conversation. Be polite, introduce yourself, and explain why this matters to you.",
	PromptInvalidInput:           "Sorry, we did not understand your choice.",
	PromptConnecting:             "Connecting you now. Please hold.",
	PromptDestinationUnavailable: "Sorry, {destination} cannot take more calls right now. Please try again later. Goodbye.",
	PromptDestinationBusy:        "Sorry, the line is busy. Please try again later. Goodbye.",
	PromptDestinationNoAnswer:    "Sorry, nobody answered. Please try again later. Goodbye.",
	PromptTechnicalError:         "Sorry, something went wrong. Please try again later. Goodbye.",
	PromptGoodbye:                "Thank you for calling. Goodbye.",
}

// Text renders p with its variables substituted. Unknown names render "".
func (p Prompt) Text() string {
	s := defaultPromptText[p.Name]
	if s == "" {
		return ""
	}
	if p.Preface != "" {
		s = defaultPromptText[p.Preface] + " " + s
	}
	for k, v := range p.Vars {
		s = strings.ReplaceAll(s, "{"+k+"}", v)
	}
	return s
}
