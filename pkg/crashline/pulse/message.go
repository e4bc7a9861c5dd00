package pulse

import (
	"time"

	"github.com/strongdm/crashline/pkg/crashline"
)

// Event types carried in DataMessage.Type.
const (
	TypeSessionStart = "session_start"
	TypeSessionEnd   = "session_end"
	TypeTiming       = "mobile_event_timing"
)

// EventType classifies a timing event.
type EventType int

const (
	// ViewLoaded is the time taken to load a screen or page.
	ViewLoaded EventType = iota
	// NetworkCall is the duration of an outbound request.
	NetworkCall
)

// Code returns the single-letter timing type used on the wire.
func (t EventType) Code() string {
	if t == ViewLoaded {
		return "p"
	}
	return "n"
}

func (t EventType) String() string {
	switch t {
	case ViewLoaded:
		return "view_loaded"
	case NetworkCall:
		return "network_call"
	default:
		return "unknown"
	}
}

// Message is the envelope posted to the pulse endpoint.
type Message struct {
	EventData []DataMessage `json:"eventData"`
}

// DataMessage is one session or timing event.
type DataMessage struct {
	SessionID string              `json:"sessionId"`
	Timestamp time.Time           `json:"timestamp"`
	Type      string              `json:"type"`
	Version   string              `json:"version"`
	OS        string              `json:"os"`
	OSVersion string              `json:"osVersion"`
	Platform  string              `json:"platform"`
	User      *crashline.UserInfo `json:"user,omitempty"`
	// Data is a JSON-encoded []Data for timing events, empty for session events.
	Data string `json:"data,omitempty"`
}

// Data names the measured resource and its timing.
type Data struct {
	Name   string `json:"name"`
	Timing Timing `json:"timing"`
}

// Timing is a duration in milliseconds with its single-letter type.
type Timing struct {
	Type     string `json:"type"`
	Duration int64  `json:"duration"`
}
