package calendar

import (
	"errors"
	"time"
)

// Timezone all trainer calendars live in.
const EventTimeZone = "Asia/Jerusalem"

// DefaultEventDuration is used to synthesize an end time for events
// that come back from google without one.
const DefaultEventDuration = 60 * time.Minute

var (
	// ErrEventGone - the remote event was deleted outside the system (404/410)
	ErrEventGone = errors.New("event deleted remotely")
	// ErrReauthRequired - a token refresh was already retried once and failed
	ErrReauthRequired = errors.New("google calendar reauthorization required")
	// ErrRateLimited - local admission control denied the remote call
	ErrRateLimited = errors.New("too many requests")
	// ErrNotConnected - the trainer has no google calendar credentials
	ErrNotConnected = errors.New("google calendar not connected")
	// ErrInvalidRange - the requested date range is empty or inverted
	ErrInvalidRange = errors.New("invalid date range")
)

type Attendee struct {
	Email       string `json:"email"`
	DisplayName string `json:"displayName,omitempty"`
}

// Event is the remote calendar event as this system sees it. AllDay events
// carry midnight instants in the event timezone.
type Event struct {
	ID          string     `json:"id"`
	Summary     string     `json:"summary"`
	Description string     `json:"description,omitempty"`
	Location    string     `json:"location,omitempty"`
	Status      string     `json:"status,omitempty"`
	Start       time.Time  `json:"start"`
	End         time.Time  `json:"end"`
	AllDay      bool       `json:"allDay,omitempty"`
	Attendees   []Attendee `json:"attendees,omitempty"`
}

// Overlaps reports whether the event intersects [from, to].
func (e Event) Overlaps(from, to time.Time) bool {
	return !e.Start.After(to) && !e.End.Before(from)
}
