package calendar

import "time"

type SyncStatus string

const (
	SyncStatusSynced  SyncStatus = "synced"
	SyncStatusFailed  SyncStatus = "failed"
	SyncStatusPending SyncStatus = "pending"
)

func (s SyncStatus) IsValid() bool {
	switch s {
	case SyncStatusSynced, SyncStatusFailed, SyncStatusPending:
		return true
	}
	return false
}

// SyncDirection says which side is authoritative for a linked event.
type SyncDirection string

const (
	// DirectionToGoogle - trainer-authored, pushed one way to google
	DirectionToGoogle SyncDirection = "to_google"
	// DirectionFromGoogle - imported from google into the local schedule
	DirectionFromGoogle SyncDirection = "from_google"
	DirectionBidirectional SyncDirection = "bidirectional"
)

func (d SyncDirection) IsValid() bool {
	switch d {
	case DirectionToGoogle, DirectionFromGoogle, DirectionBidirectional:
		return true
	}
	return false
}

// SyncRecord is the durable link between one google calendar event and the
// trainer's domain. (GoogleEventID, GoogleCalendarID) is unique.
type SyncRecord struct {
	ID               int           `json:"id"`
	TrainerID        int           `json:"trainerId"`
	TraineeID        int           `json:"traineeId,omitempty"`
	WorkoutID        int           `json:"workoutId,omitempty"`
	GoogleEventID    string        `json:"googleEventId"`
	GoogleCalendarID string        `json:"googleCalendarId"`
	SyncStatus       SyncStatus    `json:"syncStatus"`
	SyncDirection    SyncDirection `json:"syncDirection"`
	EventStartTime   time.Time     `json:"eventStartTime"`
	EventEndTime     time.Time     `json:"eventEndTime"`
	EventSummary     string        `json:"eventSummary,omitempty"`
	EventDescription string        `json:"eventDescription,omitempty"`
	LastSyncedAt     time.Time     `json:"lastSyncedAt"`
}

// ToEvent rebuilds the displayable event from the cached fields.
func (sr SyncRecord) ToEvent() Event {
	end := sr.EventEndTime
	if end.IsZero() {
		end = sr.EventStartTime.Add(DefaultEventDuration)
	}
	return Event{
		ID:          sr.GoogleEventID,
		Summary:     sr.EventSummary,
		Description: sr.EventDescription,
		Start:       sr.EventStartTime,
		End:         end,
	}
}
