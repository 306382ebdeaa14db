package workouts

import "time"

type Workout struct {
	ID          int       `json:"id"`
	TrainerID   int       `json:"trainerId"`
	WorkoutDate time.Time `json:"workoutDate"`
	WorkoutType string    `json:"workoutType,omitempty"`
	Notes       string    `json:"notes,omitempty"`
	IsCompleted bool      `json:"isCompleted"`
	// set when the workout is reflected in google calendar
	GoogleEventID string `json:"googleEventId,omitempty"`
	// workouts imported from google, as opposed to trainer-authored ones
	FromGoogleImport bool `json:"fromGoogleImport"`

	// ids of linked trainees (paired sessions have more than one)
	TraineeIDs []int `json:"traineeIds,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
}
