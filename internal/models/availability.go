package models

// Availability is the answer to "can N seats be booked for this event".
// Available is the only gate; Error is informational.
type Availability struct {
	Available      bool   `json:"available"`
	MaxSeats       *int   `json:"maxSeats,omitempty"`
	RemainingSeats *int   `json:"remainingSeats,omitempty"`
	Error          string `json:"error,omitempty"`
}
