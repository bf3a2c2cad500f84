package model

import "time"

// Notification is an in-app alert delivered to a single recipient.
// It is immutable except for the Read flag and deletion, and is only
// ever mutated by its owner.
type Notification struct {
	// ID is the unique identifier for this notification.
	ID string `json:"id"`

	// UserEmail is the recipient key.
	UserEmail string `json:"user_email"`

	// Title is the short headline.
	Title string `json:"title"`

	// Message is the human-readable notification body.
	Message string `json:"message"`

	// Read indicates whether the recipient has seen this notification.
	Read bool `json:"read"`

	// CreatedAt is when this notification was generated.
	CreatedAt time.Time `json:"created_at"`
}
