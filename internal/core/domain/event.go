package domain

import "time"

// AuthEventType names an auth lifecycle event published to the broker.
type AuthEventType string

const (
	EventUserSignedUp AuthEventType = "user.signed_up"
	EventUserLoggedIn AuthEventType = "user.logged_in"
)

// AuthEvent is emitted after a successful signup or login.
type AuthEvent struct {
	Type       AuthEventType `json:"type"`
	UserID     string        `json:"user_id"`
	Role       Role          `json:"role"`
	OccurredAt time.Time     `json:"occurred_at"`
}
