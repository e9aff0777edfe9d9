package domain

import "time"

// Claims is the verified content of a bearer token.
type Claims struct {
	TokenID   string
	UserID    string
	Role      Role
	IssuedAt  time.Time
	ExpiresAt time.Time
}
