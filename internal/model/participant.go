package model

import "time"

// Participant records one identity's membership in a session. At most one
// active record (LeftAt unset) may exist per (SessionID, UserID).
type Participant struct {
	ID        string     `json:"id" bson:"_id"`
	SessionID string     `json:"sessionId" bson:"sessionId"`
	UserID    string     `json:"userId" bson:"userId"`
	JoinedAt  time.Time  `json:"joinedAt" bson:"joinedAt"`
	LeftAt    *time.Time `json:"leftAt,omitempty" bson:"leftAt,omitempty"`
	Active    bool       `json:"-" bson:"active"`
}
