package model

import "time"

type SessionStatus string

const (
	SessionWaiting SessionStatus = "waiting"
	SessionLive    SessionStatus = "live"
	SessionEnded   SessionStatus = "ended"
)

// Capacity bounds enforced at creation time.
const (
	MinParticipants     = 1
	MaxParticipantsCap  = 100
	DefaultParticipants = 10
)

// Session is a bounded-capacity live gathering. CurrentParticipants is
// maintained exclusively through conditional store updates and must always
// equal the number of participants with no LeftAt.
type Session struct {
	ID                  string        `json:"id" bson:"_id"`
	RoomCode            string        `json:"roomCode" bson:"roomCode"`
	OwnerID             string        `json:"ownerId" bson:"ownerId"`
	Title               string        `json:"title" bson:"title"`
	Description         string        `json:"description,omitempty" bson:"description,omitempty"`
	Subject             string        `json:"subject,omitempty" bson:"subject,omitempty"`
	MaxParticipants     int           `json:"maxParticipants" bson:"maxParticipants"`
	PasswordHash        string        `json:"-" bson:"passwordHash,omitempty"`
	Status              SessionStatus `json:"status" bson:"status"`
	CurrentParticipants int           `json:"currentParticipants" bson:"currentParticipants"`
	CreatedAt           time.Time     `json:"createdAt" bson:"createdAt"`
	StartedAt           *time.Time    `json:"startedAt,omitempty" bson:"startedAt,omitempty"`
	EndedAt             *time.Time    `json:"endedAt,omitempty" bson:"endedAt,omitempty"`
}

// HasPassword reports whether joining requires a password.
func (s *Session) HasPassword() bool {
	return s.PasswordHash != ""
}

// SessionSummary is the public shape returned when resolving a room code.
type SessionSummary struct {
	ID          string        `json:"id"`
	RoomCode    string        `json:"roomCode"`
	HasPassword bool          `json:"hasPassword"`
	Status      SessionStatus `json:"status"`
}

// Summary builds the code-resolution view of a session.
func (s *Session) Summary() *SessionSummary {
	return &SessionSummary{
		ID:          s.ID,
		RoomCode:    s.RoomCode,
		HasPassword: s.HasPassword(),
		Status:      s.Status,
	}
}
