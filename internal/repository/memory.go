package repository

import (
	"context"
	"liveclass/internal/cache"
	"liveclass/internal/model"
	"sync"
	"time"
)

// Store is an in-memory stand-in for mongod and redis, used by tests. A
// single mutex provides the atomicity the Mongo conditional updates give
// the real repositories.
type Store struct {
	mu           sync.Mutex
	sessions     map[string]*model.Session
	participants []*model.Participant
	codes        map[string]string
}

func NewStore() *Store {
	return &Store{
		sessions: make(map[string]*model.Session),
		codes:    make(map[string]string),
	}
}

// Sessions returns the store's SessionRepo view.
func (s *Store) Sessions() SessionRepo { return &storeSessions{s} }

// Participants returns the store's ParticipantRepo view.
func (s *Store) Participants() ParticipantRepo { return &storeParticipants{s} }

// Codes returns the store's code index view.
func (s *Store) Codes() cache.CodeIndex { return &storeCodes{s} }

type storeSessions struct{ s *Store }
type storeParticipants struct{ s *Store }
type storeCodes struct{ s *Store }

// Ensure interfaces are met.
var _ SessionRepo = (*storeSessions)(nil)
var _ ParticipantRepo = (*storeParticipants)(nil)
var _ cache.CodeIndex = (*storeCodes)(nil)

func cloneSession(s *model.Session) *model.Session {
	c := *s
	return &c
}

func cloneParticipant(p *model.Participant) *model.Participant {
	c := *p
	return &c
}

// --- SessionRepo ---

func (v *storeSessions) Create(ctx context.Context, session *model.Session) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	v.s.sessions[session.ID] = cloneSession(session)
	return nil
}

func (v *storeSessions) GetByID(ctx context.Context, id string) (*model.Session, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	if session, ok := v.s.sessions[id]; ok {
		return cloneSession(session), nil
	}
	return nil, nil
}

func (v *storeSessions) GetJoinableByCode(ctx context.Context, code string) (*model.Session, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	for _, session := range v.s.sessions {
		if session.RoomCode == code && session.Status != model.SessionEnded {
			return cloneSession(session), nil
		}
	}
	return nil, nil
}

func (v *storeSessions) ListByStatus(ctx context.Context, statuses ...model.SessionStatus) ([]*model.Session, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	var result []*model.Session
	for _, session := range v.s.sessions {
		for _, status := range statuses {
			if session.Status == status {
				result = append(result, cloneSession(session))
				break
			}
		}
	}
	sortSessionsNewestFirst(result)
	return result, nil
}

func (v *storeSessions) ListByOwner(ctx context.Context, ownerID string) ([]*model.Session, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	var result []*model.Session
	for _, session := range v.s.sessions {
		if session.OwnerID == ownerID {
			result = append(result, cloneSession(session))
		}
	}
	sortSessionsNewestFirst(result)
	return result, nil
}

func (v *storeSessions) ListStaleActive(ctx context.Context, createdBefore time.Time) ([]*model.Session, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	var result []*model.Session
	for _, session := range v.s.sessions {
		if session.Status != model.SessionEnded && session.CreatedAt.Before(createdBefore) {
			result = append(result, cloneSession(session))
		}
	}
	sortSessionsNewestFirst(result)
	return result, nil
}

func sortSessionsNewestFirst(sessions []*model.Session) {
	for i := 1; i < len(sessions); i++ {
		for j := i; j > 0 && sessions[j].CreatedAt.After(sessions[j-1].CreatedAt); j-- {
			sessions[j], sessions[j-1] = sessions[j-1], sessions[j]
		}
	}
}

func (v *storeSessions) UpdateInfo(ctx context.Context, id, title, description, subject string) (bool, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	session, ok := v.s.sessions[id]
	if !ok || session.Status != model.SessionWaiting {
		return false, nil
	}
	session.Title = title
	session.Description = description
	session.Subject = subject
	return true, nil
}

func (v *storeSessions) TransitionStatus(ctx context.Context, id string, from []model.SessionStatus, to model.SessionStatus, at time.Time) (*model.Session, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	session, ok := v.s.sessions[id]
	if !ok {
		return nil, nil
	}
	matched := false
	for _, status := range from {
		if session.Status == status {
			matched = true
			break
		}
	}
	if !matched {
		return nil, nil
	}
	session.Status = to
	stamp := at
	switch to {
	case model.SessionLive:
		session.StartedAt = &stamp
	case model.SessionEnded:
		session.EndedAt = &stamp
	}
	return cloneSession(session), nil
}

func (v *storeSessions) ReserveSlot(ctx context.Context, id string) (bool, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	session, ok := v.s.sessions[id]
	if !ok || session.Status == model.SessionEnded {
		return false, nil
	}
	if session.CurrentParticipants >= session.MaxParticipants {
		return false, nil
	}
	session.CurrentParticipants++
	return true, nil
}

func (v *storeSessions) ReleaseSlot(ctx context.Context, id string) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	if session, ok := v.s.sessions[id]; ok && session.CurrentParticipants > 0 {
		session.CurrentParticipants--
	}
	return nil
}

func (v *storeSessions) ResetSlots(ctx context.Context, id string) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	if session, ok := v.s.sessions[id]; ok {
		session.CurrentParticipants = 0
	}
	return nil
}

// --- ParticipantRepo ---

func (v *storeParticipants) Create(ctx context.Context, participant *model.Participant) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	for _, p := range v.s.participants {
		if p.SessionID == participant.SessionID && p.UserID == participant.UserID && p.Active {
			return ErrDuplicateParticipant
		}
	}
	v.s.participants = append(v.s.participants, cloneParticipant(participant))
	return nil
}

func (v *storeParticipants) GetActive(ctx context.Context, sessionID, userID string) (*model.Participant, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	for _, p := range v.s.participants {
		if p.SessionID == sessionID && p.UserID == userID && p.Active {
			return cloneParticipant(p), nil
		}
	}
	return nil, nil
}

func (v *storeParticipants) MarkLeft(ctx context.Context, sessionID, userID string, at time.Time) (bool, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	for _, p := range v.s.participants {
		if p.SessionID == sessionID && p.UserID == userID && p.Active {
			stamp := at
			p.Active = false
			p.LeftAt = &stamp
			return true, nil
		}
	}
	return false, nil
}

func (v *storeParticipants) EndAllActive(ctx context.Context, sessionID string, at time.Time) (int64, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	var closed int64
	for _, p := range v.s.participants {
		if p.SessionID == sessionID && p.Active {
			stamp := at
			p.Active = false
			p.LeftAt = &stamp
			closed++
		}
	}
	return closed, nil
}

func (v *storeParticipants) ListActive(ctx context.Context, sessionID string) ([]*model.Participant, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	var result []*model.Participant
	for _, p := range v.s.participants {
		if p.SessionID == sessionID && p.Active {
			result = append(result, cloneParticipant(p))
		}
	}
	return result, nil
}

// --- cache.CodeIndex ---

func (v *storeCodes) Reserve(ctx context.Context, code, sessionID string) (bool, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	if _, held := v.s.codes[code]; held {
		return false, nil
	}
	v.s.codes[code] = sessionID
	return true, nil
}

func (v *storeCodes) Get(ctx context.Context, code string) (string, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	return v.s.codes[code], nil
}

func (v *storeCodes) Release(ctx context.Context, code string) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	delete(v.s.codes, code)
	return nil
}
