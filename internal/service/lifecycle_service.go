package service

import (
	"context"
	"crypto/rand"
	"fmt"
	"liveclass/internal/cache"
	"liveclass/internal/model"
	"liveclass/internal/repository"
	"log"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// LifecycleService owns the session state machine: creation with a unique
// room code, the owner-gated waiting->live->ended transitions, and the
// end-of-session cascade.
type LifecycleService struct {
	sessions     repository.SessionRepo
	participants repository.ParticipantRepo
	codes        cache.CodeIndex
	broadcaster  Broadcaster
}

// NewLifecycleService creates a new lifecycle service.
func NewLifecycleService(
	sessions repository.SessionRepo,
	participants repository.ParticipantRepo,
	codes cache.CodeIndex,
) *LifecycleService {
	return &LifecycleService{
		sessions:     sessions,
		participants: participants,
		codes:        codes,
	}
}

// SetBroadcaster sets the broadcaster for WebSocket events.
func (s *LifecycleService) SetBroadcaster(b Broadcaster) {
	s.broadcaster = b
}

// CreateSessionParams carries the caller-supplied session settings.
type CreateSessionParams struct {
	Title           string
	Description     string
	Subject         string
	MaxParticipants int
	Password        string
}

// UpdateSessionParams carries optional metadata overrides; nil fields are
// left unchanged.
type UpdateSessionParams struct {
	Title       *string
	Description *string
	Subject     *string
}

// Create validates the settings, allocates a unique room code and persists
// the session in the waiting state.
func (s *LifecycleService) Create(ctx context.Context, caller model.CallerIdentity, params CreateSessionParams) (*model.Session, error) {
	title := strings.TrimSpace(params.Title)
	if title == "" || utf8.RuneCountInString(title) > 200 {
		return nil, fmt.Errorf("%w: title must be 1-200 characters", ErrValidation)
	}

	maxParticipants := params.MaxParticipants
	if maxParticipants == 0 {
		maxParticipants = model.DefaultParticipants
	}
	if maxParticipants < model.MinParticipants || maxParticipants > model.MaxParticipantsCap {
		return nil, fmt.Errorf("%w: maxParticipants must be between %d and %d",
			ErrValidation, model.MinParticipants, model.MaxParticipantsCap)
	}

	var passwordHash string
	if params.Password != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(params.Password), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to hash password", ErrInternal)
		}
		passwordHash = string(hash)
	}

	id := uuid.New().String()
	code, err := s.generateRoomCode(ctx, id)
	if err != nil {
		return nil, err
	}

	session := &model.Session{
		ID:              id,
		RoomCode:        code,
		OwnerID:         caller.UserID,
		Title:           title,
		Description:     strings.TrimSpace(params.Description),
		Subject:         strings.TrimSpace(params.Subject),
		MaxParticipants: maxParticipants,
		PasswordHash:    passwordHash,
		Status:          model.SessionWaiting,
		CreatedAt:       time.Now().UTC(),
	}

	if err := s.sessions.Create(ctx, session); err != nil {
		// Give the code back so the failed create cannot squat on it.
		if rerr := s.codes.Release(ctx, code); rerr != nil {
			log.Printf("Failed to release room code %s: %v", code, rerr)
		}
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	metricSessionsCreated.Inc()
	log.Printf("Session %s created by %s (code=%s cap=%d)", session.ID, caller.UserID, code, maxParticipants)
	return session, nil
}

// Start transitions the session to live. Owner only, and only from waiting.
func (s *LifecycleService) Start(ctx context.Context, sessionID string, caller model.CallerIdentity) (*model.Session, error) {
	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	if session == nil {
		return nil, ErrNotFound
	}
	if session.OwnerID != caller.UserID {
		return nil, fmt.Errorf("%w: only the owner may start a session", ErrForbidden)
	}

	updated, err := s.sessions.TransitionStatus(ctx, sessionID,
		[]model.SessionStatus{model.SessionWaiting}, model.SessionLive, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to start session: %w", err)
	}
	if updated == nil {
		return nil, fmt.Errorf("%w: session is not waiting", ErrInvalidState)
	}

	metricSessionsStarted.Inc()
	if s.broadcaster != nil {
		s.broadcaster.BroadcastToSession(sessionID, "session_started", map[string]interface{}{
			"sessionId": sessionID,
			"startedAt": updated.StartedAt,
		})
	}
	return updated, nil
}

// End transitions the session to ended and cascades to its participants.
// Allowed for the owner and for the elevated moderator role.
func (s *LifecycleService) End(ctx context.Context, sessionID string, caller model.CallerIdentity) (*model.Session, error) {
	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	if session == nil {
		return nil, ErrNotFound
	}
	if session.OwnerID != caller.UserID && !caller.IsModerator() {
		return nil, fmt.Errorf("%w: only the owner may end a session", ErrForbidden)
	}

	return s.endSession(ctx, session)
}

// UpdateInfo rewrites display metadata. Owner only, and only while the
// session has not gone live.
func (s *LifecycleService) UpdateInfo(ctx context.Context, sessionID string, caller model.CallerIdentity, params UpdateSessionParams) (*model.Session, error) {
	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	if session == nil {
		return nil, ErrNotFound
	}
	if session.OwnerID != caller.UserID {
		return nil, fmt.Errorf("%w: only the owner may update a session", ErrForbidden)
	}

	title := session.Title
	if params.Title != nil {
		title = strings.TrimSpace(*params.Title)
		if title == "" || utf8.RuneCountInString(title) > 200 {
			return nil, fmt.Errorf("%w: title must be 1-200 characters", ErrValidation)
		}
	}
	description := session.Description
	if params.Description != nil {
		description = strings.TrimSpace(*params.Description)
	}
	subject := session.Subject
	if params.Subject != nil {
		subject = strings.TrimSpace(*params.Subject)
	}

	ok, err := s.sessions.UpdateInfo(ctx, sessionID, title, description, subject)
	if err != nil {
		return nil, fmt.Errorf("failed to update session: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: session metadata is frozen once live", ErrInvalidState)
	}
	return s.sessions.GetByID(ctx, sessionID)
}

// ExpireStale force-ends every non-ended session created more than maxAge
// ago. This is the lifecycle timeout policy; it reuses the normal end
// cascade so codes are released and participants closed the same way.
func (s *LifecycleService) ExpireStale(ctx context.Context, maxAge time.Duration) (int, error) {
	stale, err := s.sessions.ListStaleActive(ctx, time.Now().UTC().Add(-maxAge))
	if err != nil {
		return 0, fmt.Errorf("failed to list stale sessions: %w", err)
	}

	expired := 0
	for _, session := range stale {
		if _, err := s.endSession(ctx, session); err != nil {
			log.Printf("Stale sweep could not end session %s: %v", session.ID, err)
			continue
		}
		metricSessionsExpired.Inc()
		expired++
	}
	if expired > 0 {
		log.Printf("Stale sweep ended %d session(s)", expired)
	}
	return expired, nil
}

// endSession runs the shared end path: CAS to ended, close participants,
// zero the counter, release the room code. The CAS goes first so a join
// racing the end can no longer reserve a slot.
func (s *LifecycleService) endSession(ctx context.Context, session *model.Session) (*model.Session, error) {
	now := time.Now().UTC()
	updated, err := s.sessions.TransitionStatus(ctx, session.ID,
		[]model.SessionStatus{model.SessionWaiting, model.SessionLive}, model.SessionEnded, now)
	if err != nil {
		return nil, fmt.Errorf("failed to end session: %w", err)
	}
	if updated == nil {
		return nil, fmt.Errorf("%w: session already ended", ErrInvalidState)
	}

	closed, err := s.participants.EndAllActive(ctx, session.ID, now)
	if err != nil {
		return nil, fmt.Errorf("failed to close participants: %w", err)
	}
	if err := s.sessions.ResetSlots(ctx, session.ID); err != nil {
		return nil, fmt.Errorf("failed to reset capacity: %w", err)
	}
	if err := s.codes.Release(ctx, session.RoomCode); err != nil {
		return nil, fmt.Errorf("failed to release room code: %w", err)
	}
	updated.CurrentParticipants = 0

	metricSessionsEnded.Inc()
	if s.broadcaster != nil {
		s.broadcaster.BroadcastToSession(session.ID, "session_ended", map[string]interface{}{
			"sessionId": session.ID,
			"endedAt":   updated.EndedAt,
		})
	}
	log.Printf("Session %s ended, %d participant(s) released", session.ID, closed)
	return updated, nil
}

// generateRoomCode creates a 6-char code and reserves it in the index,
// retrying a bounded number of times on collision.
func (s *LifecycleService) generateRoomCode(ctx context.Context, sessionID string) (string, error) {
	const chars = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	const codeLen = 6

	for attempts := 0; attempts < 10; attempts++ {
		b := make([]byte, codeLen)
		if _, err := rand.Read(b); err != nil {
			return "", fmt.Errorf("%w: failed to read random bytes", ErrInternal)
		}

		code := make([]byte, codeLen)
		for i := range code {
			code[i] = chars[int(b[i])%len(chars)]
		}
		codeStr := string(code)

		reserved, err := s.codes.Reserve(ctx, codeStr, sessionID)
		if err != nil {
			return "", fmt.Errorf("failed to reserve room code: %w", err)
		}
		if reserved {
			return codeStr, nil
		}
	}

	log.Printf("Room code generation exhausted retries for session %s", sessionID)
	return "", fmt.Errorf("%w: could not allocate a unique room code", ErrInternal)
}

// NormalizeCode canonicalizes a human-entered room code: codes are stored
// upper-case and compared case-insensitively.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
