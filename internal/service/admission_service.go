package service

import (
	"context"
	"errors"
	"fmt"
	"liveclass/internal/model"
	"liveclass/internal/repository"
	"log"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// AdmissionService is the gate into a session: it verifies the password,
// enforces capacity through the store's atomic slot reservation, and
// creates participant records. Two racing joins can never both win the
// last slot, and a repeated join by the same caller is idempotent.
type AdmissionService struct {
	sessions     repository.SessionRepo
	participants repository.ParticipantRepo
	broadcaster  Broadcaster
}

// NewAdmissionService creates a new admission service.
func NewAdmissionService(sessions repository.SessionRepo, participants repository.ParticipantRepo) *AdmissionService {
	return &AdmissionService{
		sessions:     sessions,
		participants: participants,
	}
}

// SetBroadcaster sets the broadcaster for WebSocket events.
func (s *AdmissionService) SetBroadcaster(b Broadcaster) {
	s.broadcaster = b
}

// SessionRef addresses a session by id or by room code.
type SessionRef struct {
	ID   string
	Code string
}

// Join admits the caller into a session.
func (s *AdmissionService) Join(ctx context.Context, ref SessionRef, caller model.CallerIdentity, password string) (*model.Participant, error) {
	session, err := s.resolve(ctx, ref)
	if err != nil {
		return nil, err
	}
	if session == nil || session.Status == model.SessionEnded {
		metricJoinsRejected.WithLabelValues("not_found").Inc()
		return nil, ErrNotFound
	}

	if session.HasPassword() {
		if err := bcrypt.CompareHashAndPassword([]byte(session.PasswordHash), []byte(password)); err != nil {
			metricJoinsRejected.WithLabelValues("bad_password").Inc()
			return nil, fmt.Errorf("%w: incorrect password", ErrUnauthorized)
		}
	}

	// Re-join is idempotent: an active record is returned as-is and no
	// slot is consumed.
	existing, err := s.participants.GetActive(ctx, session.ID, caller.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up participant: %w", err)
	}
	if existing != nil {
		return existing, nil
	}

	// Single atomic check-and-increment against capacity. Everything after
	// this point either commits a participant or gives the slot back.
	admitted, err := s.sessions.ReserveSlot(ctx, session.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to reserve slot: %w", err)
	}
	if !admitted {
		return nil, s.classifyRejection(ctx, session.ID)
	}

	participant := &model.Participant{
		ID:        uuid.New().String(),
		SessionID: session.ID,
		UserID:    caller.UserID,
		JoinedAt:  time.Now().UTC(),
		Active:    true,
	}

	if err := s.participants.Create(ctx, participant); err != nil {
		if rerr := s.sessions.ReleaseSlot(ctx, session.ID); rerr != nil {
			log.Printf("Failed to release slot for session %s: %v", session.ID, rerr)
		}
		if errors.Is(err, repository.ErrDuplicateParticipant) {
			// Lost an idempotency race against ourselves; the winner's
			// record is the caller's record.
			winner, gerr := s.participants.GetActive(ctx, session.ID, caller.UserID)
			if gerr == nil && winner != nil {
				return winner, nil
			}
		}
		return nil, fmt.Errorf("failed to create participant: %w", err)
	}

	// The gate and the insert are two store operations, so the session can
	// end between them. Re-read and back out: an ended session must never
	// keep an active participant.
	current, gerr := s.sessions.GetByID(ctx, session.ID)
	if gerr != nil {
		log.Printf("Could not verify session %s after admitting %s: %v", session.ID, caller.UserID, gerr)
	} else if current == nil || current.Status == model.SessionEnded {
		if _, merr := s.participants.MarkLeft(ctx, session.ID, caller.UserID, time.Now().UTC()); merr != nil {
			log.Printf("Failed to back out participant %s from ended session %s: %v", caller.UserID, session.ID, merr)
		}
		if rerr := s.sessions.ReleaseSlot(ctx, session.ID); rerr != nil {
			log.Printf("Failed to release slot for session %s: %v", session.ID, rerr)
		}
		metricJoinsRejected.WithLabelValues("not_found").Inc()
		return nil, ErrNotFound
	}

	metricJoinsAdmitted.Inc()
	if s.broadcaster != nil {
		s.broadcaster.BroadcastToSession(session.ID, "participant_joined", map[string]interface{}{
			"sessionId": session.ID,
			"userId":    caller.UserID,
		})
	}
	log.Printf("User %s joined session %s", caller.UserID, session.ID)
	return participant, nil
}

// Leave closes the caller's active participant record and frees its slot.
// Idempotent: leaving twice, or without having joined, is a no-op.
func (s *AdmissionService) Leave(ctx context.Context, sessionID string, caller model.CallerIdentity) error {
	left, err := s.participants.MarkLeft(ctx, sessionID, caller.UserID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to mark participant left: %w", err)
	}
	if !left {
		return nil
	}

	if err := s.sessions.ReleaseSlot(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to release slot: %w", err)
	}
	if s.broadcaster != nil {
		s.broadcaster.BroadcastToSession(sessionID, "participant_left", map[string]interface{}{
			"sessionId": sessionID,
			"userId":    caller.UserID,
		})
	}
	return nil
}

func (s *AdmissionService) resolve(ctx context.Context, ref SessionRef) (*model.Session, error) {
	if ref.ID != "" {
		session, err := s.sessions.GetByID(ctx, ref.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to get session: %w", err)
		}
		return session, nil
	}
	if ref.Code != "" {
		session, err := s.sessions.GetJoinableByCode(ctx, NormalizeCode(ref.Code))
		if err != nil {
			return nil, fmt.Errorf("failed to get session by code: %w", err)
		}
		return session, nil
	}
	return nil, fmt.Errorf("%w: session id or room code required", ErrValidation)
}

// classifyRejection decides why the slot reservation failed. The session
// is re-read so a session that ended mid-flight reports NotFound rather
// than a misleading capacity error.
func (s *AdmissionService) classifyRejection(ctx context.Context, sessionID string) error {
	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("failed to get session: %w", err)
	}
	if session == nil || session.Status == model.SessionEnded {
		metricJoinsRejected.WithLabelValues("not_found").Inc()
		return ErrNotFound
	}
	metricJoinsRejected.WithLabelValues("capacity").Inc()
	return ErrCapacityExceeded
}
