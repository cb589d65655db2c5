package service

import (
	"context"
	"fmt"
	"liveclass/internal/cache"
	"liveclass/internal/model"
	"liveclass/internal/repository"
)

// QueryService is the read side: session listings and room code
// resolution. It never mutates state.
type QueryService struct {
	sessions repository.SessionRepo
	codes    cache.CodeIndex
}

// NewQueryService creates a new query service.
func NewQueryService(sessions repository.SessionRepo, codes cache.CodeIndex) *QueryService {
	return &QueryService{
		sessions: sessions,
		codes:    codes,
	}
}

// Get retrieves a session by id.
func (s *QueryService) Get(ctx context.Context, id string) (*model.Session, error) {
	session, err := s.sessions.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	if session == nil {
		return nil, ErrNotFound
	}
	return session, nil
}

// ListActive returns sessions that can still be joined, newest first.
func (s *QueryService) ListActive(ctx context.Context) ([]*model.Session, error) {
	sessions, err := s.sessions.ListByStatus(ctx, model.SessionWaiting, model.SessionLive)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	return sessions, nil
}

// ListOwnedBy returns every session the identity has created, any status.
func (s *QueryService) ListOwnedBy(ctx context.Context, userID string) ([]*model.Session, error) {
	sessions, err := s.sessions.ListByOwner(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	return sessions, nil
}

// ResolveCode maps a room code to its current joinable session. The index
// is the fast path, but the store has the final word: an index entry left
// behind by a session that already ended never resolves.
func (s *QueryService) ResolveCode(ctx context.Context, code string) (*model.SessionSummary, error) {
	code = NormalizeCode(code)
	if code == "" {
		return nil, fmt.Errorf("%w: room code required", ErrValidation)
	}

	if id, err := s.codes.Get(ctx, code); err == nil && id != "" {
		session, err := s.sessions.GetByID(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("failed to get session: %w", err)
		}
		if session != nil && session.RoomCode == code && session.Status != model.SessionEnded {
			return session.Summary(), nil
		}
	}

	session, err := s.sessions.GetJoinableByCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to get session by code: %w", err)
	}
	if session == nil {
		return nil, ErrNotFound
	}
	return session.Summary(), nil
}
