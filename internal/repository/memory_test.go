package repository

import (
	"context"
	"liveclass/internal/model"
	"testing"
	"time"
)

func testSession(id, code string, max int) *model.Session {
	return &model.Session{
		ID:              id,
		RoomCode:        code,
		OwnerID:         "owner",
		Title:           "test",
		MaxParticipants: max,
		Status:          model.SessionWaiting,
		CreatedAt:       time.Now().UTC(),
	}
}

func TestReserveSlotEnforcesCapacity(t *testing.T) {
	store := NewStore()
	sessions := store.Sessions()
	ctx := context.Background()

	if err := sessions.Create(ctx, testSession("s1", "AAAAAA", 2)); err != nil {
		t.Fatalf("Create: %v", err)
	}

	for i := 0; i < 2; i++ {
		ok, err := sessions.ReserveSlot(ctx, "s1")
		if err != nil || !ok {
			t.Fatalf("slot %d: ok=%v err=%v", i, ok, err)
		}
	}
	if ok, _ := sessions.ReserveSlot(ctx, "s1"); ok {
		t.Error("reservation above capacity must fail")
	}

	if err := sessions.ReleaseSlot(ctx, "s1"); err != nil {
		t.Fatalf("ReleaseSlot: %v", err)
	}
	if ok, _ := sessions.ReserveSlot(ctx, "s1"); !ok {
		t.Error("released slot must be reservable")
	}

	// Unknown session never admits.
	if ok, _ := sessions.ReserveSlot(ctx, "nope"); ok {
		t.Error("unknown session must not admit")
	}
}

func TestReserveSlotRejectsEndedSession(t *testing.T) {
	store := NewStore()
	sessions := store.Sessions()
	ctx := context.Background()

	if err := sessions.Create(ctx, testSession("s1", "AAAAAA", 5)); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := sessions.TransitionStatus(ctx, "s1",
		[]model.SessionStatus{model.SessionWaiting}, model.SessionEnded, time.Now()); err != nil {
		t.Fatalf("TransitionStatus: %v", err)
	}
	if ok, _ := sessions.ReserveSlot(ctx, "s1"); ok {
		t.Error("ended session must not admit")
	}
}

func TestTransitionStatusIsCompareAndSwap(t *testing.T) {
	store := NewStore()
	sessions := store.Sessions()
	ctx := context.Background()
	now := time.Now().UTC()

	if err := sessions.Create(ctx, testSession("s1", "AAAAAA", 5)); err != nil {
		t.Fatalf("Create: %v", err)
	}

	// Wrong precondition: no match, no mutation.
	got, err := sessions.TransitionStatus(ctx, "s1",
		[]model.SessionStatus{model.SessionLive}, model.SessionEnded, now)
	if err != nil || got != nil {
		t.Fatalf("expected no match, got %v err=%v", got, err)
	}

	got, err = sessions.TransitionStatus(ctx, "s1",
		[]model.SessionStatus{model.SessionWaiting}, model.SessionLive, now)
	if err != nil || got == nil {
		t.Fatalf("expected transition, got %v err=%v", got, err)
	}
	if got.Status != model.SessionLive || got.StartedAt == nil {
		t.Errorf("expected live with startedAt, got %s %v", got.Status, got.StartedAt)
	}

	// Second start loses the CAS.
	got, _ = sessions.TransitionStatus(ctx, "s1",
		[]model.SessionStatus{model.SessionWaiting}, model.SessionLive, now)
	if got != nil {
		t.Error("second transition from waiting must not match")
	}

	// Unknown session.
	got, _ = sessions.TransitionStatus(ctx, "nope",
		[]model.SessionStatus{model.SessionWaiting}, model.SessionLive, now)
	if got != nil {
		t.Error("unknown session must not match")
	}
}

func TestParticipantUniqueness(t *testing.T) {
	store := NewStore()
	participants := store.Participants()
	ctx := context.Background()
	now := time.Now().UTC()

	p := &model.Participant{ID: "p1", SessionID: "s1", UserID: "u1", JoinedAt: now, Active: true}
	if err := participants.Create(ctx, p); err != nil {
		t.Fatalf("Create: %v", err)
	}
	dup := &model.Participant{ID: "p2", SessionID: "s1", UserID: "u1", JoinedAt: now, Active: true}
	if err := participants.Create(ctx, dup); err != ErrDuplicateParticipant {
		t.Fatalf("expected ErrDuplicateParticipant, got %v", err)
	}

	// After leaving, the same user may hold a new record.
	left, err := participants.MarkLeft(ctx, "s1", "u1", now)
	if err != nil || !left {
		t.Fatalf("MarkLeft: left=%v err=%v", left, err)
	}
	if left, _ := participants.MarkLeft(ctx, "s1", "u1", now); left {
		t.Error("second MarkLeft must report no active record")
	}
	if err := participants.Create(ctx, dup); err != nil {
		t.Fatalf("re-Create after leave: %v", err)
	}
}

func TestEndAllActive(t *testing.T) {
	store := NewStore()
	participants := store.Participants()
	ctx := context.Background()
	now := time.Now().UTC()

	for _, u := range []string{"u1", "u2", "u3"} {
		p := &model.Participant{ID: "p-" + u, SessionID: "s1", UserID: u, JoinedAt: now, Active: true}
		if err := participants.Create(ctx, p); err != nil {
			t.Fatalf("Create %s: %v", u, err)
		}
	}
	other := &model.Participant{ID: "px", SessionID: "s2", UserID: "u1", JoinedAt: now, Active: true}
	if err := participants.Create(ctx, other); err != nil {
		t.Fatalf("Create other: %v", err)
	}

	closed, err := participants.EndAllActive(ctx, "s1", now)
	if err != nil {
		t.Fatalf("EndAllActive: %v", err)
	}
	if closed != 3 {
		t.Errorf("expected 3 closed, got %d", closed)
	}

	active, _ := participants.ListActive(ctx, "s1")
	if len(active) != 0 {
		t.Errorf("expected no active participants, got %d", len(active))
	}
	// The other session is untouched.
	active, _ = participants.ListActive(ctx, "s2")
	if len(active) != 1 {
		t.Errorf("expected 1 active participant in s2, got %d", len(active))
	}
}

func TestCodeIndex(t *testing.T) {
	store := NewStore()
	codes := store.Codes()
	ctx := context.Background()

	held, err := codes.Reserve(ctx, "AAAAAA", "s1")
	if err != nil || !held {
		t.Fatalf("Reserve: held=%v err=%v", held, err)
	}
	if held, _ := codes.Reserve(ctx, "AAAAAA", "s2"); held {
		t.Error("held code must not be reservable")
	}

	if id, _ := codes.Get(ctx, "AAAAAA"); id != "s1" {
		t.Errorf("expected s1, got %q", id)
	}
	if id, _ := codes.Get(ctx, "BBBBBB"); id != "" {
		t.Errorf("expected empty for unknown code, got %q", id)
	}

	if err := codes.Release(ctx, "AAAAAA"); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if held, _ := codes.Reserve(ctx, "AAAAAA", "s2"); !held {
		t.Error("released code must be reservable")
	}
}

func TestUpdateInfoOnlyWaiting(t *testing.T) {
	store := NewStore()
	sessions := store.Sessions()
	ctx := context.Background()

	if err := sessions.Create(ctx, testSession("s1", "AAAAAA", 5)); err != nil {
		t.Fatalf("Create: %v", err)
	}

	ok, err := sessions.UpdateInfo(ctx, "s1", "new title", "desc", "subj")
	if err != nil || !ok {
		t.Fatalf("UpdateInfo: ok=%v err=%v", ok, err)
	}
	got, _ := sessions.GetByID(ctx, "s1")
	if got.Title != "new title" || got.Description != "desc" || got.Subject != "subj" {
		t.Errorf("metadata not applied: %+v", got)
	}

	if _, err := sessions.TransitionStatus(ctx, "s1",
		[]model.SessionStatus{model.SessionWaiting}, model.SessionLive, time.Now()); err != nil {
		t.Fatalf("TransitionStatus: %v", err)
	}
	if ok, _ := sessions.UpdateInfo(ctx, "s1", "x", "y", "z"); ok {
		t.Error("UpdateInfo must not match a live session")
	}
}

func TestListings(t *testing.T) {
	store := NewStore()
	sessions := store.Sessions()
	ctx := context.Background()

	older := testSession("s1", "AAAAAA", 5)
	older.CreatedAt = time.Now().UTC().Add(-time.Hour)
	newer := testSession("s2", "BBBBBB", 5)
	newer.OwnerID = "other"
	for _, s := range []*model.Session{older, newer} {
		if err := sessions.Create(ctx, s); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}

	byStatus, err := sessions.ListByStatus(ctx, model.SessionWaiting, model.SessionLive)
	if err != nil {
		t.Fatalf("ListByStatus: %v", err)
	}
	if len(byStatus) != 2 || byStatus[0].ID != "s2" {
		t.Errorf("expected newest-first [s2 s1], got %d entries", len(byStatus))
	}

	byOwner, _ := sessions.ListByOwner(ctx, "owner")
	if len(byOwner) != 1 || byOwner[0].ID != "s1" {
		t.Errorf("expected [s1] for owner, got %d entries", len(byOwner))
	}

	stale, _ := sessions.ListStaleActive(ctx, time.Now().UTC().Add(-30*time.Minute))
	if len(stale) != 1 || stale[0].ID != "s1" {
		t.Errorf("expected [s1] stale, got %d entries", len(stale))
	}
}

func TestReturnedSessionsAreCopies(t *testing.T) {
	store := NewStore()
	sessions := store.Sessions()
	ctx := context.Background()

	if err := sessions.Create(ctx, testSession("s1", "AAAAAA", 5)); err != nil {
		t.Fatalf("Create: %v", err)
	}
	got, _ := sessions.GetByID(ctx, "s1")
	got.Status = model.SessionEnded

	again, _ := sessions.GetByID(ctx, "s1")
	if again.Status != model.SessionWaiting {
		t.Error("mutating a returned session must not touch the store")
	}
}
