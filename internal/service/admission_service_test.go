package service

import (
	"context"
	"errors"
	"fmt"
	"liveclass/internal/model"
	"liveclass/internal/repository"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
)

func TestJoinCapacityUnderContention(t *testing.T) {
	for _, capacity := range []int{1, 2, 10} {
		t.Run(fmt.Sprintf("cap_%d", capacity), func(t *testing.T) {
			env := newTestEnv()
			ctx := context.Background()
			session := mustCreate(t, env, CreateSessionParams{Title: "math", MaxParticipants: capacity})

			const callers = 25
			var admitted, rejected int64
			var wg sync.WaitGroup
			for i := 0; i < callers; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					caller := model.CallerIdentity{UserID: fmt.Sprintf("user-%d", i)}
					_, err := env.admission.Join(ctx, SessionRef{ID: session.ID}, caller, "")
					switch {
					case err == nil:
						atomic.AddInt64(&admitted, 1)
					case errors.Is(err, ErrCapacityExceeded):
						atomic.AddInt64(&rejected, 1)
					default:
						t.Errorf("unexpected join error: %v", err)
					}
				}(i)
			}
			wg.Wait()

			if admitted != int64(capacity) {
				t.Errorf("expected exactly %d admissions, got %d", capacity, admitted)
			}
			if rejected != int64(callers-capacity) {
				t.Errorf("expected %d capacity rejections, got %d", callers-capacity, rejected)
			}

			got, _ := env.query.Get(ctx, session.ID)
			if got.CurrentParticipants != capacity {
				t.Errorf("counter drifted: expected %d, got %d", capacity, got.CurrentParticipants)
			}
		})
	}
}

func TestJoinIsIdempotent(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	session := mustCreate(t, env, CreateSessionParams{Title: "math", MaxParticipants: 2})
	caller := model.CallerIdentity{UserID: "returning"}

	first, err := env.admission.Join(ctx, SessionRef{ID: session.ID}, caller, "")
	if err != nil {
		t.Fatalf("Join: %v", err)
	}
	second, err := env.admission.Join(ctx, SessionRef{ID: session.ID}, caller, "")
	if err != nil {
		t.Fatalf("re-Join: %v", err)
	}
	if first.ID != second.ID {
		t.Errorf("re-join must return the existing record, got %s and %s", first.ID, second.ID)
	}

	got, _ := env.query.Get(ctx, session.ID)
	if got.CurrentParticipants != 1 {
		t.Errorf("re-join must not consume capacity, got %d", got.CurrentParticipants)
	}
}

func TestConcurrentJoinsBySameUser(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	session := mustCreate(t, env, CreateSessionParams{Title: "math", MaxParticipants: 10})
	caller := model.CallerIdentity{UserID: "eager"}

	const attempts = 10
	var wg sync.WaitGroup
	ids := make([]string, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p, err := env.admission.Join(ctx, SessionRef{ID: session.ID}, caller, "")
			if err != nil {
				t.Errorf("Join: %v", err)
				return
			}
			ids[i] = p.ID
		}(i)
	}
	wg.Wait()

	for _, id := range ids[1:] {
		if id != ids[0] {
			t.Fatalf("same caller resolved to different participants: %s vs %s", ids[0], id)
		}
	}
	got, _ := env.query.Get(ctx, session.ID)
	if got.CurrentParticipants != 1 {
		t.Errorf("same caller must hold one slot, got %d", got.CurrentParticipants)
	}
}

func TestJoinPasswordGate(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	session := mustCreate(t, env, CreateSessionParams{Title: "math", Password: "abc123"})
	caller := model.CallerIdentity{UserID: "guest"}

	if _, err := env.admission.Join(ctx, SessionRef{ID: session.ID}, caller, "wrong"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if _, err := env.admission.Join(ctx, SessionRef{ID: session.ID}, caller, ""); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for missing password, got %v", err)
	}
	if _, err := env.admission.Join(ctx, SessionRef{ID: session.ID}, caller, "abc123"); err != nil {
		t.Fatalf("expected success with correct password, got %v", err)
	}
}

func TestJoinByCode(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	session := mustCreate(t, env, CreateSessionParams{Title: "math"})
	caller := model.CallerIdentity{UserID: "guest"}

	// Codes are case-insensitive on entry.
	p, err := env.admission.Join(ctx, SessionRef{Code: " " + strings.ToLower(session.RoomCode) + " "}, caller, "")
	if err != nil {
		t.Fatalf("Join by code: %v", err)
	}
	if p.SessionID != session.ID {
		t.Errorf("joined the wrong session: %s", p.SessionID)
	}

	if _, err := env.admission.Join(ctx, SessionRef{Code: "NOSUCH"}, caller, ""); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown code, got %v", err)
	}
	if _, err := env.admission.Join(ctx, SessionRef{}, caller, ""); !errors.Is(err, ErrValidation) {
		t.Errorf("expected ErrValidation for empty ref, got %v", err)
	}
}

func TestJoinEndedSession(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	session := mustCreate(t, env, CreateSessionParams{Title: "math"})
	if _, err := env.lifecycle.End(ctx, session.ID, owner()); err != nil {
		t.Fatalf("End: %v", err)
	}

	caller := model.CallerIdentity{UserID: "late"}
	if _, err := env.admission.Join(ctx, SessionRef{ID: session.ID}, caller, ""); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound joining ended session, got %v", err)
	}
	if _, err := env.admission.Join(ctx, SessionRef{Code: session.RoomCode}, caller, ""); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound joining ended session by code, got %v", err)
	}
}

// endOnInsertRepo ends the session right before the first participant
// insert, forcing the narrowest interleaving between the capacity gate
// and the insert.
type endOnInsertRepo struct {
	repository.ParticipantRepo
	lifecycle *LifecycleService
	sessionID string
	once      sync.Once
	endErr    error
}

func (r *endOnInsertRepo) Create(ctx context.Context, p *model.Participant) error {
	r.once.Do(func() {
		_, r.endErr = r.lifecycle.End(ctx, r.sessionID, owner())
	})
	return r.ParticipantRepo.Create(ctx, p)
}

func TestJoinInterleavedWithEndIsRejected(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	session := mustCreate(t, env, CreateSessionParams{Title: "math"})

	trap := &endOnInsertRepo{
		ParticipantRepo: env.store.Participants(),
		lifecycle:       env.lifecycle,
		sessionID:       session.ID,
	}
	admission := NewAdmissionService(env.store.Sessions(), trap)

	_, err := admission.Join(ctx, SessionRef{ID: session.ID}, model.CallerIdentity{UserID: "late"}, "")
	if trap.endErr != nil {
		t.Fatalf("End: %v", trap.endErr)
	}
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound when the session ends mid-join, got %v", err)
	}

	active, _ := env.store.Participants().ListActive(ctx, session.ID)
	if len(active) != 0 {
		t.Errorf("ended session holds %d active participant(s)", len(active))
	}
	got, _ := env.query.Get(ctx, session.ID)
	if got.Status != model.SessionEnded || got.CurrentParticipants != 0 {
		t.Errorf("unexpected session state: status=%s count=%d", got.Status, got.CurrentParticipants)
	}
}

func TestLeaveIsIdempotentAndFreesSlot(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	session := mustCreate(t, env, CreateSessionParams{Title: "math", MaxParticipants: 1})
	caller := model.CallerIdentity{UserID: "guest"}

	if _, err := env.admission.Join(ctx, SessionRef{ID: session.ID}, caller, ""); err != nil {
		t.Fatalf("Join: %v", err)
	}

	// Session is full now; a second identity is rejected.
	other := model.CallerIdentity{UserID: "other"}
	if _, err := env.admission.Join(ctx, SessionRef{ID: session.ID}, other, ""); !errors.Is(err, ErrCapacityExceeded) {
		t.Fatalf("expected ErrCapacityExceeded, got %v", err)
	}

	if err := env.admission.Leave(ctx, session.ID, caller); err != nil {
		t.Fatalf("Leave: %v", err)
	}
	if err := env.admission.Leave(ctx, session.ID, caller); err != nil {
		t.Fatalf("second Leave must be a no-op, got %v", err)
	}
	if err := env.admission.Leave(ctx, session.ID, model.CallerIdentity{UserID: "never-joined"}); err != nil {
		t.Fatalf("Leave without join must be a no-op, got %v", err)
	}

	got, _ := env.query.Get(ctx, session.ID)
	if got.CurrentParticipants != 0 {
		t.Errorf("expected freed slot, got %d", got.CurrentParticipants)
	}

	// The freed slot is joinable again, with a fresh record.
	p, err := env.admission.Join(ctx, SessionRef{ID: session.ID}, other, "")
	if err != nil {
		t.Fatalf("Join after leave: %v", err)
	}
	if p.LeftAt != nil {
		t.Error("new participant must not carry a leftAt")
	}
}
