package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Individeveloper/StockPocket/internal/domain"
)

// fakeStore records saves and can fail a configured number of times.
type fakeStore struct {
	mu       sync.Mutex
	saved    []*domain.Session
	failures int
}

func (f *fakeStore) Save(ctx context.Context, s *domain.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failures > 0 {
		f.failures--
		return errors.New("backend down")
	}
	f.saved = append(f.saved, s)
	return nil
}

func (f *fakeStore) Create(ctx context.Context, title string) (*domain.Session, error) {
	return &domain.Session{ID: "fake", Title: title}, nil
}
func (f *fakeStore) Get(ctx context.Context, id string) (*domain.Session, error) { return nil, nil }
func (f *fakeStore) ListAll(ctx context.Context) ([]*domain.Session, error)      { return nil, nil }
func (f *fakeStore) Search(ctx context.Context, q string) ([]*domain.Session, error) {
	return nil, nil
}
func (f *fakeStore) Delete(ctx context.Context, id string) error { return nil }
func (f *fakeStore) Close() error                                { return nil }

func (f *fakeStore) saves() []*domain.Session {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*domain.Session(nil), f.saved...)
}

func waitForSaves(t *testing.T, f *fakeStore, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(f.saves()) >= want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d saves, have %d", want, len(f.saves()))
}

func TestSaverCoalescesRapidSchedules(t *testing.T) {
	store := &fakeStore{}
	sv := NewSaver(store, 40*time.Millisecond, testLogger())
	defer sv.Close()

	sess := &domain.Session{ID: "s1", Title: "burst"}
	sess.Messages = append(sess.Messages, domain.Message{ID: "m1", Role: domain.RoleUser, Text: "one"})
	sv.Schedule(sess)

	sess.Messages = append(sess.Messages, domain.Message{ID: "m2", Role: domain.RoleAssistant, Text: "two"})
	sv.Schedule(sess)

	waitForSaves(t, store, 1)
	time.Sleep(80 * time.Millisecond)

	saved := store.saves()
	if len(saved) != 1 {
		t.Fatalf("saves = %d, want exactly 1", len(saved))
	}
	if len(saved[0].Messages) != 2 {
		t.Fatalf("coalesced save should carry both turns, got %d messages", len(saved[0].Messages))
	}
}

func TestSaverSnapshotsAtScheduleTime(t *testing.T) {
	store := &fakeStore{}
	sv := NewSaver(store, 30*time.Millisecond, testLogger())
	defer sv.Close()

	sess := &domain.Session{ID: "s1"}
	sess.Messages = append(sess.Messages, domain.Message{ID: "m1", Text: "before"})
	sv.Schedule(sess)

	// Mutations after the schedule belong to the next save.
	sess.Messages = append(sess.Messages, domain.Message{ID: "m2", Text: "after"})

	waitForSaves(t, store, 1)
	if got := len(store.saves()[0].Messages); got != 1 {
		t.Fatalf("snapshot has %d messages, want 1", got)
	}
}

func TestSaverRetriesFailedSaveOnFlush(t *testing.T) {
	store := &fakeStore{failures: 1}
	sv := NewSaver(store, 20*time.Millisecond, testLogger())
	defer sv.Close()

	sess := &domain.Session{ID: "s1", Title: "flaky"}
	sv.Schedule(sess)

	// First attempt fails and keeps the state pending.
	time.Sleep(100 * time.Millisecond)
	if len(store.saves()) != 0 {
		t.Fatalf("save should have failed, got %+v", store.saves())
	}

	sv.Flush()
	waitForSaves(t, store, 1)
	if store.saves()[0].ID != "s1" {
		t.Fatalf("retried save = %+v", store.saves()[0])
	}
}

func TestSaverFlushWritesImmediately(t *testing.T) {
	store := &fakeStore{}
	sv := NewSaver(store, 10*time.Second, testLogger())
	defer sv.Close()

	sv.Schedule(&domain.Session{ID: "s1"})
	sv.Flush()

	if len(store.saves()) != 1 {
		t.Fatalf("saves after flush = %d", len(store.saves()))
	}
}

func TestSaverCloseFlushesAndStops(t *testing.T) {
	store := &fakeStore{}
	sv := NewSaver(store, 10*time.Second, testLogger())

	sv.Schedule(&domain.Session{ID: "s1"})
	sv.Close()

	if len(store.saves()) != 1 {
		t.Fatalf("close should flush, saves = %d", len(store.saves()))
	}

	sv.Schedule(&domain.Session{ID: "s2"})
	time.Sleep(50 * time.Millisecond)
	if len(store.saves()) != 1 {
		t.Fatalf("schedule after close wrote anyway: %d", len(store.saves()))
	}
}

func TestSaverDefaultDebounce(t *testing.T) {
	sv := NewSaver(&fakeStore{}, 0, testLogger())
	if sv.debounce != defaultDebounce {
		t.Fatalf("debounce = %v", sv.debounce)
	}
}
