package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Individeveloper/StockPocket/internal/domain"
	"github.com/Individeveloper/StockPocket/internal/metrics"
)

const (
	defaultDebounce = 500 * time.Millisecond
	saveTimeout     = 10 * time.Second
)

// Saver decouples persistence from the turn cycle: saves are scheduled
// with a short debounce so rapid turns coalesce into one write, and a
// failed write is logged and kept pending rather than surfaced. The next
// schedule or flush retries it.
type Saver struct {
	store    domain.SessionStore
	logger   *slog.Logger
	debounce time.Duration

	mu      sync.Mutex
	pending *domain.Session
	timer   *time.Timer
	closed  bool
}

func NewSaver(store domain.SessionStore, debounce time.Duration, logger *slog.Logger) *Saver {
	if debounce <= 0 {
		debounce = defaultDebounce
	}
	return &Saver{store: store, logger: logger, debounce: debounce}
}

// Schedule queues a write of the session's current state. A snapshot is
// taken now; callers may keep appending to the session afterwards.
func (sv *Saver) Schedule(sess *domain.Session) {
	snapshot := sess.Clone()

	sv.mu.Lock()
	defer sv.mu.Unlock()
	if sv.closed {
		return
	}
	sv.pending = snapshot
	if sv.timer == nil {
		sv.timer = time.AfterFunc(sv.debounce, sv.fire)
	} else {
		sv.timer.Reset(sv.debounce)
	}
}

func (sv *Saver) fire() {
	sv.mu.Lock()
	sess := sv.pending
	sv.pending = nil
	sv.timer = nil
	sv.mu.Unlock()

	if sess != nil {
		sv.save(sess)
	}
}

func (sv *Saver) save(sess *domain.Session) {
	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()

	if err := sv.store.Save(ctx, sess); err != nil {
		metrics.SaveFailures.Inc()
		sv.logger.Warn("session save failed, will retry on next turn", "session_id", sess.ID, "error", err)

		// Keep the state around unless a newer snapshot arrived meanwhile.
		sv.mu.Lock()
		if sv.pending == nil && !sv.closed {
			sv.pending = sess
		}
		sv.mu.Unlock()
		return
	}
	metrics.SessionSaves.Inc()
	sv.logger.Debug("session saved", "session_id", sess.ID, "messages", len(sess.Messages))
}

// Flush writes any pending state immediately.
func (sv *Saver) Flush() {
	sv.mu.Lock()
	if sv.timer != nil {
		sv.timer.Stop()
		sv.timer = nil
	}
	sess := sv.pending
	sv.pending = nil
	sv.mu.Unlock()

	if sess != nil {
		sv.save(sess)
	}
}

// Close flushes pending state and rejects further schedules. The store
// itself is not closed; the saver does not own it.
func (sv *Saver) Close() {
	sv.mu.Lock()
	if sv.closed {
		sv.mu.Unlock()
		return
	}
	sv.closed = true
	if sv.timer != nil {
		sv.timer.Stop()
		sv.timer = nil
	}
	sess := sv.pending
	sv.pending = nil
	sv.mu.Unlock()

	if sess != nil {
		sv.save(sess)
	}
}
