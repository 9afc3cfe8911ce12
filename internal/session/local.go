// Package session persists conversations behind the store contract, with
// a local SQLite backend for anonymous use and a Firestore backend scoped
// by user identity, plus the debounced saver both share.
package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/Individeveloper/StockPocket/internal/domain"
)

const (
	sessionsKey   = "sessions"
	lastActiveKey = "last_active_session"
)

// LocalStore keeps every session in one SQLite key-value row, serialized
// as a single JSON list, with a second row tracking the last-active
// session id. Attachment content is kept in full; nothing leaves the
// machine.
type LocalStore struct {
	db     *sql.DB
	logger *slog.Logger
	now    func() time.Time

	// Serializes the read-modify-write cycle on the sessions row.
	mu sync.Mutex
}

func NewLocalStore(dbPath string, logger *slog.Logger) (*LocalStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create database directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("cannot open database: %w", err)
	}

	// Set connection pool (single connection for SQLite)
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := &LocalStore{db: db, logger: logger, now: time.Now}

	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("database migration failed: %w", err)
	}

	return store, nil
}

func (s *LocalStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS kv (
		key        TEXT PRIMARY KEY,
		value      TEXT NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *LocalStore) Create(ctx context.Context, title string) (*domain.Session, error) {
	if strings.TrimSpace(title) == "" {
		title = "New conversation"
	}
	now := s.now()
	sess := &domain.Session{
		ID:        uuid.NewString(),
		Title:     title,
		Messages:  []domain.Message{},
		CreatedAt: now,
		UpdatedAt: now,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	all, err := s.loadAll(ctx)
	if err != nil {
		return nil, err
	}
	all = append(all, sess)
	if err := s.storeAll(ctx, all); err != nil {
		return nil, err
	}
	return sess.Clone(), nil
}

func (s *LocalStore) Save(ctx context.Context, sess *domain.Session) error {
	sess.Touch(s.now())

	s.mu.Lock()
	defer s.mu.Unlock()
	all, err := s.loadAll(ctx)
	if err != nil {
		return err
	}
	replaced := false
	for i, existing := range all {
		if existing.ID == sess.ID {
			all[i] = sess
			replaced = true
			break
		}
	}
	if !replaced {
		all = append(all, sess)
	}
	return s.storeAll(ctx, all)
}

func (s *LocalStore) Get(ctx context.Context, id string) (*domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	all, err := s.loadAll(ctx)
	if err != nil {
		return nil, err
	}
	for _, sess := range all {
		if sess.ID == id {
			return sess, nil
		}
	}
	return nil, nil
}

func (s *LocalStore) ListAll(ctx context.Context) ([]*domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadAll(ctx)
}

func (s *LocalStore) Search(ctx context.Context, titleQuery string) ([]*domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	all, err := s.loadAll(ctx)
	if err != nil {
		return nil, err
	}
	needle := strings.ToLower(strings.TrimSpace(titleQuery))
	if needle == "" {
		return all, nil
	}
	var out []*domain.Session
	for _, sess := range all {
		if strings.Contains(strings.ToLower(sess.Title), needle) {
			out = append(out, sess)
		}
	}
	return out, nil
}

func (s *LocalStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	all, err := s.loadAll(ctx)
	if err != nil {
		return err
	}
	kept := all[:0]
	for _, sess := range all {
		if sess.ID != id {
			kept = append(kept, sess)
		}
	}
	if len(kept) == len(all) {
		return nil
	}
	if err := s.storeAll(ctx, kept); err != nil {
		return err
	}

	if active, err := s.lastActiveLocked(ctx); err == nil && active == id {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, lastActiveKey)
	}
	return nil
}

// LastActive returns the id of the session the UI was last showing, or
// empty when none was recorded.
func (s *LocalStore) LastActive(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActiveLocked(ctx)
}

func (s *LocalStore) lastActiveLocked(ctx context.Context) (string, error) {
	var id string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, lastActiveKey).Scan(&id)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return id, nil
}

// SetLastActive records which session the UI is showing so the next start
// can resume it.
func (s *LocalStore) SetLastActive(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.put(ctx, lastActiveKey, id)
}

func (s *LocalStore) Close() error {
	return s.db.Close()
}

// loadAll reads and decodes the sessions row. Callers hold s.mu.
func (s *LocalStore) loadAll(ctx context.Context) ([]*domain.Session, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, sessionsKey).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var all []*domain.Session
	if err := json.Unmarshal([]byte(raw), &all); err != nil {
		return nil, fmt.Errorf("stored sessions corrupt: %w", err)
	}
	return all, nil
}

// storeAll serializes and writes the full sessions list. Callers hold s.mu.
func (s *LocalStore) storeAll(ctx context.Context, all []*domain.Session) error {
	if all == nil {
		all = []*domain.Session{}
	}
	data, err := json.Marshal(all)
	if err != nil {
		return fmt.Errorf("encode sessions: %w", err)
	}
	return s.put(ctx, sessionsKey, string(data))
}

func (s *LocalStore) put(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, s.now(),
	)
	return err
}
