package channel

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Individeveloper/StockPocket/internal/agent"
	"github.com/Individeveloper/StockPocket/internal/domain"
	"github.com/Individeveloper/StockPocket/internal/session"
	"github.com/Individeveloper/StockPocket/internal/tool"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// memStore is an in-memory SessionStore that records every Save.
type memStore struct {
	mu       sync.Mutex
	sessions map[string]*domain.Session
	saved    []*domain.Session
	created  int
}

func newMemStore() *memStore {
	return &memStore{sessions: make(map[string]*domain.Session)}
}

func (m *memStore) Create(ctx context.Context, title string) (*domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.created++
	if title == "" {
		title = "New conversation"
	}
	sess := &domain.Session{
		ID:        fmt.Sprintf("sess-%d", m.created),
		Title:     title,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	m.sessions[sess.ID] = sess.Clone()
	return sess, nil
}

func (m *memStore) Save(ctx context.Context, s *domain.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = s.Clone()
	m.saved = append(m.saved, s.Clone())
	return nil
}

func (m *memStore) Get(ctx context.Context, id string) (*domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, nil
	}
	return s.Clone(), nil
}

func (m *memStore) ListAll(ctx context.Context) ([]*domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*domain.Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s.Clone())
	}
	return out, nil
}

func (m *memStore) Search(ctx context.Context, query string) ([]*domain.Session, error) {
	all, _ := m.ListAll(ctx)
	out := all[:0]
	for _, s := range all {
		if strings.Contains(strings.ToLower(s.Title), strings.ToLower(query)) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *memStore) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}

func (m *memStore) Close() error { return nil }

func (m *memStore) saves() []*domain.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*domain.Session(nil), m.saved...)
}

func (m *memStore) put(s *domain.Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = s.Clone()
}

// activeMemStore adds last-active tracking on top of memStore.
type activeMemStore struct {
	*memStore
	mu     sync.Mutex
	active string
}

func (a *activeMemStore) LastActive(ctx context.Context) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.active, nil
}

func (a *activeMemStore) SetLastActive(ctx context.Context, id string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.active = id
	return nil
}

// scriptProvider replays canned responses and records requests.
type scriptProvider struct {
	mu       sync.Mutex
	requests []domain.GenerateRequest
	script   []*domain.GenerateResponse
	err      error
}

func (p *scriptProvider) Generate(ctx context.Context, req domain.GenerateRequest) (*domain.GenerateResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	idx := len(p.requests)
	p.requests = append(p.requests, req)
	if p.err != nil {
		return nil, p.err
	}
	if idx < len(p.script) {
		return p.script[idx], nil
	}
	return &domain.GenerateResponse{Text: "unscripted"}, nil
}

func (p *scriptProvider) Name() string                      { return "script" }
func (p *scriptProvider) Healthy(ctx context.Context) error { return nil }

func (p *scriptProvider) request(i int) domain.GenerateRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.requests[i]
}

func newTestDeps(t *testing.T, provider domain.Provider, store domain.SessionStore) *Deps {
	t.Helper()
	orch := agent.New(agent.Config{
		Provider:      provider,
		Tools:         tool.NewRegistry(testLogger()),
		Logger:        testLogger(),
		RateBurst:     100,
		RatePerMinute: 600000,
	})
	saver := session.NewSaver(store, 20*time.Millisecond, testLogger())
	t.Cleanup(func() { saver.Close() })
	return &Deps{
		Orchestrator: orch,
		Store:        store,
		Saver:        saver,
		Logger:       testLogger(),
	}
}

func waitForSaves(t *testing.T, store *memStore, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(store.saves()) >= want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d saves, have %d", want, len(store.saves()))
}

func TestTurnAppendsBothSidesOfTheExchange(t *testing.T) {
	provider := &scriptProvider{script: []*domain.GenerateResponse{
		{Text: "BBCA closed at 9850."},
	}}
	store := newMemStore()
	deps := newTestDeps(t, provider, store)

	sess, _ := store.Create(context.Background(), "")
	reply := deps.Turn(context.Background(), sess, "how did BBCA close?")

	if reply.Text != "BBCA closed at 9850." {
		t.Fatalf("reply = %q", reply.Text)
	}
	if len(sess.Messages) != 2 {
		t.Fatalf("messages = %d, want 2", len(sess.Messages))
	}
	user, assistant := sess.Messages[0], sess.Messages[1]
	if user.Role != domain.RoleUser || user.Text != "how did BBCA close?" {
		t.Errorf("user message = %+v", user)
	}
	if assistant.Role != domain.RoleAssistant || assistant.Text != reply.Text {
		t.Errorf("assistant message = %+v", assistant)
	}
	if user.ID == "" || assistant.ID == "" || user.ID == assistant.ID {
		t.Errorf("message IDs not distinct: %q vs %q", user.ID, assistant.ID)
	}
	if user.Timestamp.IsZero() || assistant.Timestamp.IsZero() {
		t.Error("message timestamps not set")
	}
}

func TestTurnDerivesTitleFromFirstMessage(t *testing.T) {
	provider := &scriptProvider{script: []*domain.GenerateResponse{{Text: "ok"}}}
	store := newMemStore()
	deps := newTestDeps(t, provider, store)

	sess, _ := store.Create(context.Background(), "")
	deps.Turn(context.Background(), sess, "compare BBCA and BBRI margins")

	if sess.Title != "compare BBCA and BBRI margins" {
		t.Fatalf("title = %q", sess.Title)
	}
}

func TestTurnKeepsTitleAfterFirstExchange(t *testing.T) {
	provider := &scriptProvider{script: []*domain.GenerateResponse{{Text: "ok"}}}
	store := newMemStore()
	deps := newTestDeps(t, provider, store)

	sess := &domain.Session{
		ID:    "existing",
		Title: "bank margins",
		Messages: []domain.Message{
			{ID: "m1", Role: domain.RoleUser, Text: "earlier question", Timestamp: time.Now()},
			{ID: "m2", Role: domain.RoleAssistant, Text: "earlier answer", Timestamp: time.Now()},
		},
	}
	deps.Turn(context.Background(), sess, "and what about BMRI?")

	if sess.Title != "bank margins" {
		t.Fatalf("title changed to %q", sess.Title)
	}
	if len(sess.Messages) != 4 {
		t.Fatalf("messages = %d, want 4", len(sess.Messages))
	}
}

func TestTurnStagedDocumentsTravelAndAreConsumed(t *testing.T) {
	provider := &scriptProvider{script: []*domain.GenerateResponse{{Text: "the report shows growth"}}}
	store := newMemStore()
	deps := newTestDeps(t, provider, store)

	sess, _ := store.Create(context.Background(), "")
	sess.Attachments = []domain.StoredAttachment{{
		ID:            "att1",
		Name:          "q3.csv",
		Category:      domain.CategoryCSV,
		SizeBytes:     4,
		MimeType:      "text/csv",
		Base64Content: "YSxiCg==",
	}}

	deps.Turn(context.Background(), sess, "summarize the report")

	// The document rode along as inline data on the new turn.
	req := provider.request(0)
	last := req.Contents[len(req.Contents)-1]
	var blob *domain.Blob
	for _, part := range last.Parts {
		if part.InlineData != nil {
			blob = part.InlineData
		}
	}
	if blob == nil {
		t.Fatal("new turn carries no inline data")
	}
	if blob.MimeType != "text/csv" || blob.Data != "YSxiCg==" {
		t.Errorf("inline data = %+v", blob)
	}

	// It landed on the stored user message and the staging area is empty.
	if len(sess.Messages[0].Attachments) != 1 || sess.Messages[0].Attachments[0].Name != "q3.csv" {
		t.Errorf("user message attachments = %+v", sess.Messages[0].Attachments)
	}
	if len(sess.Attachments) != 0 {
		t.Errorf("staged attachments not consumed: %+v", sess.Attachments)
	}
}

func TestTurnSchedulesDebouncedSave(t *testing.T) {
	provider := &scriptProvider{script: []*domain.GenerateResponse{{Text: "saved answer"}}}
	store := newMemStore()
	deps := newTestDeps(t, provider, store)

	sess, _ := store.Create(context.Background(), "")
	deps.Turn(context.Background(), sess, "hello")

	waitForSaves(t, store, 1)
	saved := store.saves()[0]
	if saved.ID != sess.ID {
		t.Fatalf("saved wrong session: %q", saved.ID)
	}
	if len(saved.Messages) != 2 {
		t.Fatalf("saved snapshot has %d messages, want 2", len(saved.Messages))
	}
}

func TestTurnProviderFailureStillCompletes(t *testing.T) {
	provider := &scriptProvider{err: domain.ErrMissingAPIKey}
	store := newMemStore()
	deps := newTestDeps(t, provider, store)

	sess, _ := store.Create(context.Background(), "")
	reply := deps.Turn(context.Background(), sess, "anything")

	want := agent.DefaultFallbacks().Message(agent.CategoryConfiguration)
	if reply.Text != want {
		t.Fatalf("reply = %q, want configuration fallback %q", reply.Text, want)
	}
	// The apology is still recorded as the assistant's side of the turn.
	if len(sess.Messages) != 2 || sess.Messages[1].Text != want {
		t.Fatalf("messages = %+v", sess.Messages)
	}
}

func TestResumeReopensLastActiveSession(t *testing.T) {
	store := &activeMemStore{memStore: newMemStore()}
	old := &domain.Session{ID: "prev", Title: "yesterday's chat", UpdatedAt: time.Now()}
	store.put(old)
	store.active = "prev"

	deps := &Deps{Store: store, Logger: testLogger()}
	sess, err := deps.resume(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if sess.ID != "prev" {
		t.Fatalf("resumed %q, want prev", sess.ID)
	}
}

func TestResumeStartsFreshWhenTrackerEmpty(t *testing.T) {
	store := &activeMemStore{memStore: newMemStore()}
	deps := &Deps{Store: store, Logger: testLogger()}

	sess, err := deps.resume(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if sess == nil || sess.ID == "" {
		t.Fatal("expected a fresh session")
	}
	if store.created != 1 {
		t.Fatalf("created = %d, want 1", store.created)
	}
}

func TestResumeStartsFreshWithoutTracker(t *testing.T) {
	store := newMemStore()
	deps := &Deps{Store: store, Logger: testLogger()}

	sess, err := deps.resume(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if sess == nil || store.created != 1 {
		t.Fatalf("sess = %+v, created = %d", sess, store.created)
	}
}
