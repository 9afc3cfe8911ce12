package session

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/google/uuid"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/Individeveloper/StockPocket/internal/domain"
)

// RemoteStore keeps sessions in Firestore under users/{uid}/sessions,
// one document per session. Attachment content never travels here; only
// descriptive metadata is written. Document writes carry a server-assigned
// synced_at alongside the client-clock updated_at used for ordering.
type RemoteStore struct {
	client *firestore.Client
	userID string
	logger *slog.Logger
	now    func() time.Time
}

func NewRemoteStore(ctx context.Context, projectID, userID string, logger *slog.Logger) (*RemoteStore, error) {
	if projectID == "" {
		return nil, fmt.Errorf("remote store requires a project id")
	}
	if userID == "" {
		return nil, fmt.Errorf("remote store requires a user id")
	}

	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("creating firestore client: %w", err)
	}

	return &RemoteStore{client: client, userID: userID, logger: logger, now: time.Now}, nil
}

func (s *RemoteStore) sessionsCol() *firestore.CollectionRef {
	return s.client.Collection("users").Doc(s.userID).Collection("sessions")
}

type sessionDoc struct {
	Title       string          `firestore:"title"`
	Messages    []messageDoc    `firestore:"messages"`
	Attachments []attachmentDoc `firestore:"attachments"`
	CreatedAt   time.Time       `firestore:"created_at"`
	UpdatedAt   time.Time       `firestore:"updated_at"`
}

type messageDoc struct {
	ID            string        `firestore:"id"`
	Role          string        `firestore:"role"`
	Text          string        `firestore:"text"`
	Timestamp     time.Time     `firestore:"timestamp"`
	Attachments   []fileMetaDoc `firestore:"attachments"`
	Citations     []citationDoc `firestore:"citations"`
	IsPlaceholder bool          `firestore:"is_placeholder"`
}

type fileMetaDoc struct {
	Name     string `firestore:"name"`
	MimeType string `firestore:"mime_type"`
}

type attachmentDoc struct {
	ID        string `firestore:"id"`
	Name      string `firestore:"name"`
	Category  string `firestore:"category"`
	SizeBytes int64  `firestore:"size_bytes"`
	SourceURI string `firestore:"source_uri"`
	MimeType  string `firestore:"mime_type"`
}

type citationDoc struct {
	URI   string `firestore:"uri"`
	Title string `firestore:"title"`
}

func (s *RemoteStore) Create(ctx context.Context, title string) (*domain.Session, error) {
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
	if _, err := s.sessionsCol().Doc(sess.ID).Set(ctx, docFromSession(sess)); err != nil {
		return nil, fmt.Errorf("firestore create session: %w", err)
	}
	return sess, nil
}

func (s *RemoteStore) Save(ctx context.Context, sess *domain.Session) error {
	sess.Touch(s.now())
	if _, err := s.sessionsCol().Doc(sess.ID).Set(ctx, docFromSession(sess)); err != nil {
		return fmt.Errorf("firestore save session: %w", err)
	}
	return nil
}

func (s *RemoteStore) Get(ctx context.Context, id string) (*domain.Session, error) {
	snap, err := s.sessionsCol().Doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("firestore get session: %w", err)
	}
	return sessionFromSnap(snap)
}

func (s *RemoteStore) ListAll(ctx context.Context) ([]*domain.Session, error) {
	iter := s.sessionsCol().OrderBy("updated_at", firestore.Desc).Documents(ctx)
	defer iter.Stop()

	var out []*domain.Session
	for {
		snap, err := iter.Next()
		if err != nil {
			if err == iterator.Done {
				break
			}
			return nil, fmt.Errorf("firestore list sessions: %w", err)
		}
		sess, err := sessionFromSnap(snap)
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, nil
}

// Search filters client-side: Firestore has no substring queries and the
// per-user session count stays small.
func (s *RemoteStore) Search(ctx context.Context, titleQuery string) ([]*domain.Session, error) {
	all, err := s.ListAll(ctx)
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

func (s *RemoteStore) Delete(ctx context.Context, id string) error {
	if _, err := s.sessionsCol().Doc(id).Delete(ctx); err != nil {
		return fmt.Errorf("firestore delete session: %w", err)
	}
	return nil
}

func (s *RemoteStore) Close() error {
	return s.client.Close()
}

// docFromSession builds the map written to Firestore. Attachment content
// is reduced to metadata and absent values are stripped recursively before
// the write; synced_at is the server's clock, updated_at the client's.
func docFromSession(sess *domain.Session) map[string]any {
	messages := make([]map[string]any, 0, len(sess.Messages))
	for _, m := range sess.Messages {
		messages = append(messages, messageMap(m))
	}

	var staged []map[string]any
	if sess.Attachments != nil {
		staged = make([]map[string]any, 0, len(sess.Attachments))
		for _, a := range sess.Attachments {
			staged = append(staged, map[string]any{
				"id":         a.ID,
				"name":       a.Name,
				"category":   string(a.Category),
				"size_bytes": a.SizeBytes,
				"source_uri": a.SourceURI,
				"mime_type":  a.MimeType,
			})
		}
	}

	doc := map[string]any{
		"title":       sess.Title,
		"messages":    messages,
		"attachments": staged,
		"created_at":  sess.CreatedAt,
		"updated_at":  sess.UpdatedAt,
	}
	doc = stripAbsent(doc)
	doc["synced_at"] = firestore.ServerTimestamp
	return doc
}

func messageMap(m domain.Message) map[string]any {
	doc := map[string]any{
		"id":        m.ID,
		"role":      string(m.Role),
		"text":      m.Text,
		"timestamp": m.Timestamp,
	}
	if m.Attachments != nil {
		metas := make([]map[string]any, 0, len(m.Attachments))
		for _, a := range m.Attachments {
			metas = append(metas, map[string]any{"name": a.Name, "mime_type": a.MimeType})
		}
		doc["attachments"] = metas
	}
	if m.Citations != nil {
		cits := make([]map[string]any, 0, len(m.Citations))
		for _, c := range m.Citations {
			cits = append(cits, map[string]any{"uri": c.URI, "title": c.Title})
		}
		doc["citations"] = cits
	}
	if m.IsPlaceholder {
		doc["is_placeholder"] = true
	}
	return doc
}

func sessionFromSnap(snap *firestore.DocumentSnapshot) (*domain.Session, error) {
	var doc sessionDoc
	if err := snap.DataTo(&doc); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", snap.Ref.ID, err)
	}

	sess := &domain.Session{
		ID:        snap.Ref.ID,
		Title:     doc.Title,
		Messages:  make([]domain.Message, 0, len(doc.Messages)),
		CreatedAt: doc.CreatedAt,
		UpdatedAt: doc.UpdatedAt,
	}
	for _, m := range doc.Messages {
		msg := domain.Message{
			ID:            m.ID,
			Role:          domain.Role(m.Role),
			Text:          m.Text,
			Timestamp:     m.Timestamp,
			IsPlaceholder: m.IsPlaceholder,
		}
		for _, a := range m.Attachments {
			msg.Attachments = append(msg.Attachments, domain.Attachment{Name: a.Name, MimeType: a.MimeType})
		}
		for _, c := range m.Citations {
			msg.Citations = append(msg.Citations, domain.Citation{URI: c.URI, Title: c.Title})
		}
		sess.Messages = append(sess.Messages, msg)
	}
	for _, a := range doc.Attachments {
		sess.Attachments = append(sess.Attachments, domain.StoredAttachment{
			ID:        a.ID,
			Name:      a.Name,
			Category:  domain.AttachmentCategory(a.Category),
			SizeBytes: a.SizeBytes,
			SourceURI: a.SourceURI,
			MimeType:  a.MimeType,
		})
	}
	return sess, nil
}
