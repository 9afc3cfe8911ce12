// Package channel hosts the user-facing frontends. Each channel owns its
// input loop and rendering; turns and persistence go through the shared
// Deps service so every frontend behaves the same.
package channel

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Individeveloper/StockPocket/internal/agent"
	"github.com/Individeveloper/StockPocket/internal/attach"
	"github.com/Individeveloper/StockPocket/internal/domain"
	"github.com/Individeveloper/StockPocket/internal/session"
)

// Deps bundles the collaborators a channel needs to run turns.
type Deps struct {
	Orchestrator *agent.Orchestrator
	Store        domain.SessionStore
	Saver        *session.Saver
	Limits       attach.Limits
	Logger       *slog.Logger
}

// lastActiveStore is the optional capability of stores that remember which
// session the user had open.
type lastActiveStore interface {
	LastActive(ctx context.Context) (string, error)
	SetLastActive(ctx context.Context, id string) error
}

// Turn runs one conversation turn on sess: staged attachments travel with
// the user text, both sides of the turn are appended, and a debounced save
// is scheduled. The reply is always usable; failures arrive as fallback
// text.
func (d *Deps) Turn(ctx context.Context, sess *domain.Session, text string) agent.Reply {
	atts := make([]domain.Attachment, 0, len(sess.Attachments))
	for _, a := range sess.Attachments {
		atts = append(atts, a.Wire())
	}

	history := sess.Messages
	reply := d.Orchestrator.Respond(ctx, history, text, atts)

	now := time.Now()
	sess.Messages = append(sess.Messages,
		domain.Message{
			ID:          uuid.NewString(),
			Role:        domain.RoleUser,
			Text:        text,
			Timestamp:   now,
			Attachments: atts,
		},
		domain.Message{
			ID:        uuid.NewString(),
			Role:      domain.RoleAssistant,
			Text:      reply.Text,
			Timestamp: now,
			Citations: reply.Citations,
		},
	)
	// Staged documents are consumed by the send.
	sess.Attachments = nil

	if len(history) == 0 && (sess.Title == "" || sess.Title == "New conversation") {
		sess.Title = domain.DeriveTitle(text)
	}

	d.Saver.Schedule(sess)
	return reply
}

// resume reopens the store's last-active session when the backend tracks
// one, otherwise starts fresh.
func (d *Deps) resume(ctx context.Context) (*domain.Session, error) {
	if la, ok := d.Store.(lastActiveStore); ok {
		if id, err := la.LastActive(ctx); err == nil && id != "" {
			if sess, err := d.Store.Get(ctx, id); err == nil && sess != nil {
				return sess, nil
			}
		}
	}
	return d.Store.Create(ctx, "")
}

// setActive records the open session for the next start.
func (d *Deps) setActive(ctx context.Context, id string) {
	if la, ok := d.Store.(lastActiveStore); ok {
		if err := la.SetLastActive(ctx, id); err != nil {
			d.Logger.Warn("cannot record active session", "session_id", id, "error", err)
		}
	}
}
