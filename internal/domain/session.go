package domain

import (
	"sort"
	"strings"
	"time"
)

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// AttachmentCategory buckets a document for size validation. Limits differ
// per bucket, so detection happens once at pick time and travels with the
// stored attachment.
type AttachmentCategory string

const (
	CategoryPDF         AttachmentCategory = "pdf"
	CategorySpreadsheet AttachmentCategory = "spreadsheet"
	CategoryCSV         AttachmentCategory = "csv"
	CategoryText        AttachmentCategory = "text"
)

// Attachment is the wire form of a document as sent to the AI backend.
type Attachment struct {
	Name          string `json:"name"`
	MimeType      string `json:"mimeType"`
	Base64Content string `json:"base64Content"`
}

// StoredAttachment is a picked document staged on a session, not yet sent.
// Base64Content is kept locally but stripped before any cloud write.
type StoredAttachment struct {
	ID            string             `json:"id"`
	Name          string             `json:"name"`
	Category      AttachmentCategory `json:"category"`
	SizeBytes     int64              `json:"sizeBytes"`
	SourceURI     string             `json:"sourceUri,omitempty"`
	MimeType      string             `json:"mimeType"`
	Base64Content string             `json:"base64Content,omitempty"`
}

// Wire converts a staged attachment into the form sent to the AI backend.
func (a StoredAttachment) Wire() Attachment {
	return Attachment{Name: a.Name, MimeType: a.MimeType, Base64Content: a.Base64Content}
}

// Citation is a grounding reference the backend attached to an answer.
type Citation struct {
	URI   string `json:"uri"`
	Title string `json:"title"`
}

// Message is one half of a conversation turn. Messages are immutable once
// appended; the only transient state is IsPlaceholder, set on optimistic
// inserts and removed when the real reply lands or the turn is rolled back.
type Message struct {
	ID            string       `json:"id"`
	Role          Role         `json:"role"`
	Text          string       `json:"text"`
	Timestamp     time.Time    `json:"timestamp"`
	Attachments   []Attachment `json:"attachments,omitempty"`
	Citations     []Citation   `json:"citations,omitempty"`
	IsPlaceholder bool         `json:"isPlaceholder,omitempty"`
}

// Session groups the messages and staged attachments of one conversation.
type Session struct {
	ID          string             `json:"id"`
	Title       string             `json:"title"`
	Messages    []Message          `json:"messages"`
	Attachments []StoredAttachment `json:"attachments,omitempty"`
	CreatedAt   time.Time          `json:"createdAt"`
	UpdatedAt   time.Time          `json:"updatedAt"`
}

// Touch advances UpdatedAt. The clock never moves backwards even if the
// caller's clock does, so session ordering stays stable.
func (s *Session) Touch(now time.Time) {
	if now.After(s.UpdatedAt) {
		s.UpdatedAt = now
	}
}

// Clone returns a deep copy safe to hand to another goroutine while the
// original keeps being appended to.
func (s *Session) Clone() *Session {
	out := *s
	out.Messages = make([]Message, len(s.Messages))
	for i, m := range s.Messages {
		cm := m
		cm.Attachments = append([]Attachment(nil), m.Attachments...)
		cm.Citations = append([]Citation(nil), m.Citations...)
		out.Messages[i] = cm
	}
	out.Attachments = append([]StoredAttachment(nil), s.Attachments...)
	return &out
}

// SortSessionsByUpdated orders sessions most recently updated first.
func SortSessionsByUpdated(list []*Session) {
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].UpdatedAt.After(list[j].UpdatedAt)
	})
}

const titleMaxLen = 60

// DeriveTitle builds a session title from the first user message: first
// line only, cut at a word boundary around 60 characters.
func DeriveTitle(text string) string {
	title := strings.TrimSpace(text)
	if idx := strings.Index(title, "\n"); idx > 0 {
		title = title[:idx]
	}
	if len(title) > titleMaxLen {
		cut := titleMaxLen
		if idx := strings.LastIndex(title[:titleMaxLen], " "); idx > 20 {
			cut = idx
		}
		title = title[:cut] + "..."
	}
	if title == "" {
		title = "New conversation"
	}
	return title
}
