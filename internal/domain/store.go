package domain

import "context"

// SessionStore is the persistence contract shared by the local and cloud
// backends. Save upserts by session ID; Get returns (nil, nil) for a
// missing session.
type SessionStore interface {
	Create(ctx context.Context, title string) (*Session, error)
	Save(ctx context.Context, s *Session) error
	Get(ctx context.Context, id string) (*Session, error)
	ListAll(ctx context.Context) ([]*Session, error)
	Search(ctx context.Context, titleQuery string) ([]*Session, error)
	Delete(ctx context.Context, id string) error
	Close() error
}

// Identity is the caller-supplied authentication state. It decides which
// store backend a session lives in.
type Identity struct {
	UserID string
}

// Authenticated reports whether the caller is signed in. Signed-in users
// get the cloud store, everyone else the local one.
func (i Identity) Authenticated() bool {
	return i.UserID != ""
}
