package session

import (
	"context"
	"log/slog"

	"github.com/Individeveloper/StockPocket/internal/domain"
)

// Options configures the store backends. Only the fields for the selected
// backend are consulted.
type Options struct {
	// DBPath is the SQLite file for the local store.
	DBPath string
	// ProjectID is the GCP project for the Firestore store.
	ProjectID string
}

// Open selects the backend for the caller's identity: signed-in users get
// the Firestore store scoped to their uid, everyone else the local SQLite
// store. Callers depend only on the returned contract, never on which
// backend is behind it.
func Open(ctx context.Context, opts Options, ident domain.Identity, logger *slog.Logger) (domain.SessionStore, error) {
	if ident.Authenticated() {
		return NewRemoteStore(ctx, opts.ProjectID, ident.UserID, logger)
	}
	return NewLocalStore(opts.DBPath, logger)
}
