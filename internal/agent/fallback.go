package agent

import (
	"context"
	_ "embed"
	"errors"
	"log/slog"
	"net"
	"net/url"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/Individeveloper/StockPocket/internal/domain"
)

// Category buckets a turn failure for the user-facing fallback reply.
type Category string

const (
	CategoryConfiguration Category = "configuration"
	CategoryNetwork       Category = "network"
	CategoryQuota         Category = "quota"
	CategoryUnknown       Category = "unknown"
	// CategoryNoAnswer is not an error class: it covers turns where the
	// backend closed without any answer text.
	CategoryNoAnswer Category = "no_answer"
)

// Classify maps a turn error to its fallback category.
func Classify(err error) Category {
	switch {
	case err == nil:
		return CategoryUnknown
	case errors.Is(err, domain.ErrMissingAPIKey):
		return CategoryConfiguration
	case errors.Is(err, domain.ErrQuotaExhausted):
		return CategoryQuota
	case errors.Is(err, domain.ErrUnavailable),
		errors.Is(err, context.DeadlineExceeded),
		isNetworkError(err):
		return CategoryNetwork
	default:
		return CategoryUnknown
	}
}

func isNetworkError(err error) bool {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

//go:embed fallbacks.yaml
var defaultCatalog []byte

// Fallbacks is the catalog of user-facing replies used when a turn cannot
// produce a real answer.
type Fallbacks struct {
	messages map[Category]string
}

// DefaultFallbacks loads the built-in catalog.
func DefaultFallbacks() *Fallbacks {
	f := &Fallbacks{messages: make(map[Category]string)}
	// The embedded catalog is part of the build; a parse failure here is
	// a programming error, not a runtime condition.
	if err := f.merge(defaultCatalog); err != nil {
		panic("embedded fallback catalog invalid: " + err.Error())
	}
	return f
}

// LoadFallbacks returns the built-in catalog overlaid with entries from
// an optional YAML file. A missing or broken file keeps the defaults.
func LoadFallbacks(path string, logger *slog.Logger) *Fallbacks {
	f := DefaultFallbacks()
	if path == "" {
		return f
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Warn("fallback catalog unreadable, using defaults", "path", path, "error", err)
		}
		return f
	}
	if err := f.merge(data); err != nil {
		logger.Warn("fallback catalog invalid, using defaults", "path", path, "error", err)
	}
	return f
}

func (f *Fallbacks) merge(data []byte) error {
	var raw map[string]string
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return err
	}
	for key, msg := range raw {
		if msg != "" {
			f.messages[Category(key)] = msg
		}
	}
	return nil
}

// Message returns the reply for a category, falling back to the unknown
// entry so the caller always gets text.
func (f *Fallbacks) Message(cat Category) string {
	if msg, ok := f.messages[cat]; ok {
		return msg
	}
	if msg, ok := f.messages[CategoryUnknown]; ok {
		return msg
	}
	return "Something went wrong while preparing your answer. Please try again."
}
