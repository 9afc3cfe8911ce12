package agent

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"testing"

	"github.com/Individeveloper/StockPocket/internal/domain"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want Category
	}{
		{"nil", nil, CategoryUnknown},
		{"missing key", fmt.Errorf("gemini: %w", domain.ErrMissingAPIKey), CategoryConfiguration},
		{"quota", fmt.Errorf("gemini 429: %w", domain.ErrQuotaExhausted), CategoryQuota},
		{"unavailable", fmt.Errorf("HTTP 503 after 2 retries: %w", domain.ErrUnavailable), CategoryNetwork},
		{"deadline", fmt.Errorf("initial dispatch: %w", context.DeadlineExceeded), CategoryNetwork},
		{"url error", fmt.Errorf("dispatch: %w", &url.Error{Op: "Post", URL: "https://x", Err: errors.New("connection refused")}), CategoryNetwork},
		{"net error", fmt.Errorf("dispatch: %w", &net.OpError{Op: "dial", Err: errors.New("refused")}), CategoryNetwork},
		{"plain error", errors.New("decode: unexpected EOF"), CategoryUnknown},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Classify(tc.err); got != tc.want {
				t.Fatalf("Classify(%v) = %s, want %s", tc.err, got, tc.want)
			}
		})
	}
}

func TestDefaultFallbacksCoversAllCategories(t *testing.T) {
	f := DefaultFallbacks()
	cats := []Category{CategoryConfiguration, CategoryNetwork, CategoryQuota, CategoryUnknown, CategoryNoAnswer}
	seen := make(map[string]Category)
	for _, cat := range cats {
		msg := f.Message(cat)
		if msg == "" {
			t.Fatalf("no message for %s", cat)
		}
		if prev, dup := seen[msg]; dup {
			t.Fatalf("%s and %s share a message", prev, cat)
		}
		seen[msg] = cat
	}
}

func TestLoadFallbacksOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fallbacks.yaml")
	if err := os.WriteFile(path, []byte("quota: \"Custom quota reply.\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	f := LoadFallbacks(path, testLogger())
	if got := f.Message(CategoryQuota); got != "Custom quota reply." {
		t.Fatalf("quota = %q", got)
	}
	if f.Message(CategoryNetwork) != DefaultFallbacks().Message(CategoryNetwork) {
		t.Fatal("untouched categories should keep defaults")
	}
}

func TestLoadFallbacksMissingFile(t *testing.T) {
	f := LoadFallbacks(filepath.Join(t.TempDir(), "absent.yaml"), testLogger())
	if f.Message(CategoryQuota) != DefaultFallbacks().Message(CategoryQuota) {
		t.Fatal("missing file should keep defaults")
	}
}

func TestLoadFallbacksBrokenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.yaml")
	if err := os.WriteFile(path, []byte(":\n\t- not yaml"), 0o644); err != nil {
		t.Fatal(err)
	}
	f := LoadFallbacks(path, testLogger())
	if f.Message(CategoryUnknown) == "" {
		t.Fatal("broken file should keep defaults")
	}
}

func TestMessageFallsBackToUnknown(t *testing.T) {
	f := DefaultFallbacks()
	if f.Message(Category("nonexistent")) != f.Message(CategoryUnknown) {
		t.Fatal("unlisted category should render the unknown reply")
	}
}
