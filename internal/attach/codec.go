// Package attach converts picked documents into the base64 wire form the
// AI backend accepts and enforces per-category size limits before anything
// leaves the device.
package attach

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/Individeveloper/StockPocket/internal/domain"
)

// Limits holds the maximum raw size per attachment category. PDFs get the
// most room, spreadsheets less, plain text the least.
type Limits struct {
	PDFMaxBytes         int64
	SpreadsheetMaxBytes int64
	CSVMaxBytes         int64
	TextMaxBytes        int64
}

// DefaultLimits returns the limits used when the config does not override
// them.
func DefaultLimits() Limits {
	return Limits{
		PDFMaxBytes:         10 * 1024 * 1024,
		SpreadsheetMaxBytes: 5 * 1024 * 1024,
		CSVMaxBytes:         2 * 1024 * 1024,
		TextMaxBytes:        1 * 1024 * 1024,
	}
}

// For returns the limit applying to a category.
func (l Limits) For(cat domain.AttachmentCategory) int64 {
	switch cat {
	case domain.CategoryPDF:
		return l.PDFMaxBytes
	case domain.CategorySpreadsheet:
		return l.SpreadsheetMaxBytes
	case domain.CategoryCSV:
		return l.CSVMaxBytes
	default:
		return l.TextMaxBytes
	}
}

// ValidationKind names why an attachment was rejected.
type ValidationKind string

const (
	TooLarge ValidationKind = "too_large"
	Empty    ValidationKind = "empty"
)

// ValidationError reports a rejected attachment. It carries enough context
// to render a useful message without re-inspecting the file.
type ValidationError struct {
	Kind  ValidationKind
	Name  string
	Size  int64
	Limit int64
}

func (e *ValidationError) Error() string {
	switch e.Kind {
	case TooLarge:
		return fmt.Sprintf("%s is too large: %d bytes (limit %d)", e.Name, e.Size, e.Limit)
	case Empty:
		return fmt.Sprintf("%s is empty", e.Name)
	default:
		return fmt.Sprintf("%s failed validation", e.Name)
	}
}

// DetectCategory classifies a document by MIME type first, falling back to
// the file extension. Anything unrecognized counts as plain text, the
// strictest bucket.
func DetectCategory(name, mimeType string) domain.AttachmentCategory {
	mime := strings.ToLower(strings.TrimSpace(mimeType))
	switch {
	case mime == "application/pdf":
		return domain.CategoryPDF
	case mime == "text/csv", mime == "application/csv":
		return domain.CategoryCSV
	case strings.Contains(mime, "spreadsheet"), strings.Contains(mime, "ms-excel"):
		return domain.CategorySpreadsheet
	}
	switch strings.ToLower(filepath.Ext(name)) {
	case ".pdf":
		return domain.CategoryPDF
	case ".xls", ".xlsx", ".ods":
		return domain.CategorySpreadsheet
	case ".csv":
		return domain.CategoryCSV
	default:
		return domain.CategoryText
	}
}

// MimeFor returns the wire MIME type for a document, preferring the picker
// supplied type over extension guessing.
func MimeFor(name, mimeType string) string {
	if mt := strings.TrimSpace(mimeType); mt != "" {
		return mt
	}
	switch strings.ToLower(filepath.Ext(name)) {
	case ".pdf":
		return "application/pdf"
	case ".csv":
		return "text/csv"
	case ".xls":
		return "application/vnd.ms-excel"
	case ".xlsx":
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case ".json":
		return "application/json"
	case ".md", ".txt":
		return "text/plain"
	default:
		return "application/octet-stream"
	}
}

// Encode converts raw file bytes into the wire attachment form. It is
// total: bytes that fail to decode as UTF-8 text are still forwarded as
// opaque base64 under an octet-stream type rather than erroring out.
func Encode(name, mimeType string, data []byte) domain.Attachment {
	mt := MimeFor(name, mimeType)
	cat := DetectCategory(name, mt)
	if (cat == domain.CategoryCSV || cat == domain.CategoryText) && !utf8.Valid(data) {
		mt = "application/octet-stream"
	}
	return domain.Attachment{
		Name:          name,
		MimeType:      mt,
		Base64Content: base64.StdEncoding.EncodeToString(data),
	}
}

// Stage builds the locally stored form of a picked document, full content
// included. Cloud writes strip the content later; locally it is kept so
// the session can be resent without re-picking the file.
func Stage(name, mimeType, sourceURI string, data []byte) domain.StoredAttachment {
	wire := Encode(name, mimeType, data)
	return domain.StoredAttachment{
		ID:            uuid.NewString(),
		Name:          name,
		Category:      DetectCategory(name, wire.MimeType),
		SizeBytes:     int64(len(data)),
		SourceURI:     sourceURI,
		MimeType:      wire.MimeType,
		Base64Content: wire.Base64Content,
	}
}

// StageFile reads and stages a document from disk, validating it against
// the limits before anything is kept.
func StageFile(path string, limits Limits) (domain.StoredAttachment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.StoredAttachment{}, fmt.Errorf("read attachment: %w", err)
	}
	name := filepath.Base(path)
	if err := ValidateSize(name, DetectCategory(name, ""), int64(len(data)), limits); err != nil {
		return domain.StoredAttachment{}, err
	}
	return Stage(name, "", path, data), nil
}

// ValidateSize checks raw content size against the category limit.
func ValidateSize(name string, cat domain.AttachmentCategory, size int64, limits Limits) error {
	if size == 0 {
		return &ValidationError{Kind: Empty, Name: name}
	}
	if limit := limits.For(cat); size > limit {
		return &ValidationError{Kind: TooLarge, Name: name, Size: size, Limit: limit}
	}
	return nil
}

// Validate checks a wire attachment against the limits using its decoded
// content size.
func Validate(att domain.Attachment, limits Limits) error {
	cat := DetectCategory(att.Name, att.MimeType)
	return ValidateSize(att.Name, cat, decodedSize(att.Base64Content), limits)
}

// decodedSize computes the raw byte count of standard base64 content
// without decoding it.
func decodedSize(b64 string) int64 {
	n := int64(len(b64))
	if n == 0 {
		return 0
	}
	padding := int64(0)
	if strings.HasSuffix(b64, "==") {
		padding = 2
	} else if strings.HasSuffix(b64, "=") {
		padding = 1
	}
	return n/4*3 - padding
}
