package attach

import (
	"bytes"
	"encoding/base64"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/Individeveloper/StockPocket/internal/domain"
)

func TestDetectCategory(t *testing.T) {
	cases := []struct {
		name string
		mime string
		want domain.AttachmentCategory
	}{
		{"report.pdf", "application/pdf", domain.CategoryPDF},
		{"report.pdf", "", domain.CategoryPDF},
		{"data.csv", "text/csv", domain.CategoryCSV},
		{"data.csv", "", domain.CategoryCSV},
		{"book.xlsx", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", domain.CategorySpreadsheet},
		{"book.xls", "", domain.CategorySpreadsheet},
		{"notes.txt", "text/plain", domain.CategoryText},
		{"mystery.bin", "", domain.CategoryText},
	}
	for _, tc := range cases {
		if got := DetectCategory(tc.name, tc.mime); got != tc.want {
			t.Errorf("DetectCategory(%q, %q) = %s, want %s", tc.name, tc.mime, got, tc.want)
		}
	}
}

func TestValidateSizeBoundaries(t *testing.T) {
	limits := Limits{PDFMaxBytes: 1000, SpreadsheetMaxBytes: 500, CSVMaxBytes: 100, TextMaxBytes: 100}

	if err := ValidateSize("a.pdf", domain.CategoryPDF, 1000, limits); err != nil {
		t.Fatalf("size at limit should pass, got %v", err)
	}

	err := ValidateSize("a.pdf", domain.CategoryPDF, 1001, limits)
	var verr *ValidationError
	if !errors.As(err, &verr) || verr.Kind != TooLarge {
		t.Fatalf("one byte over limit: got %v, want TooLarge", err)
	}
	if verr.Size != 1001 || verr.Limit != 1000 {
		t.Fatalf("validation error detail wrong: %+v", verr)
	}

	err = ValidateSize("a.pdf", domain.CategoryPDF, 0, limits)
	if !errors.As(err, &verr) || verr.Kind != Empty {
		t.Fatalf("zero-length content: got %v, want Empty", err)
	}
}

func TestValidateUsesDecodedSize(t *testing.T) {
	limits := Limits{PDFMaxBytes: 8, SpreadsheetMaxBytes: 8, CSVMaxBytes: 8, TextMaxBytes: 8}
	att := Encode("notes.txt", "text/plain", []byte("12345678"))
	if err := Validate(att, limits); err != nil {
		t.Fatalf("8 bytes at 8-byte limit should pass, got %v", err)
	}
	att = Encode("notes.txt", "text/plain", []byte("123456789"))
	if err := Validate(att, limits); err == nil {
		t.Fatal("9 bytes at 8-byte limit should fail")
	}
}

func TestEncodeRoundTrips(t *testing.T) {
	data := []byte("symbol,price\nBBCA,9850\n")
	att := Encode("quotes.csv", "", data)
	if att.MimeType != "text/csv" {
		t.Fatalf("mime = %q, want text/csv", att.MimeType)
	}
	decoded, err := base64.StdEncoding.DecodeString(att.Base64Content)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !bytes.Equal(decoded, data) {
		t.Fatal("content did not round-trip")
	}
}

func TestEncodeSwallowsInvalidUTF8(t *testing.T) {
	data := []byte{0xff, 0xfe, 0x00, 0x01}
	att := Encode("notes.txt", "text/plain", data)
	if att.MimeType != "application/octet-stream" {
		t.Fatalf("invalid UTF-8 text should go opaque, got mime %q", att.MimeType)
	}
	if att.Base64Content != base64.StdEncoding.EncodeToString(data) {
		t.Fatal("bytes must be forwarded unchanged")
	}
}

func TestEncodeKeepsBinaryCategoriesUntouched(t *testing.T) {
	data := []byte{0xff, 0xd8, 0x00}
	att := Encode("report.pdf", "", data)
	if att.MimeType != "application/pdf" {
		t.Fatalf("pdf mime = %q", att.MimeType)
	}
}

func TestStageFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "annual.csv")
	if err := os.WriteFile(path, []byte("a,b\n1,2\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	sa, err := StageFile(path, DefaultLimits())
	if err != nil {
		t.Fatalf("StageFile: %v", err)
	}
	if sa.ID == "" {
		t.Fatal("staged attachment needs an id")
	}
	if sa.Category != domain.CategoryCSV {
		t.Fatalf("category = %s", sa.Category)
	}
	if sa.SizeBytes != 8 {
		t.Fatalf("size = %d", sa.SizeBytes)
	}
	if sa.Base64Content == "" {
		t.Fatal("local staging must keep content")
	}

	wire := sa.Wire()
	if wire.Name != "annual.csv" || wire.Base64Content != sa.Base64Content {
		t.Fatalf("wire form mismatch: %+v", wire)
	}
}

func TestStageFileRejectsOversized(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "big.csv")
	if err := os.WriteFile(path, bytes.Repeat([]byte("x"), 200), 0o644); err != nil {
		t.Fatal(err)
	}
	limits := DefaultLimits()
	limits.CSVMaxBytes = 100
	_, err := StageFile(path, limits)
	var verr *ValidationError
	if !errors.As(err, &verr) || verr.Kind != TooLarge {
		t.Fatalf("got %v, want TooLarge", err)
	}
}
