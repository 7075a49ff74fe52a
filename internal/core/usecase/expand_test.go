package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/kirillkom/document-intake/internal/core/domain"
)

func TestExpandProducesOrderedPages(t *testing.T) {
	expander := NewPageExpander(&rasterizerFake{pages: map[string][][]byte{
		"pdf": {[]byte("p1"), []byte("p2"), []byte("p3")},
	}})

	units, err := expander.Expand(context.Background(), domain.DocumentUnit{
		Slot:     "doc1",
		FileName: "id.pdf",
		MimeType: domain.MimeTypePDF,
		Payload:  []byte("pdf"),
		TypeHint: domain.DocTypeIdentity,
	})
	if err != nil {
		t.Fatalf("Expand() error = %v", err)
	}
	if len(units) != 3 {
		t.Fatalf("expected 3 pages, got %d", len(units))
	}
	for i, u := range units {
		if u.Page != i+1 {
			t.Fatalf("expected page %d, got %d", i+1, u.Page)
		}
		if string(u.Payload) != "p"+string(rune('1'+i)) {
			t.Fatalf("unexpected payload order at %d: %s", i, u.Payload)
		}
		if u.Slot != "doc1" || u.TypeHint != domain.DocTypeIdentity {
			t.Fatalf("expected slot and hint carried over, got %+v", u)
		}
	}
	if units[1].Label() != "id.pdf (page 2)" {
		t.Fatalf("unexpected label %q", units[1].Label())
	}
}

func TestExpandWrapsRasterizerFailure(t *testing.T) {
	expander := NewPageExpander(&rasterizerFake{err: errors.New("bad xref")})
	_, err := expander.Expand(context.Background(), domain.DocumentUnit{FileName: "x.pdf", Payload: []byte("x")})
	if !domain.IsKind(err, domain.ErrUnsupportedFormat) {
		t.Fatalf("expected unsupported format, got %v", err)
	}
}

func TestExpandRejectsEmptyDocument(t *testing.T) {
	expander := NewPageExpander(&rasterizerFake{pages: map[string][][]byte{"empty": {}}})
	_, err := expander.Expand(context.Background(), domain.DocumentUnit{FileName: "x.pdf", Payload: []byte("empty")})
	if !domain.IsKind(err, domain.ErrUnsupportedFormat) {
		t.Fatalf("expected unsupported format, got %v", err)
	}
}

func TestExpandReportsCancellationAsRecognitionFailure(t *testing.T) {
	for _, cause := range []error{context.Canceled, context.DeadlineExceeded} {
		expander := NewPageExpander(&rasterizerFake{err: cause})
		_, err := expander.Expand(context.Background(), domain.DocumentUnit{FileName: "x.pdf", Payload: []byte("x")})
		if !errors.Is(err, cause) || !domain.IsKind(err, domain.ErrRecognitionFailed) {
			t.Fatalf("expected %v as recognition failure, got %v", cause, err)
		}
		if domain.IsKind(err, domain.ErrUnsupportedFormat) {
			t.Fatalf("cancellation must not read as unsupported format: %v", err)
		}
	}
}
