package pdfcpu

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/kirillkom/document-intake/internal/core/domain"
)

// Splitter turns a multi-page PDF into single-page PDF payloads, one per
// page in document order. The recognition engine accepts single-page PDFs,
// so no image conversion happens here.
type Splitter struct {
	tempDir string
	conf    *model.Configuration
}

// New returns a splitter working under tempDir ("" means os.TempDir()).
func New(tempDir string) *Splitter {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return &Splitter{tempDir: tempDir, conf: conf}
}

func (s *Splitter) Rasterize(ctx context.Context, pdf []byte, label string) ([][]byte, error) {
	op := fmt.Sprintf("split %s", label)
	if !bytes.HasPrefix(bytes.TrimLeft(pdf, "\x00\t\r\n "), []byte("%PDF")) {
		return nil, domain.WrapError(domain.ErrUnsupportedFormat, op, errors.New("payload is not a PDF"))
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	pageCount, err := api.PageCount(bytes.NewReader(pdf), s.conf)
	if err != nil {
		return nil, domain.WrapError(domain.ErrUnsupportedFormat, op, err)
	}
	if pageCount == 0 {
		return nil, domain.WrapError(domain.ErrUnsupportedFormat, op, errors.New("document has no pages"))
	}
	if pageCount == 1 {
		return [][]byte{pdf}, nil
	}

	// Splitting goes through the file API, one output file per page.
	dir, err := os.MkdirTemp(s.tempDir, "intake-pdf-*")
	if err != nil {
		return nil, fmt.Errorf("%s: create work dir: %w", op, err)
	}
	defer os.RemoveAll(dir)

	source := filepath.Join(dir, "source.pdf")
	if err := os.WriteFile(source, pdf, 0o600); err != nil {
		return nil, fmt.Errorf("%s: write source: %w", op, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := api.SplitFile(source, dir, 1, s.conf); err != nil {
		return nil, domain.WrapError(domain.ErrUnsupportedFormat, op, err)
	}

	pages := make([][]byte, 0, pageCount)
	for page := 1; page <= pageCount; page++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		data, err := os.ReadFile(filepath.Join(dir, fmt.Sprintf("source_%d.pdf", page)))
		if err != nil {
			return nil, fmt.Errorf("%s: read page %d: %w", op, page, err)
		}
		pages = append(pages, data)
	}
	return pages, nil
}
