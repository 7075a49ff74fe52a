package usecase

import (
	"context"
	"errors"

	"github.com/kirillkom/document-intake/internal/core/domain"
	"github.com/kirillkom/document-intake/internal/core/ports"
)

type PageExpander struct {
	rasterizer ports.Rasterizer
}

func NewPageExpander(rasterizer ports.Rasterizer) *PageExpander {
	return &PageExpander{rasterizer: rasterizer}
}

// Expand returns one unit per page in document order. Page numbers are
// 1-based. A cancelled or expired context is reported as
// domain.ErrRecognitionFailed; every other failure as domain.ErrUnsupportedFormat.
func (e *PageExpander) Expand(ctx context.Context, unit domain.DocumentUnit) ([]domain.DocumentUnit, error) {
	pages, err := e.rasterizer.Rasterize(ctx, unit.Payload, unit.FileName)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, domain.WrapError(domain.ErrRecognitionFailed, "expand pages", err)
		}
		if domain.IsKind(err, domain.ErrUnsupportedFormat) {
			return nil, err
		}
		return nil, domain.WrapError(domain.ErrUnsupportedFormat, "expand pages", err)
	}
	if len(pages) == 0 {
		return nil, domain.WrapError(domain.ErrUnsupportedFormat, "expand pages", errors.New("document has no pages"))
	}

	units := make([]domain.DocumentUnit, 0, len(pages))
	for i, page := range pages {
		units = append(units, domain.DocumentUnit{
			Slot:     unit.Slot,
			FileName: unit.FileName,
			Page:     i + 1,
			MimeType: unit.MimeType,
			Payload:  page,
			TypeHint: unit.TypeHint,
		})
	}
	return units, nil
}
