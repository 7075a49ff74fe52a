package usecase

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/kirillkom/document-intake/internal/core/domain"
	"github.com/kirillkom/document-intake/internal/core/ports"
)

// UploadSlots is the closed, ordered set of accepted upload slots.
var UploadSlots = []string{"doc1", "doc2", "doc3", "doc4", "doc5", "doc6"}

type BatchInput struct {
	UseFor      string
	ProductLine string
	Files       map[string]domain.UploadedFile
	// MinPDFPages rejects PDFs with fewer pages. 0 disables the check.
	MinPDFPages int
}

// Orchestrator recognizes every unit of a batch concurrently. A failing unit
// becomes a failed record and never affects its siblings.
type Orchestrator struct {
	recognizer ports.Recognizer
	expander   *PageExpander
	classifier *Classifier
	limit      *semaphore.Weighted
}

// NewOrchestrator caps in-flight recognizer calls at maxConcurrency; 0 or less
// means no cap.
func NewOrchestrator(
	recognizer ports.Recognizer,
	expander *PageExpander,
	classifier *Classifier,
	maxConcurrency int,
) *Orchestrator {
	o := &Orchestrator{
		recognizer: recognizer,
		expander:   expander,
		classifier: classifier,
	}
	if maxConcurrency > 0 {
		o.limit = semaphore.NewWeighted(int64(maxConcurrency))
	}
	return o
}

// Run returns records in (slot, page) order regardless of completion order.
func (o *Orchestrator) Run(ctx context.Context, in BatchInput) ([]domain.ProcessedRecord, error) {
	useFor := strings.TrimSpace(in.UseFor)
	productLine := strings.TrimSpace(in.ProductLine)
	if useFor == "" || productLine == "" {
		return nil, domain.InvalidInput("run batch", "both useFor and productType are required and cannot be empty")
	}

	files := SelectFiles(in.Files)
	if len(files) == 0 {
		return nil, domain.InvalidInput("run batch", "no valid files uploaded")
	}

	hints := domain.RecognitionHints{UseFor: useFor, ProductLine: productLine}
	perFile := make([][]domain.ProcessedRecord, len(files))

	var g errgroup.Group
	for i, file := range files {
		g.Go(func() error {
			perFile[i] = o.processFile(ctx, file, hints, in.MinPDFPages)
			return nil
		})
	}
	_ = g.Wait()

	total := 0
	for _, recs := range perFile {
		total += len(recs)
	}
	records := make([]domain.ProcessedRecord, 0, total)
	for _, recs := range perFile {
		records = append(records, recs...)
	}
	return records, nil
}

// SelectFiles drops unknown and empty slots and orders the rest by slot name.
func SelectFiles(files map[string]domain.UploadedFile) []domain.UploadedFile {
	out := make([]domain.UploadedFile, 0, len(UploadSlots))
	for _, slot := range UploadSlots {
		file, ok := files[slot]
		if !ok || len(file.Payload) == 0 {
			continue
		}
		file.Slot = slot
		if strings.TrimSpace(file.FileName) == "" {
			file.FileName = defaultFileName(file.MimeType)
		}
		out = append(out, file)
	}
	return out
}

func (o *Orchestrator) processFile(
	ctx context.Context,
	file domain.UploadedFile,
	hints domain.RecognitionHints,
	minPages int,
) []domain.ProcessedRecord {
	unit := domain.DocumentUnit{
		Slot:     file.Slot,
		FileName: file.FileName,
		MimeType: strings.ToLower(strings.TrimSpace(file.MimeType)),
		Payload:  file.Payload,
		TypeHint: file.TypeHint,
	}
	if unit.MimeType != domain.MimeTypePDF {
		return []domain.ProcessedRecord{o.recognizeUnit(ctx, unit, hints)}
	}

	pages, err := o.expander.Expand(ctx, unit)
	if err != nil {
		return []domain.ProcessedRecord{failedRecord(unit, hints.UseFor, err.Error())}
	}
	if minPages > 0 && len(pages) < minPages {
		msg := fmt.Sprintf("PDF %s must contain at least %d pages (front & back)", unit.FileName, minPages)
		return []domain.ProcessedRecord{failedRecord(unit, hints.UseFor, msg)}
	}

	records := make([]domain.ProcessedRecord, len(pages))
	var g errgroup.Group
	for i, page := range pages {
		g.Go(func() error {
			records[i] = o.recognizeUnit(ctx, page, hints)
			return nil
		})
	}
	_ = g.Wait()
	return records
}

func (o *Orchestrator) recognizeUnit(
	ctx context.Context,
	unit domain.DocumentUnit,
	hints domain.RecognitionHints,
) (rec domain.ProcessedRecord) {
	defer func() {
		if r := recover(); r != nil {
			rec = failedRecord(unit, hints.UseFor, fmt.Sprintf("recognition panicked: %v", r))
		}
	}()

	if !domain.IsSupportedMimeType(unit.MimeType) {
		return failedRecord(unit, hints.UseFor, fmt.Sprintf("unsupported image type: %s", unit.MimeType))
	}
	if o.limit != nil {
		if err := o.limit.Acquire(ctx, 1); err != nil {
			return failedRecord(unit, hints.UseFor, domain.WrapError(domain.ErrRecognitionFailed, "acquire recognition slot", err).Error())
		}
		defer o.limit.Release(1)
	}

	unitHints := hints
	unitHints.DocumentType = unit.TypeHint
	result, err := o.recognizer.Recognize(ctx, unit.Payload, unit.MimeType, unitHints)

	cls := o.classifier.Classify(result, unit.TypeHint, hints.UseFor)
	rec = domain.ProcessedRecord{
		Success:      err == nil,
		Slot:         unit.Slot,
		Source:       unit.Label(),
		FileName:     unit.FileName,
		Page:         unit.Page,
		DocumentType: cls.DocumentType,
		UseFor:       hints.UseFor,
		Fields:       cls.Fields,
		Redacted:     cls.Redacted,
	}
	if err != nil {
		if !domain.IsKind(err, domain.ErrRecognitionFailed) {
			err = domain.WrapError(domain.ErrRecognitionFailed, "recognize "+unit.Label(), err)
		}
		rec.Error = err.Error()
	}
	return rec
}

func failedRecord(unit domain.DocumentUnit, useFor, message string) domain.ProcessedRecord {
	if message == "" {
		message = "file processing failed"
	}
	return domain.ProcessedRecord{
		Success:  false,
		Slot:     unit.Slot,
		Source:   unit.Label(),
		FileName: unit.FileName,
		Page:     unit.Page,
		UseFor:   useFor,
		Error:    message,
	}
}

func defaultFileName(mimeType string) string {
	if strings.EqualFold(strings.TrimSpace(mimeType), domain.MimeTypePDF) {
		return "pdf"
	}
	return "image"
}
