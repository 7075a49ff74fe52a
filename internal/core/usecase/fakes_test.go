package usecase

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kirillkom/document-intake/internal/core/domain"
)

type recognizeResponse struct {
	result *domain.RecognitionResult
	err    error
	delay  time.Duration
}

// recognizerFake answers by payload content.
type recognizerFake struct {
	responses map[string]recognizeResponse
	calls     atomic.Int32
	inFlight  atomic.Int32
	maxSeen   atomic.Int32

	mu    sync.Mutex
	hints []domain.RecognitionHints
}

func (f *recognizerFake) Recognize(ctx context.Context, image []byte, _ string, hints domain.RecognitionHints) (*domain.RecognitionResult, error) {
	f.calls.Add(1)
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		seen := f.maxSeen.Load()
		if n <= seen || f.maxSeen.CompareAndSwap(seen, n) {
			break
		}
	}

	f.mu.Lock()
	f.hints = append(f.hints, hints)
	f.mu.Unlock()

	resp, ok := f.responses[string(image)]
	if !ok {
		return nil, errors.New("no fake response")
	}
	if resp.delay > 0 {
		select {
		case <-time.After(resp.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return resp.result, resp.err
}

type rasterizerFake struct {
	pages map[string][][]byte
	err   error
}

func (f *rasterizerFake) Rasterize(_ context.Context, pdf []byte, _ string) ([][]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	pages, ok := f.pages[string(pdf)]
	if !ok {
		return nil, errors.New("malformed pdf")
	}
	return pages, nil
}

type ruleBookFake struct {
	rules map[string]domain.ProductRules
}

func (f *ruleBookFake) RulesFor(productLine string) (domain.ProductRules, error) {
	r, ok := f.rules[productLine]
	if !ok {
		return domain.ProductRules{}, domain.WrapError(domain.ErrUnknownProductLine, "rules for", errors.New(productLine))
	}
	return r, nil
}

func vehicleRules() *ruleBookFake {
	return &ruleBookFake{rules: map[string]domain.ProductRules{
		"VEHICLE_REG": {
			ProductLine: "VEHICLE_REG",
			Required:    []domain.DocumentType{domain.DocTypeIdentity, domain.DocTypeLicense, domain.DocTypeRegistrationCard},
			CrossCheck: &domain.CrossCheckRule{
				First:  domain.DocTypeIdentity,
				Second: domain.DocTypeLicense,
				Field:  domain.FieldIdentityNumber,
			},
			Variants: map[string][]domain.DocumentType{
				"EXPORT_CERTIFICATE": {domain.DocTypeIdentity, domain.DocTypeLicense, domain.DocTypeExportCertificate},
			},
			MinPDFPages:    2,
			MinPagesExempt: []string{"EXPORT_CERTIFICATE"},
		},
		"TRAVEL": {
			ProductLine: "TRAVEL",
			Required:    []domain.DocumentType{domain.DocTypePassport},
		},
	}}
}

// storeFake is a versioned in-memory store with injectable conflicts.
type storeFake struct {
	mu        sync.Mutex
	states    map[string]*domain.SessionState
	conflicts int
	putCalls  int
	getErr    error
}

func newStoreFake() *storeFake {
	return &storeFake{states: make(map[string]*domain.SessionState)}
}

func (f *storeFake) Get(_ context.Context, id string) (*domain.SessionState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	s, ok := f.states[id]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return s.Clone(), nil
}

func (f *storeFake) Put(_ context.Context, state *domain.SessionState) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.putCalls++
	if f.conflicts > 0 {
		f.conflicts--
		return 0, domain.ErrVersionConflict
	}
	var current int64
	if s, ok := f.states[state.SessionID]; ok {
		current = s.Version
	}
	if current != state.Version {
		return 0, domain.ErrVersionConflict
	}
	next := state.Clone()
	next.Version = current + 1
	f.states[state.SessionID] = next
	return next.Version, nil
}

func (f *storeFake) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.states[id]; !ok {
		return domain.ErrSessionNotFound
	}
	delete(f.states, id)
	return nil
}

type eventsFake struct {
	events []domain.VerdictEvent
	err    error
}

func (f *eventsFake) PublishVerdict(_ context.Context, event domain.VerdictEvent) error {
	f.events = append(f.events, event)
	return f.err
}

func recognized(docType, idNumber string) recognizeResponse {
	fields := map[string]any{"name": "Jane Doe"}
	if idNumber != "" {
		fields["civilId"] = idNumber
	}
	return recognizeResponse{result: &domain.RecognitionResult{DocumentTypeGuess: docType, Fields: fields}}
}

func imageFile(name, content string) domain.UploadedFile {
	return domain.UploadedFile{FileName: name, MimeType: "image/jpeg", Payload: []byte(content)}
}

func pdfFile(name, content string) domain.UploadedFile {
	return domain.UploadedFile{FileName: name, MimeType: domain.MimeTypePDF, Payload: []byte(content)}
}
