package ports

import (
	"context"

	"github.com/kirillkom/document-intake/internal/core/domain"
)

// BatchRequest is one submission call: files keyed by upload slot.
type BatchRequest struct {
	SessionID   string
	UseFor      string
	ProductLine string
	Variant     string
	Files       map[string]domain.UploadedFile
}

// BatchProcessor is the inbound contract for batch recognition and validation.
type BatchProcessor interface {
	ProcessBatch(ctx context.Context, req BatchRequest) (*domain.Verdict, error)
}

// SessionReader is the inbound read model for accumulated session state.
type SessionReader interface {
	GetSession(ctx context.Context, sessionID string) (*domain.SessionState, error)
	DeleteSession(ctx context.Context, sessionID string) error
}
