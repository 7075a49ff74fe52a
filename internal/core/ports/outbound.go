package ports

import (
	"context"

	"github.com/kirillkom/document-intake/internal/core/domain"
)

// Recognizer extracts structured fields from one image or single-page payload.
type Recognizer interface {
	Recognize(ctx context.Context, image []byte, mimeType string, hints domain.RecognitionHints) (*domain.RecognitionResult, error)
}

// Rasterizer splits a multi-page document into ordered single-page payloads.
type Rasterizer interface {
	Rasterize(ctx context.Context, pdf []byte, label string) ([][]byte, error)
}

// RuleBook resolves the rule set of a product line.
type RuleBook interface {
	RulesFor(productLine string) (domain.ProductRules, error)
}

// SessionStore persists session state with optimistic versioning.
//
// Put succeeds only when the stored version equals state.Version (0 means the
// session must not exist yet) and returns the new version. A mismatch yields
// domain.ErrVersionConflict. Every successful Put refreshes the retention TTL.
type SessionStore interface {
	Get(ctx context.Context, sessionID string) (*domain.SessionState, error)
	Put(ctx context.Context, state *domain.SessionState) (int64, error)
	Delete(ctx context.Context, sessionID string) error
}

// EventPublisher emits verdict notifications.
type EventPublisher interface {
	PublishVerdict(ctx context.Context, event domain.VerdictEvent) error
}
