package usecase

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/document-intake/internal/core/domain"
	"github.com/kirillkom/document-intake/internal/core/ports"
)

// IntakeService composes recognition and validation into one submission call.
type IntakeService struct {
	orchestrator    *Orchestrator
	engine          *ValidationEngine
	rules           ports.RuleBook
	store           ports.SessionStore
	events          ports.EventPublisher
	minPagesEnabled bool
	logger          *slog.Logger
}

type IntakeOptions struct {
	// MinPagesEnabled turns on the per-product minimum PDF page rule.
	MinPagesEnabled bool
	// Events may be nil.
	Events ports.EventPublisher
	Logger *slog.Logger
}

func NewIntakeService(
	orchestrator *Orchestrator,
	engine *ValidationEngine,
	rules ports.RuleBook,
	store ports.SessionStore,
	opts IntakeOptions,
) *IntakeService {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &IntakeService{
		orchestrator:    orchestrator,
		engine:          engine,
		rules:           rules,
		store:           store,
		events:          opts.Events,
		minPagesEnabled: opts.MinPagesEnabled,
		logger:          logger,
	}
}

func (s *IntakeService) ProcessBatch(ctx context.Context, req ports.BatchRequest) (*domain.Verdict, error) {
	sessionID := strings.TrimSpace(req.SessionID)
	if sessionID == "" {
		return nil, domain.InvalidInput("process batch", "clientId is required")
	}
	if strings.TrimSpace(req.UseFor) == "" || strings.TrimSpace(req.ProductLine) == "" {
		return nil, domain.InvalidInput("process batch", "both useFor and productType are required and cannot be empty")
	}
	rules, err := resolveRules(s.rules, req.ProductLine)
	if err != nil {
		return nil, err
	}
	variant := resolveVariant(rules, req.Variant)

	minPages := 0
	if s.minPagesEnabled {
		minPages = rules.MinPagesFor(variant)
	}

	records, err := s.orchestrator.Run(ctx, BatchInput{
		UseFor:      req.UseFor,
		ProductLine: rules.ProductLine,
		Files:       req.Files,
		MinPDFPages: minPages,
	})
	if err != nil {
		return nil, err
	}

	verdict, err := s.engine.Validate(ctx, ValidateInput{
		SessionID:   sessionID,
		ProductLine: rules.ProductLine,
		Variant:     variant,
		UseFor:      req.UseFor,
		Records:     records,
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, verdict)
	return verdict, nil
}

func (s *IntakeService) publish(ctx context.Context, verdict *domain.Verdict) {
	if s.events == nil {
		return
	}
	event := domain.VerdictEvent{
		EventID:       uuid.NewString(),
		SessionID:     verdict.SessionID,
		ProductLine:   verdict.ProductLine,
		Variant:       verdict.Variant,
		Complete:      verdict.Complete,
		Missing:       verdict.Missing,
		CrossCheck:    verdict.CrossCheck,
		ExpectedCount: verdict.ExpectedCount,
		ValidCount:    verdict.ValidCount,
		Version:       verdict.Version,
		OccurredAt:    time.Now().UTC(),
	}
	if err := s.events.PublishVerdict(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "publish verdict event failed",
			"event_id", event.EventID,
			"error", err,
		)
	}
}

func (s *IntakeService) GetSession(ctx context.Context, sessionID string) (*domain.SessionState, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, domain.InvalidInput("get session", "session id is required")
	}
	return s.store.Get(ctx, sessionID)
}

func (s *IntakeService) DeleteSession(ctx context.Context, sessionID string) error {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return domain.InvalidInput("delete session", "session id is required")
	}
	return s.store.Delete(ctx, sessionID)
}
