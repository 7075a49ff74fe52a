package usecase

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/kirillkom/document-intake/internal/core/domain"
	"github.com/kirillkom/document-intake/internal/core/ports"
)

const DefaultSessionWriteAttempts = 3

type ValidateInput struct {
	SessionID   string
	ProductLine string
	Variant     string
	UseFor      string
	Records     []domain.ProcessedRecord
}

// ValidationEngine merges processed records into session state and computes
// the verdict. The read-merge-write is retried on version conflicts.
type ValidationEngine struct {
	rules         ports.RuleBook
	store         ports.SessionStore
	writeAttempts int
	now           func() time.Time
}

func NewValidationEngine(rules ports.RuleBook, store ports.SessionStore, writeAttempts int) *ValidationEngine {
	if writeAttempts <= 0 {
		writeAttempts = DefaultSessionWriteAttempts
	}
	return &ValidationEngine{
		rules:         rules,
		store:         store,
		writeAttempts: writeAttempts,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

func (e *ValidationEngine) Validate(ctx context.Context, in ValidateInput) (*domain.Verdict, error) {
	sessionID := strings.TrimSpace(in.SessionID)
	if sessionID == "" {
		return nil, domain.InvalidInput("validate batch", "clientId is required")
	}
	rules, err := resolveRules(e.rules, in.ProductLine)
	if err != nil {
		return nil, err
	}
	variant := resolveVariant(rules, in.Variant)

	for attempt := 1; attempt <= e.writeAttempts; attempt++ {
		state, err := e.store.Get(ctx, sessionID)
		switch {
		case domain.IsKind(err, domain.ErrSessionNotFound):
			state = domain.NewSessionState(sessionID, e.now())
		case err != nil:
			return nil, fmt.Errorf("load session state: %w", err)
		}
		state.EnsureMaps()

		verdict := mergeRecords(state, rules, variant, in.Records)
		if useFor := strings.TrimSpace(in.UseFor); useFor != "" {
			state.UseFor = useFor
		}
		state.UpdatedAt = e.now()

		version, err := e.store.Put(ctx, state)
		if domain.IsKind(err, domain.ErrVersionConflict) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("save session state: %w", err)
		}
		verdict.Version = version
		return verdict, nil
	}

	return nil, domain.WrapError(
		domain.ErrTemporary,
		"validate batch",
		fmt.Errorf("%w after %d attempts", domain.ErrVersionConflict, e.writeAttempts),
	)
}

// mergeRecords applies records to state in place and returns the verdict.
func mergeRecords(
	state *domain.SessionState,
	rules domain.ProductRules,
	variant string,
	records []domain.ProcessedRecord,
) *domain.Verdict {
	required := rules.RequiredFor(variant)
	crossCheck := rules.CrossCheckFor(variant)
	numberField := domain.FieldIdentityNumber
	if crossCheck != nil {
		numberField = crossCheck.Field
	}

	if state.ProductLine != rules.ProductLine || state.Variant != variant {
		pruneToRequired(state, required)
		state.ProductLine = rules.ProductLine
		state.Variant = variant
	}
	state.ExpectedCount = len(required)

	verdict := &domain.Verdict{
		SessionID:   state.SessionID,
		ProductLine: state.ProductLine,
		Variant:     variant,
		Records:     slices.Clone(records),
	}

	touched := make(map[domain.DocumentType]bool)
	numbers := make(map[domain.DocumentType]string)
	for _, rec := range records {
		if !rec.Success {
			continue
		}
		docType := rec.DocumentType
		if !slices.Contains(required, docType) {
			verdict.WrongUploads = append(verdict.WrongUploads, domain.WrongUpload{
				Slot:         rec.Slot,
				Source:       rec.Source,
				DetectedType: docType,
			})
			continue
		}

		if _, existed := state.Accepted[docType]; existed && !touched[docType] && !slices.Contains(verdict.Replaced, docType) {
			verdict.Replaced = append(verdict.Replaced, docType)
		}
		state.Accepted[docType] = rec.Clone()
		if !slices.Contains(state.Files[docType], rec.Source) {
			state.Files[docType] = append(state.Files[docType], rec.Source)
		}
		touched[docType] = true
		if n := strings.TrimSpace(rec.Fields.Get(numberField)); n != "" {
			numbers[docType] = n
		}
	}
	for docType := range touched {
		if n, ok := numbers[docType]; ok {
			state.CrossCheckNumbers[docType] = n
		} else {
			delete(state.CrossCheckNumbers, docType)
		}
	}

	valid := 0
	for _, docType := range required {
		if _, ok := state.Accepted[docType]; ok {
			valid++
			verdict.Accepted = append(verdict.Accepted, docType)
		} else {
			verdict.Missing = append(verdict.Missing, docType)
		}
	}
	state.ValidCount = valid

	slices.Sort(verdict.Replaced)
	verdict.Complete = len(verdict.Missing) == 0
	verdict.CrossCheck = evaluateCrossCheck(state, crossCheck)
	verdict.ExpectedCount = state.ExpectedCount
	verdict.ValidCount = state.ValidCount
	verdict.Files = cloneFiles(state.Files)
	verdict.CrossCheckNumbers = make(map[domain.DocumentType]string, len(state.CrossCheckNumbers))
	for k, v := range state.CrossCheckNumbers {
		verdict.CrossCheckNumbers[k] = v
	}
	return verdict
}

// evaluateCrossCheck is nil while either document is absent. A present
// document without the comparison field counts as a mismatch.
func evaluateCrossCheck(state *domain.SessionState, rule *domain.CrossCheckRule) *bool {
	if rule == nil {
		return nil
	}
	_, okFirst := state.Accepted[rule.First]
	_, okSecond := state.Accepted[rule.Second]
	if !okFirst || !okSecond {
		return nil
	}
	first := state.CrossCheckNumbers[rule.First]
	second := state.CrossCheckNumbers[rule.Second]
	match := first != "" && first == second
	return &match
}

func pruneToRequired(state *domain.SessionState, required []domain.DocumentType) {
	for docType := range state.Accepted {
		if !slices.Contains(required, docType) {
			delete(state.Accepted, docType)
		}
	}
	for docType := range state.Files {
		if !slices.Contains(required, docType) {
			delete(state.Files, docType)
		}
	}
	for docType := range state.CrossCheckNumbers {
		if !slices.Contains(required, docType) {
			delete(state.CrossCheckNumbers, docType)
		}
	}
}

func cloneFiles(files map[domain.DocumentType][]string) map[domain.DocumentType][]string {
	out := make(map[domain.DocumentType][]string, len(files))
	for k, v := range files {
		out[k] = slices.Clone(v)
	}
	return out
}

func resolveRules(book ports.RuleBook, productLine string) (domain.ProductRules, error) {
	productLine = strings.TrimSpace(productLine)
	if productLine == "" {
		return domain.ProductRules{}, domain.InvalidInput("resolve product rules", "productType is required")
	}
	rules, err := book.RulesFor(productLine)
	if err != nil {
		return domain.ProductRules{}, domain.WrapError(domain.ErrInvalidInput, "resolve product rules", err)
	}
	if rules.ProductLine == "" {
		rules.ProductLine = productLine
	}
	return rules, nil
}

// resolveVariant drops variants the product line does not declare.
func resolveVariant(rules domain.ProductRules, variant string) string {
	variant = strings.TrimSpace(variant)
	if variant == "" || !rules.HasVariant(variant) {
		return ""
	}
	return variant
}
