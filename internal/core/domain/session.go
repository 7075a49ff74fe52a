package domain

import (
	"slices"
	"time"
)

// SessionState accumulates validation progress for one client session across
// submission calls. Version is the optimistic concurrency token of the store:
// 0 means the state has never been persisted.
type SessionState struct {
	SessionID         string                           `json:"session_id"`
	ProductLine       string                           `json:"product_line"`
	Variant           string                           `json:"variant,omitempty"`
	UseFor            string                           `json:"use_for,omitempty"`
	ExpectedCount     int                              `json:"expected_count"`
	ValidCount        int                              `json:"valid_count"`
	Accepted          map[DocumentType]ProcessedRecord `json:"accepted"`
	Files             map[DocumentType][]string        `json:"files"`
	CrossCheckNumbers map[DocumentType]string          `json:"cross_check_numbers,omitempty"`
	Version           int64                            `json:"version"`
	CreatedAt         time.Time                        `json:"created_at"`
	UpdatedAt         time.Time                        `json:"updated_at"`
}

func NewSessionState(sessionID string, now time.Time) *SessionState {
	return &SessionState{
		SessionID:         sessionID,
		Accepted:          make(map[DocumentType]ProcessedRecord),
		Files:             make(map[DocumentType][]string),
		CrossCheckNumbers: make(map[DocumentType]string),
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

func (s *SessionState) Clone() *SessionState {
	if s == nil {
		return nil
	}
	out := *s
	out.Accepted = make(map[DocumentType]ProcessedRecord, len(s.Accepted))
	for k, v := range s.Accepted {
		out.Accepted[k] = v.Clone()
	}
	out.Files = make(map[DocumentType][]string, len(s.Files))
	for k, v := range s.Files {
		out.Files[k] = append([]string(nil), v...)
	}
	out.CrossCheckNumbers = make(map[DocumentType]string, len(s.CrossCheckNumbers))
	for k, v := range s.CrossCheckNumbers {
		out.CrossCheckNumbers[k] = v
	}
	return &out
}

// EnsureMaps repairs states decoded from storage with null maps.
func (s *SessionState) EnsureMaps() {
	if s.Accepted == nil {
		s.Accepted = make(map[DocumentType]ProcessedRecord)
	}
	if s.Files == nil {
		s.Files = make(map[DocumentType][]string)
	}
	if s.CrossCheckNumbers == nil {
		s.CrossCheckNumbers = make(map[DocumentType]string)
	}
}

// AcceptedTypes returns the accepted document types in sorted order.
func (s *SessionState) AcceptedTypes() []DocumentType {
	out := make([]DocumentType, 0, len(s.Accepted))
	for t := range s.Accepted {
		out = append(out, t)
	}
	slices.Sort(out)
	return out
}

// WrongUpload is a recognized document that the product line does not expect.
type WrongUpload struct {
	Slot         string       `json:"slot"`
	Source       string       `json:"file"`
	DetectedType DocumentType `json:"doc_type"`
}

// Verdict is the per-call validation result.
type Verdict struct {
	SessionID         string                    `json:"session_id"`
	ProductLine       string                    `json:"product_line"`
	Variant           string                    `json:"variant,omitempty"`
	Complete          bool                      `json:"complete"`
	Missing           []DocumentType            `json:"missing"`
	Accepted          []DocumentType            `json:"accepted"`
	Replaced          []DocumentType            `json:"replaced,omitempty"`
	WrongUploads      []WrongUpload             `json:"wrong_uploads,omitempty"`
	CrossCheck        *bool                     `json:"cross_check,omitempty"`
	ExpectedCount     int                       `json:"expected_count"`
	ValidCount        int                       `json:"valid_count"`
	Files             map[DocumentType][]string `json:"files"`
	CrossCheckNumbers map[DocumentType]string   `json:"cross_check_numbers,omitempty"`
	Records           []ProcessedRecord         `json:"records,omitempty"`
	Version           int64                     `json:"version"`
}

// VerdictEvent is published after every persisted verdict.
type VerdictEvent struct {
	EventID       string         `json:"event_id"`
	SessionID     string         `json:"session_id"`
	ProductLine   string         `json:"product_line"`
	Variant       string         `json:"variant,omitempty"`
	Complete      bool           `json:"complete"`
	Missing       []DocumentType `json:"missing"`
	CrossCheck    *bool          `json:"cross_check,omitempty"`
	ExpectedCount int            `json:"expected_count"`
	ValidCount    int            `json:"valid_count"`
	Version       int64          `json:"version"`
	OccurredAt    time.Time      `json:"occurred_at"`
}
