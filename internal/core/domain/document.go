package domain

import (
	"fmt"
	"strings"
)

type DocumentType string

const (
	DocTypeIdentity              DocumentType = "IDENTITY"
	DocTypeLicense               DocumentType = "LICENSE"
	DocTypeRegistrationCard      DocumentType = "REGISTRATION_CARD"
	DocTypePassport              DocumentType = "PASSPORT"
	DocTypeExportCertificate     DocumentType = "EXPORT_CERTIFICATE"
	DocTypeAgencyPurchaseReceipt DocumentType = "AGENCY_PURCHASE_RECEIPT"
	DocTypeUnknown               DocumentType = "UNKNOWN"
)

// Canonical field keys produced by the classifier.
const (
	FieldIdentityNumber = "identity_number"
	FieldFullName       = "full_name"
	FieldExpiryDate     = "expiry_date"
	FieldDateOfBirth    = "date_of_birth"
	FieldPlateNumber    = "plate_number"
)

const MimeTypePDF = "application/pdf"

// SupportedMimeTypes lists the upload formats the recognition engine accepts.
var SupportedMimeTypes = map[string]struct{}{
	"image/jpeg":    {},
	"image/png":     {},
	"image/jpg":     {},
	"image/gif":     {},
	"image/webp":    {},
	"image/bmp":     {},
	"image/tiff":    {},
	"image/svg+xml": {},
	MimeTypePDF:     {},
}

func IsSupportedMimeType(mimeType string) bool {
	_, ok := SupportedMimeTypes[strings.ToLower(strings.TrimSpace(mimeType))]
	return ok
}

// UploadedFile is one file bound to an upload slot.
type UploadedFile struct {
	Slot     string
	FileName string
	MimeType string
	Payload  []byte
	TypeHint DocumentType
}

// DocumentUnit is one image-bearing item submitted to the recognition engine.
// Page is 1-based for units produced by page expansion and 0 otherwise.
type DocumentUnit struct {
	Slot     string
	FileName string
	Page     int
	MimeType string
	Payload  []byte
	TypeHint DocumentType
}

func (u DocumentUnit) Label() string {
	return UnitLabel(u.FileName, u.Page)
}

func UnitLabel(fileName string, page int) string {
	if page <= 0 {
		return fileName
	}
	return fmt.Sprintf("%s (page %d)", fileName, page)
}

// Fields is the canonical, sanitized field mapping of a recognized document.
type Fields map[string]string

func (f Fields) Get(key string) string {
	if f == nil {
		return ""
	}
	return f[key]
}

func (f Fields) clone() Fields {
	if f == nil {
		return nil
	}
	out := make(Fields, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// ProcessedRecord is the outcome of recognizing one unit.
type ProcessedRecord struct {
	Success      bool         `json:"success"`
	Slot         string       `json:"slot"`
	Source       string       `json:"file"`
	FileName     string       `json:"file_name"`
	Page         int          `json:"page,omitempty"`
	DocumentType DocumentType `json:"doc_type,omitempty"`
	UseFor       string       `json:"use_for,omitempty"`
	Fields       Fields       `json:"data,omitempty"`
	Redacted     []string     `json:"redacted,omitempty"`
	Error        string       `json:"error,omitempty"`
}

// Clone returns a deep copy so stored records never share maps with callers.
func (r ProcessedRecord) Clone() ProcessedRecord {
	out := r
	out.Fields = r.Fields.clone()
	if r.Redacted != nil {
		out.Redacted = append([]string(nil), r.Redacted...)
	}
	return out
}

// RecognitionHints travel with every unit to the recognition engine.
type RecognitionHints struct {
	DocumentType DocumentType `json:"document_type,omitempty"`
	UseFor       string       `json:"use_for,omitempty"`
	ProductLine  string       `json:"product_line,omitempty"`
}

// RecognitionResult is the raw engine output before classification.
type RecognitionResult struct {
	DocumentTypeGuess string         `json:"document_type"`
	Fields            map[string]any `json:"fields"`
}

type Classification struct {
	DocumentType DocumentType
	Fields       Fields
	Redacted     []string
}
