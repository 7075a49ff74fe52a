package usecase

import (
	"encoding/json"
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/kirillkom/document-intake/internal/core/domain"
)

const DefaultMaxFieldBytes = 10000

var droppedKeys = map[string]struct{}{
	"raw":          {},
	"fullresponse": {},
	"ocrraw":       {},
}

var fieldAliases = map[string]string{
	"identitynumber":   domain.FieldIdentityNumber,
	"civilid":          domain.FieldIdentityNumber,
	"civilidno":        domain.FieldIdentityNumber,
	"civilidnumber":    domain.FieldIdentityNumber,
	"idnumber":         domain.FieldIdentityNumber,
	"idno":             domain.FieldIdentityNumber,
	"nationalid":       domain.FieldIdentityNumber,
	"nationalidnumber": domain.FieldIdentityNumber,
	"name":             domain.FieldFullName,
	"fullname":         domain.FieldFullName,
	"expiry":           domain.FieldExpiryDate,
	"expirydate":       domain.FieldExpiryDate,
	"dateofexpiry":     domain.FieldExpiryDate,
	"expdate":          domain.FieldExpiryDate,
	"dob":              domain.FieldDateOfBirth,
	"dateofbirth":      domain.FieldDateOfBirth,
	"birthdate":        domain.FieldDateOfBirth,
	"plate":            domain.FieldPlateNumber,
	"plateno":          domain.FieldPlateNumber,
	"platenumber":      domain.FieldPlateNumber,
}

var typeAliases = map[string]domain.DocumentType{
	"IDENTITY":                domain.DocTypeIdentity,
	"CIVIL_ID":                domain.DocTypeIdentity,
	"NATIONAL_ID":             domain.DocTypeIdentity,
	"ID_CARD":                 domain.DocTypeIdentity,
	"LICENSE":                 domain.DocTypeLicense,
	"DRIVING_LICENSE":         domain.DocTypeLicense,
	"DRIVING_LICENCE":         domain.DocTypeLicense,
	"DRIVER_LICENSE":          domain.DocTypeLicense,
	"REGISTRATION_CARD":       domain.DocTypeRegistrationCard,
	"MULKIYA":                 domain.DocTypeRegistrationCard,
	"VEHICLE_REGISTRATION":    domain.DocTypeRegistrationCard,
	"PASSPORT":                domain.DocTypePassport,
	"EXPORT_CERTIFICATE":      domain.DocTypeExportCertificate,
	"AGENCY_PURCHASE_RECEIPT": domain.DocTypeAgencyPurchaseReceipt,
}

var base64Body = regexp.MustCompile(`^[A-Za-z0-9+/=\r\n_-]+$`)

// Classifier resolves the canonical document type of a recognition result and
// produces a sanitized copy of its fields.
type Classifier struct {
	maxFieldBytes int
}

func NewClassifier(maxFieldBytes int) *Classifier {
	if maxFieldBytes <= 0 {
		maxFieldBytes = DefaultMaxFieldBytes
	}
	return &Classifier{maxFieldBytes: maxFieldBytes}
}

// Classify never mutates result. A nil result yields the hint (or UNKNOWN) and
// no fields. When useFor names a nested object in the result, its entries are
// promoted over the top-level ones.
func (c *Classifier) Classify(result *domain.RecognitionResult, hint domain.DocumentType, useFor string) domain.Classification {
	out := domain.Classification{DocumentType: ResolveDocumentType("", hint)}
	if result == nil {
		return out
	}
	out.DocumentType = ResolveDocumentType(result.DocumentTypeGuess, hint)

	raw := promoteIntent(result.Fields, useFor)
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	fields := make(domain.Fields, len(keys))
	exact := make(map[string]bool, len(keys))
	var redacted []string
	for _, key := range keys {
		value, keep := c.sanitizeValue(key, raw[key])
		if !keep {
			redacted = append(redacted, key)
			continue
		}
		if value == "" {
			continue
		}
		canonical, isExact := canonicalKey(key)
		if _, taken := fields[canonical]; taken && (exact[canonical] || !isExact) {
			continue
		}
		fields[canonical] = value
		exact[canonical] = isExact
	}
	if len(fields) > 0 {
		out.Fields = fields
	}
	out.Redacted = redacted
	return out
}

func (c *Classifier) sanitizeValue(key string, value any) (string, bool) {
	if _, drop := droppedKeys[normalizeKey(key)]; drop {
		return "", false
	}
	switch v := value.(type) {
	case nil:
		return "", true
	case []byte, json.RawMessage:
		return "", false
	case string:
		v = strings.TrimSpace(v)
		if len(v) > c.maxFieldBytes && looksLikeEmbeddedData(v) {
			return "", false
		}
		return v, true
	case bool:
		return strconv.FormatBool(v), true
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), true
	case int:
		return strconv.Itoa(v), true
	case int64:
		return strconv.FormatInt(v, 10), true
	case json.Number:
		return v.String(), true
	case map[string]any, []any:
		encoded, err := json.Marshal(v)
		if err != nil || len(encoded) > c.maxFieldBytes {
			return "", false
		}
		return string(encoded), true
	default:
		return fmt.Sprint(v), true
	}
}

func looksLikeEmbeddedData(v string) bool {
	if strings.HasPrefix(strings.ToLower(v), "data:") {
		return true
	}
	return base64Body.MatchString(v)
}

func promoteIntent(fields map[string]any, useFor string) map[string]any {
	useFor = strings.TrimSpace(useFor)
	if useFor == "" {
		return fields
	}
	nested, ok := fields[useFor].(map[string]any)
	if !ok {
		return fields
	}
	merged := make(map[string]any, len(fields)+len(nested))
	for k, v := range fields {
		if k != useFor {
			merged[k] = v
		}
	}
	for k, v := range nested {
		merged[k] = v
	}
	return merged
}

func canonicalKey(key string) (string, bool) {
	if canonical, ok := fieldAliases[normalizeKey(key)]; ok {
		return canonical, key == canonical
	}
	return key, true
}

func normalizeKey(key string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '_', '-', ' ', '.':
			return -1
		}
		return r
	}, strings.ToLower(strings.TrimSpace(key)))
}

// ResolveDocumentType maps an engine guess onto a known type, falling back to
// the caller hint and then UNKNOWN.
func ResolveDocumentType(guess string, hint domain.DocumentType) domain.DocumentType {
	if t, ok := lookupType(guess); ok {
		return t
	}
	if t, ok := lookupType(string(hint)); ok {
		return t
	}
	return domain.DocTypeUnknown
}

func lookupType(value string) (domain.DocumentType, bool) {
	key := strings.ToUpper(strings.TrimSpace(value))
	key = strings.NewReplacer(" ", "_", "-", "_").Replace(key)
	t, ok := typeAliases[key]
	return t, ok
}
