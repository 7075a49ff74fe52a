package domain

import "slices"

// CrossCheckRule names two document types whose Field values must agree.
type CrossCheckRule struct {
	First  DocumentType `yaml:"first" json:"first"`
	Second DocumentType `yaml:"second" json:"second"`
	Field  string       `yaml:"field" json:"field"`
}

// ProductRules is the rule set of one product line.
//
// Variants replace the required set when the caller selects one. MinPDFPages
// below 2 disables the page check; MinPagesExempt lists variants that skip it.
type ProductRules struct {
	ProductLine    string                    `yaml:"product_line" json:"product_line"`
	Required       []DocumentType            `yaml:"required" json:"required"`
	CrossCheck     *CrossCheckRule           `yaml:"cross_check,omitempty" json:"cross_check,omitempty"`
	Variants       map[string][]DocumentType `yaml:"variants,omitempty" json:"variants,omitempty"`
	MinPDFPages    int                       `yaml:"min_pdf_pages,omitempty" json:"min_pdf_pages,omitempty"`
	MinPagesExempt []string                  `yaml:"min_pages_exempt,omitempty" json:"min_pages_exempt,omitempty"`
}

// RequiredFor returns the required set for variant, falling back to the base
// set when variant is empty or unknown. The result is sorted and deduplicated.
func (r ProductRules) RequiredFor(variant string) []DocumentType {
	base := r.Required
	if variant != "" {
		if v, ok := r.Variants[variant]; ok {
			base = v
		}
	}
	out := slices.Clone(base)
	slices.Sort(out)
	return slices.Compact(out)
}

func (r ProductRules) HasVariant(variant string) bool {
	_, ok := r.Variants[variant]
	return ok
}

// MinPagesFor returns the minimum PDF page count for variant, or 0 when the
// check does not apply.
func (r ProductRules) MinPagesFor(variant string) int {
	if r.MinPDFPages < 2 {
		return 0
	}
	if variant != "" && slices.Contains(r.MinPagesExempt, variant) {
		return 0
	}
	return r.MinPDFPages
}

// CrossCheckFor returns the cross-check rule when both of its types are
// required under variant.
func (r ProductRules) CrossCheckFor(variant string) *CrossCheckRule {
	if r.CrossCheck == nil {
		return nil
	}
	required := r.RequiredFor(variant)
	if !slices.Contains(required, r.CrossCheck.First) || !slices.Contains(required, r.CrossCheck.Second) {
		return nil
	}
	rule := *r.CrossCheck
	if rule.Field == "" {
		rule.Field = FieldIdentityNumber
	}
	return &rule
}
