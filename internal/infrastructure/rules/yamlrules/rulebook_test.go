package yamlrules

import (
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/kirillkom/document-intake/internal/core/domain"
)

func TestDefaultVehicleRegistration(t *testing.T) {
	book, err := Default()
	if err != nil {
		t.Fatalf("Default() error = %v", err)
	}
	rules, err := book.RulesFor(" vehicle_reg ")
	if err != nil {
		t.Fatalf("RulesFor() error = %v", err)
	}

	want := []domain.DocumentType{domain.DocTypeIdentity, domain.DocTypeLicense, domain.DocTypeRegistrationCard}
	slices.Sort(want)
	if got := rules.RequiredFor(""); !slices.Equal(got, want) {
		t.Fatalf("RequiredFor(\"\") = %v, want %v", got, want)
	}
	if got := rules.RequiredFor("EXPORT_CERTIFICATE"); !slices.Contains(got, domain.DocTypeExportCertificate) ||
		slices.Contains(got, domain.DocTypeRegistrationCard) {
		t.Fatalf("export variant should replace the registration card, got %v", got)
	}
	cc := rules.CrossCheckFor("")
	if cc == nil || cc.First != domain.DocTypeIdentity || cc.Second != domain.DocTypeLicense || cc.Field != domain.FieldIdentityNumber {
		t.Fatalf("unexpected cross-check %+v", cc)
	}
	if rules.MinPagesFor("") != 2 || rules.MinPagesFor("AGENCY_PURCHASE_RECEIPT") != 0 {
		t.Fatalf("unexpected min pages rule")
	}
}

func TestDefaultTravelHasNoCrossCheck(t *testing.T) {
	book, _ := Default()
	rules, err := book.RulesFor("TRAVEL")
	if err != nil {
		t.Fatalf("RulesFor() error = %v", err)
	}
	if rules.CrossCheckFor("") != nil || !slices.Equal(rules.RequiredFor(""), []domain.DocumentType{domain.DocTypePassport}) {
		t.Fatalf("unexpected travel rules %+v", rules)
	}
	if got := book.ProductLines(); !slices.Equal(got, []string{"TRAVEL", "VEHICLE_REG"}) {
		t.Fatalf("ProductLines() = %v", got)
	}
}

func TestRulesForUnknownProductLine(t *testing.T) {
	book, _ := Default()
	if _, err := book.RulesFor("BOATS"); !domain.IsKind(err, domain.ErrUnknownProductLine) {
		t.Fatalf("expected unknown product line, got %v", err)
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	content := []byte("product_lines:\n  - product_line: marine\n    required: [PASSPORT, LICENSE]\n")
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("write rules: %v", err)
	}

	book, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if _, err := book.RulesFor("MARINE"); err != nil {
		t.Fatalf("RulesFor() error = %v", err)
	}
	if _, err := book.RulesFor("VEHICLE_REG"); err == nil {
		t.Fatalf("file table must replace the built-in one")
	}
}

func TestParseRejectsInvalidTables(t *testing.T) {
	cases := map[string]string{
		"empty":          "product_lines: []\n",
		"no name":        "product_lines:\n  - required: [PASSPORT]\n",
		"no required":    "product_lines:\n  - product_line: A\n",
		"duplicate":      "product_lines:\n  - product_line: A\n    required: [PASSPORT]\n  - product_line: a\n    required: [PASSPORT]\n",
		"empty variant":  "product_lines:\n  - product_line: A\n    required: [PASSPORT]\n    variants:\n      X: []\n",
		"half cross":     "product_lines:\n  - product_line: A\n    required: [PASSPORT]\n    cross_check:\n      first: PASSPORT\n",
		"malformed yaml": "product_lines: [",
	}
	for name, raw := range cases {
		if _, err := Parse([]byte(raw)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}
