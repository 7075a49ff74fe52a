package yamlrules

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kirillkom/document-intake/internal/core/domain"
)

//go:embed default_rules.yaml
var defaultRules []byte

type document struct {
	ProductLines []domain.ProductRules `yaml:"product_lines"`
}

// RuleBook is an immutable product-line table keyed by upper-cased name.
type RuleBook struct {
	rules map[string]domain.ProductRules
}

// Default returns the built-in table.
func Default() (*RuleBook, error) {
	return Parse(defaultRules)
}

// Load reads the table from path, or the built-in one when path is empty.
func Load(path string) (*RuleBook, error) {
	if strings.TrimSpace(path) == "" {
		return Default()
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read product rules: %w", err)
	}
	return Parse(raw)
}

func Parse(raw []byte) (*RuleBook, error) {
	var doc document
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode product rules: %w", err)
	}
	if len(doc.ProductLines) == 0 {
		return nil, fmt.Errorf("product rules: no product lines defined")
	}

	rules := make(map[string]domain.ProductRules, len(doc.ProductLines))
	for i, pr := range doc.ProductLines {
		name := normalize(pr.ProductLine)
		if name == "" {
			return nil, fmt.Errorf("product rules: entry %d has no product_line", i)
		}
		if _, dup := rules[name]; dup {
			return nil, fmt.Errorf("product rules: duplicate product line %s", name)
		}
		if len(pr.Required) == 0 {
			return nil, fmt.Errorf("product rules: %s has no required documents", name)
		}
		for variant, required := range pr.Variants {
			if len(required) == 0 {
				return nil, fmt.Errorf("product rules: %s variant %s has no required documents", name, variant)
			}
		}
		if cc := pr.CrossCheck; cc != nil && (cc.First == "" || cc.Second == "") {
			return nil, fmt.Errorf("product rules: %s cross_check needs first and second", name)
		}
		pr.ProductLine = name
		rules[name] = pr
	}
	return &RuleBook{rules: rules}, nil
}

func (b *RuleBook) RulesFor(productLine string) (domain.ProductRules, error) {
	pr, ok := b.rules[normalize(productLine)]
	if !ok {
		return domain.ProductRules{}, domain.WrapError(domain.ErrUnknownProductLine, "rules for",
			fmt.Errorf("product line %q", productLine))
	}
	return pr, nil
}

// ProductLines lists the configured product lines in sorted order.
func (b *RuleBook) ProductLines() []string {
	out := make([]string, 0, len(b.rules))
	for name := range b.rules {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func normalize(productLine string) string {
	return strings.ToUpper(strings.TrimSpace(productLine))
}
