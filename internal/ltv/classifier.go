package ltv

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/rcallanan/studio-ledger/internal/domain"
)

// Classifier buckets a transaction into the product taxonomy by scanning its
// product type and description for keywords. Categories are checked in a
// fixed order so overlapping keyword sets resolve deterministically.
type Classifier struct {
	order    []domain.Category
	keywords map[domain.Category][]string
}

// NewClassifier returns a classifier with the built-in keyword sets.
func NewClassifier() *Classifier {
	return &Classifier{
		order: []domain.Category{
			domain.CategorySixWeek,
			domain.CategoryOnlineCoaching,
			domain.CategoryCorporate,
			domain.CategoryCommunity,
			domain.CategoryPT,
			domain.CategoryClasses,
		},
		keywords: map[domain.Category][]string{
			domain.CategorySixWeek:        {"six week", "6 week", "six_week", "6wk", "challenge"},
			domain.CategoryOnlineCoaching: {"online coaching", "online_coaching", "remote coaching", "app coaching"},
			domain.CategoryCorporate:      {"corporate", "company", "workplace", "b2b"},
			domain.CategoryCommunity:      {"community", "open gym", "social"},
			domain.CategoryPT:             {"pt", "personal training", "1-2-1", "1:1", "one to one"},
			domain.CategoryClasses:        {"class", "classes", "membership", "bootcamp", "group"},
		},
	}
}

// NewClassifierFromFile loads keyword overrides from a JSON file of the shape
// {"pt": ["keyword", ...], ...}. Categories absent from the file keep their
// built-in keywords.
func NewClassifierFromFile(path string) (*Classifier, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("NewClassifierFromFile: read %q: %w", path, err)
	}

	var overrides map[string][]string
	if err := json.Unmarshal(data, &overrides); err != nil {
		return nil, fmt.Errorf("NewClassifierFromFile: parse %q: %w", path, err)
	}

	c := NewClassifier()
	for name, words := range overrides {
		category := domain.Category(strings.ToLower(name))
		if _, ok := c.keywords[category]; !ok {
			return nil, fmt.Errorf("NewClassifierFromFile: unknown category %q", name)
		}
		c.keywords[category] = words
	}
	return c, nil
}

// Classify returns the product category for a transaction. Unrecognized
// products land in CategoryUnknown rather than being guessed.
func (c *Classifier) Classify(tx *domain.Transaction) domain.Category {
	haystack := strings.ToLower(tx.ProductType + " " + tx.Description)
	if strings.TrimSpace(haystack) == "" {
		return domain.CategoryUnknown
	}
	for _, category := range c.order {
		for _, kw := range c.keywords[category] {
			if containsKeyword(haystack, kw) {
				return category
			}
		}
	}
	return domain.CategoryUnknown
}

// containsKeyword matches short keywords ("pt") on word boundaries so they
// don't fire inside unrelated words; longer keywords use plain substring.
func containsKeyword(haystack, keyword string) bool {
	if len(keyword) > 3 {
		return strings.Contains(haystack, keyword)
	}
	for _, field := range strings.FieldsFunc(haystack, func(r rune) bool {
		return r == ' ' || r == '-' || r == '_' || r == '/' || r == ','
	}) {
		if field == keyword {
			return true
		}
	}
	return false
}
