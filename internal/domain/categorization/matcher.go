package categorization

import "strings"

// FallbackCategoryName is the category assigned when nothing else matches.
const FallbackCategoryName = "Other"

// Matcher resolves free-text category cells against a category list.
// It is immutable after construction and safe for concurrent use.
type Matcher struct {
	categories []Category
	lowerNames []string
	aliases    *aliasEngine
}

// NewMatcher builds a matcher over categories (in store order) and an alias table.
func NewMatcher(categories []Category, aliases AliasTable) *Matcher {
	lowerNames := make([]string, len(categories))
	for i, c := range categories {
		lowerNames[i] = strings.ToLower(c.Name)
	}

	return &Matcher{
		categories: categories,
		lowerNames: lowerNames,
		aliases:    newAliasEngine(aliases),
	}
}

// Categories returns the category list the matcher was built from.
func (m *Matcher) Categories() []Category {
	return m.categories
}

// Match resolves text to a category. Resolution order:
//  1. case-insensitive exact name
//  2. case-insensitive substring in either direction
//  3. alias table, first entry whose category exists
//  4. the fallback category, else the first category
//
// Blank text and an empty category list resolve to nil.
func (m *Matcher) Match(text string) *Category {
	lower := strings.ToLower(strings.TrimSpace(text))
	if lower == "" || len(m.categories) == 0 {
		return nil
	}

	for i, name := range m.lowerNames {
		if name == lower {
			return m.at(i)
		}
	}

	for i, name := range m.lowerNames {
		if strings.Contains(name, lower) || strings.Contains(lower, name) {
			return m.at(i)
		}
	}

	for _, categoryName := range m.aliases.matches(lower) {
		if c := m.byExactName(categoryName); c != nil {
			return c
		}
	}

	return m.Fallback()
}

// Fallback returns the category named FallbackCategoryName, else the first
// category, else nil.
func (m *Matcher) Fallback() *Category {
	if c := m.byExactName(FallbackCategoryName); c != nil {
		return c
	}
	if len(m.categories) == 0 {
		return nil
	}
	return m.at(0)
}

func (m *Matcher) byExactName(name string) *Category {
	for i, c := range m.categories {
		if c.Name == name {
			return m.at(i)
		}
	}
	return nil
}

func (m *Matcher) at(i int) *Category {
	c := m.categories[i]
	return &c
}
