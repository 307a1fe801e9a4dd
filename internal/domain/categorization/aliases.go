package categorization

import (
	"fmt"
	"strings"
)

// CategoryAliases lists the keywords that resolve to a canonical category name.
type CategoryAliases struct {
	Category string
	Keywords []string
}

// AliasTable is an ordered list of alias entries. Order matters: when several
// entries match, the first one whose category exists wins.
type AliasTable []CategoryAliases

// DefaultAliases returns the built-in alias table.
func DefaultAliases() AliasTable {
	return AliasTable{
		{Category: "Food", Keywords: []string{"food", "groceries", "grocery", "restaurant", "dining", "lunch", "dinner", "breakfast", "meal", "meals"}},
		{Category: "Transport", Keywords: []string{"transport", "transportation", "uber", "lyft", "taxi", "cab", "gas", "fuel", "parking", "transit", "bus", "train"}},
		{Category: "Entertainment", Keywords: []string{"entertainment", "movies", "movie", "netflix", "spotify", "games", "gaming", "concert", "show"}},
		{Category: "Shopping", Keywords: []string{"shopping", "amazon", "clothes", "clothing", "retail", "store"}},
		{Category: "Bills", Keywords: []string{"bills", "bill", "utilities", "utility", "electric", "electricity", "water", "internet", "phone", "rent", "mortgage"}},
		{Category: "Other", Keywords: []string{"other", "misc", "miscellaneous"}},
	}
}

// ParseAliasTable parses the compact configuration form
//
//	Food=food|groceries;Transport=uber|taxi
//
// Keywords are lower-cased. An empty string yields an empty table.
func ParseAliasTable(raw string) (AliasTable, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return AliasTable{}, nil
	}

	table := AliasTable{}
	seen := make(map[string]bool)
	for _, entry := range strings.Split(raw, ";") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}

		name, list, ok := strings.Cut(entry, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid alias entry %q: expected Category=kw1|kw2", entry)
		}
		if seen[name] {
			return nil, fmt.Errorf("duplicate alias entry for category %q", name)
		}
		seen[name] = true

		var keywords []string
		for _, kw := range strings.Split(list, "|") {
			kw = strings.ToLower(strings.TrimSpace(kw))
			if kw != "" {
				keywords = append(keywords, kw)
			}
		}
		if len(keywords) == 0 {
			return nil, fmt.Errorf("alias entry for category %q has no keywords", name)
		}

		table = append(table, CategoryAliases{Category: name, Keywords: keywords})
	}

	return table, nil
}

// String renders the table in the form accepted by ParseAliasTable.
func (t AliasTable) String() string {
	parts := make([]string, len(t))
	for i, entry := range t {
		parts[i] = entry.Category + "=" + strings.Join(entry.Keywords, "|")
	}
	return strings.Join(parts, ";")
}
