package categorization

import (
	"strings"

	"github.com/cloudflare/ahocorasick"
)

// aliasEngine answers "which alias entries match this text" for an AliasTable.
// A keyword matches when it occurs inside the text or the text occurs inside the
// keyword. The first direction is answered by a single Aho-Corasick pass over
// all keywords; the second needs a scan because the text is the pattern.
type aliasEngine struct {
	table    AliasTable
	matcher  *ahocorasick.Matcher
	patterns []string
	owners   [][]int // entry indices per pattern; keywords may repeat across entries
}

func newAliasEngine(table AliasTable) *aliasEngine {
	e := &aliasEngine{table: table}

	patternToIndex := make(map[string]int)
	for entryIdx, entry := range table {
		for _, kw := range entry.Keywords {
			kw = strings.ToLower(kw)
			if kw == "" {
				continue
			}
			if idx, exists := patternToIndex[kw]; exists {
				e.owners[idx] = append(e.owners[idx], entryIdx)
				continue
			}
			patternToIndex[kw] = len(e.patterns)
			e.patterns = append(e.patterns, kw)
			e.owners = append(e.owners, []int{entryIdx})
		}
	}

	if len(e.patterns) > 0 {
		e.matcher = ahocorasick.NewStringMatcher(e.patterns)
	}
	return e
}

// matches returns, in table order, the categories of all entries matched by
// the lower-cased text.
func (e *aliasEngine) matches(lowerText string) []string {
	if e.matcher == nil || lowerText == "" {
		return nil
	}

	hit := make([]bool, len(e.table))

	// Keyword contained in the text. MatchThreadSafe keeps the engine shareable
	// between concurrent row processors.
	for _, idx := range e.matcher.MatchThreadSafe([]byte(lowerText)) {
		for _, entryIdx := range e.owners[idx] {
			hit[entryIdx] = true
		}
	}

	// Text contained in a keyword.
	for idx, kw := range e.patterns {
		if strings.Contains(kw, lowerText) {
			for _, entryIdx := range e.owners[idx] {
				hit[entryIdx] = true
			}
		}
	}

	var categories []string
	for entryIdx, ok := range hit {
		if ok {
			categories = append(categories, e.table[entryIdx].Category)
		}
	}
	return categories
}
