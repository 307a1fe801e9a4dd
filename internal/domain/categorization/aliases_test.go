package categorization

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAliasTable(t *testing.T) {
	t.Run("parses entries in order", func(t *testing.T) {
		table, err := ParseAliasTable("Food=Food| Groceries ;Transport=uber|taxi")

		require.NoError(t, err)
		assert.Equal(t, AliasTable{
			{Category: "Food", Keywords: []string{"food", "groceries"}},
			{Category: "Transport", Keywords: []string{"uber", "taxi"}},
		}, table)
	})

	t.Run("empty input", func(t *testing.T) {
		table, err := ParseAliasTable("  ")

		require.NoError(t, err)
		assert.Empty(t, table)
	})

	t.Run("only separators yields an empty non-nil table", func(t *testing.T) {
		table, err := ParseAliasTable(" ; ;")

		require.NoError(t, err)
		require.NotNil(t, table)
		assert.Empty(t, table)
		assert.Empty(t, NewService(nil, table).Aliases())
	})

	t.Run("round trips through String", func(t *testing.T) {
		table, err := ParseAliasTable(DefaultAliases().String())

		require.NoError(t, err)
		assert.Equal(t, DefaultAliases(), table)
	})

	errorCases := []struct {
		name string
		raw  string
	}{
		{"missing equals", "Food"},
		{"missing category", "=food"},
		{"no keywords", "Food= | "},
		{"duplicate category", "Food=a;Food=b"},
	}
	for _, tc := range errorCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseAliasTable(tc.raw)
			assert.Error(t, err)
		})
	}
}
