package ca

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRuleIndexRoundTrip(t *testing.T) {
	for n := 1; n <= 3; n++ {
		limit := uint64(1) << (uint(1) << uint(n))
		for i := uint64(0); i < limit; i++ {
			table, err := TableFromIndex(i, n)
			require.NoError(t, err)
			require.Len(t, table, 1<<n)
			got, err := IndexFromTable(table)
			require.NoError(t, err)
			if got != i {
				t.Fatalf("n=%d index %d round-tripped to %d", n, i, got)
			}
		}
	}
}

func TestTableFromIndexRejectsOverflow(t *testing.T) {
	_, err := TableFromIndex(256, 3)
	assert.ErrorIs(t, err, ErrConfiguration)
	_, err = TableFromIndex(0, 7)
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestRuleRejectsRadiusOutOfRange(t *testing.T) {
	for _, radius := range []int{0, -1, MaxRadius + 1} {
		_, err := NewRule(make([]uint8, 8), radius)
		assert.ErrorIs(t, err, ErrConfiguration, "radius %d", radius)
		_, err = ResolveRule("30", radius)
		assert.ErrorIs(t, err, ErrConfiguration, "radius %d", radius)
	}
}

func TestIndexFromTableRejectsLargeTables(t *testing.T) {
	_, err := IndexFromTable(make([]uint8, 128))
	assert.ErrorIs(t, err, ErrConfiguration)
	_, err = IndexFromTable(make([]uint8, 6))
	assert.ErrorIs(t, err, ErrConfiguration)
	_, err = IndexFromTable([]uint8{0, 2})
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestNewRuleValidation(t *testing.T) {
	_, err := NewRule(make([]uint8, 32), 1)
	assert.ErrorIs(t, err, ErrConfiguration)
	_, err = NewRule(make([]uint8, 8), -1)
	assert.ErrorIs(t, err, ErrConfiguration)
	_, err = NewRule([]uint8{0, 1, 1, 1, 3, 0, 0, 0}, 1)
	assert.ErrorIs(t, err, ErrConfiguration)

	table := []uint8{0, 1, 1, 1, 1, 0, 0, 0}
	rule, err := NewRule(table, 1)
	require.NoError(t, err)
	table[0] = 1
	assert.Equal(t, uint8(0), rule.Output(0), "rule must own its table")
}

func TestRuleLabelAndParse(t *testing.T) {
	rule, err := ParseRule("01111000", 1)
	require.NoError(t, err)
	assert.Equal(t, "30", rule.Label())
	assert.Equal(t, "01111000", rule.String())

	wide, err := NewRule(make([]uint8, TableLength(3)), 3)
	require.NoError(t, err)
	_, err = wide.Index()
	assert.ErrorIs(t, err, ErrConfiguration)
	assert.Len(t, wide.Label(), 128)

	_, err = ParseRule("01x", 1)
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestResolveRule(t *testing.T) {
	byIndex, err := ResolveRule("30", 1)
	require.NoError(t, err)
	byBits, err := ResolveRule("01111000", 1)
	require.NoError(t, err)
	assert.Equal(t, byIndex.Table(), byBits.Table())
	assert.Equal(t, "30", byBits.Label())

	wide, err := ResolveRule(strings.Repeat("01", 16), 2)
	require.NoError(t, err)
	assert.Equal(t, 32, wide.Len())

	padded, err := ResolveRule("00000001", 1)
	require.NoError(t, err)
	assert.Equal(t, "128", padded.Label())
	forced, err := ResolveRule("index:00000001", 1)
	require.NoError(t, err)
	assert.Equal(t, "1", forced.Label())
	explicit, err := ResolveRule("bits:01111000", 1)
	require.NoError(t, err)
	assert.Equal(t, "30", explicit.Label())

	for _, value := range []string{"", "rule30", "256", "-1", "bits:0111", "index:", "bits:"} {
		_, err := ResolveRule(value, 1)
		assert.ErrorIs(t, err, ErrConfiguration, value)
	}
}
