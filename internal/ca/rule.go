package ca

import (
	"fmt"
	"math/bits"
	"strconv"
	"strings"
)

// MaxRadius bounds the neighbourhood so a rule table stays addressable.
const MaxRadius = 10

// Rule is an immutable lookup table mapping every neighbourhood pattern of
// 2r+1 bits to an output bit.
type Rule struct {
	radius int
	table  []uint8
}

// NeighborhoodSize returns 2r+1.
func NeighborhoodSize(radius int) int {
	return 2*radius + 1
}

// TableLength returns 2^(2r+1).
func TableLength(radius int) int {
	return 1 << NeighborhoodSize(radius)
}

// NewRule validates table against radius and copies it.
func NewRule(table []uint8, radius int) (Rule, error) {
	if radius < 1 || radius > MaxRadius {
		return Rule{}, ConfigErrorf("radius", "must be in [1, %d], got %d", MaxRadius, radius)
	}
	if want := TableLength(radius); len(table) != want {
		return Rule{}, ConfigErrorf("rule", "radius %d needs table length %d, got %d", radius, want, len(table))
	}
	copied := make([]uint8, len(table))
	for i, bit := range table {
		if bit > 1 {
			return Rule{}, ConfigErrorf("rule", "entry %d is %d, want 0 or 1", i, bit)
		}
		copied[i] = bit
	}
	return Rule{radius: radius, table: copied}, nil
}

// RuleFromIndex materializes the rule with the given index for radius.
func RuleFromIndex(index uint64, radius int) (Rule, error) {
	table, err := TableFromIndex(index, NeighborhoodSize(radius))
	if err != nil {
		return Rule{}, err
	}
	return NewRule(table, radius)
}

// ParseRule reads a table written as a string of '0' and '1', entry 0 first.
func ParseRule(s string, radius int) (Rule, error) {
	row, err := ParseRow(s)
	if err != nil {
		return Rule{}, ConfigErrorf("rule", "%v", err)
	}
	return NewRule(row, radius)
}

// ResolveRule accepts a full bit string of the radius's table length or a
// decimal rule index. An unprefixed string of table length made only of 0
// and 1 is read as a table, so "00000001" at radius 1 is index 128. The
// "bits:" and "index:" prefixes force one reading.
func ResolveRule(value string, radius int) (Rule, error) {
	value = strings.TrimSpace(value)
	if radius < 1 || radius > MaxRadius {
		return Rule{}, ConfigErrorf("radius", "must be in [1, %d], got %d", MaxRadius, radius)
	}
	switch {
	case strings.HasPrefix(value, bitsPrefix):
		return ParseRule(strings.TrimPrefix(value, bitsPrefix), radius)
	case strings.HasPrefix(value, indexPrefix):
		return resolveIndex(strings.TrimPrefix(value, indexPrefix), radius)
	case value == "":
		return Rule{}, ConfigErrorf("rule", "rule is required")
	case len(value) == TableLength(radius) && strings.Trim(value, "01") == "":
		return ParseRule(value, radius)
	}
	return resolveIndex(value, radius)
}

const (
	bitsPrefix  = "bits:"
	indexPrefix = "index:"
)

func resolveIndex(value string, radius int) (Rule, error) {
	index, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		return Rule{}, ConfigErrorf("rule", "%q is neither a %d-bit table nor a rule index", value, TableLength(radius))
	}
	return RuleFromIndex(index, radius)
}

func (r Rule) Radius() int {
	return r.radius
}

func (r Rule) Len() int {
	return len(r.table)
}

// Output returns the table entry for a neighbourhood value.
func (r Rule) Output(neighborhood int) uint8 {
	return r.table[neighborhood]
}

// Table returns a copy of the lookup table.
func (r Rule) Table() []uint8 {
	return append([]uint8(nil), r.table...)
}

// Index returns the scalar rule index. It fails when the table does not fit
// in 64 bits, which is the case for every radius above 2.
func (r Rule) Index() (uint64, error) {
	return IndexFromTable(r.table)
}

func (r Rule) String() string {
	var b strings.Builder
	b.Grow(len(r.table))
	for _, bit := range r.table {
		b.WriteByte('0' + bit)
	}
	return b.String()
}

// Label is a compact identifier: the decimal index when it fits, the bit
// string otherwise.
func (r Rule) Label() string {
	if idx, err := r.Index(); err == nil {
		return fmt.Sprintf("%d", idx)
	}
	return r.String()
}

// TableFromIndex expands index into a table of length 2^neighborhoodSize;
// bit i of index (least significant first) becomes table[i].
func TableFromIndex(index uint64, neighborhoodSize int) ([]uint8, error) {
	if neighborhoodSize < 1 || neighborhoodSize > 6 {
		return nil, ConfigErrorf("neighborhood_size", "scalar rule index supports sizes 1..6, got %d", neighborhoodSize)
	}
	length := 1 << neighborhoodSize
	if length < 64 && index>>uint(length) != 0 {
		return nil, ConfigErrorf("rule_index", "%d does not fit a %d-entry table", index, length)
	}
	table := make([]uint8, length)
	for i := range table {
		table[i] = uint8((index >> uint(i)) & 1)
	}
	return table, nil
}

// IndexFromTable is the inverse of TableFromIndex.
func IndexFromTable(table []uint8) (uint64, error) {
	if len(table) == 0 || bits.OnesCount(uint(len(table))) != 1 {
		return 0, ConfigErrorf("rule", "table length %d is not a power of two", len(table))
	}
	if len(table) > 64 {
		return 0, ConfigErrorf("rule", "table length %d does not fit a scalar index", len(table))
	}
	var index uint64
	for i, bit := range table {
		switch bit {
		case 0:
		case 1:
			index |= 1 << uint(i)
		default:
			return 0, ConfigErrorf("rule", "entry %d is %d, want 0 or 1", i, bit)
		}
	}
	return index, nil
}
