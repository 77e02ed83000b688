package ca

import (
	"fmt"
	"strings"
)

// Row is one CA state. Positions wrap around at both ends.
type Row []uint8

// ParseRow reads a row written as '0'/'1' characters.
func ParseRow(s string) (Row, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("empty row")
	}
	row := make(Row, len(s))
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '0':
		case '1':
			row[i] = 1
		default:
			return nil, fmt.Errorf("invalid cell %q at %d", s[i], i)
		}
	}
	return row, nil
}

func (r Row) String() string {
	var b strings.Builder
	b.Grow(len(r))
	for _, bit := range r {
		if bit != 0 {
			b.WriteByte('1')
		} else {
			b.WriteByte('0')
		}
	}
	return b.String()
}

// Ones counts live cells.
func (r Row) Ones() int {
	n := 0
	for _, bit := range r {
		if bit != 0 {
			n++
		}
	}
	return n
}

func (r Row) Clone() Row {
	return append(Row(nil), r...)
}
