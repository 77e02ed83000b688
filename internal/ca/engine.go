package ca

// Step advances row one tick under rule. Every output cell is computed from
// the input row; the input is never modified.
func Step(row Row, rule Rule) (Row, error) {
	if len(rule.table) == 0 {
		return nil, ConfigErrorf("rule", "rule is not initialized")
	}
	if len(row) == 0 {
		return nil, ConfigErrorf("row", "length must be >= 1")
	}
	out := make(Row, len(row))
	step(out, row, rule)
	return out, nil
}

// StepTable is Step for a raw table whose radius is supplied separately.
func StepTable(row Row, table []uint8, radius int) (Row, error) {
	rule, err := NewRule(table, radius)
	if err != nil {
		return nil, err
	}
	return Step(row, rule)
}

// Evolve applies Step ticks times. Zero ticks returns a copy of row.
func Evolve(row Row, rule Rule, ticks int) (Row, error) {
	if ticks < 0 {
		return nil, ConfigErrorf("ticks", "must be >= 0, got %d", ticks)
	}
	if len(rule.table) == 0 {
		return nil, ConfigErrorf("rule", "rule is not initialized")
	}
	if len(row) == 0 {
		return nil, ConfigErrorf("row", "length must be >= 1")
	}
	cur := row.Clone()
	if ticks == 0 {
		return cur, nil
	}
	next := make(Row, len(row))
	for t := 0; t < ticks; t++ {
		step(next, cur, rule)
		cur, next = next, cur
	}
	return cur, nil
}

// History returns the input row followed by the row after every tick.
func History(row Row, rule Rule, ticks int) ([]Row, error) {
	if ticks < 0 {
		return nil, ConfigErrorf("ticks", "must be >= 0, got %d", ticks)
	}
	first, err := Evolve(row, rule, 0)
	if err != nil {
		return nil, err
	}
	rows := make([]Row, 0, ticks+1)
	rows = append(rows, first)
	for t := 0; t < ticks; t++ {
		next := make(Row, len(first))
		step(next, rows[t], rule)
		rows = append(rows, next)
	}
	return rows, nil
}

func step(dst, src Row, rule Rule) {
	n := len(src)
	r := rule.radius
	for i := 0; i < n; i++ {
		idx := 0
		for off := -r; off <= r; off++ {
			j := ((i+off)%n + n) % n
			idx <<= 1
			if src[j] != 0 {
				idx |= 1
			}
		}
		dst[i] = rule.table[idx]
	}
}
