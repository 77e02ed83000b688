package evo

import (
	"fmt"
	"math/rand"

	"caevo/internal/ca"
	"caevo/internal/model"
)

// Genome is a candidate rule stored as its full lookup table, entry 0 first.
type Genome struct {
	ID   string
	Bits []uint8
}

// RandomGenome draws every table entry independently.
func RandomGenome(rng *rand.Rand, id string, length int) Genome {
	bits := make([]uint8, length)
	for i := range bits {
		bits[i] = uint8(rng.Intn(2))
	}
	return Genome{ID: id, Bits: bits}
}

// GenomeFromRule wraps an existing rule table.
func GenomeFromRule(id string, rule ca.Rule) Genome {
	return Genome{ID: id, Bits: rule.Table()}
}

func (g Genome) Clone(id string) Genome {
	return Genome{ID: id, Bits: append([]uint8(nil), g.Bits...)}
}

// Key identifies the table independently of the genome ID.
func (g Genome) Key() string {
	return ca.Row(g.Bits).String()
}

// Rule materializes the genome for radius.
func (g Genome) Rule(radius int) (ca.Rule, error) {
	rule, err := ca.NewRule(g.Bits, radius)
	if err != nil {
		return ca.Rule{}, fmt.Errorf("genome %s: %w", g.ID, err)
	}
	return rule, nil
}

// Label is the rule index when the table is small enough, else the bits.
func (g Genome) Label() string {
	if idx, err := ca.IndexFromTable(g.Bits); err == nil {
		return fmt.Sprintf("%d", idx)
	}
	return g.Key()
}

func (g Genome) Record(radius int) model.RuleGenome {
	return model.RuleGenome{
		VersionedRecord: model.CurrentVersion(),
		ID:              g.ID,
		Radius:          radius,
		Bits:            g.Key(),
		Label:           g.Label(),
	}
}

// GenomeFromRecord restores a stored genome and checks it against radius.
func GenomeFromRecord(rec model.RuleGenome) (Genome, error) {
	row, err := ca.ParseRow(rec.Bits)
	if err != nil {
		return Genome{}, fmt.Errorf("genome %s: %w", rec.ID, err)
	}
	g := Genome{ID: rec.ID, Bits: []uint8(row)}
	if _, err := g.Rule(rec.Radius); err != nil {
		return Genome{}, err
	}
	return g, nil
}
