package codec

import (
	"fmt"
	"math"

	"caevo/internal/ca"
)

// MaxBitsPerValue keeps quantization levels within uint32.
const MaxBitsPerValue = 32

// Bounds is the closed range of one observation dimension.
type Bounds struct {
	Min float64 `json:"min" yaml:"min"`
	Max float64 `json:"max" yaml:"max"`
}

// Encoder quantizes observations into CA rows. Dimension d occupies
// positions [d*bits, (d+1)*bits), least significant bit first. Trailing
// positions are zero.
type Encoder struct {
	bounds       []Bounds
	bitsPerValue int
	rowLength    int
}

func NewEncoder(bounds []Bounds, bitsPerValue, rowLength int) (*Encoder, error) {
	if len(bounds) == 0 {
		return nil, ca.ConfigErrorf("bounds", "at least one dimension is required")
	}
	for i, b := range bounds {
		if math.IsNaN(b.Min) || math.IsNaN(b.Max) || !(b.Min < b.Max) {
			return nil, ca.ConfigErrorf("bounds", "dimension %d needs min < max, got [%g, %g]", i, b.Min, b.Max)
		}
		if math.IsInf(b.Max-b.Min, 0) {
			return nil, ca.ConfigErrorf("bounds", "dimension %d needs a finite range, got [%g, %g]", i, b.Min, b.Max)
		}
	}
	if bitsPerValue < 1 || bitsPerValue > MaxBitsPerValue {
		return nil, ca.ConfigErrorf("bits_per_value", "must be in [1, %d], got %d", MaxBitsPerValue, bitsPerValue)
	}
	if need := len(bounds) * bitsPerValue; rowLength < need {
		return nil, ca.ConfigErrorf("row_length", "%d dimensions x %d bits need %d cells, got %d", len(bounds), bitsPerValue, need, rowLength)
	}
	return &Encoder{
		bounds:       append([]Bounds(nil), bounds...),
		bitsPerValue: bitsPerValue,
		rowLength:    rowLength,
	}, nil
}

func (e *Encoder) Dimensions() int   { return len(e.bounds) }
func (e *Encoder) BitsPerValue() int { return e.bitsPerValue }
func (e *Encoder) RowLength() int    { return e.rowLength }

// Encode produces a fresh row for obs.
func (e *Encoder) Encode(obs []float64) (ca.Row, error) {
	if len(obs) != len(e.bounds) {
		return nil, fmt.Errorf("observation has %d dimensions, encoder expects %d", len(obs), len(e.bounds))
	}
	row := make(ca.Row, e.rowLength)
	for d, v := range obs {
		if math.IsNaN(v) {
			return nil, fmt.Errorf("observation dimension %d is NaN", d)
		}
		level := Quantize(v, e.bounds[d], e.bitsPerValue)
		offset := d * e.bitsPerValue
		for b := 0; b < e.bitsPerValue; b++ {
			row[offset+b] = uint8((level >> uint(b)) & 1)
		}
	}
	return row, nil
}

// Quantize clamps v into b, normalizes it to [0,1] and rounds to one of
// 2^bits levels. Halfway values round to even.
func Quantize(v float64, b Bounds, bits int) uint64 {
	if v < b.Min {
		v = b.Min
	}
	if v > b.Max {
		v = b.Max
	}
	top := float64(uint64(1)<<uint(bits) - 1)
	norm := (v - b.Min) / (b.Max - b.Min)
	return uint64(math.RoundToEven(norm * top))
}
