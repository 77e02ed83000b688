package codec

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"caevo/internal/ca"
)

func TestQuantize(t *testing.T) {
	b := Bounds{Min: -2, Max: 2}
	tests := []struct {
		name string
		v    float64
		bits int
		want uint64
	}{
		{"min", -2, 5, 0},
		{"max", 2, 5, 31},
		{"below clamps to min", -100, 5, 0},
		{"above clamps to max", 7.5, 5, 31},
		{"midpoint rounds to even", 0, 1, 0},
		{"quarter", -1, 2, 1},
		{"three quarters", 1, 2, 2},
		{"one bit max", 2, 1, 1},
		{"wide", 2, 32, math.MaxUint32},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Quantize(tt.v, b, tt.bits))
		})
	}
}

func TestEncodePacksLSBFirstAndZeroFills(t *testing.T) {
	enc, err := NewEncoder([]Bounds{{Min: 0, Max: 7}, {Min: 0, Max: 7}}, 3, 8)
	require.NoError(t, err)

	row, err := enc.Encode([]float64{6, 1})
	require.NoError(t, err)
	// 6 = 110 -> cells 0,1,1 ; 1 = 001 -> cells 1,0,0 ; two padding cells
	assert.Equal(t, "01110000", row.String())

	row, err = enc.Encode([]float64{-5, 99})
	require.NoError(t, err)
	assert.Equal(t, "00011100", row.String())
}

func TestEncoderValidation(t *testing.T) {
	bounds := []Bounds{{Min: -1, Max: 1}, {Min: -1, Max: 1}}
	_, err := NewEncoder(bounds, 5, 9)
	assert.ErrorIs(t, err, ca.ErrConfiguration)
	_, err = NewEncoder(bounds, 0, 64)
	assert.ErrorIs(t, err, ca.ErrConfiguration)
	_, err = NewEncoder([]Bounds{{Min: 1, Max: 1}}, 5, 64)
	assert.ErrorIs(t, err, ca.ErrConfiguration)
	_, err = NewEncoder(nil, 5, 64)
	assert.ErrorIs(t, err, ca.ErrConfiguration)
	for _, b := range []Bounds{
		{Min: math.Inf(-1), Max: math.Inf(1)},
		{Min: 0, Max: math.Inf(1)},
		{Min: math.Inf(-1), Max: 0},
		{Min: -1e308, Max: 1e308},
	} {
		_, err = NewEncoder([]Bounds{b}, 5, 5)
		assert.ErrorIs(t, err, ca.ErrConfiguration, "bounds %v", b)
	}

	enc, err := NewEncoder(bounds, 5, 10)
	require.NoError(t, err)
	_, err = enc.Encode([]float64{0})
	assert.Error(t, err)
	_, err = enc.Encode([]float64{0, math.NaN()})
	assert.Error(t, err)

	wide, err := NewEncoder([]Bounds{{Min: -1e307, Max: 1e307}}, 5, 5)
	require.NoError(t, err)
	row, err := wide.Encode([]float64{1e307})
	require.NoError(t, err)
	assert.Equal(t, "11111", row.String())
}

func TestDecodeTieBreaks(t *testing.T) {
	row, err := ca.ParseRow("1100")
	require.NoError(t, err)

	sum, err := SumDecoder(DefaultSumThreshold)
	require.NoError(t, err)
	got, err := sum.Decode(row)
	require.NoError(t, err)
	assert.Equal(t, 1, got)

	got, err = MajorityDecoder().Decode(row)
	require.NoError(t, err)
	assert.Equal(t, 0, got)
}

func TestDecodePolicies(t *testing.T) {
	tests := []struct {
		row       string
		policy    string
		threshold float64
		want      int
	}{
		{"00111000", "center", 0, 1},
		{"01100100", "center", 0, 0},
		{"101", "center", 0, 0},
		{"111000", "majority", 0, 0},
		{"111001", "majority", 0, 1},
		{"1000", "sum", 0.25, 1},
		{"1000", "sum", 0.3, 0},
		{"0000", "sum", 0, 1},
	}
	for _, tt := range tests {
		t.Run(tt.policy+"/"+tt.row, func(t *testing.T) {
			dec, err := ParseDecoder(tt.policy, tt.threshold)
			require.NoError(t, err)
			row, err := ca.ParseRow(tt.row)
			require.NoError(t, err)
			got, err := dec.Decode(row)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseDecoderRejectsUnknown(t *testing.T) {
	_, err := ParseDecoder("median", 0.5)
	assert.ErrorIs(t, err, ca.ErrConfiguration)
	_, err = ParseDecoder("sum", 1.5)
	assert.ErrorIs(t, err, ca.ErrConfiguration)
	_, err = CenterDecoder().Decode(nil)
	assert.ErrorIs(t, err, ca.ErrConfiguration)
}

func TestEncodeStepDecodeScenario(t *testing.T) {
	rule, err := ca.RuleFromIndex(30, 1)
	require.NoError(t, err)
	row, err := ca.ParseRow("00010000")
	require.NoError(t, err)

	after, err := ca.Evolve(row, rule, 1)
	require.NoError(t, err)
	assert.Equal(t, "00111000", after.String())
	action, err := CenterDecoder().Decode(after)
	require.NoError(t, err)
	assert.Equal(t, 1, action)

	after, err = ca.Evolve(row, rule, 2)
	require.NoError(t, err)
	action, err = CenterDecoder().Decode(after)
	require.NoError(t, err)
	assert.Equal(t, 0, action)
}
