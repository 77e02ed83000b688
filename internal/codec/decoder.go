package codec

import (
	"fmt"
	"strings"

	"caevo/internal/ca"
)

const DefaultSumThreshold = 0.5

// Policy selects how a row collapses to an action.
type Policy int

const (
	Center Policy = iota
	Sum
	Majority
)

func (p Policy) String() string {
	switch p {
	case Center:
		return "center"
	case Sum:
		return "sum"
	case Majority:
		return "majority"
	default:
		return fmt.Sprintf("policy(%d)", int(p))
	}
}

// Decoder is resolved once from configuration and then applied per step.
type Decoder struct {
	policy    Policy
	threshold float64
}

func CenterDecoder() Decoder   { return Decoder{policy: Center} }
func MajorityDecoder() Decoder { return Decoder{policy: Majority} }

// SumDecoder returns 1 when the fraction of live cells reaches threshold.
func SumDecoder(threshold float64) (Decoder, error) {
	if !(threshold >= 0 && threshold <= 1) {
		return Decoder{}, ca.ConfigErrorf("threshold", "must be in [0, 1], got %g", threshold)
	}
	return Decoder{policy: Sum, threshold: threshold}, nil
}

// ParseDecoder resolves a policy name. threshold is used by sum only.
func ParseDecoder(name string, threshold float64) (Decoder, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "center":
		return CenterDecoder(), nil
	case "sum":
		return SumDecoder(threshold)
	case "majority":
		return MajorityDecoder(), nil
	default:
		return Decoder{}, ca.ConfigErrorf("decoder", "unknown policy %q", name)
	}
}

func (d Decoder) Policy() Policy     { return d.policy }
func (d Decoder) Threshold() float64 { return d.threshold }

func (d Decoder) String() string {
	if d.policy == Sum {
		return fmt.Sprintf("sum(%g)", d.threshold)
	}
	return d.policy.String()
}

// Decode maps row to action 0 or 1. Ties resolve to 1 under sum and to 0
// under majority.
func (d Decoder) Decode(row ca.Row) (int, error) {
	if len(row) == 0 {
		return 0, ca.ConfigErrorf("row", "cannot decode an empty row")
	}
	switch d.policy {
	case Center:
		return int(row[len(row)/2] & 1), nil
	case Sum:
		if float64(row.Ones())/float64(len(row)) >= d.threshold {
			return 1, nil
		}
		return 0, nil
	case Majority:
		ones := row.Ones()
		if ones > len(row)-ones {
			return 1, nil
		}
		return 0, nil
	default:
		return 0, ca.ConfigErrorf("decoder", "unknown policy %d", int(d.policy))
	}
}
