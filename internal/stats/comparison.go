package stats

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
)

const (
	comparisonFile       = "comparison.json"
	comparisonSeriesFile = "comparison_series.csv"
)

// Comparison holds per-episode returns of a CA rule and a baseline
// controller run on the same episode seeds.
type Comparison struct {
	Scape           string    `json:"scape"`
	Rule            string    `json:"rule"`
	Baseline        string    `json:"baseline"`
	Episodes        int       `json:"episodes"`
	Seed            int64     `json:"seed"`
	CAReturns       []float64 `json:"ca_returns"`
	BaselineReturns []float64 `json:"baseline_returns"`
	CAMean          float64   `json:"ca_mean"`
	BaselineMean    float64   `json:"baseline_mean"`
	Improvement     float64   `json:"improvement"`
}

// NewComparison fills the summary fields from the two return series.
func NewComparison(scapeName, rule, baseline string, seed int64, caReturns, baselineReturns []float64) (Comparison, error) {
	if baseline == "" {
		return Comparison{}, fmt.Errorf("baseline name is required")
	}
	if len(caReturns) != len(baselineReturns) {
		return Comparison{}, fmt.Errorf("series length mismatch: ca=%d %s=%d", len(caReturns), baseline, len(baselineReturns))
	}
	c := Comparison{
		Scape:           scapeName,
		Rule:            rule,
		Baseline:        baseline,
		Episodes:        len(caReturns),
		Seed:            seed,
		CAReturns:       append([]float64(nil), caReturns...),
		BaselineReturns: append([]float64(nil), baselineReturns...),
		CAMean:          mean(caReturns),
		BaselineMean:    mean(baselineReturns),
	}
	c.Improvement = c.CAMean - c.BaselineMean
	return c, nil
}

func WriteComparison(dir string, c Comparison) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	if err := writeJSON(filepath.Join(dir, comparisonFile), c); err != nil {
		return err
	}

	file, err := os.Create(filepath.Join(dir, comparisonSeriesFile))
	if err != nil {
		return err
	}
	defer file.Close()
	return WriteComparisonSeries(file, c)
}

func WriteComparisonSeries(w io.Writer, c Comparison) error {
	writer := csv.NewWriter(w)
	if err := writer.Write([]string{"episode", "ca_return", c.Baseline + "_return"}); err != nil {
		return err
	}
	for i := range c.CAReturns {
		if err := writer.Write([]string{
			strconv.Itoa(i),
			strconv.FormatFloat(c.CAReturns[i], 'f', -1, 64),
			strconv.FormatFloat(c.BaselineReturns[i], 'f', -1, 64),
		}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func ReadComparison(dir string) (Comparison, bool, error) {
	var c Comparison
	ok, err := readJSON(filepath.Join(dir, comparisonFile), &c)
	return c, ok, err
}

// ReadComparisonSeries parses a series written by WriteComparisonSeries.
func ReadComparisonSeries(r io.Reader) (caReturns, baselineReturns []float64, err error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = 3
	records, err := reader.ReadAll()
	if err != nil {
		return nil, nil, err
	}
	if len(records) == 0 {
		return nil, nil, fmt.Errorf("comparison series is missing its header")
	}
	for _, record := range records[1:] {
		ca, err := strconv.ParseFloat(record[1], 64)
		if err != nil {
			return nil, nil, err
		}
		baseline, err := strconv.ParseFloat(record[2], 64)
		if err != nil {
			return nil, nil, err
		}
		caReturns = append(caReturns, ca)
		baselineReturns = append(baselineReturns, baseline)
	}
	return caReturns, baselineReturns, nil
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
