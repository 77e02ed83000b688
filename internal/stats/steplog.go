package stats

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"caevo/internal/scape"
)

const stepLogFile = "step_log.csv"

var stepLogHeader = []string{"episode", "step", "obs", "bit_pre", "bit_post", "action", "reward", "terminated"}

// StepLogger writes one CSV row per environment transition. Observations are
// space-separated inside their column; bit_pre and bit_post are empty for
// controllers that do not annotate CA rows.
type StepLogger struct {
	w    *csv.Writer
	rows int
}

func NewStepLogger(w io.Writer) (*StepLogger, error) {
	cw := csv.NewWriter(w)
	if err := cw.Write(stepLogHeader); err != nil {
		return nil, err
	}
	return &StepLogger{w: cw}, nil
}

// Observe matches scape.StepObserver.
func (l *StepLogger) Observe(rec scape.StepRecord) error {
	obs := make([]string, len(rec.Observation))
	for i, v := range rec.Observation {
		obs[i] = strconv.FormatFloat(v, 'g', 8, 64)
	}
	row := []string{
		strconv.Itoa(rec.Episode),
		strconv.Itoa(rec.Step),
		strings.Join(obs, " "),
		detailString(rec.Detail, "bit_pre"),
		detailString(rec.Detail, "bit_post"),
		strconv.Itoa(rec.Action),
		strconv.FormatFloat(rec.Reward, 'f', -1, 64),
		strconv.FormatBool(rec.Terminated),
	}
	if err := l.w.Write(row); err != nil {
		return fmt.Errorf("write step %d of episode %d: %w", rec.Step, rec.Episode, err)
	}
	l.rows++
	return nil
}

// Rows reports how many transitions have been written.
func (l *StepLogger) Rows() int {
	return l.rows
}

func (l *StepLogger) Flush() error {
	l.w.Flush()
	return l.w.Error()
}

func detailString(detail scape.Trace, key string) string {
	v, ok := detail[key]
	if !ok {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}
