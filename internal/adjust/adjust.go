// Package adjust folds demo scores into a lab report: a student with a demo
// score gets half their lab grade plus the demo score, and the demo score is
// prefixed to their feedback.
package adjust

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/kingrea/marker/internal/logbook"
)

// DefaultOutput is written when no output path is given.
const DefaultOutput = "adjusted-grades.csv"

// DemoMax is the denominator shown next to demo scores.
const DemoMax = "5.0"

const (
	demoIDColumn    = 0
	demoScoreColumn = 2

	labIDColumn       = 0
	labGradeColumn    = 1
	labFeedbackColumn = 2
)

// Change describes one adjusted lab row.
type Change struct {
	ID       string
	OldGrade string
	NewGrade string
	Demo     string
}

func (c Change) String() string {
	return fmt.Sprintf("%s %s -> %s (%s/%s)", c.ID, c.OldGrade, c.NewGrade, c.Demo, DemoMax)
}

// LoadDemos reads the demo CSV into id → score. Rows without a numeric score
// are ignored.
func LoadDemos(r io.Reader) (map[string]float64, error) {
	rows, err := readAll(r)
	if err != nil {
		return nil, fmt.Errorf("adjust: read demo grades: %w", err)
	}
	demos := make(map[string]float64, len(rows))
	for _, row := range rows {
		if len(row) <= demoScoreColumn {
			continue
		}
		score, ok := parseNumber(row[demoScoreColumn])
		if !ok {
			continue
		}
		demos[row[demoIDColumn]] = score
	}
	return demos, nil
}

// Apply rewrites lab rows in place and returns the changes in row order. Rows
// that do not match a demo id or whose grade is not numeric (the header,
// failure markers) are left untouched.
func Apply(lab [][]string, demos map[string]float64) []Change {
	var changes []Change
	for _, row := range lab {
		if len(row) <= labGradeColumn {
			continue
		}
		demo, ok := demos[row[labIDColumn]]
		if !ok {
			continue
		}
		grade, ok := parseNumber(row[labGradeColumn])
		if !ok {
			continue
		}
		adjusted := math.Round((grade/2+demo)*100) / 100
		change := Change{
			ID:       row[labIDColumn],
			OldGrade: row[labGradeColumn],
			NewGrade: formatNumber(adjusted),
			Demo:     formatNumber(demo),
		}
		row[labGradeColumn] = change.NewGrade
		note := fmt.Sprintf("(Demo: %s/%s)", change.Demo, DemoMax)
		if len(row) > labFeedbackColumn {
			row[labFeedbackColumn] = note + " " + row[labFeedbackColumn]
		}
		changes = append(changes, change)
	}
	return changes
}

// Files joins labPath and demoPath into outputPath and logs every change.
func Files(labPath, demoPath, outputPath string, logger logbook.Logger) ([]Change, error) {
	logger = logbook.OrDiscard(logger)
	demoFile, err := os.Open(demoPath)
	if err != nil {
		return nil, fmt.Errorf("adjust: open %s: %w", demoPath, err)
	}
	defer demoFile.Close()
	demos, err := LoadDemos(demoFile)
	if err != nil {
		return nil, err
	}

	labFile, err := os.Open(labPath)
	if err != nil {
		return nil, fmt.Errorf("adjust: open %s: %w", labPath, err)
	}
	defer labFile.Close()
	lab, err := readAll(labFile)
	if err != nil {
		return nil, fmt.Errorf("adjust: read lab grades: %w", err)
	}

	changes := Apply(lab, demos)
	for _, c := range changes {
		logger.Infof("%s", c)
	}
	if err := writeAtomic(outputPath, lab); err != nil {
		return nil, err
	}
	logger.Infof("Joined '%s' and '%s' into '%s'", labPath, demoPath, outputPath)
	return changes, nil
}

func readAll(r io.Reader) ([][]string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	return reader.ReadAll()
}

func writeAtomic(path string, rows [][]string) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".adjust-*.csv")
	if err != nil {
		return fmt.Errorf("adjust: create %s: %w", path, err)
	}
	defer os.Remove(tmp.Name())
	w := csv.NewWriter(tmp)
	if err := w.WriteAll(rows); err != nil {
		tmp.Close()
		return fmt.Errorf("adjust: write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("adjust: write %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("adjust: write %s: %w", path, err)
	}
	return nil
}

func parseNumber(s string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// formatNumber prints the shortest form that still reads as a decimal, so
// 5 becomes "5.0" and 7.25 stays "7.25".
func formatNumber(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}
