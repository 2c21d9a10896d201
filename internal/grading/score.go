package grading

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
)

// DefaultMaxPoints is the scale scores are normalized to.
const DefaultMaxPoints = 10.0

var totalPattern = regexp.MustCompile(`(?m)^[ \t]*Total:[ \t]*([0-9]+(?:\.[0-9]+)?|\.[0-9]+)[ \t]*/[ \t]*([0-9]+(?:\.[0-9]+)?|\.[0-9]+)[ \t]*\r?$`)

// ExtractionError reports script output without a usable score line.
type ExtractionError struct {
	Reason string
}

func (e *ExtractionError) Error() string {
	return "grading: no score found: " + e.Reason
}

// ExtractScore finds the last `Total: <num>/<den>` line in stdout and scales
// the fraction to maxPoints, rounded to two decimals.
func ExtractScore(stdout string, maxPoints float64) (float64, error) {
	matches := totalPattern.FindAllStringSubmatch(stdout, -1)
	if len(matches) == 0 {
		return 0, &ExtractionError{Reason: "no 'Total: n/d' line in output"}
	}
	last := matches[len(matches)-1]
	num, err := strconv.ParseFloat(last[1], 64)
	if err != nil {
		return 0, &ExtractionError{Reason: fmt.Sprintf("bad numerator %q", last[1])}
	}
	den, err := strconv.ParseFloat(last[2], 64)
	if err != nil {
		return 0, &ExtractionError{Reason: fmt.Sprintf("bad denominator %q", last[2])}
	}
	if den == 0 {
		return 0, &ExtractionError{Reason: "denominator is zero"}
	}
	return Round2(num / den * maxPoints), nil
}

// Round2 rounds half away from zero to two decimal places.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// FormatScore renders a score the way the report shows it.
func FormatScore(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

// Scorer turns grading output into a normalized score.
type Scorer interface {
	Score(stdout string) (float64, error)
}

// TotalScorer reads the `Total: n/d` line.
type TotalScorer struct {
	MaxPoints float64
}

func (s TotalScorer) Score(stdout string) (float64, error) {
	return ExtractScore(stdout, s.MaxPoints)
}
