// Package report serializes grading outcomes to the CSV the gradebook imports.
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Header is the first line of every report.
var Header = []string{"CCID", "Grade", "Feedback"}

// Row is one student's line in the report.
type Row struct {
	ID       string
	Grade    string
	Feedback string
}

// Write encodes rows, in order, after the header.
func Write(w io.Writer, rows []Row) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return fmt.Errorf("report: write header: %w", err)
	}
	for _, row := range rows {
		if err := cw.Write([]string{row.ID, row.Grade, row.Feedback}); err != nil {
			return fmt.Errorf("report: write row for %s: %w", row.ID, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("report: flush: %w", err)
	}
	return nil
}

// WriteFile writes the report to path, replacing it atomically so an
// interrupted run never leaves a truncated gradebook behind.
func WriteFile(path string, rows []Row) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("report: ensure dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+"-*")
	if err != nil {
		return fmt.Errorf("report: create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if err := Write(tmp, rows); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("report: close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("report: replace %s: %w", path, err)
	}
	return nil
}
