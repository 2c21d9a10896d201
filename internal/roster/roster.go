// Package roster reads the classroom export that lists students and their
// repositories.
package roster

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

const (
	idColumn   = 4
	repoColumn = 6
)

// Entry is one gradable submission. Index is the entry's position among the
// qualifying rows and fixes its place in the report.
type Entry struct {
	Index int
	ID    string
	Repo  string
}

// Load reads and filters the roster at path.
func Load(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("roster: open %s: %w", path, err)
	}
	defer f.Close()
	entries, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("roster: %s: %w", path, err)
	}
	return entries, nil
}

// Parse skips the header row and keeps rows carrying both a student id and a
// repository URL. Short or blank rows are dropped silently.
func Parse(r io.Reader) ([]Entry, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	if _, err := reader.Read(); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("read header: %w", err)
	}
	var entries []Entry
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}
		entry, ok := normalize(row)
		if !ok {
			continue
		}
		entry.Index = len(entries)
		entries = append(entries, entry)
	}
	return entries, nil
}

func normalize(row []string) (Entry, bool) {
	if len(row) <= repoColumn {
		return Entry{}, false
	}
	id := strings.TrimSpace(row[idColumn])
	repo := strings.TrimSpace(row[repoColumn])
	if id == "" || repo == "" {
		return Entry{}, false
	}
	return Entry{ID: id, Repo: repo}, true
}
