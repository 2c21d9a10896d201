package roster

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const classroomExport = `assignment_name,assignment_url,starter_code_url,github_username,roster_identifier,student_repository_name,student_repository_url,submission_timestamp,points_awarded,points_available
lab1,u,s,alice-gh,alice,lab1-alice,https://github.com/org/lab1-alice,,0,10
lab1,u,s,bob-gh,,lab1-bob,https://github.com/org/lab1-bob,,0,10
lab1,u,s,carol-gh,carol,lab1-carol,,,0,10
short,row
lab1,u,s,dave-gh, dave ,lab1-dave, https://github.com/org/lab1-dave ,,0,10
`

func TestParseKeepsQualifyingRowsInOrder(t *testing.T) {
	entries, err := Parse(strings.NewReader(classroomExport))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("len(entries) = %d, want 2: %+v", len(entries), entries)
	}
	want := []Entry{
		{Index: 0, ID: "alice", Repo: "https://github.com/org/lab1-alice"},
		{Index: 1, ID: "dave", Repo: "https://github.com/org/lab1-dave"},
	}
	for i := range want {
		if entries[i] != want[i] {
			t.Fatalf("entry %d = %+v, want %+v", i, entries[i], want[i])
		}
	}
}

func TestParseEmptyInput(t *testing.T) {
	entries, err := Parse(strings.NewReader(""))
	if err != nil {
		t.Fatalf("parse empty: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected no entries, got %d", len(entries))
	}
}

func TestParseHeaderOnly(t *testing.T) {
	entries, err := Parse(strings.NewReader("a,b,c,d,roster_identifier,f,student_repository_url\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("header must not be treated as an entry: %+v", entries)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.csv")); err == nil {
		t.Fatalf("expected error for missing roster")
	}
}

func TestLoadReadsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "roster.csv")
	if err := os.WriteFile(path, []byte(classroomExport), 0o644); err != nil {
		t.Fatalf("write roster: %v", err)
	}
	entries, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("len(entries) = %d, want 2", len(entries))
	}
}
