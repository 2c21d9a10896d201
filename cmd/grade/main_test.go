package main

import (
	"bytes"
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/kingrea/marker/internal/gittest"
)

func TestRunUsageErrors(t *testing.T) {
	for _, args := range [][]string{
		{},
		{"roster.csv"},
		{"roster.csv", "grade.sh", "extra"},
		{"--no-such-flag", "roster.csv", "grade.sh"},
	} {
		var stdout, stderr bytes.Buffer
		if code := run(context.Background(), args, &stdout, &stderr); code != exitUsage {
			t.Fatalf("run(%q) = %d, want %d\n%s", args, code, exitUsage, stderr.String())
		}
	}
}

func TestRunConfigErrors(t *testing.T) {
	dir := t.TempDir()
	rosterPath := filepath.Join(dir, "roster.csv")
	if err := os.WriteFile(rosterPath, []byte("a,b,c,d,e,f\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	scriptPath := filepath.Join(dir, "grade.sh")
	if err := os.WriteFile(scriptPath, []byte("#!/bin/sh\n"), 0o755); err != nil {
		t.Fatal(err)
	}
	cases := map[string][]string{
		"missing script":   {rosterPath, filepath.Join(dir, "nope.sh")},
		"bad deadline":     {rosterPath, scriptPath, "--deadline", "31-10-2024"},
		"zero timeout":     {rosterPath, scriptPath, "--timeout", "0"},
		"bad concurrency":  {"--concurrency", "0", rosterPath, scriptPath},
		"missing config":   {rosterPath, scriptPath, "--config", filepath.Join(dir, "missing.yaml")},
		"script directory": {rosterPath, dir},
	}
	for name, args := range cases {
		t.Run(name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			if code := run(context.Background(), args, &stdout, &stderr); code != exitConfig {
				t.Fatalf("exit = %d, want %d\n%s", code, exitConfig, stderr.String())
			}
			if !strings.Contains(stderr.String(), "config:") {
				t.Fatalf("expected config error on stderr, got %q", stderr.String())
			}
		})
	}
}

func TestParseAcceptsInterspersedFlags(t *testing.T) {
	var stderr bytes.Buffer
	f := newFlags(&stderr)
	err := f.parse([]string{"-v", "roster.csv", "--timeout", "5", "grade.sh", "-o", "out.csv", "--publish"})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(f.positional) != 2 || f.positional[0] != "roster.csv" || f.positional[1] != "grade.sh" {
		t.Fatalf("positional = %q", f.positional)
	}
	if !f.verbose || !f.publish || f.timeout != 5 || f.output != "out.csv" {
		t.Fatalf("flags not parsed: %+v", f)
	}
}

func TestRunGradesRoster(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("grading scripts are POSIX shell")
	}
	gittest.Require(t)

	remote := gittest.InitBare(t, "main")
	work := gittest.Init(t, "main")
	work.Commit(t, "lab", map[string]string{"answer.txt": "42\n"}, time.Now().Add(-time.Hour))
	gittest.Git(t, work.Dir, nil, "push", "-q", remote, "main:main")

	dir := t.TempDir()
	rosterPath := filepath.Join(dir, "roster.csv")
	rosterCSV := "Name,Section,Email,Lab,CCID,Team,Repo\n" +
		"Ada,1,ada@x,L1,ada,t1," + remote + "\n" +
		"Bob,1,bob@x,L1,bob,t2,\n" +
		"Cy,1,cy@x,L1,cy,t3," + filepath.Join(dir, "missing.git") + "\n"
	if err := os.WriteFile(rosterPath, []byte(rosterCSV), 0o644); err != nil {
		t.Fatal(err)
	}
	scriptPath := filepath.Join(dir, "grade.sh")
	if err := os.WriteFile(scriptPath, []byte("#!/bin/sh\necho 'case 1 ok'\necho 'Total: 9/10'\n"), 0o755); err != nil {
		t.Fatal(err)
	}
	out := filepath.Join(dir, "out.csv")
	logPath := filepath.Join(dir, "marker.log")

	var stdout, stderr bytes.Buffer
	args := []string{rosterPath, "--concurrency", "2", scriptPath, "-o", out, "--log-file", logPath, "--timeout", "10"}
	if code := run(context.Background(), args, &stdout, &stderr); code != exitOK {
		t.Fatalf("exit = %d\n%s", code, stderr.String())
	}

	f, err := os.Open(out)
	if err != nil {
		t.Fatalf("open report: %v", err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	want := [][]string{
		{"CCID", "Grade", "Feedback"},
		{"ada", "9.00", ""},
		{"cy", "ERROR SEE LOG", "Clone failed"},
	}
	if len(rows) != len(want) {
		t.Fatalf("rows = %q", rows)
	}
	for i := range want {
		if strings.Join(rows[i], "|") != strings.Join(want[i], "|") {
			t.Fatalf("row %d = %q, want %q", i, rows[i], want[i])
		}
	}
	logged, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(logged), "Grading ada...") || !strings.Contains(string(logged), "finished: 1 graded") {
		t.Fatalf("log missing progress lines:\n%s", logged)
	}
}
