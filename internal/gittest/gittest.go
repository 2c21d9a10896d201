// Package gittest builds throwaway git repositories for tests that exercise
// the real git binary.
package gittest

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// Require skips the test when git is not installed.
func Require(t testing.TB) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available on PATH")
	}
}

// Repo is a non-bare repository with a fixed identity.
type Repo struct {
	Dir string
}

// Init creates a repository whose HEAD points at branch.
func Init(t testing.TB, branch string) *Repo {
	t.Helper()
	Require(t)
	dir := t.TempDir()
	Git(t, dir, nil, "init", "-q")
	Git(t, dir, nil, "symbolic-ref", "HEAD", "refs/heads/"+branch)
	return &Repo{Dir: dir}
}

// InitBare creates a bare repository, usable as a push target.
func InitBare(t testing.TB, branch string) string {
	t.Helper()
	Require(t)
	dir := filepath.Join(t.TempDir(), "remote.git")
	Git(t, "", nil, "init", "-q", "--bare", dir)
	Git(t, dir, nil, "symbolic-ref", "HEAD", "refs/heads/"+branch)
	return dir
}

// Commit writes files and commits them with both author and committer dates
// set to when. It returns the new commit hash.
func (r *Repo) Commit(t testing.TB, message string, files map[string]string, when time.Time) string {
	t.Helper()
	for name, content := range files {
		path := filepath.Join(r.Dir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", name, err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	Git(t, r.Dir, nil, "add", "-A")
	stamp := when.Format(time.RFC3339)
	env := []string{"GIT_AUTHOR_DATE=" + stamp, "GIT_COMMITTER_DATE=" + stamp}
	Git(t, r.Dir, env, "commit", "-q", "--allow-empty", "-m", message)
	return strings.TrimSpace(Git(t, r.Dir, nil, "rev-parse", "HEAD"))
}

// Git runs git in dir with a fixed identity and fails the test on error.
func Git(t testing.TB, dir string, env []string, args ...string) string {
	t.Helper()
	full := append([]string{"-c", "user.name=gittest", "-c", "user.email=gittest@example.com", "-c", "commit.gpgsign=false"}, args...)
	cmd := exec.Command("git", full...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), env...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("git %s: %v\n%s", strings.Join(args, " "), err, out)
	}
	return string(out)
}
