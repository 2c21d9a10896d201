// Package feedback publishes grading output back to a student's repository
// as a single-commit orphan branch.
package feedback

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/kingrea/marker/internal/git"
	"github.com/kingrea/marker/internal/logbook"
)

const (
	DefaultBranch = "feedback"
	DefaultFile   = "README.md"

	commitMessage = "Grading feedback"
)

// Publisher writes feedback into a clone and force-pushes it.
type Publisher struct {
	Branch      string
	File        string
	AuthorName  string
	AuthorEmail string
	Remote      string
	Logger      logbook.Logger
}

// Render wraps script output in the fenced block stored on the branch.
func Render(stdout string) string {
	var b strings.Builder
	b.WriteString("```diff\n")
	b.WriteString(stdout)
	if stdout != "" && !strings.HasSuffix(stdout, "\n") {
		b.WriteString("\n")
	}
	b.WriteString("```\n")
	return b.String()
}

// Publish replaces the clone at dir with an orphan branch holding only the
// feedback file, commits it and force-pushes over any earlier feedback. The
// returned reference points readers at the published branch.
func (p Publisher) Publish(ctx context.Context, runner git.Runner, dir, repoURL, stdout string) (string, error) {
	branch := p.branch()
	file := p.file()
	remote := p.Remote
	if remote == "" {
		remote = "origin"
	}
	logger := logbook.OrDiscard(p.Logger)

	if _, err := runner.Run(ctx, dir, "checkout", "--quiet", "--orphan", branch); err != nil {
		return "", err
	}
	if _, err := runner.Run(ctx, dir, "rm", "-r", "-f", "-q", "--cached", "--ignore-unmatch", "."); err != nil {
		return "", err
	}
	path := filepath.Join(dir, file)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("feedback: ensure dir for %s: %w", file, err)
	}
	if err := os.WriteFile(path, []byte(Render(stdout)), 0o644); err != nil {
		return "", fmt.Errorf("feedback: write %s: %w", file, err)
	}
	if _, err := runner.Run(ctx, dir, "add", "--force", "--", file); err != nil {
		return "", err
	}
	name, email := p.AuthorName, p.AuthorEmail
	if name == "" {
		name = "marker"
	}
	if email == "" {
		email = "marker@localhost"
	}
	commit := []string{
		"-c", "user.name=" + name,
		"-c", "user.email=" + email,
		"-c", "commit.gpgsign=false",
		"commit", "--quiet", "--no-verify", "-m", commitMessage,
	}
	if _, err := runner.Run(ctx, dir, commit...); err != nil {
		return "", err
	}
	if _, err := runner.Run(ctx, dir, "push", "--quiet", "--force", remote, branch+":"+branch); err != nil {
		return "", err
	}
	ref := Reference(repoURL, branch)
	logger.Infof("Published feedback to %s", ref)
	return ref, nil
}

// Reference builds a human-facing pointer to branch in repoURL. Web URLs get a
// tree link; anything else falls back to the branch name.
func Reference(repoURL, branch string) string {
	u := strings.TrimSpace(repoURL)
	if strings.HasPrefix(u, "https://") || strings.HasPrefix(u, "http://") {
		u = strings.TrimSuffix(strings.TrimSuffix(u, "/"), ".git")
		return u + "/tree/" + branch
	}
	return branch
}

func (p Publisher) branch() string {
	if b := strings.TrimSpace(p.Branch); b != "" {
		return b
	}
	return DefaultBranch
}

func (p Publisher) file() string {
	if f := strings.TrimSpace(p.File); f != "" {
		return f
	}
	return DefaultFile
}
