// Package deadline turns an optional due date into a cutoff instant and finds
// the newest commit on a branch that predates it.
package deadline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kingrea/marker/internal/git"
)

// DateLayout is the accepted deadline format.
const DateLayout = "2006-01-02"

// gitDateLayout is a form git's date parser accepts unambiguously.
const gitDateLayout = "2006-01-02 15:04:05 -0700"

// ErrNoCommit reports that the branch has no commit before the cutoff. It is
// an outcome, not a failure.
var ErrNoCommit = errors.New("no commit before deadline")

// Cutoff returns the instant commits must predate. An empty date yields now;
// otherwise the cutoff is midnight at the start of the following day in loc,
// so the whole due date counts.
func Cutoff(date string, now time.Time, loc *time.Location) (time.Time, error) {
	date = strings.TrimSpace(date)
	if date == "" {
		return now, nil
	}
	if loc == nil {
		loc = time.Local
	}
	day, err := time.ParseInLocation(DateLayout, date, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("deadline %q must be YYYY-MM-DD: %w", date, err)
	}
	return day.AddDate(0, 0, 1), nil
}

// Resolver locates qualifying commits in a cloned repository.
type Resolver struct {
	Branch string
	Cutoff time.Time
	// Remote prefixes the branch; clones only carry remote-tracking refs for
	// non-default branches. Empty means "origin".
	Remote string
}

// Resolve returns the most recent commit on the branch older than the cutoff.
// It returns ErrNoCommit when none qualifies and *git.Error when the lookup
// itself fails.
func (r Resolver) Resolve(ctx context.Context, runner git.Runner, dir string) (string, error) {
	out, err := runner.Run(ctx, dir,
		"rev-list", "-n", "1",
		"--before="+r.before(),
		r.ref(),
		"--",
	)
	if err != nil {
		return "", err
	}
	commit := strings.TrimSpace(out)
	if commit == "" {
		return "", ErrNoCommit
	}
	return commit, nil
}

// before renders the cutoff for --before, which is inclusive at one-second
// resolution. Only commits strictly older than the cutoff qualify.
func (r Resolver) before() string {
	cutoff := r.Cutoff
	if cutoff.Equal(cutoff.Truncate(time.Second)) {
		cutoff = cutoff.Add(-time.Second)
	}
	return cutoff.Format(gitDateLayout)
}

func (r Resolver) ref() string {
	remote := r.Remote
	if remote == "" {
		remote = "origin"
	}
	return remote + "/" + r.Branch
}
