// internal/config/config.go
//
// Run configuration for a grading batch. Values are layered: built-in
// defaults, then marker.yaml (or --config), then .env and MARKER_* environment
// variables, then command line flags. Finalize validates the result once and
// the Config is treated as immutable afterwards.

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/kingrea/marker/internal/deadline"
	"github.com/kingrea/marker/internal/feedback"
	"github.com/kingrea/marker/internal/grading"
)

const (
	// DefaultConfigFile is picked up from the working directory when present.
	DefaultConfigFile = "marker.yaml"
	DefaultOutput     = "grades.csv"
	DefaultBranch     = "main"

	defaultConcurrency = 1
	defaultGitName     = "marker"
	defaultGitEmail    = "marker@localhost"
)

// Error is a configuration problem. It is fatal before any grading starts.
type Error struct {
	Field string
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("config: %s: %v", e.Field, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func fieldError(field, format string, args ...any) error {
	return &Error{Field: field, Err: fmt.Errorf(format, args...)}
}

// FileConfig models marker.yaml.
type FileConfig struct {
	Branch         string  `yaml:"branch,omitempty"`
	FeedbackBranch string  `yaml:"feedback_branch,omitempty"`
	FeedbackFile   string  `yaml:"feedback_file,omitempty"`
	MaxPoints      float64 `yaml:"max_points,omitempty"`
	TimeoutSeconds float64 `yaml:"timeout,omitempty"`
	Concurrency    int     `yaml:"concurrency,omitempty"`
	WorkspaceRoot  string  `yaml:"workspace_root,omitempty"`
	GitUserName    string  `yaml:"git_user_name,omitempty"`
	GitUserEmail   string  `yaml:"git_user_email,omitempty"`
	LogFile        string  `yaml:"log_file,omitempty"`
	Deadline       string  `yaml:"deadline,omitempty"`
	ScorePlugin    string  `yaml:"score_plugin,omitempty"`
}

// Config holds everything one grading run needs.
type Config struct {
	RosterPath string
	ScriptPath string
	OutputPath string

	// Deadline is the raw YYYY-MM-DD value; Cutoff is derived from it once.
	Deadline string
	Cutoff   time.Time

	Branch         string
	FeedbackBranch string
	FeedbackFile   string
	MaxPoints      float64
	// ScorePlugin is an optional Go source file that replaces the Total line
	// parser.
	ScorePlugin string
	Timeout     time.Duration
	Publish     bool
	Concurrency int

	WorkspaceRoot string
	GitUserName   string
	GitUserEmail  string

	LogFile  string
	Verbose  bool
	Progress bool
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		OutputPath:     DefaultOutput,
		Branch:         DefaultBranch,
		FeedbackBranch: feedback.DefaultBranch,
		FeedbackFile:   feedback.DefaultFile,
		MaxPoints:      grading.DefaultMaxPoints,
		Timeout:        grading.DefaultTimeout,
		Concurrency:    defaultConcurrency,
		GitUserName:    defaultGitName,
		GitUserEmail:   defaultGitEmail,
	}
}

// LoadFile overlays a YAML file. When required is false a missing file is
// ignored, which is how the implicit marker.yaml lookup behaves.
func (c *Config) LoadFile(path string, required bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) && !required {
			return nil
		}
		return fieldError("config file", "read %s: %w", path, err)
	}
	var parsed FileConfig
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fieldError("config file", "parse %s: %w", path, err)
	}
	c.applyFile(parsed)
	return nil
}

func (c *Config) applyFile(f FileConfig) {
	setString(&c.Branch, f.Branch)
	setString(&c.FeedbackBranch, f.FeedbackBranch)
	setString(&c.FeedbackFile, f.FeedbackFile)
	setString(&c.WorkspaceRoot, f.WorkspaceRoot)
	setString(&c.GitUserName, f.GitUserName)
	setString(&c.GitUserEmail, f.GitUserEmail)
	setString(&c.LogFile, f.LogFile)
	setString(&c.Deadline, f.Deadline)
	setString(&c.ScorePlugin, f.ScorePlugin)
	if f.MaxPoints != 0 {
		c.MaxPoints = f.MaxPoints
	}
	if f.TimeoutSeconds != 0 {
		c.Timeout = Seconds(f.TimeoutSeconds)
	}
	if f.Concurrency != 0 {
		c.Concurrency = f.Concurrency
	}
}

// LoadDotEnv exports variables from path into the process environment without
// overriding values that are already set. A missing file is not an error.
func LoadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fieldError("env file", "stat %s: %w", path, err)
	}
	if err := godotenv.Load(path); err != nil {
		return fieldError("env file", "load %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overlays MARKER_* variables found through lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	get := func(key string) string {
		v, _ := lookup(key)
		return strings.TrimSpace(v)
	}
	setString(&c.Branch, get("MARKER_BRANCH"))
	setString(&c.FeedbackBranch, get("MARKER_FEEDBACK_BRANCH"))
	setString(&c.FeedbackFile, get("MARKER_FEEDBACK_FILE"))
	setString(&c.WorkspaceRoot, get("MARKER_WORKSPACE_ROOT"))
	setString(&c.LogFile, get("MARKER_LOG_FILE"))
	setString(&c.ScorePlugin, get("MARKER_SCORE_PLUGIN"))
	setString(&c.GitUserName, get("MARKER_GIT_USER_NAME"))
	setString(&c.GitUserEmail, get("MARKER_GIT_USER_EMAIL"))
	if v := get("MARKER_MAX_POINTS"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fieldError("MARKER_MAX_POINTS", "not a number: %q", v)
		}
		c.MaxPoints = f
	}
	if v := get("MARKER_TIMEOUT_SECONDS"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fieldError("MARKER_TIMEOUT_SECONDS", "not a number: %q", v)
		}
		c.Timeout = Seconds(f)
	}
	if v := get("MARKER_CONCURRENCY"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fieldError("MARKER_CONCURRENCY", "not an integer: %q", v)
		}
		c.Concurrency = n
	}
	return nil
}

// Finalize normalizes paths, checks every field and computes the deadline
// cutoff relative to now. It must run exactly once before grading starts.
func (c *Config) Finalize(now time.Time) error {
	c.normalize()
	if err := c.validate(); err != nil {
		return err
	}
	cutoff, err := deadline.Cutoff(c.Deadline, now, time.Local)
	if err != nil {
		return &Error{Field: "deadline", Err: err}
	}
	c.Cutoff = cutoff
	return nil
}

func (c *Config) normalize() {
	c.RosterPath = strings.TrimSpace(c.RosterPath)
	c.ScriptPath = strings.TrimSpace(c.ScriptPath)
	c.OutputPath = strings.TrimSpace(c.OutputPath)
	c.Deadline = strings.TrimSpace(c.Deadline)
	c.Branch = strings.TrimSpace(c.Branch)
	c.FeedbackBranch = strings.TrimSpace(c.FeedbackBranch)
	c.FeedbackFile = strings.TrimSpace(c.FeedbackFile)
	c.WorkspaceRoot = resolvePath(c.WorkspaceRoot)
	// The script runs with the workspace as its working directory, so a
	// relative path would resolve against the wrong place.
	c.ScriptPath = resolvePath(c.ScriptPath)
	c.ScorePlugin = resolvePath(c.ScorePlugin)
	if c.OutputPath == "" {
		c.OutputPath = DefaultOutput
	}
}

func (c *Config) validate() error {
	if err := requireFile("roster", c.RosterPath); err != nil {
		return err
	}
	if err := requireFile("script", c.ScriptPath); err != nil {
		return err
	}
	if c.ScorePlugin != "" {
		if err := requireFile("score plugin", c.ScorePlugin); err != nil {
			return err
		}
	}
	if c.Branch == "" {
		return fieldError("branch", "must not be empty")
	}
	if c.FeedbackBranch == "" {
		return fieldError("feedback branch", "must not be empty")
	}
	if c.FeedbackBranch == c.Branch {
		return fieldError("feedback branch", "%q is the graded branch; publishing would overwrite submissions", c.FeedbackBranch)
	}
	if c.FeedbackFile == "" {
		return fieldError("feedback file", "must not be empty")
	}
	if filepath.IsAbs(c.FeedbackFile) || strings.HasPrefix(filepath.Clean(c.FeedbackFile), "..") {
		return fieldError("feedback file", "%q must be relative to the repository root", c.FeedbackFile)
	}
	if c.MaxPoints <= 0 {
		return fieldError("max points", "must be > 0, got %v", c.MaxPoints)
	}
	if c.Timeout <= 0 {
		return fieldError("timeout", "must be > 0, got %s", c.Timeout)
	}
	if c.Concurrency < 1 {
		return fieldError("concurrency", "must be >= 1, got %d", c.Concurrency)
	}
	return nil
}

// Seconds converts a possibly fractional number of seconds to a Duration.
func Seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

func requireFile(field, path string) error {
	if path == "" {
		return fieldError(field, "path is required")
	}
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fieldError(field, "%s does not exist", path)
		}
		return fieldError(field, "stat %s: %w", path, err)
	}
	if info.IsDir() {
		return fieldError(field, "%s is a directory, expected a file", path)
	}
	return nil
}

func setString(dst *string, value string) {
	if v := strings.TrimSpace(value); v != "" {
		*dst = v
	}
}

func resolvePath(candidate string) string {
	trimmed := strings.TrimSpace(candidate)
	if trimmed == "" {
		return ""
	}
	abs, err := filepath.Abs(trimmed)
	if err != nil {
		return filepath.Clean(trimmed)
	}
	return abs
}
