package grading

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"
)

// PluginFuncName is the function a score plugin must define.
const PluginFuncName = "Score"

// ScoreFunc reports earned and possible points for one run's stdout.
type ScoreFunc func(stdout string) (earned, possible float64, err error)

// PluginScorer scores output with a Go source file interpreted at startup:
//
//	package main
//
//	func Score(stdout string) (float64, float64, error) { ... }
//
// The fraction is scaled to MaxPoints like a Total line would be.
type PluginScorer struct {
	Path      string
	MaxPoints float64

	mu sync.Mutex
	fn ScoreFunc
}

// LoadPlugin interprets the source at path and binds its Score function.
func LoadPlugin(path string, maxPoints float64) (*PluginScorer, error) {
	code, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("grading: read plugin %s: %w", path, err)
	}
	if len(strings.TrimSpace(string(code))) == 0 {
		return nil, fmt.Errorf("grading: plugin %s is empty", path)
	}
	i := interp.New(interp.Options{})
	if err := i.Use(stdlib.Symbols); err != nil {
		return nil, fmt.Errorf("grading: plugin %s: load stdlib: %w", path, err)
	}
	if _, err := i.EvalPath(path); err != nil {
		return nil, fmt.Errorf("grading: interpret plugin %s: %w", path, err)
	}
	v, err := i.Eval(PluginFuncName)
	if err != nil {
		return nil, fmt.Errorf("grading: plugin %s must define %s(string) (float64, float64, error): %w", path, PluginFuncName, err)
	}
	fn, ok := v.Interface().(func(string) (float64, float64, error))
	if !ok {
		return nil, fmt.Errorf("grading: plugin %s: %s has type %s, want func(string) (float64, float64, error)", path, PluginFuncName, v.Type())
	}
	return &PluginScorer{Path: path, MaxPoints: maxPoints, fn: fn}, nil
}

// Score calls the plugin. Calls are serialized since the interpreter is
// shared by every worker.
func (p *PluginScorer) Score(stdout string) (score float64, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	defer func() {
		if r := recover(); r != nil {
			err = &ExtractionError{Reason: fmt.Sprintf("plugin %s panicked: %v", p.Path, r)}
		}
	}()
	earned, possible, err := p.fn(stdout)
	if err != nil {
		return 0, &ExtractionError{Reason: fmt.Sprintf("plugin %s: %v", p.Path, err)}
	}
	if possible == 0 {
		return 0, &ExtractionError{Reason: "denominator is zero"}
	}
	return Round2(earned / possible * p.MaxPoints), nil
}
