// Package toolchain locates the TeX tools on the host and drives them against
// a materialized workspace under a deadline.
package toolchain

import (
	"bufio"
	"context"
	"os/exec"
	"strings"
	"time"
)

// DefaultProbeTimeout bounds a single executable lookup.
const DefaultProbeTimeout = 3 * time.Second

// Default tool names.
const (
	DefaultFullBuild = "latexmk"
	DefaultEngine    = "pdflatex"
)

// Tools names the executables to look for.
type Tools struct {
	FullBuild string // Multi-pass driver, e.g. latexmk
	Engine    string // Single-pass engine, e.g. pdflatex
}

// withDefaults fills empty names.
func (t Tools) withDefaults() Tools {
	if t.FullBuild == "" {
		t.FullBuild = DefaultFullBuild
	}
	if t.Engine == "" {
		t.Engine = DefaultEngine
	}
	return t
}

// Availability holds resolved executable paths. Empty means absent.
type Availability struct {
	FullBuild  string `json:"full_build,omitempty"`
	SinglePass string `json:"single_pass,omitempty"`
}

// Any reports whether at least one tool can compile.
func (a Availability) Any() bool {
	return a.FullBuild != "" || a.SinglePass != ""
}

// Prober resolves executables with a bounded lookup.
// The zero value uses exec.LookPath and DefaultProbeTimeout.
type Prober struct {
	LookPath func(file string) (string, error)
	Timeout  time.Duration
}

// Find resolves name. Any lookup error, an empty result, or a lookup that
// outlives the timeout counts as absent.
func (p *Prober) Find(ctx context.Context, name string) (string, bool) {
	if name == "" {
		return "", false
	}

	lookPath := exec.LookPath
	timeout := DefaultProbeTimeout
	if p != nil {
		if p.LookPath != nil {
			lookPath = p.LookPath
		}
		if p.Timeout > 0 {
			timeout = p.Timeout
		}
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		path string
		err  error
	}
	// Buffered so an abandoned lookup does not leak its goroutine on send.
	ch := make(chan result, 1)
	go func() {
		path, err := lookPath(name)
		ch <- result{path, err}
	}()

	select {
	case r := <-ch:
		if r.err != nil || r.path == "" {
			return "", false
		}
		return r.path, true
	case <-ctx.Done():
		return "", false
	}
}

// Probe resolves both tools.
func (p *Prober) Probe(ctx context.Context, tools Tools) Availability {
	tools = tools.withDefaults()
	var a Availability
	a.FullBuild, _ = p.Find(ctx, tools.FullBuild)
	a.SinglePass, _ = p.Find(ctx, tools.Engine)
	return a
}

// Version returns the first line of "<path> --version", or "" on any failure.
func (p *Prober) Version(ctx context.Context, path string) string {
	timeout := DefaultProbeTimeout
	if p != nil && p.Timeout > 0 {
		timeout = p.Timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// #nosec G204 -- path comes from a LookPath result, not user input
	out, err := exec.CommandContext(ctx, path, "--version").Output()
	if err != nil {
		return ""
	}
	sc := bufio.NewScanner(strings.NewReader(string(out)))
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			return line
		}
	}
	return ""
}
