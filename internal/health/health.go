// Package health aggregates dependency probes for the readiness endpoint.
package health

import (
	"context"
	"errors"
	"time"
)

// Probe reports whether one dependency is usable.
type Probe func(ctx context.Context) error

type check struct {
	name     string
	probe    Probe
	critical bool
}

// Checker runs named probes concurrently.  The service is ready when every
// critical probe passes; non-critical probes are reported only.
type Checker struct {
	timeout time.Duration
	checks  []check
}

// NewChecker returns a Checker that gives each probe at most timeout.
func NewChecker(timeout time.Duration) *Checker {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Checker{timeout: timeout}
}

// Add registers a probe.  It returns c for chaining.
func (c *Checker) Add(name string, probe Probe, critical bool) *Checker {
	c.checks = append(c.checks, check{name: name, probe: probe, critical: critical})
	return c
}

// Report is the outcome of one Check.
type Report struct {
	Ready  bool
	Status map[string]bool
}

// Check runs all probes.  It returns by the checker's timeout even when a
// probe ignores its context; probes still running then report false.
func (c *Checker) Check(ctx context.Context) Report {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	type result struct {
		i  int
		ok bool
	}
	done := make(chan result, len(c.checks))
	for i, ch := range c.checks {
		go func() { done <- result{i, ch.probe(ctx) == nil} }()
	}

	results := make([]bool, len(c.checks))
collect:
	for range c.checks {
		select {
		case res := <-done:
			results[res.i] = res.ok
		case <-ctx.Done():
			break collect
		}
	}

	r := Report{Ready: true, Status: make(map[string]bool, len(c.checks))}
	for i, ch := range c.checks {
		r.Status[ch.name] = results[i]
		if ch.critical && !results[i] {
			r.Ready = false
		}
	}
	return r
}

// ReadyFunc adapts a boolean readiness flag to a Probe.
func ReadyFunc(ready func() bool) Probe {
	return func(context.Context) error {
		if !ready() {
			return errNotReady
		}
		return nil
	}
}

var errNotReady = errors.New("not ready")
