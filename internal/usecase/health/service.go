// Package health reports whether the engine's backends are reachable.
package health

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"
)

// Status is the overall verdict.
type Status string

const (
	Healthy  Status = "ok"
	Degraded Status = "degraded"
)

// CheckResult is one component's verdict.
type CheckResult string

const (
	CheckOK    CheckResult = "ok"
	CheckError CheckResult = "error"
	// CheckEmpty means nothing is indexed yet. It does not degrade the status.
	CheckEmpty CheckResult = "empty"
)

// DefaultTimeout bounds each probe.
const DefaultTimeout = 3 * time.Second

// Report aggregates the checks.
type Report struct {
	Status Status
	Checks map[string]CheckResult
}

type probe struct {
	name string
	fn   func(context.Context) error
}

// Option adds a component to check.
type Option func(*Service)

// WithCache pings the cache store.
func WithCache(p DBPinger) Option {
	return func(s *Service) { s.probes = append(s.probes, probe{"cache", p.Ping}) }
}

// WithEmbedding checks the embedding provider.
func WithEmbedding(c BackendChecker) Option {
	return func(s *Service) { s.probes = append(s.probes, probe{"embedding", c.HealthCheck}) }
}

// WithGeneration checks the generation backend.
func WithGeneration(c BackendChecker) Option {
	return func(s *Service) { s.probes = append(s.probes, probe{"generation", c.HealthCheck}) }
}

// WithIndex reports whether a folder has been ingested.
func WithIndex(r IndexReporter) Option {
	return func(s *Service) { s.index = r }
}

// WithTimeout overrides DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(s *Service) { s.timeout = d }
}

// Service runs the configured probes.
type Service struct {
	probes  []probe
	index   IndexReporter
	timeout time.Duration
}

// New creates a Service. Components without an option are not checked.
func New(opts ...Option) *Service {
	s := &Service{timeout: DefaultTimeout}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Check runs every probe in parallel, each under its own timeout. A probe
// that fails or times out marks its component as an error.
func (s *Service) Check(ctx context.Context) Report {
	results := make([]CheckResult, len(s.probes))
	var g errgroup.Group
	for i, p := range s.probes {
		g.Go(func() error {
			pctx, cancel := context.WithTimeout(ctx, s.timeout)
			defer cancel()
			results[i] = CheckOK
			if err := p.fn(pctx); err != nil {
				results[i] = CheckError
			}
			return nil
		})
	}
	_ = g.Wait()

	checks := make(map[string]CheckResult, len(s.probes)+1)
	status := Healthy
	for i, p := range s.probes {
		checks[p.name] = results[i]
		if results[i] == CheckError {
			status = Degraded
		}
	}
	if s.index != nil {
		checks["index"] = CheckEmpty
		if s.index.Indexed() {
			checks["index"] = CheckOK
		}
	}
	return Report{Status: status, Checks: checks}
}
