// Package health runs diagnostic checks against the configured CI backends
// and their collaborators. The checks report findings as values, the check
// command turns them into an exit code.
package health

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/edulab/cibridge/pkg/ci"
	"github.com/edulab/cibridge/pkg/vcs"
)

// Doctor coordinates diagnostic checks
type Doctor struct {
	checks []CheckRunner
	opts   Options
}

// Options configures doctor behavior
type Options struct {
	Categories []CheckCategory
	Verbose    bool
	JSONOutput bool
	Parallel   bool
}

// NewDoctor creates a doctor probing the given backends and repository
// store. Repos may be nil when no version-control collaborator is
// configured.
func NewDoctor(opts Options, registry *ci.Registry, repos vcs.RepositoryStore) *Doctor {
	d := &Doctor{opts: opts}
	for _, backend := range registry.All() {
		d.RegisterCheck(newBackendCheck(backend))
	}
	if repos != nil {
		d.RegisterCheck(newRepoStoreCheck(repos))
	}
	return d
}

// RegisterCheck adds a check to the doctor
func (d *Doctor) RegisterCheck(check CheckRunner) {
	d.checks = append(d.checks, check)
}

// RunChecks executes all applicable checks
func (d *Doctor) RunChecks(ctx context.Context) []CheckResult {
	applicable := d.filterChecks()
	if d.opts.Parallel {
		return d.runParallel(ctx, applicable)
	}
	return d.runSequential(ctx, applicable)
}

func (d *Doctor) filterChecks() []CheckRunner {
	filtered := make([]CheckRunner, 0, len(d.checks))
	for _, runner := range d.checks {
		check := runner.GetCheck()
		if len(d.opts.Categories) > 0 {
			found := false
			for _, cat := range d.opts.Categories {
				if check.Category == cat {
					found = true
					break
				}
			}
			if !found {
				continue
			}
		}
		if !check.ShouldRun {
			continue
		}
		filtered = append(filtered, runner)
	}
	return filtered
}

func (d *Doctor) runSequential(ctx context.Context, checks []CheckRunner) []CheckResult {
	results := make([]CheckResult, 0, len(checks))
	for _, runner := range checks {
		results = append(results, runner.Run(ctx))
	}
	return results
}

func (d *Doctor) runParallel(ctx context.Context, checks []CheckRunner) []CheckResult {
	results := make([]CheckResult, 0, len(checks))
	resultsMu := sync.Mutex{}

	var wg sync.WaitGroup
	for _, runner := range checks {
		wg.Add(1)
		go func(r CheckRunner) {
			defer wg.Done()
			result := r.Run(ctx)

			resultsMu.Lock()
			results = append(results, result)
			resultsMu.Unlock()
		}(runner)
	}
	wg.Wait()

	// Sort by category and name for consistent output
	sort.Slice(results, func(i, j int) bool {
		if results[i].Category != results[j].Category {
			return results[i].Category < results[j].Category
		}
		return results[i].CheckName < results[j].CheckName
	})
	return results
}

// backendCheck probes one CI backend's health endpoint.
type backendCheck struct {
	Check
	backend ci.ContinuousIntegration
}

func newBackendCheck(backend ci.ContinuousIntegration) *backendCheck {
	return &backendCheck{
		Check: Check{
			Name:      fmt.Sprintf("Backend %q reachable", backend.Name()),
			Category:  CategoryBackend,
			Severity:  SeverityCritical,
			ShouldRun: true,
		},
		backend: backend,
	}
}

func (c *backendCheck) Run(ctx context.Context) CheckResult {
	result := c.NewCheckResult()
	health := c.backend.Health(ctx)
	for key, value := range health.AdditionalInfo {
		result.Metadata[key] = value
	}
	if health.Up {
		result.Status = StatusPass
		result.Message = "Backend answered the health probe"
		return result
	}
	result.Status = StatusFail
	result.Message = "Backend did not answer the health probe"
	if health.URL != "" {
		result.Details = append(result.Details, "URL: "+health.URL)
	}
	result.Suggestions = append(result.Suggestions,
		"Check that the CI server is running and reachable from this host",
		"Verify the configured credentials")
	return result
}

// repoStoreCheck probes the version-control collaborator.
type repoStoreCheck struct {
	Check
	repos vcs.RepositoryStore
}

func newRepoStoreCheck(repos vcs.RepositoryStore) *repoStoreCheck {
	return &repoStoreCheck{
		Check: Check{
			Name:      "Repository store reachable",
			Category:  CategoryVCS,
			Severity:  SeverityWarning,
			ShouldRun: true,
		},
		repos: repos,
	}
}

func (c *repoStoreCheck) Run(ctx context.Context) CheckResult {
	result := c.NewCheckResult()
	// Probing a project that cannot exist exercises the connection without
	// touching real data.
	if _, err := c.repos.ProjectExists("__healthcheck__"); err != nil {
		result.Status = StatusFail
		result.Error = err
		result.Message = "Repository store probe failed"
		result.Suggestions = append(result.Suggestions, "Check the version-control configuration")
		return result
	}
	result.Status = StatusPass
	result.Message = "Repository store answered the probe"
	return result
}
