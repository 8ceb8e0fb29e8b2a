// Package consistency reconciles an exercise's expected remote artifacts
// with what actually exists on the version-control system and the CI
// backend. Discrepancies are reported as values, never as errors: a missing
// artifact is a finding, not a failure of the check.
package consistency

import (
	"context"
	"log/slog"

	"github.com/edulab/cibridge/pkg/ci"
	"github.com/edulab/cibridge/pkg/vcs"
)

// ErrorType names one kind of drift between expected and actual state.
type ErrorType string

const (
	VCSProjectMissing        ErrorType = "VCS_PROJECT_MISSING"
	TemplateRepoMissing      ErrorType = "TEMPLATE_REPO_MISSING"
	SolutionRepoMissing      ErrorType = "SOLUTION_REPO_MISSING"
	TestRepoMissing          ErrorType = "TEST_REPO_MISSING"
	TemplateBuildPlanMissing ErrorType = "TEMPLATE_BUILD_PLAN_MISSING"
	SolutionBuildPlanMissing ErrorType = "SOLUTION_BUILD_PLAN_MISSING"
)

// Error is one detected discrepancy. It is produced fresh on every check and
// never persisted.
type Error struct {
	ExerciseID int64     `json:"exerciseId"`
	Type       ErrorType `json:"type"`
}

// Checker runs the existence probes. Repos may be nil when no
// version-control collaborator is configured, the repository probes are
// skipped in that case.
type Checker struct {
	Backend ci.ContinuousIntegration
	Repos   vcs.RepositoryStore
}

// NewChecker creates a checker for one backend and repository store.
func NewChecker(backend ci.ContinuousIntegration, repos vcs.RepositoryStore) *Checker {
	return &Checker{Backend: backend, Repos: repos}
}

// Check probes all six artifacts of the exercise and returns the complete
// list of discrepancies. The probes are independent: the check never stops
// at the first missing artifact, and a probe that itself fails is treated as
// "absent" after logging, so one unreachable collaborator cannot hide the
// remaining findings.
func (c *Checker) Check(ctx context.Context, exercise *ci.Exercise) []Error {
	var found []Error
	report := func(errType ErrorType) {
		found = append(found, Error{ExerciseID: exercise.ID, Type: errType})
	}

	if c.Repos != nil {
		if !c.repoProbe(exercise, "", VCSProjectMissing) {
			report(VCSProjectMissing)
		}
		if !c.repoProbe(exercise, exercise.TemplateRepositorySlug, TemplateRepoMissing) {
			report(TemplateRepoMissing)
		}
		if !c.repoProbe(exercise, exercise.SolutionRepositorySlug, SolutionRepoMissing) {
			report(SolutionRepoMissing)
		}
		if !c.repoProbe(exercise, exercise.TestRepositorySlug, TestRepoMissing) {
			report(TestRepoMissing)
		}
	}

	if !c.planProbe(ctx, exercise, exercise.TemplatePlanID()) {
		report(TemplateBuildPlanMissing)
	}
	if !c.planProbe(ctx, exercise, exercise.SolutionPlanID()) {
		report(SolutionBuildPlanMissing)
	}
	return found
}

func (c *Checker) repoProbe(exercise *ci.Exercise, slug string, errType ErrorType) bool {
	var exists bool
	var err error
	if slug == "" {
		exists, err = c.Repos.ProjectExists(exercise.ProjectKey)
	} else {
		exists, err = c.Repos.RepositoryExists(exercise.ProjectKey, slug)
	}
	if err != nil {
		slog.Warn("Consistency probe failed, treating artifact as missing",
			"exercise", exercise.ID, "type", errType, "error", err)
		return false
	}
	return exists
}

func (c *Checker) planProbe(ctx context.Context, exercise *ci.Exercise, plan ci.PlanID) bool {
	exists, err := c.Backend.BuildPlanExists(ctx, plan.ProjectKey, plan.PlanKey)
	if err != nil {
		slog.Warn("Consistency probe failed, treating build plan as missing",
			"exercise", exercise.ID, "plan", plan.PlanKey, "error", err)
		return false
	}
	return exists
}
