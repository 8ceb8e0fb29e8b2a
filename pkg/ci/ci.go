// Package ci defines the capability interface every continuous-integration
// backend implements and the value types shared between them. The rest of
// the platform only ever talks to a backend through this interface, the
// providers own their authentication schemes and endpoint shapes.
package ci

import (
	"context"

	"github.com/edulab/cibridge/pkg/result"
)

// Health is the outcome of a backend health probe. Probes never fail with an
// error, a backend that cannot be reached reports Up=false.
type Health struct {
	Up             bool
	URL            string
	AdditionalInfo map[string]string
}

// ContinuousIntegration is the capability interface of one CI backend.
//
// Mutating operations surface a ConnectorError when the backend cannot be
// reached. Read-only queries degrade: existence checks report absence,
// status checks report INACTIVE, health reports down.
type ContinuousIntegration interface {
	// Name returns the registry name of the backend, e.g. "bamboo".
	Name() string

	// CreateBuildPlan assembles the task pipeline for the exercise and
	// publishes a new plan including its permissions. A template load
	// failure or a rejected definition aborts exercise creation.
	CreateBuildPlan(ctx context.Context, exercise *Exercise, planKey string, repositorySlug string) error

	// CopyBuildPlan clones the source plan to the target key. The call is
	// idempotent: when the derived target plan already exists it is returned
	// as-is without cloning. An "already exists" rejection from the clone
	// primitive after the existence check found nothing is a genuine failure
	// (a concurrent race) and is surfaced, not swallowed.
	CopyBuildPlan(ctx context.Context, sourceProjectKey, sourcePlanName, targetProjectKey, targetProjectName, targetPlanName string, targetProjectExists bool) (string, error)

	// ConfigureBuildPlan rewires the participant's plan to their repository,
	// enables it, and grants read access to the participants when the
	// exercise publishes its build plan URL for a course (non-exam)
	// participation.
	ConfigureBuildPlan(ctx context.Context, participation *Participation) error

	// DeleteBuildPlan removes a plan. A plan that is already gone counts as
	// success.
	DeleteBuildPlan(ctx context.Context, projectKey, planKey string) error

	// DeleteProject removes all plans below a project and then the project
	// container itself. One failing plan deletion does not stop the others.
	DeleteProject(ctx context.Context, projectKey string) error

	// TriggerBuild enqueues a build of the participation's plan.
	TriggerBuild(ctx context.Context, participation *Participation) error

	// EnablePlan switches the plan to enabled so commits trigger builds.
	EnablePlan(ctx context.Context, projectKey, planKey string) error

	// BuildPlanExists reports whether the plan key exists on the backend.
	BuildPlanExists(ctx context.Context, projectKey, planKey string) (bool, error)

	// ProjectExists checks whether a project key or name is already taken
	// before creation. It returns a human-readable conflict description, or
	// an empty string when the key is free.
	ProjectExists(ctx context.Context, projectKey, projectName string) (string, error)

	// BuildStatus derives the 3-state status of a plan. A plan the backend
	// does not know is INACTIVE.
	BuildStatus(projectKey, planKey string) (BuildStatus, error)

	// Health probes the backend. It never returns an error.
	Health(ctx context.Context) Health

	// WebHookURL returns the URL the backend should push completion
	// notifications to, or an empty string when the backend needs no webhook
	// bridge because VCS and CI share infrastructure.
	WebHookURL(projectKey, planKey string) string

	// GivePlanPermissions publishes the assembled permission set of a plan.
	GivePlanPermissions(ctx context.Context, exercise *Exercise, planKey string) error

	// GiveProjectPermissions grants the course groups access to the whole
	// project. A failing grant for one group is logged, the remaining grants
	// still run.
	GiveProjectPermissions(ctx context.Context, projectKey string, groups CourseGroups) error

	// RemoveAllDefaultProjectPermissions drops the backend's default
	// anonymous/logged-in read access from a project.
	RemoveAllDefaultProjectPermissions(ctx context.Context, projectKey string) error

	// ParseResult parses the backend's completion payload into its native
	// build shape. Normalization into the canonical result happens in
	// pkg/result.
	ParseResult(payload []byte) (*result.NativeBuild, error)

	// Features returns the language capability matrix of the backend.
	Features() FeatureMatrix
}
