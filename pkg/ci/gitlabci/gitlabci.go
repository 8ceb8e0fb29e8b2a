// Package gitlabci implements the continuous-integration capability
// interface on top of a GitLab instance. There is no separate build server:
// the pipeline definition is committed into the participant's repository and
// the instance runs it on push, so most lifecycle operations reduce to
// repository content and project settings.
package gitlabci

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/edulab/cibridge/pkg/buildscript"
	"github.com/edulab/cibridge/pkg/ci"
	"github.com/edulab/cibridge/pkg/vcs"
)

const backendName = "gitlabci"

// Service talks to one GitLab instance. The repository store commits the
// generated pipeline definitions, it is required for this backend.
type Service struct {
	client    *Client
	cfg       *Config
	assembler *buildscript.Assembler
	repos     vcs.RepositoryStore
	features  ci.FeatureMatrix
}

// New creates the GitLab CI backend.
func New(cfg *Config, assembler *buildscript.Assembler, repos vcs.RepositoryStore) *Service {
	return &Service{
		client:    NewClient(cfg),
		cfg:       cfg,
		assembler: assembler,
		repos:     repos,
		features:  defaultFeatures(),
	}
}

// Name implements ci.ContinuousIntegration.
func (s *Service) Name() string { return backendName }

// Features implements ci.ContinuousIntegration.
func (s *Service) Features() ci.FeatureMatrix { return s.features }

// Health probes the version endpoint.
func (s *Service) Health(ctx context.Context) ci.Health {
	health := ci.Health{URL: s.cfg.URL, AdditionalInfo: map[string]string{"url": s.cfg.URL}}
	var version struct {
		Version string `json:"version"`
	}
	if err := s.client.getJSON(ctx, "/version", &version); err != nil {
		slog.Warn("GitLab health check failed", "url", s.cfg.URL, "error", err)
		return health
	}
	health.Up = true
	health.AdditionalInfo["version"] = version.Version
	return health
}

// WebHookURL implements ci.ContinuousIntegration. VCS and CI share the same
// instance, the pipeline webhook is configured on the repository itself.
func (s *Service) WebHookURL(projectKey, planKey string) string {
	return ""
}

// repoPathFor maps a derived plan key onto the repository that carries its
// pipeline definition. Repositories follow the platform's slug convention,
// the lower-cased plan key inside the lower-cased project namespace.
func repoPathFor(projectKey, planKey string) string {
	return projectPath(strings.ToLower(projectKey), strings.ToLower(planKey))
}

// ProjectExists reports whether the namespace is already taken.
func (s *Service) ProjectExists(ctx context.Context, projectKey, projectName string) (string, error) {
	var group struct {
		Path string `json:"path"`
	}
	err := s.client.getJSON(ctx, "/groups/"+strings.ToLower(projectKey), &group)
	if err == nil {
		return fmt.Sprintf("Project %s already exists on the CI server. Please choose a different title and short name.", projectKey), nil
	}
	if ci.IsNotFound(err) {
		return "", nil
	}
	return "", err
}

// CreateBuildPlan assembles the pipeline, commits its definition into the
// repository and configures the project's CI variables. The plan exists as
// soon as the definition file does.
func (s *Service) CreateBuildPlan(ctx context.Context, exercise *ci.Exercise, planKey string, repositorySlug string) error {
	if err := exercise.Validate(); err != nil {
		return err
	}
	pipeline, err := s.assembler.Assemble(buildscript.Options{
		Language:           exercise.Language,
		ProjectType:        exercise.ProjectType,
		PackageName:        exercise.PackageName,
		SequentialRuns:     exercise.SequentialTestRuns,
		StaticCodeAnalysis: exercise.StaticCodeAnalysis,
		TestwiseCoverage:   exercise.TestwiseCoverage,
	})
	if err != nil {
		return err
	}

	definition, err := RenderPipeline(pipeline, buildImage(exercise.Language, exercise.ProjectType))
	if err != nil {
		return err
	}
	if err := s.repos.CommitFile(exercise.ProjectKey, repositorySlug, PipelineFileName, definition, "Set up build pipeline"); err != nil {
		return fmt.Errorf("committing pipeline definition to %s/%s: %w", exercise.ProjectKey, repositorySlug, err)
	}

	path := "/projects/" + projectPath(strings.ToLower(exercise.ProjectKey), strings.ToLower(repositorySlug))
	variables := map[string]string{
		"NOTIFICATION_URL": strings.TrimSuffix(s.cfg.WebHookBase, "/") + "/api/webhooks/gitlabci/results",
		"TEST_REPOSITORY":  strings.ToLower(exercise.TestRepositorySlug),
	}
	for key, value := range variables {
		payload := map[string]string{"key": key, "value": value}
		if err := s.client.send(ctx, "POST", path+"/variables", payload); err != nil {
			// An already defined variable is updated instead.
			if updateErr := s.client.send(ctx, "PUT", path+"/variables/"+key, payload); updateErr != nil {
				return fmt.Errorf("setting CI variable %s on %s: %w", key, repositorySlug, updateErr)
			}
		}
	}
	slog.Info("Created build plan", "project", exercise.ProjectKey, "repository", repositorySlug)
	return nil
}

// CopyBuildPlan derives the target key and returns it. The pipeline
// definition travels inside the repository when the participant's copy is
// forked, there is nothing to clone on the CI side, which also makes the
// operation trivially idempotent.
func (s *Service) CopyBuildPlan(ctx context.Context, sourceProjectKey, sourcePlanName, targetProjectKey, targetProjectName, targetPlanName string, targetProjectExists bool) (string, error) {
	return targetProjectKey + "-" + ci.CleanPlanName(targetPlanName), nil
}

// ConfigureBuildPlan points the repository's notification variable at the
// participation and enables pipelines on the project.
func (s *Service) ConfigureBuildPlan(ctx context.Context, participation *ci.Participation) error {
	projectKey := ci.PlanProjectKey(participation.BuildPlanID)
	path := "/projects/" + projectPath(strings.ToLower(projectKey), strings.ToLower(participation.RepositorySlug))
	payload := map[string]string{"builds_access_level": "private"}
	if err := s.client.send(ctx, "PUT", path, payload); err != nil {
		return fmt.Errorf("enabling pipelines on %s: %w", participation.RepositorySlug, err)
	}
	return nil
}

// EnablePlan implements ci.ContinuousIntegration. Pipelines run on push as
// soon as the definition file exists, there is no separate enabled flag.
func (s *Service) EnablePlan(ctx context.Context, projectKey, planKey string) error {
	return nil
}

// TriggerBuild starts a pipeline on the participation's branch.
func (s *Service) TriggerBuild(ctx context.Context, participation *ci.Participation) error {
	projectKey := ci.PlanProjectKey(participation.BuildPlanID)
	branch := participation.Branch
	if branch == "" {
		branch = "main"
	}
	path := "/projects/" + projectPath(strings.ToLower(projectKey), strings.ToLower(participation.RepositorySlug)) + "/pipeline"
	if err := s.client.send(ctx, "POST", path, map[string]string{"ref": branch}); err != nil {
		return fmt.Errorf("triggering pipeline of %s: %w", participation.RepositorySlug, err)
	}
	return nil
}

// DeleteBuildPlan implements ci.ContinuousIntegration. The definition lives
// inside the repository and disappears with it, there is no CI-side plan to
// remove.
func (s *Service) DeleteBuildPlan(ctx context.Context, projectKey, planKey string) error {
	slog.Debug("Build plan lives in the repository, nothing to delete", "plan", planKey)
	return nil
}

// DeleteProject implements ci.ContinuousIntegration. The namespace is owned
// by the VCS collaborator, the CI side holds no separate project container.
func (s *Service) DeleteProject(ctx context.Context, projectKey string) error {
	slog.Debug("Project is owned by the VCS, nothing to delete", "project", projectKey)
	return nil
}

// BuildPlanExists reports whether the repository behind the plan key exists.
func (s *Service) BuildPlanExists(ctx context.Context, projectKey, planKey string) (bool, error) {
	err := s.client.getJSON(ctx, "/projects/"+repoPathFor(projectKey, planKey), nil)
	if err == nil {
		return true, nil
	}
	if ci.IsNotFound(err) {
		return false, nil
	}
	return false, err
}

// BuildStatus derives the 3-state status from the latest pipeline.
func (s *Service) BuildStatus(projectKey, planKey string) (ci.BuildStatus, error) {
	var pipelines []struct {
		Status string `json:"status"`
	}
	path := "/projects/" + repoPathFor(projectKey, planKey) + "/pipelines?per_page=1"
	if err := s.client.getJSON(context.Background(), path, &pipelines); err != nil || len(pipelines) == 0 {
		return ci.StatusInactive, nil
	}
	switch pipelines[0].Status {
	case "created", "pending", "waiting_for_resource", "preparing":
		return ci.StatusQueued, nil
	case "running":
		return ci.StatusBuilding, nil
	default:
		return ci.StatusInactive, nil
	}
}

// GivePlanPermissions implements ci.ContinuousIntegration. Access follows
// the repository membership the VCS collaborator manages, there are no
// separate plan permissions.
func (s *Service) GivePlanPermissions(ctx context.Context, exercise *ci.Exercise, planKey string) error {
	return nil
}

// GiveProjectPermissions implements ci.ContinuousIntegration. See
// GivePlanPermissions.
func (s *Service) GiveProjectPermissions(ctx context.Context, projectKey string, groups ci.CourseGroups) error {
	return nil
}

// RemoveAllDefaultProjectPermissions implements ci.ContinuousIntegration.
// Repository visibility already defaults to private.
func (s *Service) RemoveAllDefaultProjectPermissions(ctx context.Context, projectKey string) error {
	return nil
}

// buildImage picks the container image the generated jobs run in.
func buildImage(language ci.Language, projectType ci.ProjectType) string {
	switch language {
	case ci.Java, ci.Kotlin:
		if projectType == ci.ProjectTypeGradle {
			return "gradle:8-jdk21"
		}
		return "maven:3-eclipse-temurin-21"
	case ci.Python:
		return "python:3.12"
	case ci.C:
		return "gcc:13"
	case ci.Haskell:
		return "haskell:9"
	default:
		return "ubuntu:24.04"
	}
}

// defaultFeatures is the capability matrix of the GitLab CI backend.
func defaultFeatures() ci.FeatureMatrix {
	return ci.FeatureMatrix{
		ci.Java: {
			Language:            ci.Java,
			PlagiarismCheck:     true,
			PackageNameRequired: true,
			ProjectTypes:        []ci.ProjectType{ci.ProjectTypeMaven, ci.ProjectTypeGradle},
		},
		ci.Python: {
			Language:        ci.Python,
			PlagiarismCheck: true,
		},
		ci.C: {
			Language:        ci.C,
			PlagiarismCheck: true,
			ProjectTypes:    []ci.ProjectType{ci.ProjectTypeGCC},
		},
		ci.Empty: {
			Language: ci.Empty,
		},
	}
}
