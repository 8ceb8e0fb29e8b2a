// Package jenkins implements the continuous-integration capability interface
// for a Jenkins master. Every exercise project maps onto a folder, every
// build plan onto a pipeline job inside that folder, and the build script is
// embedded into the job configuration so no repository has to carry a
// pipeline file.
package jenkins

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/edulab/cibridge/pkg/buildscript"
	"github.com/edulab/cibridge/pkg/ci"
	"github.com/edulab/cibridge/pkg/vcs"
)

const backendName = "jenkins"

const assignmentCheckoutName = "assignment"

// Service talks to one Jenkins master.
type Service struct {
	client    *Client
	cfg       *Config
	assembler *buildscript.Assembler
	repos     vcs.RepositoryStore
	features  ci.FeatureMatrix
}

// New creates the Jenkins backend.
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

// Health probes the login page. Jenkins serves it without authentication, a
// reachable master answers 200.
func (s *Service) Health(ctx context.Context) ci.Health {
	health := ci.Health{URL: s.cfg.URL, AdditionalInfo: map[string]string{"url": s.cfg.URL}}
	if err := s.client.getJSON(ctx, "/login", nil); err != nil {
		slog.Warn("Jenkins health check failed", "url", s.cfg.URL, "error", err)
		return health
	}
	health.Up = true
	return health
}

// WebHookURL implements ci.ContinuousIntegration. The VCS notifies Jenkins
// of pushes through this endpoint.
func (s *Service) WebHookURL(projectKey, planKey string) string {
	return s.cfg.URL + folderPath(projectKey, jobName(projectKey, planKey)) + "/build?delay=0sec"
}

// notificationURL is the endpoint the pipeline's result step pushes finished
// builds to.
func (s *Service) notificationURL() string {
	return strings.TrimSuffix(s.cfg.WebHookBase, "/") + "/api/webhooks/jenkins/results"
}

// jobName strips the project prefix from a derived plan key. Jobs live
// inside their project folder, repeating the prefix in the job name would
// double it in every URL.
func jobName(projectKey, planKey string) string {
	return strings.TrimPrefix(planKey, projectKey+"-")
}

// ProjectExists checks whether the project folder is already present. Job
// names are unique per folder only, so the name probe has nothing to check
// beyond the key.
func (s *Service) ProjectExists(ctx context.Context, projectKey, projectName string) (string, error) {
	err := s.client.getJSON(ctx, folderPath(projectKey, "")+"/api/json", nil)
	if err == nil {
		return fmt.Sprintf("Project %s already exists on the CI server. Please choose a different title and short name.", projectKey), nil
	}
	if ci.IsNotFound(err) {
		return "", nil
	}
	return "", err
}

// CreateBuildPlan creates the project folder when needed, assembles the
// build script and publishes the job.
func (s *Service) CreateBuildPlan(ctx context.Context, exercise *ci.Exercise, planKey string, repositorySlug string) error {
	if err := exercise.Validate(); err != nil {
		return err
	}
	if err := s.ensureFolder(ctx, exercise); err != nil {
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

	checkouts := s.checkoutsFor(exercise, repositorySlug)
	config, err := buildJobConfig("Build plan for exercise "+exercise.Title, checkouts, pipeline, s.cfg.CredentialsID, s.notificationURL())
	if err != nil {
		return err
	}

	job := jobName(exercise.ProjectKey, ci.DerivePlanID(exercise.ProjectKey, planKey).PlanKey)
	path := folderPath(exercise.ProjectKey, "") + "/createItem?name=" + url.QueryEscape(job)
	if err := s.client.postXML(ctx, path, config); err != nil {
		return fmt.Errorf("creating job %s in project %s: %w", job, exercise.ProjectKey, err)
	}
	slog.Info("Created build plan", "project", exercise.ProjectKey, "job", job)

	return s.GivePlanPermissions(ctx, exercise, planKey)
}

func (s *Service) ensureFolder(ctx context.Context, exercise *ci.Exercise) error {
	err := s.client.getJSON(ctx, folderPath(exercise.ProjectKey, "")+"/api/json", nil)
	if err == nil {
		return nil
	}
	if !ci.IsNotFound(err) {
		return err
	}
	config, err := buildFolderConfig("Exercise "+exercise.Title, nil)
	if err != nil {
		return err
	}
	if err := s.client.postXML(ctx, "/createItem?name="+url.QueryEscape(exercise.ProjectKey), config); err != nil {
		return fmt.Errorf("creating project folder %s: %w", exercise.ProjectKey, err)
	}
	slog.Info("Created project folder", "project", exercise.ProjectKey)
	return nil
}

func (s *Service) checkoutsFor(exercise *ci.Exercise, repositorySlug string) []repoCheckout {
	branch := exercise.Branch
	if branch == "" {
		branch = "main"
	}
	checkouts := []repoCheckout{
		{Name: assignmentCheckoutName, URL: s.repositoryURL(exercise.ProjectKey, repositorySlug), Branch: branch},
		{Name: "tests", URL: s.repositoryURL(exercise.ProjectKey, exercise.TestRepositorySlug), Branch: branch},
	}
	for _, aux := range exercise.AuxiliaryRepositories {
		dir := aux.CheckoutDirectory
		if dir == "" {
			dir = aux.Name
		}
		checkouts = append(checkouts, repoCheckout{Name: dir, URL: s.repositoryURL(exercise.ProjectKey, aux.Slug), Branch: branch})
	}
	if exercise.CheckoutSolution {
		checkouts = append(checkouts, repoCheckout{Name: "solution", URL: s.repositoryURL(exercise.ProjectKey, exercise.SolutionRepositorySlug), Branch: branch})
	}
	return checkouts
}

func (s *Service) repositoryURL(projectKey, slug string) string {
	// The clone URL convention of the paired VCS. ConfigureBuildPlan
	// replaces it with the participation's real URL later.
	return fmt.Sprintf("%s/scm/%s/%s.git", strings.TrimSuffix(s.cfg.WebHookBase, "/"), strings.ToLower(projectKey), strings.ToLower(slug))
}

// CopyBuildPlan republishes the source job's configuration under the target
// name. An existing target is returned as-is without copying, so retried
// exercise imports and student starts stay idempotent.
func (s *Service) CopyBuildPlan(ctx context.Context, sourceProjectKey, sourcePlanName, targetProjectKey, targetProjectName, targetPlanName string, targetProjectExists bool) (string, error) {
	cleanName := ci.CleanPlanName(targetPlanName)
	targetPlanKey := targetProjectKey + "-" + cleanName

	exists, err := s.BuildPlanExists(ctx, targetProjectKey, targetPlanKey)
	if err != nil {
		return "", err
	}
	if exists {
		slog.Info("Build plan already exists, recovering plan information", "plan", targetPlanKey)
		return targetPlanKey, nil
	}

	if !targetProjectExists {
		config, err := buildFolderConfig("Exercise "+targetProjectName, nil)
		if err != nil {
			return "", err
		}
		if err := s.client.postXML(ctx, "/createItem?name="+url.QueryEscape(targetProjectKey), config); err != nil && !strings.Contains(err.Error(), "already exists") {
			return "", fmt.Errorf("creating project folder %s: %w", targetProjectKey, err)
		}
	}

	sourceJob := jobName(sourceProjectKey, sourceProjectKey+"-"+sourcePlanName)
	config, err := s.client.getXML(ctx, folderPath(sourceProjectKey, sourceJob)+"/config.xml")
	if err != nil {
		return "", fmt.Errorf("reading source job %s: %w", sourceJob, err)
	}
	path := folderPath(targetProjectKey, "") + "/createItem?name=" + url.QueryEscape(cleanName)
	if err := s.client.postXML(ctx, path, config); err != nil {
		return "", fmt.Errorf("copying job %s to %s: %w", sourceJob, targetPlanKey, err)
	}
	slog.Info("Copied build plan", "source", sourceProjectKey+"-"+sourcePlanName, "target", targetPlanKey)
	return targetPlanKey, nil
}

// ConfigureBuildPlan rewrites the job's assignment checkout to the
// participant's repository and enables the job.
func (s *Service) ConfigureBuildPlan(ctx context.Context, participation *ci.Participation) error {
	planKey := participation.BuildPlanID
	projectKey := ci.PlanProjectKey(planKey)
	job := jobName(projectKey, planKey)

	config, err := s.client.getXML(ctx, folderPath(projectKey, job)+"/config.xml")
	if err != nil {
		return fmt.Errorf("reading job %s: %w", planKey, err)
	}
	exercise := participation.Exercise
	if exercise != nil {
		templateURL := s.repositoryURL(projectKey, exercise.TemplateRepositorySlug)
		config = []byte(strings.ReplaceAll(string(config), templateURL, participation.RepositoryURL))
	}
	if participation.Branch != "" {
		config = []byte(strings.ReplaceAll(string(config), "branch: 'main'", "branch: '"+participation.Branch+"'"))
	}
	if err := s.client.postXML(ctx, folderPath(projectKey, job)+"/config.xml", config); err != nil {
		return fmt.Errorf("updating job %s: %w", planKey, err)
	}
	return s.EnablePlan(ctx, projectKey, planKey)
}

// EnablePlan implements ci.ContinuousIntegration.
func (s *Service) EnablePlan(ctx context.Context, projectKey, planKey string) error {
	job := jobName(projectKey, planKey)
	if err := s.client.post(ctx, folderPath(projectKey, job)+"/enable"); err != nil {
		return fmt.Errorf("enabling job %s: %w", planKey, err)
	}
	return nil
}

// TriggerBuild enqueues a build of the participation's job.
func (s *Service) TriggerBuild(ctx context.Context, participation *ci.Participation) error {
	planKey := participation.BuildPlanID
	projectKey := ci.PlanProjectKey(planKey)
	job := jobName(projectKey, planKey)
	if err := s.client.post(ctx, folderPath(projectKey, job)+"/build"); err != nil {
		return fmt.Errorf("triggering build of job %s: %w", planKey, err)
	}
	return nil
}

// DeleteBuildPlan removes the job. A job that is already gone counts as
// success.
func (s *Service) DeleteBuildPlan(ctx context.Context, projectKey, planKey string) error {
	job := jobName(projectKey, planKey)
	err := s.client.post(ctx, folderPath(projectKey, job)+"/doDelete")
	if ci.IsNotFound(err) {
		slog.Info("Build plan does not exist, nothing to delete", "plan", planKey)
		return nil
	}
	if err != nil {
		return fmt.Errorf("deleting job %s: %w", planKey, err)
	}
	slog.Info("Deleted build plan", "plan", planKey)
	return nil
}

// DeleteProject removes the project folder and every job inside it in one
// call, Jenkins deletes folders recursively.
func (s *Service) DeleteProject(ctx context.Context, projectKey string) error {
	err := s.client.post(ctx, folderPath(projectKey, "")+"/doDelete")
	if ci.IsNotFound(err) {
		slog.Info("Project does not exist, nothing to delete", "project", projectKey)
		return nil
	}
	if err != nil {
		return fmt.Errorf("deleting project %s: %w", projectKey, err)
	}
	slog.Info("Deleted project", "project", projectKey)
	return nil
}

// BuildPlanExists reports whether the job exists inside the project folder.
func (s *Service) BuildPlanExists(ctx context.Context, projectKey, planKey string) (bool, error) {
	job := jobName(projectKey, planKey)
	err := s.client.getJSON(ctx, folderPath(projectKey, job)+"/api/json", nil)
	if err == nil {
		return true, nil
	}
	if ci.IsNotFound(err) {
		return false, nil
	}
	return false, err
}

// BuildStatus derives the 3-state status from the job's queue flag and its
// last build. A job the master does not know is INACTIVE.
func (s *Service) BuildStatus(projectKey, planKey string) (ci.BuildStatus, error) {
	job := jobName(projectKey, planKey)
	var state struct {
		InQueue   bool `json:"inQueue"`
		LastBuild struct {
			Building bool `json:"building"`
		} `json:"lastBuild"`
	}
	path := folderPath(projectKey, job) + "/api/json?tree=inQueue,lastBuild[building]"
	if err := s.client.getJSON(context.Background(), path, &state); err != nil {
		return ci.StatusInactive, nil
	}
	if state.InQueue {
		return ci.StatusQueued, nil
	}
	if state.LastBuild.Building {
		return ci.StatusBuilding, nil
	}
	return ci.StatusInactive, nil
}
