package bamboo

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/edulab/cibridge/pkg/buildscript"
	"github.com/edulab/cibridge/pkg/ci"
)

// planDetails is the slice of the plan resource the lifecycle operations
// read.
type planDetails struct {
	Key        string `json:"key"`
	Name       string `json:"name"`
	Enabled    bool   `json:"enabled"`
	IsActive   bool   `json:"isActive"`
	IsBuilding bool   `json:"isBuilding"`
}

// planDefinition is the JSON document published when a new plan is created.
type planDefinition struct {
	Key             string           `json:"key"`
	Name            string           `json:"name"`
	ProjectKey      string           `json:"projectKey"`
	ProjectName     string           `json:"projectName"`
	Description     string           `json:"description"`
	Enabled         bool             `json:"enabled"`
	Repositories    []planRepository `json:"repositories"`
	TriggerRepos    []string         `json:"triggerRepositories"`
	Tasks           []planTask       `json:"tasks"`
	FinalTasks      []planTask       `json:"finalTasks"`
	Artifacts       []planArtifact   `json:"artifacts,omitempty"`
	Requirements    []string         `json:"requirements,omitempty"`
	ResultGlob      string           `json:"testResultPattern,omitempty"`
	NotificationURL string           `json:"notificationUrl"`
}

type planRepository struct {
	Name       string `json:"name"`
	ProjectKey string `json:"projectKey"`
	Slug       string `json:"slug"`
	Branch     string `json:"branch"`
}

type planTask struct {
	Description string `json:"description"`
	Script      string `json:"script"`
}

type planArtifact struct {
	Name        string `json:"name"`
	Location    string `json:"location"`
	CopyPattern string `json:"copyPattern"`
}

// getPlan fetches a plan. A plan the server does not know yields (nil, nil):
// read-only queries degrade to absence instead of failing.
func (s *Service) getPlan(ctx context.Context, planKey string) (*planDetails, error) {
	var plan planDetails
	err := s.client.getJSON(ctx, "/rest/api/latest/plan/"+url.PathEscape(planKey), nil, &plan)
	if err != nil {
		if ci.IsNotFound(err) {
			return nil, nil
		}
		slog.Info("Could not fetch build plan", "plan", planKey, "error", err)
		return nil, nil
	}
	return &plan, nil
}

// BuildPlanExists implements ci.ContinuousIntegration.
func (s *Service) BuildPlanExists(ctx context.Context, projectKey, planKey string) (bool, error) {
	plan, err := s.getPlan(ctx, planKey)
	if err != nil {
		return false, err
	}
	return plan != nil, nil
}

// BuildStatus implements ci.ContinuousIntegration. A plan the server does
// not know is INACTIVE.
func (s *Service) BuildStatus(projectKey, planKey string) (ci.BuildStatus, error) {
	plan, err := s.getPlan(context.Background(), planKey)
	if err != nil || plan == nil {
		return ci.StatusInactive, nil
	}
	return ci.StatusFromFlags(plan.IsActive, plan.IsBuilding), nil
}

// CreateBuildPlan assembles the task pipeline and publishes the plan
// definition together with its permissions. Template failures and rejected
// definitions abort exercise creation.
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

	definition := s.planDefinitionFor(exercise, planKey, repositorySlug, pipeline)
	if err := s.client.postJSON(ctx, "/rest/api/latest/plan", definition); err != nil {
		return fmt.Errorf("publishing build plan %s: %w", definition.Key, err)
	}
	slog.Info("Created build plan", "plan", definition.Key)

	if err := s.GivePlanPermissions(ctx, exercise, planKey); err != nil {
		return err
	}
	return nil
}

func (s *Service) planDefinitionFor(exercise *ci.Exercise, planKey, repositorySlug string, pipeline *buildscript.Pipeline) planDefinition {
	plan := ci.DerivePlanID(exercise.ProjectKey, planKey)

	repos := []planRepository{
		{Name: assignmentRepoName, ProjectKey: exercise.ProjectKey, Slug: strings.ToLower(repositorySlug), Branch: s.branchOf(exercise, repositorySlug)},
		{Name: testRepoName, ProjectKey: exercise.ProjectKey, Slug: strings.ToLower(exercise.TestRepositorySlug), Branch: s.branchOf(exercise, exercise.TestRepositorySlug)},
	}
	for _, aux := range exercise.AuxiliaryRepositories {
		repos = append(repos, planRepository{
			Name: aux.Name, ProjectKey: exercise.ProjectKey, Slug: strings.ToLower(aux.Slug), Branch: s.branchOf(exercise, aux.Slug),
		})
	}
	if exercise.CheckoutSolution {
		repos = append(repos, planRepository{
			Name: solutionRepoName, ProjectKey: exercise.ProjectKey, Slug: strings.ToLower(exercise.SolutionRepositorySlug), Branch: s.branchOf(exercise, exercise.SolutionRepositorySlug),
		})
	}

	// A push to the assignment repository triggers the build. The solution
	// plan additionally builds when the tests change.
	triggers := []string{assignmentRepoName}
	if planKey == ci.SolutionVariant {
		triggers = append(triggers, testRepoName)
	}

	definition := planDefinition{
		Key:             plan.PlanKey,
		Name:            plan.PlanKey,
		ProjectKey:      exercise.ProjectKey,
		ProjectName:     exercise.ProjectName,
		Description:     "Build plan for exercise " + exercise.Title,
		Enabled:         true,
		Repositories:    repos,
		TriggerRepos:    triggers,
		Requirements:    pipeline.Requirements,
		ResultGlob:      pipeline.ResultGlob,
		NotificationURL: s.notificationURL(),
	}
	for _, task := range pipeline.DefaultTasks() {
		definition.Tasks = append(definition.Tasks, planTask{Description: task.Description, Script: task.Script})
	}
	for _, task := range pipeline.FinalTasks() {
		definition.FinalTasks = append(definition.FinalTasks, planTask{Description: task.Description, Script: task.Script})
	}
	for _, artifact := range pipeline.Artifacts {
		definition.Artifacts = append(definition.Artifacts, planArtifact{Name: artifact.Name, Location: artifact.Location, CopyPattern: artifact.CopyPattern})
	}
	return definition
}

func (s *Service) branchOf(exercise *ci.Exercise, slug string) string {
	if s.repos != nil {
		if branch, err := s.repos.DefaultBranch(exercise.ProjectKey, slug); err == nil && branch != "" {
			return branch
		}
	}
	if exercise.Branch != "" {
		return exercise.Branch
	}
	return "main"
}

// CopyBuildPlan implements the idempotent copy: the target key is derived
// first, an existing target is returned as-is (the recovery path), only then
// is the clone action invoked. An "already exists" rejection at that point
// is a real failure, usually a concurrent copy or a stale cache shortly
// after a deletion, and silently succeeding would desynchronize the caller.
func (s *Service) CopyBuildPlan(ctx context.Context, sourceProjectKey, sourcePlanName, targetProjectKey, targetProjectName, targetPlanName string, targetProjectExists bool) (string, error) {
	cleanName := ci.CleanPlanName(targetPlanName)
	sourcePlanKey := sourceProjectKey + "-" + sourcePlanName
	targetPlanKey := targetProjectKey + "-" + cleanName

	existing, err := s.getPlan(ctx, targetPlanKey)
	if err == nil && existing != nil {
		slog.Info("Build plan already exists, recovering plan information", "plan", targetPlanKey)
		return targetPlanKey, nil
	}

	slog.Info("Cloning build plan", "source", sourcePlanKey, "target", targetPlanKey)
	params := url.Values{}
	if targetProjectExists {
		params.Set("existingProjectKey", targetProjectKey)
	} else {
		params.Set("existingProjectKey", "newProject")
		params.Set("projectKey", targetProjectKey)
		params.Set("projectName", targetProjectName)
	}
	params.Set("planKeyToClone", sourcePlanKey)
	params.Set("chainKey", cleanName)
	params.Set("chainName", cleanName)
	params.Set("chainDescription", "Build plan for exercise "+sourceProjectKey)
	params.Set("clonePlan", "true")
	params.Set("chainEnabled", "false")
	params.Set("save", "Create")
	params.Set("bamboo.successReturnMode", "json")

	if _, err := s.client.postAction(ctx, "/build/admin/create/performClonePlan.action", params); err != nil {
		if strings.Contains(err.Error(), "already exists") {
			slog.Warn("Server reports the target plan already exists although it was not found before. "+
				"This is a concurrent clone or a stale cache, retry in a few minutes.", "plan", targetPlanKey)
		}
		return "", fmt.Errorf("cloning build plan %s to %s: %w", sourcePlanKey, targetPlanKey, err)
	}
	slog.Info("Cloned build plan", "source", sourcePlanKey, "target", targetPlanKey)
	return targetPlanKey, nil
}

// ConfigureBuildPlan rewires the participant's plan to their repository and
// enables it. Read access for the participants is granted only when the
// exercise publishes its build plan URL and the participation belongs to a
// course, exam participants never see their plans.
func (s *Service) ConfigureBuildPlan(ctx context.Context, participation *ci.Participation) error {
	planKey := participation.BuildPlanID
	projectKey := ci.PlanProjectKey(planKey)

	update := map[string]string{
		"repositoryName": assignmentRepoName,
		"slug":           strings.ToLower(participation.RepositorySlug),
		"url":            participation.RepositoryURL,
		"branch":         participation.Branch,
	}
	path := "/rest/api/latest/plan/" + url.PathEscape(planKey) + "/repository"
	if err := s.client.postJSON(ctx, path, update); err != nil {
		return fmt.Errorf("updating plan repository of %s: %w", planKey, err)
	}
	if err := s.EnablePlan(ctx, projectKey, planKey); err != nil {
		return err
	}

	exercise := participation.Exercise
	if exercise != nil && exercise.PublishBuildPlanURL && !participation.IsExamExercise {
		for _, login := range participation.Participants {
			if err := s.grantPlanReadAccess(ctx, planKey, login); err != nil {
				// One failing grant must not abort the remaining ones.
				slog.Error("Could not grant read access to build plan", "plan", planKey, "user", login, "error", err)
			}
		}
	}
	return nil
}

func (s *Service) grantPlanReadAccess(ctx context.Context, planKey, login string) error {
	path := "/rest/api/latest/permissions/plan/" + url.PathEscape(planKey) + "/users/" + url.PathEscape(login)
	return s.client.postJSON(ctx, path, []string{string(ci.PermissionView)})
}

// EnablePlan implements ci.ContinuousIntegration.
func (s *Service) EnablePlan(ctx context.Context, projectKey, planKey string) error {
	path := "/rest/api/latest/plan/" + url.PathEscape(planKey) + "/enable"
	if err := s.client.postJSON(ctx, path, nil); err != nil {
		return fmt.Errorf("enabling plan %s: %w", planKey, err)
	}
	return nil
}

// TriggerBuild enqueues a build of the participation's plan.
func (s *Service) TriggerBuild(ctx context.Context, participation *ci.Participation) error {
	planKey := participation.BuildPlanID
	if err := s.client.postJSON(ctx, "/rest/api/latest/queue/"+url.PathEscape(planKey), nil); err != nil {
		return fmt.Errorf("triggering build of plan %s: %w", planKey, err)
	}
	return nil
}

// DeleteBuildPlan removes a plan. The existence check runs first so an
// already absent plan counts as success. The deletion goes through the
// synchronous admin action: the plain REST delete removes the plan
// asynchronously and a subsequent creation with the same key would race
// against it.
func (s *Service) DeleteBuildPlan(ctx context.Context, projectKey, planKey string) error {
	plan, err := s.getPlan(ctx, planKey)
	if err != nil {
		return err
	}
	if plan == nil {
		slog.Info("Build plan does not exist, nothing to delete", "plan", planKey)
		return nil
	}
	if err := s.executeDelete(ctx, "selectedBuilds", planKey); err != nil {
		return fmt.Errorf("deleting build plan %s: %w", planKey, err)
	}
	slog.Info("Deleted build plan", "plan", planKey)
	return nil
}

// getPlans lists the plans below a project. A 404 means the project is
// already empty or gone, which is the normal case during teardown, so it
// yields an empty list without logging.
func (s *Service) getPlans(ctx context.Context, projectKey string) []planDetails {
	var project struct {
		Plans struct {
			Plan []planDetails `json:"plan"`
		} `json:"plans"`
	}
	query := url.Values{"expand": {"plans"}, "max-results": {"5000"}}
	err := s.client.getJSON(ctx, "/rest/api/latest/project/"+url.PathEscape(projectKey), query, &project)
	if err != nil {
		if !ci.IsNotFound(err) {
			slog.Warn("Could not list build plans", "project", projectKey, "error", err)
		}
		return nil
	}
	return project.Plans.Plan
}

// DeleteProject deletes every remaining plan below the project and then the
// project container itself. One failing plan deletion is logged and must
// not stop the others.
func (s *Service) DeleteProject(ctx context.Context, projectKey string) error {
	slog.Info("Deleting project", "project", projectKey)
	for _, plan := range s.getPlans(ctx, projectKey) {
		if err := s.DeleteBuildPlan(ctx, projectKey, plan.Key); err != nil {
			slog.Error("Could not delete build plan", "plan", plan.Key, "error", err)
		}
	}
	if err := s.executeDelete(ctx, "selectedProjects", projectKey); err != nil {
		if ci.IsNotFound(err) {
			slog.Info("Project does not exist, nothing to delete", "project", projectKey)
			return nil
		}
		return fmt.Errorf("deleting project %s: %w", projectKey, err)
	}
	slog.Info("Deleted project", "project", projectKey)
	return nil
}

func (s *Service) executeDelete(ctx context.Context, elementKey, elementValue string) error {
	params := url.Values{}
	params.Set(elementKey, elementValue)
	params.Set("confirm", "true")
	params.Set("bamboo.successReturnMode", "json")
	_, err := s.client.postAction(ctx, "/admin/deleteBuilds.action", params)
	return err
}
