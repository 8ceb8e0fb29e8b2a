// Package localci implements the continuous-integration capability interface
// with a local container engine. Plans live in process memory, builds run in
// containers on the host. It backs single-node installations and development
// setups without an external build server.
package localci

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/edulab/cibridge/pkg/buildscript"
	"github.com/edulab/cibridge/pkg/ci"
	"github.com/edulab/cibridge/pkg/result"
	"github.com/edulab/cibridge/pkg/vcs"
)

const backendName = "local"

// Config is the configuration of the local executor.
type Config struct {
	// ReposRoot is the directory the local repository store keeps its
	// working copies in, mounted into the build containers.
	ReposRoot string
	// DefaultImage runs builds whose language has no dedicated image.
	DefaultImage string
	// BuildTimeout bounds one container run.
	BuildTimeout time.Duration
}

// plan is one registered build plan.
type plan struct {
	exercise       *ci.Exercise
	repositorySlug string
	branch         string
	enabled        bool
	pipeline       *buildscript.Pipeline
	status         ci.BuildStatus
	lastBuild      *result.NativeBuild
}

// ResultSink consumes finished builds. The webhook dispatcher of the hosted
// backends plays this role, the local executor calls it directly.
type ResultSink func(planKey string, build *result.NativeBuild)

// Service is the local backend. All plan state is guarded by mu, builds run
// in their own goroutine and report through the sink.
type Service struct {
	cfg       *Config
	runtime   containerRuntime
	assembler *buildscript.Assembler
	repos     vcs.RepositoryStore
	sink      ResultSink
	features  ci.FeatureMatrix

	mu    sync.RWMutex
	plans map[string]*plan
}

// New creates the local backend connected to the host's container engine.
func New(cfg *Config, assembler *buildscript.Assembler, repos vcs.RepositoryStore, sink ResultSink) (*Service, error) {
	runtime, err := newDockerRuntime()
	if err != nil {
		return nil, err
	}
	return newService(cfg, runtime, assembler, repos, sink), nil
}

func newService(cfg *Config, runtime containerRuntime, assembler *buildscript.Assembler, repos vcs.RepositoryStore, sink ResultSink) *Service {
	if cfg.BuildTimeout == 0 {
		cfg.BuildTimeout = 10 * time.Minute
	}
	if cfg.DefaultImage == "" {
		cfg.DefaultImage = "ubuntu:24.04"
	}
	return &Service{
		cfg:       cfg,
		runtime:   runtime,
		assembler: assembler,
		repos:     repos,
		sink:      sink,
		features:  defaultFeatures(),
		plans:     map[string]*plan{},
	}
}

// Name implements ci.ContinuousIntegration.
func (s *Service) Name() string { return backendName }

// Features implements ci.ContinuousIntegration.
func (s *Service) Features() ci.FeatureMatrix { return s.features }

// Health implements ci.ContinuousIntegration. The executor runs in process,
// it is up as long as the process is.
func (s *Service) Health(ctx context.Context) ci.Health {
	return ci.Health{Up: true, AdditionalInfo: map[string]string{"plans": fmt.Sprintf("%d", s.planCount())}}
}

func (s *Service) planCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.plans)
}

// WebHookURL implements ci.ContinuousIntegration. Results are delivered in
// process, there is no webhook.
func (s *Service) WebHookURL(projectKey, planKey string) string { return "" }

// ProjectExists reports whether any registered plan uses the project key.
func (s *Service) ProjectExists(ctx context.Context, projectKey, projectName string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for key := range s.plans {
		if ci.PlanProjectKey(key) == projectKey {
			return fmt.Sprintf("Project %s already exists on the CI server. Please choose a different title and short name.", projectKey), nil
		}
	}
	return "", nil
}

// CreateBuildPlan assembles the pipeline and registers the plan. New plans
// start disabled until they are configured for a participant or the exercise
// setup finishes.
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

	id := ci.DerivePlanID(exercise.ProjectKey, planKey)
	branch := exercise.Branch
	if branch == "" {
		branch = "main"
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.plans[id.PlanKey]; exists {
		return fmt.Errorf("build plan %s already exists", id.PlanKey)
	}
	s.plans[id.PlanKey] = &plan{
		exercise:       exercise,
		repositorySlug: repositorySlug,
		branch:         branch,
		pipeline:       pipeline,
		status:         ci.StatusInactive,
	}
	slog.Info("Created build plan", "plan", id.PlanKey)
	return nil
}

// CopyBuildPlan registers a copy of the source plan under the target key. An
// existing target is returned as-is without copying.
func (s *Service) CopyBuildPlan(ctx context.Context, sourceProjectKey, sourcePlanName, targetProjectKey, targetProjectName, targetPlanName string, targetProjectExists bool) (string, error) {
	sourceKey := sourceProjectKey + "-" + sourcePlanName
	targetKey := targetProjectKey + "-" + ci.CleanPlanName(targetPlanName)

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.plans[targetKey]; exists {
		slog.Info("Build plan already exists, recovering plan information", "plan", targetKey)
		return targetKey, nil
	}
	source, exists := s.plans[sourceKey]
	if !exists {
		return "", ci.NewNotFoundError("build plan", sourceKey)
	}
	copied := *source
	copied.enabled = false
	copied.status = ci.StatusInactive
	copied.lastBuild = nil
	s.plans[targetKey] = &copied
	slog.Info("Copied build plan", "source", sourceKey, "target", targetKey)
	return targetKey, nil
}

// ConfigureBuildPlan points the plan at the participation's repository and
// enables it.
func (s *Service) ConfigureBuildPlan(ctx context.Context, participation *ci.Participation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, exists := s.plans[participation.BuildPlanID]
	if !exists {
		return ci.NewNotFoundError("build plan", participation.BuildPlanID)
	}
	p.repositorySlug = participation.RepositorySlug
	if participation.Branch != "" {
		p.branch = participation.Branch
	}
	p.enabled = true
	return nil
}

// EnablePlan implements ci.ContinuousIntegration.
func (s *Service) EnablePlan(ctx context.Context, projectKey, planKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, exists := s.plans[planKey]
	if !exists {
		return ci.NewNotFoundError("build plan", planKey)
	}
	p.enabled = true
	return nil
}

// TriggerBuild queues a build of the participation's plan. The build runs in
// its own goroutine and reports through the sink when it finishes.
func (s *Service) TriggerBuild(ctx context.Context, participation *ci.Participation) error {
	planKey := participation.BuildPlanID
	s.mu.Lock()
	p, exists := s.plans[planKey]
	if !exists {
		s.mu.Unlock()
		return ci.NewNotFoundError("build plan", planKey)
	}
	if !p.enabled {
		s.mu.Unlock()
		return fmt.Errorf("build plan %s is disabled", planKey)
	}
	if p.status != ci.StatusInactive {
		s.mu.Unlock()
		slog.Info("Build already queued or running, not queueing again", "plan", planKey)
		return nil
	}
	p.status = ci.StatusQueued
	s.mu.Unlock()

	buildID := uuid.NewString()
	slog.Info("Queued build", "plan", planKey, "build", buildID)
	go s.runBuild(planKey, buildID)
	return nil
}

func (s *Service) runBuild(planKey, buildID string) {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.BuildTimeout)
	defer cancel()

	s.mu.Lock()
	p, exists := s.plans[planKey]
	if !exists {
		s.mu.Unlock()
		return
	}
	p.status = ci.StatusBuilding
	pipeline := p.pipeline
	exercise := p.exercise
	repositorySlug := p.repositorySlug
	branch := p.branch
	s.mu.Unlock()

	build := s.executePipeline(ctx, exercise, pipeline, repositorySlug, branch)

	s.mu.Lock()
	if p, exists := s.plans[planKey]; exists {
		p.status = ci.StatusInactive
		p.lastBuild = build
	}
	s.mu.Unlock()

	slog.Info("Build finished", "plan", planKey, "build", buildID, "successful", build.Successful)
	if s.sink != nil {
		s.sink(planKey, build)
	}
}

// executePipeline runs every task of the pipeline in sequence inside the
// build container. Default tasks stop at the first failure, final tasks
// always run.
func (s *Service) executePipeline(ctx context.Context, exercise *ci.Exercise, pipeline *buildscript.Pipeline, repositorySlug, branch string) *result.NativeBuild {
	build := &result.NativeBuild{Successful: true, Branch: branch}
	repoDir := filepath.Join(s.cfg.ReposRoot, exercise.ProjectKey, repositorySlug)
	image := s.imageFor(exercise.Language)

	if err := s.runtime.PullImage(ctx, image); err != nil {
		slog.Error("Could not pull build image", "image", image, "error", err)
		build.Successful = false
		build.CompletedAt = time.Now()
		return build
	}

	run := func(task buildscript.Task) bool {
		exitCode, logs, err := s.runtime.RunContainer(ctx, runOptions{
			Image:      image,
			Script:     task.Script,
			WorkingDir: "/work",
			Binds:      map[string]string{repoDir: "/work"},
		})
		now := time.Now()
		for _, line := range strings.Split(logs, "\n") {
			if line != "" {
				build.Logs = append(build.Logs, result.LogLine{Time: now, Text: line})
			}
		}
		if err != nil {
			slog.Error("Build task failed to run", "task", task.Description, "error", err)
			return false
		}
		return exitCode == 0
	}

	for _, task := range pipeline.DefaultTasks() {
		if !run(task) {
			build.Successful = false
			break
		}
	}
	for _, task := range pipeline.FinalTasks() {
		run(task)
	}
	build.CompletedAt = time.Now()
	return build
}

func (s *Service) imageFor(language ci.Language) string {
	switch language {
	case ci.Java, ci.Kotlin:
		return "maven:3-eclipse-temurin-21"
	case ci.Python:
		return "python:3.12"
	case ci.C:
		return "gcc:13"
	default:
		return s.cfg.DefaultImage
	}
}

// DeleteBuildPlan removes the plan. A plan that is already gone counts as
// success.
func (s *Service) DeleteBuildPlan(ctx context.Context, projectKey, planKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.plans[planKey]; !exists {
		slog.Info("Build plan does not exist, nothing to delete", "plan", planKey)
		return nil
	}
	delete(s.plans, planKey)
	slog.Info("Deleted build plan", "plan", planKey)
	return nil
}

// DeleteProject removes every plan below the project key.
func (s *Service) DeleteProject(ctx context.Context, projectKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key := range s.plans {
		if ci.PlanProjectKey(key) == projectKey {
			delete(s.plans, key)
		}
	}
	slog.Info("Deleted project", "project", projectKey)
	return nil
}

// BuildPlanExists implements ci.ContinuousIntegration.
func (s *Service) BuildPlanExists(ctx context.Context, projectKey, planKey string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, exists := s.plans[planKey]
	return exists, nil
}

// BuildStatus implements ci.ContinuousIntegration. A plan the executor does
// not know is INACTIVE.
func (s *Service) BuildStatus(projectKey, planKey string) (ci.BuildStatus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, exists := s.plans[planKey]
	if !exists {
		return ci.StatusInactive, nil
	}
	return p.status, nil
}

// GivePlanPermissions implements ci.ContinuousIntegration. The executor has
// no user model, access control happens upstream.
func (s *Service) GivePlanPermissions(ctx context.Context, exercise *ci.Exercise, planKey string) error {
	return nil
}

// GiveProjectPermissions implements ci.ContinuousIntegration. See
// GivePlanPermissions.
func (s *Service) GiveProjectPermissions(ctx context.Context, projectKey string, groups ci.CourseGroups) error {
	return nil
}

// RemoveAllDefaultProjectPermissions implements ci.ContinuousIntegration.
// Nothing grants default access in the first place.
func (s *Service) RemoveAllDefaultProjectPermissions(ctx context.Context, projectKey string) error {
	return nil
}

// ParseResult implements ci.ContinuousIntegration. The executor reports in
// process and never receives webhooks.
func (s *Service) ParseResult(payload []byte) (*result.NativeBuild, error) {
	return nil, fmt.Errorf("the local executor delivers results in process, there is no payload to parse")
}

// defaultFeatures is the capability matrix of the local executor.
func defaultFeatures() ci.FeatureMatrix {
	return ci.FeatureMatrix{
		ci.Java: {
			Language:            ci.Java,
			PackageNameRequired: true,
			ProjectTypes:        []ci.ProjectType{ci.ProjectTypeMaven, ci.ProjectTypeGradle},
		},
		ci.Kotlin: {
			Language:            ci.Kotlin,
			PackageNameRequired: true,
		},
		ci.Python: {
			Language: ci.Python,
		},
		ci.C: {
			Language:     ci.C,
			ProjectTypes: []ci.ProjectType{ci.ProjectTypeGCC},
		},
		ci.Empty: {
			Language: ci.Empty,
		},
	}
}
