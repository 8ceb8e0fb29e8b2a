// Package dummy provides a no-op CI backend. It records invocations instead
// of talking to a server and backs the tests of everything that only needs
// the capability interface, not a real backend.
package dummy

import (
	"context"
	"log/slog"
	"sync"

	"github.com/edulab/cibridge/pkg/ci"
	"github.com/edulab/cibridge/pkg/result"
)

// Service is the no-op backend. Plans registered through CreateBuildPlan and
// CopyBuildPlan exist, everything else succeeds without side effects.
type Service struct {
	// ParseResultFn overrides ParseResult when set.
	ParseResultFn func(payload []byte) (*result.NativeBuild, error)
	// Statuses maps plan keys onto the status BuildStatus reports.
	Statuses map[string]ci.BuildStatus

	mu    sync.Mutex
	plans map[string]bool
	calls []string
}

// New creates an empty dummy backend.
func New() *Service {
	return &Service{plans: map[string]bool{}, Statuses: map[string]ci.BuildStatus{}}
}

// AddPlan marks a plan as existing.
func (s *Service) AddPlan(planKey string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.plans[planKey] = true
}

// Calls returns the recorded operation names in invocation order.
func (s *Service) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string{}, s.calls...)
}

func (s *Service) record(op string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, op)
}

func (s *Service) Name() string { return "dummy" }

func (s *Service) CreateBuildPlan(ctx context.Context, exercise *ci.Exercise, planKey string, repositorySlug string) error {
	s.record("CreateBuildPlan")
	s.AddPlan(ci.DerivePlanID(exercise.ProjectKey, planKey).PlanKey)
	return nil
}

func (s *Service) CopyBuildPlan(ctx context.Context, sourceProjectKey, sourcePlanName, targetProjectKey, targetProjectName, targetPlanName string, targetProjectExists bool) (string, error) {
	s.record("CopyBuildPlan")
	targetKey := targetProjectKey + "-" + ci.CleanPlanName(targetPlanName)
	s.AddPlan(targetKey)
	return targetKey, nil
}

func (s *Service) ConfigureBuildPlan(ctx context.Context, participation *ci.Participation) error {
	s.record("ConfigureBuildPlan")
	return nil
}

func (s *Service) DeleteBuildPlan(ctx context.Context, projectKey, planKey string) error {
	s.record("DeleteBuildPlan")
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.plans, planKey)
	return nil
}

func (s *Service) DeleteProject(ctx context.Context, projectKey string) error {
	s.record("DeleteProject")
	s.mu.Lock()
	defer s.mu.Unlock()
	for key := range s.plans {
		if ci.PlanProjectKey(key) == projectKey {
			delete(s.plans, key)
		}
	}
	return nil
}

func (s *Service) TriggerBuild(ctx context.Context, participation *ci.Participation) error {
	s.record("TriggerBuild")
	slog.Debug("Dummy build triggered", "plan", participation.BuildPlanID)
	return nil
}

func (s *Service) EnablePlan(ctx context.Context, projectKey, planKey string) error {
	s.record("EnablePlan")
	return nil
}

func (s *Service) BuildPlanExists(ctx context.Context, projectKey, planKey string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.plans[planKey], nil
}

func (s *Service) ProjectExists(ctx context.Context, projectKey, projectName string) (string, error) {
	return "", nil
}

func (s *Service) BuildStatus(projectKey, planKey string) (ci.BuildStatus, error) {
	if status, ok := s.Statuses[planKey]; ok {
		return status, nil
	}
	return ci.StatusInactive, nil
}

func (s *Service) Health(ctx context.Context) ci.Health {
	return ci.Health{Up: true}
}

func (s *Service) WebHookURL(projectKey, planKey string) string { return "" }

func (s *Service) GivePlanPermissions(ctx context.Context, exercise *ci.Exercise, planKey string) error {
	s.record("GivePlanPermissions")
	return nil
}

func (s *Service) GiveProjectPermissions(ctx context.Context, projectKey string, groups ci.CourseGroups) error {
	s.record("GiveProjectPermissions")
	return nil
}

func (s *Service) RemoveAllDefaultProjectPermissions(ctx context.Context, projectKey string) error {
	s.record("RemoveAllDefaultProjectPermissions")
	return nil
}

func (s *Service) ParseResult(payload []byte) (*result.NativeBuild, error) {
	if s.ParseResultFn != nil {
		return s.ParseResultFn(payload)
	}
	return &result.NativeBuild{}, nil
}

func (s *Service) Features() ci.FeatureMatrix {
	return ci.FeatureMatrix{ci.Empty: {Language: ci.Empty}}
}
