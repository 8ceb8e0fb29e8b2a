package localci

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edulab/cibridge/pkg/buildscript"
	"github.com/edulab/cibridge/pkg/ci"
	"github.com/edulab/cibridge/pkg/result"
	"github.com/edulab/cibridge/pkg/vcs"
)

// fakeRuntime records the scripts that were run and fails the ones listed in
// failOn.
type fakeRuntime struct {
	mu     sync.Mutex
	pulled []string
	runs   []string
	failOn map[string]bool
}

func (f *fakeRuntime) PullImage(ctx context.Context, image string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pulled = append(f.pulled, image)
	return nil
}

func (f *fakeRuntime) RunContainer(ctx context.Context, opts runOptions) (int64, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs = append(f.runs, opts.Script)
	if f.failOn[opts.Script] {
		return 1, "task failed\n", nil
	}
	return 0, "task passed\n", nil
}

func (f *fakeRuntime) runCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.runs)
}

type sinkRecorder struct {
	mu     sync.Mutex
	builds map[string]*result.NativeBuild
	done   chan struct{}
}

func newSinkRecorder() *sinkRecorder {
	return &sinkRecorder{builds: map[string]*result.NativeBuild{}, done: make(chan struct{}, 8)}
}

func (r *sinkRecorder) sink(planKey string, build *result.NativeBuild) {
	r.mu.Lock()
	r.builds[planKey] = build
	r.mu.Unlock()
	r.done <- struct{}{}
}

func (r *sinkRecorder) wait(t *testing.T) {
	t.Helper()
	select {
	case <-r.done:
	case <-time.After(5 * time.Second):
		t.Fatal("no build reported through the sink")
	}
}

func (r *sinkRecorder) build(planKey string) *result.NativeBuild {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.builds[planKey]
}

func testService(t *testing.T, runtime *fakeRuntime, sink ResultSink) *Service {
	t.Helper()
	cfg := &Config{ReposRoot: t.TempDir()}
	return newService(cfg, runtime, buildscript.NewAssembler(), vcs.NewLocalStore(cfg.ReposRoot), sink)
}

func emptyExercise() *ci.Exercise {
	return &ci.Exercise{ID: 42, ProjectKey: "TC1", Language: ci.Empty}
}

func createPlan(t *testing.T, service *Service) {
	t.Helper()
	require.NoError(t, service.CreateBuildPlan(context.Background(), emptyExercise(), ci.TemplateVariant, "tc1-exercise"))
}

func TestCreateBuildPlanRejectsDuplicate(t *testing.T) {
	service := testService(t, &fakeRuntime{}, nil)
	createPlan(t, service)

	err := service.CreateBuildPlan(context.Background(), emptyExercise(), ci.TemplateVariant, "tc1-exercise")

	assert.ErrorContains(t, err, "already exists")
}

func TestCopyBuildPlan(t *testing.T) {
	service := testService(t, &fakeRuntime{}, nil)
	createPlan(t, service)

	planKey, err := service.CopyBuildPlan(context.Background(), "TC1", "TEMPLATE", "TC1", "Test Course", "student1", true)

	require.NoError(t, err)
	assert.Equal(t, "TC1-STUDENT1", planKey)

	exists, err := service.BuildPlanExists(context.Background(), "TC1", "TC1-STUDENT1")
	require.NoError(t, err)
	assert.True(t, exists)

	// The copy starts disabled, triggering it must fail.
	err = service.TriggerBuild(context.Background(), &ci.Participation{BuildPlanID: "TC1-STUDENT1"})
	assert.ErrorContains(t, err, "disabled")
}

func TestCopyBuildPlanRecoversExistingTarget(t *testing.T) {
	service := testService(t, &fakeRuntime{}, nil)
	createPlan(t, service)
	_, err := service.CopyBuildPlan(context.Background(), "TC1", "TEMPLATE", "TC1", "Test Course", "student1", true)
	require.NoError(t, err)

	planKey, err := service.CopyBuildPlan(context.Background(), "TC1", "TEMPLATE", "TC1", "Test Course", "student1", true)

	require.NoError(t, err)
	assert.Equal(t, "TC1-STUDENT1", planKey)
}

func TestCopyBuildPlanUnknownSource(t *testing.T) {
	service := testService(t, &fakeRuntime{}, nil)

	_, err := service.CopyBuildPlan(context.Background(), "TC1", "TEMPLATE", "TC1", "Test Course", "student1", true)

	assert.True(t, ci.IsNotFound(err))
}

func TestTriggerBuildRunsPipeline(t *testing.T) {
	runtime := &fakeRuntime{}
	recorder := newSinkRecorder()
	service := testService(t, runtime, recorder.sink)
	createPlan(t, service)
	require.NoError(t, service.EnablePlan(context.Background(), "TC1", "TC1-TEMPLATE"))

	err := service.TriggerBuild(context.Background(), &ci.Participation{BuildPlanID: "TC1-TEMPLATE"})
	require.NoError(t, err)
	recorder.wait(t)

	build := recorder.build("TC1-TEMPLATE")
	require.NotNil(t, build)
	assert.True(t, build.Successful)
	assert.NotEmpty(t, build.Logs)
	assert.Equal(t, []string{"mvn --version"}, runtime.runs)

	status, err := service.BuildStatus("TC1", "TC1-TEMPLATE")
	require.NoError(t, err)
	assert.Equal(t, ci.StatusInactive, status, "a finished build returns the plan to idle")
}

func TestTriggerBuildFailingTaskFailsBuild(t *testing.T) {
	runtime := &fakeRuntime{failOn: map[string]bool{"mvn --version": true}}
	recorder := newSinkRecorder()
	service := testService(t, runtime, recorder.sink)
	createPlan(t, service)
	require.NoError(t, service.EnablePlan(context.Background(), "TC1", "TC1-TEMPLATE"))

	require.NoError(t, service.TriggerBuild(context.Background(), &ci.Participation{BuildPlanID: "TC1-TEMPLATE"}))
	recorder.wait(t)

	build := recorder.build("TC1-TEMPLATE")
	require.NotNil(t, build)
	assert.False(t, build.Successful)
}

func TestTriggerBuildFinalTasksRunAfterFailure(t *testing.T) {
	runtime := &fakeRuntime{failOn: map[string]bool{}}
	recorder := newSinkRecorder()
	cfg := &Config{ReposRoot: t.TempDir()}
	service := newService(cfg, runtime, buildscript.NewAssembler(), vcs.NewLocalStore(cfg.ReposRoot), recorder.sink)

	exercise := &ci.Exercise{ID: 43, ProjectKey: "TC2", Language: ci.C, ProjectType: ci.ProjectTypeGCC}
	require.NoError(t, service.CreateBuildPlan(context.Background(), exercise, ci.TemplateVariant, "tc2-exercise"))
	require.NoError(t, service.EnablePlan(context.Background(), "TC2", "TC2-TEMPLATE"))

	// Fail the first default task, the second must be skipped but the final
	// cleanup task must still run.
	pipeline := service.plans["TC2-TEMPLATE"].pipeline
	defaults := pipeline.DefaultTasks()
	finals := pipeline.FinalTasks()
	require.Len(t, defaults, 2)
	require.NotEmpty(t, finals)
	runtime.failOn[defaults[0].Script] = true

	require.NoError(t, service.TriggerBuild(context.Background(), &ci.Participation{BuildPlanID: "TC2-TEMPLATE"}))
	recorder.wait(t)

	build := recorder.build("TC2-TEMPLATE")
	require.NotNil(t, build)
	assert.False(t, build.Successful)
	expected := append([]string{defaults[0].Script}, scriptsOf(finals)...)
	assert.Equal(t, expected, runtime.runs)
}

func scriptsOf(tasks []buildscript.Task) []string {
	var scripts []string
	for _, task := range tasks {
		scripts = append(scripts, task.Script)
	}
	return scripts
}

func TestTriggerBuildSkipsActivePlan(t *testing.T) {
	runtime := &fakeRuntime{}
	service := testService(t, runtime, nil)
	createPlan(t, service)
	require.NoError(t, service.EnablePlan(context.Background(), "TC1", "TC1-TEMPLATE"))

	service.plans["TC1-TEMPLATE"].status = ci.StatusBuilding

	err := service.TriggerBuild(context.Background(), &ci.Participation{BuildPlanID: "TC1-TEMPLATE"})

	require.NoError(t, err)
	assert.Zero(t, runtime.runCount(), "an active plan is not queued again")
}

func TestDeleteProjectRemovesAllPlans(t *testing.T) {
	service := testService(t, &fakeRuntime{}, nil)
	createPlan(t, service)
	_, err := service.CopyBuildPlan(context.Background(), "TC1", "TEMPLATE", "TC1", "Test Course", "student1", true)
	require.NoError(t, err)

	require.NoError(t, service.DeleteProject(context.Background(), "TC1"))

	exists, err := service.BuildPlanExists(context.Background(), "TC1", "TC1-TEMPLATE")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestDeleteBuildPlanAbsentPlan(t *testing.T) {
	service := testService(t, &fakeRuntime{}, nil)

	assert.NoError(t, service.DeleteBuildPlan(context.Background(), "TC1", "TC1-GONE"))
}

func TestProjectExistsReportsConflict(t *testing.T) {
	service := testService(t, &fakeRuntime{}, nil)
	createPlan(t, service)

	conflict, err := service.ProjectExists(context.Background(), "TC1", "Test Course")
	require.NoError(t, err)
	assert.Contains(t, conflict, "already exists")

	conflict, err = service.ProjectExists(context.Background(), "OTHER", "Other Course")
	require.NoError(t, err)
	assert.Empty(t, conflict)
}

func TestParseResultIsUnsupported(t *testing.T) {
	service := testService(t, &fakeRuntime{}, nil)

	_, err := service.ParseResult([]byte("{}"))

	assert.Error(t, err)
}
