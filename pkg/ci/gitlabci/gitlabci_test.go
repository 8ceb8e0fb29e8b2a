package gitlabci

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edulab/cibridge/pkg/buildscript"
	"github.com/edulab/cibridge/pkg/ci"
	"github.com/edulab/cibridge/pkg/vcs"
)

// fakeGitLab answers API requests through a single handler because project
// paths carry an escaped slash the standard mux would normalize away.
type fakeGitLab struct {
	mu       sync.Mutex
	handlers map[string]http.HandlerFunc
	requests []string
}

func newFakeGitLab(t *testing.T, store vcs.RepositoryStore) (*fakeGitLab, *Service) {
	t.Helper()
	fake := &fakeGitLab{handlers: map[string]http.HandlerFunc{}}

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Method + " " + r.URL.EscapedPath()
		fake.mu.Lock()
		fake.requests = append(fake.requests, key)
		handler := fake.handlers[key]
		fake.mu.Unlock()
		if handler == nil {
			http.NotFound(w, r)
			return
		}
		handler(w, r)
	}))
	t.Cleanup(ts.Close)

	cfg := &Config{URL: ts.URL, Token: "glpat-token", WebHookBase: "https://platform.example.com"}
	return fake, New(cfg, buildscript.NewAssembler(), store)
}

func (f *fakeGitLab) handle(key string, handler http.HandlerFunc) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[key] = handler
}

func (f *fakeGitLab) seen(key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.requests {
		if r == key {
			return true
		}
	}
	return false
}

func TestGitLabHealth(t *testing.T) {
	fake, service := newFakeGitLab(t, vcs.NewLocalStore(t.TempDir()))
	fake.handle("GET /api/v4/version", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"version":"17.4.1"}`))
	})

	health := service.Health(context.Background())

	assert.True(t, health.Up)
	assert.Equal(t, "17.4.1", health.AdditionalInfo["version"])
}

func TestGitLabCreateBuildPlan(t *testing.T) {
	store := vcs.NewLocalStore(t.TempDir())
	fake, service := newFakeGitLab(t, store)
	var variables []string
	handler := func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		variables = append(variables, payload["key"])
	}
	fake.handle("POST /api/v4/projects/tc1%2Ftc1-exercise/variables", handler)

	exercise := &ci.Exercise{
		ID:                 42,
		Title:              "Sorting",
		ProjectKey:         "TC1",
		Language:           ci.Java,
		ProjectType:        ci.ProjectTypeMaven,
		TestRepositorySlug: "tc1-tests",
	}
	err := service.CreateBuildPlan(context.Background(), exercise, ci.TemplateVariant, "tc1-exercise")

	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"NOTIFICATION_URL", "TEST_REPOSITORY"}, variables)

	definition, err := os.ReadFile(filepath.Join(store.Root, "TC1", "tc1-exercise", PipelineFileName))
	require.NoError(t, err)
	assert.Contains(t, string(definition), "stages:")
}

func TestGitLabCreateBuildPlanUpdatesExistingVariable(t *testing.T) {
	store := vcs.NewLocalStore(t.TempDir())
	fake, service := newFakeGitLab(t, store)
	fake.handle("POST /api/v4/projects/tc1%2Ftc1-exercise/variables", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	})
	for _, key := range []string{"NOTIFICATION_URL", "TEST_REPOSITORY"} {
		fake.handle("PUT /api/v4/projects/tc1%2Ftc1-exercise/variables/"+key, func(w http.ResponseWriter, r *http.Request) {})
	}

	exercise := &ci.Exercise{
		ID:                 42,
		ProjectKey:         "TC1",
		Language:           ci.Java,
		TestRepositorySlug: "tc1-tests",
	}
	err := service.CreateBuildPlan(context.Background(), exercise, ci.TemplateVariant, "tc1-exercise")

	require.NoError(t, err)
	assert.True(t, fake.seen("PUT /api/v4/projects/tc1%2Ftc1-exercise/variables/NOTIFICATION_URL"), "a rejected create falls back to an update")
}

func TestGitLabCopyBuildPlanDerivesKey(t *testing.T) {
	fake, service := newFakeGitLab(t, vcs.NewLocalStore(t.TempDir()))

	planKey, err := service.CopyBuildPlan(context.Background(), "TC1", "TEMPLATE", "EXAM1", "Exam 1", "stud ent-1", true)

	require.NoError(t, err)
	assert.Equal(t, "EXAM1-STUDENT1", planKey)
	assert.Empty(t, fake.requests, "the definition travels with the repository, nothing to clone")
}

func TestGitLabBuildStatus(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		expected ci.BuildStatus
	}{
		{name: "pending", body: `[{"status":"pending"}]`, expected: ci.StatusQueued},
		{name: "preparing", body: `[{"status":"preparing"}]`, expected: ci.StatusQueued},
		{name: "running", body: `[{"status":"running"}]`, expected: ci.StatusBuilding},
		{name: "finished", body: `[{"status":"success"}]`, expected: ci.StatusInactive},
		{name: "no pipelines", body: `[]`, expected: ci.StatusInactive},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake, service := newFakeGitLab(t, vcs.NewLocalStore(t.TempDir()))
			fake.handle("GET /api/v4/projects/tc1%2Ftc1-solution/pipelines", func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(tt.body))
			})

			status, err := service.BuildStatus("TC1", "TC1-SOLUTION")

			require.NoError(t, err)
			assert.Equal(t, tt.expected, status)
		})
	}
}

func TestGitLabTriggerBuild(t *testing.T) {
	fake, service := newFakeGitLab(t, vcs.NewLocalStore(t.TempDir()))
	var ref string
	fake.handle("POST /api/v4/projects/tc1%2Ftc1-student1/pipeline", func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		ref = payload["ref"]
		w.WriteHeader(http.StatusCreated)
	})

	err := service.TriggerBuild(context.Background(), &ci.Participation{
		BuildPlanID:    "TC1-STUDENT1",
		RepositorySlug: "tc1-student1",
		Branch:         "develop",
	})

	require.NoError(t, err)
	assert.Equal(t, "develop", ref)
}

func TestGitLabDeleteOpsAreNoOps(t *testing.T) {
	fake, service := newFakeGitLab(t, vcs.NewLocalStore(t.TempDir()))

	require.NoError(t, service.DeleteBuildPlan(context.Background(), "TC1", "TC1-STUDENT1"))
	require.NoError(t, service.DeleteProject(context.Background(), "TC1"))
	assert.Empty(t, fake.requests)
}

func TestGitLabParseResult(t *testing.T) {
	_, service := newFakeGitLab(t, vcs.NewLocalStore(t.TempDir()))

	build, err := service.ParseResult([]byte(`{
		"status": "failed",
		"commitHash": "bbb222",
		"branch": "main",
		"finishedAt": "2026-03-14T10:30:00Z",
		"testSuites": [
			{"name": "AllTests", "testCases": [
				{"name": "testAdd", "status": "success"},
				{"name": "testSort", "status": "failed", "messages": ["expected [1 2 3]"]}
			]}
		],
		"logs": [{"time": "2026-03-14T10:29:58Z", "text": "[INFO] BUILD FAILURE"}]
	}`))

	require.NoError(t, err)
	assert.False(t, build.Successful)
	assert.Equal(t, "bbb222", build.CommitHash)
	assert.Equal(t, time.Date(2026, 3, 14, 10, 30, 0, 0, time.UTC), build.CompletedAt)
	require.Len(t, build.Jobs, 1)
	require.Len(t, build.Jobs[0].Tests, 2)
	assert.True(t, build.Jobs[0].Tests[0].Successful)
	assert.Equal(t, []string{"expected [1 2 3]"}, build.Jobs[0].Tests[1].Errors)
	require.Len(t, build.Logs, 1)
	assert.Equal(t, "[INFO] BUILD FAILURE", build.Logs[0].Text)
}
