package jenkins

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edulab/cibridge/pkg/buildscript"
	"github.com/edulab/cibridge/pkg/ci"
)

type fakeJenkins struct {
	mu       sync.Mutex
	mux      *http.ServeMux
	requests []string
}

func newFakeJenkins(t *testing.T) (*fakeJenkins, *Service) {
	t.Helper()
	fake := &fakeJenkins{mux: http.NewServeMux()}

	recorder := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fake.mu.Lock()
		fake.requests = append(fake.requests, r.Method+" "+r.URL.Path)
		fake.mu.Unlock()
		fake.mux.ServeHTTP(w, r)
	})
	ts := httptest.NewServer(recorder)
	t.Cleanup(ts.Close)

	cfg := &Config{
		URL:           ts.URL,
		Username:      "ci-admin",
		Token:         "api-token",
		ServiceUser:   "ci-service",
		AdminGroup:    "ci-admins",
		CredentialsID: "vcs-credentials",
		WebHookBase:   "https://platform.example.com",
	}
	return fake, New(cfg, buildscript.NewAssembler(), nil)
}

func (f *fakeJenkins) seen(request string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.requests {
		if r == request {
			return true
		}
	}
	return false
}

func TestJenkinsHealth(t *testing.T) {
	fake, service := newFakeJenkins(t)
	fake.mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {})

	health := service.Health(context.Background())

	assert.True(t, health.Up)
}

func TestJenkinsHealthDown(t *testing.T) {
	_, service := newFakeJenkins(t)

	health := service.Health(context.Background())

	assert.False(t, health.Up)
}

func TestJenkinsBuildStatus(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		expected ci.BuildStatus
	}{
		{name: "queued", body: `{"inQueue":true,"lastBuild":{"building":false}}`, expected: ci.StatusQueued},
		{name: "building", body: `{"inQueue":false,"lastBuild":{"building":true}}`, expected: ci.StatusBuilding},
		{name: "idle", body: `{"inQueue":false,"lastBuild":{"building":false}}`, expected: ci.StatusInactive},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake, service := newFakeJenkins(t)
			fake.mux.HandleFunc("/job/TESTCOURSE1/job/SOLUTION/api/json", func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(tt.body))
			})

			status, err := service.BuildStatus("TESTCOURSE1", "TESTCOURSE1-SOLUTION")

			require.NoError(t, err)
			assert.Equal(t, tt.expected, status)
		})
	}
}

func TestJenkinsBuildStatusUnknownJob(t *testing.T) {
	_, service := newFakeJenkins(t)

	status, err := service.BuildStatus("TESTCOURSE1", "TESTCOURSE1-GONE")

	require.NoError(t, err)
	assert.Equal(t, ci.StatusInactive, status)
}

func TestJenkinsCopyBuildPlanRecoversExistingTarget(t *testing.T) {
	fake, service := newFakeJenkins(t)
	fake.mux.HandleFunc("/job/EXAM1/job/STUDENT1/api/json", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	})

	planKey, err := service.CopyBuildPlan(context.Background(), "TESTCOURSE1", "TEMPLATE", "EXAM1", "Exam 1", "student1", true)

	require.NoError(t, err)
	assert.Equal(t, "EXAM1-STUDENT1", planKey)
	assert.False(t, fake.seen("GET /job/TESTCOURSE1/job/TEMPLATE/config.xml"), "an existing target must not be copied again")
}

func TestJenkinsCopyBuildPlan(t *testing.T) {
	fake, service := newFakeJenkins(t)
	source := `<?xml version="1.0" encoding="UTF-8"?><flow-definition plugin="workflow-job"></flow-definition>`
	fake.mux.HandleFunc("/job/TESTCOURSE1/job/TEMPLATE/config.xml", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(source))
	})
	var copied string
	fake.mux.HandleFunc("/job/EXAM1/createItem", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		copied = r.URL.Query().Get("name") + "|" + string(body)
	})

	planKey, err := service.CopyBuildPlan(context.Background(), "TESTCOURSE1", "TEMPLATE", "EXAM1", "Exam 1", "student1", true)

	require.NoError(t, err)
	assert.Equal(t, "EXAM1-STUDENT1", planKey)
	assert.Equal(t, "STUDENT1|"+source, copied, "the source configuration is republished under the clean plan name")
}

func TestJenkinsDeleteBuildPlanAbsentJob(t *testing.T) {
	_, service := newFakeJenkins(t)

	err := service.DeleteBuildPlan(context.Background(), "TESTCOURSE1", "TESTCOURSE1-GONE")

	assert.NoError(t, err, "an already absent job counts as success")
}

func TestJenkinsProjectExists(t *testing.T) {
	fake, service := newFakeJenkins(t)
	fake.mux.HandleFunc("/job/TESTCOURSE1/api/json", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	})

	conflict, err := service.ProjectExists(context.Background(), "TESTCOURSE1", "Test Course")

	require.NoError(t, err)
	assert.Contains(t, conflict, "already exists")
}

func TestJenkinsProjectExistsFreeKey(t *testing.T) {
	_, service := newFakeJenkins(t)

	conflict, err := service.ProjectExists(context.Background(), "TESTCOURSE1", "Test Course")

	require.NoError(t, err)
	assert.Empty(t, conflict)
}

func TestJenkinsCrumbRefreshOn403(t *testing.T) {
	fake, service := newFakeJenkins(t)
	crumbs := []string{"stale", "fresh"}
	fake.mux.HandleFunc("/crumbIssuer/api/json", func(w http.ResponseWriter, r *http.Request) {
		value := crumbs[0]
		if len(crumbs) > 1 {
			crumbs = crumbs[1:]
		}
		_, _ = w.Write([]byte(`{"crumbRequestField":"Jenkins-Crumb","crumb":"` + value + `"}`))
	})
	fake.mux.HandleFunc("/job/TESTCOURSE1/job/SOLUTION/enable", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Jenkins-Crumb") != "fresh" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
	})

	err := service.EnablePlan(context.Background(), "TESTCOURSE1", "TESTCOURSE1-SOLUTION")

	assert.NoError(t, err, "a rejected crumb is refreshed once and the request retried")
}

func TestJenkinsWebHookURL(t *testing.T) {
	_, service := newFakeJenkins(t)

	url := service.WebHookURL("TESTCOURSE1", "TESTCOURSE1-SOLUTION")

	assert.Contains(t, url, "/job/TESTCOURSE1/job/SOLUTION/build?delay=0sec")
}
