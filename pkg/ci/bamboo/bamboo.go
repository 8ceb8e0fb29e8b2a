// Package bamboo implements the continuous-integration capability interface
// for a hosted Atlassian-style build server. Plans are published through the
// REST API, the server pushes a completion notification to the platform
// when a build finishes.
package bamboo

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

const backendName = "bamboo"

const (
	assignmentRepoName = "assignment"
	testRepoName       = "tests"
	solutionRepoName   = "solution"
)

// Service talks to one Bamboo server. The repository store is optional, it
// is only needed to resolve default branches when a plan is created.
type Service struct {
	client    *Client
	cfg       *Config
	assembler *buildscript.Assembler
	repos     vcs.RepositoryStore
	features  ci.FeatureMatrix
}

// New creates the Bamboo backend.
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

// Health probes the server info endpoint. It never returns an error, an
// unreachable or non-running server reports down.
func (s *Service) Health(ctx context.Context) ci.Health {
	health := ci.Health{URL: s.cfg.URL, AdditionalInfo: map[string]string{"url": s.cfg.URL}}
	var state struct {
		State string `json:"state"`
	}
	if err := s.client.getJSON(ctx, "/rest/api/latest/server", nil, &state); err != nil {
		slog.Warn("Bamboo health check failed", "url", s.cfg.URL, "error", err)
		return health
	}
	health.Up = state.State == "RUNNING"
	return health
}

// WebHookURL implements ci.ContinuousIntegration. The server pushes results
// through its own plan notification, no extra webhook bridge is needed.
func (s *Service) WebHookURL(projectKey, planKey string) string {
	return ""
}

// notificationURL is the endpoint the plan notification pushes completed
// builds to. It is baked into every published plan definition.
func (s *Service) notificationURL() string {
	return strings.TrimSuffix(s.cfg.WebHookBase, "/") + "/api/webhooks/bamboo/results"
}

// ProjectExists checks whether the project key or name is already taken. It
// returns a human-readable conflict description, or an empty string when
// both are free.
func (s *Service) ProjectExists(ctx context.Context, projectKey, projectName string) (string, error) {
	var project struct {
		Key  string `json:"key"`
		Name string `json:"name"`
	}
	err := s.client.getJSON(ctx, "/rest/api/latest/project/"+url.PathEscape(projectKey), nil, &project)
	if err == nil {
		return fmt.Sprintf("Project %s already exists on the CI server. Please choose a different title and short name.", projectKey), nil
	}
	if !ci.IsNotFound(err) {
		return "", err
	}

	var search struct {
		SearchResults []struct {
			SearchEntity struct {
				ProjectName string `json:"projectName"`
			} `json:"searchEntity"`
		} `json:"searchResults"`
	}
	query := url.Values{"searchTerm": {projectName}}
	if err := s.client.getJSON(ctx, "/rest/api/latest/search/projects", query, &search); err != nil {
		// The search endpoint is a best-effort probe, a failure must not
		// block exercise creation.
		slog.Warn("Project name search failed", "name", projectName, "error", err)
		return "", nil
	}
	for _, hit := range search.SearchResults {
		if strings.EqualFold(hit.SearchEntity.ProjectName, projectName) {
			return fmt.Sprintf("A CI project with the name %s already exists. Please choose a different title.", projectName), nil
		}
	}
	return "", nil
}
