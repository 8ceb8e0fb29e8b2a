package cmd

import (
	"fmt"

	"github.com/edulab/cibridge/pkg/buildscript"
	"github.com/edulab/cibridge/pkg/ci"
	"github.com/edulab/cibridge/pkg/ci/bamboo"
	"github.com/edulab/cibridge/pkg/ci/gitlabci"
	"github.com/edulab/cibridge/pkg/ci/jenkins"
	"github.com/edulab/cibridge/pkg/ci/localci"
	"github.com/edulab/cibridge/pkg/config"
	"github.com/edulab/cibridge/pkg/vcs"
)

// wiring holds the collaborators every command needs.
type wiring struct {
	cfg      *config.Config
	registry *ci.Registry
	repos    vcs.RepositoryStore
}

// buildWiring loads the configuration and constructs the selected backends.
// localSink receives finished builds of the local executor and may be nil
// for commands that only query state.
func buildWiring(localSink localci.ResultSink) (*wiring, error) {
	cfg, err := config.Load(RootArgs.ConfigFile)
	if err != nil {
		return nil, err
	}

	var repos vcs.RepositoryStore
	if cfg.VCS.Root != "" {
		repos = vcs.NewLocalStore(cfg.VCS.Root)
	}

	assembler := buildscript.NewAssembler()

	registry := ci.NewRegistry()
	if cfg.Backends.Bamboo.URL != "" {
		backend := bamboo.New(&bamboo.Config{
			URL:         cfg.Backends.Bamboo.URL,
			Username:    cfg.Backends.Bamboo.Username,
			Password:    cfg.Backends.Bamboo.Password,
			ServiceUser: cfg.Backends.Bamboo.ServiceUser,
			AdminGroup:  cfg.Backends.Bamboo.AdminGroup,
			WebHookBase: cfg.Server.PublicURL,
		}, assembler, repos)
		if err := registry.Register(backend); err != nil {
			return nil, err
		}
	}
	if cfg.Backends.Jenkins.URL != "" {
		backend := jenkins.New(&jenkins.Config{
			URL:           cfg.Backends.Jenkins.URL,
			Username:      cfg.Backends.Jenkins.Username,
			Token:         cfg.Backends.Jenkins.Token,
			ServiceUser:   cfg.Backends.Jenkins.ServiceUser,
			AdminGroup:    cfg.Backends.Jenkins.AdminGroup,
			CredentialsID: cfg.Backends.Jenkins.CredentialsID,
			WebHookBase:   cfg.Server.PublicURL,
		}, assembler, repos)
		if err := registry.Register(backend); err != nil {
			return nil, err
		}
	}
	if cfg.Backends.GitLabCI.URL != "" {
		backend := gitlabci.New(&gitlabci.Config{
			URL:         cfg.Backends.GitLabCI.URL,
			Token:       cfg.Backends.GitLabCI.Token,
			WebHookBase: cfg.Server.PublicURL,
		}, assembler, repos)
		if err := registry.Register(backend); err != nil {
			return nil, err
		}
	}
	if cfg.Backends.Local.Enabled {
		backend, err := localci.New(&localci.Config{
			ReposRoot:    cfg.VCS.Root,
			DefaultImage: cfg.Backends.Local.DefaultImage,
			BuildTimeout: cfg.Backends.Local.BuildTimeout,
		}, assembler, repos, localSink)
		if err != nil {
			return nil, fmt.Errorf("failed to start the local executor: %w", err)
		}
		if err := registry.Register(backend); err != nil {
			return nil, err
		}
	}

	return &wiring{cfg: cfg, registry: registry, repos: repos}, nil
}
