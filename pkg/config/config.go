// Package config loads the service configuration. Sources are merged in
// priority order: defaults first, then the configuration file, then
// environment variables.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Config is the complete service configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Backends BackendsConfig `yaml:"backends"`
	VCS      VCSConfig      `yaml:"vcs"`
	Log      LogConfig      `yaml:"log"`
}

// ServerConfig configures the webhook HTTP server.
type ServerConfig struct {
	Address string `yaml:"address" env:"CIBRIDGE_SERVER_ADDRESS"`
	// Secret authenticates incoming webhook deliveries. Empty disables the
	// check, acceptable only for local setups.
	Secret string `yaml:"secret" env:"CIBRIDGE_WEBHOOK_SECRET"`
	// PublicURL is the externally reachable base URL the backends push
	// their notifications to.
	PublicURL string `yaml:"public_url" env:"CIBRIDGE_PUBLIC_URL"`
}

// BackendsConfig selects and configures the CI backends. A backend is active
// when its section carries a URL (or, for the local executor, when it is
// enabled).
type BackendsConfig struct {
	Bamboo   BambooConfig   `yaml:"bamboo"`
	Jenkins  JenkinsConfig  `yaml:"jenkins"`
	GitLabCI GitLabCIConfig `yaml:"gitlabci"`
	Local    LocalConfig    `yaml:"local"`
}

// BambooConfig configures the hosted build server backend.
type BambooConfig struct {
	URL         string `yaml:"url" env:"CIBRIDGE_BAMBOO_URL"`
	Username    string `yaml:"username" env:"CIBRIDGE_BAMBOO_USERNAME"`
	Password    string `yaml:"password" env:"CIBRIDGE_BAMBOO_PASSWORD"`
	ServiceUser string `yaml:"service_user" env:"CIBRIDGE_BAMBOO_SERVICE_USER"`
	AdminGroup  string `yaml:"admin_group" env:"CIBRIDGE_BAMBOO_ADMIN_GROUP"`
}

// JenkinsConfig configures the Jenkins backend.
type JenkinsConfig struct {
	URL           string `yaml:"url" env:"CIBRIDGE_JENKINS_URL"`
	Username      string `yaml:"username" env:"CIBRIDGE_JENKINS_USERNAME"`
	Token         string `yaml:"token" env:"CIBRIDGE_JENKINS_TOKEN"`
	ServiceUser   string `yaml:"service_user" env:"CIBRIDGE_JENKINS_SERVICE_USER"`
	AdminGroup    string `yaml:"admin_group" env:"CIBRIDGE_JENKINS_ADMIN_GROUP"`
	CredentialsID string `yaml:"credentials_id" env:"CIBRIDGE_JENKINS_CREDENTIALS_ID"`
}

// GitLabCIConfig configures the GitLab CI backend.
type GitLabCIConfig struct {
	URL   string `yaml:"url" env:"CIBRIDGE_GITLAB_URL"`
	Token string `yaml:"token" env:"CIBRIDGE_GITLAB_TOKEN"`
}

// LocalConfig configures the local container executor.
type LocalConfig struct {
	Enabled      bool          `yaml:"enabled" env:"CIBRIDGE_LOCAL_ENABLED"`
	DefaultImage string        `yaml:"default_image" env:"CIBRIDGE_LOCAL_DEFAULT_IMAGE"`
	BuildTimeout time.Duration `yaml:"build_timeout" env:"CIBRIDGE_LOCAL_BUILD_TIMEOUT"`
}

// VCSConfig configures the version-control collaborator.
type VCSConfig struct {
	// Root is the directory of the local repository store. Empty disables
	// the collaborator, repository probes are skipped then.
	Root string `yaml:"root" env:"CIBRIDGE_VCS_ROOT"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" env:"CIBRIDGE_LOG_LEVEL"`
	Format string `yaml:"format" env:"CIBRIDGE_LOG_FORMAT"`
}

// Default returns the built-in defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{Address: ":8080"},
		Backends: BackendsConfig{
			Local: LocalConfig{
				DefaultImage: "ubuntu:24.04",
				BuildTimeout: 10 * time.Minute,
			},
		},
		Log: LogConfig{Level: "info", Format: "pretty"},
	}
}

// Load reads the configuration. path may be empty, the file step falls back
// to the CIBRIDGE_CONFIG environment variable and is skipped when neither
// names a file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv("CIBRIDGE_CONFIG")
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read configuration file %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse configuration file %s: %w", path, err)
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// Validate checks cross-field constraints the struct tags cannot express.
func (c *Config) Validate() error {
	if c.Backends.Bamboo.URL != "" && (c.Backends.Bamboo.Username == "" || c.Backends.Bamboo.Password == "") {
		return fmt.Errorf("bamboo backend is configured without credentials")
	}
	if c.Backends.Jenkins.URL != "" && (c.Backends.Jenkins.Username == "" || c.Backends.Jenkins.Token == "") {
		return fmt.Errorf("jenkins backend is configured without credentials")
	}
	if c.Backends.GitLabCI.URL != "" && c.Backends.GitLabCI.Token == "" {
		return fmt.Errorf("gitlabci backend is configured without a token")
	}
	if !c.anyBackend() {
		return fmt.Errorf("no CI backend is configured")
	}
	return nil
}

func (c *Config) anyBackend() bool {
	return c.Backends.Bamboo.URL != "" ||
		c.Backends.Jenkins.URL != "" ||
		c.Backends.GitLabCI.URL != "" ||
		c.Backends.Local.Enabled
}
