package vcs

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// LocalStore is a filesystem-backed repository store. Projects are
// directories below the root, repositories are directories below their
// project. It backs the local CI profile and tests.
type LocalStore struct {
	Root   string
	Branch string
}

// NewLocalStore creates a store rooted at dir.
func NewLocalStore(dir string) *LocalStore {
	return &LocalStore{Root: dir, Branch: "main"}
}

func (s *LocalStore) projectDir(projectKey string) string {
	return filepath.Join(s.Root, projectKey)
}

// ProjectExists reports whether the project directory exists.
func (s *LocalStore) ProjectExists(projectKey string) (bool, error) {
	info, err := os.Stat(s.projectDir(projectKey))
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("stat project %s: %w", projectKey, err)
	}
	return info.IsDir(), nil
}

// RepositoryExists reports whether the repository directory exists.
func (s *LocalStore) RepositoryExists(projectKey, slug string) (bool, error) {
	info, err := os.Stat(filepath.Join(s.projectDir(projectKey), slug))
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("stat repository %s/%s: %w", projectKey, slug, err)
	}
	return info.IsDir(), nil
}

// DefaultBranch returns the configured default branch.
func (s *LocalStore) DefaultBranch(projectKey, slug string) (string, error) {
	return s.Branch, nil
}

// CommitFile writes the file into the repository directory.
func (s *LocalStore) CommitFile(projectKey, slug, path string, content []byte, message string) error {
	target := filepath.Join(s.projectDir(projectKey), slug, path)
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", filepath.Dir(target), err)
	}
	if err := os.WriteFile(target, content, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", target, err)
	}
	slog.Debug("Committed file", "project", projectKey, "repository", slug, "path", path, "message", message)
	return nil
}
