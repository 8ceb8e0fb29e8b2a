// Package vcs is the boundary to repository storage. The CI layer never
// touches version-control primitives directly, it only asks whether projects
// and repositories exist and, for backends that keep their pipeline
// definition in the repository, commits single files.
package vcs

// RepositoryStore is the narrow slice of the version-control system the CI
// layer consumes. It is an optional collaborator: call sites must handle a
// nil store.
type RepositoryStore interface {
	// ProjectExists reports whether the VCS project for the key exists.
	ProjectExists(projectKey string) (bool, error)

	// RepositoryExists reports whether a repository with the slug exists
	// below the project.
	RepositoryExists(projectKey, slug string) (bool, error)

	// DefaultBranch returns the default branch of a repository.
	DefaultBranch(projectKey, slug string) (string, error)

	// CommitFile writes one file to the repository's default branch.
	CommitFile(projectKey, slug, path string, content []byte, message string) error
}
