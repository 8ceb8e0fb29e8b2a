package ci_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edulab/cibridge/pkg/ci"
	"github.com/edulab/cibridge/pkg/ci/dummy"
)

func TestRegistry(t *testing.T) {
	registry := ci.NewRegistry()
	backend := dummy.New()

	require.NoError(t, registry.Register(backend))

	got, err := registry.Get("dummy")
	require.NoError(t, err)
	assert.Equal(t, backend, got)

	assert.Equal(t, []string{"dummy"}, registry.Names())
	assert.Len(t, registry.All(), 1)
}

func TestRegistryDuplicateRegistration(t *testing.T) {
	registry := ci.NewRegistry()

	require.NoError(t, registry.Register(dummy.New()))
	err := registry.Register(dummy.New())

	assert.ErrorContains(t, err, "already registered")
}

func TestRegistryUnknownBackend(t *testing.T) {
	registry := ci.NewRegistry()

	_, err := registry.Get("bamboo")

	assert.ErrorContains(t, err, "no CI backend registered")
}
