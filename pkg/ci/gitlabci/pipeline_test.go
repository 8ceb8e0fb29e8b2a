package gitlabci

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/edulab/cibridge/pkg/buildscript"
	"github.com/edulab/cibridge/pkg/ci"
)

// documentKeys returns the top-level mapping keys in declaration order.
func documentKeys(t *testing.T, definition []byte) []string {
	t.Helper()
	var doc yaml.Node
	require.NoError(t, yaml.Unmarshal(definition, &doc))
	require.Len(t, doc.Content, 1)
	root := doc.Content[0]
	require.Equal(t, yaml.MappingNode, root.Kind)

	var keys []string
	for i := 0; i < len(root.Content); i += 2 {
		keys = append(keys, root.Content[i].Value)
	}
	return keys
}

func TestRenderPipelineJava(t *testing.T) {
	pipeline, err := buildscript.NewAssembler().Assemble(buildscript.Options{Language: ci.Java, ProjectType: ci.ProjectTypeMaven})
	require.NoError(t, err)

	definition, err := RenderPipeline(pipeline, "maven:3-eclipse-temurin-21")
	require.NoError(t, err)

	assert.Equal(t, []string{"stages", "build-and-test-the-code"}, documentKeys(t, definition))

	var parsed struct {
		Stages []string `yaml:"stages"`
		Build  struct {
			Stage     string   `yaml:"stage"`
			Image     string   `yaml:"image"`
			Script    []string `yaml:"script"`
			Artifacts struct {
				When    string `yaml:"when"`
				Reports struct {
					JUnit string `yaml:"junit"`
				} `yaml:"reports"`
			} `yaml:"artifacts"`
		} `yaml:"build-and-test-the-code"`
	}
	require.NoError(t, yaml.Unmarshal(definition, &parsed))
	assert.Equal(t, []string{"build"}, parsed.Stages, "no final tasks, no cleanup stage")
	assert.Equal(t, "build", parsed.Build.Stage)
	assert.Equal(t, "maven:3-eclipse-temurin-21", parsed.Build.Image)
	assert.NotEmpty(t, parsed.Build.Script)
	assert.Equal(t, "**/surefire-reports/*.xml", parsed.Build.Artifacts.Reports.JUnit)
	assert.Equal(t, "always", parsed.Build.Artifacts.When, "test reports upload even when the build fails")
}

func TestRenderPipelineCleanupStage(t *testing.T) {
	pipeline, err := buildscript.NewAssembler().Assemble(buildscript.Options{Language: ci.C, ProjectType: ci.ProjectTypeGCC})
	require.NoError(t, err)

	definition, err := RenderPipeline(pipeline, "gcc:13")
	require.NoError(t, err)

	keys := documentKeys(t, definition)
	assert.Equal(t, "stages", keys[0])
	assert.Equal(t, "cleanup", keys[len(keys)-1])

	var parsed struct {
		Stages  []string `yaml:"stages"`
		Cleanup struct {
			Stage     string `yaml:"stage"`
			When      string `yaml:"when"`
			AllowFail bool   `yaml:"allow_failure"`
		} `yaml:"cleanup"`
	}
	require.NoError(t, yaml.Unmarshal(definition, &parsed))
	assert.Equal(t, []string{"build", "cleanup"}, parsed.Stages)
	assert.Equal(t, "cleanup", parsed.Cleanup.Stage)
	assert.Equal(t, "always", parsed.Cleanup.When, "a failing build must not skip the cleanup job")
	assert.True(t, parsed.Cleanup.AllowFail)
}

func TestJobNameSanitizesDescription(t *testing.T) {
	assert.Equal(t, "build-and-test-the-code", jobName("build and test the code"))
	assert.Equal(t, "static-code-analysis", jobName("Static Code Analysis"))
	assert.Equal(t, "run-it", jobName("run it!"))
}
