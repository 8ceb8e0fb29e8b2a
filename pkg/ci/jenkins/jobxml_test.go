package jenkins

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edulab/cibridge/pkg/buildscript"
	"github.com/edulab/cibridge/pkg/ci"
)

func javaPipeline(t *testing.T) *buildscript.Pipeline {
	t.Helper()
	pipeline, err := buildscript.NewAssembler().Assemble(buildscript.Options{Language: ci.Java})
	require.NoError(t, err)
	return pipeline
}

func TestBuildJobConfig(t *testing.T) {
	checkouts := []repoCheckout{
		{Name: "assignment", URL: "https://vcs.example.com/scm/tc1/tc1-exercise.git", Branch: "main"},
		{Name: "tests", URL: "https://vcs.example.com/scm/tc1/tc1-tests.git", Branch: "main"},
	}

	config, err := buildJobConfig("Build plan for exercise Sorting", checkouts, javaPipeline(t), "vcs-credentials", "https://platform.example.com/api/webhooks/jenkins/results")

	require.NoError(t, err)
	doc := string(config)
	assert.True(t, strings.HasPrefix(doc, `<?xml version="1.0" encoding="UTF-8"?>`))
	assert.Contains(t, doc, "<flow-definition")
	assert.Contains(t, doc, "org.jenkinsci.plugins.workflow.cps.CpsFlowDefinition")
	assert.Contains(t, doc, "<sandbox>true</sandbox>")
	assert.Contains(t, doc, "<disabled>true</disabled>", "new jobs start disabled")
}

func TestRenderPipelineScript(t *testing.T) {
	checkouts := []repoCheckout{
		{Name: "assignment", URL: "https://vcs.example.com/scm/tc1/tc1-exercise.git", Branch: "develop"},
	}

	script := renderPipelineScript(checkouts, javaPipeline(t), "vcs-credentials", "https://platform.example.com/api/webhooks/jenkins/results")

	assert.Contains(t, script, "stage('Checkout')")
	assert.Contains(t, script, "git branch: 'develop', credentialsId: 'vcs-credentials', url: 'https://vcs.example.com/scm/tc1/tc1-exercise.git'")
	assert.Contains(t, script, "post {")
	assert.Contains(t, script, "junit allowEmptyResults: true, testResults: '"+javaPipeline(t).ResultGlob+"'")
	assert.Contains(t, script, "sendTestResults credentialsId: 'vcs-credentials', notificationUrl: 'https://platform.example.com/api/webhooks/jenkins/results'")

	// Every default task becomes its own stage before the post block.
	for _, task := range javaPipeline(t).DefaultTasks() {
		assert.Contains(t, script, "stage('"+task.Description+"')")
	}
}

func TestBuildFolderConfigWithoutGrants(t *testing.T) {
	config, err := buildFolderConfig("Exercise Sorting", nil)

	require.NoError(t, err)
	doc := string(config)
	assert.Contains(t, doc, "com.cloudbees.hudson.plugins.folder.Folder")
	assert.NotContains(t, doc, "AuthorizationMatrixProperty")
}

func TestBuildFolderConfigWithGrants(t *testing.T) {
	config, err := buildFolderConfig("", []string{"GROUP:hudson.model.Item.Read:tutors"})

	require.NoError(t, err)
	doc := string(config)
	assert.Contains(t, doc, nonInheriting)
	assert.Contains(t, doc, "<permission>GROUP:hudson.model.Item.Read:tutors</permission>")
}

func TestMatrixEntries(t *testing.T) {
	tests := []struct {
		name        string
		permissions []ci.Permission
		expected    []string
	}{
		{
			name:        "read only",
			permissions: []ci.Permission{ci.PermissionRead},
			expected:    []string{"GROUP:hudson.model.Item.Read:tutors"},
		},
		{
			name:        "admin",
			permissions: []ci.Permission{ci.PermissionAdmin},
			expected: []string{
				"GROUP:hudson.model.Item.Read:tutors",
				"GROUP:hudson.model.Item.Configure:tutors",
				"GROUP:hudson.model.Item.Delete:tutors",
			},
		},
		{
			name:        "overlapping grants are not repeated",
			permissions: []ci.Permission{ci.PermissionRead, ci.PermissionEdit, ci.PermissionBuild},
			expected: []string{
				"GROUP:hudson.model.Item.Read:tutors",
				"GROUP:hudson.model.Item.Configure:tutors",
				"GROUP:hudson.model.Item.Build:tutors",
				"GROUP:hudson.model.Item.Cancel:tutors",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, matrixEntries("tutors", tt.permissions))
		})
	}
}

func TestFolderPath(t *testing.T) {
	assert.Equal(t, "/job/TESTCOURSE1", folderPath("TESTCOURSE1", ""))
	assert.Equal(t, "/job/TESTCOURSE1/job/SOLUTION", folderPath("TESTCOURSE1", "SOLUTION"))
}

func TestJobName(t *testing.T) {
	assert.Equal(t, "SOLUTION", jobName("TESTCOURSE1", "TESTCOURSE1-SOLUTION"))
	assert.Equal(t, "OTHER-PLAN", jobName("TESTCOURSE1", "OTHER-PLAN"), "foreign plan keys pass through unchanged")
}
