package result

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleBuild() *NativeBuild {
	return &NativeBuild{
		Reason:      "Code has changed",
		Successful:  false,
		CommitHash:  "9b3a7c8",
		Branch:      "main",
		CompletedAt: time.Date(2026, 3, 14, 10, 30, 0, 0, time.UTC),
		Jobs: []NativeJob{
			{
				Name: "default",
				Tests: []NativeTest{
					{Name: "testBubbleSort", Successful: true},
					{Name: "testMergeSort", Successful: false, Errors: []string{"expected sorted output", "got [3 1 2]"}},
				},
			},
		},
		Findings: []StaticAnalysisFinding{
			{Tool: "spotbugs", Category: "CORRECTNESS", Message: "possible null dereference"},
		},
		Coverage: &CoverageReport{Tests: []TestCoverage{{TestName: "testBubbleSort"}}},
	}
}

func TestNormalizeDropsFirstBuild(t *testing.T) {
	native := sampleBuild()
	native.Reason = "First build for this plan"

	assert.Nil(t, Normalize(native, Options{}))
}

func TestNormalizeDropsFirstBuildWithSurroundingText(t *testing.T) {
	native := sampleBuild()
	native.Reason = "Triggered: First build for this plan (manual)"

	assert.Nil(t, Normalize(native, Options{}))
}

func TestNormalizeNilBuild(t *testing.T) {
	assert.Nil(t, Normalize(nil, Options{}))
}

func TestNormalizeMapsTestsToFeedback(t *testing.T) {
	res := Normalize(sampleBuild(), Options{})

	require.NotNil(t, res)
	assert.False(t, res.Successful)
	assert.Equal(t, "9b3a7c8", res.CommitHash)
	assert.Equal(t, 2, res.TestCaseCount)
	assert.Equal(t, 1, res.PassedTestCaseCount)

	require.Len(t, res.Feedback, 2)
	assert.Equal(t, "testBubbleSort", res.Feedback[0].Name)
	assert.True(t, res.Feedback[0].Positive)
	assert.Equal(t, "testMergeSort", res.Feedback[1].Name)
	assert.False(t, res.Feedback[1].Positive)
	assert.Equal(t, "expected sorted output\ngot [3 1 2]", res.Feedback[1].Detail)

	assert.True(t, res.HasFeedback, "a negative feedback entry sets HasFeedback")
}

func TestNormalizeAllGreenHasNoFeedback(t *testing.T) {
	native := sampleBuild()
	native.Jobs[0].Tests[1] = NativeTest{Name: "testMergeSort", Successful: true}
	native.Successful = true

	res := Normalize(native, Options{})

	require.NotNil(t, res)
	assert.False(t, res.HasFeedback)
}

func TestNormalizeStaticAnalysisGatedByOption(t *testing.T) {
	res := Normalize(sampleBuild(), Options{})
	require.NotNil(t, res)
	assert.Empty(t, res.StaticAnalysis)
	assert.Zero(t, res.CodeIssueCount)

	res = Normalize(sampleBuild(), Options{StaticCodeAnalysis: true})
	require.NotNil(t, res)
	assert.Len(t, res.StaticAnalysis, 1)
	assert.Equal(t, 1, res.CodeIssueCount)
}

func TestNormalizeCoverageGatedByOption(t *testing.T) {
	res := Normalize(sampleBuild(), Options{})
	require.NotNil(t, res)
	assert.Nil(t, res.Coverage)

	res = Normalize(sampleBuild(), Options{TestwiseCoverage: true})
	require.NotNil(t, res)
	require.NotNil(t, res.Coverage)
	assert.Len(t, res.Coverage.Tests, 1)
}
