package ci

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanPlanName(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "already clean", input: "SOLUTION", expected: "SOLUTION"},
		{name: "lower case", input: "solution", expected: "SOLUTION"},
		{name: "special characters stripped", input: "stud-ent_1!", expected: "STUDENT1"},
		{name: "spaces stripped", input: "my plan 2", expected: "MYPLAN2"},
		{name: "empty", input: "", expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, CleanPlanName(tt.input))
		})
	}
}

func TestDerivePlanID(t *testing.T) {
	plan := DerivePlanID("TESTCOURSE1", "SOLUTION")

	assert.Equal(t, "TESTCOURSE1", plan.ProjectKey)
	assert.Equal(t, "TESTCOURSE1-SOLUTION", plan.PlanKey)
	assert.Equal(t, "SOLUTION", plan.Variant())
}

func TestDerivePlanIDIsDeterministic(t *testing.T) {
	first := DerivePlanID("TESTCOURSE1", "stud ent-1")
	second := DerivePlanID("TESTCOURSE1", "STUDENT1")

	assert.Equal(t, first, second)
}

func TestPlanProjectKey(t *testing.T) {
	assert.Equal(t, "TESTCOURSE1", PlanProjectKey("TESTCOURSE1-SOLUTION"))
	assert.Equal(t, "NOPLANSUFFIX", PlanProjectKey("NOPLANSUFFIX"))
}

func TestExercisePlanIDs(t *testing.T) {
	exercise := &Exercise{ProjectKey: "TESTCOURSE1"}

	assert.Equal(t, "TESTCOURSE1-TEMPLATE", exercise.TemplatePlanID().PlanKey)
	assert.Equal(t, "TESTCOURSE1-SOLUTION", exercise.SolutionPlanID().PlanKey)
}

func TestExerciseValidate(t *testing.T) {
	exercise := &Exercise{ID: 42, ProjectKey: "TESTCOURSE1", Language: Java}
	require.NoError(t, exercise.Validate())

	assert.Error(t, (&Exercise{ID: 42, Language: Java}).Validate())
	assert.Error(t, (&Exercise{ID: 42, ProjectKey: "TESTCOURSE1"}).Validate())
}

func TestLanguageSet(t *testing.T) {
	var language Language
	require.NoError(t, language.Set("java"))
	assert.Equal(t, Java, language)

	assert.Error(t, language.Set("cobol"))
}
