package dummy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edulab/cibridge/pkg/ci"
)

var _ ci.ContinuousIntegration = (*Service)(nil)

func TestPlanLifecycle(t *testing.T) {
	service := New()
	exercise := &ci.Exercise{ProjectKey: "TC1", Language: ci.Empty}

	require.NoError(t, service.CreateBuildPlan(context.Background(), exercise, ci.TemplateVariant, "tc1-exercise"))

	exists, err := service.BuildPlanExists(context.Background(), "TC1", "TC1-TEMPLATE")
	require.NoError(t, err)
	assert.True(t, exists)

	planKey, err := service.CopyBuildPlan(context.Background(), "TC1", "TEMPLATE", "TC1", "Test Course", "student1", true)
	require.NoError(t, err)
	assert.Equal(t, "TC1-STUDENT1", planKey)

	require.NoError(t, service.DeleteProject(context.Background(), "TC1"))
	exists, err = service.BuildPlanExists(context.Background(), "TC1", "TC1-TEMPLATE")
	require.NoError(t, err)
	assert.False(t, exists)

	assert.Equal(t, []string{"CreateBuildPlan", "CopyBuildPlan", "DeleteProject"}, service.Calls())
}

func TestBuildStatusDefaultsToInactive(t *testing.T) {
	service := New()
	service.Statuses["TC1-SOLUTION"] = ci.StatusBuilding

	status, err := service.BuildStatus("TC1", "TC1-SOLUTION")
	require.NoError(t, err)
	assert.Equal(t, ci.StatusBuilding, status)

	status, err = service.BuildStatus("TC1", "TC1-TEMPLATE")
	require.NoError(t, err)
	assert.Equal(t, ci.StatusInactive, status)
}
