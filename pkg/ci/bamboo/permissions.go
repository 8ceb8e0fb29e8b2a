package bamboo

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/edulab/cibridge/pkg/ci"
)

// GivePlanPermissions publishes the assembled permission set of a plan. The
// service user keeps full rights so the platform can manage the plan after
// handing it out.
func (s *Service) GivePlanPermissions(ctx context.Context, exercise *ci.Exercise, planKey string) error {
	plan := ci.DerivePlanID(exercise.ProjectKey, planKey)
	perms := ci.AssemblePlanPermissions(plan, s.cfg.ServiceUser, s.cfg.AdminGroup, exercise.Groups)

	base := "/rest/api/latest/permissions/plan/" + url.PathEscape(plan.PlanKey)
	if err := s.client.postJSON(ctx, base+"/users/"+url.PathEscape(perms.ServiceUser), permissionNames(perms.UserPermissions)); err != nil {
		return fmt.Errorf("granting plan permissions to service user on %s: %w", plan.PlanKey, err)
	}
	for _, grant := range perms.GroupPermissions {
		if err := s.client.postJSON(ctx, base+"/groups/"+url.PathEscape(grant.Group), permissionNames(grant.Permissions)); err != nil {
			return fmt.Errorf("granting plan permissions to group %s on %s: %w", grant.Group, plan.PlanKey, err)
		}
	}
	return nil
}

// GiveProjectPermissions grants the course groups read access to the whole
// project. One failing grant is logged and the remaining grants still run, a
// half-granted project is more useful than an aborted creation.
func (s *Service) GiveProjectPermissions(ctx context.Context, projectKey string, groups ci.CourseGroups) error {
	base := "/rest/api/latest/permissions/project/" + url.PathEscape(projectKey)
	grant := func(group string, permissions []ci.Permission) {
		if group == "" {
			return
		}
		if err := s.client.postJSON(ctx, base+"/groups/"+url.PathEscape(group), permissionNames(permissions)); err != nil {
			slog.Error("Could not grant project permissions", "project", projectKey, "group", group, "error", err)
		}
	}
	grant(groups.Instructor, []ci.Permission{ci.PermissionRead})
	grant(groups.Editor, []ci.Permission{ci.PermissionRead})
	grant(groups.TeachingAssistant, []ci.Permission{ci.PermissionRead})
	return nil
}

// RemoveAllDefaultProjectPermissions drops the server's default read access
// for anonymous and logged-in users from a freshly created project.
func (s *Service) RemoveAllDefaultProjectPermissions(ctx context.Context, projectKey string) error {
	base := "/rest/api/latest/permissions/project/" + url.PathEscape(projectKey)
	for _, role := range []string{"ANONYMOUS", "LOGGED_IN"} {
		if err := s.client.deleteJSON(ctx, base+"/roles/"+role, []string{string(ci.PermissionRead)}); err != nil {
			return fmt.Errorf("removing default %s permissions from project %s: %w", role, projectKey, err)
		}
	}
	return nil
}

func permissionNames(permissions []ci.Permission) []string {
	names := make([]string, 0, len(permissions))
	for _, p := range permissions {
		names = append(names, string(p))
	}
	return names
}
