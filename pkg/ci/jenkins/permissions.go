package jenkins

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/edulab/cibridge/pkg/ci"
)

// Jenkins has no per-plan permission endpoint. Grants are expressed as an
// authorization matrix on the project folder, every job below it inherits
// them.

func matrixEntries(subject string, permissions []ci.Permission) []string {
	var entries []string
	seen := map[string]bool{}
	add := func(name string) {
		key := name + ":" + subject
		if !seen[key] {
			seen[key] = true
			entries = append(entries, "GROUP:"+name+":"+subject)
		}
	}
	for _, p := range permissions {
		switch p {
		case ci.PermissionView, ci.PermissionRead:
			add("hudson.model.Item.Read")
		case ci.PermissionEdit:
			add("hudson.model.Item.Read")
			add("hudson.model.Item.Configure")
		case ci.PermissionBuild:
			add("hudson.model.Item.Read")
			add("hudson.model.Item.Build")
			add("hudson.model.Item.Cancel")
		case ci.PermissionClone:
			add("hudson.model.Item.Read")
			add("hudson.model.Item.Workspace")
		case ci.PermissionAdmin:
			add("hudson.model.Item.Read")
			add("hudson.model.Item.Configure")
			add("hudson.model.Item.Delete")
		}
	}
	return entries
}

// GivePlanPermissions republishes the folder configuration with the
// assembled permission matrix.
func (s *Service) GivePlanPermissions(ctx context.Context, exercise *ci.Exercise, planKey string) error {
	plan := ci.DerivePlanID(exercise.ProjectKey, planKey)
	perms := ci.AssemblePlanPermissions(plan, s.cfg.ServiceUser, s.cfg.AdminGroup, exercise.Groups)

	var entries []string
	entries = append(entries, "USER:hudson.model.Item.Read:"+perms.ServiceUser)
	entries = append(entries, "USER:hudson.model.Item.Configure:"+perms.ServiceUser)
	entries = append(entries, "USER:hudson.model.Item.Build:"+perms.ServiceUser)
	entries = append(entries, "USER:hudson.model.Item.Delete:"+perms.ServiceUser)
	for _, grant := range perms.GroupPermissions {
		entries = append(entries, matrixEntries(grant.Group, grant.Permissions)...)
	}

	config, err := buildFolderConfig("Exercise "+exercise.Title, entries)
	if err != nil {
		return err
	}
	path := folderPath(exercise.ProjectKey, "") + "/config.xml"
	if err := s.client.postXML(ctx, path, config); err != nil {
		return fmt.Errorf("updating permissions of project %s: %w", exercise.ProjectKey, err)
	}
	return nil
}

// GiveProjectPermissions grants the course groups read access on the folder.
// A failing grant is logged, the folder stays usable for the other groups.
func (s *Service) GiveProjectPermissions(ctx context.Context, projectKey string, groups ci.CourseGroups) error {
	var entries []string
	for _, group := range []string{groups.Instructor, groups.Editor, groups.TeachingAssistant} {
		if group != "" {
			entries = append(entries, matrixEntries(group, []ci.Permission{ci.PermissionRead})...)
		}
	}
	config, err := buildFolderConfig("", entries)
	if err != nil {
		return err
	}
	if err := s.client.postXML(ctx, folderPath(projectKey, "")+"/config.xml", config); err != nil {
		slog.Error("Could not grant project permissions", "project", projectKey, "error", err)
	}
	return nil
}

// RemoveAllDefaultProjectPermissions publishes a non-inheriting matrix so the
// folder stops picking up the master's global anonymous and logged-in read
// grants.
func (s *Service) RemoveAllDefaultProjectPermissions(ctx context.Context, projectKey string) error {
	entries := []string{"USER:hudson.model.Item.Read:" + s.cfg.ServiceUser}
	config, err := buildFolderConfig("", entries)
	if err != nil {
		return err
	}
	if err := s.client.postXML(ctx, folderPath(projectKey, "")+"/config.xml", config); err != nil {
		return fmt.Errorf("removing default permissions from project %s: %w", projectKey, err)
	}
	return nil
}
