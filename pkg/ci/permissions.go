package ci

// Permission is one right a user or group can hold on a plan or project.
type Permission string

const (
	PermissionView  Permission = "VIEW"
	PermissionEdit  Permission = "EDIT"
	PermissionBuild Permission = "BUILD"
	PermissionClone Permission = "CLONE"
	PermissionAdmin Permission = "ADMIN"
	PermissionRead  Permission = "READ"
)

func fullPermissions() []Permission {
	return []Permission{PermissionClone, PermissionBuild, PermissionEdit, PermissionView, PermissionAdmin}
}

// GroupPermission grants a set of permissions to one user group.
type GroupPermission struct {
	Group       string
	Permissions []Permission
}

// PlanPermissions is the complete permission set published for one build
// plan. The CI service user always holds full rights so the platform itself
// can keep managing the plan.
type PlanPermissions struct {
	Plan             PlanID
	ServiceUser      string
	UserPermissions  []Permission
	GroupPermissions []GroupPermission
}

// AssemblePlanPermissions builds the permission set for a plan. Admin and
// instructor groups receive full rights. The editor group receives full
// rights only when the course defines one, the teaching assistant group is
// view-only and equally optional. Absent groups are omitted from the request
// entirely instead of being sent with an empty name.
func AssemblePlanPermissions(plan PlanID, serviceUser, adminGroup string, groups CourseGroups) PlanPermissions {
	grants := []GroupPermission{
		{Group: adminGroup, Permissions: fullPermissions()},
		{Group: groups.Instructor, Permissions: fullPermissions()},
	}
	if groups.Editor != "" {
		grants = append(grants, GroupPermission{Group: groups.Editor, Permissions: fullPermissions()})
	}
	if groups.TeachingAssistant != "" {
		grants = append(grants, GroupPermission{Group: groups.TeachingAssistant, Permissions: []Permission{PermissionView}})
	}
	return PlanPermissions{
		Plan:             plan,
		ServiceUser:      serviceUser,
		UserPermissions:  fullPermissions(),
		GroupPermissions: grants,
	}
}
