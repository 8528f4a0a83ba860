package permission

import (
	"github.com/kubedeck/kubedeck/internal/option"
)

// EncodeMultiSelect returns "" when list contains wildcard, otherwise the
// comma-joined values of list.
func EncodeMultiSelect(list []option.Option, wildcard string) string {
	for _, o := range list {
		if o.Value == wildcard {
			return ""
		}
	}
	return option.Join(list)
}

// encodeSingleSelect collapses a wildcard single selection to "" and
// otherwise writes value(o).
func encodeSingleSelect(o option.Option, value func(option.Option) string) string {
	if o.IsWildcard() {
		return ""
	}
	return value(o)
}

func byValue(o option.Option) string { return o.Value }
func byLabel(o option.Option) string { return o.Label }

// EncodeEnvironmentSelection returns the wire environment of an app or job
// grant. Devtron apps and jobs collapse the wildcard to "". Helm apps expand
// cluster future-namespace markers to "<cluster>__*". Other entities have no
// environment and encode to "".
func EncodeEnvironmentSelection(rf RoleFilter) string {
	switch p := rf.(type) {
	case AppPermission:
		if p.AccessType == AccessTypeDevtronApps {
			return encodeEnvironmentList(p.Environment)
		}
		return encodeClusterEnvironments(p.Environment)
	case JobPermission:
		return encodeEnvironmentList(p.Environment)
	default:
		return ""
	}
}

func encodeEnvironmentList(envs []EnvironmentOption) string {
	if hasWildcardEnvironment(envs) {
		return ""
	}
	opts := make([]option.Option, 0, len(envs))
	for _, e := range envs {
		opts = append(opts, e.Option())
	}
	return option.Join(opts)
}

func encodeAction(a ActionOption) string {
	if a.ConfigApprover {
		return a.Value + "," + ActionConfigApprover
	}
	return a.Value
}

// IsComplete reports whether rf may be submitted. App and job grants need a
// team, at least one environment and at least one entity name.
func IsComplete(rf RoleFilter) bool {
	switch p := rf.(type) {
	case AppPermission:
		return p.ScopedPermission.complete()
	case JobPermission:
		return p.ScopedPermission.complete()
	default:
		return rf != nil
	}
}

func (s ScopedPermission) complete() bool {
	return s.Team.Value != "" && len(s.Environment) > 0 && len(s.EntityName) > 0
}

// EncodeRoleFilter flattens rf into its wire shape.
func EncodeRoleFilter(rf RoleFilter) APIRoleFilter {
	switch p := rf.(type) {
	case AppPermission:
		return APIRoleFilter{
			Entity:      EntityDirect,
			AccessType:  p.AccessType,
			Team:        p.Team.Value,
			Environment: EncodeEnvironmentSelection(p),
			EntityName:  EncodeMultiSelect(p.EntityName, option.Wildcard),
			Action:      encodeAction(p.Action),
		}
	case JobPermission:
		workflow := ""
		if len(p.Workflow) > 0 {
			workflow = EncodeMultiSelect(p.Workflow, option.Wildcard)
		}
		return APIRoleFilter{
			Entity:      EntityJob,
			AccessType:  p.AccessType,
			Team:        p.Team.Value,
			Environment: EncodeEnvironmentSelection(p),
			EntityName:  EncodeMultiSelect(p.EntityName, option.Wildcard),
			Action:      encodeAction(p.Action),
			Workflow:    workflow,
		}
	case ChartGroupPermission:
		// Chart-group names are never wildcard-collapsed.
		return APIRoleFilter{
			Entity:     EntityChartGroup,
			Action:     p.Action,
			EntityName: option.Join(p.EntityName),
		}
	case ClusterPermission:
		return APIRoleFilter{
			Entity:    EntityCluster,
			Action:    p.Action.Value,
			Cluster:   p.Cluster.Label,
			Group:     encodeSingleSelect(p.Group, byValue),
			Kind:      encodeSingleSelect(p.Kind, byLabel),
			Namespace: encodeSingleSelect(p.Namespace, byValue),
			Resource:  EncodeMultiSelect(p.Resource, option.Wildcard),
		}
	default:
		panic("permission: unknown role filter variant")
	}
}

// BuildRoleFilters assembles the wire role filters of form. Incomplete app
// and job grants are dropped. Cluster grants follow, and the chart-group
// grant is appended unless the platform runs in EA_ONLY mode.
func BuildRoleFilters(form Form, cfg Config) []APIRoleFilter {
	filters := make([]APIRoleFilter, 0, len(form.Direct)+len(form.Cluster)+1)
	for _, rf := range form.Direct {
		if rf == nil || !IsComplete(rf) {
			continue
		}
		filters = append(filters, EncodeRoleFilter(rf))
	}
	for _, cp := range form.Cluster {
		filters = append(filters, EncodeRoleFilter(cp))
	}
	if cfg.ServerMode != ServerModeEAOnly {
		filters = append(filters, EncodeRoleFilter(form.ChartGroup))
	}
	return filters
}

// BuildPermissionGroupPayload builds the create/update body for a group.
func BuildPermissionGroupPayload(group PermissionGroupForm, cfg Config) PermissionGroupPayload {
	return PermissionGroupPayload{
		ID:          group.ID,
		Name:        group.Name,
		Description: group.Description,
		RoleFilters: BuildRoleFilters(group.Form, cfg),
		SuperAdmin:  group.Form.IsSuperAdmin(),
	}
}

// BuildUserPayload builds the create/update body for a user.
func BuildUserPayload(user UserForm, cfg Config) UserPayload {
	groups := make([]string, 0, len(user.UserRoleGroups))
	for _, g := range user.UserRoleGroups {
		groups = append(groups, g.Name)
	}
	roleGroups := user.UserRoleGroups
	if roleGroups == nil {
		roleGroups = []UserRoleGroup{}
	}
	return UserPayload{
		ID:             user.ID,
		EmailID:        user.EmailID,
		UserStatus:     user.UserStatus,
		TimeToLive:     user.TimeToLive,
		UserRoleGroups: roleGroups,
		Groups:         groups,
		RoleFilters:    BuildRoleFilters(user.Form, cfg),
		SuperAdmin:     user.Form.IsSuperAdmin(),
	}
}
