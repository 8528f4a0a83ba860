package permission

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/kubedeck/kubedeck/internal/option"
)

// actionLabel turns a role value such as "admin" into its display label.
// Casers keep state, so each call gets its own.
func actionLabel(v string) string {
	return cases.Title(language.English).String(v)
}

// DecodeOptions supplies lookups for data the wire form does not carry.
// Either resolver may be nil.
type DecodeOptions struct {
	// ClusterOfEnvironment returns the cluster an environment belongs to,
	// or "" when unknown.
	ClusterOfEnvironment func(env string) string

	// ClusterID returns the id of a cluster given its name, or "" when unknown.
	ClusterID func(clusterName string) string
}

func (o DecodeOptions) clusterOf(env string) string {
	if o.ClusterOfEnvironment == nil {
		return ""
	}
	return o.ClusterOfEnvironment(env)
}

func (o DecodeOptions) clusterID(name string) string {
	if o.ClusterID != nil {
		if id := o.ClusterID(name); id != "" {
			return id
		}
	}
	return name
}

// DefaultChartGroupPermission is the chart-group grant of a subject that has none.
func DefaultChartGroupPermission() ChartGroupPermission {
	return ChartGroupPermission{Action: ActionView, EntityName: []option.Option{}}
}

// DecodeFromAPI rebuilds the editable form from wire role filters. Filters
// are routed by entity, empty wire fields preselect the wildcard option, and
// unknown entities are ignored.
func DecodeFromAPI(filters []APIRoleFilter, superAdmin bool, opts DecodeOptions) Form {
	form := Form{
		PermissionType: PermissionTypeSpecific,
		Direct:         []RoleFilter{},
		ChartGroup:     DefaultChartGroupPermission(),
		Cluster:        []ClusterPermission{},
	}
	if superAdmin {
		form.PermissionType = PermissionTypeSuperAdmin
	}
	for _, f := range filters {
		switch rf := decodeRoleFilter(f, opts).(type) {
		case AppPermission, JobPermission:
			form.Direct = append(form.Direct, rf)
		case ChartGroupPermission:
			form.ChartGroup = rf
		case ClusterPermission:
			form.Cluster = append(form.Cluster, rf)
		}
	}
	return form
}

// DecodePermissionGroup rebuilds an editable permission group.
func DecodePermissionGroup(dto PermissionGroupDTO, opts DecodeOptions) PermissionGroupForm {
	return PermissionGroupForm{
		ID:          dto.ID,
		Name:        dto.Name,
		Description: dto.Description,
		Form:        DecodeFromAPI(dto.RoleFilters, dto.SuperAdmin, opts),
	}
}

// DecodeUser rebuilds an editable user.
func DecodeUser(dto UserDTO, opts DecodeOptions) UserForm {
	groups := dto.UserRoleGroups
	if groups == nil {
		groups = []UserRoleGroup{}
	}
	return UserForm{
		ID:             dto.ID,
		EmailID:        dto.EmailID,
		UserStatus:     dto.UserStatus,
		TimeToLive:     dto.TimeoutWindowExpression,
		UserRoleGroups: groups,
		Form:           DecodeFromAPI(dto.RoleFilters, dto.SuperAdmin, opts),
	}
}

func decodeRoleFilter(f APIRoleFilter, opts DecodeOptions) RoleFilter {
	switch f.Entity {
	case EntityDirect:
		accessType := f.AccessType
		if accessType == "" {
			accessType = AccessTypeDevtronApps
		}
		return AppPermission{ScopedPermission: decodeScoped(f, accessType, LabelAllApplications, opts)}
	case EntityJob:
		return JobPermission{
			ScopedPermission: decodeScoped(f, AccessTypeJobs, LabelAllJobs, opts),
			Workflow:         decodeMultiSelect(f.Workflow, LabelAllWorkflows),
		}
	case EntityChartGroup:
		names := make([]option.Option, 0)
		for _, v := range option.Split(f.EntityName) {
			names = append(names, option.New(v))
		}
		action := f.Action
		if action == "" {
			action = ActionView
		}
		return ChartGroupPermission{Action: action, EntityName: names}
	case EntityCluster:
		return ClusterPermission{
			Action:    option.Option{Label: actionLabel(f.Action), Value: f.Action},
			Cluster:   option.Option{Label: f.Cluster, Value: opts.clusterID(f.Cluster)},
			Namespace: decodeSingleSelect(f.Namespace, LabelAllNamespaces),
			Group:     decodeSingleSelect(f.Group, LabelAllGroups),
			Kind:      decodeSingleSelect(f.Kind, LabelAllKinds),
			Resource:  decodeMultiSelect(f.Resource, LabelAllResources),
		}
	default:
		return nil
	}
}

func decodeScoped(f APIRoleFilter, accessType AccessType, allEntitiesLabel string, opts DecodeOptions) ScopedPermission {
	return ScopedPermission{
		AccessType:  accessType,
		Team:        option.New(f.Team),
		Environment: decodeEnvironment(f.Environment, accessType, opts),
		EntityName:  decodeMultiSelect(f.EntityName, allEntitiesLabel),
		Action:      decodeAction(f.Action),
	}
}

func decodeAction(v string) ActionOption {
	parts := option.Split(v)
	if len(parts) == 0 {
		return ActionOption{}
	}
	a := ActionOption{Label: actionLabel(parts[0]), Value: parts[0]}
	for _, p := range parts[1:] {
		if p == ActionConfigApprover {
			a.ConfigApprover = true
		}
	}
	return a
}

func decodeMultiSelect(v, wildcardLabel string) []option.Option {
	values := option.Split(v)
	if len(values) == 0 {
		return []option.Option{{Label: wildcardLabel, Value: option.Wildcard}}
	}
	opts := make([]option.Option, 0, len(values))
	for _, value := range values {
		opts = append(opts, option.New(value))
	}
	return opts
}

func decodeSingleSelect(v, wildcardLabel string) option.Option {
	if strings.TrimSpace(v) == "" {
		return option.Option{Label: wildcardLabel, Value: option.Wildcard}
	}
	return option.New(v)
}

func decodeEnvironment(v string, accessType AccessType, opts DecodeOptions) []EnvironmentOption {
	values := option.Split(v)
	if len(values) == 0 {
		return []EnvironmentOption{{Label: LabelAllEnvironments, Value: option.Wildcard}}
	}
	envs := make([]EnvironmentOption, 0, len(values))
	for _, value := range values {
		if accessType != AccessTypeHelmApps {
			envs = append(envs, EnvironmentOption{Label: value, Value: value, ClusterName: opts.clusterOf(value)})
			continue
		}
		s := parseWireEnvironment(value)
		if !s.allFuture {
			s.cluster = opts.clusterOf(value)
		}
		envs = append(envs, s.editable())
	}
	return envs
}
