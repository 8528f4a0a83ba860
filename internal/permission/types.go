// Package permission converts role filters between the structured form the
// console edits and the flattened, comma-joined shape the backend persists.
//
// Every multi-select field holds label/value options while it is being
// edited. On the wire the same field is a single comma-joined string. The
// empty string means "unrestricted", and the wildcard option "*" is never
// written out literally.
package permission

import (
	"encoding/json"
	"fmt"

	"github.com/kubedeck/kubedeck/internal/option"
)

// EntityType discriminates the kind of grant a role filter represents.
type EntityType string

const (
	EntityDirect     EntityType = ""
	EntityChartGroup EntityType = "chart-group"
	EntityCluster    EntityType = "cluster"
	EntityJob        EntityType = "jobs"
)

// AccessType scopes direct permissions to an application flavour.
type AccessType string

const (
	AccessTypeDevtronApps AccessType = "devtron-app"
	AccessTypeHelmApps    AccessType = "helm-app"
	AccessTypeJobs        AccessType = ""
)

// ServerMode is the platform operating mode.
type ServerMode string

const (
	ServerModeFull   ServerMode = "FULL"
	ServerModeEAOnly ServerMode = "EA_ONLY"
)

// PermissionType tells whether a subject is super admin or holds specific grants.
type PermissionType string

const (
	PermissionTypeSuperAdmin PermissionType = "SUPER_ADMIN"
	PermissionTypeSpecific   PermissionType = "SPECIFIC"
)

// ActionConfigApprover is appended to a direct permission's action when the
// grant also allows approving configuration changes.
const ActionConfigApprover = "configApprover"

// Default action for chart-group grants that have never been edited.
const ActionView = "view"

// Labels of the wildcard options preselected when a wire field is empty.
const (
	LabelAllEnvironments = "All environments"
	LabelAllApplications = "All applications"
	LabelAllJobs         = "All jobs"
	LabelAllWorkflows    = "All workflows"
	LabelAllNamespaces   = "All namespaces"
	LabelAllGroups       = "All API groups"
	LabelAllKinds        = "All kinds"
	LabelAllResources    = "All resources"
)

// Config carries the platform context the codec needs. It replaces reading
// server mode from global state.
type Config struct {
	ServerMode ServerMode
}

// EnvironmentOption is an environment selection. ClusterName is empty for the
// "all existing and future namespaces of a cluster" marker, whose value is
// the cluster name prefixed with '#'.
type EnvironmentOption struct {
	Label       string `json:"label"`
	Value       string `json:"value"`
	ClusterName string `json:"clusterName"`
}

// Option drops the cluster association.
func (e EnvironmentOption) Option() option.Option {
	return option.Option{Label: e.Label, Value: e.Value}
}

// ActionOption is the selected role of a direct permission.
type ActionOption struct {
	Label          string `json:"label"`
	Value          string `json:"value"`
	ConfigApprover bool   `json:"configApprover,omitempty"`
}

// RoleFilter is one permission grant in editable form. It is implemented by
// AppPermission, JobPermission, ChartGroupPermission and ClusterPermission.
type RoleFilter interface {
	Entity() EntityType
	roleFilter()
}

// ScopedPermission holds the fields shared by app and job grants.
type ScopedPermission struct {
	AccessType  AccessType          `json:"accessType"`
	Team        option.Option       `json:"team"`
	Environment []EnvironmentOption `json:"environment"`
	EntityName  []option.Option     `json:"entityName"`
	Action      ActionOption        `json:"action"`
}

// AppPermission grants access to devtron or helm applications.
type AppPermission struct {
	ScopedPermission
}

// JobPermission grants access to jobs, optionally narrowed to workflows.
type JobPermission struct {
	ScopedPermission
	Workflow []option.Option `json:"workflow"`
}

// ChartGroupPermission grants access to chart groups.
type ChartGroupPermission struct {
	Action     string          `json:"action"`
	EntityName []option.Option `json:"entityName"`
}

// ClusterPermission grants access to Kubernetes resources of a cluster.
type ClusterPermission struct {
	Action    option.Option   `json:"action"`
	Cluster   option.Option   `json:"cluster"`
	Namespace option.Option   `json:"namespace"`
	Group     option.Option   `json:"group"`
	Kind      option.Option   `json:"kind"`
	Resource  []option.Option `json:"resource"`
}

func (AppPermission) Entity() EntityType        { return EntityDirect }
func (JobPermission) Entity() EntityType        { return EntityJob }
func (ChartGroupPermission) Entity() EntityType { return EntityChartGroup }
func (ClusterPermission) Entity() EntityType    { return EntityCluster }

func (AppPermission) roleFilter()        {}
func (JobPermission) roleFilter()        {}
func (ChartGroupPermission) roleFilter() {}
func (ClusterPermission) roleFilter()    {}

// Form is the editable permission state of a user or permission group.
// Direct holds AppPermission and JobPermission entries.
type Form struct {
	PermissionType PermissionType       `json:"permissionType"`
	Direct         []RoleFilter         `json:"-"`
	ChartGroup     ChartGroupPermission `json:"chartPermission"`
	Cluster        []ClusterPermission  `json:"k8sPermission"`
}

// IsSuperAdmin reports whether the form grants super admin.
func (f Form) IsSuperAdmin() bool {
	return f.PermissionType == PermissionTypeSuperAdmin
}

// directJSON is the wire envelope of a direct-permission row inside a Form.
type directJSON struct {
	Entity EntityType `json:"entity"`
	ScopedPermission
	Workflow []option.Option `json:"workflow,omitempty"`
}

type formJSON struct {
	PermissionType PermissionType       `json:"permissionType"`
	Direct         []directJSON         `json:"directPermission"`
	ChartGroup     ChartGroupPermission `json:"chartPermission"`
	Cluster        []ClusterPermission  `json:"k8sPermission"`
}

// MarshalJSON encodes Direct rows with an explicit entity tag.
func (f Form) MarshalJSON() ([]byte, error) {
	out := formJSON{
		PermissionType: f.PermissionType,
		Direct:         make([]directJSON, 0, len(f.Direct)),
		ChartGroup:     f.ChartGroup,
		Cluster:        f.Cluster,
	}
	for _, rf := range f.Direct {
		switch p := rf.(type) {
		case AppPermission:
			out.Direct = append(out.Direct, directJSON{Entity: EntityDirect, ScopedPermission: p.ScopedPermission})
		case JobPermission:
			out.Direct = append(out.Direct, directJSON{Entity: EntityJob, ScopedPermission: p.ScopedPermission, Workflow: p.Workflow})
		default:
			return nil, fmt.Errorf("unsupported direct permission entity %q", rf.Entity())
		}
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes Direct rows by their entity tag.
func (f *Form) UnmarshalJSON(data []byte) error {
	var in formJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	form := Form{
		PermissionType: in.PermissionType,
		ChartGroup:     in.ChartGroup,
		Cluster:        in.Cluster,
	}
	for i, d := range in.Direct {
		switch d.Entity {
		case EntityDirect:
			form.Direct = append(form.Direct, AppPermission{ScopedPermission: d.ScopedPermission})
		case EntityJob:
			form.Direct = append(form.Direct, JobPermission{ScopedPermission: d.ScopedPermission, Workflow: d.Workflow})
		default:
			return fmt.Errorf("directPermission[%d]: unsupported entity %q", i, d.Entity)
		}
	}
	if form.PermissionType == "" {
		form.PermissionType = PermissionTypeSpecific
	}
	*f = form
	return nil
}

// APIRoleFilter is the flattened role filter exchanged with the backend.
type APIRoleFilter struct {
	Entity      EntityType `json:"entity"`
	Team        string     `json:"team"`
	EntityName  string     `json:"entityName"`
	Environment string     `json:"environment"`
	Action      string     `json:"action"`
	AccessType  AccessType `json:"accessType,omitempty"`
	Cluster     string     `json:"cluster,omitempty"`
	Namespace   string     `json:"namespace,omitempty"`
	Group       string     `json:"group,omitempty"`
	Kind        string     `json:"kind,omitempty"`
	Resource    string     `json:"resource,omitempty"`
	Workflow    string     `json:"workflow,omitempty"`
}

// PermissionGroupDTO is a permission group as the backend stores it.
type PermissionGroupDTO struct {
	ID          int             `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	RoleFilters []APIRoleFilter `json:"roleFilters"`
	SuperAdmin  bool            `json:"superAdmin"`
}

// PermissionGroupPayload is the create/update body for a permission group.
type PermissionGroupPayload = PermissionGroupDTO

// UserRoleGroup links a user to a permission group.
type UserRoleGroup struct {
	ID          int    `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// UserDTO is a user as the backend returns it.
type UserDTO struct {
	ID                      int             `json:"id"`
	EmailID                 string          `json:"email_id"`
	UserStatus              string          `json:"userStatus,omitempty"`
	LastLoginTime           string          `json:"lastLoginTime,omitempty"`
	TimeoutWindowExpression string          `json:"timeoutWindowExpression,omitempty"`
	RoleFilters             []APIRoleFilter `json:"roleFilters"`
	SuperAdmin              bool            `json:"superAdmin"`
	UserRoleGroups          []UserRoleGroup `json:"userRoleGroups,omitempty"`
}

// UserPayload is the create/update body for a user.
type UserPayload struct {
	ID             int             `json:"id"`
	EmailID        string          `json:"emailId"`
	UserStatus     string          `json:"userStatus,omitempty"`
	TimeToLive     string          `json:"timeToLive,omitempty"`
	UserRoleGroups []UserRoleGroup `json:"userRoleGroups"`
	Groups         []string        `json:"groups"`
	RoleFilters    []APIRoleFilter `json:"roleFilters"`
	SuperAdmin     bool            `json:"superAdmin"`
}

// PermissionGroupForm is an editable permission group.
type PermissionGroupForm struct {
	ID          int    `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Form        Form   `json:"form"`
}

// UserForm is an editable user.
type UserForm struct {
	ID             int             `json:"id"`
	EmailID        string          `json:"emailId"`
	UserStatus     string          `json:"userStatus,omitempty"`
	TimeToLive     string          `json:"timeToLive,omitempty"`
	UserRoleGroups []UserRoleGroup `json:"userRoleGroups"`
	Form           Form            `json:"form"`
}
