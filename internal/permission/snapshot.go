package permission

import (
	"slices"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

// Snapshot is an immutable copy of a form taken when it was loaded. It backs
// the "Unsaved changes" indicator.
type Snapshot struct {
	form Form
}

// TakeSnapshot copies f so later edits to f do not leak into the snapshot.
func TakeSnapshot(f Form) Snapshot {
	return Snapshot{form: cloneForm(f)}
}

// Form returns a copy of the captured form.
func (s Snapshot) Form() Form {
	return cloneForm(s.form)
}

// Changed reports whether current differs structurally from the snapshot.
// Nil and empty slices compare equal.
func (s Snapshot) Changed(current Form) bool {
	return !cmp.Equal(s.form, current, cmpopts.EquateEmpty())
}

func cloneForm(f Form) Form {
	out := Form{
		PermissionType: f.PermissionType,
		ChartGroup: ChartGroupPermission{
			Action:     f.ChartGroup.Action,
			EntityName: slices.Clone(f.ChartGroup.EntityName),
		},
	}
	if f.Direct != nil {
		out.Direct = make([]RoleFilter, 0, len(f.Direct))
	}
	for _, rf := range f.Direct {
		switch p := rf.(type) {
		case AppPermission:
			out.Direct = append(out.Direct, AppPermission{ScopedPermission: p.ScopedPermission.clone()})
		case JobPermission:
			out.Direct = append(out.Direct, JobPermission{
				ScopedPermission: p.ScopedPermission.clone(),
				Workflow:         slices.Clone(p.Workflow),
			})
		default:
			out.Direct = append(out.Direct, rf)
		}
	}
	if f.Cluster != nil {
		out.Cluster = make([]ClusterPermission, 0, len(f.Cluster))
	}
	for _, cp := range f.Cluster {
		cp.Resource = slices.Clone(cp.Resource)
		out.Cluster = append(out.Cluster, cp)
	}
	return out
}

func (s ScopedPermission) clone() ScopedPermission {
	s.Environment = slices.Clone(s.Environment)
	s.EntityName = slices.Clone(s.EntityName)
	return s
}
