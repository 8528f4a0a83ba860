package permission

import (
	"errors"
	"fmt"
	"strings"
)

// FieldError describes one missing or invalid field. Index is the position of
// the offending direct permission row, or -1 for top-level fields.
type FieldError struct {
	Index   int    `json:"index"`
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError blocks a submission. It lists every field that needs input.
type ValidationError struct {
	Errors []FieldError `json:"errors"`
}

func (e *ValidationError) Error() string {
	msgs := make([]string, 0, len(e.Errors))
	for _, fe := range e.Errors {
		if fe.Index >= 0 {
			msgs = append(msgs, fmt.Sprintf("row %d: %s", fe.Index, fe.Message))
			continue
		}
		msgs = append(msgs, fe.Message)
	}
	return "validation failed: " + strings.Join(msgs, "; ")
}

// ValidatePermissionGroup checks the fields that must be filled before a
// permission group can be saved.
func ValidatePermissionGroup(g PermissionGroupForm) error {
	var errs []FieldError
	if strings.TrimSpace(g.Name) == "" {
		errs = append(errs, FieldError{Index: -1, Field: "name", Message: "Group name is mandatory"})
	}
	if !g.Form.IsSuperAdmin() {
		errs = append(errs, fieldErrors(ValidateDirectPermissions(g.Form.Direct))...)
	}
	if len(errs) > 0 {
		return &ValidationError{Errors: errs}
	}
	return nil
}

// ValidateUser checks the fields that must be filled before a user can be saved.
func ValidateUser(u UserForm) error {
	var errs []FieldError
	if strings.TrimSpace(u.EmailID) == "" {
		errs = append(errs, FieldError{Index: -1, Field: "emailId", Message: "Email is mandatory"})
	}
	if !u.Form.IsSuperAdmin() {
		errs = append(errs, fieldErrors(ValidateDirectPermissions(u.Form.Direct))...)
	}
	if len(errs) > 0 {
		return &ValidationError{Errors: errs}
	}
	return nil
}

// ValidateDirectPermissions reports rows that have a team but are otherwise
// incomplete. Rows without a team are not errors. They are dropped on
// submission instead.
func ValidateDirectPermissions(direct []RoleFilter) error {
	if errs := directPermissionErrors(direct); len(errs) > 0 {
		return &ValidationError{Errors: errs}
	}
	return nil
}

func fieldErrors(err error) []FieldError {
	var verr *ValidationError
	if errors.As(err, &verr) {
		return verr.Errors
	}
	return nil
}

func directPermissionErrors(direct []RoleFilter) []FieldError {
	var errs []FieldError
	for i, rf := range direct {
		var (
			scoped   ScopedPermission
			workflow int
			isJob    bool
		)
		switch p := rf.(type) {
		case AppPermission:
			scoped = p.ScopedPermission
		case JobPermission:
			scoped = p.ScopedPermission
			isJob = true
			workflow = len(p.Workflow)
		default:
			continue
		}
		if scoped.Team.Value == "" {
			continue
		}
		if len(scoped.EntityName) == 0 {
			msg := "Applications are mandatory"
			if isJob {
				msg = "Jobs are mandatory"
			}
			errs = append(errs, FieldError{Index: i, Field: "entityName", Message: msg})
		}
		if len(scoped.Environment) == 0 {
			errs = append(errs, FieldError{Index: i, Field: "environment", Message: "Environments are mandatory"})
		}
		if isJob && workflow == 0 {
			errs = append(errs, FieldError{Index: i, Field: "workflow", Message: "Workflows are mandatory"})
		}
	}
	return errs
}
