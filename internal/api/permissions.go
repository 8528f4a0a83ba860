package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"k8s.io/klog/v2"

	"github.com/kubedeck/kubedeck/internal/auth"
	"github.com/kubedeck/kubedeck/internal/browser"
	"github.com/kubedeck/kubedeck/internal/permission"
	"github.com/kubedeck/kubedeck/internal/store"
)

// ListPermissionGroupsResponse represents the response for listing groups.
type ListPermissionGroupsResponse struct {
	Groups []*store.PermissionGroup `json:"groups"`
	Total  int                      `json:"total"`
	Limit  int                      `json:"limit"`
	Offset int                      `json:"offset"`
}

// PermissionGroupResponse carries a stored group and its editable form.
type PermissionGroupResponse struct {
	Group *store.PermissionGroup         `json:"group"`
	Form  permission.PermissionGroupForm `json:"form"`
}

// SavePermissionGroupRequest is the body of a group create or update. A
// top-level permissionType overrides the one inside the form.
type SavePermissionGroupRequest struct {
	permission.PermissionGroupForm
	PermissionType permission.PermissionType `json:"permissionType,omitempty"`
}

func (req SavePermissionGroupRequest) group() permission.PermissionGroupForm {
	g := req.PermissionGroupForm
	if req.PermissionType != "" {
		g.Form.PermissionType = req.PermissionType
	}
	return g
}

// ChangesResponse tells whether an edited group differs from the stored one.
type ChangesResponse struct {
	ID      int  `json:"id"`
	Changed bool `json:"changed"`
}

// UserRoleResponse is the role of the caller.
type UserRoleResponse struct {
	Username   string   `json:"username"`
	Roles      []string `json:"roles"`
	SuperAdmin bool     `json:"superAdmin"`
}

// HandleListPermissionGroups handles GET /api/permission-groups requests.
func (s *Server) HandleListPermissionGroups(w http.ResponseWriter, r *http.Request) {
	filters := store.QueryFilters{Search: strings.TrimSpace(r.URL.Query().Get("search"))}
	pagination := store.PaginationParams{
		Limit:  queryInt(r, "limit", store.DefaultLimit),
		Offset: queryInt(r, "offset", 0),
	}
	if pagination.Limit == 0 {
		pagination.Limit = store.DefaultLimit
	}
	sortOrder := store.SortOrderAsc
	if r.URL.Query().Get("sort") == "desc" {
		sortOrder = store.SortOrderDesc
	}

	result, err := s.store.ListPermissionGroups(r.Context(), filters, pagination, sortOrder)
	if err != nil {
		s.sendStoreError(w, "list permission groups", err)
		return
	}

	s.sendJSON(w, http.StatusOK, ListPermissionGroupsResponse{
		Groups: result.Groups,
		Total:  result.Total,
		Limit:  min(pagination.Limit, store.MaxLimit),
		Offset: pagination.Offset,
	})
}

// HandleGetPermissionGroup handles GET /api/permission-groups/{id} requests.
func (s *Server) HandleGetPermissionGroup(w http.ResponseWriter, r *http.Request) {
	id, err := groupID(r)
	if err != nil {
		s.sendError(w, http.StatusBadRequest, err.Error())
		return
	}

	group, err := s.store.GetPermissionGroup(r.Context(), id)
	if err != nil {
		s.sendStoreError(w, "get permission group", err)
		return
	}

	s.sendJSON(w, http.StatusOK, PermissionGroupResponse{
		Group: group,
		Form:  permission.DecodePermissionGroup(group.PermissionGroupDTO, s.decodeOptions()),
	})
}

// HandlePermissionGroupChanges handles POST /api/permission-groups/{id}/changes
// requests. It reports whether the submitted form differs from the stored
// group, which drives the unsaved-changes prompt of an edit screen.
func (s *Server) HandlePermissionGroupChanges(w http.ResponseWriter, r *http.Request) {
	id, sub, err := groupPath(r)
	if err != nil || sub != "changes" {
		s.sendError(w, http.StatusNotFound, "Invalid path. Expected: /api/permission-groups/{id}/changes")
		return
	}
	var req SavePermissionGroupRequest
	if err := decodeBody(r, &req); err != nil {
		s.sendError(w, http.StatusBadRequest, err.Error())
		return
	}

	group, err := s.store.GetPermissionGroup(r.Context(), id)
	if err != nil {
		s.sendStoreError(w, "get permission group", err)
		return
	}
	stored := permission.DecodePermissionGroup(group.PermissionGroupDTO, s.decodeOptions())
	edited := req.group()

	snapshot := permission.TakeSnapshot(stored.Form)
	changed := snapshot.Changed(edited.Form) ||
		strings.TrimSpace(edited.Name) != stored.Name ||
		edited.Description != stored.Description
	s.sendJSON(w, http.StatusOK, ChangesResponse{ID: id, Changed: changed})
}

// HandleSavePermissionGroup handles POST (create) and PUT (update)
// /api/permission-groups requests.
func (s *Server) HandleSavePermissionGroup(w http.ResponseWriter, r *http.Request) {
	var req SavePermissionGroupRequest
	if err := decodeBody(r, &req); err != nil {
		s.sendError(w, http.StatusBadRequest, err.Error())
		return
	}
	group := req.group()

	create := r.Method == http.MethodPost
	switch {
	case create && group.ID != 0:
		s.sendError(w, http.StatusBadRequest, "id must not be set when creating a permission group")
		return
	case !create && group.ID == 0:
		s.sendError(w, http.StatusBadRequest, "id is required when updating a permission group")
		return
	}

	if err := permission.ValidatePermissionGroup(group); err != nil {
		var verr *permission.ValidationError
		if errors.As(err, &verr) {
			s.sendValidationError(w, verr)
			return
		}
		s.sendError(w, http.StatusBadRequest, err.Error())
		return
	}

	payload := permission.BuildPermissionGroupPayload(group, s.codec)
	saved, err := s.store.CreateOrUpdatePermissionGroup(r.Context(), payload)
	s.recordPermissionWrite("save", err)
	if err != nil {
		s.sendStoreError(w, "save permission group", err)
		return
	}

	klog.Infof("Saved permission group %d %q with %d role filter(s)", saved.ID, saved.Name, len(saved.RoleFilters))
	status := http.StatusOK
	if create {
		status = http.StatusCreated
	}
	s.sendJSON(w, status, saved)
}

// HandleDeletePermissionGroup handles DELETE /api/permission-groups/{id} requests.
func (s *Server) HandleDeletePermissionGroup(w http.ResponseWriter, r *http.Request) {
	id, err := groupID(r)
	if err != nil {
		s.sendError(w, http.StatusBadRequest, err.Error())
		return
	}

	err = s.store.DeletePermissionGroup(r.Context(), id)
	s.recordPermissionWrite("delete", err)
	if err != nil {
		s.sendStoreError(w, "delete permission group", err)
		return
	}

	klog.Infof("Deleted permission group %d", id)
	w.WriteHeader(http.StatusNoContent)
}

// HandlePreviewPermissions handles POST /api/permissions/preview requests.
// It returns the payload a save would send without persisting it. With
// ?subject=user the body is a user form instead of a group.
func (s *Server) HandlePreviewPermissions(w http.ResponseWriter, r *http.Request) {
	var (
		payload any
		err     error
	)
	if r.URL.Query().Get("subject") == "user" {
		var user permission.UserForm
		if err := decodeBody(r, &user); err != nil {
			s.sendError(w, http.StatusBadRequest, err.Error())
			return
		}
		err = permission.ValidateUser(user)
		payload = permission.BuildUserPayload(user, s.codec)
	} else {
		var req SavePermissionGroupRequest
		if err := decodeBody(r, &req); err != nil {
			s.sendError(w, http.StatusBadRequest, err.Error())
			return
		}
		err = permission.ValidatePermissionGroup(req.group())
		payload = permission.BuildPermissionGroupPayload(req.group(), s.codec)
	}

	var verr *permission.ValidationError
	if errors.As(err, &verr) {
		s.sendValidationError(w, verr)
		return
	}
	s.sendJSON(w, http.StatusOK, payload)
}

// HandleDecodePermissions handles POST /api/permissions/decode requests. It
// turns a stored permission group, or with ?subject=user a stored user, into
// its editable form.
func (s *Server) HandleDecodePermissions(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("subject") == "user" {
		var dto permission.UserDTO
		if err := decodeBody(r, &dto); err != nil {
			s.sendError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.sendJSON(w, http.StatusOK, permission.DecodeUser(dto, s.decodeOptions()))
		return
	}
	var dto permission.PermissionGroupDTO
	if err := decodeBody(r, &dto); err != nil {
		s.sendError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.sendJSON(w, http.StatusOK, permission.DecodePermissionGroup(dto, s.decodeOptions()))
}

// HandleUserRole handles GET /api/user-role requests.
func (s *Server) HandleUserRole(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.GetUser(r)
	if !ok {
		s.sendError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	roles := user.Roles
	if roles == nil {
		roles = []string{}
	}
	s.sendJSON(w, http.StatusOK, UserRoleResponse{
		Username:   user.Username,
		Roles:      roles,
		SuperAdmin: user.IsSuperAdmin(),
	})
}

// UserRoleFromContext resolves the role of the authenticated caller. It
// serves as the role source of browser pages.
func UserRoleFromContext(ctx context.Context) (browser.UserRole, error) {
	user, ok := auth.UserFromContext(ctx)
	if !ok {
		return browser.UserRole{}, errors.New("no authenticated user")
	}
	return browser.UserRole{Roles: user.Roles, SuperAdmin: user.IsSuperAdmin()}, nil
}

// decodeOptions resolves cluster names in cluster grants to cluster ids.
// The configured clusters are used as they are, without contacting them.
// Without a cluster set the names are kept.
func (s *Server) decodeOptions() permission.DecodeOptions {
	if s.clusters == nil {
		return permission.DecodeOptions{}
	}
	known := s.clusters.KnownClusters()
	ids := make(map[string]string, len(known))
	for _, c := range known {
		ids[c.Name] = strconv.Itoa(c.ID)
	}
	return permission.DecodeOptions{
		ClusterID: func(name string) string { return ids[name] },
	}
}

func (s *Server) recordPermissionWrite(operation string, err error) {
	if s.metrics != nil {
		s.metrics.RecordPermissionWrite(operation, err)
	}
}

// groupID extracts the id from /api/permission-groups/{id}.
func groupID(r *http.Request) (int, error) {
	id, sub, err := groupPath(r)
	if err != nil {
		return 0, err
	}
	if sub != "" {
		return 0, errors.New("missing or invalid permission group id")
	}
	return id, nil
}

// groupPath splits /api/permission-groups/{id}[/{sub}].
func groupPath(r *http.Request) (int, string, error) {
	rest := strings.TrimPrefix(r.URL.EscapedPath(), "/api/permission-groups/")
	raw, sub, _ := strings.Cut(rest, "/")
	if raw == "" {
		return 0, "", errors.New("missing or invalid permission group id")
	}
	raw, err := url.PathUnescape(raw)
	if err != nil {
		return 0, "", fmt.Errorf("invalid permission group id: %w", err)
	}
	id, err := strconv.Atoi(raw)
	if err != nil || id <= 0 {
		return 0, "", fmt.Errorf("invalid permission group id %q", raw)
	}
	return id, sub, nil
}
