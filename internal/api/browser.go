package api

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"k8s.io/klog/v2"

	"github.com/kubedeck/kubedeck/internal/auth"
	"github.com/kubedeck/kubedeck/internal/browser"
	"github.com/kubedeck/kubedeck/internal/kube"
	"github.com/kubedeck/kubedeck/internal/tabs"
)

const sessionsPath = "/api/resource-browser/sessions/"

// ListClustersResponse is the cluster selector content.
type ListClustersResponse struct {
	Clusters []kube.Cluster `json:"clusters"`
}

// ResourceGroupsResponse lists the kinds served by a cluster.
type ResourceGroupsResponse struct {
	ClusterID      string               `json:"clusterId"`
	ResourceGroups []kube.ResourceGroup `json:"resourceGroups"`
}

// SessionResponse is the state of a browser session after a request.
type SessionResponse struct {
	SessionID string `json:"sessionId"`

	// Redirect is the path the client should show when the request moved
	// the selection. Empty means stay.
	Redirect string `json:"redirect,omitempty"`

	// TerminalURLUpdated reports whether a terminal URL update applied.
	TerminalURLUpdated bool         `json:"terminalUrlUpdated,omitempty"`
	View               browser.View `json:"view"`
}

// PathRequest carries a browser path.
type PathRequest struct {
	Path string `json:"path"`
}

// ChangeClusterRequest picks a cluster.
type ChangeClusterRequest struct {
	ClusterID string `json:"clusterId"`
}

// AddTabRequest opens a resource tab.
type AddTabRequest struct {
	IDPrefix string `json:"idPrefix"`
	Kind     string `json:"kind"`
	Name     string `json:"name"`
	URL      string `json:"url"`
}

// UpdateTabURLRequest records where a tab navigated to.
type UpdateTabURLRequest struct {
	URL   string `json:"url"`
	Title string `json:"title,omitempty"`
}

// TerminalQueryRequest carries the terminal session query string.
type TerminalQueryRequest struct {
	Query string `json:"query"`
}

// HandleListClusters handles GET /api/clusters requests.
func (s *Server) HandleListClusters(w http.ResponseWriter, r *http.Request) {
	clusters, err := s.clusters.ListClusters(r.Context())
	if err != nil {
		klog.Errorf("Failed to list clusters: %v", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to list clusters: "+err.Error())
		return
	}
	s.sendJSON(w, http.StatusOK, ListClustersResponse{Clusters: clusters})
}

// HandleResourceGroups handles GET /api/clusters/{id}/resource-groups requests.
func (s *Server) HandleResourceGroups(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/clusters/")
	clusterID, rest, ok := strings.Cut(path, "/")
	if !ok || rest != "resource-groups" || clusterID == "" {
		s.sendError(w, http.StatusNotFound, "Invalid path. Expected: /api/clusters/{id}/resource-groups")
		return
	}

	groups, err := s.clusters.ListResourceGroups(r.Context(), clusterID)
	if err != nil {
		s.sendBrowserError(w, "list resource groups", err)
		return
	}
	if groups == nil {
		groups = []kube.ResourceGroup{}
	}
	s.sendJSON(w, http.StatusOK, ResourceGroupsResponse{ClusterID: clusterID, ResourceGroups: groups})
}

// HandleCreateSession handles POST /api/resource-browser/sessions requests.
func (s *Server) HandleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req PathRequest
	if err := decodeBody(r, &req); err != nil {
		s.sendError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Path == "" {
		req.Path = browser.BasePath
	}

	id, page, err := s.sessions.Create(r.Context(), req.Path)
	if err != nil {
		s.sendBrowserError(w, "create browser session", err)
		return
	}
	s.sendJSON(w, http.StatusCreated, SessionResponse{SessionID: id, View: page.View()})
}

// HandleSession routes requests below /api/resource-browser/sessions/{sid}.
func (s *Server) HandleSession(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		s.handleOptions(w, r)
		return
	}

	parts := strings.Split(strings.Trim(strings.TrimPrefix(r.URL.EscapedPath(), sessionsPath), "/"), "/")
	for i, p := range parts {
		unescaped, err := url.PathUnescape(p)
		if err != nil {
			s.sendError(w, http.StatusBadRequest, "Invalid URL encoding in session path")
			return
		}
		parts[i] = unescaped
	}
	sid := parts[0]
	if sid == "" {
		s.sendError(w, http.StatusNotFound, "Missing session id")
		return
	}

	if len(parts) == 1 && r.Method == http.MethodDelete {
		if !s.sessions.Delete(sid) {
			s.sendError(w, http.StatusNotFound, browser.ErrSessionNotFound.Error())
			return
		}
		w.WriteHeader(http.StatusNoContent)
		return
	}

	page, err := s.sessions.Get(sid)
	if err != nil {
		s.sendBrowserError(w, "get browser session", err)
		return
	}
	s.syncRole(r, page)

	resp := SessionResponse{SessionID: sid}
	route := strings.Join(parts[1:], "/")
	switch {
	case route == "" && r.Method == http.MethodGet:
	case route == "navigate" && r.Method == http.MethodPost:
		var req PathRequest
		if err := decodeBody(r, &req); err != nil {
			s.sendError(w, http.StatusBadRequest, err.Error())
			return
		}
		err = page.Navigate(r.Context(), req.Path)
		s.recordTabOperation("navigate")
	case route == "cluster" && r.Method == http.MethodPost:
		var req ChangeClusterRequest
		if err := decodeBody(r, &req); err != nil {
			s.sendError(w, http.StatusBadRequest, err.Error())
			return
		}
		resp.Redirect, err = page.ChangeCluster(r.Context(), req.ClusterID)
		s.recordTabOperation("change_cluster")
	case route == "tabs" && r.Method == http.MethodPost:
		var req AddTabRequest
		if err := decodeBody(r, &req); err != nil {
			s.sendError(w, http.StatusBadRequest, err.Error())
			return
		}
		if req.Kind == "" || req.Name == "" || req.URL == "" {
			s.sendError(w, http.StatusBadRequest, "kind, name and url are required")
			return
		}
		err = page.AddTab(req.IDPrefix, req.Kind, req.Name, req.URL)
		s.recordTabOperation("add")
	case route == "tabs" && r.Method == http.MethodDelete:
		q := r.URL.Query()
		resp.Redirect, err = page.CloseTab(q.Get("idPrefix"), q.Get("kind"), q.Get("name"))
		s.recordTabOperation("close")
	case route == "tabs/select" && r.Method == http.MethodPost:
		q := r.URL.Query()
		resp.Redirect, err = page.SelectTabByIdentifier(q.Get("idPrefix"), q.Get("kind"), q.Get("name"))
		s.recordTabOperation("select")
	case len(parts) == 4 && parts[1] == "tabs" && parts[3] == "select" && r.Method == http.MethodPost:
		resp.Redirect, err = page.SelectTab(parts[2])
		s.recordTabOperation("select")
	case len(parts) == 4 && parts[1] == "tabs" && parts[3] == "url" && r.Method == http.MethodPost:
		var req UpdateTabURLRequest
		if err := decodeBody(r, &req); err != nil {
			s.sendError(w, http.StatusBadRequest, err.Error())
			return
		}
		err = page.UpdateTabURL(parts[2], req.URL, req.Title)
	case route == "refresh" && r.Method == http.MethodPost:
		err = page.RefreshData()
		s.recordTabOperation("refresh")
	case route == "synced" && r.Method == http.MethodPost:
		err = page.MarkResourceListSynced()
	case route == "terminal" && r.Method == http.MethodPost:
		var req TerminalQueryRequest
		if err := decodeBody(r, &req); err != nil {
			s.sendError(w, http.StatusBadRequest, err.Error())
			return
		}
		resp.TerminalURLUpdated, err = page.UpdateTerminalTabURL(req.Query)
	case route == "terminal/stop" && r.Method == http.MethodPost:
		resp.Redirect, err = page.StopTerminal()
		s.recordTabOperation("stop")
	default:
		s.sendError(w, http.StatusNotFound, "Unknown session route")
		return
	}
	if err != nil {
		s.sendBrowserError(w, "update browser session", err)
		return
	}

	resp.View = page.View()
	s.sendJSON(w, http.StatusOK, resp)
}

// syncRole applies a role change of the caller to an open page.
func (s *Server) syncRole(r *http.Request, page *browser.Page) {
	if s.k8sClient {
		return
	}
	if user, ok := auth.GetUser(r); ok {
		page.SetSuperAdmin(user.IsSuperAdmin())
	}
}

func (s *Server) recordTabOperation(operation string) {
	if s.metrics != nil {
		s.metrics.RecordTabOperation(operation)
	}
}

// sendBrowserError maps resource browser failures to status codes.
func (s *Server) sendBrowserError(w http.ResponseWriter, action string, err error) {
	switch {
	case errors.Is(err, browser.ErrSessionNotFound), errors.Is(err, kube.ErrClusterNotFound):
		s.sendError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, browser.ErrInvalidRoute):
		s.sendError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, tabs.ErrNotInitialized):
		s.sendError(w, http.StatusConflict, err.Error())
	default:
		klog.Errorf("Failed to %s: %v", action, err)
		s.sendError(w, http.StatusInternalServerError, "Failed to "+action+": "+err.Error())
	}
}

