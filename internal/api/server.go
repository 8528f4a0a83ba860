package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"k8s.io/klog/v2"

	"github.com/kubedeck/kubedeck/internal/auth"
	"github.com/kubedeck/kubedeck/internal/browser"
	"github.com/kubedeck/kubedeck/internal/kube"
	"github.com/kubedeck/kubedeck/internal/metrics"
	"github.com/kubedeck/kubedeck/internal/permission"
	"github.com/kubedeck/kubedeck/internal/store"
)

// ClusterService lists clusters and the kinds they serve. KnownClusters
// must not contact the clusters.
type ClusterService interface {
	browser.ClusterLister
	browser.ResourceGroupLister
	KnownClusters() []kube.Cluster
}

// Options configures a Server. Without Clusters and Sessions the resource
// browser routes answer 503.
type Options struct {
	Store      store.Store
	Clusters   ClusterService
	Sessions   *browser.SessionManager
	Metrics    *metrics.Collector
	ServerMode permission.ServerMode

	// K8sClient is desktop mode: browser sessions do not follow the
	// caller's role.
	K8sClient bool
}

// Server handles HTTP API requests for permission groups and the resource
// browser.
type Server struct {
	store     store.Store
	clusters  ClusterService
	sessions  *browser.SessionManager
	metrics   *metrics.Collector
	codec     permission.Config
	k8sClient bool
}

// NewServer creates a new API server.
func NewServer(opts Options) *Server {
	return &Server{
		store:     opts.Store,
		clusters:  opts.Clusters,
		sessions:  opts.Sessions,
		metrics:   opts.Metrics,
		codec:     permission.Config{ServerMode: opts.ServerMode},
		k8sClient: opts.K8sClient,
	}
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error string `json:"error"`

	// Errors lists the fields that blocked a submission.
	Errors []permission.FieldError `json:"errors,omitempty"`
}

// Register adds the API routes to mux. Permission group writes require the
// super-admin or admin role.
func (s *Server) Register(mux *http.ServeMux, authn *auth.Authenticator) {
	writers := authn.RequireAnyRole(auth.RoleSuperAdmin, auth.RoleAdmin)
	guard := func(h http.HandlerFunc) http.HandlerFunc {
		return writers(h).ServeHTTP
	}

	mux.HandleFunc("/api/permission-groups", s.dispatch(methodHandlers{
		http.MethodGet:  s.HandleListPermissionGroups,
		http.MethodPost: guard(s.HandleSavePermissionGroup),
		http.MethodPut:  guard(s.HandleSavePermissionGroup),
	}))
	mux.HandleFunc("/api/permission-groups/", s.dispatch(methodHandlers{
		http.MethodGet:    s.HandleGetPermissionGroup,
		http.MethodPost:   s.HandlePermissionGroupChanges,
		http.MethodDelete: guard(s.HandleDeletePermissionGroup),
	}))
	mux.HandleFunc("/api/permissions/preview", s.dispatch(methodHandlers{
		http.MethodPost: s.HandlePreviewPermissions,
	}))
	mux.HandleFunc("/api/permissions/decode", s.dispatch(methodHandlers{
		http.MethodPost: s.HandleDecodePermissions,
	}))
	mux.HandleFunc("/api/user-role", s.dispatch(methodHandlers{
		http.MethodGet: s.HandleUserRole,
	}))

	mux.HandleFunc("/api/clusters", s.requireBrowser(s.dispatch(methodHandlers{
		http.MethodGet: s.HandleListClusters,
	})))
	mux.HandleFunc("/api/clusters/", s.requireBrowser(s.dispatch(methodHandlers{
		http.MethodGet: s.HandleResourceGroups,
	})))
	mux.HandleFunc("/api/resource-browser/sessions", s.requireBrowser(s.dispatch(methodHandlers{
		http.MethodPost: s.HandleCreateSession,
	})))
	mux.HandleFunc("/api/resource-browser/sessions/", s.requireBrowser(s.HandleSession))
}

// requireBrowser answers 503 while no Kubernetes cluster is available.
func (s *Server) requireBrowser(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodOptions && (s.clusters == nil || s.sessions == nil) {
			s.sendError(w, http.StatusServiceUnavailable, "Resource browser is disabled: no Kubernetes cluster is configured")
			return
		}
		next(w, r)
	}
}

type methodHandlers map[string]http.HandlerFunc

// dispatch routes a request by method and answers CORS preflights.
func (s *Server) dispatch(handlers methodHandlers) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			s.handleOptions(w, r)
			return
		}
		h, ok := handlers[r.Method]
		if !ok {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h(w, r)
	}
}

// decodeBody decodes a JSON request body into v.
func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// queryInt parses a non-negative integer query parameter, returning def when
// it is absent or malformed.
func queryInt(r *http.Request, key string, def int) int {
	if v := r.URL.Query().Get(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			return n
		}
	}
	return def
}

// sendJSON sends a JSON response.
func (s *Server) sendJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		klog.Errorf("Failed to encode JSON response: %v", err)
	}
}

// handleOptions handles CORS preflight requests.
func (s *Server) handleOptions(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	w.WriteHeader(http.StatusOK)
}

// sendError sends an error response.
func (s *Server) sendError(w http.ResponseWriter, statusCode int, message string) {
	s.sendJSON(w, statusCode, ErrorResponse{Error: message})
}

// sendValidationError sends the field errors that blocked a submission.
func (s *Server) sendValidationError(w http.ResponseWriter, verr *permission.ValidationError) {
	s.sendJSON(w, http.StatusBadRequest, ErrorResponse{Error: verr.Error(), Errors: verr.Errors})
}

// sendStoreError maps store failures to status codes.
func (s *Server) sendStoreError(w http.ResponseWriter, action string, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		s.sendError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, store.ErrDuplicateName):
		s.sendError(w, http.StatusConflict, err.Error())
	default:
		klog.Errorf("Failed to %s: %v", action, err)
		s.sendError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to %s: %v", action, err))
	}
}
