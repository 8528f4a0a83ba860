package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"k8s.io/klog/v2"

	"github.com/kubedeck/kubedeck/internal/api"
	"github.com/kubedeck/kubedeck/internal/auth"
	"github.com/kubedeck/kubedeck/internal/browser"
	"github.com/kubedeck/kubedeck/internal/config"
	"github.com/kubedeck/kubedeck/internal/kube"
	"github.com/kubedeck/kubedeck/internal/metrics"
	"github.com/kubedeck/kubedeck/internal/permission"
	"github.com/kubedeck/kubedeck/internal/store"
)

func main() {
	klog.InitFlags(nil)
	cfg := config.LoadConfig()

	var (
		port = flag.Int("port", 8080, "Port to listen on")
	)
	flag.Parse()
	if !flagPassed("v") {
		if err := flag.Set("v", strconv.Itoa(cfg.Verbosity())); err != nil {
			klog.Warningf("Failed to apply LOG_LEVEL %q: %v", cfg.LogLevel, err)
		}
	}

	klog.Infof("Starting kubedeck API server on port %d", *port)

	// Initialize Kubernetes clusters (optional, only the resource browser needs them)
	clusters, err := kube.NewClusterSet(cfg.Browser.Contexts)
	if err != nil {
		klog.Warningf("Failed to load Kubernetes clusters: %v. Resource browser will be disabled.", err)
		clusters = nil
	}

	groupStore, err := newStore(cfg, clusters)
	if err != nil {
		klog.Fatalf("Failed to initialize store: %v", err)
	}
	defer groupStore.Close()

	// Set up authentication
	var authenticator *auth.Authenticator
	if cfg.AuthConfig != nil && cfg.AuthConfig.EnableAuth {
		authConfig, err := auth.AuthConfigFromConfig(cfg.AuthConfig)
		if err != nil {
			klog.Fatalf("Failed to initialize auth config: %v", err)
		}
		authenticator = auth.NewAuthenticator(authConfig)
		klog.Info("Authentication enabled")
	} else {
		authenticator = auth.NewAuthenticator(&auth.AuthConfig{EnableAuth: false})
		klog.Info("Authentication disabled - all requests act as super admin")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pageConfig := browser.Config{
		HideDefaultCluster: cfg.Browser.HideDefaultCluster,
		K8sClient:          cfg.Browser.K8sClient,
		Staleness: browser.StalenessPolicy{
			Threshold:     cfg.Browser.StaleDataThreshold,
			IdleThreshold: cfg.Browser.IdleThreshold,
		},
	}
	collector := metrics.NewCollector()
	serverOpts := api.Options{
		Store:      groupStore,
		Metrics:    collector,
		ServerMode: permission.ServerMode(cfg.ServerMode),
		K8sClient:  cfg.Browser.K8sClient,
	}
	if clusters != nil {
		sessions := browser.NewSessionManager(cfg.Browser.SessionTTL, func() *browser.Page {
			return browser.NewPage(pageConfig, browser.Deps{
				Clusters:       clusters,
				ResourceGroups: clusters,
				Roles:          browser.UserRoleFunc(api.UserRoleFromContext),
			})
		})
		go sessions.Run(ctx)
		collector.ObserveSessions(sessions.Len, sessions.OpenTabs)
		serverOpts.Clusters = clusters
		serverOpts.Sessions = sessions
	}
	apiServer := api.NewServer(serverOpts)

	mux := http.NewServeMux()

	// Login endpoint (no auth required)
	if cfg.AuthConfig != nil && cfg.AuthConfig.EnableAuth {
		loginHandler := auth.NewLoginHandler(authenticator)
		mux.HandleFunc("/api/auth/login", loginHandler.HandleLogin)
	}

	apiServer.Register(mux, authenticator)

	mux.Handle("/metrics", collector.Handler())
	mux.HandleFunc("/health", healthCheck(groupStore))
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/" {
			w.Header().Set("Content-Type", "text/plain")
			message := "kubedeck API server\n\nEndpoints:\n" +
				"  POST /api/auth/login\n" +
				"  GET|POST|PUT /api/permission-groups\n" +
				"  GET|DELETE /api/permission-groups/{id}\n" +
				"  POST /api/permission-groups/{id}/changes\n" +
				"  POST /api/permissions/preview\n" +
				"  POST /api/permissions/decode\n" +
				"  GET /api/user-role\n" +
				"  GET /api/clusters\n" +
				"  GET /api/clusters/{id}/resource-groups\n" +
				"  POST /api/resource-browser/sessions\n" +
				"  * /api/resource-browser/sessions/{sid}/...\n" +
				"  GET /metrics\n" +
				"  GET /health\n"
			w.Write([]byte(message))
		} else {
			http.NotFound(w, r)
		}
	})

	handler := collector.Middleware()(authenticator.Middleware()(mux))

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		klog.Infof("API server listening on :%d", *port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			klog.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	<-sigChan
	klog.Info("Shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		klog.Errorf("Error during server shutdown: %v", err)
	}

	klog.Info("Shutdown complete")
}

// newStore opens the permission group backend selected by the configuration.
// The configmap backend lives in the default cluster.
func newStore(cfg *config.Config, clusters *kube.ClusterSet) (store.Store, error) {
	switch cfg.StoreBackend {
	case config.StoreBackendPostgres:
		klog.Info("Storing permission groups in PostgreSQL")
		return store.NewPostgreSQLStore(cfg.DatabaseURL)
	case config.StoreBackendConfigMap:
		if clusters == nil {
			return nil, errors.New("configmap store needs a Kubernetes cluster")
		}
		client, err := clusters.Client(strconv.Itoa(kube.DefaultClusterID))
		if err != nil {
			return nil, fmt.Errorf("configmap store needs the default cluster: %w", err)
		}
		klog.Infof("Storing permission groups in ConfigMap %s/%s", cfg.Namespace, cfg.PermissionsConfigMap)
		return store.NewConfigMapStore(client, cfg.Namespace, cfg.PermissionsConfigMap), nil
	default:
		klog.Warning("Storing permission groups in memory; they are lost on restart")
		return store.NewMemoryStore(), nil
	}
}

// healthCheck reports whether the permission group store is reachable.
func healthCheck(s store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		if err := s.HealthCheck(ctx); err != nil {
			klog.Warningf("Health check failed: %v", err)
			http.Error(w, "store unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}
}

// flagPassed reports whether the named flag was set on the command line.
func flagPassed(name string) bool {
	passed := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			passed = true
		}
	})
	return passed
}
