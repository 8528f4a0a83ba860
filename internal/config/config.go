package config

import (
	"encoding/json"
	"os"
	"strconv"
	"strings"
	"time"

	"k8s.io/klog/v2"
)

// Defaults for the resource browser.
const (
	DefaultStaleDataThreshold = 15 * time.Minute
	DefaultIdleThreshold      = 5 * time.Minute
	DefaultSessionTTL         = 30 * time.Minute
)

// Storage backends for permission groups.
const (
	StoreBackendPostgres  = "postgres"
	StoreBackendConfigMap = "configmap"
	StoreBackendMemory    = "memory"
)

// Config holds application configuration.
type Config struct {
	DatabaseURL string

	// StoreBackend selects where permission groups live. It defaults to
	// postgres when DATABASE_URL is set and to memory otherwise.
	StoreBackend string

	// Namespace and PermissionsConfigMap locate the ConfigMap used by the
	// configmap backend.
	Namespace            string
	PermissionsConfigMap string

	// LogLevel sets the klog verbosity unless -v is given: "info" is 0,
	// "debug" is 4, "trace" is 6, and a number is used as is.
	LogLevel string

	// ServerMode is FULL or EA_ONLY. EA_ONLY installs have no chart groups.
	ServerMode string

	Browser    *BrowserConfig
	AuthConfig *AuthConfig
}

// BrowserConfig holds resource browser configuration.
type BrowserConfig struct {
	// K8sClient runs the browser in desktop mode, without a user-role service.
	K8sClient bool

	// HideDefaultCluster keeps the default cluster out of the cluster picker.
	HideDefaultCluster bool

	// StaleDataThreshold is the age after which tab data is stale.
	StaleDataThreshold time.Duration

	// IdleThreshold is the shorter age after which data is stale once the
	// user has been idle for as long.
	IdleThreshold time.Duration

	// SessionTTL is how long an untouched browser session is kept.
	SessionTTL time.Duration

	// Contexts restricts the kubeconfig contexts offered as clusters.
	// Empty means every context.
	Contexts []string
}

// AuthConfig holds authentication configuration.
type AuthConfig struct {
	// EnableAuth enables authentication (if false, all requests are allowed)
	EnableAuth bool `json:"enable_auth,omitempty"`

	// JWTSecret is the secret key for signing JWT tokens
	JWTSecret string `json:"jwt_secret,omitempty"`

	// JWTExpirationHours is the token expiration time in hours (default: 24)
	JWTExpirationHours int `json:"jwt_expiration_hours,omitempty"`

	// Users is a map of username -> user info (JSON format)
	UsersJSON string `json:"users_json,omitempty"`
}

// LoadConfig loads configuration from environment variables.
func LoadConfig() *Config {
	cfg := &Config{
		DatabaseURL:          getEnv("DATABASE_URL", ""),
		Namespace:            getEnv("NAMESPACE", "kubedeck"),
		PermissionsConfigMap: getEnv("PERMISSIONS_CONFIGMAP_NAME", "kubedeck-permission-groups"),
		LogLevel:             getEnv("LOG_LEVEL", "info"),
		ServerMode:           strings.ToUpper(getEnv("SERVER_MODE", "FULL")),
		Browser: &BrowserConfig{
			K8sClient:          getBool("K8S_CLIENT"),
			HideDefaultCluster: getBool("HIDE_DEFAULT_CLUSTER"),
			StaleDataThreshold: getDuration("STALE_DATA_THRESHOLD", DefaultStaleDataThreshold),
			IdleThreshold:      getDuration("IDLE_THRESHOLD", DefaultIdleThreshold),
			SessionTTL:         getDuration("SESSION_TTL", DefaultSessionTTL),
		},
	}
	cfg.StoreBackend = storeBackend(getEnv("STORE_BACKEND", ""), cfg.DatabaseURL)
	if cfg.ServerMode != "FULL" && cfg.ServerMode != "EA_ONLY" {
		klog.Warningf("Unknown SERVER_MODE %q, using FULL", cfg.ServerMode)
		cfg.ServerMode = "FULL"
	}

	// Contexts come as a JSON list, or comma-separated
	if contexts := strings.TrimSpace(getEnv("KUBECONFIG_CONTEXTS", "")); contexts != "" {
		if strings.HasPrefix(contexts, "[") {
			var list []string
			if err := json.Unmarshal([]byte(contexts), &list); err == nil {
				cfg.Browser.Contexts = list
			} else {
				klog.Warningf("Failed to parse KUBECONFIG_CONTEXTS JSON: %v, raw value: %q", err, contexts)
			}
		} else {
			cfg.Browser.Contexts = parseList(contexts)
		}
		if len(cfg.Browser.Contexts) > 0 {
			klog.Infof("Restricting clusters to kubeconfig contexts %v", cfg.Browser.Contexts)
		}
	}

	// Load auth configuration if provided
	if getBool("AUTH_ENABLED") {
		authConfig := &AuthConfig{
			EnableAuth: true,
		}

		// JWT Secret (required if auth is enabled)
		authConfig.JWTSecret = getEnv("JWT_SECRET", "")
		if authConfig.JWTSecret == "" {
			klog.Warning("AUTH_ENABLED is true but JWT_SECRET is not set. Authentication may not work correctly.")
		}

		// JWT Expiration (default: 24 hours)
		expHours := getEnv("JWT_EXPIRATION_HOURS", "24")
		if hours, err := strconv.Atoi(expHours); err == nil && hours > 0 {
			authConfig.JWTExpirationHours = hours
		} else {
			authConfig.JWTExpirationHours = 24
		}

		authConfig.UsersJSON = getEnv("AUTH_USERS", "")

		cfg.AuthConfig = authConfig
		klog.Infof("Authentication enabled: JWT expiration=%d hours", authConfig.JWTExpirationHours)
	}

	return cfg
}

// Verbosity maps LogLevel to a klog verbosity. Unknown levels are 0.
func (c *Config) Verbosity() int {
	switch level := strings.ToLower(strings.TrimSpace(c.LogLevel)); level {
	case "debug":
		return 4
	case "trace":
		return 6
	case "", "info", "warn", "warning", "error":
		return 0
	default:
		if v, err := strconv.Atoi(level); err == nil && v >= 0 {
			return v
		}
		klog.Warningf("Unknown LOG_LEVEL %q, using info", c.LogLevel)
		return 0
	}
}

func storeBackend(raw, databaseURL string) string {
	switch strings.ToLower(raw) {
	case StoreBackendPostgres, StoreBackendConfigMap, StoreBackendMemory:
		return strings.ToLower(raw)
	case "":
	default:
		klog.Warningf("Unknown STORE_BACKEND %q, choosing from DATABASE_URL", raw)
	}
	if databaseURL != "" {
		return StoreBackendPostgres
	}
	return StoreBackendMemory
}

// parseList parses a comma-separated list of strings.
func parseList(s string) []string {
	if s == "" {
		return nil
	}
	parts := make([]string, 0)
	for _, part := range strings.Split(s, ",") {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	return parts
}

// getEnv gets an environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getBool reports whether an environment variable is "true" or "1".
func getBool(key string) bool {
	v := strings.ToLower(getEnv(key, ""))
	return v == "true" || v == "1"
}

// getDuration parses a duration such as "10m". Invalid or non-positive
// values fall back to the default.
func getDuration(key string, defaultValue time.Duration) time.Duration {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		klog.Warningf("Invalid %s %q, using %s", key, raw, defaultValue)
		return defaultValue
	}
	return d
}
