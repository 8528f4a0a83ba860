package auth

import (
	"encoding/json"
	"fmt"
	"slices"
	"sort"
	"time"

	"golang.org/x/crypto/bcrypt"
	"k8s.io/klog/v2"

	"github.com/kubedeck/kubedeck/internal/config"
)

// KnownRoles lists the roles a configured user may hold.
var KnownRoles = []string{RoleSuperAdmin, RoleAdmin, RoleViewer}

// AuthConfigFromConfig converts config.AuthConfig to auth.AuthConfig. Users
// are checked up front: passwords must be bcrypt hashes and roles must be
// known. A user without roles is a viewer. A missing JWT secret is replaced
// by a random one, so issued tokens do not survive a restart.
func AuthConfigFromConfig(cfg *config.AuthConfig) (*AuthConfig, error) {
	if cfg == nil || !cfg.EnableAuth {
		return &AuthConfig{EnableAuth: false}, nil
	}

	authConfig := &AuthConfig{
		EnableAuth:    true,
		JWTSecret:     cfg.JWTSecret,
		JWTExpiration: 24 * time.Hour,
		Users:         make(map[string]UserInfo),
	}
	if cfg.JWTExpirationHours > 0 {
		authConfig.JWTExpiration = time.Duration(cfg.JWTExpirationHours) * time.Hour
	}

	if authConfig.JWTSecret == "" {
		secret, err := GenerateJWTSecret()
		if err != nil {
			return nil, fmt.Errorf("failed to generate JWT secret: %w", err)
		}
		authConfig.JWTSecret = secret
		klog.Warning("JWT_SECRET is empty, using a random secret; tokens are invalidated on restart")
	}

	if cfg.UsersJSON == "" {
		klog.Warning("AUTH_USERS is empty, nobody can log in")
		return authConfig, nil
	}
	var users map[string]UserInfo
	if err := json.Unmarshal([]byte(cfg.UsersJSON), &users); err != nil {
		return nil, fmt.Errorf("failed to parse AUTH_USERS: %w", err)
	}

	names := make([]string, 0, len(users))
	for name := range users {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		info, err := checkUser(name, users[name])
		if err != nil {
			return nil, err
		}
		authConfig.Users[name] = info
	}
	klog.Infof("Loaded %d users for authentication", len(authConfig.Users))

	return authConfig, nil
}

func checkUser(name string, info UserInfo) (UserInfo, error) {
	if name == "" {
		return UserInfo{}, fmt.Errorf("AUTH_USERS has a user without a name")
	}
	if _, err := bcrypt.Cost([]byte(info.Password)); err != nil {
		return UserInfo{}, fmt.Errorf("user %s: password must be a bcrypt hash: %w", name, err)
	}
	for _, role := range info.Roles {
		if !slices.Contains(KnownRoles, role) {
			return UserInfo{}, fmt.Errorf("user %s: unknown role %q (known roles: %v)", name, role, KnownRoles)
		}
	}
	if len(info.Roles) == 0 {
		info.Roles = []string{RoleViewer}
	}
	return info, nil
}
