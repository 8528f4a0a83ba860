package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"k8s.io/klog/v2"
)

// Roles understood by the server.
const (
	// RoleSuperAdmin sees every cluster, the admin terminal and may manage
	// permission groups.
	RoleSuperAdmin = "super-admin"
	// RoleAdmin may manage permission groups.
	RoleAdmin = "admin"
	// RoleViewer may browse.
	RoleViewer = "viewer"
)

const tokenIssuer = "kubedeck"

type contextKey struct{}

var userKey contextKey

// User represents an authenticated user.
type User struct {
	Username string   `json:"username"`
	Roles    []string `json:"roles"`
	Email    string   `json:"email,omitempty"`
}

// HasRole reports whether the user holds role.
func (u *User) HasRole(role string) bool {
	return slices.Contains(u.Roles, role)
}

// IsSuperAdmin reports whether the user holds RoleSuperAdmin.
func (u *User) IsSuperAdmin() bool {
	return u.HasRole(RoleSuperAdmin)
}

// anonymousUser is attached to requests while authentication is disabled.
var anonymousUser = User{Username: "anonymous", Roles: []string{RoleSuperAdmin}}

// Claims represents JWT claims.
type Claims struct {
	Username string   `json:"username"`
	Roles    []string `json:"roles"`
	Email    string   `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// AuthConfig holds authentication configuration.
type AuthConfig struct {
	// JWTSecret is the secret key for signing JWT tokens
	JWTSecret string

	// JWTExpiration is the token expiration time (default: 24 hours)
	JWTExpiration time.Duration

	// EnableAuth enables authentication (if false, all requests are allowed
	// as an anonymous super admin)
	EnableAuth bool

	// Users is a map of username -> user info (for simple auth)
	Users map[string]UserInfo
}

// UserInfo holds user information for authentication.
type UserInfo struct {
	Password string   `json:"password"` // bcrypt hashed
	Roles    []string `json:"roles"`
	Email    string   `json:"email,omitempty"`
}

// Authenticator handles authentication and authorization.
type Authenticator struct {
	config *AuthConfig
}

// NewAuthenticator creates a new authenticator.
func NewAuthenticator(config *AuthConfig) *Authenticator {
	if config.JWTExpiration == 0 {
		config.JWTExpiration = 24 * time.Hour
	}
	return &Authenticator{
		config: config,
	}
}

// GenerateJWTSecret generates a random JWT secret.
func GenerateJWTSecret() (string, error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(bytes), nil
}

// GenerateToken generates a JWT token for a user.
func (a *Authenticator) GenerateToken(user *User) (string, error) {
	now := time.Now()
	claims := &Claims{
		Username: user.Username,
		Roles:    user.Roles,
		Email:    user.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(a.config.JWTExpiration)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    tokenIssuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(a.config.JWTSecret))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return tokenString, nil
}

// ValidateToken validates a JWT token and returns the user.
func (a *Authenticator) ValidateToken(tokenString string) (*User, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(a.config.JWTSecret), nil
	}, jwt.WithIssuer(tokenIssuer))

	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	if !token.Valid {
		return nil, errors.New("invalid token")
	}

	return &User{
		Username: claims.Username,
		Roles:    claims.Roles,
		Email:    claims.Email,
	}, nil
}

// Middleware returns an HTTP middleware for authentication.
func (a *Authenticator) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.URL.Path {
			case "/health", "/metrics", "/api/auth/login":
				next.ServeHTTP(w, r)
				return
			}

			if !a.config.EnableAuth {
				u := anonymousUser
				next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), &u)))
				return
			}

			// CORS preflight carries no credentials
			if r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				http.Error(w, "Authorization header required", http.StatusUnauthorized)
				return
			}

			scheme, tokenString, ok := strings.Cut(authHeader, " ")
			if !ok || scheme != "Bearer" {
				http.Error(w, "Invalid authorization header format", http.StatusUnauthorized)
				return
			}

			user, err := a.ValidateToken(tokenString)
			if err != nil {
				klog.V(2).Infof("Token validation failed: %v", err)
				http.Error(w, "Invalid or expired token", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
		})
	}
}

// RequireRole returns a middleware that requires a specific role.
func (a *Authenticator) RequireRole(role string) func(http.Handler) http.Handler {
	return a.RequireAnyRole(role)
}

// RequireAnyRole returns a middleware that requires any of the specified roles.
func (a *Authenticator) RequireAnyRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}
			user, ok := GetUser(r)
			if !ok {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			if !slices.ContainsFunc(roles, user.HasRole) {
				http.Error(w, "Forbidden: insufficient permissions", http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// WithUser returns a copy of ctx carrying user.
func WithUser(ctx context.Context, user *User) context.Context {
	return context.WithValue(ctx, userKey, user)
}

// UserFromContext extracts the user from ctx.
func UserFromContext(ctx context.Context) (*User, bool) {
	user, ok := ctx.Value(userKey).(*User)
	return user, ok
}

// GetUser extracts the user from the request context.
func GetUser(r *http.Request) (*User, bool) {
	return UserFromContext(r.Context())
}
