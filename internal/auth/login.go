package auth

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"

	"golang.org/x/crypto/bcrypt"
	"k8s.io/klog/v2"
)

const maxLoginBodyBytes = 1 << 20

var errInvalidCredentials = errors.New("invalid credentials")

// dummyHash is compared against for unknown users so that a login takes
// about as long whether or not the user exists.
var dummyHash = sync.OnceValue(func() []byte {
	hash, err := bcrypt.GenerateFromPassword([]byte("kubedeck"), bcrypt.DefaultCost)
	if err != nil {
		klog.Errorf("Failed to hash dummy password: %v", err)
	}
	return hash
})

// LoginRequest represents a login request.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse carries the issued token and whether the user is a super
// admin, which decides the tabs a resource browser offers.
type LoginResponse struct {
	Token      string `json:"token"`
	User       User   `json:"user"`
	SuperAdmin bool   `json:"superAdmin"`
}

// LoginHandler handles login requests.
type LoginHandler struct {
	auth *Authenticator
}

// NewLoginHandler creates a new login handler.
func NewLoginHandler(auth *Authenticator) *LoginHandler {
	return &LoginHandler{
		auth: auth,
	}
}

// HandleLogin handles POST /api/auth/login requests.
func (h *LoginHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	h.setCORSHeaders(w)

	switch r.Method {
	case http.MethodOptions:
		w.WriteHeader(http.StatusOK)
		return
	case http.MethodPost:
	default:
		h.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req LoginRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxLoginBodyBytes)).Decode(&req); err != nil {
		h.sendError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Username == "" || req.Password == "" {
		h.sendError(w, "Username and password are required", http.StatusBadRequest)
		return
	}

	user, err := h.authenticate(req)
	if err != nil {
		h.sendError(w, "Invalid credentials", http.StatusUnauthorized)
		return
	}

	token, err := h.auth.GenerateToken(user)
	if err != nil {
		klog.Errorf("Failed to generate token: %v", err)
		h.sendError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	klog.Infof("User %s logged in (super admin: %t)", user.Username, user.IsSuperAdmin())
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(LoginResponse{
		Token:      token,
		User:       *user,
		SuperAdmin: user.IsSuperAdmin(),
	}); err != nil {
		klog.Errorf("Failed to encode login response: %v", err)
	}
}

// authenticate checks req against the configured users.
func (h *LoginHandler) authenticate(req LoginRequest) (*User, error) {
	info, ok := h.auth.config.Users[req.Username]
	if !ok {
		_ = bcrypt.CompareHashAndPassword(dummyHash(), []byte(req.Password))
		klog.V(2).Infof("Login attempt with unknown username: %s", req.Username)
		return nil, errInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(info.Password), []byte(req.Password)); err != nil {
		klog.V(2).Infof("Login attempt with invalid password for user: %s", req.Username)
		return nil, errInvalidCredentials
	}
	return &User{
		Username: req.Username,
		Roles:    info.Roles,
		Email:    info.Email,
	}, nil
}

// setCORSHeaders sets CORS headers on the response.
func (h *LoginHandler) setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
}

// sendError sends a plain-text error response.
func (h *LoginHandler) sendError(w http.ResponseWriter, message string, code int) {
	http.Error(w, message, code)
}
