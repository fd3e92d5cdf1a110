package handlers

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/taskdeck/taskdeck/internal/database"
	"github.com/taskdeck/taskdeck/internal/models"
	"github.com/taskdeck/taskdeck/internal/ratelimit"
	"github.com/taskdeck/taskdeck/internal/request"
	"github.com/taskdeck/taskdeck/internal/services/auth"
	"github.com/taskdeck/taskdeck/internal/services/oidc"
	"github.com/taskdeck/taskdeck/internal/validation"
)

// MinPasswordLength is the minimum password length for signup
const MinPasswordLength = 8

// AuthHandler handles authentication requests. The OIDC client and
// verifier are nil when no SSO provider is configured; the SSO endpoints
// then answer 501.
type AuthHandler struct {
	userRepo     database.UserStore
	tokens       *auth.TokenService
	oidcClient   *oidc.Client
	oidcVerifier *oidc.Verifier
	limiter      RateLimiter
	logger       *zap.Logger
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(
	userRepo database.UserStore,
	tokens *auth.TokenService,
	oidcClient *oidc.Client,
	oidcVerifier *oidc.Verifier,
	limiter RateLimiter,
	logger *zap.Logger,
) *AuthHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthHandler{
		userRepo:     userRepo,
		tokens:       tokens,
		oidcClient:   oidcClient,
		oidcVerifier: oidcVerifier,
		limiter:      limiter,
		logger:       logger,
	}
}

// RegisterPublicRoutes registers the auth routes that must stay outside
// the auth middleware. The router should already have the /auth prefix.
func (h *AuthHandler) RegisterPublicRoutes(r *mux.Router) {
	r.HandleFunc("/signup", h.Signup).Methods("POST")
	r.HandleFunc("/login", h.Login).Methods("POST")
	r.HandleFunc("/oidc/login", h.OIDCLogin).Methods("GET")
	r.HandleFunc("/oidc/callback", h.OIDCCallback).Methods("POST")
}

// RegisterProtectedRoutes registers the auth routes that require an
// authenticated caller.
func (h *AuthHandler) RegisterProtectedRoutes(r *mux.Router) {
	r.HandleFunc("/me", h.GetMe).Methods("GET")
}

// SignupRequest represents a signup request
type SignupRequest struct {
	Email    string  `json:"email" validate:"required,email"`
	Password string  `json:"password" validate:"required"`
	Name     *string `json:"name,omitempty"`
}

// LoginRequest represents a login request
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// OIDCCallbackRequest carries the authorization code from the provider
type OIDCCallbackRequest struct {
	Code string `json:"code"`
}

// AuthResponse is returned by every operation that issues a session token
type AuthResponse struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expires_at"`
	User      *models.User `json:"user"`
}

// OIDCLoginResponse tells the frontend where to send the user for SSO
type OIDCLoginResponse struct {
	AuthURL string `json:"auth_url"`
	State   string `json:"state"`
}

// Signup registers a new user with a password and returns a session token
func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	if !allowRate(w, r, h.limiter, h.logger, ratelimit.BucketSignup, request.ClientIP(r)) {
		return
	}

	var req SignupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			respondJSONError(w, http.StatusRequestEntityTooLarge, "Request Entity Too Large", fmt.Sprintf("Request body exceeds maximum size of %d bytes", maxBytesErr.Limit))
			return
		}
		respondJSONError(w, http.StatusBadRequest, "Bad Request", "Invalid request body")
		return
	}

	if err := validation.Validate.Struct(req); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) && len(validationErrors) > 0 {
			respondJSONError(w, http.StatusBadRequest, "Bad Request", fmt.Sprintf("Validation failed: %s", validationErrors[0].Error()))
			return
		}
		respondJSONError(w, http.StatusBadRequest, "Bad Request", "Validation failed")
		return
	}

	if len(req.Password) < MinPasswordLength {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", fmt.Sprintf("Password must be at least %d characters", MinPasswordLength))
		return
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))

	var name *string
	if req.Name != nil {
		sanitized := validation.Sanitize(*req.Name)
		if sanitized != "" {
			name = &sanitized
		}
	}

	ctx := r.Context()
	if _, err := h.userRepo.GetByEmail(ctx, email); err == nil {
		respondJSONError(w, http.StatusConflict, "Conflict", "Email is already registered")
		return
	} else if !errors.Is(err, database.ErrNotFound) {
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to check email")
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to create account")
		return
	}

	user := &models.User{
		ID:           uuid.New(),
		Email:        email,
		Name:         name,
		PasswordHash: &hash,
	}
	if err := h.userRepo.Create(ctx, user); err != nil {
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to create account")
		return
	}

	h.logger.Info("user_signed_up", zap.String("user_id", user.ID.String()))

	h.respondWithToken(w, http.StatusCreated, user)
}

// Login authenticates a user by email and password
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	if !allowRate(w, r, h.limiter, h.logger, ratelimit.BucketLogin, request.ClientIP(r)) {
		return
	}

	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			respondJSONError(w, http.StatusRequestEntityTooLarge, "Request Entity Too Large", fmt.Sprintf("Request body exceeds maximum size of %d bytes", maxBytesErr.Limit))
			return
		}
		respondJSONError(w, http.StatusBadRequest, "Bad Request", "Invalid request body")
		return
	}

	if err := validation.Validate.Struct(req); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) && len(validationErrors) > 0 {
			respondJSONError(w, http.StatusBadRequest, "Bad Request", fmt.Sprintf("Validation failed: %s", validationErrors[0].Error()))
			return
		}
		respondJSONError(w, http.StatusBadRequest, "Bad Request", "Validation failed")
		return
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))

	// Missing user, SSO-only account, and wrong password all read the
	// same from outside so the endpoint does not confirm which emails
	// exist.
	ctx := r.Context()
	user, err := h.userRepo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			respondJSONError(w, http.StatusUnauthorized, "Unauthorized", "Invalid email or password")
			return
		}
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to look up account")
		return
	}

	if user.PasswordHash == nil || !auth.CheckPassword(*user.PasswordHash, req.Password) {
		h.logger.Warn("login_failed", zap.String("user_id", user.ID.String()))
		respondJSONError(w, http.StatusUnauthorized, "Unauthorized", "Invalid email or password")
		return
	}

	h.respondWithToken(w, http.StatusOK, user)
}

// GetMe returns current user information
func (h *AuthHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	user := request.UserFromContext(r)
	if user == nil {
		respondJSONError(w, http.StatusUnauthorized, "Unauthorized", "User not found in context")
		return
	}

	respondJSON(w, http.StatusOK, user)
}

// OIDCLogin starts an SSO login by handing the frontend the provider's
// authorization URL and a state value to verify on return
func (h *AuthHandler) OIDCLogin(w http.ResponseWriter, r *http.Request) {
	if h.oidcClient == nil {
		respondJSONError(w, http.StatusNotImplemented, "Not Implemented", "SSO is not configured")
		return
	}

	state, err := randomState()
	if err != nil {
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to generate state")
		return
	}

	respondJSON(w, http.StatusOK, OIDCLoginResponse{
		AuthURL: h.oidcClient.AuthCodeURL(state),
		State:   state,
	})
}

// OIDCCallback finishes an SSO login: it exchanges the authorization
// code, verifies the ID token against the provider's JWKS, finds or
// creates the local user by provider subject, and issues a first-party
// session token
func (h *AuthHandler) OIDCCallback(w http.ResponseWriter, r *http.Request) {
	if h.oidcClient == nil || h.oidcVerifier == nil {
		respondJSONError(w, http.StatusNotImplemented, "Not Implemented", "SSO is not configured")
		return
	}

	if !allowRate(w, r, h.limiter, h.logger, ratelimit.BucketLogin, request.ClientIP(r)) {
		return
	}

	var req OIDCCallbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", "Invalid request body")
		return
	}
	if req.Code == "" {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", "Authorization code is required")
		return
	}

	ctx := r.Context()
	token, err := h.oidcClient.ExchangeCode(ctx, req.Code)
	if err != nil {
		h.logger.Warn("oidc_code_exchange_failed", zap.Error(err))
		respondJSONError(w, http.StatusUnauthorized, "Unauthorized", "Failed to exchange authorization code")
		return
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		respondJSONError(w, http.StatusUnauthorized, "Unauthorized", "Provider response did not include an ID token")
		return
	}

	claims, err := h.oidcVerifier.Verify(ctx, rawIDToken)
	if err != nil {
		h.logger.Warn("oidc_token_verification_failed", zap.Error(err))
		respondJSONError(w, http.StatusUnauthorized, "Unauthorized", "Invalid ID token")
		return
	}

	user, err := h.findOrCreateSSOUser(r, claims)
	if err != nil {
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to resolve account")
		return
	}
	if user == nil {
		respondJSONError(w, http.StatusUnauthorized, "Unauthorized", "ID token is missing required claims")
		return
	}

	h.respondWithToken(w, http.StatusOK, user)
}

// findOrCreateSSOUser resolves the local account for a verified set of
// provider claims, creating it on first login. A nil user with nil error
// means the claims were unusable.
func (h *AuthHandler) findOrCreateSSOUser(r *http.Request, claims *models.JWTClaims) (*models.User, error) {
	ctx := r.Context()

	user, err := h.userRepo.GetByProviderID(ctx, claims.Sub)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, database.ErrNotFound) {
		return nil, err
	}

	if claims.Sub == "" || claims.Email == "" {
		return nil, nil
	}

	var name *string
	if sanitized := validation.Sanitize(claims.Name); sanitized != "" {
		name = &sanitized
	}

	providerID := claims.Sub
	user = &models.User{
		ID:            uuid.New(),
		Email:         strings.ToLower(strings.TrimSpace(claims.Email)),
		Name:          name,
		ProviderID:    &providerID,
		EmailVerified: true,
	}
	if err := h.userRepo.Create(ctx, user); err != nil {
		return nil, err
	}

	h.logger.Info("sso_user_created", zap.String("user_id", user.ID.String()))
	return user, nil
}

func (h *AuthHandler) respondWithToken(w http.ResponseWriter, status int, user *models.User) {
	token, expiresAt, err := h.tokens.Issue(user.ID)
	if err != nil {
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to issue token")
		return
	}

	respondJSON(w, status, AuthResponse{
		Token:     token,
		ExpiresAt: expiresAt,
		User:      user,
	})
}

// randomState returns a fresh unguessable state value for the SSO
// authorization round trip.
func randomState() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
