package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/lukasschreiber/wimc/internal/auth"
	"github.com/lukasschreiber/wimc/internal/email"
	"github.com/lukasschreiber/wimc/internal/store"
	"github.com/lukasschreiber/wimc/internal/token"
)

const minPasswordLength = 4

type AuthHandler struct {
	userStore   *store.UserStore
	emailClient *email.Client
	secret      []byte
	tokenTTL    time.Duration
	logger      *slog.Logger
}

func NewAuthHandler(us *store.UserStore, ec *email.Client, secret []byte, tokenTTL time.Duration, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		userStore:   us,
		emailClient: ec,
		secret:      secret,
		tokenTTL:    tokenTTL,
		logger:      logger,
	}
}

type userView struct {
	UUID      string    `json:"uuid"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

type signupRequest struct {
	Username        string `json:"username"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
}

// Signup registers an inactive account and emails a verification code. The
// code is sent before the row is written so a broken mail setup never leaves
// an account stuck unverifiable.
func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}

	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Username == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "username is required"})
		return
	}
	if !strings.Contains(req.Email, "@") {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid email address"})
		return
	}
	if len(req.Password) < minPasswordLength {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "password must be at least 4 characters"})
		return
	}
	if req.Password != req.ConfirmPassword {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "passwords do not match"})
		return
	}

	existing, err := h.userStore.GetByEmail(req.Email)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if existing != nil {
		writeJSON(w, http.StatusConflict, map[string]string{"error": "email already registered"})
		return
	}

	code, err := store.GenerateCode()
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	if err := h.emailClient.SendCode(req.Email, code, "verify", ""); err != nil {
		h.logger.Error("send verification email", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to send verification email"})
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	user, err := h.userStore.Create(uuid.NewString(), req.Username, req.Email, string(hash), code, time.Now().Add(store.CodeTTL))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, userView{
		UUID:      user.UUID,
		Username:  user.Username,
		Email:     user.Email,
		Active:    user.Active,
		CreatedAt: user.CreatedAt,
	})
}

type activateRequest struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

// Activate flips an account active if the emailed code matches and has not
// expired.
func (h *AuthHandler) Activate(w http.ResponseWriter, r *http.Request) {
	var req activateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))

	user, err := h.userStore.GetByEmailAndCode(req.Email, req.Code)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if user == nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid email or code"})
		return
	}
	if user.Active {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "account already active"})
		return
	}
	if user.EmailTokenExpires == nil || time.Now().After(*user.EmailTokenExpires) {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "verification code expired"})
		return
	}

	if err := h.userStore.Activate(user.ID); err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "account activated"})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login checks the credentials, issues a signed token, and records it as the
// account's current session credential. Each login invalidates the previous
// one.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))

	user, err := h.userStore.GetByEmail(req.Email)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if user == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "account not found"})
		return
	}
	if !user.Active {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "account not activated"})
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid credentials"})
		return
	}

	tok, err := token.Sign(user.UUID, user.Email, h.secret, h.tokenTTL)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if err := h.userStore.UpdateAccessToken(user.ID, tok); err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"accessToken": tok, "uuid": user.UUID})
}

type forgotRequest struct {
	Email string `json:"email"`
}

// Forgot sends a password reset code. The response is the same whether or not
// the address belongs to an account, so addresses cannot be probed.
func (h *AuthHandler) Forgot(w http.ResponseWriter, r *http.Request) {
	var req forgotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))

	// Always the same answer, regardless of outcome.
	defer writeJSON(w, http.StatusOK, map[string]string{"message": "if the account exists, a reset code has been sent"})

	user, err := h.userStore.GetByEmail(req.Email)
	if err != nil {
		h.logger.Error("forgot lookup", "error", err)
		return
	}
	if user == nil {
		return
	}

	code, err := store.GenerateCode()
	if err != nil {
		h.logger.Error("generate reset code", "error", err)
		return
	}
	if err := h.userStore.SetResetCode(user.ID, code, time.Now().Add(store.CodeTTL)); err != nil {
		h.logger.Error("set reset code", "error", err)
		return
	}
	if err := h.emailClient.SendCode(user.Email, code, "reset", ""); err != nil {
		h.logger.Error("send reset email", "error", err)
	}
}

type resetRequest struct {
	Token           string `json:"token"`
	NewPassword     string `json:"newPassword"`
	ConfirmPassword string `json:"confirmPassword"`
}

// Reset sets a new password if the reset code matches and has not expired,
// consuming the code.
func (h *AuthHandler) Reset(w http.ResponseWriter, r *http.Request) {
	var req resetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	if req.Token == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "token is required"})
		return
	}
	if len(req.NewPassword) < minPasswordLength {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "password must be at least 4 characters"})
		return
	}
	if req.NewPassword != req.ConfirmPassword {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "passwords do not match"})
		return
	}

	user, err := h.userStore.GetByResetToken(req.Token)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if user == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "reset token not found"})
		return
	}
	if user.ResetTokenExpires == nil || time.Now().After(*user.ResetTokenExpires) {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "reset code expired"})
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if err := h.userStore.UpdatePassword(user.ID, string(hash)); err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "password updated"})
}

// Me returns the authenticated user's own account.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	id, ok := auth.FromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "authentication required"})
		return
	}

	user, err := h.userStore.GetByUUID(id.UUID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if user == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "user not found"})
		return
	}

	writeJSON(w, http.StatusOK, userView{
		UUID:      user.UUID,
		Username:  user.Username,
		Email:     user.Email,
		Active:    user.Active,
		CreatedAt: user.CreatedAt,
	})
}
