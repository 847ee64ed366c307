package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"receipt-overseer/internal/auth"
	"receipt-overseer/internal/repositories"
	"receipt-overseer/internal/telemetry"
)

// SessionCloser ends a user's live websocket sessions.
type SessionCloser interface {
	CloseUser(userID int, reason string) int
}

// UserHandler serves registration, login and account endpoints.
type UserHandler struct {
	auth     *auth.Service
	users    repositories.UserRepository
	sessions SessionCloser
	audit    *telemetry.AuditEmitter
}

func NewUserHandler(authService *auth.Service, users repositories.UserRepository, sessions SessionCloser, audit *telemetry.AuditEmitter) *UserHandler {
	return &UserHandler{auth: authService, users: users, sessions: sessions, audit: audit}
}

type credentialsRequest struct {
	Username string `json:"username" form:"username" binding:"required"`
	Password string `json:"password" form:"password" binding:"required"`
}

type passwordChangeRequest struct {
	OldPassword string `json:"old_password" binding:"required"`
	NewPassword string `json:"new_password" binding:"required"`
}

func (h *UserHandler) Register(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	user, err := h.auth.Register(c.Request.Context(), req.Username, req.Password)
	switch {
	case errors.Is(err, repositories.ErrUsernameTaken):
		c.JSON(http.StatusBadRequest, gin.H{"error": "username already registered"})
		return
	case errors.Is(err, auth.ErrWeakPassword), errors.Is(err, auth.ErrInvalidUsername):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	case err != nil:
		slog.Error("register failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to register"})
		return
	}
	c.JSON(http.StatusCreated, user)
}

// Login accepts JSON or form-encoded credentials and issues a bearer token.
func (h *UserHandler) Login(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	token, _, err := h.auth.Login(c.Request.Context(), req.Username, req.Password)
	if errors.Is(err, auth.ErrInvalidCredentials) {
		c.Header("WWW-Authenticate", "Bearer")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "incorrect username or password"})
		return
	}
	if err != nil {
		slog.Error("login failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to login"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"access_token": token, "token_type": "bearer"})
}

// Logout closes the caller's websocket sessions. Tokens are stateless, so the
// client is expected to discard its own.
func (h *UserHandler) Logout(c *gin.Context) {
	userID := actorFromContext(c).UserID
	closed := h.sessions.CloseUser(userID, "logged out")
	slog.Info("user logged out", "user_id", userID, "closed_sessions", closed)
	c.JSON(http.StatusOK, gin.H{"detail": "logged out", "closed_sessions": closed})
}

func (h *UserHandler) Me(c *gin.Context) {
	user, err := h.users.GetUserByID(c.Request.Context(), actorFromContext(c).UserID)
	if err != nil {
		writeUserError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

func (h *UserHandler) ChangePassword(c *gin.Context) {
	var req passwordChangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	err := h.auth.ChangePassword(c.Request.Context(), actorFromContext(c).UserID, req.OldPassword, req.NewPassword)
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		c.JSON(http.StatusBadRequest, gin.H{"error": "incorrect old password"})
		return
	case errors.Is(err, auth.ErrWeakPassword):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	case err != nil:
		writeUserError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"detail": "password updated"})
}

func (h *UserHandler) ListUsers(c *gin.Context) {
	skip, ok := queryInt(c, "skip", 0)
	if !ok {
		return
	}
	limit, ok := queryInt(c, "limit", defaultPageLimit)
	if !ok {
		return
	}
	if limit == 0 {
		limit = defaultPageLimit
	}

	users, err := h.users.ListUsers(c.Request.Context(), skip, limit)
	if err != nil {
		writeUserError(c, err)
		return
	}
	c.JSON(http.StatusOK, users)
}

func (h *UserHandler) GetUser(c *gin.Context) {
	userID, ok := pathID(c, "user_id")
	if !ok {
		return
	}

	user, err := h.users.GetUserByID(c.Request.Context(), userID)
	if err != nil {
		writeUserError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

// DeleteUser lets a user delete their own account unless it appears in the ledger.
func (h *UserHandler) DeleteUser(c *gin.Context) {
	userID, ok := pathID(c, "user_id")
	if !ok {
		return
	}
	actor := actorFromContext(c)
	if userID != actor.UserID {
		h.audit.Emit(c.Request.Context(), telemetry.LevelWarn, "delete of another user's account denied", actor.UserID)
		c.JSON(http.StatusForbidden, gin.H{"error": "can only delete your own account"})
		return
	}

	if err := h.users.DeleteUser(c.Request.Context(), userID); err != nil {
		writeUserError(c, err)
		return
	}
	h.sessions.CloseUser(userID, "account deleted")
	h.audit.Emit(c.Request.Context(), telemetry.LevelInfo, "account deleted", userID)
	c.JSON(http.StatusOK, gin.H{"detail": "user deleted"})
}

func writeUserError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, repositories.ErrUserNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
	case errors.Is(err, repositories.ErrUserHasLedger):
		c.JSON(http.StatusConflict, gin.H{"error": "user has expenses in the ledger"})
	default:
		slog.Error("user request failed", "path", c.FullPath(), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
