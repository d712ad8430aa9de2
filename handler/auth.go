package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jahboukie/ndarite/config"
	"github.com/jahboukie/ndarite/middleware"
	"github.com/jahboukie/ndarite/service"
)

type AuthHandler struct {
	config *config.Config
	users  *service.UserService
}

func NewAuthHandler(cfg *config.Config, users *service.UserService) *AuthHandler {
	return &AuthHandler{config: cfg, users: users}
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type LoginResponse struct {
	Token     string `json:"token"`
	ExpiresAt string `json:"expires_at"`
	UserID    string `json:"user_id"`
	Email     string `json:"email"`
	Tier      string `json:"tier"`
}

// Register creates a new account on the free tier and returns a token so the
// client is signed in immediately.
func (h *AuthHandler) Register(c *gin.Context) {
	var req service.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	user, err := h.users.Register(&req)
	if err != nil {
		writeServiceError(c, err)
		return
	}

	token, expiresAt, err := middleware.GenerateToken(user.ID, user.Email, user.Role, user.SubscriptionTier, &h.config.Auth)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate token"})
		return
	}

	c.JSON(http.StatusCreated, LoginResponse{
		Token:     token,
		ExpiresAt: expiresAt.Format("2006-01-02T15:04:05Z07:00"),
		UserID:    user.ID,
		Email:     user.Email,
		Tier:      user.SubscriptionTier,
	})
}

// Login handles user login
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	user, err := h.users.Authenticate(req.Email, req.Password)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid email or password"})
		return
	}

	token, expiresAt, err := middleware.GenerateToken(user.ID, user.Email, user.Role, user.SubscriptionTier, &h.config.Auth)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate token"})
		return
	}

	c.JSON(http.StatusOK, LoginResponse{
		Token:     token,
		ExpiresAt: expiresAt.Format("2006-01-02T15:04:05Z07:00"),
		UserID:    user.ID,
		Email:     user.Email,
		Tier:      user.SubscriptionTier,
	})
}

// GetCurrentUser returns the current user profile
func (h *AuthHandler) GetCurrentUser(c *gin.Context) {
	user, err := h.users.GetByID(middleware.GetUserID(c))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

type UpdateProfileRequest struct {
	FirstName   *string `json:"first_name,omitempty" binding:"omitempty,max=100"`
	LastName    *string `json:"last_name,omitempty" binding:"omitempty,max=100"`
	CompanyName *string `json:"company_name,omitempty" binding:"omitempty,max=255"`
	Phone       *string `json:"phone,omitempty" binding:"omitempty,max=20"`
}

// UpdateProfile updates the caller's editable profile fields.
func (h *AuthHandler) UpdateProfile(c *gin.Context) {
	var req UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	user, err := h.users.UpdateProfile(middleware.GetUserID(c), req.FirstName, req.LastName, req.CompanyName, req.Phone)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}
