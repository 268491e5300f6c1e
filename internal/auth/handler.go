package auth

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cidadeplus/backend/internal/models"
	"github.com/cidadeplus/backend/internal/tenancy"
	"github.com/cidadeplus/backend/pkg/database"
	"github.com/cidadeplus/backend/pkg/response"
)

// Users is the user storage the handler needs.
type Users interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	Create(ctx context.Context, u *models.User) error
	ListStaff(ctx context.Context, cityID *uuid.UUID) ([]models.UserPublic, error)
}

// LoginRequest is the body for POST /auth/login.
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// CreateStaffRequest is the body for POST /admin/staff.
type CreateStaffRequest struct {
	Email      string     `json:"email" binding:"required,email"`
	Password   string     `json:"password" binding:"required,min=8"`
	FullName   string     `json:"full_name" binding:"required"`
	Role       string     `json:"role" binding:"required"`
	HomeCityID *uuid.UUID `json:"home_city_id"`
}

// TokenResponse is the auth response with JWT.
type TokenResponse struct {
	Token string            `json:"token"`
	User  models.UserPublic `json:"user"`
}

// Handler handles auth HTTP endpoints.
type Handler struct {
	users  Users
	jwt    *JWTService
	logger *zap.Logger
}

// NewHandler creates an auth handler.
func NewHandler(users Users, jwt *JWTService, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{users: users, jwt: jwt, logger: logger}
}

// Login handles POST /auth/login.
func (h *Handler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}

	user, err := h.users.GetByEmail(c.Request.Context(), strings.ToLower(req.Email))
	if err != nil {
		h.logger.Error("load user", zap.Error(err))
		response.Internal(c, "failed to load user")
		return
	}
	hash := ""
	if user != nil {
		hash = user.Password
	}
	if !CheckPassword(req.Password, hash) {
		response.Unauthorized(c, "invalid email or password")
		return
	}

	token, err := h.jwt.Generate(user)
	if err != nil {
		response.Internal(c, "failed to generate token")
		return
	}
	response.OK(c, TokenResponse{Token: token, User: user.ToPublic()})
}

// Me handles GET /auth/me.
func (h *Handler) Me(c *gin.Context) {
	userID, ok := c.Get(ContextUserID)
	if !ok {
		response.Unauthorized(c, "missing user context")
		return
	}
	user, err := h.users.GetByID(c.Request.Context(), userID.(uuid.UUID))
	if err != nil {
		response.Internal(c, "failed to load user")
		return
	}
	if user == nil {
		response.NotFound(c, "user not found")
		return
	}
	response.OK(c, user.ToPublic())
}

// CreateStaff handles POST /admin/staff. Global staff only.
func (h *Handler) CreateStaff(c *gin.Context) {
	var req CreateStaffRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	role := models.Role(strings.ToLower(strings.TrimSpace(req.Role)))
	switch role {
	case models.RoleSuperAdmin, models.RoleAdmin:
		req.HomeCityID = nil
	case models.RoleModerator, models.RoleEditor:
		if req.HomeCityID == nil || *req.HomeCityID == uuid.Nil {
			response.BadRequest(c, "home_city_id required for city-scoped roles")
			return
		}
	default:
		response.BadRequest(c, "invalid role")
		return
	}

	hash, err := HashPassword(req.Password)
	if err != nil {
		response.Internal(c, "failed to hash password")
		return
	}
	user := &models.User{
		Email:      strings.ToLower(req.Email),
		Password:   hash,
		FullName:   strings.TrimSpace(req.FullName),
		Role:       role,
		HomeCityID: req.HomeCityID,
	}
	if err := h.users.Create(c.Request.Context(), user); err != nil {
		switch {
		case database.IsUniqueViolation(err):
			response.Conflict(c, "email already registered")
		case database.IsForeignKeyViolation(err):
			response.BadRequest(c, "unknown home city")
		default:
			h.logger.Error("create staff", zap.Error(err))
			response.Internal(c, "failed to create user")
		}
		return
	}
	response.Created(c, user.ToPublic())
}

// ListStaff handles GET /admin/staff. Scoped staff only see their own city.
func (h *Handler) ListStaff(c *gin.Context) {
	var cityID *uuid.UUID
	if id, _ := tenancy.IdentityFromGin(c); id != nil {
		if _, global := id.(tenancy.GlobalStaff); !global {
			v := c.MustGet(tenancy.ContextCityID).(uuid.UUID)
			cityID = &v
		}
	}
	list, err := h.users.ListStaff(c.Request.Context(), cityID)
	if err != nil {
		response.Internal(c, "failed to list staff")
		return
	}
	response.OK(c, list)
}
