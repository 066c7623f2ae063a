package rest

import (
	"errors"
	"net/http"

	"github.com/KevinKickass/OpenRotoCore/internal/auth"
	"github.com/KevinKickass/OpenRotoCore/internal/types"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type LoginResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"` // seconds
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

type CreateStationTokenRequest struct {
	Name      string `json:"name" binding:"required"`
	MachineID string `json:"machine_id" binding:"required"`
	Role      string `json:"role"`
}

type CreateStationTokenResponse struct {
	Token     string    `json:"token"` // only returned once
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	MachineID string    `json:"machine_id"`
	Role      string    `json:"role"`
}

type CreateUserRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required,min=8"`
	Role     string `json:"role" binding:"required,oneof=operator planner admin"`
}

func (s *Server) tokenResponse(access, refresh string) LoginResponse {
	return LoginResponse{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		ExpiresIn:    int(s.authService.AccessTokenTTL().Seconds()),
	}
}

func (s *Server) login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse("AUTH_400", "Invalid request body", err.Error()))
		return
	}

	accessToken, refreshToken, err := s.authService.LoginUser(
		c.Request.Context(),
		req.Username,
		req.Password,
		c.ClientIP(),
		c.GetHeader("User-Agent"),
	)
	if err != nil {
		if errors.Is(err, auth.ErrAccountLocked) {
			c.JSON(http.StatusForbidden, types.NewErrorResponse("AUTH_423", "Account locked", err.Error()))
			return
		}
		c.JSON(http.StatusUnauthorized, types.NewErrorResponse("AUTH_401", "Invalid credentials", nil))
		return
	}

	c.JSON(http.StatusOK, s.tokenResponse(accessToken, refreshToken))
}

func (s *Server) refreshToken(c *gin.Context) {
	var req RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse("AUTH_400", "Invalid request body", err.Error()))
		return
	}

	accessToken, newRefreshToken, err := s.authService.RefreshAccessToken(c.Request.Context(), req.RefreshToken)
	if err != nil {
		c.JSON(http.StatusUnauthorized, types.NewErrorResponse("AUTH_401", "Invalid or expired refresh token", nil))
		return
	}

	c.JSON(http.StatusOK, s.tokenResponse(accessToken, newRefreshToken))
}

func (s *Server) logout(c *gin.Context) {
	var req RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse("AUTH_400", "Invalid request body", err.Error()))
		return
	}

	if err := s.authService.RevokeRefreshToken(c.Request.Context(), req.RefreshToken); err != nil {
		c.JSON(http.StatusInternalServerError, types.NewErrorResponse("AUTH_500", "Failed to logout", err.Error()))
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "logged out successfully"})
}

func (s *Server) getCurrentUser(c *gin.Context) {
	identity := auth.GetIdentity(c)
	if identity == nil {
		c.JSON(http.StatusUnauthorized, types.NewErrorResponse("AUTH_401", "Not authenticated", nil))
		return
	}

	// Station tokens have no user row.
	if identity.UserID == uuid.Nil {
		c.JSON(http.StatusOK, gin.H{"identity": identity})
		return
	}

	user, err := s.authService.GetUserByID(c.Request.Context(), identity.UserID)
	if err != nil {
		c.JSON(http.StatusNotFound, types.NewErrorResponse("USER_404", "User not found", nil))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user":     user,
		"identity": identity,
	})
}

func (s *Server) createStationToken(c *gin.Context) {
	var req CreateStationTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse("TOKEN_400", "Invalid request body", err.Error()))
		return
	}

	role := auth.RoleOperator
	if req.Role != "" {
		parsed, err := auth.ParseRole(req.Role)
		if err != nil {
			c.JSON(http.StatusBadRequest, types.NewErrorResponse("TOKEN_400", "Invalid role", err.Error()))
			return
		}
		role = parsed
	}

	if _, ok := s.lm.Machines().Get(req.MachineID); !ok {
		c.JSON(http.StatusNotFound, types.NewErrorResponse("TOKEN_404", "Unknown machine", req.MachineID))
		return
	}

	var createdBy *uuid.UUID
	if identity := auth.GetIdentity(c); identity != nil && identity.UserID != uuid.Nil {
		id := identity.UserID
		createdBy = &id
	}

	token, stationToken, err := s.authService.CreateStationToken(c.Request.Context(), req.Name, req.MachineID, role, createdBy)
	if errors.Is(err, auth.ErrInvalidMachineID) {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse("TOKEN_400", "Machine id cannot be used in a station token", err.Error()))
		return
	}
	if err != nil {
		s.logger.Error("Failed to create station token", zap.Error(err))
		c.JSON(http.StatusInternalServerError, types.NewErrorResponse("TOKEN_500", "Failed to create token", err.Error()))
		return
	}

	c.JSON(http.StatusCreated, CreateStationTokenResponse{
		Token: token,
		ID:    stationToken.ID,
		Name:      stationToken.Name,
		MachineID: stationToken.MachineID,
		Role:      stationToken.Role,
	})
}

func (s *Server) listStationTokens(c *gin.Context) {
	tokens, err := s.authService.ListStationTokens(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, types.NewErrorResponse("TOKEN_500", "Failed to list tokens", err.Error()))
		return
	}

	c.JSON(http.StatusOK, gin.H{"tokens": tokens})
}

func (s *Server) deleteStationToken(c *gin.Context) {
	tokenID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse("TOKEN_400", "Invalid token ID", err.Error()))
		return
	}

	if err := s.authService.DeleteStationToken(c.Request.Context(), tokenID); err != nil {
		c.JSON(http.StatusInternalServerError, types.NewErrorResponse("TOKEN_500", "Failed to delete token", err.Error()))
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "token deleted"})
}

func (s *Server) createUser(c *gin.Context) {
	var req CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse("USER_400", "Invalid request body", err.Error()))
		return
	}

	user, err := s.authService.CreateUser(c.Request.Context(), req.Username, req.Password, auth.Role(req.Role))
	if err != nil {
		c.JSON(http.StatusInternalServerError, types.NewErrorResponse("USER_500", "Failed to create user", err.Error()))
		return
	}

	c.JSON(http.StatusCreated, user)
}

func (s *Server) listUsers(c *gin.Context) {
	users, err := s.authService.ListUsers(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, types.NewErrorResponse("USER_500", "Failed to list users", err.Error()))
		return
	}

	c.JSON(http.StatusOK, gin.H{"users": users})
}

func (s *Server) deleteUser(c *gin.Context) {
	userID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse("USER_400", "Invalid user ID", err.Error()))
		return
	}

	if err := s.authService.DeleteUser(c.Request.Context(), userID); err != nil {
		c.JSON(http.StatusInternalServerError, types.NewErrorResponse("USER_500", "Failed to delete user", err.Error()))
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "user deleted"})
}
