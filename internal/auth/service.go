package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/KevinKickass/OpenRotoCore/internal/config"
	"github.com/KevinKickass/OpenRotoCore/internal/storage"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountLocked      = errors.New("account locked")
	ErrInvalidToken       = errors.New("invalid token")
)

// Store is the persistence the auth service needs. *storage.PostgresClient implements it.
type Store interface {
	GetUserByUsername(ctx context.Context, username string) (*storage.User, error)
	GetUserByID(ctx context.Context, userID uuid.UUID) (*storage.User, error)
	CreateUser(ctx context.Context, username, passwordHash, role string) (*storage.User, error)
	ListUsers(ctx context.Context) ([]*storage.User, error)
	DeleteUser(ctx context.Context, userID uuid.UUID) error
	UpdateLastLogin(ctx context.Context, userID uuid.UUID) error
	UpdatePasswordHash(ctx context.Context, userID uuid.UUID, passwordHash string) error
	RecordFailedLogin(ctx context.Context, userID uuid.UUID, maxAttempts int, lockFor time.Duration) error
	ResetFailedLogins(ctx context.Context, userID uuid.UUID) error

	CreateStationToken(ctx context.Context, tokenHash, name, machineID, role string, createdByUserID *uuid.UUID) (*storage.StationToken, error)
	GetStationTokenByHash(ctx context.Context, tokenHash string) (*storage.StationToken, error)
	TouchStationToken(ctx context.Context, tokenID uuid.UUID) error
	ListStationTokens(ctx context.Context) ([]*storage.StationToken, error)
	DeleteStationToken(ctx context.Context, tokenID uuid.UUID) error

	StoreRefreshToken(ctx context.Context, userID uuid.UUID, tokenHash string, expiresAt time.Time) error
	GetRefreshToken(ctx context.Context, tokenHash string) (uuid.UUID, error)
	RevokeRefreshToken(ctx context.Context, tokenHash string) error

	LogAuthEvent(ctx context.Context, eventType string, userID, stationTokenID *uuid.UUID, ipAddress, userAgent string, success bool, reason string) error
}

// Identity is the authenticated caller behind a token. MachineID is set for station
// tokens only and limits the caller to that machine.
type Identity struct {
	UserID      uuid.UUID    `json:"user_id,omitempty"`
	Username    string       `json:"username,omitempty"`
	StationName string       `json:"station_name,omitempty"`
	MachineID   string       `json:"machine_id,omitempty"`
	Role        Role         `json:"role"`
	Permissions []Permission `json:"permissions"`
}

type AuthService struct {
	store           Store
	jwtHandler      *JWTHandler
	passwordHasher  *PasswordHasher
	stationTokenGen *StationTokenGenerator
	maxFailedLogins int
	lockDuration    time.Duration
	logger          *zap.Logger
}

func NewAuthService(store Store, cfg config.AuthConfig, logger *zap.Logger) *AuthService {
	return &AuthService{
		store:           store,
		jwtHandler:      NewJWTHandler(cfg.GetJWTSecret(), cfg.AccessTokenTTL, cfg.RefreshTokenTTL),
		passwordHasher:  NewPasswordHasher(cfg.Password),
		stationTokenGen: NewStationTokenGenerator(),
		maxFailedLogins: cfg.MaxFailedLoginAttempts,
		lockDuration:    cfg.AccountLockDuration,
		logger:          logger,
	}
}

// LoginUser authenticates a user and returns an access and a refresh token.
func (a *AuthService) LoginUser(ctx context.Context, username, password, ipAddress, userAgent string) (accessToken, refreshToken string, err error) {
	user, err := a.store.GetUserByUsername(ctx, username)
	if err != nil {
		a.logAuthEvent(ctx, "user_login_failed", nil, nil, ipAddress, userAgent, false, "user not found")
		return "", "", ErrInvalidCredentials
	}

	if user.LockedUntil != nil && time.Now().Before(*user.LockedUntil) {
		a.logAuthEvent(ctx, "user_login_failed", &user.ID, nil, ipAddress, userAgent, false, "account locked")
		return "", "", fmt.Errorf("%w until %s", ErrAccountLocked, user.LockedUntil.Format(time.RFC3339))
	}

	valid, err := a.passwordHasher.VerifyPassword(password, user.PasswordHash)
	if err != nil || !valid {
		if recErr := a.store.RecordFailedLogin(ctx, user.ID, a.maxFailedLogins, a.lockDuration); recErr != nil {
			a.logger.Warn("Failed to record failed login", zap.String("username", username), zap.Error(recErr))
		}
		a.logAuthEvent(ctx, "user_login_failed", &user.ID, nil, ipAddress, userAgent, false, "invalid password")
		return "", "", ErrInvalidCredentials
	}

	if err := a.store.ResetFailedLogins(ctx, user.ID); err != nil {
		a.logger.Warn("Failed to reset login counter", zap.String("username", username), zap.Error(err))
	}
	a.upgradeHash(ctx, user, password)

	accessToken, refreshToken, err = a.issueTokens(ctx, user)
	if err != nil {
		return "", "", err
	}

	if err := a.store.UpdateLastLogin(ctx, user.ID); err != nil {
		a.logger.Warn("Failed to update last login", zap.String("username", username), zap.Error(err))
	}
	a.logAuthEvent(ctx, "user_login_success", &user.ID, nil, ipAddress, userAgent, true, "")

	return accessToken, refreshToken, nil
}

// upgradeHash re-hashes a verified password when the configured Argon2id cost changed.
func (a *AuthService) upgradeHash(ctx context.Context, user *storage.User, password string) {
	if !a.passwordHasher.NeedsRehash(user.PasswordHash) {
		return
	}
	hash, err := a.passwordHasher.HashPassword(password)
	if err == nil {
		err = a.store.UpdatePasswordHash(ctx, user.ID, hash)
	}
	if err != nil {
		a.logger.Warn("Failed to upgrade password hash", zap.String("username", user.Username), zap.Error(err))
		return
	}
	a.logger.Info("Password hash upgraded", zap.String("username", user.Username))
}

func (a *AuthService) issueTokens(ctx context.Context, user *storage.User) (string, string, error) {
	accessToken, err := a.jwtHandler.GenerateAccessToken(user.ID, user.Username, Role(user.Role))
	if err != nil {
		return "", "", fmt.Errorf("failed to generate access token: %w", err)
	}

	refreshToken, err := a.jwtHandler.GenerateRefreshToken()
	if err != nil {
		return "", "", fmt.Errorf("failed to generate refresh token: %w", err)
	}

	expiresAt := time.Now().Add(a.jwtHandler.refreshTokenTTL)
	if err := a.store.StoreRefreshToken(ctx, user.ID, hashToken(refreshToken), expiresAt); err != nil {
		return "", "", fmt.Errorf("failed to store refresh token: %w", err)
	}

	return accessToken, refreshToken, nil
}

// RefreshAccessToken rotates a refresh token and issues a new access token.
func (a *AuthService) RefreshAccessToken(ctx context.Context, refreshToken string) (string, string, error) {
	tokenHash := hashToken(refreshToken)

	userID, err := a.store.GetRefreshToken(ctx, tokenHash)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	user, err := a.store.GetUserByID(ctx, userID)
	if err != nil {
		return "", "", fmt.Errorf("failed to load user: %w", err)
	}

	if err := a.store.RevokeRefreshToken(ctx, tokenHash); err != nil {
		return "", "", fmt.Errorf("failed to revoke refresh token: %w", err)
	}

	return a.issueTokens(ctx, user)
}

func (a *AuthService) RevokeRefreshToken(ctx context.Context, refreshToken string) error {
	return a.store.RevokeRefreshToken(ctx, hashToken(refreshToken))
}

func (a *AuthService) ValidateStationToken(ctx context.Context, token, ipAddress, userAgent string) (*Identity, error) {
	machineID, ok := a.stationTokenGen.ParseStationToken(token)
	if !ok {
		return nil, fmt.Errorf("%w: bad format", ErrInvalidToken)
	}

	stationToken, err := a.store.GetStationTokenByHash(ctx, a.stationTokenGen.HashToken(token))
	if err != nil {
		a.logAuthEvent(ctx, "station_token_failed", nil, nil, ipAddress, userAgent, false, "token not found")
		return nil, ErrInvalidToken
	}
	if stationToken.MachineID != machineID {
		a.logAuthEvent(ctx, "station_token_failed", nil, &stationToken.ID, ipAddress, userAgent, false, "machine mismatch")
		return nil, ErrInvalidToken
	}

	if err := a.store.TouchStationToken(ctx, stationToken.ID); err != nil {
		a.logger.Warn("Failed to touch station token", zap.String("name", stationToken.Name), zap.Error(err))
	}
	a.logAuthEvent(ctx, "station_token_success", nil, &stationToken.ID, ipAddress, userAgent, true, "")

	role := Role(stationToken.Role)
	return &Identity{
		StationName: stationToken.Name,
		MachineID:   stationToken.MachineID,
		Role:        role,
		Permissions: RolePermissions(role),
	}, nil
}

// ValidateToken accepts a JWT access token or a station token.
func (a *AuthService) ValidateToken(ctx context.Context, token, ipAddress, userAgent string) (*Identity, error) {
	if claims, err := a.jwtHandler.ValidateAccessToken(token); err == nil {
		userID, _ := claims.UserID()
		return &Identity{
			UserID:      userID,
			Username:    claims.Username,
			Role:        claims.Role,
			Permissions: RolePermissions(claims.Role),
		}, nil
	}

	return a.ValidateStationToken(ctx, token, ipAddress, userAgent)
}

// CreateStationToken issues a token bound to machineID. The plain token is returned once;
// only its hash is stored.
func (a *AuthService) CreateStationToken(ctx context.Context, name, machineID string, role Role, createdByUserID *uuid.UUID) (string, *storage.StationToken, error) {
	token, tokenHash, err := a.stationTokenGen.GenerateStationToken(machineID)
	if err != nil {
		return "", nil, fmt.Errorf("failed to generate token: %w", err)
	}

	stationToken, err := a.store.CreateStationToken(ctx, tokenHash, name, machineID, string(role), createdByUserID)
	if err != nil {
		return "", nil, fmt.Errorf("failed to store token: %w", err)
	}

	a.logAuthEvent(ctx, "station_token_created", createdByUserID, &stationToken.ID, "", "", true, "")
	return token, stationToken, nil
}

func (a *AuthService) ListStationTokens(ctx context.Context) ([]*storage.StationToken, error) {
	return a.store.ListStationTokens(ctx)
}

func (a *AuthService) DeleteStationToken(ctx context.Context, tokenID uuid.UUID) error {
	return a.store.DeleteStationToken(ctx, tokenID)
}

func (a *AuthService) CreateUser(ctx context.Context, username, password string, role Role) (*storage.User, error) {
	if _, err := ParseRole(string(role)); err != nil {
		return nil, err
	}

	passwordHash, err := a.passwordHasher.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	return a.store.CreateUser(ctx, username, passwordHash, string(role))
}

// EnsureAdmin creates the bootstrap admin account when it does not exist yet.
func (a *AuthService) EnsureAdmin(ctx context.Context, username, password string) error {
	if _, err := a.store.GetUserByUsername(ctx, username); err == nil {
		return nil
	} else if !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("failed to look up admin: %w", err)
	}

	if _, err := a.CreateUser(ctx, username, password, RoleAdmin); err != nil {
		return fmt.Errorf("failed to create admin: %w", err)
	}
	a.logger.Info("Bootstrap admin created", zap.String("username", username))
	return nil
}

func (a *AuthService) GetUserByID(ctx context.Context, userID uuid.UUID) (*storage.User, error) {
	return a.store.GetUserByID(ctx, userID)
}

// AccessTokenTTL is the lifetime of issued access tokens.
func (a *AuthService) AccessTokenTTL() time.Duration {
	return a.jwtHandler.accessTokenTTL
}

func (a *AuthService) ListUsers(ctx context.Context) ([]*storage.User, error) {
	return a.store.ListUsers(ctx)
}

func (a *AuthService) DeleteUser(ctx context.Context, userID uuid.UUID) error {
	return a.store.DeleteUser(ctx, userID)
}

func (a *AuthService) logAuthEvent(ctx context.Context, eventType string, userID, stationTokenID *uuid.UUID, ip, userAgent string, success bool, reason string) {
	if err := a.store.LogAuthEvent(ctx, eventType, userID, stationTokenID, ip, userAgent, success, reason); err != nil {
		a.logger.Debug("Failed to log auth event", zap.String("event", eventType), zap.Error(err))
	}
}

func hashToken(token string) string {
	hash := sha256.Sum256([]byte(token))
	return hex.EncodeToString(hash[:])
}
