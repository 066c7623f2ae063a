package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

func (p *PostgresClient) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	var user User
	err := p.pool.QueryRow(ctx, `
		SELECT id, username, password_hash, role, created_at, last_login_at,
		       failed_login_attempts, locked_until
		FROM users
		WHERE username = $1
	`, username).Scan(
		&user.ID, &user.Username, &user.PasswordHash, &user.Role,
		&user.CreatedAt, &user.LastLoginAt, &user.FailedLoginAttempts, &user.LockedUntil,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("user %s: %w", username, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &user, nil
}

func (p *PostgresClient) GetUserByID(ctx context.Context, userID uuid.UUID) (*User, error) {
	var user User
	err := p.pool.QueryRow(ctx, `
		SELECT id, username, role, created_at, last_login_at, failed_login_attempts, locked_until
		FROM users WHERE id = $1
	`, userID).Scan(
		&user.ID, &user.Username, &user.Role, &user.CreatedAt,
		&user.LastLoginAt, &user.FailedLoginAttempts, &user.LockedUntil,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("user %s: %w", userID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &user, nil
}

func (p *PostgresClient) CreateUser(ctx context.Context, username, passwordHash, role string) (*User, error) {
	var user User
	err := p.pool.QueryRow(ctx, `
		INSERT INTO users (username, password_hash, role)
		VALUES ($1, $2, $3)
		RETURNING id, username, role, created_at, last_login_at, failed_login_attempts, locked_until
	`, username, passwordHash, role).Scan(
		&user.ID, &user.Username, &user.Role, &user.CreatedAt,
		&user.LastLoginAt, &user.FailedLoginAttempts, &user.LockedUntil,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return &user, nil
}

func (p *PostgresClient) ListUsers(ctx context.Context) ([]*User, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id, username, role, created_at, last_login_at, failed_login_attempts, locked_until
		FROM users ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []*User
	for rows.Next() {
		var user User
		err := rows.Scan(
			&user.ID, &user.Username, &user.Role, &user.CreatedAt,
			&user.LastLoginAt, &user.FailedLoginAttempts, &user.LockedUntil,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, &user)
	}
	return users, rows.Err()
}

func (p *PostgresClient) UpdateLastLogin(ctx context.Context, userID uuid.UUID) error {
	_, err := p.pool.Exec(ctx, `
		UPDATE users SET last_login_at = NOW() WHERE id = $1
	`, userID)
	return err
}

// RecordFailedLogin bumps the failure counter and locks the account for lockFor once
// maxAttempts is reached.
func (p *PostgresClient) UpdatePasswordHash(ctx context.Context, userID uuid.UUID, passwordHash string) error {
	result, err := p.pool.Exec(ctx, `
		UPDATE users SET password_hash = $2 WHERE id = $1
	`, userID, passwordHash)
	if err != nil {
		return fmt.Errorf("failed to update password hash: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("user %s: %w", userID, ErrNotFound)
	}
	return nil
}

func (p *PostgresClient) RecordFailedLogin(ctx context.Context, userID uuid.UUID, maxAttempts int, lockFor time.Duration) error {
	_, err := p.pool.Exec(ctx, `
		UPDATE users
		SET failed_login_attempts = failed_login_attempts + 1,
		    locked_until = CASE
		        WHEN failed_login_attempts + 1 >= $2 THEN NOW() + make_interval(secs => $3)
		        ELSE locked_until
		    END
		WHERE id = $1
	`, userID, maxAttempts, lockFor.Seconds())
	return err
}

func (p *PostgresClient) ResetFailedLogins(ctx context.Context, userID uuid.UUID) error {
	_, err := p.pool.Exec(ctx, `
		UPDATE users
		SET failed_login_attempts = 0, locked_until = NULL
		WHERE id = $1
	`, userID)
	return err
}

func (p *PostgresClient) DeleteUser(ctx context.Context, userID uuid.UUID) error {
	result, err := p.pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, userID)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("user %s: %w", userID, ErrNotFound)
	}
	return nil
}

func (p *PostgresClient) CreateStationToken(ctx context.Context, tokenHash, name, machineID, role string, createdByUserID *uuid.UUID) (*StationToken, error) {
	var token StationToken
	err := p.pool.QueryRow(ctx, `
		INSERT INTO station_tokens (token_hash, name, machine_id, role, created_by_user_id)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, token_hash, name, machine_id, role, created_at, last_used_at, created_by_user_id
	`, tokenHash, name, machineID, role, createdByUserID).Scan(
		&token.ID, &token.TokenHash, &token.Name, &token.MachineID, &token.Role,
		&token.CreatedAt, &token.LastUsedAt, &token.CreatedByUserID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create station token: %w", err)
	}
	return &token, nil
}

func (p *PostgresClient) GetStationTokenByHash(ctx context.Context, tokenHash string) (*StationToken, error) {
	var token StationToken
	err := p.pool.QueryRow(ctx, `
		SELECT id, token_hash, name, machine_id, role, created_at, last_used_at, created_by_user_id
		FROM station_tokens
		WHERE token_hash = $1
	`, tokenHash).Scan(
		&token.ID, &token.TokenHash, &token.Name, &token.MachineID, &token.Role,
		&token.CreatedAt, &token.LastUsedAt, &token.CreatedByUserID,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("station token: %w", ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get station token: %w", err)
	}
	return &token, nil
}

func (p *PostgresClient) TouchStationToken(ctx context.Context, tokenID uuid.UUID) error {
	_, err := p.pool.Exec(ctx, `
		UPDATE station_tokens SET last_used_at = NOW() WHERE id = $1
	`, tokenID)
	return err
}

func (p *PostgresClient) ListStationTokens(ctx context.Context) ([]*StationToken, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id, name, machine_id, role, created_at, last_used_at, created_by_user_id
		FROM station_tokens
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list station tokens: %w", err)
	}
	defer rows.Close()

	var tokens []*StationToken
	for rows.Next() {
		var token StationToken
		err := rows.Scan(
			&token.ID, &token.Name, &token.MachineID, &token.Role, &token.CreatedAt,
			&token.LastUsedAt, &token.CreatedByUserID,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan station token: %w", err)
		}
		tokens = append(tokens, &token)
	}
	return tokens, rows.Err()
}

func (p *PostgresClient) DeleteStationToken(ctx context.Context, tokenID uuid.UUID) error {
	result, err := p.pool.Exec(ctx, `DELETE FROM station_tokens WHERE id = $1`, tokenID)
	if err != nil {
		return fmt.Errorf("failed to delete station token: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("station token %s: %w", tokenID, ErrNotFound)
	}
	return nil
}

func (p *PostgresClient) StoreRefreshToken(ctx context.Context, userID uuid.UUID, tokenHash string, expiresAt time.Time) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO refresh_tokens (user_id, token_hash, expires_at)
		VALUES ($1, $2, $3)
	`, userID, tokenHash, expiresAt)
	return err
}

// GetRefreshToken returns the owner of a live refresh token.
func (p *PostgresClient) GetRefreshToken(ctx context.Context, tokenHash string) (uuid.UUID, error) {
	var userID uuid.UUID
	var expiresAt time.Time
	var revokedAt *time.Time

	err := p.pool.QueryRow(ctx, `
		SELECT user_id, expires_at, revoked_at
		FROM refresh_tokens
		WHERE token_hash = $1
	`, tokenHash).Scan(&userID, &expiresAt, &revokedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return uuid.Nil, fmt.Errorf("refresh token: %w", ErrNotFound)
		}
		return uuid.Nil, fmt.Errorf("failed to get refresh token: %w", err)
	}

	if revokedAt != nil {
		return uuid.Nil, errors.New("refresh token revoked")
	}
	if time.Now().After(expiresAt) {
		return uuid.Nil, errors.New("refresh token expired")
	}
	return userID, nil
}

func (p *PostgresClient) RevokeRefreshToken(ctx context.Context, tokenHash string) error {
	_, err := p.pool.Exec(ctx, `
		UPDATE refresh_tokens SET revoked_at = NOW() WHERE token_hash = $1
	`, tokenHash)
	return err
}

func (p *PostgresClient) LogAuthEvent(ctx context.Context, eventType string, userID, stationTokenID *uuid.UUID, ipAddress, userAgent string, success bool, reason string) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO auth_events (event_type, user_id, station_token_id, ip_address, user_agent, success, reason)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, eventType, userID, stationTokenID, ipAddress, userAgent, success, reason)
	return err
}
