package auth

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/KevinKickass/OpenRotoCore/internal/config"
	"github.com/KevinKickass/OpenRotoCore/internal/storage"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type memStore struct {
	mu       sync.Mutex
	users    map[string]*storage.User
	stations map[string]*storage.StationToken
	refresh  map[string]uuid.UUID
	revoked  map[string]bool
	events   []string
}

func newMemStore() *memStore {
	return &memStore{
		users:    make(map[string]*storage.User),
		stations: make(map[string]*storage.StationToken),
		refresh:  make(map[string]uuid.UUID),
		revoked:  make(map[string]bool),
	}
}

func (m *memStore) GetUserByUsername(_ context.Context, username string) (*storage.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[username]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", username, storage.ErrNotFound)
	}
	cp := *u
	return &cp, nil
}

func (m *memStore) GetUserByID(_ context.Context, id uuid.UUID) (*storage.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.ID == id {
			cp := *u
			return &cp, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (m *memStore) CreateUser(_ context.Context, username, hash, role string) (*storage.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := &storage.User{ID: uuid.New(), Username: username, PasswordHash: hash, Role: role, CreatedAt: time.Now()}
	m.users[username] = u
	return u, nil
}

func (m *memStore) ListUsers(context.Context) ([]*storage.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*storage.User, 0, len(m.users))
	for _, u := range m.users {
		out = append(out, u)
	}
	return out, nil
}

func (m *memStore) DeleteUser(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for name, u := range m.users {
		if u.ID == id {
			delete(m.users, name)
			return nil
		}
	}
	return storage.ErrNotFound
}

func (m *memStore) UpdateLastLogin(context.Context, uuid.UUID) error { return nil }

func (m *memStore) UpdatePasswordHash(_ context.Context, id uuid.UUID, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.ID == id {
			u.PasswordHash = hash
			return nil
		}
	}
	return storage.ErrNotFound
}

func (m *memStore) RecordFailedLogin(_ context.Context, id uuid.UUID, maxAttempts int, lockFor time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.ID == id {
			u.FailedLoginAttempts++
			if u.FailedLoginAttempts >= maxAttempts {
				until := time.Now().Add(lockFor)
				u.LockedUntil = &until
			}
		}
	}
	return nil
}

func (m *memStore) ResetFailedLogins(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.ID == id {
			u.FailedLoginAttempts = 0
			u.LockedUntil = nil
		}
	}
	return nil
}

func (m *memStore) CreateStationToken(_ context.Context, hash, name, machineID, role string, by *uuid.UUID) (*storage.StationToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := &storage.StationToken{ID: uuid.New(), TokenHash: hash, Name: name, MachineID: machineID, Role: role, CreatedByUserID: by}
	m.stations[hash] = t
	return t, nil
}

func (m *memStore) GetStationTokenByHash(_ context.Context, hash string) (*storage.StationToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.stations[hash]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return t, nil
}

func (m *memStore) TouchStationToken(context.Context, uuid.UUID) error { return nil }

func (m *memStore) ListStationTokens(context.Context) ([]*storage.StationToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*storage.StationToken, 0, len(m.stations))
	for _, t := range m.stations {
		out = append(out, t)
	}
	return out, nil
}

func (m *memStore) DeleteStationToken(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for hash, t := range m.stations {
		if t.ID == id {
			delete(m.stations, hash)
			return nil
		}
	}
	return storage.ErrNotFound
}

func (m *memStore) StoreRefreshToken(_ context.Context, id uuid.UUID, hash string, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refresh[hash] = id
	return nil
}

func (m *memStore) GetRefreshToken(_ context.Context, hash string) (uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.refresh[hash]
	if !ok || m.revoked[hash] {
		return uuid.Nil, storage.ErrNotFound
	}
	return id, nil
}

func (m *memStore) RevokeRefreshToken(_ context.Context, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.revoked[hash] = true
	return nil
}

func (m *memStore) LogAuthEvent(_ context.Context, eventType string, _, _ *uuid.UUID, _, _ string, _ bool, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, eventType)
	return nil
}

var fastCost = config.PasswordConfig{MemoryKiB: 8 * 1024, Iterations: 1, Parallelism: 1}

func fastHasher() *PasswordHasher {
	return NewPasswordHasher(fastCost)
}

func newTestService(t *testing.T) (*AuthService, *memStore) {
	t.Helper()
	store := newMemStore()
	svc := NewAuthService(store, config.AuthConfig{
		JWTSecretEnv:           "ORC_AUTH_TEST_SECRET",
		AccessTokenTTL:         time.Minute,
		RefreshTokenTTL:        time.Hour,
		MaxFailedLoginAttempts: 3,
		AccountLockDuration:    time.Minute,
		Password:               fastCost,
	}, zap.NewNop())
	return svc, store
}

func TestPasswordHasher(t *testing.T) {
	h := fastHasher()

	encoded, err := h.HashPassword("s3cret")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(encoded, "$argon2id$"))

	ok, err := h.VerifyPassword("s3cret", encoded)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = h.VerifyPassword("wrong", encoded)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = h.VerifyPassword("s3cret", "not-a-hash")
	assert.ErrorIs(t, err, ErrMalformedHash)
}

func TestPasswordHasher_UsesConfiguredCost(t *testing.T) {
	h := NewPasswordHasher(config.PasswordConfig{MemoryKiB: 4096, Iterations: 2, Parallelism: 1, SaltLength: 24, KeyLength: 48})

	encoded, err := h.HashPassword("s3cret")
	require.NoError(t, err)
	assert.Contains(t, encoded, "$m=4096,t=2,p=1$")

	p, salt, key, err := decodeHash(encoded)
	require.NoError(t, err)
	assert.Len(t, salt, 24)
	assert.Len(t, key, 48)
	assert.Equal(t, uint32(2), p.iterations)

	assert.False(t, h.NeedsRehash(encoded))
	assert.True(t, fastHasher().NeedsRehash(encoded))
	assert.True(t, h.NeedsRehash("garbage"))
}

func TestPasswordHasher_ZeroConfigUsesDefaults(t *testing.T) {
	assert.Equal(t, defaultArgon2, NewPasswordHasher(config.PasswordConfig{}).params)
}

func TestPasswordHasher_RefusesHostileHashes(t *testing.T) {
	h := fastHasher()
	tests := []struct {
		name    string
		encoded string
	}{
		{name: "wrong algorithm", encoded: "$argon2i$v=19$m=4096,t=1,p=1$c2FsdHNhbHQ$a2V5"},
		{name: "wrong version", encoded: "$argon2id$v=16$m=4096,t=1,p=1$c2FsdHNhbHQ$a2V5"},
		{name: "huge memory", encoded: "$argon2id$v=19$m=4294967295,t=1,p=1$c2FsdHNhbHQ$a2V5"},
		{name: "zero iterations", encoded: "$argon2id$v=19$m=4096,t=0,p=1$c2FsdHNhbHQ$a2V5"},
		{name: "empty key", encoded: "$argon2id$v=19$m=4096,t=1,p=1$c2FsdHNhbHQ$"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, err := h.VerifyPassword("pw", tt.encoded)
			assert.ErrorIs(t, err, ErrMalformedHash)
			assert.False(t, ok)
		})
	}
}

func TestJWTHandler(t *testing.T) {
	j := NewJWTHandler("0123456789abcdef0123456789abcdef", time.Minute, time.Hour)
	id := uuid.New()

	token, err := j.GenerateAccessToken(id, "ana", RolePlanner)
	require.NoError(t, err)

	claims, err := j.ValidateAccessToken(token)
	require.NoError(t, err)
	subject, err := claims.UserID()
	require.NoError(t, err)
	assert.Equal(t, id, subject)
	assert.Equal(t, RolePlanner, claims.Role)
	assert.Equal(t, "openrotocore", claims.Issuer)
	assert.Equal(t, jwt.ClaimStrings{"openrotocore-api"}, claims.Audience)
	assert.NotEmpty(t, claims.ID)

	again, err := j.GenerateAccessToken(id, "ana", RolePlanner)
	require.NoError(t, err)
	assert.NotEqual(t, token, again, "every token carries its own jti")

	other := NewJWTHandler("another-secret-another-secret-xx", time.Minute, time.Hour)
	_, err = other.ValidateAccessToken(token)
	assert.Error(t, err)

	expired := NewJWTHandler("0123456789abcdef0123456789abcdef", -time.Minute, time.Hour)
	old, err := expired.GenerateAccessToken(id, "ana", RolePlanner)
	require.NoError(t, err)
	_, err = j.ValidateAccessToken(old)
	assert.Error(t, err)
}

func TestJWTHandler_RejectsForeignTokens(t *testing.T) {
	secret := "0123456789abcdef0123456789abcdef"
	j := NewJWTHandler(secret, time.Minute, time.Hour)
	now := time.Now()

	sign := func(method jwt.SigningMethod, claims JWTClaims) string {
		t.Helper()
		s, err := jwt.NewWithClaims(method, claims).SignedString([]byte(secret))
		require.NoError(t, err)
		return s
	}
	valid := func() JWTClaims {
		return JWTClaims{
			Username: "ana",
			Role:     RoleAdmin,
			RegisteredClaims: jwt.RegisteredClaims{
				Subject:   uuid.NewString(),
				Issuer:    "openrotocore",
				Audience:  jwt.ClaimStrings{"openrotocore-api"},
				ExpiresAt: jwt.NewNumericDate(now.Add(time.Minute)),
			},
		}
	}

	_, err := j.ValidateAccessToken(sign(jwt.SigningMethodHS256, valid()))
	require.NoError(t, err)

	tests := []struct {
		name   string
		method jwt.SigningMethod
		mutate func(*JWTClaims)
	}{
		{name: "other audience", method: jwt.SigningMethodHS256, mutate: func(c *JWTClaims) { c.Audience = jwt.ClaimStrings{"elsewhere"} }},
		{name: "no expiry", method: jwt.SigningMethodHS256, mutate: func(c *JWTClaims) { c.ExpiresAt = nil }},
		{name: "HS512", method: jwt.SigningMethodHS512, mutate: func(*JWTClaims) {}},
		{name: "subject is not a uuid", method: jwt.SigningMethodHS256, mutate: func(c *JWTClaims) { c.Subject = "admin" }},
		{name: "unknown role", method: jwt.SigningMethodHS256, mutate: func(c *JWTClaims) { c.Role = "root" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims := valid()
			tt.mutate(&claims)
			_, err := j.ValidateAccessToken(sign(tt.method, claims))
			assert.Error(t, err)
		})
	}
}

func TestStationTokenGenerator(t *testing.T) {
	g := NewStationTokenGenerator()

	token, hash, err := g.GenerateStationToken("rtx_1")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(token, "rtx_rtx_1_"))
	assert.Equal(t, g.HashToken(token), hash)

	machineID, ok := g.ParseStationToken(token)
	require.True(t, ok)
	assert.Equal(t, "rtx_1", machineID)

	secret := strings.Repeat("ab", 32)
	tests := []struct {
		name  string
		token string
	}{
		{name: "no prefix", token: "omc_rtx-1_" + secret},
		{name: "short secret", token: "rtx_rtx-1_abc"},
		{name: "uppercase secret", token: "rtx_rtx-1_" + strings.ToUpper(secret)},
		{name: "no machine", token: "rtx__" + secret},
		{name: "no separator", token: "rtx_" + secret},
		{name: "machine with space", token: "rtx_rtx 1_" + secret},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := g.ParseStationToken(tt.token)
			assert.False(t, ok)
		})
	}

	_, _, err = g.GenerateStationToken("bad/id")
	assert.ErrorIs(t, err, ErrInvalidMachineID)
	_, _, err = g.GenerateStationToken(strings.Repeat("m", 65))
	assert.ErrorIs(t, err, ErrInvalidMachineID)
}

func TestRolePermissions(t *testing.T) {
	assert.Equal(t, []Permission{PermOperate}, RolePermissions(RoleOperator))
	assert.Equal(t, []Permission{PermOperate, PermPlan}, RolePermissions(RolePlanner))
	assert.Equal(t, []Permission{PermOperate, PermPlan, PermAdmin}, RolePermissions(RoleAdmin))
	assert.Equal(t, []Permission{PermOperate}, RolePermissions(Role("ghost")))

	_, err := ParseRole("technician")
	assert.Error(t, err)
}

func TestAuthService_Login(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.CreateUser(ctx, "ana", "pw", RolePlanner)
	require.NoError(t, err)

	access, refresh, err := svc.LoginUser(ctx, "ana", "pw", "127.0.0.1", "test")
	require.NoError(t, err)
	assert.NotEmpty(t, refresh)

	identity, err := svc.ValidateToken(ctx, access, "", "")
	require.NoError(t, err)
	assert.Equal(t, "ana", identity.Username)
	assert.Equal(t, RolePlanner, identity.Role)
	assert.Contains(t, identity.Permissions, PermPlan)

	_, _, err = svc.LoginUser(ctx, "bob", "pw", "", "")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestAuthService_LockoutAfterFailures(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.CreateUser(ctx, "ana", "pw", RoleOperator)
	require.NoError(t, err)

	for range 3 {
		_, _, err = svc.LoginUser(ctx, "ana", "bad", "", "")
		require.ErrorIs(t, err, ErrInvalidCredentials)
	}

	_, _, err = svc.LoginUser(ctx, "ana", "pw", "", "")
	assert.ErrorIs(t, err, ErrAccountLocked)
}

func TestAuthService_RefreshRotates(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.CreateUser(ctx, "ana", "pw", RoleOperator)
	require.NoError(t, err)
	_, refresh, err := svc.LoginUser(ctx, "ana", "pw", "", "")
	require.NoError(t, err)

	access, next, err := svc.RefreshAccessToken(ctx, refresh)
	require.NoError(t, err)
	assert.NotEmpty(t, access)
	assert.NotEqual(t, refresh, next)

	_, _, err = svc.RefreshAccessToken(ctx, refresh)
	assert.ErrorIs(t, err, ErrInvalidToken, "old refresh token is revoked")
}

func TestAuthService_StationTokens(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	token, st, err := svc.CreateStationToken(ctx, "scheduler-1", "rtx-1", RoleOperator, nil)
	require.NoError(t, err)
	assert.Equal(t, "scheduler-1", st.Name)
	assert.Equal(t, "rtx-1", st.MachineID)
	assert.True(t, strings.HasPrefix(token, "rtx_rtx-1_"))

	identity, err := svc.ValidateToken(ctx, token, "", "")
	require.NoError(t, err)
	assert.Equal(t, "scheduler-1", identity.StationName)
	assert.Equal(t, "rtx-1", identity.MachineID)
	assert.Equal(t, []Permission{PermOperate}, identity.Permissions)
	assert.Contains(t, store.events, "station_token_success")

	require.NoError(t, svc.DeleteStationToken(ctx, st.ID))
	_, err = svc.ValidateToken(ctx, token, "", "")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestAuthService_StationTokenMachineMustMatchRecord(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	token, st, err := svc.CreateStationToken(ctx, "scheduler-1", "rtx-1", RoleOperator, nil)
	require.NoError(t, err)

	// Same secret presented under a different machine id hashes to nothing stored.
	forged := strings.Replace(token, "rtx_rtx-1_", "rtx_rtx-2_", 1)
	_, err = svc.ValidateToken(ctx, forged, "", "")
	assert.ErrorIs(t, err, ErrInvalidToken)

	// A record whose machine was changed underneath the token is refused too.
	store.mu.Lock()
	store.stations[st.TokenHash].MachineID = "rtx-2"
	store.mu.Unlock()
	_, err = svc.ValidateToken(ctx, token, "", "")
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, _, err = svc.CreateStationToken(ctx, "bad", "no spaces allowed", RoleOperator, nil)
	assert.ErrorIs(t, err, ErrInvalidMachineID)
}

func TestAuthService_LoginUpgradesHashCost(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	legacy := NewPasswordHasher(config.PasswordConfig{MemoryKiB: 4096, Iterations: 1, Parallelism: 1})
	hash, err := legacy.HashPassword("pw")
	require.NoError(t, err)
	_, err = store.CreateUser(ctx, "ana", hash, string(RoleOperator))
	require.NoError(t, err)

	_, _, err = svc.LoginUser(ctx, "ana", "pw", "", "")
	require.NoError(t, err)

	upgraded := store.users["ana"].PasswordHash
	assert.NotEqual(t, hash, upgraded)
	assert.Contains(t, upgraded, "$m=8192,t=1,p=1$")

	_, _, err = svc.LoginUser(ctx, "ana", "pw", "", "")
	require.NoError(t, err)
	assert.Equal(t, upgraded, store.users["ana"].PasswordHash, "current cost is left alone")
}

func TestAuthService_EnsureAdmin(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.EnsureAdmin(ctx, "admin", "pw"))
	require.NoError(t, svc.EnsureAdmin(ctx, "admin", "other"))

	users, err := svc.ListUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "admin", store.users["admin"].Role)
}

func TestAuthService_CreateUserRejectsUnknownRole(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.CreateUser(context.Background(), "ana", "pw", Role("root"))
	assert.Error(t, err)
}
