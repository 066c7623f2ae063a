package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Scheduling SchedulingConfig `mapstructure:"scheduling"`
	Catalog    CatalogConfig    `mapstructure:"catalog"`
	Layouts    LayoutsConfig    `mapstructure:"layouts"`
}

type ServerConfig struct {
	GRPCPort        int           `mapstructure:"grpc_port"`
	HTTPPort        int           `mapstructure:"http_port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type DatabaseConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
}

type AuthConfig struct {
	JWTSecretEnv           string         `mapstructure:"jwt_secret_env"`
	AccessTokenTTL         time.Duration  `mapstructure:"access_token_ttl"`
	RefreshTokenTTL        time.Duration  `mapstructure:"refresh_token_ttl"`
	MaxFailedLoginAttempts int            `mapstructure:"max_failed_login_attempts"`
	AccountLockDuration    time.Duration  `mapstructure:"account_lock_duration"`
	Password               PasswordConfig `mapstructure:"password"`
}

// PasswordConfig tunes the Argon2id cost of stored password hashes. Memory is in KiB.
type PasswordConfig struct {
	MemoryKiB   uint32 `mapstructure:"memory_kib"`
	Iterations  uint32 `mapstructure:"iterations"`
	Parallelism uint8  `mapstructure:"parallelism"`
	SaltLength  uint32 `mapstructure:"salt_length"`
	KeyLength   uint32 `mapstructure:"key_length"`
}

// SchedulingConfig holds the plant-wide production rules.
type SchedulingConfig struct {
	MaxDailyCycles         int     `mapstructure:"max_daily_cycles"`
	CompatibilityTolerance float64 `mapstructure:"compatibility_tolerance"`
	DayStart               string  `mapstructure:"day_start"` // HH:MM, local time
}

type CatalogConfig struct {
	CSVPath            string   `mapstructure:"csv_path"`
	SpiderCSVPath      string   `mapstructure:"spider_csv_path"`
	SpiderProfilePaths []string `mapstructure:"spider_profile_paths"`
}

type LayoutsConfig struct {
	Paths []string `mapstructure:"paths"`
}

func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	setDefaults(v)

	v.SetEnvPrefix("ORC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Scheduling.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.grpc_port", 50051)
	v.SetDefault("server.http_port", 8080)
	v.SetDefault("server.shutdown_timeout", "30s")

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.database", "openrotocore")
	v.SetDefault("database.user", "orc")
	v.SetDefault("database.password", "")
	v.SetDefault("database.max_connections", 10)

	v.SetDefault("auth.jwt_secret_env", "JWT_SECRET")
	v.SetDefault("auth.access_token_ttl", "60m")
	v.SetDefault("auth.refresh_token_ttl", "168h")
	v.SetDefault("auth.max_failed_login_attempts", 5)
	v.SetDefault("auth.account_lock_duration", "15m")
	v.SetDefault("auth.password.memory_kib", 64*1024)
	v.SetDefault("auth.password.iterations", 3)
	v.SetDefault("auth.password.parallelism", 2)
	v.SetDefault("auth.password.salt_length", 16)
	v.SetDefault("auth.password.key_length", 32)

	v.SetDefault("scheduling.max_daily_cycles", 7)
	v.SetDefault("scheduling.compatibility_tolerance", 0.02)
	v.SetDefault("scheduling.day_start", "00:00")

	v.SetDefault("catalog.csv_path", "./data/molds.csv")
	v.SetDefault("catalog.spider_csv_path", "")
	v.SetDefault("catalog.spider_profile_paths", []string{"./profiles/spiders"})

	v.SetDefault("layouts.paths", []string{})
}

func (s SchedulingConfig) Validate() error {
	if s.MaxDailyCycles < 0 {
		return fmt.Errorf("scheduling.max_daily_cycles must not be negative, got %d", s.MaxDailyCycles)
	}
	if _, _, err := s.dayStartClock(); err != nil {
		return err
	}
	return nil
}

func (s SchedulingConfig) dayStartClock() (hour, minute int, err error) {
	t, err := time.Parse("15:04", s.DayStart)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid scheduling.day_start %q: %w", s.DayStart, err)
	}
	return t.Hour(), t.Minute(), nil
}

// NextDayStart returns the first production-day boundary strictly after now, in now's
// location. The boundary is a wall-clock time, so it stays at day_start across DST changes.
func (s SchedulingConfig) NextDayStart(now time.Time) (time.Time, error) {
	hour, minute, err := s.dayStartClock()
	if err != nil {
		return time.Time{}, err
	}

	y, m, d := now.Date()
	next := time.Date(y, m, d, hour, minute, 0, 0, now.Location())
	if !next.After(now) {
		next = time.Date(y, m, d+1, hour, minute, 0, 0, now.Location())
	}
	return next, nil
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.User, c.Password, c.Host, c.Port, c.Database)
}

const devJWTSecret = "dev-secret-change-in-production-min-32-chars"

// GetJWTSecret reads the signing secret from the configured environment variable.
func (a *AuthConfig) GetJWTSecret() string {
	envVar := a.JWTSecretEnv
	if envVar == "" {
		envVar = "JWT_SECRET"
	}

	secret := os.Getenv(envVar)
	if secret == "" {
		return devJWTSecret
	}
	return secret
}

func (a *AuthConfig) IsProductionReady() bool {
	secret := a.GetJWTSecret()
	return secret != devJWTSecret && len(secret) >= 32
}
