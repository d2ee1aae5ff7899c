package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Settings keys read from appsettings files.
const (
	KeyDefaultConnection = "ConnectionStrings:DefaultConnection"
	KeyJWTKey            = "Jwt:Key"
	KeyJWTIssuer         = "Jwt:Issuer"
	KeyJWTAudience       = "Jwt:Audience"
	KeyJWTExpiresMinutes = "Jwt:ExpiresInMinutes"
	KeyAllowedOrigins    = "AllowedOrigins"
	KeySuperAdminUser    = "SuperAdmin:Username"
	KeySuperAdminEmail   = "SuperAdmin:Email"
	KeySuperAdminPass    = "SuperAdmin:Password"
)

// ErrMissingSetting is returned by Load when a required key is absent after
// all sources are merged.
var ErrMissingSetting = errors.New("missing required setting")

// envOverride binds a process environment variable to a settings key.
type envOverride struct {
	Env string
	Key string
}

var envOverrides = []envOverride{
	{Env: "DEFAULT_CONNECTION", Key: KeyDefaultConnection},
	{Env: "JWT_KEY", Key: KeyJWTKey},
	{Env: "JWT_ISSUER", Key: KeyJWTIssuer},
	{Env: "JWT_AUDIENCE", Key: KeyJWTAudience},
	{Env: "ALLOWED_ORIGINS", Key: KeyAllowedOrigins},
	{Env: "SUPERADMIN_USERNAME", Key: KeySuperAdminUser},
	{Env: "SUPERADMIN_EMAIL", Key: KeySuperAdminEmail},
	{Env: "SUPERADMIN_PASSWORD", Key: KeySuperAdminPass},
}

var requiredKeys = []string{KeyJWTKey, KeyJWTIssuer, KeyJWTAudience, KeyDefaultConnection}

// Config aggregates runtime configuration for the service.
type Config struct {
	App          AppConfig
	Postgres     PostgresConfig
	Redis        RedisConfig
	Logger       LoggerConfig
	Auth         AuthConfig
	Password     PasswordPolicy
	Lockout      LockoutConfig
	CORS         CORSConfig
	Seed         SeedConfig
	Notification NotificationConfig

	settings Settings
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string `env:"APP_NAME" envDefault:"storefront-api"`
	Env                   string `env:"APP_ENV" envDefault:"development"`
	Host                  string `env:"APP_HOST" envDefault:"0.0.0.0"`
	Port                  string `env:"APP_PORT" envDefault:"8080"`
	Version               string `env:"APP_VERSION" envDefault:"dev"`
	RequestTimeoutSeconds int    `env:"HTTP_REQUEST_TIMEOUT_SECONDS" envDefault:"30"`
	SettingsDir           string `env:"APP_SETTINGS_DIR" envDefault:"."`
}

// PostgresConfig holds DB connection values. DSN comes from the
// DefaultConnection setting.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32 `env:"POSTGRES_MAX_CONNS" envDefault:"10"`
	MinConns       int32 `env:"POSTGRES_MIN_CONNS" envDefault:"2"`
	RunMigrations  bool  `env:"POSTGRES_RUN_MIGRATIONS" envDefault:"true"`
	ConnMaxIdleSec int32 `env:"POSTGRES_CONN_MAX_IDLE_SECONDS" envDefault:"30"`
	ConnMaxLifeSec int32 `env:"POSTGRES_CONN_MAX_LIFE_SECONDS" envDefault:"300"`
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR" envDefault:"127.0.0.1:6379"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB" envDefault:"0"`
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string `env:"LOG_LEVEL" envDefault:"info"`
}

// AuthConfig defines token and hashing parameters.
type AuthConfig struct {
	Key              string
	Issuer           string
	Audience         string
	TokenLifetime    time.Duration
	PasswordResetTTL time.Duration
	BcryptCost       int `env:"AUTH_BCRYPT_COST" envDefault:"12"`
}

// PasswordPolicy describes the rules a new password must satisfy.
type PasswordPolicy struct {
	RequiredLength         int
	RequiredUniqueChars    int
	RequireDigit           bool
	RequireLowercase       bool
	RequireUppercase       bool
	RequireNonAlphanumeric bool
}

// LockoutConfig throttles repeated failed logins.
type LockoutConfig struct {
	Enabled                 bool
	MaxFailedAccessAttempts int
	Duration                time.Duration
}

// CORSConfig lists the origins allowed by the frontend policy.
type CORSConfig struct {
	AllowedOrigins []string
}

// SeedConfig identifies the privileged account created on first start.
type SeedConfig struct {
	Username string
	Email    string
	Password string
}

// NotificationConfig holds stub notification endpoints.
type NotificationConfig struct {
	EmailFrom string `env:"NOTIFY_EMAIL_FROM" envDefault:"noreply@example.com"`
}

// Load reads .env, the appsettings files found in APP_SETTINGS_DIR and the
// process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var app AppConfig
	if err := ParseEnv(&app); err != nil {
		return nil, err
	}
	return LoadDir(app.SettingsDir)
}

// LoadDir resolves configuration using the appsettings files in dir.
func LoadDir(dir string) (*Config, error) {
	cfg := &Config{}
	for _, target := range []any{&cfg.App, &cfg.Postgres, &cfg.Redis, &cfg.Logger, &cfg.Auth, &cfg.Notification} {
		if err := ParseEnv(target); err != nil {
			return nil, err
		}
	}

	settings, err := resolveSettings(dir, cfg.App.Env)
	if err != nil {
		return nil, err
	}
	if err := requireKeys(settings); err != nil {
		return nil, err
	}
	cfg.settings = settings

	if err := cfg.applySettings(settings); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Settings exposes the merged key/value snapshot the typed sections were
// built from.
func (c *Config) Settings() Settings {
	return c.settings
}

func resolveSettings(dir, environment string) (Settings, error) {
	b := newSettingsBuilder()

	files := []string{filepath.Join(dir, "appsettings.json")}
	if environment != "" {
		files = append(files, filepath.Join(dir, fmt.Sprintf("appsettings.%s.json", environment)))
	}
	for _, f := range files {
		if err := b.mergeFile(f); err != nil {
			return Settings{}, err
		}
	}

	b.mergeEnviron(os.Environ())

	for _, o := range envOverrides {
		if val := os.Getenv(o.Env); strings.TrimSpace(val) != "" {
			b.set(o.Key, val)
		}
	}

	return b.build(), nil
}

func requireKeys(s Settings) error {
	var missing []string
	for _, key := range requiredKeys {
		if s.String(key) == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingSetting, strings.Join(missing, ", "))
	}
	return nil
}

func (c *Config) applySettings(s Settings) error {
	c.Postgres.DSN = s.String(KeyDefaultConnection)

	expires, err := s.Int(KeyJWTExpiresMinutes, 60)
	if err != nil {
		return err
	}
	if expires <= 0 {
		return fmt.Errorf("invalid %s: must be positive", KeyJWTExpiresMinutes)
	}
	resetMinutes, err := s.Int("Identity:PasswordResetTokenMinutes", 24*60)
	if err != nil {
		return err
	}
	c.Auth.Key = s.String(KeyJWTKey)
	c.Auth.Issuer = s.String(KeyJWTIssuer)
	c.Auth.Audience = s.String(KeyJWTAudience)
	c.Auth.TokenLifetime = time.Duration(expires) * time.Minute
	c.Auth.PasswordResetTTL = time.Duration(resetMinutes) * time.Minute

	if c.Password, err = passwordPolicyFrom(s); err != nil {
		return err
	}
	if c.Lockout, err = lockoutFrom(s); err != nil {
		return err
	}

	origins, err := normalizeOrigins(s.Strings(KeyAllowedOrigins))
	if err != nil {
		return err
	}
	c.CORS.AllowedOrigins = origins

	c.Seed = SeedConfig{
		Username: s.String(KeySuperAdminUser),
		Email:    s.String(KeySuperAdminEmail),
		Password: s.String(KeySuperAdminPass),
	}
	if c.Seed.Username == "" {
		c.Seed.Username = "superadmin"
	}
	return nil
}

// DefaultPasswordPolicy mirrors the storefront's historical rules: no
// uppercase or symbol requirement.
func DefaultPasswordPolicy() PasswordPolicy {
	return PasswordPolicy{
		RequiredLength:      6,
		RequiredUniqueChars: 1,
		RequireDigit:        true,
		RequireLowercase:    true,
	}
}

func passwordPolicyFrom(s Settings) (PasswordPolicy, error) {
	p := DefaultPasswordPolicy()
	var err error
	const prefix = "Identity:Password:"
	if p.RequiredLength, err = s.Int(prefix+"RequiredLength", p.RequiredLength); err != nil {
		return p, err
	}
	if p.RequiredUniqueChars, err = s.Int(prefix+"RequiredUniqueChars", p.RequiredUniqueChars); err != nil {
		return p, err
	}
	if p.RequireDigit, err = s.Bool(prefix+"RequireDigit", p.RequireDigit); err != nil {
		return p, err
	}
	if p.RequireLowercase, err = s.Bool(prefix+"RequireLowercase", p.RequireLowercase); err != nil {
		return p, err
	}
	if p.RequireUppercase, err = s.Bool(prefix+"RequireUppercase", p.RequireUppercase); err != nil {
		return p, err
	}
	if p.RequireNonAlphanumeric, err = s.Bool(prefix+"RequireNonAlphanumeric", p.RequireNonAlphanumeric); err != nil {
		return p, err
	}
	return p, nil
}

func lockoutFrom(s Settings) (LockoutConfig, error) {
	const prefix = "Identity:Lockout:"
	enabled, err := s.Bool(prefix+"Enabled", true)
	if err != nil {
		return LockoutConfig{}, err
	}
	attempts, err := s.Int(prefix+"MaxFailedAccessAttempts", 5)
	if err != nil {
		return LockoutConfig{}, err
	}
	minutes, err := s.Int(prefix+"DefaultLockoutMinutes", 5)
	if err != nil {
		return LockoutConfig{}, err
	}
	return LockoutConfig{
		Enabled:                 enabled && attempts > 0,
		MaxFailedAccessAttempts: attempts,
		Duration:                time.Duration(minutes) * time.Minute,
	}, nil
}

// normalizeOrigins validates each origin as scheme://host[:port] and strips
// trailing slashes, keeping the configured order.
func normalizeOrigins(origins []string) ([]string, error) {
	out := make([]string, 0, len(origins))
	for _, origin := range origins {
		u, err := url.Parse(origin)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return nil, fmt.Errorf("invalid allowed origin %q", origin)
		}
		if (u.Path != "" && u.Path != "/") || u.RawQuery != "" || u.Fragment != "" {
			return nil, fmt.Errorf("invalid allowed origin %q: must not contain a path", origin)
		}
		out = append(out, strings.ToLower(u.Scheme+"://"+u.Host))
	}
	return out, nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}
