package config

import (
	"fmt"
	"net/netip"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/lhlamlehoang/BigBikeBlitz/internal/token"
)

// Store backends selectable through STORE_BACKEND.
const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

type Config struct {
	ServerPort         string
	ServerReadTimeout  time.Duration
	ServerWriteTimeout time.Duration
	ServerIdleTimeout  time.Duration
	RequestTimeout     time.Duration
	UploadTimeout      time.Duration

	StoreBackend string
	DatabaseURL  string
	DBMaxConns   int32
	DBMinConns   int32

	JWTSigningKeys map[string]string
	JWTActiveKeyID string
	JWTTTL         time.Duration
	BcryptCost     int

	RequireEmailVerification bool
	VerificationTokenTTL     time.Duration
	ResetTokenTTL            time.Duration
	FrontendURL              string

	GoogleClientIDs      []string
	GoogleJWKSURL        string
	GoogleJWKSCacheTTL   time.Duration
	GoogleJWKSMinRefresh time.Duration

	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	MailFrom     string

	CORSOrigins      []string
	RateLimitRPM     int
	AuthRateLimitRPM int
	// TrustedProxies are the peers whose X-Forwarded-For and X-Real-IP
	// headers are believed. Empty means forwarding headers are ignored.
	TrustedProxies []netip.Prefix

	UploadRoot       string
	MaxUploadSize    int64
	AllowedMIMETypes []string
	ThumbnailSize    int

	AdminUsername string
	AdminPassword string
	AdminEmail    string

	LogLevel  string
	LogFormat string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	keys, err := signingKeys()
	if err != nil {
		return nil, err
	}

	proxies, err := parsePrefixes(splitCSV(os.Getenv("TRUSTED_PROXIES")))
	if err != nil {
		return nil, fmt.Errorf("TRUSTED_PROXIES: %w", err)
	}

	cfg := &Config{
		ServerPort:         getEnv("SERVER_PORT", "8080"),
		ServerReadTimeout:  getDuration("SERVER_READ_TIMEOUT", 15*time.Second),
		ServerWriteTimeout: getDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
		ServerIdleTimeout:  getDuration("SERVER_IDLE_TIMEOUT", 120*time.Second),
		RequestTimeout:     getDuration("REQUEST_TIMEOUT", 30*time.Second),
		UploadTimeout:      getDuration("UPLOAD_TIMEOUT", 5*time.Minute),

		StoreBackend: strings.ToLower(getEnv("STORE_BACKEND", StorePostgres)),
		DatabaseURL:  strings.TrimSpace(os.Getenv("DATABASE_URL")),
		DBMaxConns:   int32(getInt("DB_MAX_CONNS", 10)),
		DBMinConns:   int32(getInt("DB_MIN_CONNS", 1)),

		JWTSigningKeys: keys,
		JWTActiveKeyID: strings.TrimSpace(os.Getenv("JWT_ACTIVE_KEY_ID")),
		JWTTTL:         getDuration("JWT_TTL", 10*time.Hour),
		BcryptCost:     getInt("BCRYPT_COST", 12),

		RequireEmailVerification: getBool("REQUIRE_EMAIL_VERIFICATION", true),
		VerificationTokenTTL:     getDuration("VERIFICATION_TOKEN_TTL", 24*time.Hour),
		ResetTokenTTL:            getDuration("RESET_TOKEN_TTL", time.Hour),
		FrontendURL:              strings.TrimRight(getEnv("FRONTEND_URL", "http://localhost:3000"), "/"),

		GoogleClientIDs:      splitCSV(os.Getenv("GOOGLE_CLIENT_IDS")),
		GoogleJWKSURL:        getEnv("GOOGLE_JWKS_URL", "https://www.googleapis.com/oauth2/v3/certs"),
		GoogleJWKSCacheTTL:   getDuration("GOOGLE_JWKS_CACHE_TTL", time.Hour),
		GoogleJWKSMinRefresh: getDuration("GOOGLE_JWKS_MIN_REFRESH", 30*time.Second),

		SMTPHost:     strings.TrimSpace(os.Getenv("SMTP_HOST")),
		SMTPPort:     getInt("SMTP_PORT", 587),
		SMTPUsername: strings.TrimSpace(os.Getenv("SMTP_USERNAME")),
		SMTPPassword: os.Getenv("SMTP_PASSWORD"),
		MailFrom:     getEnv("MAIL_FROM", "no-reply@bigbikeblitz.com"),

		CORSOrigins:      splitCSV(getEnv("CORS_ORIGINS", "*")),
		RateLimitRPM:     getInt("RATE_LIMIT_RPM", 100),
		AuthRateLimitRPM: getInt("AUTH_RATE_LIMIT_RPM", 10),
		TrustedProxies:   proxies,

		UploadRoot:       getEnv("UPLOAD_ROOT", "./uploads"),
		MaxUploadSize:    getInt64("MAX_UPLOAD_SIZE", 10*1024*1024),
		AllowedMIMETypes: splitCSV(getEnv("ALLOWED_MIME_TYPES", "image/jpeg,image/png,image/gif,image/webp")),
		ThumbnailSize:    getInt("THUMBNAIL_SIZE", 320),

		AdminUsername: getEnv("ADMIN_USERNAME", "admin"),
		AdminPassword: getEnv("ADMIN_PASSWORD", "admin"),
		AdminEmail:    getEnv("ADMIN_EMAIL", "admin@bigbikeblitz.com"),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "pretty"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// signingKeys prefers JWT_SIGNING_KEYS and falls back to a single JWT_SECRET.
func signingKeys() (map[string]string, error) {
	if raw := strings.TrimSpace(os.Getenv("JWT_SIGNING_KEYS")); raw != "" {
		keys, err := token.ParseKeySpec(raw)
		if err != nil {
			return nil, fmt.Errorf("JWT_SIGNING_KEYS: %w", err)
		}
		return keys, nil
	}

	if secret := strings.TrimSpace(os.Getenv("JWT_SECRET")); secret != "" {
		return map[string]string{token.DefaultKeyID: secret}, nil
	}

	return nil, nil
}

func (c *Config) Validate() error {
	if len(c.JWTSigningKeys) == 0 {
		return fmt.Errorf("JWT_SIGNING_KEYS or JWT_SECRET is required")
	}

	if len(c.JWTSigningKeys) > 1 && c.JWTActiveKeyID == "" {
		return fmt.Errorf("JWT_ACTIVE_KEY_ID is required when several signing keys are configured")
	}

	if c.JWTActiveKeyID != "" {
		if _, ok := c.JWTSigningKeys[c.JWTActiveKeyID]; !ok {
			return fmt.Errorf("JWT_ACTIVE_KEY_ID %q is not in JWT_SIGNING_KEYS", c.JWTActiveKeyID)
		}
	}

	if c.JWTTTL <= 0 {
		return fmt.Errorf("JWT_TTL must be positive")
	}

	if c.ServerPort == "" {
		return fmt.Errorf("SERVER_PORT cannot be empty")
	}

	switch c.StoreBackend {
	case StorePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required")
		}
	case StoreMemory:
	default:
		return fmt.Errorf("STORE_BACKEND must be postgres or memory")
	}

	if c.DBMaxConns <= 0 || c.DBMinConns < 0 || c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MAX_CONNS must be positive and not below DB_MIN_CONNS")
	}

	if c.BcryptCost < 4 || c.BcryptCost > 31 {
		return fmt.Errorf("BCRYPT_COST must be between 4 and 31")
	}

	if c.RequestTimeout <= 0 {
		return fmt.Errorf("REQUEST_TIMEOUT must be positive")
	}

	if c.VerificationTokenTTL <= 0 || c.ResetTokenTTL <= 0 {
		return fmt.Errorf("VERIFICATION_TOKEN_TTL and RESET_TOKEN_TTL must be positive")
	}

	if strings.TrimSpace(c.UploadRoot) == "" {
		return fmt.Errorf("UPLOAD_ROOT cannot be empty")
	}

	if c.MaxUploadSize <= 0 {
		return fmt.Errorf("MAX_UPLOAD_SIZE must be positive")
	}

	switch strings.ToLower(c.LogFormat) {
	case "pretty", "json":
	default:
		return fmt.Errorf("LOG_FORMAT must be pretty or json")
	}

	return nil
}

func getEnv(key string, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}

	return v
}

func getInt(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}

	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}

	return v
}

func getInt64(key string, fallback int64) int64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}

	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fallback
	}

	return v
}

func getBool(key string, fallback bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}

	v, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback
	}

	return v
}

func getDuration(key string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}

	v, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return v
}

// parsePrefixes accepts CIDR ranges and bare addresses; a bare address is a
// single-host prefix.
func parsePrefixes(values []string) ([]netip.Prefix, error) {
	prefixes := make([]netip.Prefix, 0, len(values))
	for _, value := range values {
		if strings.Contains(value, "/") {
			prefix, err := netip.ParsePrefix(value)
			if err != nil {
				return nil, err
			}
			prefixes = append(prefixes, prefix.Masked())
			continue
		}

		addr, err := netip.ParseAddr(value)
		if err != nil {
			return nil, err
		}
		addr = addr.Unmap()
		prefixes = append(prefixes, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return prefixes, nil
}

func splitCSV(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		out = append(out, trimmed)
	}

	return out
}
