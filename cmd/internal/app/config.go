package app

import (
	"time"

	"atelier/cmd/internal/board"
)

// Config contains all runtime configuration loaded from environment variables.
type Config struct {
	HTTPAddr string
	LogLevel string

	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int

	DatabaseURL string
	DBMaxConns  int32
	DBMinConns  int32
	DBSchema    string

	// RedisURL enables the token revocation denylist when set.
	RedisURL string

	// If true:
	// - /readyz returns 503 unless DB is configured and reachable.
	ReadinessRequireDB bool

	// Security policy:
	// If true, ATELIER_TOKEN_HMAC_KEY MUST be set (>= 32 bytes) and the JWT
	// resolver is mandatory; the static dev resolver is refused.
	RequireTokenHMAC bool

	// Board intake columns per audience.
	StaffIntakeStatus  string
	ClientIntakeStatus string
}

// LoadConfig loads Config from environment variables with defaults.
func LoadConfig() Config {
	return Config{
		HTTPAddr: EnvString("ATELIER_HTTP_ADDR", "0.0.0.0:8080"),
		LogLevel: EnvString("ATELIER_LOG_LEVEL", "info"),

		ReadHeaderTimeout: EnvDuration("ATELIER_HTTP_READ_HEADER_TIMEOUT", 5*time.Second),
		ReadTimeout:       EnvDuration("ATELIER_HTTP_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:      EnvDuration("ATELIER_HTTP_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:       EnvDuration("ATELIER_HTTP_IDLE_TIMEOUT", 60*time.Second),

		MaxHeaderBytes: EnvInt("ATELIER_HTTP_MAX_HEADER_BYTES", 1<<20),

		DatabaseURL: EnvString("ATELIER_DATABASE_URL", ""),
		DBMaxConns:  EnvInt32("ATELIER_DB_MAX_CONNS", 10),
		DBMinConns:  EnvInt32("ATELIER_DB_MIN_CONNS", 0),
		DBSchema:    EnvString("ATELIER_DB_SCHEMA", "atelier"),

		RedisURL: EnvString("ATELIER_REDIS_URL", ""),

		ReadinessRequireDB: EnvBool("ATELIER_READINESS_REQUIRE_DB", false),

		RequireTokenHMAC: EnvBool("ATELIER_REQUIRE_TOKEN_HMAC", false),

		StaffIntakeStatus:  EnvString("ATELIER_BOARD_STAFF_INTAKE", board.DefaultStaffIntakeStatus),
		ClientIntakeStatus: EnvString("ATELIER_BOARD_CLIENT_INTAKE", board.DefaultClientIntakeStatus),
	}
}
