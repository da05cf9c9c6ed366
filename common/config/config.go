package config

import (
	"strings"
	"time"

	"github.com/qaforge/convotest/common/env"
)

var (
	// ServerPort overrides the --port flag when running inside container or PaaS environments.
	ServerPort = strings.TrimSpace(env.String("PORT", ""))
	// GinMode allows forcing Gin into release mode without recompiling.
	GinMode = strings.TrimSpace(env.String("GIN_MODE", ""))

	// DebugEnabled toggles verbose structured logging when DEBUG=true.
	DebugEnabled = env.Bool("DEBUG", false)
	// DebugSQLEnabled toggles per-query SQL logging when DEBUG_SQL=true.
	DebugSQLEnabled = env.Bool("DEBUG_SQL", false)

	// LogRetentionDays deletes log files older than this many days. Zero disables cleanup.
	LogRetentionDays = env.Int("LOG_RETENTION_DAYS", 0)
	// OnlyOneLogFile writes every day into the same convotest.log instead of rotating by date.
	OnlyOneLogFile = env.Bool("ONLY_ONE_LOG_FILE", false)

	// SQLDSN selects MySQL ("user:pass@tcp(...)/db") or PostgreSQL ("postgres://...").
	// SQLite is used when it is empty.
	SQLDSN = env.String("SQL_DSN", "")
	// SQLitePath is the database file used when SQL_DSN is empty.
	SQLitePath = env.String("SQLITE_PATH", "convotest.db")
	// SQLiteBusyTimeout is the busy_timeout pragma in milliseconds.
	SQLiteBusyTimeout = env.Int("SQLITE_BUSY_TIMEOUT", 3000)
	// SQLMaxIdleConns caps idle connections in the pool.
	SQLMaxIdleConns = env.Int("SQL_MAX_IDLE_CONNS", 100)
	// SQLMaxOpenConns caps open connections in the pool.
	SQLMaxOpenConns = env.Int("SQL_MAX_OPEN_CONNS", 1000)
	// SQLMaxLifetime is the connection lifetime in seconds.
	SQLMaxLifetime = env.Int("SQL_MAX_LIFETIME", 60)

	// RedisConnString enables the shared persona cache when set.
	RedisConnString = env.String("REDIS_CONN_STRING", "")
	// RedisMasterName switches to a sentinel-backed failover client.
	RedisMasterName = env.String("REDIS_MASTER_NAME", "")
	// RedisPassword is used together with REDIS_MASTER_NAME.
	RedisPassword = env.String("REDIS_PASSWORD", "")
	// PersonaCacheTTL bounds how long a persona system prompt is cached.
	PersonaCacheTTL = env.Duration("PERSONA_CACHE_TTL", 5*time.Minute)

	// JWTSecret signs and verifies HS256 bearer tokens.
	JWTSecret = env.String("JWT_SECRET", "")
	// JWTIssuer, when set, must match the token's iss claim.
	JWTIssuer = env.String("JWT_ISSUER", "")

	// CORSAllowOrigins is a comma separated origin list. Empty allows all origins.
	CORSAllowOrigins = env.String("CORS_ALLOW_ORIGINS", "")

	// EndpointTimeout bounds a single call to the endpoint under test.
	EndpointTimeout = env.Duration("ENDPOINT_TIMEOUT", 10*time.Second)
	// CapabilityTimeout bounds a single planner or judge call.
	CapabilityTimeout = env.Duration("CAPABILITY_TIMEOUT", 60*time.Second)
	// MaxPlannedTurns caps the follow-up turns the planner may request.
	MaxPlannedTurns = env.Int("MAX_PLANNED_TURNS", 5)
	// RunConcurrency is the number of (scenario, persona) pairs executed at once.
	RunConcurrency = env.Int("RUN_CONCURRENCY", 1)

	// AnthropicBaseURL is the Messages API base used by the planner and judge.
	AnthropicBaseURL = env.String("ANTHROPIC_BASE_URL", "https://api.anthropic.com")
	// DefaultModel is used when the request does not name a model.
	DefaultModel = env.String("DEFAULT_MODEL", "claude-3-5-sonnet-latest")
	// CapabilityMaxTokens is the max_tokens sent with every capability request.
	CapabilityMaxTokens = env.Int("CAPABILITY_MAX_TOKENS", 1024)

	// EnablePrometheusMetrics exposes /metrics and records run counters.
	EnablePrometheusMetrics = env.Bool("ENABLE_PROMETHEUS_METRICS", true)

	// ShutdownTimeout is how long in-flight runs may keep persisting after SIGTERM.
	ShutdownTimeout = env.Duration("SHUTDOWN_TIMEOUT", 30*time.Second)
)

// CORSOrigins splits CORSAllowOrigins into a trimmed, non-empty slice.
func CORSOrigins() []string {
	var origins []string
	for _, o := range strings.Split(CORSAllowOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}
