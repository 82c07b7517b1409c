package config

import (
	"os"
	"strconv"
	"time"
)

// Server captures process level configuration.
type Server struct {
	Addr          string
	JWTSigningKey string
	PostgresDSN   string
	Redis         RedisConfig
	// PermissionCacheTTL bounds how long a resolved role permission set may
	// be served without re-resolving. Invalidation on role change is
	// explicit and does not wait for the TTL.
	PermissionCacheTTL time.Duration
	// RecalcWorkers bounds concurrency of full-tenant rollup sweeps.
	RecalcWorkers int
	// AuditQueueSize buffers audit writes behind a background drainer when
	// positive. Zero keeps audit writes synchronous with the request.
	AuditQueueSize int
}

// RedisConfig captures connection settings for the optional Redis-backed
// permission cache. An empty URL means Redis is not configured.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() Server {
	addr := os.Getenv("CONFORMA_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	jwtSigningKey := os.Getenv("JWT_SIGNING_KEY")
	if jwtSigningKey == "" {
		// Use a default for development - should be overridden in production
		jwtSigningKey = "dev-secret-key-change-in-production"
	}

	cacheTTL := 5 * time.Minute
	if raw := os.Getenv("PERMISSION_CACHE_TTL"); raw != "" {
		if d, err := time.ParseDuration(raw); err == nil {
			cacheTTL = d
		}
	}

	workers := 4
	if raw := os.Getenv("RECALC_WORKERS"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			workers = n
		}
	}

	auditQueue := 0
	if raw := os.Getenv("AUDIT_QUEUE_SIZE"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			auditQueue = n
		}
	}

	return Server{
		Addr:          addr,
		JWTSigningKey: jwtSigningKey,
		PostgresDSN:   os.Getenv("POSTGRES_DSN"),
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     10,
			MinIdleConns: 2,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		PermissionCacheTTL: cacheTTL,
		RecalcWorkers:      workers,
		AuditQueueSize:     auditQueue,
	}
}
