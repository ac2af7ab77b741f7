package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Environment
	Environment string

	// Database
	DatabaseURL    string
	MigrateOnStart bool

	// Redis
	RedisURL string

	// Server
	Port        string
	FrontendURL string

	// Security
	JWTSecret string

	// Identity service
	IdentityServiceURL   string
	IdentityServiceToken string
	EloCacheTTL          time.Duration

	// Cards
	CardCatalogPath string

	// Queue
	QueueSweepInterval         time.Duration
	QueueMaxWait               time.Duration
	QueueBaseThreshold         int
	QueueThresholdStep         int
	QueueThresholdStepInterval time.Duration
	QueueThresholdCap          int

	// Match timers
	PhaseMainSeconds       int
	PhaseAttackSeconds     int
	PhaseEndSeconds        int
	TimerTickInterval      time.Duration
	DisconnectGraceSeconds int
	MatchRetentionMinutes  int
	MatchReapInterval      time.Duration
	MatchSnapshotTTL       time.Duration
	MatchPersistTimeout    time.Duration

	// ELO
	EloKFactor        float64
	EloReportAttempts int

	// WebSocket
	WSIdleTimeout        time.Duration
	WSMessagesPerSecond  float64
	WSMessageBurst       int
	WSSendBufferCapacity int
}

func Load() *Config {
	// Load .env file if it exists
	godotenv.Load()

	return &Config{
		Environment: getEnv("APP_ENV", "development"),

		DatabaseURL:    getEnv("DATABASE_URL", "postgres://localhost:5432/battle?sslmode=disable"),
		MigrateOnStart: getEnvBool("MIGRATE_ON_START", true),

		RedisURL: getEnv("REDIS_URL", "redis://localhost:6379/0"),

		Port:        getEnv("APP_PORT", "8080"),
		FrontendURL: getEnv("FRONTEND_URL", "http://localhost:5173"),

		JWTSecret: getEnv("JWT_SECRET", "change-me-in-production"),

		IdentityServiceURL:   getEnv("IDENTITY_SERVICE_URL", "http://localhost:8081"),
		IdentityServiceToken: getEnv("IDENTITY_SERVICE_TOKEN", ""),
		EloCacheTTL:          getEnvDuration("ELO_CACHE_TTL", 5*time.Minute),

		CardCatalogPath: getEnv("CARD_CATALOG_PATH", ""),

		QueueSweepInterval:         getEnvDuration("QUEUE_SWEEP_INTERVAL", time.Second),
		QueueMaxWait:               getEnvDuration("QUEUE_MAX_WAIT", 180*time.Second),
		QueueBaseThreshold:         getEnvInt("QUEUE_BASE_THRESHOLD", 100),
		QueueThresholdStep:         getEnvInt("QUEUE_THRESHOLD_STEP", 50),
		QueueThresholdStepInterval: getEnvDuration("QUEUE_THRESHOLD_STEP_INTERVAL", 10*time.Second),
		QueueThresholdCap:          getEnvInt("QUEUE_THRESHOLD_CAP", 400),

		PhaseMainSeconds:       getEnvInt("PHASE_MAIN_SECONDS", 60),
		PhaseAttackSeconds:     getEnvInt("PHASE_ATTACK_SECONDS", 15),
		PhaseEndSeconds:        getEnvInt("PHASE_END_SECONDS", 20),
		TimerTickInterval:      getEnvDuration("TIMER_TICK_INTERVAL", time.Second),
		DisconnectGraceSeconds: getEnvInt("DISCONNECT_GRACE_SECONDS", 60),
		MatchRetentionMinutes:  getEnvInt("MATCH_RETENTION_MINUTES", 5),
		MatchReapInterval:      getEnvDuration("MATCH_REAP_INTERVAL", 30*time.Second),
		MatchSnapshotTTL:       getEnvDuration("MATCH_SNAPSHOT_TTL", 24*time.Hour),
		MatchPersistTimeout:    getEnvDuration("MATCH_PERSIST_TIMEOUT", 500*time.Millisecond),

		EloKFactor:        getEnvFloat("ELO_K_FACTOR", 32),
		EloReportAttempts: getEnvInt("ELO_REPORT_ATTEMPTS", 5),

		WSIdleTimeout:        getEnvDuration("WS_IDLE_TIMEOUT", 60*time.Second),
		WSMessagesPerSecond:  getEnvFloat("WS_MESSAGES_PER_SECOND", 10),
		WSMessageBurst:       getEnvInt("WS_MESSAGE_BURST", 20),
		WSSendBufferCapacity: getEnvInt("WS_SEND_BUFFER", 256),
	}
}

// PhaseDurations maps the timed phases to their configured length.
func (c *Config) PhaseDurations() (main, attack, end time.Duration) {
	return time.Duration(c.PhaseMainSeconds) * time.Second,
		time.Duration(c.PhaseAttackSeconds) * time.Second,
		time.Duration(c.PhaseEndSeconds) * time.Second
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

// getEnvDuration accepts Go duration strings ("1500ms") or a bare number of seconds.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}
