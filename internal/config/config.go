package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// HTTP
	HTTPPort string

	// Store
	StoreBackend string   // "postgres" or "memory"
	SeedEntities []string // "ownerID:entityID:Display Name"

	// PostgreSQL
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBMaxConns int32

	// Redis
	RedisEnabled  bool
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Pipeline queues and workers
	GeofenceQueueSize int
	StateQueueSize    int
	GeofenceWorkers   int

	// Geofence
	GeofenceCooldown time.Duration

	// Broadcast hub
	HeartbeatInterval time.Duration
	ChannelBuffer     int

	// Anomaly pre-filter
	AnomalyInterval        time.Duration
	AnomalyWindow          time.Duration
	SpeedThresholdKmh      float64
	SpeedWindowSeconds     int
	StationaryMeters       float64
	NightStartHour         int
	NightEndHour           int
	NightTimezone          string
	AnomalySweepConcurrent int

	// Judgment service
	JudgeAPIKey        string
	JudgeBaseURL       string
	JudgeModel         string
	JudgeMaxTokens     int
	JudgeRatePerMinute int
	JudgeTimeout       time.Duration

	// Push gateway
	PushGatewayURL string
	PushTimeout    time.Duration

	// Auth
	AuthCacheTTLSeconds int
	ValidAPIKeys        []string

	// Logging
	LogLevel string
	LogJSON  bool
}

// Load reads configuration from the environment, after applying a .env file
// if one is present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		HTTPPort:               getEnv("HTTP_PORT", "8002"),
		StoreBackend:           getEnv("STORE_BACKEND", "postgres"),
		SeedEntities:           splitList(getEnv("SEED_ENTITIES", "")),
		DBHost:                 getEnv("DB_HOST", "localhost"),
		DBPort:                 getEnv("DB_PORT", "5432"),
		DBUser:                 getEnv("DB_USER", "locintel_user"),
		DBPassword:             getEnv("DB_PASSWORD", "locintel_password"),
		DBName:                 getEnv("DB_NAME", "locintel"),
		DBMaxConns:             int32(getEnvInt("DB_MAX_CONNS", 15)),
		RedisEnabled:           getEnvBool("REDIS_ENABLED", true),
		RedisAddr:              getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:          getEnv("REDIS_PASSWORD", ""),
		RedisDB:                getEnvInt("REDIS_DB", 0),
		GeofenceQueueSize:      getEnvInt("GEOFENCE_QUEUE_SIZE", 10000),
		StateQueueSize:         getEnvInt("STATE_QUEUE_SIZE", 10000),
		GeofenceWorkers:        getEnvInt("GEOFENCE_WORKERS", 4),
		GeofenceCooldown:       time.Duration(getEnvInt("GEOFENCE_COOLDOWN_MINUTES", 30)) * time.Minute,
		HeartbeatInterval:      getEnvDuration("HEARTBEAT_INTERVAL", 25*time.Second),
		ChannelBuffer:          getEnvInt("CHANNEL_BUFFER", 64),
		AnomalyInterval:        getEnvDuration("ANOMALY_INTERVAL", 15*time.Minute),
		AnomalyWindow:          getEnvDuration("ANOMALY_WINDOW", time.Hour),
		SpeedThresholdKmh:      getEnvFloat("ANOMALY_SPEED_THRESHOLD_KMH", 60),
		SpeedWindowSeconds:     getEnvInt("ANOMALY_SPEED_WINDOW_SECONDS", 60),
		StationaryMeters:       getEnvFloat("ANOMALY_STATIONARY_METERS", 50),
		NightStartHour:         getEnvInt("NIGHT_START_HOUR", 23),
		NightEndHour:           getEnvInt("NIGHT_END_HOUR", 6),
		NightTimezone:          getEnv("NIGHT_TIMEZONE", "Europe/Istanbul"),
		AnomalySweepConcurrent: getEnvInt("ANOMALY_SWEEP_CONCURRENCY", 2),
		JudgeAPIKey:            getEnv("JUDGE_API_KEY", ""),
		JudgeBaseURL:           getEnv("JUDGE_BASE_URL", "https://api.anthropic.com"),
		JudgeModel:             getEnv("JUDGE_MODEL", "claude-sonnet-4-20250514"),
		JudgeMaxTokens:         getEnvInt("JUDGE_MAX_TOKENS", 1024),
		JudgeRatePerMinute:     getEnvInt("JUDGE_RATE_PER_MINUTE", 30),
		JudgeTimeout:           getEnvDuration("JUDGE_TIMEOUT", 60*time.Second),
		PushGatewayURL:         getEnv("PUSH_GATEWAY_URL", ""),
		PushTimeout:            getEnvDuration("PUSH_TIMEOUT", 5*time.Second),
		AuthCacheTTLSeconds:    getEnvInt("AUTH_CACHE_TTL_SECONDS", 300),
		ValidAPIKeys:           splitList(getEnv("VALID_API_KEYS", "")),
		LogLevel:               getEnv("LOG_LEVEL", "info"),
		LogJSON:                getEnvBool("LOG_JSON", false),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the engine cannot run with.
func (c *Config) Validate() error {
	switch c.StoreBackend {
	case "postgres", "memory":
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q", c.StoreBackend)
	}
	if c.GeofenceWorkers <= 0 {
		return fmt.Errorf("GEOFENCE_WORKERS must be positive, got %d", c.GeofenceWorkers)
	}
	if c.GeofenceQueueSize <= 0 || c.StateQueueSize <= 0 || c.ChannelBuffer <= 0 {
		return fmt.Errorf("queue and channel sizes must be positive")
	}
	if c.HeartbeatInterval <= 0 || c.AnomalyInterval <= 0 || c.AnomalyWindow <= 0 {
		return fmt.Errorf("intervals must be positive")
	}
	if c.GeofenceCooldown < 0 {
		return fmt.Errorf("GEOFENCE_COOLDOWN_MINUTES must not be negative")
	}
	if c.NightStartHour < 0 || c.NightStartHour > 23 || c.NightEndHour < 0 || c.NightEndHour > 23 {
		return fmt.Errorf("night hours must be within 0-23")
	}
	if _, err := time.LoadLocation(c.NightTimezone); err != nil {
		return fmt.Errorf("NIGHT_TIMEZONE %q: %w", c.NightTimezone, err)
	}
	return nil
}

// DatabaseURL is the pgx connection string.
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?pool_max_conns=%d",
		c.DBUser,
		c.DBPassword,
		c.DBHost,
		c.DBPort,
		c.DBName,
		c.DBMaxConns,
	)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func getEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
