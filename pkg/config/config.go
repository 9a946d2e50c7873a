package config

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"RiderGuard/pkg/cache"
	"RiderGuard/pkg/logger"
	"RiderGuard/pkg/storage"
	"RiderGuard/pkg/util"
	"RiderGuard/pkg/websocket"
)

type Config struct {
	Env             string        `env:"APP_ENV"`
	Addr            string        `env:"ADDR"`
	Mode            string        `env:"MODE"`
	APIPrefix       string        `env:"API_PREFIX"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT"`
	DefaultLanguage string        `env:"DEFAULT_LANGUAGE"`

	DBDriver string `env:"DB_DRIVER"`
	DSN      string `env:"DSN"`
	// statements slower than this are logged, 0 disables
	DBSlowThreshold time.Duration `env:"DB_SLOW_THRESHOLD"`
	// repeated Idempotency-Key values on alert creation are refused within this window
	IdempotencyTTL time.Duration `env:"IDEMPOTENCY_TTL"`

	Auth         AuthConfig
	Log          logger.LogConfig
	Cache        cache.Config
	WebSocket    *websocket.Config
	Notification NotificationConfig
	Routing      RoutingConfig
	Ingestion    IngestionConfig
	Presence     PresenceConfig
	Backup       BackupConfig
}

type AuthConfig struct {
	JWTSecret string        `env:"JWT_SECRET"`
	Issuer    string        `env:"JWT_ISSUER"`
	TokenTTL  time.Duration `env:"JWT_TTL"`
}

type NotificationConfig struct {
	SMSGatewayURL string        `env:"SMS_GATEWAY_URL"`
	SMSToken      string        `env:"SMS_GATEWAY_TOKEN"`
	SMSSender     string        `env:"SMS_SENDER"`
	PushURL       string        `env:"PUSH_RELAY_URL"`
	PushToken     string        `env:"PUSH_RELAY_TOKEN"`
	Timeout       time.Duration `env:"NOTIFY_TIMEOUT"`
	// public base url used in notification bodies to link the tracking view
	TrackingURL string `env:"TRACKING_URL"`
}

type RoutingConfig struct {
	PlannerURL string        `env:"ROUTE_PLANNER_URL"`
	Timeout    time.Duration `env:"ROUTE_PLANNER_TIMEOUT"`
}

type IngestionConfig struct {
	// ulule formatted rates, e.g. "1-S" or "60-M"
	MonitoringRate string `env:"MONITORING_STATUS_RATE"`
	HTTPRate       string `env:"INGEST_HTTP_RATE"`
}

type PresenceConfig struct {
	OfflineAfter time.Duration `env:"PRESENCE_OFFLINE_AFTER"`
	SweepSpec    string        `env:"PRESENCE_SWEEP_SPEC"`
	SnapshotTTL  time.Duration `env:"PRESENCE_SNAPSHOT_TTL"`
}

type BackupConfig struct {
	Enabled  bool   `env:"BACKUP_ENABLED"`
	Path     string `env:"BACKUP_PATH"`
	Schedule string `env:"BACKUP_SCHEDULE"`
	// number of snapshots kept, 0 keeps all
	Keep int `env:"BACKUP_KEEP"`
	// optional off-site copy of each snapshot
	S3 storage.MinioConfig
}

var GlobalConfig *Config

// Load reads .env files for APP_ENV and fills GlobalConfig.
func Load() error {
	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "development"
	}
	if err := util.LoadEnv(env); err != nil {
		log.Printf("Failed to load .env file: %v", err)
	}

	cfg := FromEnv()
	cfg.Env = env
	if err := cfg.Validate(); err != nil {
		return err
	}
	GlobalConfig = cfg
	return nil
}

// FromEnv builds a Config from the current environment, applying defaults.
func FromEnv() *Config {
	return &Config{
		Env:             util.GetEnvDefault("APP_ENV", "development"),
		Addr:            util.GetEnvDefault("ADDR", ":8080"),
		Mode:            util.GetEnvDefault("MODE", "release"),
		APIPrefix:       util.GetEnvDefault("API_PREFIX", "/api"),
		ShutdownTimeout: util.GetDurationEnv("SHUTDOWN_TIMEOUT", 10*time.Second),
		DefaultLanguage: util.GetEnvDefault("DEFAULT_LANGUAGE", "es"),
		DBDriver:        util.GetEnvDefault("DB_DRIVER", util.DriverSQLite),
		DSN:             util.GetEnv("DSN"),
		DBSlowThreshold: util.GetDurationEnv("DB_SLOW_THRESHOLD", 200*time.Millisecond),
		IdempotencyTTL:  util.GetDurationEnv("IDEMPOTENCY_TTL", 2*time.Minute),
		Auth: AuthConfig{
			JWTSecret: util.GetEnv("JWT_SECRET"),
			Issuer:    util.GetEnvDefault("JWT_ISSUER", "riderguard"),
			TokenTTL:  util.GetDurationEnv("JWT_TTL", 12*time.Hour),
		},
		Log: logger.LogConfig{
			Level:      util.GetEnvDefault("LOG_LEVEL", "info"),
			Format:     util.GetEnvDefault("LOG_FORMAT", "json"),
			Filename:   util.GetEnv("LOG_FILENAME"),
			MaxSize:    int(util.GetIntEnv("LOG_MAX_SIZE")),
			MaxAge:     int(util.GetIntEnv("LOG_MAX_AGE")),
			MaxBackups: int(util.GetIntEnv("LOG_MAX_BACKUPS")),
		},
		Cache: cache.Config{
			Type:          util.GetEnvDefault("CACHE_TYPE", cache.TypeGoCache),
			Size:          int(util.GetIntEnvDefault("CACHE_SIZE", 10000)),
			DefaultTTL:    util.GetDurationEnv("CACHE_TTL", 5*time.Minute),
			RedisAddr:     util.GetEnv("REDIS_ADDR"),
			RedisPassword: util.GetEnv("REDIS_PASSWORD"),
			RedisDB:       int(util.GetIntEnv("REDIS_DB")),
			KeyPrefix:     util.GetEnvDefault("CACHE_PREFIX", "riderguard:"),
		},
		WebSocket: websocket.LoadConfigFromEnv(),
		Notification: NotificationConfig{
			SMSGatewayURL: util.GetEnv("SMS_GATEWAY_URL"),
			SMSToken:      util.GetEnv("SMS_GATEWAY_TOKEN"),
			SMSSender:     util.GetEnvDefault("SMS_SENDER", "RiderGuard"),
			PushURL:       util.GetEnv("PUSH_RELAY_URL"),
			PushToken:     util.GetEnv("PUSH_RELAY_TOKEN"),
			Timeout:       util.GetDurationEnv("NOTIFY_TIMEOUT", 5*time.Second),
			TrackingURL:   util.GetEnv("TRACKING_URL"),
		},
		Routing: RoutingConfig{
			PlannerURL: util.GetEnv("ROUTE_PLANNER_URL"),
			Timeout:    util.GetDurationEnv("ROUTE_PLANNER_TIMEOUT", 8*time.Second),
		},
		Ingestion: IngestionConfig{
			MonitoringRate: util.GetEnvDefault("MONITORING_STATUS_RATE", "1-S"),
			HTTPRate:       util.GetEnvDefault("INGEST_HTTP_RATE", "120-M"),
		},
		Presence: PresenceConfig{
			OfflineAfter: util.GetDurationEnv("PRESENCE_OFFLINE_AFTER", 15*time.Minute),
			SweepSpec:    util.GetEnvDefault("PRESENCE_SWEEP_SPEC", "@every 1m"),
			SnapshotTTL:  util.GetDurationEnv("PRESENCE_SNAPSHOT_TTL", time.Minute),
		},
		Backup: BackupConfig{
			Enabled:  util.GetBoolEnv("BACKUP_ENABLED"),
			Path:     util.GetEnvDefault("BACKUP_PATH", "./backups"),
			Schedule: util.GetEnvDefault("BACKUP_SCHEDULE", "0 3 * * *"),
			Keep:     int(util.GetIntEnvDefault("BACKUP_KEEP", 7)),
			S3: storage.MinioConfig{
				Endpoint:  util.GetEnv("BACKUP_S3_ENDPOINT"),
				AccessKey: util.GetEnv("BACKUP_S3_ACCESS_KEY"),
				SecretKey: util.GetEnv("BACKUP_S3_SECRET_KEY"),
				Bucket:    util.GetEnv("BACKUP_S3_BUCKET"),
				Prefix:    util.GetEnvDefault("BACKUP_S3_PREFIX", "riderguard"),
				UseSSL:    util.GetBoolEnv("BACKUP_S3_USE_SSL"),
			},
		},
	}
}

// Validate rejects configurations the service cannot start with.
func (c *Config) Validate() error {
	var problems []string
	switch c.DBDriver {
	case util.DriverSQLite, util.DriverMySQL, util.DriverPostgres:
	default:
		problems = append(problems, fmt.Sprintf("unknown DB_DRIVER %q", c.DBDriver))
	}
	if c.DBDriver != util.DriverSQLite && c.DSN == "" {
		problems = append(problems, "DSN is required for "+c.DBDriver)
	}
	if len(c.Auth.JWTSecret) < 32 {
		problems = append(problems, "JWT_SECRET must be at least 32 characters")
	}
	if c.Auth.TokenTTL <= 0 {
		problems = append(problems, "JWT_TTL must be positive")
	}
	switch c.Cache.Type {
	case cache.TypeGoCache, cache.TypeLRU:
	case cache.TypeRedis:
		if c.Cache.RedisAddr == "" {
			problems = append(problems, "REDIS_ADDR is required for redis cache")
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown CACHE_TYPE %q", c.Cache.Type))
	}
	if err := websocket.ValidateConfig(c.WebSocket); err != nil {
		problems = append(problems, "websocket: "+err.Error())
	}
	if c.Presence.OfflineAfter <= 0 {
		problems = append(problems, "PRESENCE_OFFLINE_AFTER must be positive")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}
