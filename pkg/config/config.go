package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database DatabaseConfig
	Redis    RedisConfig
	JWT      JWTConfig
	CORS     CORSConfig
	Log      LogConfig
	Dispatch DispatchConfig
	Notify   NotifyConfig
	Realtime RealtimeConfig
	Exports  ExportsConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret            string
	Expiration        time.Duration
	RefreshExpiration time.Duration
	Issuer            string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// DispatchConfig tunes backup request routing.
type DispatchConfig struct {
	// BackupRadiusKM bounds eligibility to officers within this
	// great-circle distance of the request location.
	BackupRadiusKM float64
	// BackupMaxFanout caps how many eligible officers are notified per
	// backup request.
	BackupMaxFanout int
}

// NotifyConfig governs outbound notification channels.
type NotifyConfig struct {
	ChannelTimeout time.Duration
	EmailEnabled   bool
	SMSEnabled     bool
	WorkerCount    int
	QueueSize      int
	UnreadCacheTTL time.Duration
}

// RealtimeConfig tunes the websocket hub.
type RealtimeConfig struct {
	Enabled        bool
	ClientBuffer   int
	WriteTimeout   time.Duration
	PingInterval   time.Duration
	DispatchTopics []string
}

// ExportsConfig toggles assignment history exports.
type ExportsConfig struct {
	Enabled bool
	MaxRows int
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret:            v.GetString("JWT_SECRET"),
		Expiration:        parseDuration(v.GetString("JWT_EXPIRATION"), 24*time.Hour),
		RefreshExpiration: parseDuration(v.GetString("REFRESH_TOKEN_EXPIRATION"), 7*24*time.Hour),
		Issuer:            v.GetString("JWT_ISSUER"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	radius := v.GetFloat64("BACKUP_RADIUS_KM")
	if radius <= 0 {
		radius = 5
	}
	fanout := v.GetInt("BACKUP_MAX_FANOUT")
	if fanout <= 0 {
		fanout = 10
	}
	cfg.Dispatch = DispatchConfig{
		BackupRadiusKM:  radius,
		BackupMaxFanout: fanout,
	}

	cfg.Notify = NotifyConfig{
		ChannelTimeout: parseDuration(v.GetString("NOTIFY_CHANNEL_TIMEOUT"), 5*time.Second),
		EmailEnabled:   v.GetBool("NOTIFY_EMAIL_ENABLED"),
		SMSEnabled:     v.GetBool("NOTIFY_SMS_ENABLED"),
		WorkerCount:    v.GetInt("NOTIFY_WORKER_COUNT"),
		QueueSize:      v.GetInt("NOTIFY_QUEUE_SIZE"),
		UnreadCacheTTL: parseDuration(v.GetString("NOTIFY_UNREAD_CACHE_TTL"), time.Minute),
	}

	cfg.Realtime = RealtimeConfig{
		Enabled:        v.GetBool("ENABLE_REALTIME"),
		ClientBuffer:   v.GetInt("REALTIME_CLIENT_BUFFER"),
		WriteTimeout:   parseDuration(v.GetString("REALTIME_WRITE_TIMEOUT"), 10*time.Second),
		PingInterval:   parseDuration(v.GetString("REALTIME_PING_INTERVAL"), 30*time.Second),
		DispatchTopics: splitAndTrim(v.GetString("REALTIME_DISPATCH_TOPICS")),
	}

	maxRows := v.GetInt("EXPORTS_MAX_ROWS")
	if maxRows <= 0 {
		maxRows = 5000
	}
	cfg.Exports = ExportsConfig{
		Enabled: v.GetBool("ENABLE_EXPORTS"),
		MaxRows: maxRows,
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "citywatch")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 25)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "")
	v.SetDefault("JWT_ISSUER", "citywatch-dispatch")

	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("BACKUP_RADIUS_KM", 5.0)
	v.SetDefault("BACKUP_MAX_FANOUT", 10)

	v.SetDefault("NOTIFY_EMAIL_ENABLED", true)
	v.SetDefault("NOTIFY_SMS_ENABLED", true)
	v.SetDefault("NOTIFY_WORKER_COUNT", 4)
	v.SetDefault("NOTIFY_QUEUE_SIZE", 64)

	v.SetDefault("ENABLE_REALTIME", true)
	v.SetDefault("REALTIME_CLIENT_BUFFER", 16)

	v.SetDefault("ENABLE_EXPORTS", true)
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}
	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
