package utils

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Auth       AuthConfig
	Redis      RedisConfig
	Storage    StorageConfig
	Search     SearchConfig
	RabbitMQ   RabbitMQConfig
	Log        LogConfig
	Moderation ModerationConfig
	RateLimit  RateLimitConfig
}

type ServerConfig struct {
	Addr        string
	CORSOrigins []string
}

type DatabaseConfig struct {
	// Driver is one of sqlite3, pgx or postgres.
	Driver          string
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type AuthConfig struct {
	JWTSecret       string
	JWTIssuer       string
	JWTDuration     time.Duration
	OTPTTL          time.Duration
	OTPMaxAttempts  int
	InvitesPerUser  int
	BootstrapInvite string
}

type RedisConfig struct {
	URL string
}

type StorageConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	PublicURL string
}

type SearchConfig struct {
	MeiliURL string
	MeiliKey string
}

type RabbitMQConfig struct {
	Domain string
	Queue  string
}

type LogConfig struct {
	Level          string
	JSON           bool
	ElkEnable      bool
	ElkURL         string
	ElkIndex       string
	LogstashEnable bool
	LogstashURL    string
}

type ModerationConfig struct {
	Concurrency int
}

type RateLimitConfig struct {
	OTPPerIdentifier int
	OTPPerIP         int
	Window           time.Duration
}

// LoadConfig reads config.yml from the working directory when present and lets
// environment variables (DATABASE_DSN for database.dsn, ...) override it.
func LoadConfig() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yml")
	v.AddConfigPath(".")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	}

	return fromViper(v), nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.cors_origins", []string{"http://localhost:3000", "http://localhost:5173"})

	v.SetDefault("database.driver", "sqlite3")
	v.SetDefault("database.dsn", "file:data/proteinmap.db")
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.conn_max_lifetime", "30m")

	// dev default (change for production)
	v.SetDefault("auth.jwt_secret", "dev-secret-change-me")
	v.SetDefault("auth.jwt_issuer", "proteinmap")
	v.SetDefault("auth.jwt_ttl", "168h")
	v.SetDefault("auth.otp_ttl", "10m")
	v.SetDefault("auth.otp_max_attempts", 5)
	v.SetDefault("auth.invites_per_user", 3)
	v.SetDefault("auth.bootstrap_invite", "")

	v.SetDefault("redis.url", "")

	v.SetDefault("storage.endpoint", "")
	v.SetDefault("storage.bucket", "dish-photos")
	v.SetDefault("storage.use_ssl", false)

	v.SetDefault("search.meili_url", "")
	v.SetDefault("search.meili_key", "")

	v.SetDefault("rabbitmq.domain", "")
	v.SetDefault("rabbitmq.queue", "availability-events")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.json", false)
	v.SetDefault("log.elk.enable", false)
	v.SetDefault("log.elk.index", "proteinmap")
	v.SetDefault("log.logstash.enable", false)

	v.SetDefault("moderation.concurrency", 4)

	v.SetDefault("ratelimit.otp_per_identifier", 5)
	v.SetDefault("ratelimit.otp_per_ip", 20)
	v.SetDefault("ratelimit.window", "15m")
}

func fromViper(v *viper.Viper) Config {
	var cfg Config
	cfg.Server.Addr = v.GetString("server.addr")
	cfg.Server.CORSOrigins = splitList(v.GetStringSlice("server.cors_origins"))

	cfg.Database.Driver = v.GetString("database.driver")
	cfg.Database.DSN = v.GetString("database.dsn")
	cfg.Database.MaxOpenConns = v.GetInt("database.max_open_conns")
	cfg.Database.MaxIdleConns = v.GetInt("database.max_idle_conns")
	cfg.Database.ConnMaxLifetime = v.GetDuration("database.conn_max_lifetime")

	cfg.Auth.JWTSecret = v.GetString("auth.jwt_secret")
	cfg.Auth.JWTIssuer = v.GetString("auth.jwt_issuer")
	cfg.Auth.JWTDuration = v.GetDuration("auth.jwt_ttl")
	cfg.Auth.OTPTTL = v.GetDuration("auth.otp_ttl")
	cfg.Auth.OTPMaxAttempts = v.GetInt("auth.otp_max_attempts")
	cfg.Auth.InvitesPerUser = v.GetInt("auth.invites_per_user")
	cfg.Auth.BootstrapInvite = v.GetString("auth.bootstrap_invite")

	cfg.Redis.URL = v.GetString("redis.url")

	cfg.Storage.Endpoint = v.GetString("storage.endpoint")
	cfg.Storage.AccessKey = v.GetString("storage.access_key")
	cfg.Storage.SecretKey = v.GetString("storage.secret_key")
	cfg.Storage.Bucket = v.GetString("storage.bucket")
	cfg.Storage.UseSSL = v.GetBool("storage.use_ssl")
	cfg.Storage.PublicURL = v.GetString("storage.public_url")

	cfg.Search.MeiliURL = v.GetString("search.meili_url")
	cfg.Search.MeiliKey = v.GetString("search.meili_key")

	cfg.RabbitMQ.Domain = v.GetString("rabbitmq.domain")
	cfg.RabbitMQ.Queue = v.GetString("rabbitmq.queue")

	cfg.Log.Level = v.GetString("log.level")
	cfg.Log.JSON = v.GetBool("log.json")
	cfg.Log.ElkEnable = v.GetBool("log.elk.enable")
	cfg.Log.ElkURL = v.GetString("log.elk.url")
	cfg.Log.ElkIndex = v.GetString("log.elk.index")
	cfg.Log.LogstashEnable = v.GetBool("log.logstash.enable")
	cfg.Log.LogstashURL = v.GetString("log.logstash.url")

	cfg.Moderation.Concurrency = v.GetInt("moderation.concurrency")
	if cfg.Moderation.Concurrency <= 0 {
		cfg.Moderation.Concurrency = 1
	}

	cfg.RateLimit.OTPPerIdentifier = v.GetInt("ratelimit.otp_per_identifier")
	cfg.RateLimit.OTPPerIP = v.GetInt("ratelimit.otp_per_ip")
	cfg.RateLimit.Window = v.GetDuration("ratelimit.window")
	return cfg
}

// splitList accepts both yaml lists and comma separated env values.
func splitList(in []string) []string {
	var out []string
	for _, s := range in {
		for _, part := range strings.Split(s, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}
