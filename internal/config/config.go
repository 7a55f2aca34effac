package config

import (
	"log/slog"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Addr          string
	DatabaseType  string // postgres or sqlite
	DatabaseURL   string
	SessionSecret string
	SessionName   string
	RedisURL      string
	LogLevel      string

	VoteMaxAttempts  int
	LockTTL          time.Duration
	LockWait         time.Duration
	ContentMaxLength int

	FeedDefaultLimit int
	FeedMaxLimit     int

	LabelCacheSize int
	LabelCacheTTL  time.Duration

	// ElevatedRoles may delete any remark.
	ElevatedRoles []string
}

func defaults(v *viper.Viper) {
	v.SetDefault("ADDR", ":8080")
	v.SetDefault("DATABASE_TYPE", "postgres")
	v.SetDefault("DATABASE_URL", "host=localhost user=postgres password=postgres dbname=lessontalk port=5432 sslmode=disable TimeZone=UTC")
	v.SetDefault("SESSION_SECRET", "secret_key_change_me")
	v.SetDefault("SESSION_NAME", "lessontalk_session")
	v.SetDefault("REDIS_URL", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("VOTE_MAX_ATTEMPTS", 3)
	v.SetDefault("LOCK_TTL", 5*time.Second)
	v.SetDefault("LOCK_WAIT", 2*time.Second)
	v.SetDefault("CONTENT_MAX_LENGTH", 5000)
	v.SetDefault("FEED_DEFAULT_LIMIT", 30)
	v.SetDefault("FEED_MAX_LIMIT", 100)
	v.SetDefault("LABEL_CACHE_SIZE", 500)
	v.SetDefault("LABEL_CACHE_TTL", 5*time.Minute)
	v.SetDefault("ELEVATED_ROLES", "admin,moderator,teacher")
}

// Load reads .env (when present) and the process environment.
func Load(envFiles ...string) Config {
	if err := godotenv.Load(envFiles...); err != nil {
		slog.Debug("no .env file found, reading env vars from system")
	}

	v := viper.New()
	defaults(v)
	v.AutomaticEnv()
	return fromViper(v)
}

func fromViper(v *viper.Viper) Config {
	cfg := Config{
		Addr:             v.GetString("ADDR"),
		DatabaseType:     strings.ToLower(v.GetString("DATABASE_TYPE")),
		DatabaseURL:      v.GetString("DATABASE_URL"),
		SessionSecret:    v.GetString("SESSION_SECRET"),
		SessionName:      v.GetString("SESSION_NAME"),
		RedisURL:         strings.TrimSpace(v.GetString("REDIS_URL")),
		LogLevel:         v.GetString("LOG_LEVEL"),
		VoteMaxAttempts:  v.GetInt("VOTE_MAX_ATTEMPTS"),
		LockTTL:          v.GetDuration("LOCK_TTL"),
		LockWait:         v.GetDuration("LOCK_WAIT"),
		ContentMaxLength: v.GetInt("CONTENT_MAX_LENGTH"),
		FeedDefaultLimit: v.GetInt("FEED_DEFAULT_LIMIT"),
		FeedMaxLimit:     v.GetInt("FEED_MAX_LIMIT"),
		LabelCacheSize:   v.GetInt("LABEL_CACHE_SIZE"),
		LabelCacheTTL:    v.GetDuration("LABEL_CACHE_TTL"),
		ElevatedRoles:    splitList(v.GetString("ELEVATED_ROLES")),
	}
	if cfg.VoteMaxAttempts < 1 {
		cfg.VoteMaxAttempts = 1
	}
	if cfg.FeedMaxLimit < cfg.FeedDefaultLimit {
		cfg.FeedMaxLimit = cfg.FeedDefaultLimit
	}
	return cfg
}

// SlogLevel maps LogLevel onto a slog level, defaulting to info.
func (c Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func splitList(raw string) []string {
	out := make([]string, 0)
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
