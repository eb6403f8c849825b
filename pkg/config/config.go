package config

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env string

	Bot        BotConfig
	Redis      RedisConfig
	Database   DatabaseConfig
	Log        LogConfig
	Admin      AdminConfig
	CORS       CORSConfig
	Confession ConfessionConfig
	Game       GameConfig
}

type BotConfig struct {
	Token string `validate:"required"`
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// DatabaseConfig configures the optional moderation audit archive.
type DatabaseConfig struct {
	Enabled      bool
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type LogConfig struct {
	Level  string
	Format string
}

// AdminConfig tunes the operational HTTP server.
type AdminConfig struct {
	Port int
}

type CORSConfig struct {
	AllowedOrigins []string
}

// ConfessionConfig drives the anonymous-submission workflow.
type ConfessionConfig struct {
	ModerationChannelID string `validate:"required"`
	OutputChannelID     string `validate:"required"`
	VerifyMessage       string
	VerifyTimeout       time.Duration
	CancelMessage       string
	SentMessage         string
	TimeZone            string
	StatusTTL           time.Duration
}

// GameConfig drives the counting game.
type GameConfig struct {
	ChannelID     string `validate:"required"`
	ManagerID     string
	InitialGoal   int64
	InitialFactor int64
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

	cfg.Bot = BotConfig{
		Token: v.GetString("BOT_TOKEN"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.Database = DatabaseConfig{
		Enabled:      v.GetBool("ENABLE_AUDIT_ARCHIVE"),
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Admin = AdminConfig{
		Port: v.GetInt("ADMIN_PORT"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Confession = ConfessionConfig{
		ModerationChannelID: v.GetString("CONFESSION_MODERATION_CHANNEL_ID"),
		OutputChannelID:     v.GetString("CONFESSION_OUTPUT_CHANNEL_ID"),
		VerifyMessage:       v.GetString("CONFESSION_VERIFY_MESSAGE"),
		VerifyTimeout:       parseDuration(v.GetString("CONFESSION_VERIFY_TIMEOUT"), time.Minute),
		CancelMessage:       v.GetString("CONFESSION_CANCEL_MESSAGE"),
		SentMessage:         v.GetString("CONFESSION_SENT_MESSAGE"),
		TimeZone:            v.GetString("CONFESSION_TIME_ZONE"),
		StatusTTL:           parseDuration(v.GetString("CONFESSION_STATUS_TTL"), 30*24*time.Hour),
	}

	cfg.Game = GameConfig{
		ChannelID:     v.GetString("GAME_CHANNEL_ID"),
		ManagerID:     v.GetString("GAME_MANAGER_ID"),
		InitialGoal:   parseInt64(v.GetString("GAME_INITIAL_GOAL"), 1),
		InitialFactor: parseInt64(v.GetString("GAME_INITIAL_FACTOR"), 2),
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("ADMIN_PORT", 8080)
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
	v.SetDefault("CONFESSION_VERIFY_MESSAGE", "React with 👍 to confirm your anonymous submission.")
	v.SetDefault("CONFESSION_CANCEL_MESSAGE", "No confirmation received, so your submission was discarded.")
	v.SetDefault("CONFESSION_SENT_MESSAGE", "Your submission was sent to the moderators. 📨")
	v.SetDefault("CONFESSION_TIME_ZONE", "America/Los_Angeles")
	v.SetDefault("GAME_INITIAL_GOAL", "1")
	v.SetDefault("GAME_INITIAL_FACTOR", "2")
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	// Bare numbers are read as seconds.
	if secs, err := strconv.Atoi(raw); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return fallback
}

func parseInt64(raw string, fallback int64) int64 {
	if raw == "" {
		return fallback
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || n < 1 {
		return fallback
	}
	return n
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
