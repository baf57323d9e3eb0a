package config

import (
	"errors"
	"fmt"
	"log"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	AppHost  string
	HTTPPort string
	AppEnv   string
	LogLevel string

	// AI controls the message router. When Enabled is false every inbound
	// customer message is handed off to staff without a model call.
	AI struct {
		Enabled          bool
		AutoThreshold    float64
		SuggestThreshold float64
		HistoryLimit     int
		MaxReplyWords    int
	}

	LLM struct {
		BaseURL string
		APIKey  string
		Model   string
	}

	Handback struct {
		Grace      time.Duration
		SweepEvery time.Duration
	}

	Presence struct {
		MaxWorkload   int
		InactiveAfter time.Duration
		SweepEvery    time.Duration
	}

	Store struct {
		Name    string
		Address string
		Hotline string
		Hours   string
	}

	KafkaBrokers   []string
	KafkaTopicChat string

	DB struct {
		Host     string
		Port     string
		User     string
		Password string
		Database string
		SSLMode  string
	}
}

func Load() (*Config, error) {
	_ = godotenv.Load(".env")
	_ = godotenv.Load("../.env")

	cfg := &Config{
		AppHost:  getEnv("APP_HOST", "0.0.0.0"),
		HTTPPort: firstEnv("APP_PORT", "HTTP_PORT", "8099"),
		AppEnv:   getEnv("APP_ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),
	}

	cfg.AI.Enabled = getEnvBool("AI_ENABLED", true)
	cfg.AI.AutoThreshold = getEnvFloat("AI_AUTO_THRESHOLD", 0.80)
	cfg.AI.SuggestThreshold = getEnvFloat("AI_SUGGEST_THRESHOLD", 0.65)
	cfg.AI.HistoryLimit = getEnvInt("AI_HISTORY_LIMIT", 10)
	cfg.AI.MaxReplyWords = getEnvInt("AI_MAX_REPLY_WORDS", 120)

	cfg.LLM.BaseURL = getEnv("LLM_BASE_URL", "")
	cfg.LLM.APIKey = getEnv("LLM_API_KEY", "")
	cfg.LLM.Model = getEnv("LLM_MODEL", "gpt-4o-mini")

	cfg.Handback.Grace = time.Duration(getEnvInt("HANDBACK_GRACE_SECONDS", 30)) * time.Second
	cfg.Handback.SweepEvery = time.Duration(getEnvInt("HANDBACK_SWEEP_MS", 2000)) * time.Millisecond

	cfg.Presence.MaxWorkload = getEnvInt("PRESENCE_MAX_WORKLOAD", 5)
	cfg.Presence.InactiveAfter = time.Duration(getEnvInt("PRESENCE_INACTIVE_MINUTES", 10)) * time.Minute
	cfg.Presence.SweepEvery = time.Duration(getEnvInt("PRESENCE_SWEEP_SECONDS", 60)) * time.Second

	cfg.Store.Name = getEnv("STORE_NAME", "PSDS Shop")
	cfg.Store.Address = getEnv("STORE_ADDRESS", "")
	cfg.Store.Hotline = getEnv("STORE_HOTLINE", "")
	cfg.Store.Hours = getEnv("STORE_HOURS", "8:00-21:00")

	cfg.KafkaBrokers = parseList(getEnv("KAFKA_BROKERS", ""))
	cfg.KafkaTopicChat = getEnv("KAFKA_TOPIC_CHAT", "chat.events")

	cfg.DB.Host = getEnv("DB_HOST", "localhost")
	cfg.DB.Port = getEnv("DB_PORT", "5432")
	cfg.DB.User = getEnv("DB_USER", "postgres")
	cfg.DB.Password = getEnv("DB_PASSWORD", "postgres")
	cfg.DB.Database = getEnv("DB_DATABASE", "chat_orchestrator")
	cfg.DB.SSLMode = getEnv("DB_SSLMODE", "disable")
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.DB.Host == "" || c.DB.Database == "" {
		return errors.New("config: DB_HOST and DB_DATABASE are required")
	}
	if c.AppEnv == "production" && c.DB.Password == "" {
		return errors.New("config: in production DB_PASSWORD is required")
	}
	if c.AI.SuggestThreshold > c.AI.AutoThreshold {
		log.Printf("config: AI_SUGGEST_THRESHOLD %.2f above AI_AUTO_THRESHOLD %.2f, using defaults", c.AI.SuggestThreshold, c.AI.AutoThreshold)
		c.AI.AutoThreshold = 0.80
		c.AI.SuggestThreshold = 0.65
	}
	return nil
}

func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host, c.DB.Port, c.DB.User, c.DB.Password, c.DB.Database, c.DB.SSLMode)
}

func (c *Config) DatabaseURL() string {
	pass := url.QueryEscape(c.DB.Password)
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.DB.User, pass, c.DB.Host, c.DB.Port, c.DB.Database, c.DB.SSLMode)
}

func (c *Config) Addr() string {
	return c.AppHost + ":" + c.HTTPPort
}

func firstEnv(keysAndDef ...string) string {
	if len(keysAndDef) == 0 {
		return ""
	}
	def := keysAndDef[len(keysAndDef)-1]
	for _, k := range keysAndDef[:len(keysAndDef)-1] {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return def
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("config: %s=%q is not an integer, using %d", key, v, def)
		return def
	}
	return n
}

func getEnvFloat(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Printf("config: %s=%q is not a number, using %g", key, v, def)
		return def
	}
	return f
}

func getEnvBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		log.Printf("config: %s=%q is not a bool, using %v", key, v, def)
		return def
	}
	return b
}

func parseList(s string) []string {
	var out []string
	for _, t := range strings.Split(s, ",") {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}
