package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix namespaces environment overrides, e.g. LOREQUIZ_REDIS_ADDR.
const EnvPrefix = "LOREQUIZ"

type Config struct {
	Env    string `mapstructure:"env"`
	Server struct {
		Port string `mapstructure:"port"`
	} `mapstructure:"server"`
	Redis struct {
		Addr     string `mapstructure:"addr"`
		Password string `mapstructure:"password"`
		DB       int    `mapstructure:"db"`
		TTL      string `mapstructure:"ttl"`
	} `mapstructure:"redis"`
	Postgres struct {
		URL      string `mapstructure:"url"`
		MaxConns int    `mapstructure:"max_conns"`
	} `mapstructure:"postgres"`
	Quiz struct {
		TTL           string `mapstructure:"ttl"`
		Dir           string `mapstructure:"dir"`
		FeedbackDelay string `mapstructure:"feedback_delay"`
	} `mapstructure:"quiz"`
	Pending struct {
		TTL string `mapstructure:"ttl"`
	} `mapstructure:"pending"`
	Auth struct {
		Secret string `mapstructure:"secret"`
	} `mapstructure:"auth"`
	Badges struct {
		// Perfect is a list rather than a map: viper lowercases map keys and
		// quiz ids are case-sensitive.
		Perfect []PerfectBadge `mapstructure:"perfect"`
		First   string         `mapstructure:"first"`
	} `mapstructure:"badges"`
}

// PerfectBadge grants Badge for a perfect score on Quiz.
type PerfectBadge struct {
	Quiz  string `mapstructure:"quiz"`
	Badge string `mapstructure:"badge"`
}

// Load reads YAML config from path when it exists and layers LOREQUIZ_*
// environment variables on top. An empty path uses defaults and env only.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	v.SetDefault("env", "local")
	v.SetDefault("server.port", "8080")
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.ttl", "10m")
	v.SetDefault("postgres.url", "")
	v.SetDefault("postgres.max_conns", 10)
	v.SetDefault("quiz.ttl", "10m")
	v.SetDefault("quiz.dir", "quizzes")
	v.SetDefault("quiz.feedback_delay", "1500ms")
	v.SetDefault("pending.ttl", "24h")
	v.SetDefault("auth.secret", "")
	v.SetDefault("badges.perfect", []map[string]any{{"quiz": "potions-owl", "badge": "potions-perfect"}})
	v.SetDefault("badges.first", "first-quiz")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			v.SetConfigFile(path)
			if err := v.ReadInConfig(); err != nil {
				return Config{}, fmt.Errorf("read config %s: %w", path, err)
			}
		} else if !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("stat config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	return cfg, nil
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
