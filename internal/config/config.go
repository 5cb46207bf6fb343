package config

import (
	"fmt"
	"log"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	Port          string `env:"PORT" envDefault:"8080"`
	Environment   string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel      string `env:"LOG_LEVEL" envDefault:"info"`
	DatabaseURL   string `env:"DATABASE_URL" envDefault:"host=localhost user=postgres password=postgres dbname=questlog port=5432 sslmode=disable"`
	SessionSecret string `env:"SESSION_SECRET" envDefault:"secret_key_change_me"`
	SecureCookies bool   `env:"SECURE_COOKIES" envDefault:"false"`

	// 每个游戏的评论行快照缓存
	ThreadCacheSize int           `env:"THREAD_CACHE_SIZE" envDefault:"500"`
	ThreadCacheTTL  time.Duration `env:"THREAD_CACHE_TTL" envDefault:"1m"`

	Catalog CatalogConfig
}

// CatalogConfig 第三方游戏目录 (IGDB) 配置
type CatalogConfig struct {
	ClientID     string        `env:"TWITCH_CLIENT_ID"`
	ClientSecret string        `env:"TWITCH_CLIENT_SECRET"`
	TokenURL     string        `env:"TWITCH_TOKEN_URL" envDefault:"https://id.twitch.tv/oauth2/token"`
	BaseURL      string        `env:"IGDB_BASE_URL" envDefault:"https://api.igdb.com/v4"`
	Timeout      time.Duration `env:"IGDB_TIMEOUT" envDefault:"15s"`
}

// Enabled reports whether catalog credentials are configured.
func (c CatalogConfig) Enabled() bool {
	return c.ClientID != "" && c.ClientSecret != ""
}

// IsProduction reports whether the server runs in production mode.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// Load reads .env (if present) and parses the environment into a Config.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, finding env vars from system")
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}
