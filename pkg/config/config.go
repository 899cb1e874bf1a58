package config

import (
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	App struct {
		Env       string `env:"APP_ENV" env-default:"development"`
		Port      int    `env:"APP_PORT" env-default:"8080"`
		SentryUrl string `env:"SENTRY_URL"`
	}
	Fetcher struct {
		APIKey    string        `env:"RAPIDAPI_KEY"`
		APIHost   string        `env:"RAPIDAPI_HOST" env-default:"instagram-scraper-api2.p.rapidapi.com"`
		PageDelay time.Duration `env:"FETCH_PAGE_DELAY" env-default:"2s"`
		ItemDelay time.Duration `env:"FETCH_ITEM_DELAY" env-default:"1s"`
	}
	Storage struct {
		Bucket   string `env:"MEDIA_BUCKET"`
		Region   string `env:"AWS_REGION" env-default:"us-east-1"`
		Endpoint string `env:"S3_ENDPOINT"`
	}
	Analyzer struct {
		APIKey    string        `env:"GEMINI_API_KEY"`
		Model     string        `env:"GEMINI_MODEL" env-default:"gemini-1.5-flash-002"`
		Endpoint  string        `env:"GEMINI_ENDPOINT" env-default:"https://generativelanguage.googleapis.com/v1beta"`
		CallDelay time.Duration `env:"ANALYZER_CALL_DELAY" env-default:"1s"`
	}
	Mongo struct {
		URI      string `env:"MONGODB_URI"`
		Database string `env:"MONGODB_DATABASE" env-default:"insta_media_sync"`
	}
	Postgres struct {
		Port    int    `env:"POSTGRES_PORT"`
		Host    string `env:"POSTGRES_HOST"`
		User    string `env:"POSTGRES_USER"`
		Pass    string `env:"POSTGRES_PASS"`
		Name    string `env:"POSTGRES_NAME"`
		SslMode string `env:"POSTGRES_SSL_MODE" env-default:"disable"`
	}
	Telegram struct {
		AdminChatID int64  `env:"TELEGRAM_ADMIN_CHAT_ID"`
		Token       string `env:"TELEGRAM_TOKEN"`
	}
	Indexer struct {
		Endpoint string `env:"PINECONE_ENDPOINT"`
		APIKey   string `env:"PINECONE_API_KEY"`
	}
	Sync struct {
		Usernames    string `env:"SYNC_USERNAMES"`
		CronSchedule string `env:"SYNC_CRON" env-default:"0 4 * * *"`
		MaxPosts     int    `env:"SYNC_MAX_POSTS" env-default:"50"`
	}
}

// GetDSN returns the postgres connection string.
func (c *Config) GetDSN() string {
	return fmt.Sprintf("dbname=%s user=%s password=%s host=%s port=%d sslmode=%s",
		c.Postgres.Name, c.Postgres.User, c.Postgres.Pass, c.Postgres.Host, c.Postgres.Port, c.Postgres.SslMode)
}

// SyncUsernames returns the configured username list for scheduled syncs.
func (c *Config) SyncUsernames() []string {
	if c.Sync.Usernames == "" {
		return nil
	}
	parts := strings.Split(c.Sync.Usernames, ",")
	usernames := make([]string, 0, len(parts))
	for _, p := range parts {
		if u := strings.TrimSpace(p); u != "" {
			usernames = append(usernames, u)
		}
	}
	return usernames
}

var (
	once sync.Once
	cfg  *Config
)

func New() (*Config, error) {
	once.Do(func() {
		cfg = &Config{}
		if err := cleanenv.ReadEnv(cfg); err != nil {
			help, _ := cleanenv.GetDescription(cfg, nil)
			log.Fatalf("Failed to read configuration: %v\n%v", err, help)
		}
	})
	return cfg, nil
}
