package config

import (
	"context"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	infisical "github.com/infisical/go-sdk"
)

type Config struct {
	Port           string
	DatabaseURL    string
	StoreDriver    string
	FrontendOrigin string
	RedisURL       string
	RedisPassword  string
	CacheBackend   string
	MetaCacheTTL   time.Duration

	IngestCron  string
	HTTPTimeout time.Duration
	SourcesFile string
	LogLevel    slog.Level

	BrowserRetries    int
	BrowserBackoff    time.Duration
	BrowserNavTimeout time.Duration
	ChromePath        string
}

func Load() Config {
	cfg := Config{
		Port:           envOr("PORT", "8080"),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		StoreDriver:    strings.ToLower(envOr("STORE_DRIVER", "postgres")),
		FrontendOrigin: envOr("FRONTEND_ORIGIN", "*"),
		RedisURL:       envOr("REDIS_URL", "redis://redis-master.redis.svc.cluster.local:6379/0"),
		RedisPassword:  os.Getenv("REDIS_PASSWORD"),
		CacheBackend:   strings.ToLower(envOr("CACHE_BACKEND", "memory")),
		MetaCacheTTL:   durationOr("META_CACHE_TTL", 5*time.Minute),

		IngestCron:  envOr("INGEST_CRON", "0 */10 * * * *"),
		HTTPTimeout: durationOr("HTTP_TIMEOUT", 30*time.Second),
		SourcesFile: envOr("SOURCES_FILE", "config/sources.yaml"),
		LogLevel:    levelOr("LOG_LEVEL", slog.LevelInfo),

		BrowserRetries:    intOr("BROWSER_RETRIES", 3),
		BrowserBackoff:    durationOr("BROWSER_BACKOFF", 5*time.Second),
		BrowserNavTimeout: durationOr("BROWSER_NAV_TIMEOUT", 45*time.Second),
		ChromePath:        os.Getenv("CHROME_PATH"),
	}

	// If Infisical credentials are available, fetch secrets from Infisical
	clientID := os.Getenv("INFISICAL_CLIENT_ID")
	clientSecret := os.Getenv("INFISICAL_CLIENT_SECRET")
	if clientID != "" && clientSecret != "" {
		loadFromInfisical(&cfg, clientID, clientSecret)
	}

	return cfg
}

func loadFromInfisical(cfg *Config, clientID, clientSecret string) {
	siteURL := envOr("INFISICAL_SITE_URL",
		"http://infisical-infisical-standalone-infisical.infisical.svc.cluster.local:8080")
	projectID := os.Getenv("INFISICAL_PROJECT_ID")
	envSlug := envOr("INFISICAL_ENV", "prod")

	if projectID == "" {
		slog.Warn("INFISICAL_PROJECT_ID not set, skipping Infisical")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client := infisical.NewInfisicalClient(ctx, infisical.Config{
		SiteUrl:          siteURL,
		AutoTokenRefresh: false,
	})

	_, err := client.Auth().UniversalAuthLogin(clientID, clientSecret)
	if err != nil {
		slog.Error("infisical auth failed", "error", err)
		return
	}

	secrets := map[string]*string{
		"DATABASE_URL":   &cfg.DatabaseURL,
		"REDIS_PASSWORD": &cfg.RedisPassword,
	}

	for key, target := range secrets {
		if *target != "" {
			continue // env var already set, skip
		}
		secret, err := client.Secrets().Retrieve(infisical.RetrieveSecretOptions{
			SecretKey:   key,
			Environment: envSlug,
			ProjectID:   projectID,
			SecretPath:  "/",
		})
		if err != nil {
			slog.Warn("failed to retrieve secret from infisical", "key", key, "error", err)
			continue
		}
		*target = secret.SecretValue
		slog.Info("loaded secret from infisical", "key", key)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func durationOr(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		slog.Warn("invalid duration, using default", "key", key, "value", v, "default", fallback)
		return fallback
	}
	return d
}

func intOr(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		slog.Warn("invalid integer, using default", "key", key, "value", v, "default", fallback)
		return fallback
	}
	return n
}

func levelOr(key string, fallback slog.Level) slog.Level {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var l slog.Level
	if err := l.UnmarshalText([]byte(v)); err != nil {
		slog.Warn("invalid log level, using default", "key", key, "value", v)
		return fallback
	}
	return l
}
