package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	HTTPAddr string
	SiteID   string

	DBDriver string
	DBDSN    string

	AuthHMACSecret string
	CORSOrigins    []string

	// seeds an admin login on startup when both are set
	AdminUsername string
	AdminPassword string

	RescoreBatchSize int

	// defaults for the release evaluator; stored site settings override them
	ReleaseEnabled           bool
	ReleaseThresholdProfile  string
	ReleaseReadyRatioProfile string
	ReleaseTriggerMode       string
	ReleaseCheckInterval     time.Duration
	ReleaseAutoNotice        bool
	ReleaseCronEvery         time.Duration
}

// FromEnv reads the environment, loading a .env file first when present.
func FromEnv() Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("[config] .env: %v", err)
	}
	return Config{
		HTTPAddr:                 envOr("HTTP_ADDR", ":8080"),
		SiteID:                   envOr("SITE_ID", "local"),
		DBDriver:                 envOr("DB_DRIVER", "sqlite"),
		DBDSN:                    envOr("DB_DSN", ""),
		AuthHMACSecret:           envOr("AUTH_HMAC_SECRET", "dev-secret-change-me"),
		CORSOrigins:              csvOr("CORS_ORIGINS", "http://localhost:3000"),
		AdminUsername:            envOr("ADMIN_USERNAME", ""),
		AdminPassword:            envOr("ADMIN_PASSWORD", ""),
		RescoreBatchSize:         envInt("RESCORE_BATCH_SIZE", 100),
		ReleaseEnabled:           envBool("RELEASE_ENABLED", true),
		ReleaseThresholdProfile:  envOr("RELEASE_THRESHOLD_PROFILE", "BALANCED"),
		ReleaseReadyRatioProfile: envOr("RELEASE_READY_RATIO_PROFILE", "BALANCED"),
		ReleaseTriggerMode:       envOr("RELEASE_TRIGGER_MODE", "HYBRID"),
		ReleaseCheckInterval:     envDuration("RELEASE_CHECK_INTERVAL", 5*time.Minute),
		ReleaseAutoNotice:        envBool("RELEASE_AUTO_NOTICE", true),
		ReleaseCronEvery:         envDuration("RELEASE_CRON_EVERY", 10*time.Minute),
	}
}

func envOr(k, def string) string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	return v
}

func envBool(k string, def bool) bool {
	switch os.Getenv(k) {
	case "1", "true", "TRUE", "yes", "YES":
		return true
	case "0", "false", "FALSE", "no", "NO":
		return false
	default:
		return def
	}
}

func envInt(k string, def int) int {
	n, err := strconv.Atoi(os.Getenv(k))
	if err != nil {
		return def
	}
	return n
}

// envDuration accepts Go durations ("90s") or plain seconds ("90").
func envDuration(k string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	return def
}

func csvOr(k, def string) []string {
	v := envOr(k, def)
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
