package config

import (
	"testing"
	"time"
)

func TestFromEnv(t *testing.T) {
	t.Setenv("DB_DRIVER", "postgres")
	t.Setenv("RESCORE_BATCH_SIZE", "250")
	t.Setenv("RELEASE_ENABLED", "no")
	t.Setenv("RELEASE_CHECK_INTERVAL", "45")
	t.Setenv("RELEASE_CRON_EVERY", "2m")
	t.Setenv("CORS_ORIGINS", "https://a.example, ,https://b.example")

	c := FromEnv()
	if c.DBDriver != "postgres" || c.RescoreBatchSize != 250 || c.ReleaseEnabled {
		t.Fatalf("config: %+v", c)
	}
	if c.ReleaseCheckInterval != 45*time.Second || c.ReleaseCronEvery != 2*time.Minute {
		t.Fatalf("durations: %v %v", c.ReleaseCheckInterval, c.ReleaseCronEvery)
	}
	if len(c.CORSOrigins) != 2 || c.CORSOrigins[1] != "https://b.example" {
		t.Fatalf("cors: %v", c.CORSOrigins)
	}
	if c.ReleaseThresholdProfile != "BALANCED" || c.HTTPAddr != ":8080" {
		t.Fatalf("defaults: %+v", c)
	}
}
