package configuration

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, "minio", cfg.Storage.Backend)
	assert.Equal(t, int64(200<<20), cfg.Upload.MaxFileSize)
	assert.Equal(t, 4, cfg.Worker.Concurrency)
	assert.Equal(t, 5, cfg.Worker.MaxDeliver)
	assert.Equal(t, 15*time.Minute, cfg.Worker.AckWait)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("DB_HOST", "db.internal")
	t.Setenv("STORAGE_BACKEND", "local")
	t.Setenv("UPLOAD_MAX_FILE_SIZE", "1048576")
	t.Setenv("WORKER_CONCURRENCY", "12")
	t.Setenv("WORKER_RETRY_DELAY", "5s")

	cfg := Load()

	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, "local", cfg.Storage.Backend)
	assert.Equal(t, int64(1<<20), cfg.Upload.MaxFileSize)
	assert.Equal(t, 12, cfg.Worker.Concurrency)
	assert.Equal(t, 5*time.Second, cfg.Worker.RetryDelay)
}

func TestBadEnvValuesFallBack(t *testing.T) {
	t.Setenv("WORKER_CONCURRENCY", "not-a-number")
	t.Setenv("WORKER_JOB_TIMEOUT", "soon")

	cfg := Load()

	assert.Equal(t, 4, cfg.Worker.Concurrency)
	assert.Equal(t, 10*time.Minute, cfg.Worker.JobTimeout)
}

func TestConnectionString(t *testing.T) {
	db := DatabaseConfig{
		Host: "h", Port: "5433", User: "u", Password: "p", DBName: "d", SSLMode: "require",
	}
	assert.Equal(t, "postgres://u:p@h:5433/d?sslmode=require", db.ConnectionString())
}
