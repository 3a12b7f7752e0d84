package configuration

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Database    DatabaseConfig
	MinIO       MinIOConfig
	Server      ServerConfig
	NATS        NATSConfig
	Storage     StorageConfig
	Staging     StagingConfig
	Upload      UploadConfig
	Worker      WorkerConfig
	KeycloakURL string
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type MinIOConfig struct {
	Endpoint   string
	AccessKey  string
	SecretKey  string
	BucketName string
	UseSSL     bool
}

type ServerConfig struct {
	Port string
}

type NATSConfig struct {
	URL string
}

// StorageConfig selects the blob backend at startup: "minio" or "local".
type StorageConfig struct {
	Backend  string
	LocalDir string
}

type StagingConfig struct {
	Dir string
}

type UploadConfig struct {
	MaxFileSize int64
}

type WorkerConfig struct {
	Concurrency int
	JobTimeout  time.Duration
	AckWait     time.Duration
	MaxDeliver  int
	RetryDelay  time.Duration
}

func Load() *Config {
	return &Config{
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "fileuser"),
			Password: getEnv("DB_PASSWORD", "filepassword"),
			DBName:   getEnv("DB_NAME", "filemanager"),
			SSLMode:  getEnv("DB_SSL_MODE", "disable"),
		},
		MinIO: MinIOConfig{
			Endpoint:   getEnv("MINIO_ENDPOINT", "localhost:9000"),
			AccessKey:  getEnv("MINIO_ACCESS_KEY", "minioadmin"),
			SecretKey:  getEnv("MINIO_SECRET_KEY", "minioadmin"),
			BucketName: getEnv("MINIO_BUCKET", "files"),
			UseSSL:     getEnv("MINIO_USE_SSL", "false") == "true",
		},
		Server: ServerConfig{
			Port: getEnv("SERVER_PORT", "8080"),
		},
		NATS: NATSConfig{
			URL: getEnv("NATS_URL", "nats://localhost:4222"),
		},
		Storage: StorageConfig{
			Backend:  getEnv("STORAGE_BACKEND", "minio"),
			LocalDir: getEnv("STORAGE_LOCAL_DIR", "./data/blobs"),
		},
		Staging: StagingConfig{
			Dir: getEnv("STAGING_DIR", "./data/staging"),
		},
		Upload: UploadConfig{
			MaxFileSize: getEnvInt64("UPLOAD_MAX_FILE_SIZE", 200<<20),
		},
		Worker: WorkerConfig{
			Concurrency: getEnvInt("WORKER_CONCURRENCY", 4),
			JobTimeout:  getEnvDuration("WORKER_JOB_TIMEOUT", 10*time.Minute),
			AckWait:     getEnvDuration("WORKER_ACK_WAIT", 15*time.Minute),
			MaxDeliver:  getEnvInt("WORKER_MAX_DELIVER", 5),
			RetryDelay:  getEnvDuration("WORKER_RETRY_DELAY", 30*time.Second),
		},
		KeycloakURL: getEnv("KEYCLOAK_URL", "http://localhost:8081/realms/nimbusdrive"),
	}
}

func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.ParseInt(value, 10, 64); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
