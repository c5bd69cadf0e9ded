package config

import (
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// readSecret reads a Docker secret from a file path specified by an env var
// with _FILE suffix. If FOO is already set directly, the file is skipped.
// If FOO_FILE is set, reads the file content and sets FOO.
func readSecret(envKey string) {
	if os.Getenv(envKey) != "" {
		return
	}
	fileKey := envKey + "_FILE"
	filePath := os.Getenv(fileKey)
	if filePath == "" {
		return
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return
	}
	val := strings.TrimSpace(string(data))
	os.Setenv(envKey, val)
}

type Config struct {
	Server    ServerConfig
	Redis     RedisConfig
	Upload    UploadConfig
	RateLimit RateLimitConfig
	Pipeline  PipelineConfig
	OCR       OCRConfig
	Storage   StorageConfig
}

type ServerConfig struct {
	Port     string
	Env      string
	LogLevel string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type UploadConfig struct {
	Dir      string
	MaxBytes int64
}

type RateLimitConfig struct {
	UploadLimit  int
	UploadWindow time.Duration
}

type PipelineConfig struct {
	WorkDir          string
	Concurrency      int
	RecognizeTimeout time.Duration
	AllowBMP         bool
	MaxEntryBytes    int64
}

type OCRConfig struct {
	Provider      string
	Languages     []string
	MaxImageBytes int64
	MaxImageEdge  int
	Google        GoogleConfig
}

type GoogleConfig struct {
	APIKey   string
	Endpoint string
}

type StorageConfig struct {
	AccountID       string
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
	PublicURL       string
}

func Load() (*Config, error) {
	// Read Docker Swarm secrets from _FILE env vars before Viper binds
	readSecret("REDIS_PASSWORD")
	readSecret("OCR_GOOGLE_API_KEY")
	readSecret("STORAGE_ACCOUNT_ID")
	readSecret("STORAGE_ACCESS_KEY_ID")
	readSecret("STORAGE_SECRET_ACCESS_KEY")

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	// Environment variables
	viper.AutomaticEnv()

	// Bind environment variables with underscores to nested config keys
	_ = viper.BindEnv("server.port", "SERVER_PORT")
	_ = viper.BindEnv("server.env", "SERVER_ENV")
	_ = viper.BindEnv("server.log_level", "LOG_LEVEL")
	_ = viper.BindEnv("redis.addr", "REDIS_ADDR")
	_ = viper.BindEnv("redis.password", "REDIS_PASSWORD")
	_ = viper.BindEnv("redis.db", "REDIS_DB")
	_ = viper.BindEnv("upload.dir", "UPLOAD_DIR")
	_ = viper.BindEnv("upload.max_bytes", "UPLOAD_MAX_BYTES")
	_ = viper.BindEnv("ratelimit.upload_limit", "RATELIMIT_UPLOAD_LIMIT")
	_ = viper.BindEnv("ratelimit.upload_window", "RATELIMIT_UPLOAD_WINDOW")
	_ = viper.BindEnv("pipeline.work_dir", "PIPELINE_WORK_DIR")
	_ = viper.BindEnv("pipeline.concurrency", "PIPELINE_CONCURRENCY")
	_ = viper.BindEnv("pipeline.recognize_timeout", "PIPELINE_RECOGNIZE_TIMEOUT")
	_ = viper.BindEnv("pipeline.allow_bmp", "PIPELINE_ALLOW_BMP")
	_ = viper.BindEnv("pipeline.max_entry_bytes", "PIPELINE_MAX_ENTRY_BYTES")
	_ = viper.BindEnv("ocr.provider", "OCR_PROVIDER")
	_ = viper.BindEnv("ocr.languages", "OCR_LANGUAGES")
	_ = viper.BindEnv("ocr.max_image_bytes", "OCR_MAX_IMAGE_BYTES")
	_ = viper.BindEnv("ocr.max_image_edge", "OCR_MAX_IMAGE_EDGE")
	_ = viper.BindEnv("ocr.google.api_key", "OCR_GOOGLE_API_KEY")
	_ = viper.BindEnv("ocr.google.endpoint", "OCR_GOOGLE_ENDPOINT")
	_ = viper.BindEnv("storage.account_id", "STORAGE_ACCOUNT_ID")
	_ = viper.BindEnv("storage.access_key_id", "STORAGE_ACCESS_KEY_ID")
	_ = viper.BindEnv("storage.secret_access_key", "STORAGE_SECRET_ACCESS_KEY")
	_ = viper.BindEnv("storage.bucket", "STORAGE_BUCKET")
	_ = viper.BindEnv("storage.public_url", "STORAGE_PUBLIC_URL")

	// Defaults
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.env", "development")
	viper.SetDefault("server.log_level", "info")
	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("upload.dir", "./uploads")
	viper.SetDefault("upload.max_bytes", 50*1024*1024)
	viper.SetDefault("ratelimit.upload_limit", 30)
	viper.SetDefault("ratelimit.upload_window", time.Hour)
	viper.SetDefault("pipeline.work_dir", "")
	viper.SetDefault("pipeline.concurrency", 4)
	viper.SetDefault("pipeline.recognize_timeout", 10*time.Minute)
	viper.SetDefault("pipeline.allow_bmp", false)
	viper.SetDefault("pipeline.max_entry_bytes", 100*1024*1024)
	viper.SetDefault("ocr.provider", "google")
	viper.SetDefault("ocr.languages", "")
	viper.SetDefault("ocr.max_image_bytes", 10*1024*1024)
	viper.SetDefault("ocr.max_image_edge", 4000)
	viper.SetDefault("ocr.google.endpoint", "")

	// Try to read config file (optional)
	_ = viper.ReadInConfig()

	cfg := &Config{
		Server: ServerConfig{
			Port:     viper.GetString("server.port"),
			Env:      viper.GetString("server.env"),
			LogLevel: viper.GetString("server.log_level"),
		},
		Redis: RedisConfig{
			Addr:     viper.GetString("redis.addr"),
			Password: viper.GetString("redis.password"),
			DB:       viper.GetInt("redis.db"),
		},
		Upload: UploadConfig{
			Dir:      viper.GetString("upload.dir"),
			MaxBytes: viper.GetInt64("upload.max_bytes"),
		},
		RateLimit: RateLimitConfig{
			UploadLimit:  viper.GetInt("ratelimit.upload_limit"),
			UploadWindow: viper.GetDuration("ratelimit.upload_window"),
		},
		Pipeline: PipelineConfig{
			WorkDir:          viper.GetString("pipeline.work_dir"),
			Concurrency:      viper.GetInt("pipeline.concurrency"),
			RecognizeTimeout: viper.GetDuration("pipeline.recognize_timeout"),
			AllowBMP:         viper.GetBool("pipeline.allow_bmp"),
			MaxEntryBytes:    viper.GetInt64("pipeline.max_entry_bytes"),
		},
		OCR: OCRConfig{
			Provider:      viper.GetString("ocr.provider"),
			Languages:     splitLanguages(viper.GetString("ocr.languages")),
			MaxImageBytes: viper.GetInt64("ocr.max_image_bytes"),
			MaxImageEdge:  viper.GetInt("ocr.max_image_edge"),
			Google: GoogleConfig{
				APIKey:   viper.GetString("ocr.google.api_key"),
				Endpoint: viper.GetString("ocr.google.endpoint"),
			},
		},
		Storage: StorageConfig{
			AccountID:       viper.GetString("storage.account_id"),
			AccessKeyID:     viper.GetString("storage.access_key_id"),
			SecretAccessKey: viper.GetString("storage.secret_access_key"),
			Bucket:          viper.GetString("storage.bucket"),
			PublicURL:       viper.GetString("storage.public_url"),
		},
	}

	return cfg, nil
}

// splitLanguages parses a comma-separated language list like "en,tr".
func splitLanguages(raw string) []string {
	if raw == "" {
		return nil
	}
	var langs []string
	for _, part := range strings.Split(raw, ",") {
		if lang := strings.TrimSpace(part); lang != "" {
			langs = append(langs, lang)
		}
	}
	return langs
}
