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
	filePath := os.Getenv(envKey + "_FILE")
	if filePath == "" {
		return
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return
	}
	os.Setenv(envKey, strings.TrimSpace(string(data)))
}

type Config struct {
	Server     ServerConfig
	Redis      RedisConfig
	JWT        JWTConfig
	OIDC       OIDCConfig
	Gateway    GatewayConfig
	RateLimit  RateLimitConfig
	Generation GenerationConfig
	Vision     VisionConfig
	Storage    StorageConfig
	Media      MediaConfig
	Worker     WorkerConfig
	Upload     UploadConfig
	Video      VideoConfig
}

type ServerConfig struct {
	Port      string
	Env       string
	LogLevel  string
	ApiDomain string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type JWTConfig struct {
	Secret     string
	Expiration int // hours
}

type OIDCConfig struct {
	Issuer   string
	ClientID string
}

type GatewayConfig struct {
	Enabled bool
}

type RateLimitConfig struct {
	GeneratePerHour int
	TourPerHour     int
	UploadPerHour   int
}

// GenerationConfig configures the image-to-video task API.
type GenerationConfig struct {
	APIKey            string
	BaseURL           string
	Model             string
	Mode              string
	PollInterval      time.Duration
	PollTimeout       time.Duration
	MaxAttempts       int
	RetryDelay        time.Duration
	RequestsPerSecond float64
}

type VisionConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

// StorageConfig selects between Cloudflare R2 and AWS S3.
type StorageConfig struct {
	Type            string // "r2" or "s3"
	Bucket          string
	Region          string
	AccountID       string
	AccessKeyID     string
	SecretAccessKey string
	PublicURL       string
}

type MediaConfig struct {
	FFmpegPath       string
	FFprobePath      string
	WorkDir          string
	Quality          int // x264 crf
	FontFile         string
	OverlaySeconds   int
	EndScreenSeconds int
}

type WorkerConfig struct {
	Concurrency int
}

type UploadConfig struct {
	MaxFileSize int64
	MaxFiles    int
}

type VideoConfig struct {
	Duration int // seconds per generated clip
}

func Load() (*Config, error) {
	// Read Docker Swarm secrets from _FILE env vars before Viper binds
	readSecret("REDIS_PASSWORD")
	readSecret("JWT_SECRET")
	readSecret("KIE_API_KEY")
	readSecret("OPENAI_API_KEY")
	readSecret("STORAGE_ACCESS_KEY_ID")
	readSecret("STORAGE_SECRET_ACCESS_KEY")

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.AutomaticEnv()

	_ = v.BindEnv("server.port", "PORT")
	_ = v.BindEnv("server.env", "SERVER_ENV")
	_ = v.BindEnv("server.log_level", "LOG_LEVEL")
	_ = v.BindEnv("server.api_domain", "API_DOMAIN")
	_ = v.BindEnv("redis.addr", "REDIS_ADDR")
	_ = v.BindEnv("redis.password", "REDIS_PASSWORD")
	_ = v.BindEnv("redis.db", "REDIS_DB")
	_ = v.BindEnv("jwt.secret", "JWT_SECRET")
	_ = v.BindEnv("jwt.expiration", "JWT_EXPIRATION")
	_ = v.BindEnv("oidc.issuer", "OIDC_ISSUER")
	_ = v.BindEnv("oidc.client_id", "OIDC_CLIENT_ID")
	_ = v.BindEnv("gateway.enabled", "GATEWAY_ENABLED")
	_ = v.BindEnv("ratelimit.generate_per_hour", "RATE_LIMIT_GENERATE_PER_HOUR")
	_ = v.BindEnv("ratelimit.tour_per_hour", "RATE_LIMIT_TOUR_PER_HOUR")
	_ = v.BindEnv("ratelimit.upload_per_hour", "RATE_LIMIT_UPLOAD_PER_HOUR")
	_ = v.BindEnv("generation.api_key", "KIE_API_KEY")
	_ = v.BindEnv("generation.base_url", "KIE_API_URL")
	_ = v.BindEnv("generation.model", "KIE_MODEL")
	_ = v.BindEnv("generation.mode", "KIE_MODE")
	_ = v.BindEnv("generation.poll_interval", "GENERATION_POLL_INTERVAL")
	_ = v.BindEnv("generation.poll_timeout", "GENERATION_POLL_TIMEOUT")
	_ = v.BindEnv("generation.max_attempts", "GENERATION_MAX_ATTEMPTS")
	_ = v.BindEnv("generation.retry_delay", "GENERATION_RETRY_DELAY")
	_ = v.BindEnv("generation.requests_per_second", "GENERATION_RPS")
	_ = v.BindEnv("vision.api_key", "OPENAI_API_KEY")
	_ = v.BindEnv("vision.base_url", "OPENAI_BASE_URL")
	_ = v.BindEnv("vision.model", "VISION_MODEL")
	_ = v.BindEnv("storage.type", "STORAGE_TYPE")
	_ = v.BindEnv("storage.bucket", "STORAGE_BUCKET")
	_ = v.BindEnv("storage.region", "STORAGE_REGION")
	_ = v.BindEnv("storage.account_id", "R2_ACCOUNT_ID")
	_ = v.BindEnv("storage.access_key_id", "STORAGE_ACCESS_KEY_ID")
	_ = v.BindEnv("storage.secret_access_key", "STORAGE_SECRET_ACCESS_KEY")
	_ = v.BindEnv("storage.public_url", "R2_PUBLIC_URL")
	_ = v.BindEnv("media.ffmpeg_path", "FFMPEG_PATH")
	_ = v.BindEnv("media.ffprobe_path", "FFPROBE_PATH")
	_ = v.BindEnv("media.work_dir", "MEDIA_WORK_DIR")
	_ = v.BindEnv("media.quality", "VIDEO_QUALITY")
	_ = v.BindEnv("media.font_file", "OVERLAY_FONT_FILE")
	_ = v.BindEnv("worker.concurrency", "WORKER_CONCURRENCY")
	_ = v.BindEnv("upload.max_file_size", "MAX_FILE_SIZE")
	_ = v.BindEnv("upload.max_files", "MAX_FILES")
	_ = v.BindEnv("video.duration", "VIDEO_DURATION")

	// Defaults
	v.SetDefault("server.port", "3001")
	v.SetDefault("server.env", "development")
	v.SetDefault("server.log_level", "info")
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("jwt.secret", "change-me-in-production")
	v.SetDefault("jwt.expiration", 24)
	v.SetDefault("gateway.enabled", false)
	v.SetDefault("ratelimit.generate_per_hour", 60)
	v.SetDefault("ratelimit.tour_per_hour", 10)
	v.SetDefault("ratelimit.upload_per_hour", 30)

	// Generation defaults
	v.SetDefault("generation.base_url", "https://api.kie.ai/api/v1")
	v.SetDefault("generation.model", "grok-imagine/image-to-video")
	v.SetDefault("generation.mode", "normal")
	v.SetDefault("generation.poll_interval", 10*time.Second)
	v.SetDefault("generation.poll_timeout", 5*time.Minute)
	v.SetDefault("generation.max_attempts", 3)
	v.SetDefault("generation.retry_delay", 5*time.Second)
	v.SetDefault("generation.requests_per_second", 2.0)

	v.SetDefault("vision.base_url", "https://api.openai.com/v1")
	v.SetDefault("vision.model", "gpt-5-nano")

	v.SetDefault("storage.type", "r2")
	v.SetDefault("storage.region", "auto")

	// Media defaults
	v.SetDefault("media.ffmpeg_path", "ffmpeg")
	v.SetDefault("media.ffprobe_path", "ffprobe")
	v.SetDefault("media.work_dir", "./uploads")
	v.SetDefault("media.quality", 16)
	v.SetDefault("media.overlay_seconds", 3)
	v.SetDefault("media.end_screen_seconds", 3)

	v.SetDefault("worker.concurrency", 1)
	v.SetDefault("upload.max_file_size", 10*1024*1024)
	v.SetDefault("upload.max_files", 15)
	v.SetDefault("video.duration", 6)

	// Try to read config file (optional)
	_ = v.ReadInConfig()

	cfg := &Config{
		Server: ServerConfig{
			Port:      v.GetString("server.port"),
			Env:       v.GetString("server.env"),
			LogLevel:  v.GetString("server.log_level"),
			ApiDomain: v.GetString("server.api_domain"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("redis.addr"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		JWT: JWTConfig{
			Secret:     v.GetString("jwt.secret"),
			Expiration: v.GetInt("jwt.expiration"),
		},
		OIDC: OIDCConfig{
			Issuer:   v.GetString("oidc.issuer"),
			ClientID: v.GetString("oidc.client_id"),
		},
		Gateway: GatewayConfig{
			Enabled: v.GetBool("gateway.enabled"),
		},
		RateLimit: RateLimitConfig{
			GeneratePerHour: v.GetInt("ratelimit.generate_per_hour"),
			TourPerHour:     v.GetInt("ratelimit.tour_per_hour"),
			UploadPerHour:   v.GetInt("ratelimit.upload_per_hour"),
		},
		Generation: GenerationConfig{
			APIKey:            v.GetString("generation.api_key"),
			BaseURL:           strings.TrimRight(v.GetString("generation.base_url"), "/"),
			Model:             v.GetString("generation.model"),
			Mode:              v.GetString("generation.mode"),
			PollInterval:      v.GetDuration("generation.poll_interval"),
			PollTimeout:       v.GetDuration("generation.poll_timeout"),
			MaxAttempts:       v.GetInt("generation.max_attempts"),
			RetryDelay:        v.GetDuration("generation.retry_delay"),
			RequestsPerSecond: v.GetFloat64("generation.requests_per_second"),
		},
		Vision: VisionConfig{
			APIKey:  v.GetString("vision.api_key"),
			BaseURL: v.GetString("vision.base_url"),
			Model:   v.GetString("vision.model"),
		},
		Storage: StorageConfig{
			Type:            strings.ToLower(v.GetString("storage.type")),
			Bucket:          v.GetString("storage.bucket"),
			Region:          v.GetString("storage.region"),
			AccountID:       v.GetString("storage.account_id"),
			AccessKeyID:     v.GetString("storage.access_key_id"),
			SecretAccessKey: v.GetString("storage.secret_access_key"),
			PublicURL:       strings.TrimRight(v.GetString("storage.public_url"), "/"),
		},
		Media: MediaConfig{
			FFmpegPath:       v.GetString("media.ffmpeg_path"),
			FFprobePath:      v.GetString("media.ffprobe_path"),
			WorkDir:          v.GetString("media.work_dir"),
			Quality:          v.GetInt("media.quality"),
			FontFile:         v.GetString("media.font_file"),
			OverlaySeconds:   v.GetInt("media.overlay_seconds"),
			EndScreenSeconds: v.GetInt("media.end_screen_seconds"),
		},
		Worker: WorkerConfig{
			Concurrency: v.GetInt("worker.concurrency"),
		},
		Upload: UploadConfig{
			MaxFileSize: v.GetInt64("upload.max_file_size"),
			MaxFiles:    v.GetInt("upload.max_files"),
		},
		Video: VideoConfig{
			Duration: v.GetInt("video.duration"),
		},
	}

	return cfg, nil
}
