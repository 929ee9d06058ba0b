package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all environment-driven settings.
type Config struct {
	UploadDir      string
	ModelsDir      string
	DBPath         string
	HTTPPort       string
	EnginePath     string
	WebhookURL     string
	WebhookBotID   string
	AlertRecipient string
	Environment    string
	FFmpegPath     string
	FFmpegTimeout  time.Duration
	EnableAudio    bool
	EnableText     bool
	EnableWatcher  bool
	MaxUploadBytes int64
}

// Load reads configuration from environment and optional .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		UploadDir:      getenv("UPLOAD_DIR", "./temp_uploads"),
		ModelsDir:      getenv("MODELS_DIR", "./models"),
		DBPath:         getenv("DB_PATH", "./safety.db"),
		HTTPPort:       getenv("PORT", "8000"),
		EnginePath:     getenv("ENGINE_CONFIG", ""),
		WebhookURL:     getenv("ALERT_WEBHOOK_URL", ""),
		WebhookBotID:   getenv("ALERT_WEBHOOK_BOT_ID", ""),
		AlertRecipient: getenv("ALERT_RECIPIENT", "police@emergency.com"),
		Environment:    getenv("ENVIRONMENT", "local"),
		FFmpegPath:     getenv("FFMPEG_PATH", ""),
		FFmpegTimeout:  time.Duration(clampInt(getenvInt("FFMPEG_TIMEOUT_SECONDS", 15), 1, 120)) * time.Second,
		EnableAudio:    getenvBool("ENABLE_AUDIO_SCORING", true),
		EnableText:     getenvBool("ENABLE_TEXT_SCORING", true),
		EnableWatcher:  getenvBool("ENABLE_MODEL_WATCHER", true),
		MaxUploadBytes: int64(clampInt(getenvInt("MAX_UPLOAD_MB", 10), 1, 64)) << 20,
	}

	log.Printf("config: upload_dir=%s models_dir=%s db=%s env=%s", cfg.UploadDir, cfg.ModelsDir, cfg.DBPath, cfg.Environment)
	return cfg
}

func getenv(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func getenvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getenvBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func clampInt(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

// Now returns utc time helper for deterministic timestamps.
func Now() time.Time {
	return time.Now().UTC().Truncate(time.Second)
}
