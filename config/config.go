package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Server
	Port      string
	TempDir   string
	OutputDir string

	// Encode settings
	VideoResolution string // WxH, e.g. "1080x1920"
	VideoPreset     string
	AudioBitrate    string

	// Subtitle style
	SubtitleFont     string
	SubtitleFontSize int

	// Concurrency limits
	MaxConcurrentRenders int // process-wide ffmpeg invocations
	MaxConcurrentScenes  int // per-job scene fan-out

	// Timeouts
	FFmpegTimeout time.Duration
	FetchTimeout  time.Duration
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	// Load .env file if exists
	_ = godotenv.Load()

	cfg := &Config{
		Port:      getEnv("PORT", "8080"),
		TempDir:   getEnv("TEMP_DIR", "./temp"),
		OutputDir: getEnv("OUTPUT_DIR", "./videos"),

		VideoResolution: getEnv("VIDEO_RESOLUTION", "1080x1920"),
		VideoPreset:     getEnv("VIDEO_PRESET", "veryfast"),
		AudioBitrate:    getEnv("AUDIO_BITRATE", "192k"),

		SubtitleFont:     getEnv("SUBTITLE_FONT", "Arial"),
		SubtitleFontSize: getEnvAsInt("SUBTITLE_FONT_SIZE", 48),

		MaxConcurrentRenders: getEnvAsInt("MAX_CONCURRENT_RENDERS", 2),
		MaxConcurrentScenes:  getEnvAsInt("MAX_CONCURRENT_SCENES", 4),

		FFmpegTimeout: time.Duration(getEnvAsInt("FFMPEG_TIMEOUT_SECONDS", 300)) * time.Second,
		FetchTimeout:  time.Duration(getEnvAsInt("FETCH_TIMEOUT_SECONDS", 120)) * time.Second,
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if configuration is valid
func (c *Config) Validate() error {
	if c.TempDir == "" {
		return errors.New("TEMP_DIR must not be empty")
	}
	if c.OutputDir == "" {
		return errors.New("OUTPUT_DIR must not be empty")
	}
	if c.MaxConcurrentRenders <= 0 {
		return errors.New("MAX_CONCURRENT_RENDERS must be positive")
	}
	if c.MaxConcurrentScenes <= 0 {
		return errors.New("MAX_CONCURRENT_SCENES must be positive")
	}
	if c.SubtitleFontSize <= 0 {
		return errors.New("SUBTITLE_FONT_SIZE must be positive")
	}
	if !validResolution(c.VideoResolution) {
		return fmt.Errorf("VIDEO_RESOLUTION %q is not WxH", c.VideoResolution)
	}
	return nil
}

func validResolution(res string) bool {
	var w, h int
	if _, err := fmt.Sscanf(res, "%dx%d", &w, &h); err != nil {
		return false
	}
	return w > 0 && h > 0
}

// Helper functions

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func (c *Config) String() string {
	return fmt.Sprintf("Config{Port: %s, TempDir: %s, OutputDir: %s, Resolution: %s, MaxRenders: %d}",
		c.Port, c.TempDir, c.OutputDir, c.VideoResolution, c.MaxConcurrentRenders)
}
