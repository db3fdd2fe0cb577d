// Package config loads runtime settings from the environment and the
// preset tables used by the export pipeline.
package config

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"time"
)

// Config holds process-level settings. Request-level options (format,
// quality, dimensions) are chosen per export and live in engine.Request.
type Config struct {
	InputPath   string
	OutputDir   string
	PresetsPath string

	Workers        int           // concurrent image fetches per export
	ImageTimeout   time.Duration // per-image fetch budget
	FetchRate      float64       // remote fetches per second, 0 disables limiting
	MaxImageBytes  int64
	UserAgent      string
	DefaultBg      string
	WatermarkText  string
	WatermarkURL   string
	MemoryHeadroom float64 // share of available memory a raster may take
	CropFocus      string  // "contrast" or "center"
	LogLevel       string
	ShowStats      bool
	BuildVersion   string

	// OTEL settings. An empty endpoint keeps telemetry off.
	OTELEndpoint string
	OTELInsecure bool
	ServiceName  string
}

// Load reads MOODBOARD_* variables with defaults and validates the result.
func Load() (Config, error) {
	cfg := Config{
		InputPath:      envStr("MOODBOARD_INPUT", ""),
		OutputDir:      envStr("MOODBOARD_OUTPUT_DIR", "output"),
		PresetsPath:    envStr("MOODBOARD_PRESETS", ""),
		Workers:        envInt("MOODBOARD_WORKERS", runtime.NumCPU()),
		ImageTimeout:   envDuration("MOODBOARD_IMAGE_TIMEOUT", 15*time.Second),
		FetchRate:      envFloat("MOODBOARD_FETCH_RATE", 8),
		MaxImageBytes:  int64(envInt("MOODBOARD_MAX_IMAGE_BYTES", 25<<20)),
		UserAgent:      envStr("MOODBOARD_USER_AGENT", "moodboard-export/1.0"),
		DefaultBg:      envStr("MOODBOARD_BACKGROUND", "#ffffff"),
		WatermarkText:  envStr("MOODBOARD_WATERMARK_TEXT", "Mood Board Generator"),
		WatermarkURL:   envStr("MOODBOARD_WATERMARK_URL", ""),
		MemoryHeadroom: envFloat("MOODBOARD_MEMORY_HEADROOM", 0.5),
		CropFocus:      envStr("MOODBOARD_CROP_FOCUS", "contrast"),
		LogLevel:       envStr("MOODBOARD_LOG_LEVEL", "info"),
		ShowStats:      envBool("MOODBOARD_STATS", false),
		BuildVersion:   envStr("MOODBOARD_BUILD", "dev"),
		OTELEndpoint:   envStr("MOODBOARD_OTEL_ENDPOINT", ""),
		OTELInsecure:   envBool("MOODBOARD_OTEL_INSECURE", false),
		ServiceName:    envStr("OTEL_SERVICE_NAME", "moodboard"),
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.OutputDir == "" {
		return fmt.Errorf("config: MOODBOARD_OUTPUT_DIR is required")
	}
	if c.Workers <= 0 {
		return fmt.Errorf("config: MOODBOARD_WORKERS must be positive")
	}
	if c.ImageTimeout <= 0 {
		return fmt.Errorf("config: MOODBOARD_IMAGE_TIMEOUT must be positive")
	}
	if c.FetchRate < 0 {
		return fmt.Errorf("config: MOODBOARD_FETCH_RATE must not be negative")
	}
	if c.MaxImageBytes <= 0 {
		return fmt.Errorf("config: MOODBOARD_MAX_IMAGE_BYTES must be positive")
	}
	if c.MemoryHeadroom <= 0 || c.MemoryHeadroom > 1 {
		return fmt.Errorf("config: MOODBOARD_MEMORY_HEADROOM must be within (0,1]")
	}
	switch c.CropFocus {
	case "contrast", "center":
	default:
		return fmt.Errorf("config: MOODBOARD_CROP_FOCUS must be contrast or center")
	}
	return nil
}

func envStr(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultVal
}

func envFloat(key string, defaultVal float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func envBool(key string, defaultVal bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultVal
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}
