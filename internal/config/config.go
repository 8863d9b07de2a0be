package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// ErrMissingAPIKey is returned when no Gemini credential is configured.
// Every remote call authenticates with this single key, so the gateway
// refuses to start without it.
var ErrMissingAPIKey = errors.New("GEMINI_API_KEY is not set")

// Config contains all runtime settings for the iris gateway.
type Config struct {
	BindAddr                 string
	ShutdownTimeout          time.Duration
	SessionInactivityTimeout time.Duration
	MetricsNamespace         string

	AllowAnyOrigin bool

	GeminiAPIKey string

	ChatModel       string
	ImageModel      string
	ImageEditModel  string
	VideoModel      string
	SpeechModel     string
	TranscribeModel string
	LiveModel       string

	DefaultVoice      string
	VoicesFile        string
	SystemInstruction string

	ThinkingBudget int

	// Video generation jobs are polled at VideoPollInterval and abandoned
	// after VideoJobDeadline even if the remote job never settles.
	VideoPollInterval time.Duration
	VideoJobDeadline  time.Duration

	// Live audio wire shape: input is what clients send upstream, output is
	// what the model streams back.
	LiveInputSampleRate  int
	LiveOutputSampleRate int

	FirstAudioSLO time.Duration

	DatabaseURL string
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:                 envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace:         envOrDefault("APP_METRICS_NAMESPACE", "iris"),
		AllowAnyOrigin:           false,
		GeminiAPIKey:             trimmedEnv("GEMINI_API_KEY"),
		ChatModel:                envOrDefault("IRIS_CHAT_MODEL", "gemini-2.5-flash"),
		ImageModel:               envOrDefault("IRIS_IMAGE_MODEL", "imagen-4.0-generate-001"),
		ImageEditModel:           envOrDefault("IRIS_IMAGE_EDIT_MODEL", "gemini-2.5-flash-image"),
		VideoModel:               envOrDefault("IRIS_VIDEO_MODEL", "veo-3.0-generate-001"),
		SpeechModel:              envOrDefault("IRIS_SPEECH_MODEL", "gemini-2.5-flash-preview-tts"),
		TranscribeModel:          envOrDefault("IRIS_TRANSCRIBE_MODEL", "gemini-2.5-flash"),
		LiveModel:                envOrDefault("IRIS_LIVE_MODEL", "gemini-2.5-flash-native-audio-preview-09-2025"),
		DefaultVoice:             envOrDefault("IRIS_DEFAULT_VOICE", "Aoede"),
		VoicesFile:               trimmedEnv("IRIS_VOICES_FILE"),
		SystemInstruction:        trimmedEnv("IRIS_SYSTEM_INSTRUCTION"),
		ThinkingBudget:           0,
		VideoPollInterval:        10 * time.Second,
		VideoJobDeadline:         10 * time.Minute,
		LiveInputSampleRate:      16000,
		LiveOutputSampleRate:     24000,
		FirstAudioSLO:            700 * time.Millisecond,
		DatabaseURL:              trimmedEnv("DATABASE_URL"),
		ShutdownTimeout:          15 * time.Second,
		SessionInactivityTimeout: 2 * time.Minute,
	}

	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.SessionInactivityTimeout, err = durationFromEnv("APP_SESSION_INACTIVITY_TIMEOUT", cfg.SessionInactivityTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.FirstAudioSLO, err = durationFromEnv("APP_FIRST_AUDIO_SLO", cfg.FirstAudioSLO)
	if err != nil {
		return Config{}, err
	}
	cfg.VideoPollInterval, err = durationFromEnv("IRIS_VIDEO_POLL_INTERVAL", cfg.VideoPollInterval)
	if err != nil {
		return Config{}, err
	}
	cfg.VideoJobDeadline, err = durationFromEnv("IRIS_VIDEO_JOB_DEADLINE", cfg.VideoJobDeadline)
	if err != nil {
		return Config{}, err
	}
	cfg.ThinkingBudget, err = intFromEnv("IRIS_THINKING_BUDGET", cfg.ThinkingBudget)
	if err != nil {
		return Config{}, err
	}
	cfg.LiveInputSampleRate, err = intFromEnv("IRIS_LIVE_INPUT_SAMPLE_RATE", cfg.LiveInputSampleRate)
	if err != nil {
		return Config{}, err
	}
	cfg.LiveOutputSampleRate, err = intFromEnv("IRIS_LIVE_OUTPUT_SAMPLE_RATE", cfg.LiveOutputSampleRate)
	if err != nil {
		return Config{}, err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}

	if cfg.GeminiAPIKey == "" {
		return Config{}, ErrMissingAPIKey
	}
	if cfg.SessionInactivityTimeout < 5*time.Second {
		return Config{}, fmt.Errorf("APP_SESSION_INACTIVITY_TIMEOUT must be at least 5s")
	}
	if cfg.VideoPollInterval < time.Second {
		return Config{}, fmt.Errorf("IRIS_VIDEO_POLL_INTERVAL must be at least 1s")
	}
	if cfg.VideoJobDeadline < cfg.VideoPollInterval {
		return Config{}, fmt.Errorf("IRIS_VIDEO_JOB_DEADLINE must be at least the poll interval")
	}
	if cfg.ThinkingBudget < 0 {
		return Config{}, fmt.Errorf("IRIS_THINKING_BUDGET must be >= 0")
	}
	if cfg.LiveInputSampleRate <= 0 || cfg.LiveOutputSampleRate <= 0 {
		return Config{}, fmt.Errorf("live sample rates must be positive")
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func trimmedEnv(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := trimmedEnv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := trimmedEnv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(trimmedEnv(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
