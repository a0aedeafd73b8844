package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config struct for environment variables.
type Config struct {
	DownloadDir          string        `envconfig:"DOWNLOAD_DIR"`
	LogLevel             string        `envconfig:"LOG_LEVEL" default:"INFO"`
	YtdlpPath            string        `envconfig:"YTDLP_PATH"`
	TranscoderSearchPath []string      `envconfig:"TRANSCODER_SEARCH_PATH" default:"/usr/bin/ffmpeg,/usr/local/bin/ffmpeg,ffmpeg"`
	FormatsFile          string        `envconfig:"FORMATS_FILE"`
	DownloadTimeout      time.Duration `envconfig:"DOWNLOAD_TIMEOUT" default:"0"`
	ExtractorMaxTries    uint          `envconfig:"EXTRACTOR_MAX_TRIES" default:"1"`
	ProgressInterval     time.Duration `envconfig:"PROGRESS_INTERVAL" default:"500ms"`
	RegistryShards       int           `envconfig:"REGISTRY_SHARDS" default:"32"`
	JobRetention         time.Duration `envconfig:"JOB_RETENTION" default:"0"`
	DBPath               string        `envconfig:"DB_PATH" default:"downloads.db"`
	KeepDownloadedFor    time.Duration `envconfig:"KEEP_DOWNLOADED_FOR" default:"0"`
	CleanupInterval      time.Duration `envconfig:"CLEANUP_INTERVAL" default:"10m"`
	DiscordWebhookURL    string        `envconfig:"DISCORD_WEBHOOK_URL"`
	CORSAllowedOrigins   []string      `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`

	Telemetry struct {
		Enabled      bool   `default:"true"`
		ServiceName  string `split_words:"true" default:"video_downloader"`
		OTLPEndpoint string `envconfig:"OTLP_ENDPOINT"`
	}

	Extractor struct {
		UserAgent        string     `split_words:"true" default:"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"`
		Referer          string     `default:"https://www.youtube.com/"`
		Headers          HeaderList `default:"Accept:text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8|Accept-Language:en-us,en;q=0.5|Accept-Encoding:gzip, deflate|Accept-Charset:ISO-8859-1,utf-8;q=0.7,*;q=0.7|Keep-Alive:300|Connection:keep-alive"`
		SleepInterval    float64    `split_words:"true" default:"1"`
		MaxSleepInterval float64    `split_words:"true" default:"5"`
		Retries          string     `default:"3"`
		FragmentRetries  string     `split_words:"true" default:"3"`
	}

	Web struct {
		BindAddress     string        `split_words:"true" default:"127.0.0.1:5000"`
		ReadTimeout     time.Duration `split_words:"true" default:"30s"`
		WriteTimeout    time.Duration `split_words:"true" default:"30s"`
		IdleTimeout     time.Duration `split_words:"true" default:"5s"`
		ShutdownTimeout time.Duration `split_words:"true" default:"30s"`
	}
}

// HeaderList is a list of "Field:Value" request headers separated by "|".
// Header values may contain commas, so the usual list separator is not used.
type HeaderList []string

func (h *HeaderList) Decode(value string) error {
	var headers HeaderList

	for _, part := range strings.Split(value, "|") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		if !strings.Contains(part, ":") {
			return fmt.Errorf("header %q is not in Field:Value form", part)
		}

		headers = append(headers, part)
	}

	*h = headers

	return nil
}

// LoadConfig reads an optional .env file and the environment, and populates
// the Config struct.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("error loading .env file: %w", err)
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("error processing env: %w", err)
	}

	if cfg.DownloadDir == "" {
		dir, err := defaultDownloadDir()
		if err != nil {
			return nil, err
		}

		cfg.DownloadDir = dir
	}

	if cfg.ExtractorMaxTries == 0 {
		cfg.ExtractorMaxTries = 1
	}

	if cfg.RegistryShards <= 0 {
		return nil, fmt.Errorf("REGISTRY_SHARDS must be positive, got %d", cfg.RegistryShards)
	}

	if cfg.Extractor.SleepInterval < 0 || cfg.Extractor.MaxSleepInterval < 0 {
		return nil, errors.New("EXTRACTOR_SLEEP_INTERVAL and EXTRACTOR_MAX_SLEEP_INTERVAL must not be negative")
	}

	return &cfg, nil
}

func defaultDownloadDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve home directory: %w", err)
	}

	return filepath.Join(home, "Downloads", "VideoDownloader"), nil
}

func (c *Config) SlogLevel() slog.Level {
	switch strings.ToUpper(c.LogLevel) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
