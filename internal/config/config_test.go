package config

import (
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(home, "Downloads", "VideoDownloader"), cfg.DownloadDir)
	assert.Equal(t, "INFO", cfg.LogLevel)
	assert.Equal(t, []string{"/usr/bin/ffmpeg", "/usr/local/bin/ffmpeg", "ffmpeg"}, cfg.TranscoderSearchPath)
	assert.Equal(t, uint(1), cfg.ExtractorMaxTries)
	assert.Equal(t, 500*time.Millisecond, cfg.ProgressInterval)
	assert.Equal(t, 32, cfg.RegistryShards)
	assert.Zero(t, cfg.DownloadTimeout)
	assert.Zero(t, cfg.JobRetention)
	assert.Zero(t, cfg.KeepDownloadedFor)
	assert.Equal(t, "downloads.db", cfg.DBPath)
	assert.Equal(t, []string{"*"}, cfg.CORSAllowedOrigins)
	assert.True(t, cfg.Telemetry.Enabled)
	assert.Equal(t, "video_downloader", cfg.Telemetry.ServiceName)
	assert.Equal(t, "127.0.0.1:5000", cfg.Web.BindAddress)
	assert.Equal(t, 30*time.Second, cfg.Web.ShutdownTimeout)

	assert.Contains(t, cfg.Extractor.UserAgent, "Chrome/120.0.0.0")
	assert.Equal(t, "https://www.youtube.com/", cfg.Extractor.Referer)
	assert.Equal(t, HeaderList{
		"Accept:text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
		"Accept-Language:en-us,en;q=0.5",
		"Accept-Encoding:gzip, deflate",
		"Accept-Charset:ISO-8859-1,utf-8;q=0.7,*;q=0.7",
		"Keep-Alive:300",
		"Connection:keep-alive",
	}, cfg.Extractor.Headers)
	assert.Equal(t, 1.0, cfg.Extractor.SleepInterval)
	assert.Equal(t, 5.0, cfg.Extractor.MaxSleepInterval)
	assert.Equal(t, "3", cfg.Extractor.Retries)
	assert.Equal(t, "3", cfg.Extractor.FragmentRetries)
}

func TestLoadConfig_ExtractorRequestOptions(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("EXTRACTOR_USER_AGENT", "curl/8.0")
	t.Setenv("EXTRACTOR_REFERER", "")
	t.Setenv("EXTRACTOR_HEADERS", "Accept-Language:de | X-Token:abc")
	t.Setenv("EXTRACTOR_SLEEP_INTERVAL", "0")
	t.Setenv("EXTRACTOR_MAX_SLEEP_INTERVAL", "2.5")
	t.Setenv("EXTRACTOR_RETRIES", "infinite")
	t.Setenv("EXTRACTOR_FRAGMENT_RETRIES", "10")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "curl/8.0", cfg.Extractor.UserAgent)
	assert.Empty(t, cfg.Extractor.Referer)
	assert.Equal(t, HeaderList{"Accept-Language:de", "X-Token:abc"}, cfg.Extractor.Headers)
	assert.Zero(t, cfg.Extractor.SleepInterval)
	assert.Equal(t, 2.5, cfg.Extractor.MaxSleepInterval)
	assert.Equal(t, "infinite", cfg.Extractor.Retries)
	assert.Equal(t, "10", cfg.Extractor.FragmentRetries)
}

func TestLoadConfig_InvalidHeader(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("EXTRACTOR_HEADERS", "Accept-Language:de|no-colon")

	_, err := LoadConfig()
	assert.Error(t, err)
}

func TestLoadConfig_NegativeSleepInterval(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("EXTRACTOR_SLEEP_INTERVAL", "-1")

	_, err := LoadConfig()
	assert.Error(t, err)
}

func TestLoadConfig_FromEnvironment(t *testing.T) {
	t.Setenv("DOWNLOAD_DIR", "/srv/videos")
	t.Setenv("EXTRACTOR_MAX_TRIES", "3")
	t.Setenv("DOWNLOAD_TIMEOUT", "15m")
	t.Setenv("CORS_ALLOWED_ORIGINS", "chrome-extension://abc,http://localhost:3000")
	t.Setenv("TELEMETRY_ENABLED", "false")
	t.Setenv("TELEMETRY_OTLP_ENDPOINT", "otel:4317")
	t.Setenv("WEB_BIND_ADDRESS", "0.0.0.0:8080")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "/srv/videos", cfg.DownloadDir)
	assert.Equal(t, uint(3), cfg.ExtractorMaxTries)
	assert.Equal(t, 15*time.Minute, cfg.DownloadTimeout)
	assert.Equal(t, []string{"chrome-extension://abc", "http://localhost:3000"}, cfg.CORSAllowedOrigins)
	assert.False(t, cfg.Telemetry.Enabled)
	assert.Equal(t, "otel:4317", cfg.Telemetry.OTLPEndpoint)
	assert.Equal(t, "0.0.0.0:8080", cfg.Web.BindAddress)
}

func TestLoadConfig_InvalidShards(t *testing.T) {
	t.Setenv("DOWNLOAD_DIR", t.TempDir())
	t.Setenv("REGISTRY_SHARDS", "0")

	_, err := LoadConfig()
	assert.ErrorContains(t, err, "REGISTRY_SHARDS")
}

func TestLoadConfig_InvalidDuration(t *testing.T) {
	t.Setenv("DOWNLOAD_DIR", t.TempDir())
	t.Setenv("CLEANUP_INTERVAL", "soon")

	_, err := LoadConfig()
	assert.Error(t, err)
}

func TestSlogLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"Warn":    slog.LevelWarn,
		"ERROR":   slog.LevelError,
		"verbose": slog.LevelInfo,
	}

	for in, want := range tests {
		cfg := Config{LogLevel: in}
		assert.Equal(t, want, cfg.SlogLevel(), in)
	}
}
