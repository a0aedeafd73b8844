package transcoder

import (
	"context"
	"os/exec"
	"time"

	"github.com/italolelis/video_downloader/internal/logctx"
)

const checkTimeout = 5 * time.Second

// DefaultSearchPath lists the ffmpeg locations checked at startup, in order.
var DefaultSearchPath = []string{
	"/usr/bin/ffmpeg",
	"/usr/local/bin/ffmpeg",
	"ffmpeg",
}

// Transcoder describes the external media transcoder discovered at startup.
// The zero value means no transcoder is available.
type Transcoder struct {
	path string
}

// Checker runs a candidate binary and reports whether it is usable.
type Checker func(ctx context.Context, path string) error

// Discover returns the first candidate in searchPath that answers -version.
func Discover(ctx context.Context, searchPath []string) *Transcoder {
	return discover(ctx, searchPath, checkBinary)
}

func discover(ctx context.Context, searchPath []string, check Checker) *Transcoder {
	logger := logctx.LoggerFromContext(ctx)

	for _, candidate := range searchPath {
		if candidate == "" {
			continue
		}

		if err := check(ctx, candidate); err != nil {
			logger.Debug("transcoder candidate rejected", "path", candidate, "err", err)

			continue
		}

		logger.Info("transcoder found", "path", candidate)

		return &Transcoder{path: candidate}
	}

	logger.Warn("no transcoder found, audio conversion disabled", "search_path", searchPath)

	return &Transcoder{}
}

// Available reports whether a usable transcoder was found.
func (t *Transcoder) Available() bool {
	return t != nil && t.path != ""
}

// Path returns the transcoder location, or an empty string when unavailable.
func (t *Transcoder) Path() string {
	if t == nil {
		return ""
	}

	return t.path
}

// Static returns a transcoder at a fixed path without checking it. An empty path
// yields an unavailable transcoder.
func Static(path string) *Transcoder {
	return &Transcoder{path: path}
}

func checkBinary(ctx context.Context, path string) error {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	return exec.CommandContext(ctx, path, "-version").Run()
}
