package formats

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v2"
)

const (
	// DefaultFormatID is used when a download request does not name a format.
	DefaultFormatID = "best[height<=720]"
	// AudioFormatID selects audio-only output converted to MP3.
	AudioFormatID = "bestaudio"
)

// Format is one downloadable option offered to clients.
type Format struct {
	FormatID string `json:"formatId" yaml:"format_id"`
	Quality  string `json:"quality" yaml:"quality"`
	Type     string `json:"type" yaml:"type"`
	Ext      string `json:"ext" yaml:"ext"`
	// Transcode marks formats that need the external transcoder.
	Transcode bool `json:"-" yaml:"transcode"`
}

// Catalog is the list of formats offered by the video info endpoint.
type Catalog struct {
	formats []Format
}

// Default returns the built-in catalog. Extractor-side format listings are
// not used because some sites refuse them to unauthenticated clients.
func Default() *Catalog {
	return &Catalog{formats: []Format{
		{FormatID: "best[height<=720]", Quality: "720p HD", Type: "video+audio", Ext: "mp4"},
		{FormatID: "best[height<=480]", Quality: "480p", Type: "video+audio", Ext: "mp4"},
		{FormatID: "worst[height>=240]", Quality: "360p", Type: "video+audio", Ext: "mp4"},
		{FormatID: AudioFormatID, Quality: "Best Audio (MP3)", Type: "audio", Ext: "mp3", Transcode: true},
	}}
}

type catalogFile struct {
	Formats []Format `yaml:"formats"`
}

// Load reads a catalog from a YAML file. An empty path returns the default
// catalog.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default(), nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open formats file: %w", err)
	}
	defer f.Close()

	var cf catalogFile
	if err := yaml.NewDecoder(f).Decode(&cf); err != nil {
		return nil, fmt.Errorf("failed to decode formats file: %w", err)
	}

	if len(cf.Formats) == 0 {
		return nil, errors.New("formats file lists no formats")
	}

	for i, ft := range cf.Formats {
		if strings.TrimSpace(ft.FormatID) == "" {
			return nil, fmt.Errorf("format %d has no format_id", i)
		}
	}

	return &Catalog{formats: cf.Formats}, nil
}

// List returns a copy of the offered formats.
func (c *Catalog) List() []Format {
	out := make([]Format, len(c.formats))
	copy(out, c.formats)

	return out
}

// NeedsTranscoding reports whether a request for formatID with the given
// quality label produces audio that must be converted by the transcoder.
func (c *Catalog) NeedsTranscoding(formatID, quality string) bool {
	if formatID == AudioFormatID || strings.Contains(strings.ToUpper(quality), "MP3") {
		return true
	}

	for _, ft := range c.formats {
		if ft.FormatID == formatID {
			return ft.Transcode
		}
	}

	return false
}
