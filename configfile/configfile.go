// Package configfile reads and writes the file-based config format used by
// the standalone downloader: a document with an "rss" array of entries, in
// either TOML or JSON.
package configfile

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/robertmeta/trss-cli/model"
)

// Supported formats.
const (
	FormatTOML = "toml"
	FormatJSON = "json"
)

// File is the on-disk document.
type File struct {
	RSS []model.ConfigEntry `json:"rss" toml:"rss"`
}

// FormatOf picks the format from a file extension, defaulting to TOML.
func FormatOf(path string) string {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return FormatJSON
	}
	return FormatTOML
}

// Load reads the entries stored at path.
func Load(path string) ([]model.ConfigEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	entries, err := Decode(data, FormatOf(path))
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}
	return entries, nil
}

// Decode parses data in format. A zero in an optional numeric field means
// unset in this format and is normalized to nil.
func Decode(data []byte, format string) ([]model.ConfigEntry, error) {
	var f File
	switch format {
	case FormatTOML:
		if _, err := toml.Decode(string(data), &f); err != nil {
			return nil, fmt.Errorf("decode toml: %w", err)
		}
	case FormatJSON:
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("decode json: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown config format %q", format)
	}

	for i := range f.RSS {
		normalize(&f.RSS[i])
	}
	if f.RSS == nil {
		f.RSS = []model.ConfigEntry{}
	}
	return f.RSS, nil
}

// Write encodes entries to w in format.
func Write(w io.Writer, format string, entries []model.ConfigEntry) error {
	f := File{RSS: entries}
	switch format {
	case FormatTOML:
		var buf bytes.Buffer
		if err := toml.NewEncoder(&buf).Encode(f); err != nil {
			return fmt.Errorf("encode toml: %w", err)
		}
		_, err := w.Write(buf.Bytes())
		return err
	case FormatJSON:
		if f.RSS == nil {
			f.RSS = []model.ConfigEntry{}
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(f); err != nil {
			return fmt.Errorf("encode json: %w", err)
		}
		return nil
	}
	return fmt.Errorf("unknown config format %q", format)
}

func normalize(c *model.ConfigEntry) {
	for _, p := range []**int64{&c.Internal, &c.DownloadAfter, &c.ExpireTime, &c.FetchInterval} {
		if *p != nil && **p == 0 {
			*p = nil
		}
	}
}
