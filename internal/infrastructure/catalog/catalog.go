package catalog

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"

	"github.com/wingskh/live-stream-tester/internal/core/domain"
	"github.com/wingskh/live-stream-tester/pkg/validation"
)

// Entry is the configured sample source for one format.
type Entry struct {
	Primary string   `yaml:"primary"`
	Backups []string `yaml:"backups"`
}

// Catalog maps formats to their sample URLs. Formats absent from the file
// are simply not testable in a sweep.
type Catalog struct {
	entries map[domain.StreamFormat]Entry
}

// Load reads a catalog file of the form:
//
//	hls:
//	  primary: https://example.com/live.m3u8
//	  backups:
//	    - https://backup.example.com/live.m3u8
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog file: %w", err)
	}
	return Parse(data)
}

// Parse builds a catalog from raw YAML. Unknown format keys and entries with
// invalid URLs are rejected.
func Parse(data []byte) (*Catalog, error) {
	var raw map[string]Entry
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}

	entries := make(map[domain.StreamFormat]Entry, len(raw))
	for key, entry := range raw {
		format, err := domain.ParseFormat(key)
		if err != nil {
			return nil, fmt.Errorf("catalog entry %q: %w", key, err)
		}
		if entry.Primary == "" {
			return nil, fmt.Errorf("catalog entry %q: primary URL is required", key)
		}
		if err := validation.ValidateStreamURL(entry.Primary); err != nil {
			return nil, fmt.Errorf("catalog entry %q: %w", key, err)
		}
		if err := validation.ValidateBackupURLs(entry.Backups); err != nil {
			return nil, fmt.Errorf("catalog entry %q: %w", key, err)
		}
		entries[format] = entry
	}
	return &Catalog{entries: entries}, nil
}

// Empty returns a catalog with no entries.
func Empty() *Catalog {
	return &Catalog{entries: map[domain.StreamFormat]Entry{}}
}

// Lookup implements ports.SampleCatalog.
func (c *Catalog) Lookup(format domain.StreamFormat) (string, []string, bool) {
	entry, ok := c.entries[format]
	if !ok {
		return "", nil, false
	}
	return entry.Primary, entry.Backups, true
}

// Formats returns how many formats have a configured sample.
func (c *Catalog) Formats() int {
	return len(c.entries)
}
