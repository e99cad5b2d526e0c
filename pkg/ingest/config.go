package ingest

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from YAML strings like "1s"
// or "24h".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Config describes one ingestion run.
type Config struct {
	// SourceURLTemplate is the download URL with a {title} placeholder,
	// replaced by the zero-padded title number.
	SourceURLTemplate string `yaml:"source_url_template"`

	// Titles lists the title numbers to ingest, e.g. ["1", "18", "42"].
	Titles []string `yaml:"titles"`

	// CacheDir is the download cache directory. Empty disables caching.
	CacheDir string `yaml:"cache_dir"`

	// CacheTTL is how long cached downloads stay fresh. Default: 24h.
	CacheTTL Duration `yaml:"cache_ttl"`

	// RateLimit is the minimum interval between downloads. Default: 1s.
	RateLimit Duration `yaml:"rate_limit"`

	// DatabasePath is the SQLite file receiving the node hierarchy.
	DatabasePath string `yaml:"database_path"`

	// BatchSize is how many nodes are written per store call. Default: 50.
	BatchSize int `yaml:"batch_size"`

	// UserAgent overrides the HTTP User-Agent header.
	UserAgent string `yaml:"user_agent"`
}

// DefaultConfig returns a Config with the standard release-point template
// and default timing.
func DefaultConfig() Config {
	return Config{
		SourceURLTemplate: "https://uscode.house.gov/download/releasepoints/us/pl/119/4/xml_usc{title}@119-4.zip",
		CacheTTL:          Duration(24 * time.Hour),
		RateLimit:         Duration(1 * time.Second),
		DatabasePath:      "uscode.db",
		BatchSize:         50,
	}
}

// LoadConfig reads a YAML config file, filling unset fields from
// DefaultConfig.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, &config); err != nil {
		return Config{}, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	if err := config.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return config, nil
}

// Validate reports the first problem that would make the run unusable.
func (c Config) Validate() error {
	if c.SourceURLTemplate == "" {
		return fmt.Errorf("source_url_template is required")
	}
	if !strings.Contains(c.SourceURLTemplate, "{title}") {
		return fmt.Errorf("source_url_template must contain a {title} placeholder")
	}
	if len(c.Titles) == 0 {
		return fmt.Errorf("at least one title is required")
	}
	if c.DatabasePath == "" {
		return fmt.Errorf("database_path is required")
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch_size must be positive")
	}
	return nil
}

// URLFor expands the source template for one title. Title numbers are
// zero-padded to two digits the way the house.gov filenames are
// ("1" -> "01", "5a" -> "05a", "42" -> "42").
func (c Config) URLFor(titleNum string) string {
	return strings.ReplaceAll(c.SourceURLTemplate, "{title}", padTitleNum(titleNum))
}

func padTitleNum(titleNum string) string {
	digits := 0
	for digits < len(titleNum) && titleNum[digits] >= '0' && titleNum[digits] <= '9' {
		digits++
	}
	if digits == 1 {
		return "0" + titleNum
	}
	return titleNum
}
