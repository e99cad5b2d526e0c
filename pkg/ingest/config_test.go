package ingest

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ingest.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
source_url_template: "https://example.gov/xml_usc{title}.zip"
titles: ["1", "18", "42"]
cache_dir: /tmp/usc-cache
cache_ttl: 48h
rate_limit: 250ms
database_path: /tmp/usc.db
batch_size: 100
`)
	config, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if len(config.Titles) != 3 || config.Titles[1] != "18" {
		t.Errorf("Titles = %v", config.Titles)
	}
	if time.Duration(config.RateLimit) != 250*time.Millisecond {
		t.Errorf("RateLimit = %v", time.Duration(config.RateLimit))
	}
	if time.Duration(config.CacheTTL) != 48*time.Hour {
		t.Errorf("CacheTTL = %v", time.Duration(config.CacheTTL))
	}
	if config.BatchSize != 100 {
		t.Errorf("BatchSize = %d", config.BatchSize)
	}
}

func TestLoadConfigAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
source_url_template: "https://example.gov/xml_usc{title}.zip"
titles: ["1"]
`)
	config, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if config.BatchSize != 50 {
		t.Errorf("BatchSize = %d, want default 50", config.BatchSize)
	}
	if time.Duration(config.RateLimit) != time.Second {
		t.Errorf("RateLimit = %v, want default 1s", time.Duration(config.RateLimit))
	}
	if config.DatabasePath == "" {
		t.Error("DatabasePath default missing")
	}
}

func TestLoadConfigValidation(t *testing.T) {
	tests := []struct {
		name     string
		contents string
		wantErr  string
	}{
		{
			name:     "missing titles",
			contents: `source_url_template: "https://example.gov/{title}.zip"`,
			wantErr:  "at least one title",
		},
		{
			name: "template without placeholder",
			contents: `
source_url_template: "https://example.gov/static.zip"
titles: ["1"]`,
			wantErr: "{title} placeholder",
		},
		{
			name: "bad duration",
			contents: `
source_url_template: "https://example.gov/{title}.zip"
titles: ["1"]
rate_limit: soon`,
			wantErr: "invalid duration",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, tt.contents)
			_, err := LoadConfig(path)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("err = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestURLForPadsTitles(t *testing.T) {
	config := Config{SourceURLTemplate: "https://example.gov/xml_usc{title}.zip"}
	tests := []struct {
		title string
		want  string
	}{
		{"1", "https://example.gov/xml_usc01.zip"},
		{"5a", "https://example.gov/xml_usc05a.zip"},
		{"42", "https://example.gov/xml_usc42.zip"},
	}
	for _, tt := range tests {
		if got := config.URLFor(tt.title); got != tt.want {
			t.Errorf("URLFor(%q) = %q, want %q", tt.title, got, tt.want)
		}
	}
}
