// Package config loads the optional nexusbridge settings file and locates
// the Nexus API key.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/adrg/xdg"
	"gopkg.in/yaml.v3"
)

// appDirName is the directory under the user config root
const appDirName = "nexusbridge"

// Config holds global application settings
type Config struct {
	SevenZipPath   string `yaml:"seven_zip_path"`
	DefaultProfile string `yaml:"default_profile"`
	DownloadsDir   string `yaml:"downloads_dir"`
}

// Dir returns the user configuration directory for nexusbridge
func Dir() string {
	return filepath.Join(xdg.ConfigHome, appDirName)
}

// Load reads config.yaml from the nexusbridge config directory. A missing
// file yields defaults.
func Load() (*Config, error) {
	cfg := &Config{
		DefaultProfile: "Default",
	}

	data, err := os.ReadFile(filepath.Join(Dir(), "config.yaml"))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if cfg.DefaultProfile == "" {
		cfg.DefaultProfile = "Default"
	}
	return cfg, nil
}

// Save writes config.yaml to the nexusbridge config directory
func (c *Config) Save() error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.MkdirAll(Dir(), 0755); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}
	if err := os.WriteFile(filepath.Join(Dir(), "config.yaml"), data, 0644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

// FindAPIKey locates the Nexus API key: nexus_apikey.txt in the working
// directory first, then apikey.txt under the user config directory, then
// the NEXUS_APIKEY environment variable. Returns "" when none is found.
func FindAPIKey() string {
	if key := readKeyFile("nexus_apikey.txt"); key != "" {
		return key
	}
	if key := readKeyFile(filepath.Join(Dir(), "apikey.txt")); key != "" {
		return key
	}
	return strings.TrimSpace(os.Getenv("NEXUS_APIKEY"))
}

func readKeyFile(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}
