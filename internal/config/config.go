package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"shopfloor/internal/domain"
)

// Config models shopfloor.yml. It is stored in the DB per site and can be
// imported from a file.
type Config struct {
	Site struct {
		ID       string `yaml:"id"`
		Name     string `yaml:"name"`
		Timezone string `yaml:"timezone"`
	} `yaml:"site"`
	Attendance struct {
		// LateGraceMinutes is the tolerance applied to planned_start before a
		// clock-in counts as late.
		LateGraceMinutes int `yaml:"late_grace_minutes"`
	} `yaml:"attendance"`
	Points struct {
		Catalog map[string]struct {
			Description string `yaml:"description"`
		} `yaml:"catalog"`
	} `yaml:"points"`
	Reports struct {
		DefaultWindowDays int `yaml:"default_window_days"`
	} `yaml:"reports"`
}

// Default returns the seed config for a site.
func Default(siteID string) *Config {
	c := &Config{}
	c.Site.ID = siteID
	c.Site.Name = siteID
	c.Site.Timezone = "UTC"
	c.Attendance.LateGraceMinutes = 15
	c.Points.Catalog = map[string]struct {
		Description string `yaml:"description"`
	}{
		string(domain.PointEntrance):  {Description: "Main entrance"},
		string(domain.PointExit):      {Description: "Main exit"},
		string(domain.PointBreakArea): {Description: "Break area"},
		string(domain.PointLunch):     {Description: "Lunch room"},
	}
	c.Reports.DefaultWindowDays = 7
	return c
}

// Load reads and validates config from the workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; import with sf config import --file <path>", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// Path returns the on-disk config path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "shopfloor.yml")
}

// FromYAML parses and validates a config document.
func FromYAML(data []byte) (*Config, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var c Config
	if err := dec.Decode(&c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// ToYAML serializes the config.
func (c *Config) ToYAML() ([]byte, error) {
	return yaml.Marshal(c)
}

var knownPointTypes = map[string]bool{
	string(domain.PointEntrance):  true,
	string(domain.PointExit):      true,
	string(domain.PointBreakArea): true,
	string(domain.PointLunch):     true,
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Site.ID == "" {
		return fmt.Errorf("config.site.id is required")
	}
	if c.Attendance.LateGraceMinutes < 0 {
		return fmt.Errorf("config.attendance.late_grace_minutes must be >= 0")
	}
	for t := range c.Points.Catalog {
		if !knownPointTypes[t] {
			return fmt.Errorf("config.points.catalog contains unknown point type %s", t)
		}
	}
	if c.Reports.DefaultWindowDays < 0 {
		return fmt.Errorf("config.reports.default_window_days must be >= 0")
	}
	return nil
}
