// Package config provides configuration helpers and TOML parsing.
package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// FileConfig represents the TOML configuration file.
type FileConfig struct {
	Paths     PathsConfig     `toml:"paths"`
	Capture   CaptureConfig   `toml:"capture"`
	Composite CompositeConfig `toml:"composite"`
	Player    PlayerConfig    `toml:"player"`
	Logging   LoggingConfig   `toml:"logging"`
}

// PathsConfig maps the life-log roots.
type PathsConfig struct {
	Photos      *string `toml:"photos"`
	Screenshots *string `toml:"screenshots"`
	Output      *string `toml:"output"`
}

// CaptureConfig maps file naming conventions of the capture side.
type CaptureConfig struct {
	Display1Tag   *string `toml:"display1_tag"`
	Display2Tag   *string `toml:"display2_tag"`
	ScreenshotExt *string `toml:"screenshot_ext"`
	CameraExt     *string `toml:"camera_ext"`
}

// CompositeConfig maps composite run settings.
type CompositeConfig struct {
	IncludeCamera *bool   `toml:"include_camera"`
	Threads       *int    `toml:"threads"`
	BatchSize     *int    `toml:"batch_size"`
	ShapePolicy   *string `toml:"shape_policy"`
	TargetWidth   *int    `toml:"target_width"`
	TargetHeight  *int    `toml:"target_height"`
}

// PlayerConfig maps frame player settings.
type PlayerConfig struct {
	Addr      *string `toml:"addr"`
	CacheSize *int    `toml:"cache_size"`
}

// LoggingConfig maps logging settings.
type LoggingConfig struct {
	Level  *string `toml:"level"`
	Format *string `toml:"format"`
}

// LoadConfig reads a TOML config from the given path. Missing file is not an error.
func LoadConfig(path string) (FileConfig, error) {
	if path == "" {
		return FileConfig{}, fmt.Errorf("config path is empty")
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return FileConfig{}, nil
		}
		return FileConfig{}, fmt.Errorf("failed to stat config: %w", err)
	}
	var cfg FileConfig
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return FileConfig{}, fmt.Errorf("failed to decode config: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return FileConfig{}, fmt.Errorf("unknown config key %q", undecoded[0].String())
	}
	return cfg, nil
}
