// Package config loads wallpaper settings from the XDG config file and
// merges them with command-line flags. Flags always win; the file supplies
// defaults for the options a user sets once and forgets.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

const appName = "wlvid"

// Config is the effective runtime configuration after merging the config
// file with the command line.
type Config struct {
	File          string  `mapstructure:"file"`
	Audio         bool    `mapstructure:"audio"`
	Volume        float64 `mapstructure:"volume"`
	FPS           int     `mapstructure:"fps"`
	FallbackGuard bool    `mapstructure:"fallback_guard"`
	Debug         bool    `mapstructure:"debug"`

	// Window reactions via the foreign-toplevel protocol. Pausing under a
	// fullscreen window is on by default; the rest are opt-in.
	PauseOnFullscreen bool `mapstructure:"pause_on_fullscreen"`
	PauseOnWindow     bool `mapstructure:"pause_on_window"`
	MuteOnWindow      bool `mapstructure:"mute_on_window"`
}

// ConfigDir returns $XDG_CONFIG_HOME/wlvid (default ~/.config/wlvid).
func ConfigDir() (string, error) {
	configHome := os.Getenv("XDG_CONFIG_HOME")
	if configHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		configHome = filepath.Join(home, ".config")
	}
	return filepath.Join(configHome, appName), nil
}

// Load reads the config file and merges it under any flag bindings the CLI
// set up, so precedence is flags > file > defaults. path overrides the
// default $XDG_CONFIG_HOME/wlvid/config.toml; a missing default file is not
// an error, a missing explicit one is.
func Load(v *viper.Viper, path string) (*Config, error) {
	v.SetDefault("audio", false)
	v.SetDefault("volume", 1.0)
	v.SetDefault("fps", 0)
	v.SetDefault("fallback_guard", true)
	v.SetDefault("debug", false)
	v.SetDefault("pause_on_fullscreen", true)
	v.SetDefault("pause_on_window", false)
	v.SetDefault("mute_on_window", false)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: %s: %w", path, err)
		}
	} else {
		dir, err := ConfigDir()
		if err != nil {
			return nil, fmt.Errorf("config: cannot resolve config directory: %w", err)
		}
		v.SetConfigName("config")
		v.SetConfigType("toml")
		v.AddConfigPath(dir)

		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("config: %s: %w", v.ConfigFileUsed(), err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: invalid configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate applies the fail-fast checks shared by file and flag input.
func (c *Config) Validate() error {
	if c.Volume < 0 || c.Volume > 1 {
		return fmt.Errorf("config: invalid volume %.2f (must be 0.0-1.0)", c.Volume)
	}
	if c.FPS < 0 {
		return fmt.Errorf("config: invalid fps %d (must be positive)", c.FPS)
	}
	return nil
}
