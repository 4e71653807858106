package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	cfg, err := Load(viper.New(), "")
	require.NoError(t, err)

	assert.False(t, cfg.Audio)
	assert.Equal(t, 1.0, cfg.Volume)
	assert.Equal(t, 0, cfg.FPS)
	assert.True(t, cfg.FallbackGuard, "guard must default to enabled")
	assert.False(t, cfg.Debug)
	assert.True(t, cfg.PauseOnFullscreen, "fullscreen pause must default to enabled")
	assert.False(t, cfg.PauseOnWindow)
	assert.False(t, cfg.MuteOnWindow)
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)

	appDir := filepath.Join(dir, "wlvid")
	require.NoError(t, os.MkdirAll(appDir, 0o755))
	require.NoError(t, os.WriteFile(
		filepath.Join(appDir, "config.toml"),
		[]byte("audio = true\nvolume = 0.4\nfps = 30\nmute_on_window = true\n"),
		0o644,
	))

	cfg, err := Load(viper.New(), "")
	require.NoError(t, err)

	assert.True(t, cfg.Audio)
	assert.Equal(t, 0.4, cfg.Volume)
	assert.Equal(t, 30, cfg.FPS)
	assert.True(t, cfg.MuteOnWindow)
	assert.True(t, cfg.FallbackGuard, "unset keys keep their defaults")
	assert.True(t, cfg.PauseOnFullscreen, "unset keys keep their defaults")
}

func TestLoadExplicitPath(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	path := filepath.Join(t.TempDir(), "other.toml")
	require.NoError(t, os.WriteFile(path, []byte("volume = 0.25\n"), 0o644))

	cfg, err := Load(viper.New(), path)
	require.NoError(t, err)
	assert.Equal(t, 0.25, cfg.Volume)

	_, err = Load(viper.New(), filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err, "an explicitly named config file must exist")
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)

	appDir := filepath.Join(dir, "wlvid")
	require.NoError(t, os.MkdirAll(appDir, 0o755))
	require.NoError(t, os.WriteFile(
		filepath.Join(appDir, "config.toml"),
		[]byte("volume = 2.5\n"),
		0o644,
	))

	_, err := Load(viper.New(), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid volume")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"valid", Config{Volume: 0.5, FPS: 60}, false},
		{"volume floor", Config{Volume: 0}, false},
		{"volume ceiling", Config{Volume: 1}, false},
		{"volume too high", Config{Volume: 1.01}, true},
		{"volume negative", Config{Volume: -0.5}, true},
		{"fps negative", Config{Volume: 1, FPS: -1}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
