package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	cmd := NewRootCmd("test", "none", "now")
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

// Bad flag values must fail before any compositor or pipeline work starts.

func TestInvalidVolumeFailsFast(t *testing.T) {
	_, err := execute(t, "--file", "/tmp/a.mp4", "--volume", "1.5")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid volume")
}

func TestInvalidFPSFailsFast(t *testing.T) {
	_, err := execute(t, "--file", "/tmp/a.mp4", "--fps", "-10")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid fps")
}

func TestExplicitZeroFPSRejected(t *testing.T) {
	_, err := execute(t, "--file", "/tmp/a.mp4", "--fps", "0")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid fps")
}

func TestMissingConfigFileFails(t *testing.T) {
	_, err := execute(t, "--file", "/tmp/a.mp4", "--config", "/nonexistent/wlvid.toml")
	require.Error(t, err)
}

func TestMissingFileFails(t *testing.T) {
	_, err := execute(t)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--file is required")
}

func TestLicenseFlag(t *testing.T) {
	// --license works without --file and exits cleanly.
	out, err := execute(t, "--license")
	require.NoError(t, err)
	assert.Contains(t, out, "AGPL-3.0-only")
}

func TestVersionFlag(t *testing.T) {
	out, err := execute(t, "--version")
	require.NoError(t, err)
	assert.Contains(t, out, "test")
}

func TestVersionShorthand(t *testing.T) {
	out, err := execute(t, "-V")
	require.NoError(t, err)
	assert.Contains(t, out, "test")
}

func TestUnknownFlagRejected(t *testing.T) {
	_, err := execute(t, "--bogus")
	require.Error(t, err)
}
