// Package cli provides the wlvid command line.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/wlvid/wlvid/internal/app"
	"github.com/wlvid/wlvid/internal/config"
)

const licenseNotice = `wlvid is licensed under the GNU Affero General Public License v3.0 (AGPL-3.0-only).

You should have received a copy of the license along with this program.
If not, see <https://www.gnu.org/licenses/agpl-3.0.html>.`

// NewRootCmd builds the root command. Flag validation happens before any
// pipeline or compositor connection is made.
func NewRootCmd(version, commit, buildDate string) *cobra.Command {
	var showLicense bool
	var configPath string

	cmd := &cobra.Command{
		Use:   "wlvid",
		Short: "Looping video wallpaper for wlroots compositors",
		Long: `wlvid plays a video file as an animated wallpaper on Wayland compositors
that support the wlr-layer-shell protocol (sway, hyprland, river, ...).

Decoding prefers VAAPI hardware acceleration and falls back to software,
refusing to software-decode above 1920x1080 unless --no-fallback-guard is
given. Playback loops seamlessly; pacing follows the compositor's frame
callbacks with an optional --fps ceiling. While a fullscreen window covers
the wallpaper, playback pauses automatically (--no-pause-on-fullscreen
disables this; see also --pause-on-window and --mute-on-window).`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if showLicense {
				fmt.Fprintln(cmd.OutOrStdout(), licenseNotice)
				return nil
			}

			v := viper.New()
			flags := cmd.Flags()
			bindings := map[string]string{
				"file":            "file",
				"audio":           "audio",
				"volume":          "volume",
				"fps":             "fps",
				"debug":           "debug",
				"pause_on_window": "pause-on-window",
				"mute_on_window":  "mute-on-window",
			}
			for key, flag := range bindings {
				if err := v.BindPFlag(key, flags.Lookup(flag)); err != nil {
					return fmt.Errorf("cli: bind flag %s: %w", flag, err)
				}
			}

			cfg, err := config.Load(v, configPath)
			if err != nil {
				return err
			}
			// These flags state the negative; the config keys store the
			// positive. Flag wins when given.
			if flags.Changed("no-fallback-guard") {
				noGuard, _ := flags.GetBool("no-fallback-guard")
				cfg.FallbackGuard = !noGuard
			}
			if flags.Changed("no-pause-on-fullscreen") {
				noPause, _ := flags.GetBool("no-pause-on-fullscreen")
				cfg.PauseOnFullscreen = !noPause
			}

			if cfg.File == "" {
				return fmt.Errorf("cli: --file is required")
			}
			if flags.Changed("fps") && cfg.FPS == 0 {
				return fmt.Errorf("cli: invalid fps 0 (must be positive)")
			}

			setupLogging(cfg.Debug)

			ctx, stop := signal.NotifyContext(context.Background(),
				os.Interrupt, syscall.SIGTERM)
			defer stop()

			return app.Run(ctx, cfg)
		},
	}

	cmd.Version = fmt.Sprintf("%s (commit %s, built %s)", version, commit, buildDate)

	flags := cmd.Flags()
	flags.StringP("file", "f", "", "Path to the video file (required)")
	flags.BoolP("audio", "a", false, "Enable audio playback")
	flags.Float64("volume", 1.0, "Audio volume, 0.0 to 1.0")
	flags.Int("fps", 0, "Cap the frame rate (0 = source rate)")
	flags.Bool("no-fallback-guard", false,
		"Allow software decoding above 1920x1080")
	flags.Bool("no-pause-on-fullscreen", false,
		"Keep playing while a fullscreen window covers the wallpaper")
	flags.Bool("pause-on-window", false,
		"Pause playback while any window is focused or maximized")
	flags.Bool("mute-on-window", false,
		"Mute audio while any window is focused or maximized (requires --audio)")
	flags.StringVarP(&configPath, "config", "c", "",
		"Path to config file (default $XDG_CONFIG_HOME/wlvid/config.toml)")
	flags.BoolVar(&showLicense, "license", false,
		"Print license information and exit")
	flags.Bool("debug", false, "Enable debug logging")
	flags.BoolP("version", "V", false, "Print version information and exit")

	return cmd
}

func setupLogging(debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})))
}
