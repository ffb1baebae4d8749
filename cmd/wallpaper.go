package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

var wallpaperMute bool

var wallpaperCmd = &cobra.Command{
	Use:   "wallpaper",
	Short: "Control the desktop wallpaper helper",
}

var wallpaperSetCmd = &cobra.Command{
	Use:   "set <file>",
	Short: "Show a file as the desktop wallpaper",
	Long: `Launch the wallpaper helper with file and stay in the foreground until the
helper exits. Ctrl-C stops the helper. Use "wallkit serve" to keep a
wallpaper running in the background.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext()
		defer stop()
		o, done := newOrchestrator(nil)
		defer done()

		file, err := filepath.Abs(args[0])
		if err != nil {
			return err
		}
		if err := o.SetWallpaper(ctx, file, wallpaperMute); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "Showing %s, press Ctrl-C to stop\n", file)

		select {
		case <-ctx.Done():
			o.StopWallpaper()
		case <-o.WallpaperExited():
			logger.Info().Str("file", file).Msg("wallpaper helper exited")
		}
		return nil
	},
}

func init() {
	wallpaperSetCmd.Flags().BoolVar(&wallpaperMute, "mute", false, "Mute video wallpapers")
	wallpaperCmd.AddCommand(wallpaperSetCmd)
	rootCmd.AddCommand(wallpaperCmd)
}
