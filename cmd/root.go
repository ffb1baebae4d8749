// Package cmd implements the wallkit command line.
package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/stevecastle/wallkit/appconfig"
	"github.com/stevecastle/wallkit/catalog"
	"github.com/stevecastle/wallkit/logging"
	"github.com/stevecastle/wallkit/orchestrator"
	"github.com/stevecastle/wallkit/stream"
)

var (
	Version    = "dev"
	configFile string
	verbose    bool

	cfg      appconfig.Config
	cfgPath  string
	logLevel string
	logger   zerolog.Logger
)

var rootCmd = &cobra.Command{
	Use:     "wallkit",
	Short:   "Manage a local wallpaper library",
	Version: Version,
	Long: `wallkit scans a folder of wallpaper items, unpacks their package files with
an external tool, tags their previews with an ONNX model, keeps collection
labels in each item's project.json and sets a file as the desktop wallpaper.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, p, err := appconfig.Load(configFile)
		if err != nil {
			return err
		}
		cfg, cfgPath = c, p
		logLevel = cfg.LogLevel
		if verbose {
			logLevel = "debug"
		}
		logger = logging.Setup(logLevel)
		logger.Debug().Str("config", cfgPath).Msg("config loaded")
		return nil
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Path to config file, .json or .toml (or set WALLKIT_CONFIG)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Debug logging")
}

// signalContext is cancelled on Ctrl-C or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func openCatalog() *catalog.Catalog {
	path := cfg.CatalogPath
	if path == "" {
		path = catalog.DefaultPath(cfgPath)
	}
	c, err := catalog.Open(path)
	if err != nil {
		logger.Warn().Err(err).Str("path", path).Msg("catalog unavailable, search and collection listing disabled")
		return nil
	}
	return c
}

// newOrchestrator builds the orchestrator from the loaded config. The
// returned func releases it.
func newOrchestrator(hub *stream.Hub) (*orchestrator.Orchestrator, func()) {
	cat := openCatalog()
	o := orchestrator.New(orchestrator.Options{Config: cfg, Catalog: cat, Hub: hub, Logger: logger})
	return o, func() {
		o.Close()
		if cat != nil {
			if err := cat.Close(); err != nil {
				logger.Warn().Err(err).Msg("close catalog")
			}
		}
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
