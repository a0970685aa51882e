package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/afm-api/internal/config"
)

var cfg *config.Config

var (
	configPath   string
	dataRoot     string
	logLevelFlag string
)

var rootCmd = &cobra.Command{
	Use:   "afm-api",
	Short: "AFM measurement data backend",
	Long:  "Serves AFM measurement listings, detail payloads, height profiles and images from per-tool data directories, and maintains the per-tool file list caches.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.LoadFile(configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		applyOverrides(cmd, c)
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		zap.L().Debug("config loaded",
			zap.String("config", configPath),
			zap.String("data_root", cfg.Data.Root),
			zap.Strings("tools", cfg.Data.Tools),
		)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

// applyOverrides lets explicitly set persistent flags win over the file and
// environment.
func applyOverrides(cmd *cobra.Command, c *config.Config) {
	changed := func(name string) bool {
		f := cmd.Flag(name)
		return f != nil && f.Changed
	}
	if changed("data-root") {
		c.Data.Root = dataRoot
	}
	if changed("log-level") {
		c.Log.Level = logLevelFlag
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configPath, "config", "", "config file (default ./config.yaml if present)")
	pf.StringVar(&dataRoot, "data-root", "", "AFM_DB root holding one directory per tool (overrides data.root)")
	pf.StringVar(&logLevelFlag, "log-level", "", "log level (overrides log.level)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
