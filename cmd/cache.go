package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/afm-api/internal/service"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the per-tool file list caches",
}

var (
	cacheTool   string
	cacheAll    bool
	cacheOutput string
)

var cacheRebuildCmd = &cobra.Command{
	Use:   "rebuild",
	Short: "Rebuild the file list cache of one tool or of every tool",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cacheAll && cacheTool != "" {
			return eris.New("--tool and --all are mutually exclusive")
		}

		svc, err := initService("cache")
		if err != nil {
			return err
		}
		defer svc.Close() //nolint:errcheck

		var results []service.ToolRebuild
		if cacheAll {
			results, err = svc.RebuildAll(cmd.Context())
			if err != nil {
				return eris.Wrap(err, "rebuild all tools")
			}
		} else {
			res, err := svc.Rebuild(cacheTool)
			if err != nil {
				return eris.Wrapf(err, "rebuild %s", svc.ToolName(cacheTool))
			}
			results = []service.ToolRebuild{{Result: res}}
		}

		for _, r := range results {
			zap.L().Info("cache rebuilt",
				zap.String("tool", r.Tool),
				zap.Int("survivors", r.Survivors),
				zap.Bool("written", r.Written),
				zap.String("error", r.Error),
			)
		}
		return writeOutput(cmd.OutOrStdout(), cacheOutput, results)
	},
}

var cacheShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the persisted file list cache of a tool",
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := initService("cache")
		if err != nil {
			return err
		}
		defer svc.Close() //nolint:errcheck

		art, err := svc.Artifact(cacheTool)
		if err != nil {
			return eris.Wrapf(err, "read cache of %s", svc.ToolName(cacheTool))
		}
		return writeOutput(cmd.OutOrStdout(), cacheOutput, art)
	},
}

func init() {
	for _, c := range []*cobra.Command{cacheRebuildCmd, cacheShowCmd} {
		c.Flags().StringVar(&cacheTool, "tool", "", "tool name (default from config)")
		c.Flags().StringVarP(&cacheOutput, "output", "o", "json", "output format: json or yaml")
	}
	cacheRebuildCmd.Flags().BoolVar(&cacheAll, "all", false, "rebuild every configured tool")

	cacheCmd.AddCommand(cacheRebuildCmd, cacheShowCmd)
	rootCmd.AddCommand(cacheCmd)
}
