package main

import (
	"github.com/spf13/cobra"

	"github.com/sells-group/afm-api/internal/resolve"
)

var (
	resolveTool    string
	resolveSiteID  string
	resolveSiteX   string
	resolveSiteY   string
	resolvePointNo int
	resolveOutput  string
)

var resolveCmd = &cobra.Command{
	Use:   "resolve profile|image <filename> <point>",
	Short: "Show which profile or image file a measurement point resolves to",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, err := resolve.ParseKind(args[0])
		if err != nil {
			return err
		}

		svc, err := initService("cache")
		if err != nil {
			return err
		}
		defer svc.Close() //nolint:errcheck

		tool, err := svc.Tool(resolveTool)
		if err != nil {
			return err
		}

		sel := resolve.SiteSelector{SiteID: resolveSiteID, SiteX: resolveSiteX, SiteY: resolveSiteY}
		if sel.SiteID == "" {
			sel.SiteID = args[2]
		}
		if cmd.Flags().Changed("point-no") {
			n := resolvePointNo
			sel.PointNo = &n
		}

		m, err := svc.Resolver().Point(tool, args[1], sel, kind)
		if err != nil {
			return err
		}
		return writeOutput(cmd.OutOrStdout(), resolveOutput, m)
	},
}

func init() {
	f := resolveCmd.Flags()
	f.StringVar(&resolveTool, "tool", "", "tool name (default from config)")
	f.StringVar(&resolveSiteID, "site-id", "", "site id hint (default: the point argument)")
	f.StringVar(&resolveSiteX, "site-x", "", "site x coordinate hint")
	f.StringVar(&resolveSiteY, "site-y", "", "site y coordinate hint")
	f.IntVar(&resolvePointNo, "point-no", 0, "explicit point number")
	f.StringVarP(&resolveOutput, "output", "o", "json", "output format: json or yaml")
	rootCmd.AddCommand(resolveCmd)
}
