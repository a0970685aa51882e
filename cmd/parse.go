package main

import (
	"github.com/spf13/cobra"

	"github.com/sells-group/afm-api/internal/naming"
)

var parseOutput string

// parsedName is a decoded file name plus the fields that were defaulted.
type parsedName struct {
	naming.Key `yaml:",inline"`

	Canonical string   `json:"canonical" yaml:"canonical"`
	GroupKey  string   `json:"group_key" yaml:"group_key"`
	Defaulted []string `json:"defaulted,omitempty" yaml:"defaulted,omitempty"`
}

var parseCmd = &cobra.Command{
	Use:   "parse <filename>",
	Short: "Decode a measurement file name into its key fields",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, err := naming.Parse(args[0])
		if err != nil {
			return err
		}

		out := parsedName{Key: key, Canonical: key.Canonical(), GroupKey: key.GroupKey()}
		if key.Fallbacks.MeasuredInfo {
			out.Defaulted = append(out.Defaulted, "measured_info")
		}
		if key.Fallbacks.Date {
			out.Defaulted = append(out.Defaulted, "formatted_date")
		}
		return writeOutput(cmd.OutOrStdout(), parseOutput, out)
	},
}

func init() {
	parseCmd.Flags().StringVarP(&parseOutput, "output", "o", "json", "output format: json or yaml")
	rootCmd.AddCommand(parseCmd)
}
