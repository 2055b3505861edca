package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/insightloom/internal/analysis"
	"github.com/KaramelBytes/insightloom/internal/dataset"
	"github.com/KaramelBytes/insightloom/internal/utils"
)

var (
	statsLoad   loadFlags
	statsJSON   bool
	statsOutput string
)

var statsCmd = &cobra.Command{
	Use:   "stats <file>",
	Short: "Summarize a CSV/TSV/XLSX without calling a language model",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dopt, err := statsLoad.datasetOptions(cmd)
		if err != nil {
			return err
		}
		aopt, err := statsLoad.analysisOptions(cmd)
		if err != nil {
			return err
		}
		ds, err := dataset.Load(args[0], dopt)
		if err != nil {
			return err
		}
		sum, err := analysis.ComputeStatisticalInsights(ds, aopt)
		if err != nil {
			return err
		}

		var out []byte
		if statsJSON {
			if out, err = sum.JSON(); err != nil {
				return err
			}
		} else {
			out = []byte(sum.Markdown())
		}
		return emit(cmd, out, statsOutput, "summary")
	},
}

// emit prints out, or saves it to path when set.
func emit(cmd *cobra.Command, out []byte, path, what string) error {
	if path == "" {
		fmt.Fprintln(cmd.OutOrStdout(), string(out))
		return nil
	}
	if err := utils.SafeWriteFile(path, out); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✓ Wrote %s to %s\n", what, path)
	return nil
}

func init() {
	rootCmd.AddCommand(statsCmd)
	statsLoad.register(statsCmd)
	statsCmd.Flags().BoolVar(&statsJSON, "json", false, "print the summary as JSON")
	statsCmd.Flags().StringVarP(&statsOutput, "output", "o", "", "optional path to write the summary")
}
