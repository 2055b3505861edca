package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/insightloom/internal/dataset"
	"github.com/KaramelBytes/insightloom/internal/insight"
)

var (
	reportLoad   loadFlags
	reportGen    genFlags
	reportJSON   bool
	reportOutput string
)

var reportCmd = &cobra.Command{
	Use:   "report <file>",
	Short: "Summarize a dataset and ask a language model to interpret it",
	Example: `  insightloom report sales.csv
  insightloom report sales.csv --no-llm
  insightloom report book.xlsx --sheet-name data --model llama-3.3-70b-versatile --json -o report.json
  insightloom report metrics.tsv --provider ollama --model llama3.1:8b`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dopt, err := reportLoad.datasetOptions(cmd)
		if err != nil {
			return err
		}
		aopt, err := reportLoad.analysisOptions(cmd)
		if err != nil {
			return err
		}
		ds, err := dataset.Load(args[0], dopt)
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		ctx, cancel := reportGen.withTimeout(ctx)
		defer cancel()

		gen := newGenerator(&reportGen, aopt)
		res, err := gen.Generate(ctx, ds, insight.Request{UseLLM: !reportGen.noLLM})
		if err != nil {
			return err
		}
		if res.Outcome == insight.OutcomeDegraded {
			fmt.Fprintf(cmd.ErrOrStderr(), "⚠ LLM interpretation failed: %s\n", explain(res.Cause))
		}

		var out []byte
		if reportJSON {
			if out, err = res.JSON(); err != nil {
				return err
			}
		} else {
			out = []byte(res.Markdown())
		}
		return emit(cmd, out, reportOutput, "report")
	},
}

func init() {
	rootCmd.AddCommand(reportCmd)
	reportLoad.register(reportCmd)
	reportGen.register(reportCmd)
	reportCmd.Flags().BoolVar(&reportJSON, "json", false, "print the report as JSON")
	reportCmd.Flags().StringVarP(&reportOutput, "output", "o", "", "optional path to write the report")
}
