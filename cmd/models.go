package cmd

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/insightloom/internal/ai"
)

var (
	modelsProvider string
	modelsJSON     bool
)

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List known models with context window and pricing",
	Example: `  insightloom models
  insightloom models --provider ollama
  insightloom models --json`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		p := strings.ToLower(strings.TrimSpace(modelsProvider))
		if p != "" {
			if _, ok := ai.GetRuntime(p, ai.RuntimeConfig{}); !ok {
				return fmt.Errorf("unknown provider %q (use %s)", modelsProvider, strings.Join(ai.Providers(), "|"))
			}
		}
		var list []ai.ModelInfo
		for _, m := range ai.Catalog() {
			if p == "" || m.Provider == p {
				list = append(list, m)
			}
		}

		if modelsJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(list)
		}
		if len(list) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No models in catalog")
			return nil
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "PROVIDER\tMODEL\tCONTEXT\tIN $/1K\tOUT $/1K")
		for _, m := range list {
			def := ""
			if cfg != nil && m.Name == cfg.DefaultModel {
				def = " *"
			}
			fmt.Fprintf(w, "%s\t%s%s\t%d\t%.5f\t%.5f\n", m.Provider, m.Name, def, m.ContextTokens, m.InputPerK, m.OutputPerK)
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(modelsCmd)
	modelsCmd.Flags().StringVar(&modelsProvider, "provider", "", "only list models for this provider")
	modelsCmd.Flags().BoolVar(&modelsJSON, "json", false, "print the catalog as JSON")
}
