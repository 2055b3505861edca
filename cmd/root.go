package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/insightloom/internal/ai"
	cfgpkg "github.com/KaramelBytes/insightloom/internal/config"
	"github.com/KaramelBytes/insightloom/internal/logging"
)

var (
	cfgFile      string
	debug        bool
	flagLogLevel string
	// Retry/HTTP flags (override config if set)
	flagHTTPTimeoutSec   int
	flagRetryMaxAttempts int
	flagRetryBaseDelayMs int
	flagRetryMaxDelayMs  int

	// Loaded configuration
	cfg        *cfgpkg.Global
	logCleanup = func() error { return nil }
)

var rootCmd = &cobra.Command{
	Use:   "insightloom",
	Short: "InsightLoom: statistical summaries and LLM insights for tabular data",
	Long: `InsightLoom computes a compact statistical fingerprint of a CSV/TSV/XLSX dataset
(top correlations, missing values, descriptive statistics) and optionally asks a
language model (Groq by default, OpenRouter or a local Ollama) to explain it.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
}

// Execute is the entry point called by main.main()
func Execute() {
	err := rootCmd.Execute()
	_ = logCleanup()
	if err != nil {
		fmt.Fprintln(os.Stderr, "✗ Error:", err)
		os.Exit(1)
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default is ~/.insightloom/config.yaml)")
	pf.BoolVar(&debug, "debug", false, "enable debug logging")
	pf.StringVar(&flagLogLevel, "log-level", "", "log level: debug|info|warn|error (overrides config)")
	pf.IntVar(&flagHTTPTimeoutSec, "http-timeout", 0, "HTTP client timeout in seconds (overrides config)")
	pf.IntVar(&flagRetryMaxAttempts, "retry-max", 0, "max attempts on 429/5xx, 1 = no retry (overrides config)")
	pf.IntVar(&flagRetryBaseDelayMs, "retry-base-ms", 0, "base retry backoff in ms (overrides config)")
	pf.IntVar(&flagRetryMaxDelayMs, "retry-max-ms", 0, "max retry backoff cap in ms (overrides config)")
}

// setup loads configuration once per invocation, applies flag overrides and
// installs the logger. The environment is only read here.
func setup(cmd *cobra.Command, _ []string) error {
	c, err := cfgpkg.Load(cfgFile)
	if err != nil {
		return err
	}
	cfg = c

	f := cmd.Root().PersistentFlags()
	if f.Changed("http-timeout") && flagHTTPTimeoutSec > 0 {
		cfg.HTTPTimeoutSec = flagHTTPTimeoutSec
	}
	if f.Changed("retry-max") && flagRetryMaxAttempts > 0 {
		cfg.RetryMaxAttempts = flagRetryMaxAttempts
	}
	if f.Changed("retry-base-ms") && flagRetryBaseDelayMs > 0 {
		cfg.RetryBaseDelayMs = flagRetryBaseDelayMs
	}
	if f.Changed("retry-max-ms") && flagRetryMaxDelayMs > 0 {
		cfg.RetryMaxDelayMs = flagRetryMaxDelayMs
	}
	if flagLogLevel != "" {
		cfg.LogLevel = flagLogLevel
	}
	if debug {
		cfg.LogLevel = "debug"
	}

	cleanup, err := logging.Setup(cfg.Logging())
	if err != nil {
		return fmt.Errorf("setup logging: %w", err)
	}
	logCleanup = cleanup

	if cfg.ModelsCatalogFile != "" {
		m, err := ai.LoadCatalog(cfg.ModelsCatalogFile)
		if err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "⚠ Warning: model catalog not loaded: %v\n", err)
		} else {
			ai.MergeCatalog(m)
		}
	}
	return nil
}
