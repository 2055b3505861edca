package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/insightloom/internal/ai"
	"github.com/KaramelBytes/insightloom/internal/analysis"
	"github.com/KaramelBytes/insightloom/internal/dataset"
	"github.com/KaramelBytes/insightloom/internal/insight"
)

// loadFlags are the dataset and summarizer flags shared by every command
// that reads a file.
type loadFlags struct {
	delimiter  string
	decimal    string
	thousands  string
	maxRows    int
	sheetName  string
	sheetIndex int
	maxCorr    int
	dedup      string
}

func (lf *loadFlags) register(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.StringVar(&lf.delimiter, "delimiter", "", "CSV delimiter: ',' | ';' | 'tab' (default from extension)")
	fs.StringVar(&lf.decimal, "decimal", "", "decimal separator for numbers: '.'|'comma'")
	fs.StringVar(&lf.thousands, "thousands", "", "thousands separator for numbers: ','|'.'|'space'")
	fs.IntVar(&lf.maxRows, "max-rows", 0, "maximum rows to process, 0 = unlimited (overrides config)")
	fs.StringVar(&lf.sheetName, "sheet-name", "", "XLSX: sheet name to analyze")
	fs.IntVar(&lf.sheetIndex, "sheet-index", 1, "XLSX: 1-based sheet index (used if --sheet-name not provided)")
	fs.IntVar(&lf.maxCorr, "max-correlations", 0, "maximum correlation pairs to report (overrides config)")
	fs.StringVar(&lf.dedup, "dedup", "", "correlation dedup mode: pair|value (overrides config)")
}

func (lf *loadFlags) datasetOptions(cmd *cobra.Command) (dataset.Options, error) {
	opt := dataset.DefaultOptions()
	if cfg != nil {
		opt.MaxRows = cfg.MaxRows
	}
	if cmd.Flags().Changed("max-rows") {
		opt.MaxRows = lf.maxRows
	}
	switch lf.delimiter {
	case "":
	case ",":
		opt.Delimiter = ','
	case "\t", "tab":
		opt.Delimiter = '\t'
	case ";":
		opt.Delimiter = ';'
	case "|", "pipe":
		opt.Delimiter = '|'
	default:
		return opt, fmt.Errorf("unsupported --delimiter: %s", lf.delimiter)
	}
	switch strings.ToLower(strings.TrimSpace(lf.decimal)) {
	case ",", "comma":
		opt.DecimalSeparator = ','
	case ".", "dot":
		opt.DecimalSeparator = '.'
	case "":
	default:
		return opt, fmt.Errorf("unsupported --decimal: %s (use '.'|'comma')", lf.decimal)
	}
	switch strings.ToLower(lf.thousands) {
	case ",":
		opt.ThousandsSeparator = ','
	case ".":
		opt.ThousandsSeparator = '.'
	case "space", " ":
		opt.ThousandsSeparator = ' '
	case "":
	default:
		return opt, fmt.Errorf("unsupported --thousands: %s (use ','|'.'|'space')", lf.thousands)
	}
	opt.SheetName = lf.sheetName
	opt.SheetIndex = lf.sheetIndex
	return opt, nil
}

func (lf *loadFlags) analysisOptions(cmd *cobra.Command) (analysis.Options, error) {
	opt := analysis.DefaultOptions()
	if cfg != nil {
		o, err := cfg.Analysis()
		if err != nil {
			return opt, err
		}
		opt = o
	}
	if cmd.Flags().Changed("max-correlations") {
		if lf.maxCorr <= 0 {
			return opt, fmt.Errorf("--max-correlations must be positive")
		}
		opt.MaxCorrelations = lf.maxCorr
	}
	if lf.dedup != "" {
		m, err := analysis.ParseDedupMode(lf.dedup)
		if err != nil {
			return opt, err
		}
		opt.Dedup = m
	}
	return opt, nil
}

// genFlags select the model for commands that call the interpreter.
type genFlags struct {
	noLLM      bool
	model      string
	provider   string
	timeoutSec int
}

func (gf *genFlags) register(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.BoolVar(&gf.noLLM, "no-llm", false, "skip the language-model interpretation")
	fs.StringVar(&gf.model, "model", "", "model name (overrides config default_model)")
	fs.StringVar(&gf.provider, "provider", "", "provider: groq|openrouter|ollama (overrides config default_provider)")
	fs.IntVar(&gf.timeoutSec, "timeout", 0, "timeout in seconds for the interpretation, 0 = none")
}

// withTimeout bounds ctx by --timeout when it is set.
func (gf *genFlags) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if gf.timeoutSec <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, time.Duration(gf.timeoutSec)*time.Second)
}

// newGenerator builds a Generator from the loaded configuration and flags.
func newGenerator(gf *genFlags, aopt analysis.Options) *insight.Generator {
	ic := insight.InterpreterConfig{}
	if cfg != nil {
		ic = insight.InterpreterConfig{
			Provider:    cfg.DefaultProvider,
			Model:       cfg.DefaultModel,
			APIKey:      cfg.APIKey,
			MaxTokens:   cfg.MaxTokens,
			Temperature: cfg.Temperature,
			Runtime:     cfg.Runtime(),
		}
	}
	if gf.provider != "" {
		ic.Provider = gf.provider
	}
	if gf.model != "" {
		ic.Model = gf.model
	}
	return insight.NewGenerator(ic,
		insight.WithAnalysisOptions(aopt),
		insight.WithLogger(slog.Default()),
	)
}

// explain turns an interpretation failure into a one-line hint for users.
func explain(err error) string {
	var (
		cfgErr  *insight.ConfigurationError
		authErr *ai.AuthError
		rlErr   *ai.RateLimitError
		nfErr   *ai.ModelNotFoundError
		brErr   *ai.BadRequestError
		qErr    *ai.QuotaExceededError
		sErr    *ai.ServerError
		unreach *ai.UnreachableError
	)
	switch {
	case errors.As(err, &cfgErr):
		if cfgErr.Kind == insight.MissingCredential {
			return "no API key: set GROQ_API_KEY, INSIGHTLOOM_API_KEY or 'insightloom config set api_key <key>'"
		}
		return fmt.Sprintf("unknown provider %q (use %s)", cfgErr.Provider, strings.Join(ai.Providers(), "|"))
	case errors.As(err, &unreach):
		return fmt.Sprintf("endpoint not reachable at %s; for Ollama ensure it is running or set ollama_host", unreach.Host)
	case errors.As(err, &authErr):
		return "authentication failed: check api_key"
	case errors.As(err, &rlErr):
		if rlErr.RetryAfter > 0 {
			return fmt.Sprintf("rate limited, try again in ~%ds", int(rlErr.RetryAfter.Seconds()))
		}
		return "rate limited, try again later or raise --retry-max"
	case errors.As(err, &nfErr):
		return "model not available: choose one from 'insightloom models' (or 'ollama pull <model>')"
	case errors.As(err, &brErr):
		return "request rejected by provider: " + brErr.Message
	case errors.As(err, &qErr):
		return "quota/billing issue: check your provider account"
	case errors.As(err, &sErr):
		return "provider unavailable (server error), retry later"
	case errors.Is(err, ai.ErrEmptyResponse):
		return "provider returned an empty response"
	}
	return err.Error()
}
