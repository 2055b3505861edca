// Package insight turns a statistical summary into a narrative through a
// chat model and packages both into a single report.
package insight

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/KaramelBytes/insightloom/internal/ai"
	"github.com/KaramelBytes/insightloom/internal/analysis"
	"github.com/KaramelBytes/insightloom/internal/utils"
)

// SystemPrompt is the system message sent with every interpretation.
const SystemPrompt = "You are a helpful data analyst."

const promptTemplate = `You are an expert data analyst.
Analyze the following dataset summary and produce
a clear, concise set of insights:
%s

Highlight trends, strong correlations, anomalies,
or interesting patterns in natural language.`

// InterpreterConfig selects the provider, model and credentials.
type InterpreterConfig struct {
	Provider    string // groq (default), openrouter or ollama
	Model       string
	APIKey      string
	MaxTokens   int
	Temperature float64
	// Runtime carries transport knobs; its APIKey is ignored in favor of APIKey above.
	Runtime ai.RuntimeConfig
}

func (c InterpreterConfig) withDefaults() InterpreterConfig {
	c.Provider = strings.ToLower(strings.TrimSpace(c.Provider))
	if c.Provider == "" {
		c.Provider = ai.ProviderGroq
	}
	if strings.TrimSpace(c.Model) == "" {
		c.Model = ai.DefaultModel
	}
	return c
}

// Interpretation is the outcome of one model call: Text on success, Err otherwise.
type Interpretation struct {
	Text      string
	Err       error
	RequestID string
	Usage     ai.Usage
}

// OK reports whether the call produced a narrative.
func (i Interpretation) OK() bool { return i.Err == nil }

// Interpreter sends a summary to a chat model once per call.
type Interpreter struct {
	cfg     InterpreterConfig
	runtime ai.Runtime
	logger  *slog.Logger
}

// NewInterpreter validates cfg and builds the runtime. The provider must be
// registered, and remote providers need a non-empty API key. Both checks
// happen here, before any request.
func NewInterpreter(cfg InterpreterConfig, opts ...Option) (*Interpreter, error) {
	cfg = cfg.withDefaults()
	s := newSettings(opts)

	rt := s.runtime
	if rt == nil && !ai.HasRuntime(cfg.Provider) {
		return nil, &ConfigurationError{Kind: UnknownProvider, Provider: cfg.Provider}
	}
	if ai.RequiresAPIKey(cfg.Provider) && strings.TrimSpace(cfg.APIKey) == "" {
		return nil, &ConfigurationError{Kind: MissingCredential, Provider: cfg.Provider}
	}
	if rt == nil {
		rc := cfg.Runtime
		rc.APIKey = cfg.APIKey
		var ok bool
		if rt, ok = ai.GetRuntime(cfg.Provider, rc); !ok {
			return nil, &ConfigurationError{Kind: UnknownProvider, Provider: cfg.Provider}
		}
	}
	return &Interpreter{cfg: cfg, runtime: rt, logger: s.logger}, nil
}

// BuildPrompt embeds the indented JSON summary in the analyst template.
func BuildPrompt(sum *analysis.StatisticalSummary) (string, error) {
	b, err := sum.JSON()
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(promptTemplate, b), nil
}

// Interpret asks the model for a narrative. Failures are reported in the
// returned Interpretation, wrapped in *InterpreterError.
func (in *Interpreter) Interpret(ctx context.Context, sum *analysis.StatisticalSummary) Interpretation {
	fail := func(err error) Interpretation {
		return Interpretation{Err: &InterpreterError{Provider: in.cfg.Provider, Model: in.cfg.Model, Err: err}}
	}
	if sum == nil {
		return fail(fmt.Errorf("nil summary"))
	}
	prompt, err := BuildPrompt(sum)
	if err != nil {
		return fail(err)
	}
	in.checkContext(prompt)

	resp, err := in.runtime.Generate(ctx, ai.GenerateRequest{
		Model: in.cfg.Model,
		Messages: []ai.Message{
			{Role: "system", Content: SystemPrompt},
			{Role: "user", Content: prompt},
		},
		MaxTokens:   in.cfg.MaxTokens,
		Temperature: in.cfg.Temperature,
	})
	if err != nil {
		return fail(err)
	}
	text, err := resp.Content()
	if err != nil {
		return fail(err)
	}
	attrs := []any{
		"provider", in.cfg.Provider,
		"model", in.cfg.Model,
		"request_id", resp.RequestID,
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens,
	}
	if usd, ok := ai.EstimateCostUSD(in.cfg.Model, resp.Usage.PromptTokens, resp.Usage.CompletionTokens); ok {
		attrs = append(attrs, "est_cost_usd", usd)
	}
	in.logger.Debug("interpretation received", attrs...)
	return Interpretation{Text: text, RequestID: resp.RequestID, Usage: resp.Usage}
}

// checkContext warns when the prompt likely exceeds the model's window.
// The request is still sent; the provider has the final word.
func (in *Interpreter) checkContext(prompt string) {
	mi, ok := ai.LookupModel(in.cfg.Model)
	if !ok {
		return
	}
	est := utils.CountTokens(SystemPrompt) + utils.CountTokens(prompt)
	if !utils.FitsContext(est, in.cfg.MaxTokens, mi.ContextTokens) {
		in.logger.Warn("prompt may exceed model context window",
			"model", in.cfg.Model,
			"estimated_tokens", est,
			"max_tokens", in.cfg.MaxTokens,
			"context_tokens", mi.ContextTokens,
		)
	}
}
