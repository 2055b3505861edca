package insight

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/KaramelBytes/insightloom/internal/ai"
	"github.com/KaramelBytes/insightloom/internal/analysis"
	"github.com/KaramelBytes/insightloom/internal/dataset"
)

// FailureText replaces the narrative when interpretation fails.
const FailureText = "LLM insight generation failed."

// Narrator produces a narrative for a summary. *Interpreter implements it.
type Narrator interface {
	Interpret(ctx context.Context, sum *analysis.StatisticalSummary) Interpretation
}

// Outcome records which branch Generate took.
type Outcome string

const (
	OutcomeSkipped     Outcome = "skipped"
	OutcomeInterpreted Outcome = "interpreted"
	OutcomeDegraded    Outcome = "degraded"
)

// Request controls one Generate call. Model and APIKey override the
// generator's configuration when non-empty.
type Request struct {
	UseLLM bool
	Model  string
	APIKey string
}

// Result is the combined report of one dataset.
type Result struct {
	StatisticalInsights *analysis.StatisticalSummary `json:"statistical_insights"`
	TextInsights        string                       `json:"text_insights"`

	Outcome Outcome `json:"-"`
	RunID   string  `json:"-"`
	// Cause is the interpretation failure behind a degraded outcome.
	Cause error `json:"-"`
}

type settings struct {
	logger   *slog.Logger
	runtime  ai.Runtime
	narrator Narrator
	analysis analysis.Options
}

// Option customizes an Interpreter or Generator.
type Option func(*settings)

// WithLogger sets the logger; slog.Default() is used otherwise.
func WithLogger(l *slog.Logger) Option { return func(s *settings) { s.logger = l } }

// WithRuntime injects the chat runtime instead of resolving it from the provider.
func WithRuntime(rt ai.Runtime) Option { return func(s *settings) { s.runtime = rt } }

// WithNarrator makes the Generator use n instead of building an Interpreter.
func WithNarrator(n Narrator) Option { return func(s *settings) { s.narrator = n } }

// WithAnalysisOptions sets the summarizer options.
func WithAnalysisOptions(o analysis.Options) Option { return func(s *settings) { s.analysis = o } }

func newSettings(opts []Option) settings {
	s := settings{analysis: analysis.DefaultOptions()}
	for _, o := range opts {
		o(&s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// Generator runs the summarize-then-interpret pipeline. It is safe for
// concurrent use; each call builds its own state.
type Generator struct {
	cfg InterpreterConfig
	s   settings
}

// NewGenerator returns a Generator. Configuration problems surface per call
// as degraded results, never here.
func NewGenerator(cfg InterpreterConfig, opts ...Option) *Generator {
	return &Generator{cfg: cfg, s: newSettings(opts)}
}

// Generate summarizes ds and, when req.UseLLM is set, interprets the
// summary. Only summarization errors are returned; interpretation failures
// are logged and yield FailureText.
func (g *Generator) Generate(ctx context.Context, ds *dataset.Dataset, req Request) (*Result, error) {
	runID := uuid.NewString()
	log := g.s.logger.With("run_id", runID)
	if ds != nil {
		log = log.With("dataset", ds.Name())
	}

	sum, err := analysis.ComputeStatisticalInsights(ds, g.s.analysis)
	if err != nil {
		return nil, err
	}
	log.Debug("statistics computed",
		"rows", sum.Rows,
		"numeric_columns", len(sum.NumericColumns),
		"correlations", len(sum.TopCorrelations),
	)

	res := &Result{StatisticalInsights: sum, RunID: runID}
	if !req.UseLLM {
		res.Outcome = OutcomeSkipped
		return res, nil
	}

	narrator, err := g.narrator(req, log)
	if err != nil {
		return g.degrade(res, err, log), nil
	}
	interp := narrator.Interpret(ctx, sum)
	if !interp.OK() {
		return g.degrade(res, interp.Err, log), nil
	}
	res.TextInsights = interp.Text
	res.Outcome = OutcomeInterpreted
	log.Info("insights generated", "request_id", interp.RequestID)
	return res, nil
}

func (g *Generator) narrator(req Request, log *slog.Logger) (Narrator, error) {
	if g.s.narrator != nil {
		return g.s.narrator, nil
	}
	cfg := g.cfg
	if req.Model != "" {
		cfg.Model = req.Model
	}
	if req.APIKey != "" {
		cfg.APIKey = req.APIKey
	}
	return NewInterpreter(cfg, WithRuntime(g.s.runtime), WithLogger(log))
}

func (g *Generator) degrade(res *Result, cause error, log *slog.Logger) *Result {
	log.Error("insight generation failed", "error", cause)
	res.TextInsights = FailureText
	res.Outcome = OutcomeDegraded
	res.Cause = cause
	return res
}

// JSON returns {"statistical_insights": ..., "text_insights": ...}, indented.
func (r *Result) JSON() ([]byte, error) {
	b, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal result: %w", err)
	}
	return b, nil
}

// Markdown renders the summary followed by the narrative section, which is
// omitted when interpretation was skipped.
func (r *Result) Markdown() string {
	var b strings.Builder
	b.WriteString(r.StatisticalInsights.Markdown())
	if r.Outcome == OutcomeSkipped {
		return b.String()
	}
	b.WriteString("\n[NARRATIVE INSIGHTS]\n")
	b.WriteString(strings.TrimSpace(r.TextInsights))
	b.WriteString("\n")
	return b.String()
}
