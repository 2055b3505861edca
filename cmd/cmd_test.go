package cmd

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// resetFlags restores every flag to its default so state does not leak
// between invocations of the shared command tree.
func resetFlags(c *cobra.Command) {
	reset := func(fl *pflag.Flag) {
		_ = fl.Value.Set(fl.DefValue)
		fl.Changed = false
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

// execute runs the root command and returns combined stdout/stderr.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)
	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetErr(&buf)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return buf.String(), err
}

// runCmd executes args and fails the test on error.
func runCmd(t *testing.T, args ...string) string {
	t.Helper()
	out, err := execute(t, args...)
	if err != nil {
		t.Fatalf("command %v failed: %v\n%s", args, err, out)
	}
	return out
}

// isolateHome points HOME at a temp dir and clears credential env vars.
func isolateHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	for _, k := range []string{"GROQ_API_KEY", "INSIGHTLOOM_API_KEY", "INSIGHTLOOM_BASE_URL", "INSIGHTLOOM_DEFAULT_PROVIDER"} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
	return home
}

func writeCSV(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", p, err)
	}
	return p
}

const salesCSV = "ads,sales,region\n1,10,north\n2,20,south\n3,30,\n4,40,east\n"

// jsonFromOutput returns the first JSON object printed in out.
func jsonFromOutput(t *testing.T, out string) map[string]any {
	t.Helper()
	i := strings.Index(out, "{")
	j := strings.LastIndex(out, "}")
	if i < 0 || j < i {
		t.Fatalf("no JSON in output:\n%s", out)
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(out[i:j+1]), &m); err != nil {
		t.Fatalf("decode JSON: %v\n%s", err, out)
	}
	return m
}

func TestCLI_StatsJSON(t *testing.T) {
	home := isolateHome(t)
	p := writeCSV(t, home, "sales.csv", salesCSV)

	out := runCmd(t, "stats", p, "--json")
	m := jsonFromOutput(t, out)
	corr, ok := m["top_correlations"].(map[string]any)
	if !ok {
		t.Fatalf("top_correlations missing: %v", m)
	}
	if r, ok := corr["ads ~ sales"].(float64); !ok || r < 0.999 {
		t.Fatalf("expected ads ~ sales near 1, got %v", corr)
	}
	miss := m["missing_percentage"].(map[string]any)
	if miss["region"].(float64) != 25 {
		t.Fatalf("expected region 25%% missing, got %v", miss["region"])
	}
	if _, ok := m["numeric_summary"].(map[string]any)["ads"]; !ok {
		t.Fatalf("numeric_summary lacks ads: %v", m["numeric_summary"])
	}
}

func TestCLI_StatsWritesFile(t *testing.T) {
	home := isolateHome(t)
	p := writeCSV(t, home, "sales.csv", salesCSV)
	dst := filepath.Join(home, "out", "sales.md")

	out := runCmd(t, "stats", p, "-o", dst)
	if !strings.Contains(out, "✓ Wrote summary to") {
		t.Fatalf("unexpected output: %s", out)
	}
	b, err := os.ReadFile(dst)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if !strings.Contains(string(b), "ads ~ sales") {
		t.Fatalf("summary lacks correlation line:\n%s", b)
	}
}

func TestCLI_ReportNoLLM(t *testing.T) {
	home := isolateHome(t)
	p := writeCSV(t, home, "sales.csv", salesCSV)

	out := runCmd(t, "report", p, "--no-llm", "--json")
	m := jsonFromOutput(t, out)
	if m["text_insights"] != "" {
		t.Fatalf("expected empty text_insights, got %q", m["text_insights"])
	}
	if _, ok := m["statistical_insights"].(map[string]any); !ok {
		t.Fatalf("statistical_insights missing: %v", m)
	}

	md := runCmd(t, "report", p, "--no-llm")
	if strings.Contains(md, "[NARRATIVE INSIGHTS]") {
		t.Fatalf("narrative section should be omitted:\n%s", md)
	}
}

func TestCLI_ReportCallsProvider(t *testing.T) {
	home := isolateHome(t)
	p := writeCSV(t, home, "sales.csv", salesCSV)

	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("unexpected auth header %q", got)
		}
		var req struct {
			Model    string `json:"model"`
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Model != "llama-3.3-70b-versatile" {
			t.Errorf("unexpected model %q", req.Model)
		}
		if len(req.Messages) != 2 || !strings.Contains(req.Messages[1].Content, "ads ~ sales") {
			t.Errorf("prompt does not embed the summary: %+v", req.Messages)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c1","choices":[{"message":{"role":"assistant","content":"Sales track advertising closely."}}],"usage":{"prompt_tokens":50,"completion_tokens":6,"total_tokens":56}}`))
	}))
	defer srv.Close()

	t.Setenv("INSIGHTLOOM_API_KEY", "test-key")
	t.Setenv("INSIGHTLOOM_BASE_URL", srv.URL)

	out := runCmd(t, "report", p, "--json", "--model", "llama-3.3-70b-versatile")
	m := jsonFromOutput(t, out)
	if m["text_insights"] != "Sales track advertising closely." {
		t.Fatalf("unexpected text_insights %q", m["text_insights"])
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("expected one provider call, got %d", calls)
	}
}

func TestCLI_ReportMissingKeyDegrades(t *testing.T) {
	home := isolateHome(t)
	p := writeCSV(t, home, "sales.csv", salesCSV)

	out, err := execute(t, "report", p, "--json")
	if err != nil {
		t.Fatalf("degraded report should not fail: %v", err)
	}
	if !strings.Contains(out, "⚠ LLM interpretation failed: no API key") {
		t.Fatalf("expected missing key hint:\n%s", out)
	}
	m := jsonFromOutput(t, out)
	if m["text_insights"] != "LLM insight generation failed." {
		t.Fatalf("unexpected text_insights %q", m["text_insights"])
	}
}

func TestCLI_ReportEmptyDatasetFails(t *testing.T) {
	home := isolateHome(t)
	p := writeCSV(t, home, "empty.csv", "a,b\n")
	if _, err := execute(t, "report", p, "--no-llm"); err == nil {
		t.Fatalf("expected error for header-only dataset")
	}
}

func TestCLI_ReportBatchOutputDir(t *testing.T) {
	home := isolateHome(t)
	writeCSV(t, home, filepath.Join("d1", "metrics.csv"), salesCSV)
	writeCSV(t, home, filepath.Join("d2", "metrics.csv"), salesCSV)
	writeCSV(t, home, filepath.Join("d2", "other.csv"), "x,y\n1,3\n2,1\n3,2\n")
	outDir := filepath.Join(home, "reports")

	runCmd(t, "report-batch", filepath.Join(home, "d*", "*.csv"), "--no-llm", "--workers", "2", "--output-dir", outDir, "--quiet")

	for _, name := range []string{"metrics.report.md", "metrics__2.report.md", "other.report.md"} {
		b, err := os.ReadFile(filepath.Join(outDir, name))
		if err != nil {
			t.Fatalf("missing %s: %v", name, err)
		}
		if !strings.Contains(string(b), "[DATASET SUMMARY]") {
			t.Fatalf("%s does not look like a report:\n%s", name, b)
		}
	}
}

func TestCLI_ReportBatchReportsFailures(t *testing.T) {
	home := isolateHome(t)
	good := writeCSV(t, home, "good.csv", salesCSV)
	bad := writeCSV(t, home, "bad.csv", "a,b\n")

	out, err := execute(t, "report-batch", good, bad, "--no-llm", "--json")
	if err == nil || !strings.Contains(err.Error(), "1 of 2 datasets failed") {
		t.Fatalf("expected partial failure, got %v", err)
	}
	if !strings.Contains(out, "=== "+good+" ===") {
		t.Fatalf("good dataset report missing:\n%s", out)
	}
}

func TestCLI_ReportBatchTimeoutIsPerDataset(t *testing.T) {
	home := isolateHome(t)
	a := writeCSV(t, home, "a.csv", salesCSV)
	b := writeCSV(t, home, "b.csv", salesCSV)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(700 * time.Millisecond)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c1","choices":[{"message":{"role":"assistant","content":"slow but fine"}}]}`))
	}))
	defer srv.Close()
	t.Setenv("INSIGHTLOOM_API_KEY", "test-key")
	t.Setenv("INSIGHTLOOM_BASE_URL", srv.URL)

	// Sequential calls take longer than one timeout in total, but each fits.
	out := runCmd(t, "report-batch", a, b, "--workers", "1", "--timeout", "1", "--json", "--quiet")
	if n := strings.Count(out, `"text_insights": "slow but fine"`); n != 2 {
		t.Fatalf("expected both datasets interpreted, got %d:\n%s", n, out)
	}

	usage := reportBatchCmd.Flags().Lookup("timeout").Usage
	if !strings.Contains(usage, "each dataset") {
		t.Fatalf("unexpected --timeout help: %q", usage)
	}
}

func TestCLI_ReportUnknownProviderHint(t *testing.T) {
	home := isolateHome(t)
	p := writeCSV(t, home, "sales.csv", salesCSV)

	out, err := execute(t, "report", p, "--provider", "acme")
	if err != nil {
		t.Fatalf("degraded report should not fail: %v", err)
	}
	if !strings.Contains(out, `⚠ LLM interpretation failed: unknown provider "acme"`) {
		t.Fatalf("expected unknown provider hint:\n%s", out)
	}
}

func TestCLI_PersistentFlagsOverrideConfig(t *testing.T) {
	isolateHome(t)
	out := runCmd(t, "--retry-max", "3", "--http-timeout", "15", "config", "show")
	if !strings.Contains(out, "retry_max_attempts: 3") {
		t.Fatalf("--retry-max not applied:\n%s", out)
	}
	if !strings.Contains(out, "http_timeout_sec: 15") {
		t.Fatalf("--http-timeout not applied:\n%s", out)
	}

	out = runCmd(t, "config", "show")
	if !strings.Contains(out, "retry_max_attempts: 1") {
		t.Fatalf("flag state leaked between runs:\n%s", out)
	}
}

func TestCLI_ConfigSetShow(t *testing.T) {
	home := isolateHome(t)
	t.Setenv("GROQ_API_KEY", "gsk_env_secret_value")

	runCmd(t, "config", "set", "default_model", "llama-3.3-70b-versatile")
	runCmd(t, "config", "set", "max_correlations", "5")

	b, err := os.ReadFile(filepath.Join(home, ".insightloom", "config.yaml"))
	if err != nil {
		t.Fatalf("read config: %v", err)
	}
	if strings.Contains(string(b), "gsk_env_secret_value") {
		t.Fatalf("environment key was persisted:\n%s", b)
	}

	out := runCmd(t, "config", "show")
	if !strings.Contains(out, "default_model: llama-3.3-70b-versatile") {
		t.Fatalf("model not shown:\n%s", out)
	}
	if !strings.Contains(out, "max_correlations: 5") {
		t.Fatalf("max_correlations not shown:\n%s", out)
	}
	if strings.Contains(out, "gsk_env_secret_value") || !strings.Contains(out, "gsk****lue") {
		t.Fatalf("api key not masked:\n%s", out)
	}

	if _, err := execute(t, "config", "set", "correlation_dedup", "bogus"); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestCLI_ModelsFilter(t *testing.T) {
	isolateHome(t)
	out := runCmd(t, "models", "--provider", "ollama", "--json")
	var list []map[string]any
	if err := json.Unmarshal([]byte(out), &list); err != nil {
		t.Fatalf("decode: %v\n%s", err, out)
	}
	if len(list) == 0 {
		t.Fatalf("expected ollama models")
	}
	for _, m := range list {
		if m["provider"] != "ollama" {
			t.Fatalf("unexpected provider in %v", m)
		}
	}
	if _, err := execute(t, "models", "--provider", "nope"); err == nil {
		t.Fatalf("expected unknown provider error")
	}
}

func TestExpandInputsDedupsAndSorts(t *testing.T) {
	dir := t.TempDir()
	a := writeCSV(t, dir, "a.csv", "x\n1\n")
	b := writeCSV(t, dir, "b.csv", "x\n1\n")
	got, err := expandInputs([]string{filepath.Join(dir, "*.csv"), a, b})
	if err != nil {
		t.Fatalf("expand: %v", err)
	}
	if len(got) != 2 || got[0] != a || got[1] != b {
		t.Fatalf("unexpected files %v", got)
	}
	if _, err := expandInputs([]string{filepath.Join(dir, "*.xlsx")}); err == nil {
		t.Fatalf("expected no-match error")
	}
}

func TestMask(t *testing.T) {
	cases := map[string]string{"": "", "abc": "******", "gsk_1234567": "gsk****567"}
	for in, want := range cases {
		if got := mask(in); got != want {
			t.Errorf("mask(%q) = %q, want %q", in, got, want)
		}
	}
}
