package ai

import (
	"fmt"
	"os"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"
)

// ModelInfo describes a chat model known to the CLI. Prices are
// illustrative and meant for rough estimates only.
type ModelInfo struct {
	Name          string  `yaml:"name" json:"name"`
	Provider      string  `yaml:"provider" json:"provider"`
	ContextTokens int     `yaml:"context_tokens" json:"context_tokens"`
	InputPerK     float64 `yaml:"input_per_k" json:"input_per_k"`   // USD per 1K input tokens
	OutputPerK    float64 `yaml:"output_per_k" json:"output_per_k"` // USD per 1K output tokens
}

// DefaultModel is the model used when none is configured.
const DefaultModel = "llama-3.1-8b-instant"

var (
	catalogMu sync.RWMutex
	models    = map[string]ModelInfo{
		"llama-3.1-8b-instant": {
			Name: "llama-3.1-8b-instant", Provider: ProviderGroq,
			ContextTokens: 131072, InputPerK: 0.00005, OutputPerK: 0.00008,
		},
		"llama-3.3-70b-versatile": {
			Name: "llama-3.3-70b-versatile", Provider: ProviderGroq,
			ContextTokens: 131072, InputPerK: 0.00059, OutputPerK: 0.00079,
		},
		"gemma2-9b-it": {
			Name: "gemma2-9b-it", Provider: ProviderGroq,
			ContextTokens: 8192, InputPerK: 0.0002, OutputPerK: 0.0002,
		},
		"mixtral-8x7b-32768": {
			Name: "mixtral-8x7b-32768", Provider: ProviderGroq,
			ContextTokens: 32768, InputPerK: 0.00024, OutputPerK: 0.00024,
		},
		"meta-llama/llama-3.1-8b-instruct": {
			Name: "meta-llama/llama-3.1-8b-instruct", Provider: ProviderOpenRouter,
			ContextTokens: 131072,
		},
		"openai/gpt-4o-mini": {
			Name: "openai/gpt-4o-mini", Provider: ProviderOpenRouter,
			ContextTokens: 128000, InputPerK: 0.00015, OutputPerK: 0.0006,
		},
		"anthropic/claude-3-haiku": {
			Name: "anthropic/claude-3-haiku", Provider: ProviderOpenRouter,
			ContextTokens: 200000, InputPerK: 0.00025, OutputPerK: 0.00125,
		},
		"llama3.1:8b": {
			Name: "llama3.1:8b", Provider: ProviderOllama, ContextTokens: 8192,
		},
		"mistral:7b-instruct": {
			Name: "mistral:7b-instruct", Provider: ProviderOllama, ContextTokens: 8192,
		},
		"phi3:mini-4k-instruct": {
			Name: "phi3:mini-4k-instruct", Provider: ProviderOllama, ContextTokens: 4096,
		},
	}
)

// LookupModel returns the catalog entry for name.
func LookupModel(name string) (ModelInfo, bool) {
	catalogMu.RLock()
	defer catalogMu.RUnlock()
	mi, ok := models[name]
	return mi, ok
}

// EstimateCostUSD prices a call. ok is false for unknown models.
func EstimateCostUSD(model string, promptTokens, completionTokens int) (float64, bool) {
	mi, ok := LookupModel(model)
	if !ok {
		return 0, false
	}
	return float64(promptTokens)/1000*mi.InputPerK + float64(completionTokens)/1000*mi.OutputPerK, true
}

// LoadCatalog reads a YAML (or JSON) mapping of model name to ModelInfo.
// Entries without a name take their key.
func LoadCatalog(path string) (map[string]ModelInfo, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	var m map[string]ModelInfo
	if err := yaml.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("parse catalog %s: %w", path, err)
	}
	for k, v := range m {
		if v.Name == "" {
			v.Name = k
			m[k] = v
		}
	}
	return m, nil
}

// MergeCatalog adds or replaces entries in the in-memory catalog.
func MergeCatalog(m map[string]ModelInfo) {
	catalogMu.Lock()
	defer catalogMu.Unlock()
	for k, v := range m {
		models[k] = v
	}
}

// Catalog returns the catalog sorted by provider, then name.
func Catalog() []ModelInfo {
	catalogMu.RLock()
	out := make([]ModelInfo, 0, len(models))
	for _, v := range models {
		out = append(out, v)
	}
	catalogMu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].Provider != out[j].Provider {
			return out[i].Provider < out[j].Provider
		}
		return out[i].Name < out[j].Name
	})
	return out
}
