package ai

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultModelInCatalog(t *testing.T) {
	mi, ok := LookupModel(DefaultModel)
	if !ok {
		t.Fatalf("default model %s missing from catalog", DefaultModel)
	}
	if mi.Provider != ProviderGroq || mi.ContextTokens <= 0 {
		t.Fatalf("unexpected entry: %+v", mi)
	}
}

func TestCatalogSorted(t *testing.T) {
	list := Catalog()
	for i := 1; i < len(list); i++ {
		a, b := list[i-1], list[i]
		if a.Provider > b.Provider || (a.Provider == b.Provider && a.Name > b.Name) {
			t.Fatalf("catalog not sorted at %d: %s/%s then %s/%s", i, a.Provider, a.Name, b.Provider, b.Name)
		}
	}
}

func TestLoadAndMergeCatalog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "models.yaml")
	data := "custom-model:\n  provider: groq\n  context_tokens: 2048\n  input_per_k: 0.001\n"
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	m, err := LoadCatalog(path)
	if err != nil {
		t.Fatalf("LoadCatalog: %v", err)
	}
	if m["custom-model"].Name != "custom-model" {
		t.Fatalf("name not defaulted from key: %+v", m["custom-model"])
	}
	MergeCatalog(m)
	mi, ok := LookupModel("custom-model")
	if !ok || mi.ContextTokens != 2048 {
		t.Fatalf("merged entry = %+v, %v", mi, ok)
	}
	cost, ok := EstimateCostUSD("custom-model", 2000, 0)
	if !ok || cost < 0.0019 || cost > 0.0021 {
		t.Fatalf("cost = %v", cost)
	}
}
