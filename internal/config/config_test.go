package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/XavierBriggs/fortuna/internal/config"
)

const validYAML = `
feed:
  api_base: https://example.com/api
  api_token: test-token
  sharp_bookmakers: [pinnacle]
targets:
  target_bookies: [bookA, bookB]
  bookmaker_channels:
    bookA: "-1001"
    bookB: "-1002"
dispatcher:
  bot_tokens: [tok1, tok2]
`

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad_AppliesDefaults(t *testing.T) {
	path := writeConfig(t, validYAML)
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Filter.MinOdds != 1.10 || cfg.Filter.MaxOdds != 9.99 {
		t.Fatalf("expected default odds bounds, got %+v", cfg.Filter)
	}
	if cfg.Dispatcher.MaxQueue != 1000 {
		t.Fatalf("expected default dispatcher queue, got %d", cfg.Dispatcher.MaxQueue)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestValidate_RejectsUnmappedTargetBookie(t *testing.T) {
	path := writeConfig(t, `
feed:
  api_base: https://example.com/api
  api_token: test-token
  sharp_bookmakers: [pinnacle]
targets:
  target_bookies: [bookA, bookC]
  bookmaker_channels:
    bookA: "-1001"
dispatcher:
  bot_tokens: [tok1]
`)
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected Validate to reject a target bookie with no channel mapping")
	}
}

func TestAllBookmakers_UnionsSharpAndTargets(t *testing.T) {
	path := writeConfig(t, validYAML)
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	got := cfg.AllBookmakers()
	want := map[string]bool{"pinnacle": true, "bookA": true, "bookB": true}
	if len(got) != len(want) {
		t.Fatalf("AllBookmakers() = %v, want union of %v", got, want)
	}
	for _, bk := range got {
		if !want[bk] {
			t.Fatalf("unexpected bookmaker %q in %v", bk, got)
		}
	}
}
