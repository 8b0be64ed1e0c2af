package catalog

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const yamlCatalog = `
- id: late-night
  name: Late Night
  description: Nudge towards bed
  conditions:
    - field: session_duration
      operator: GreaterThan
      value: 3600
  actions:
    - type: SuggestBreak
  probability: 1
  enabled: true
- id: calm-lens
  name: Calm Lens
  description: Soften the feed
  conditions: []
  actions:
    - type: ApplyLens
      payload:
        lens_name: calm
  probability: 0.5
  enabled: false
`

func writeCatalogFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
	return path
}

func TestFileRuleStoreLoadsYAML(t *testing.T) {
	path := writeCatalogFile(t, "catalog.yaml", yamlCatalog)

	store, err := NewFileRuleStore(path)
	if err != nil {
		t.Fatalf("NewFileRuleStore() failed: %v", err)
	}

	all, _ := store.List()
	if ids := entryIDs(all); !equalStrings(ids, []string{"late-night", "calm-lens"}) {
		t.Errorf("List() ids = %v", ids)
	}

	enabled, _ := store.ListEnabled()
	if ids := entryIDs(enabled); !equalStrings(ids, []string{"late-night"}) {
		t.Errorf("ListEnabled() ids = %v", ids)
	}

	e, err := store.Get("calm-lens")
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if got := e.Rule.Actions[0].Narrate(); got != "Apply lens: calm" {
		t.Errorf("action narration = %q", got)
	}
}

func TestFileRuleStoreLoadsJSON(t *testing.T) {
	path := writeCatalogFile(t, "catalog.json", `[{"id":"j","name":"J","description":"d","conditions":[],"actions":[{"type":"ClickOffTopic"}],"probability":1,"enabled":true}]`)

	store, err := NewFileRuleStore(path)
	if err != nil {
		t.Fatalf("NewFileRuleStore() failed: %v", err)
	}
	if _, err := store.Get("j"); err != nil {
		t.Errorf("Get() failed: %v", err)
	}
}

func TestFileRuleStoreRejectsBadFiles(t *testing.T) {
	testCases := []struct {
		name    string
		file    string
		content string
		wantErr string
	}{
		{
			name:    "not a list",
			file:    "c.yaml",
			content: "id: x\n",
			wantErr: "parse error",
		},
		{
			name:    "duplicate ids",
			file:    "c.yaml",
			content: yamlCatalog + strings.SplitN(yamlCatalog, "- id: calm-lens", 2)[0],
			wantErr: "already exists",
		},
		{
			name:    "invalid id",
			file:    "c.json",
			content: `[{"id":"-bad","name":"B","description":"d","conditions":[],"actions":[],"probability":1,"enabled":true}]`,
			wantErr: "invalid rule id",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			path := writeCatalogFile(t, tc.file, tc.content)
			_, err := NewFileRuleStore(path)
			if err == nil {
				t.Fatal("NewFileRuleStore() should fail")
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("error = %v, want it to contain %q", err, tc.wantErr)
			}
		})
	}
}

func TestFileRuleStoreMissingFile(t *testing.T) {
	_, err := NewFileRuleStore(filepath.Join(t.TempDir(), "missing.yaml"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("error = %v, want os.ErrNotExist", err)
	}
}

func TestFileRuleStoreIsReadOnly(t *testing.T) {
	store, err := NewFileRuleStore(writeCatalogFile(t, "catalog.yaml", yamlCatalog))
	if err != nil {
		t.Fatalf("NewFileRuleStore() failed: %v", err)
	}

	if _, err := store.Add(testRule("new", true)); !errors.Is(err, ErrReadOnly) {
		t.Errorf("Add() error = %v, want ErrReadOnly", err)
	}
	if _, err := store.Update(testRule("late-night", true)); !errors.Is(err, ErrReadOnly) {
		t.Errorf("Update() error = %v, want ErrReadOnly", err)
	}
	if err := store.Delete("late-night"); !errors.Is(err, ErrReadOnly) {
		t.Errorf("Delete() error = %v, want ErrReadOnly", err)
	}
}

func TestFileRuleStoreReload(t *testing.T) {
	path := writeCatalogFile(t, "catalog.yaml", yamlCatalog)
	store, err := NewFileRuleStore(path)
	if err != nil {
		t.Fatalf("NewFileRuleStore() failed: %v", err)
	}
	before, _ := store.Get("late-night")

	trimmed := strings.SplitN(yamlCatalog, "- id: calm-lens", 2)[0]
	if err := os.WriteFile(path, []byte(trimmed), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := store.Reload(); err != nil {
		t.Fatalf("Reload() failed: %v", err)
	}

	all, _ := store.List()
	if ids := entryIDs(all); !equalStrings(ids, []string{"late-night"}) {
		t.Errorf("List() after reload = %v", ids)
	}
	after, _ := store.Get("late-night")
	if !after.CreatedAt.Equal(before.CreatedAt) {
		t.Errorf("CreatedAt changed across reload: %v -> %v", before.CreatedAt, after.CreatedAt)
	}

	if err := os.WriteFile(path, []byte("{not yaml"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := store.Reload(); err == nil {
		t.Fatal("Reload() of a broken file should fail")
	}
	all, _ = store.List()
	if len(all) != 1 {
		t.Errorf("failed reload replaced contents, len = %d", len(all))
	}
}
