package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"sigs.k8s.io/yaml"
)

const rulesYAML = `
- id: deep-scroll
  name: Deep Scroll
  description: Break after a long scroll
  conditions:
    - field: scroll_depth
      operator: GreaterThan
      value: 50
  actions:
    - type: SuggestBreak
  probability: 1
  enabled: true
- id: videos
  name: Videos
  description: Calm lens on video
  conditions:
    - field: content_type
      operator: Matches
      value: "^video/"
  actions:
    - type: ApplyLens
      payload:
        lens_name: calm
  probability: 1
  enabled: true
`

const contextJSON = `{"platform":"youtube","content_type":"video/mp4","scroll_depth":80,"session_duration":60,"recent_categories":[],"timestamp":0}`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func TestEvaluateCommand(t *testing.T) {
	rulesPath := writeFile(t, "rules.yaml", rulesYAML)
	ctxPath := writeFile(t, "ctx.json", contextJSON)

	tcs := map[string]struct {
		args []string
		want string
	}{
		"cel matcher": {
			args: []string{"evaluate", "--rules", rulesPath, "--context", ctxPath},
			want: `[{"type":"SuggestBreak"},{"type":"ApplyLens","payload":{"lens_name":"calm"}}]`,
		},
		"no matcher": {
			args: []string{"evaluate", "--rules", rulesPath, "--context", ctxPath, "--matcher", "none"},
			want: `[{"type":"SuggestBreak"}]`,
		},
		"seeded": {
			args: []string{"evaluate", "--rules", rulesPath, "--context", ctxPath, "--seed", "42"},
			want: `[{"type":"SuggestBreak"},{"type":"ApplyLens","payload":{"lens_name":"calm"}}]`,
		},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			out, _, err := execute(t, tc.args...)
			require.NoError(t, err)
			assert.Equal(t, tc.want, strings.TrimSpace(out))
		})
	}
}

func TestEvaluateCommandYAMLOutput(t *testing.T) {
	rulesPath := writeFile(t, "rules.yaml", rulesYAML)
	ctxPath := writeFile(t, "ctx.json", contextJSON)

	out, _, err := execute(t, "evaluate", "--rules", rulesPath, "--context", ctxPath, "--matcher", "none", "--format", "yaml")
	require.NoError(t, err)

	j, err := yaml.YAMLToJSON([]byte(out))
	require.NoError(t, err)
	assert.JSONEq(t, `[{"type":"SuggestBreak"}]`, string(j))
}

func TestEvaluateCommandErrors(t *testing.T) {
	rulesPath := writeFile(t, "rules.yaml", rulesYAML)
	badCtx := writeFile(t, "ctx.json", `{"platform":"x"}`)

	tcs := map[string]struct {
		args    []string
		wantErr string
	}{
		"missing flags": {
			args:    []string{"evaluate"},
			wantErr: "required flag",
		},
		"bad context": {
			args:    []string{"evaluate", "--rules", rulesPath, "--context", badCtx},
			wantErr: "parse error: context",
		},
		"unknown format": {
			args:    []string{"evaluate", "--rules", rulesPath, "--context", badCtx, "--format", "xml"},
			wantErr: "unknown codec",
		},
		"unknown matcher": {
			args:    []string{"evaluate", "--rules", rulesPath, "--context", writeFile(t, "ok.json", contextJSON), "--matcher", "glob"},
			wantErr: "unknown matcher",
		},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			_, _, err := execute(t, tc.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestNarrateCommand(t *testing.T) {
	out, _, err := execute(t, "narrate", "--rules", writeFile(t, "rules.yaml", rulesYAML))
	require.NoError(t, err)
	assert.Equal(t, "• Deep Scroll: Break after a long scroll\n• Videos: Calm lens on video\n", out)
}

func TestPresetsCommand(t *testing.T) {
	out, _, err := execute(t, "presets")
	require.NoError(t, err)
	assert.Contains(t, out, `"id":"noise-injection"`)
	assert.Contains(t, out, `"id":"engagement-disruption"`)

	out, _, err = execute(t, "presets", "--format", "yaml")
	require.NoError(t, err)
	assert.Contains(t, out, "id: profile-dilution")
}

func TestValidateCommand(t *testing.T) {
	out, _, err := execute(t, "validate", "--rules", writeFile(t, "rules.yaml", rulesYAML))
	require.NoError(t, err)
	assert.Equal(t, "2 rules OK\n", out)

	bad := rulesYAML + strings.Replace(strings.SplitN(rulesYAML, "- id: videos", 2)[0], `value: 50`, `value: 60`, 1)
	bad = strings.Replace(bad, `"^video/"`, `"(["`, 1)

	_, stderr, err := execute(t, "validate", "--rules", writeFile(t, "bad.yaml", bad))
	require.Error(t, err)
	assert.Contains(t, stderr, "invalid pattern")
	assert.Contains(t, stderr, "already exists")
}
