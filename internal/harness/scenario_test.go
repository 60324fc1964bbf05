package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalScenario = `
name: minimal
description: one push
config:
  name: fbsource
commits:
  - label: root
    files: [README]
steps:
  - action: push
    bookmark: main
    new: root
    commits: [root]
`

func TestLoadScenario(t *testing.T) {
	path := filepath.Join(t.TempDir(), "minimal.yaml")
	require.NoError(t, os.WriteFile(path, []byte(minimalScenario), 0o644))

	scenario, err := LoadScenario(path)
	require.NoError(t, err)
	assert.Equal(t, "minimal", scenario.Name)
	require.Len(t, scenario.Steps, 1)
	assert.Equal(t, ActionPush, scenario.Steps[0].Action)
	assert.Equal(t, []string{"root"}, scenario.Steps[0].Commits)

	cfg, err := scenario.RepoConfig()
	require.NoError(t, err)
	assert.Equal(t, "fbsource", cfg.Name)
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestParseScenario_UnknownField(t *testing.T) {
	_, err := ParseScenario([]byte(minimalScenario + "assertion: []\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML")
}

func TestParseScenario_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "missing name",
			yaml:    "description: d\nconfig: {name: r}\nsteps: [{action: push}]\n",
			wantErr: "name is required",
		},
		{
			name:    "missing config",
			yaml:    "name: n\ndescription: d\nsteps: [{action: push}]\n",
			wantErr: "config mapping is required",
		},
		{
			name:    "no steps",
			yaml:    "name: n\ndescription: d\nconfig: {name: r}\n",
			wantErr: "steps list is required",
		},
		{
			name:    "unknown action",
			yaml:    "name: n\ndescription: d\nconfig: {name: r}\nsteps: [{action: merge}]\n",
			wantErr: `unknown action "merge"`,
		},
		{
			name: "parent declared later",
			yaml: "name: n\ndescription: d\nconfig: {name: r}\n" +
				"commits: [{label: a, parents: [b]}, {label: b}]\nsteps: [{action: push}]\n",
			wantErr: `parent "b" must be declared first`,
		},
		{
			name:    "unknown step commit",
			yaml:    "name: n\ndescription: d\nconfig: {name: r}\nsteps: [{action: push, commits: [x]}]\n",
			wantErr: `unknown commit "x"`,
		},
		{
			name:    "unknown outcome",
			yaml:    "name: n\ndescription: d\nconfig: {name: r}\nsteps: [{action: push, expect: {outcome: MAYBE}}]\n",
			wantErr: `unknown outcome "MAYBE"`,
		},
		{
			name: "bookmark assertion without target",
			yaml: "name: n\ndescription: d\nconfig: {name: r}\nsteps: [{action: push}]\n" +
				"assertions: [{type: bookmark, bookmark: main}]\n",
			wantErr: "exactly one of at or absent is required",
		},
		{
			name: "unknown assertion",
			yaml: "name: n\ndescription: d\nconfig: {name: r}\nsteps: [{action: push}]\n" +
				"assertions: [{type: final_state}]\n",
			wantErr: `unknown assertion type "final_state"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestScenario_RepoConfigRejectedBySchema(t *testing.T) {
	scenario, err := ParseScenario([]byte(`
name: bad_config
description: unknown config field
config:
  name: fbsource
  colour: blue
steps:
  - action: push
`))
	require.NoError(t, err)

	_, err = scenario.RepoConfig()
	require.Error(t, err)
}
