package main

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestStringSlice(t *testing.T) {
	for _, c := range []struct {
		In  string
		Out []string
	}{
		{`asd`, []string{"asd"}},
		{`asd sdf`, []string{"asd sdf"}},
		{`[asd, sdf]`, []string{"asd", "sdf"}},
		{`["asd", "sdf"]`, []string{"asd", "sdf"}},
		{`
    - asd
    - sdf`, []string{"asd", "sdf"}},
	} {
		t.Run(c.In, func(t *testing.T) {
			var obj struct {
				Test stringSlice `yaml:"Test"`
			}
			require.NoError(t, yaml.Unmarshal([]byte(fmt.Sprintf("Test: %s", c.In)), &obj))
			assert.Equal(t, stringSlice(c.Out), obj.Test)
		})
	}

	var obj struct {
		Test stringSlice `yaml:"Test"`
	}
	assert.Error(t, yaml.Unmarshal([]byte("Test: {a: b}"), &obj))
}

func TestParseConfig(t *testing.T) {
	cfg, err := parseConfig([]byte(`
version: "1"
in: app.jar
out: app-patched.jar
log: classpatch.log
hookPath: [hooks.jar, build/hooks]
patches: fixes.yaml
overrides:
  fixes.yaml:
    Skip run: false
`))
	require.NoError(t, err)
	assert.Equal(t, "classpatch", cfg.PatchFormat)
	assert.Equal(t, stringSlice{"fixes.yaml"}, cfg.Patches)
	assert.Equal(t, "hooks.jar"+string(os.PathListSeparator)+"build/hooks", cfg.hookPath())
	assert.Equal(t, map[string]bool{"Skip run": false}, cfg.Overrides["fixes.yaml"])

	for _, tc := range []struct {
		name string
		y    string
		err  string
	}{
		{"Missing", "version: \"1\"\nin: a.jar\nlog: l\npatches: p.yaml\n", "version, in, out, and log are required"},
		{"NoPatches", "version: \"1\"\nin: a.jar\nout: b.jar\nlog: l\n", "no patches specified"},
		{"Format", "version: \"1\"\nin: a.jar\nout: b.jar\nlog: l\npatches: p.yaml\npatchFormat: nope\n", "invalid patch format nope"},
		{"Override", "version: \"1\"\nin: a.jar\nout: b.jar\nlog: l\npatches: p.yaml\noverrides: {q.yaml: {a: true}}\n", "override for patch file q.yaml which is not in patches"},
		{"Unknown", "version: \"1\"\nin: a.jar\nout: b.jar\nlog: l\npatches: p.yaml\npatchs: q.yaml\n", "field patchs not found"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := parseConfig([]byte(tc.y))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.err)
		})
	}
}

func TestLoadPatches(t *testing.T) {
	td := t.TempDir()
	pf := filepath.Join(td, "fixes.yaml")
	require.NoError(t, os.WriteFile(pf, []byte(`
Skip run:
  - Enabled: true
  - PatchGroup: run
  - ExitEarly:
      Targets: [com.example.Book.run]
Skip run twice:
  - Enabled: false
  - PatchGroup: run
  - ExitEarly:
      Targets: [com.example.Book.run, com.example.Shelf.run]
`), 0644))

	cfg := &config{PatchFormat: "classpatch", Patches: stringSlice{pf}}
	pss, err := cfg.loadPatches()
	require.NoError(t, err)
	require.Len(t, pss, 1)
	scripts, err := pss[0].Scripts()
	require.NoError(t, err)
	require.Len(t, scripts, 1)
	assert.False(t, scripts[0].WouldPatch("com.example.Shelf"))

	cfg.Overrides = map[string]map[string]bool{pf: {"Skip run": false, "Skip run twice": true}}
	pss, err = cfg.loadPatches()
	require.NoError(t, err)
	scripts, err = pss[0].Scripts()
	require.NoError(t, err)
	require.Len(t, scripts, 1)
	assert.True(t, scripts[0].WouldPatch("com.example.Shelf"))

	cfg.Overrides = map[string]map[string]bool{pf: {"Skip run twice": true}}
	_, err = cfg.loadPatches()
	if assert.Error(t, err) {
		assert.Contains(t, err.Error(), "more than one patch enabled in PatchGroup `run`")
	}

	cfg.Overrides = map[string]map[string]bool{pf: {"Nope": true}}
	_, err = cfg.loadPatches()
	if assert.Error(t, err) {
		assert.Contains(t, err.Error(), "no such patch")
	}

	cfg = &config{PatchFormat: "classpatch", Patches: stringSlice{filepath.Join(td, "missing.yaml")}}
	_, err = cfg.loadPatches()
	assert.Error(t, err)
}
