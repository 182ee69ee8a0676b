package main

import (
	"fmt"
	"io/ioutil"
	"os"
	"strings"

	"github.com/pgaskin/classpatch/patchfile"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

type config struct {
	Version     string                     `yaml:"version"`
	In          string                     `yaml:"in"`
	Out         string                     `yaml:"out"`
	Log         string                     `yaml:"log"`
	PatchFormat string                     `yaml:"patchFormat"`
	HookPath    stringSlice                `yaml:"hookPath"`
	Patches     stringSlice                `yaml:"patches"`
	Overrides   map[string]map[string]bool `yaml:"overrides"`
	Metrics     string                     `yaml:"metrics"`
}

// stringSlice is a list of strings which can also be written as a single
// string.
type stringSlice []string

func (s *stringSlice) UnmarshalYAML(n *yaml.Node) error {
	var str string
	if err := n.DecodeStrict(&str); err == nil {
		*s = stringSlice{str}
		return nil
	}
	var arr []string
	if err := n.DecodeStrict(&arr); err != nil {
		return fmt.Errorf("line %d: expected a string or a list of strings", n.Line)
	}
	*s = arr
	return nil
}

func readConfig(fn string) (*config, error) {
	buf, err := ioutil.ReadFile(fn)
	if err != nil {
		return nil, err
	}
	return parseConfig(buf)
}

func parseConfig(buf []byte) (*config, error) {
	var n yaml.Node
	if err := yaml.Unmarshal(buf, &n); err != nil {
		return nil, err
	}
	cfg := &config{PatchFormat: "classpatch"}
	if err := n.DecodeStrict(cfg); err != nil {
		return nil, err
	}
	if cfg.Version == "" || cfg.In == "" || cfg.Out == "" || cfg.Log == "" {
		return nil, errors.New("version, in, out, and log are required")
	}
	if len(cfg.Patches) == 0 {
		return nil, errors.New("no patches specified")
	}
	if _, ok := patchfile.GetFormat(cfg.PatchFormat); !ok {
		return nil, errors.Errorf("invalid patch format %s (one of: %s)", cfg.PatchFormat, strings.Join(patchfile.GetFormats(), ","))
	}
	for pf := range cfg.Overrides {
		if !sliceContains(cfg.Patches, pf) {
			return nil, errors.Errorf("override for patch file %s which is not in patches", pf)
		}
	}
	return cfg, nil
}

// hookPath returns the hook path as a list for classpath.Parse.
func (c *config) hookPath() string {
	return strings.Join(c.HookPath, string(os.PathListSeparator))
}

// loadPatches reads every patch file, applies the overrides, and validates
// the results.
func (c *config) loadPatches() ([]patchfile.PatchSet, error) {
	var pss []patchfile.PatchSet
	for _, pf := range c.Patches {
		log("loading patch file: %s\n", pf)
		ps, err := patchfile.ReadFromFile(c.PatchFormat, pf)
		if err != nil {
			return nil, errors.Wrapf(err, "could not read and parse patch file %s", pf)
		}
		for name, enabled := range c.Overrides[pf] {
			log("  override: %s = %t\n", name, enabled)
			if err := ps.SetEnabled(name, enabled); err != nil {
				return nil, errors.Wrapf(err, "could not apply override in %s", pf)
			}
		}
		if err := ps.Validate(); err != nil {
			return nil, errors.Wrapf(err, "invalid patch file %s", pf)
		}
		pss = append(pss, ps)
	}
	return pss, nil
}

func sliceContains(arr []string, v string) bool {
	for _, i := range arr {
		if i == v {
			return true
		}
	}
	return false
}
