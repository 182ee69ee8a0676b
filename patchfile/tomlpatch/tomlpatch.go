// Package tomlpatch reads TOML patch files:
//
//	[[patch]]
//	name = "Return a default title"
//	enabled = true
//	group = "titles"
//
//	[[patch.wrap_returns]]
//	targets = [{ class = "com.example.Book", method = "getTitle" }]
//	wrapper = { class = "com.example.Hooks", method = "title", descriptor = "(Ljava/lang/String;)Ljava/lang/String;" }
//	requests = ["ReturnValue"]
//
// Patches are applied in file order. Within a patch, exit_early scripts are
// applied first, then wrap_call, then wrap_returns.
package tomlpatch

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/pgaskin/classpatch/patchfile"
	"github.com/pgaskin/classpatch/patchlib"
	"github.com/pkg/errors"
)

// PatchSet represents a series of patches.
type PatchSet struct {
	Patches []*Patch `toml:"patch"`
}

// Patch is a named group of scripts.
type Patch struct {
	Name        string                  `toml:"name"`
	Enabled     *bool                   `toml:"enabled"`
	Description string                  `toml:"description"`
	Group       string                  `toml:"group"`
	ExitEarly   []patchfile.ExitEarly   `toml:"exit_early"`
	WrapCall    []patchfile.WrapCall    `toml:"wrap_call"`
	WrapReturns []patchfile.WrapReturns `toml:"wrap_returns"`
}

// Parse parses a PatchSet from a buf. Unknown keys are an error.
func Parse(buf []byte) (patchfile.PatchSet, error) {
	patchfile.Log("parsing patch file\n")
	ps := &PatchSet{}
	md, err := toml.Decode(string(buf), ps)
	if err != nil {
		return nil, errors.Wrap(err, "error parsing patch file")
	}
	if u := md.Undecoded(); len(u) != 0 {
		ks := make([]string, len(u))
		for i, k := range u {
			ks[i] = k.String()
		}
		return nil, errors.Errorf("error parsing patch file: unknown keys: %s", strings.Join(ks, ", "))
	}
	patchfile.Log("  %d patches\n", len(ps.Patches))
	return ps, nil
}

// Validate validates the PatchSet.
func (ps *PatchSet) Validate() error {
	seen := map[string]bool{}
	enabledGroups := map[string]bool{}
	for i, p := range ps.Patches {
		if p.Name == "" {
			return errors.Errorf("patch %d has no name", i+1)
		}
		if seen[p.Name] {
			return errors.Errorf("more than one patch named `%s`", p.Name)
		}
		seen[p.Name] = true
		if p.Enabled == nil {
			return errors.Errorf("no `enabled` option in `%s`", p.Name)
		}
		scripts := p.scripts()
		if len(scripts) == 0 {
			return errors.Errorf("no scripts in `%s`", p.Name)
		}
		for _, s := range scripts {
			if _, err := s.Build(); err != nil {
				return errors.Wrapf(err, "invalid script in patch `%s`", p.Name)
			}
		}
		if p.Group != "" && *p.Enabled {
			if enabledGroups[p.Group] {
				return errors.Errorf("more than one patch enabled in group `%s`", p.Group)
			}
			enabledGroups[p.Group] = true
		}
		patchfile.Log("  `%s`: enabled:%t group:%s scripts:%d\n", p.Name, *p.Enabled, p.Group, len(scripts))
	}
	return nil
}

// Scripts returns the scripts of every enabled patch.
func (ps *PatchSet) Scripts() ([]patchlib.PatchScript, error) {
	if err := ps.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid patch file")
	}
	var scripts []patchlib.PatchScript
	for _, p := range ps.Patches {
		if !*p.Enabled {
			continue
		}
		s, err := p.build()
		if err != nil {
			return nil, errors.Wrapf(err, "patch `%s`", p.Name)
		}
		scripts = append(scripts, s...)
	}
	return scripts, nil
}

// ApplyTo applies a PatchSet to a Patcher.
func (ps *PatchSet) ApplyTo(pt *patchlib.Patcher) error {
	patchfile.Log("validating patch file\n")
	if err := ps.Validate(); err != nil {
		err = errors.Wrap(err, "invalid patch file")
		fmt.Printf("  Error: %v\n", err)
		return err
	}

	total := len(ps.Patches)
	for n, p := range ps.Patches {
		if !*p.Enabled {
			patchfile.Log("  [%d/%d] skipping disabled patch `%s`\n", n+1, total, p.Name)
			continue
		}
		scripts, err := p.build()
		if err != nil {
			return errors.Wrapf(err, "patch `%s`", p.Name)
		}
		affected := false
		for _, s := range scripts {
			affected = affected || s.WouldPatch(pt.ClassName())
		}
		if !affected {
			continue
		}
		fmt.Printf("  [%d/%d] Applying patch `%s` to %s\n", n+1, total, p.Name, pt.ClassName())
		if err := patchfile.ApplyScripts(pt, p.Name, scripts); err != nil {
			fmt.Printf("    Error: could not apply patch: %v\n", err)
			return err
		}
	}
	return nil
}

// SetEnabled sets the Enabled state of a Patch in a PatchSet.
func (ps *PatchSet) SetEnabled(patch string, enabled bool) error {
	for _, p := range ps.Patches {
		if p.Name == patch {
			p.Enabled = &enabled
			return nil
		}
	}
	return errors.Errorf("could not set enabled state of '%s' to %t: no such patch", patch, enabled)
}

func (p *Patch) scripts() []patchfile.Script {
	var s []patchfile.Script
	for _, e := range p.ExitEarly {
		s = append(s, e)
	}
	for _, c := range p.WrapCall {
		s = append(s, c)
	}
	for _, r := range p.WrapReturns {
		s = append(s, r)
	}
	return s
}

func (p *Patch) build() ([]patchlib.PatchScript, error) {
	var scripts []patchlib.PatchScript
	for _, s := range p.scripts() {
		ps, err := s.Build()
		if err != nil {
			return nil, err
		}
		scripts = append(scripts, ps)
	}
	return scripts, nil
}

func init() {
	patchfile.RegisterFormat("classpatch-toml", Parse)
}
