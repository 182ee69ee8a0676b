// Package classpatch reads YAML patch files, where each patch is a list of
// single-instruction bullets:
//
//	Return a default title:
//	  - Enabled: true
//	  - PatchGroup: titles
//	  - Description: Never return a null title.
//	  - WrapReturns:
//	      Targets: [com.example.Book.getTitle]
//	      Wrapper: {Class: com.example.Hooks, Method: title, Descriptor: (Ljava/lang/String;)Ljava/lang/String;}
//	      Requests: [ReturnValue]
//
// Patches are applied in name order.
package classpatch

import (
	"fmt"
	"sort"

	"github.com/pgaskin/classpatch/patchfile"
	"github.com/pgaskin/classpatch/patchlib"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// PatchSet represents a series of patches.
type PatchSet map[string]Patch

// Parse parses a PatchSet from a buf.
func Parse(buf []byte) (patchfile.PatchSet, error) {
	patchfile.Log("parsing patch file\n")
	var pn map[string]PatchNode
	if err := yaml.Unmarshal(buf, &pn); err != nil {
		return nil, errors.Wrap(err, "error parsing patch file")
	}

	patchfile.Log("parsing patch file: decoding instructions\n")
	ps := PatchSet{}
	for n, p := range pn {
		ins, err := p.ToInstructionNodes()
		if err != nil {
			return nil, errors.Wrapf(err, "error parsing patch file: patch `%s`", n)
		}
		ps[n] = Patch{}
		for _, in := range ins {
			i, err := in.ToInstruction()
			if err != nil {
				return nil, errors.Wrapf(err, "error parsing patch file: patch `%s`", n)
			}
			ps[n] = append(ps[n], i)
		}
		patchfile.Log("  `%s`: %d instructions\n", n, len(ps[n]))
	}
	return &ps, nil
}

// Validate validates the PatchSet.
func (ps *PatchSet) Validate() error {
	enabledPatchGroups := map[string]bool{}
	for _, n := range ps.names() {
		p := (*ps)[n]
		ec := 0
		e := false
		pgc := 0
		pg := ""
		dc := 0
		sc := 0

		for _, i := range p {
			ic := 0
			if i.Enabled != nil {
				ec++
				e = bool(*i.Enabled)
				ic++
			}
			if i.Description != nil {
				dc++
				ic++
			}
			if i.PatchGroup != nil {
				pgc++
				pg = string(*i.PatchGroup)
				ic++
			}
			if i.ExitEarly != nil {
				ic++
			}
			if i.WrapCall != nil {
				ic++
			}
			if i.WrapReturns != nil {
				ic++
			}
			patchfile.Log("  ic:%d\n", ic)
			if ic < 1 {
				return errors.Errorf("empty instruction in patch `%s`", n)
			}
			if ic > 1 {
				return errors.Errorf("more than one instruction per bullet in patch `%s` (you might be missing a -)", n)
			}
			if s := i.Script(); s != nil {
				sc++
				if _, err := s.Build(); err != nil {
					return errors.Wrapf(err, "invalid instruction in patch `%s`", n)
				}
			}
		}
		patchfile.Log("  ec:%d, e:%t, pgc:%d, pg:%s, dc:%d, sc:%d\n", ec, e, pgc, pg, dc, sc)
		if ec < 1 {
			return errors.Errorf("no `Enabled` option in `%s`", n)
		} else if ec > 1 {
			return errors.Errorf("more than one `Enabled` option in `%s`", n)
		}
		if dc > 1 {
			return errors.Errorf("more than one `Description` option in `%s` (use comments to describe individual lines)", n)
		}
		if pgc > 1 {
			return errors.Errorf("more than one `PatchGroup` option in `%s`", n)
		}
		if sc < 1 {
			return errors.Errorf("no instructions in `%s`", n)
		}
		if pg != "" && e {
			if _, ok := enabledPatchGroups[pg]; ok {
				return errors.Errorf("more than one patch enabled in PatchGroup `%s`", pg)
			}
			enabledPatchGroups[pg] = true
		}
	}
	patchfile.Log("  enabledPatchGroups:%v\n", enabledPatchGroups)
	return nil
}

// Scripts returns the scripts of every enabled patch.
func (ps *PatchSet) Scripts() ([]patchlib.PatchScript, error) {
	if err := ps.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid patch file")
	}
	var scripts []patchlib.PatchScript
	for _, n := range ps.names() {
		if !(*ps)[n].enabled() {
			continue
		}
		s, err := (*ps)[n].scripts()
		if err != nil {
			return nil, errors.Wrapf(err, "patch `%s`", n)
		}
		scripts = append(scripts, s...)
	}
	return scripts, nil
}

// ApplyTo applies a PatchSet to a Patcher. Patches which don't affect the
// class are skipped silently.
func (ps *PatchSet) ApplyTo(pt *patchlib.Patcher) error {
	patchfile.Log("validating patch file\n")
	err := ps.Validate()
	if err != nil {
		err = errors.Wrap(err, "invalid patch file")
		fmt.Printf("  Error: %v\n", err)
		return err
	}

	patchfile.Log("looping over patches\n")
	names := ps.names()
	num, total := 0, len(names)
	for _, n := range names {
		num++
		p := (*ps)[n]

		enabled := p.enabled()
		patchfile.Log("  Enabled: %t\n", enabled)

		if !enabled {
			patchfile.Log("  [%d/%d] skipping disabled patch `%s`\n", num, total, n)
			continue
		}

		scripts, err := p.scripts()
		if err != nil {
			return errors.Wrapf(err, "patch `%s`", n)
		}
		if !wouldPatch(scripts, pt.ClassName()) {
			patchfile.Log("  [%d/%d] patch `%s` does not affect %s\n", num, total, n, pt.ClassName())
			continue
		}

		patchfile.Log("  applying patch `%s`\n", n)
		fmt.Printf("  [%d/%d] Applying patch `%s` to %s\n", num, total, n, pt.ClassName())

		if err := patchfile.ApplyScripts(pt, n, scripts); err != nil {
			patchfile.Log("could not apply patch: %v\n", err)
			fmt.Printf("    Error: could not apply patch: %v\n", err)
			return err
		}
	}
	return nil
}

// SetEnabled sets the Enabled state of a Patch in a PatchSet.
func (ps *PatchSet) SetEnabled(patch string, enabled bool) error {
	for n := range *ps {
		if n != patch {
			continue
		}
		for i := range (*ps)[n] {
			if (*ps)[n][i].Enabled != nil {
				*(*ps)[n][i].Enabled = Enabled(enabled)
				return nil
			}
		}
		return errors.Errorf("could not set enabled state of '%s' to %t: no Enabled instruction in patch", patch, enabled)
	}
	return errors.Errorf("could not set enabled state of '%s' to %t: no such patch", patch, enabled)
}

func (ps *PatchSet) names() []string {
	names := make([]string, 0, len(*ps))
	for n := range *ps {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func (p Patch) enabled() bool {
	for _, i := range p {
		if i.Enabled != nil && bool(*i.Enabled) {
			return true
		}
	}
	return false
}

func (p Patch) scripts() ([]patchlib.PatchScript, error) {
	var scripts []patchlib.PatchScript
	for _, i := range p {
		if s := i.Script(); s != nil {
			ps, err := s.Build()
			if err != nil {
				return nil, err
			}
			scripts = append(scripts, ps)
		}
	}
	return scripts, nil
}

func wouldPatch(scripts []patchlib.PatchScript, className string) bool {
	for _, s := range scripts {
		if s.WouldPatch(className) {
			return true
		}
	}
	return false
}

func init() {
	patchfile.RegisterFormat("classpatch", Parse)
}
