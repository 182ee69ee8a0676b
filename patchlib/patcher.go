// Package patchlib rewrites the methods of compiled JVM classes.
package patchlib

import (
	"errors"
	"fmt"

	"github.com/pgaskin/classpatch/metrics"
)

// Patcher applies scripts to a class. Each script sees the output of the
// previous one.
type Patcher struct {
	name    string
	buf     []byte
	hooks   HookLoader
	hook    func(script PatchScript, find, replace []byte) error
	changed bool
}

// NewPatcher creates a new Patcher for a class. The hook loader is only used
// by scripts which transplant or insert hooks, and may be nil otherwise.
func NewPatcher(className string, in []byte, hooks HookLoader) *Patcher {
	metrics.ClassesScanned.Inc()
	return &Patcher{name: className, buf: in, hooks: hooks}
}

// ClassName returns the name of the class being patched.
func (p *Patcher) ClassName() string {
	return p.name
}

// GetBytes returns the current content of the Patcher.
func (p *Patcher) GetBytes() []byte {
	return p.buf
}

// Changed returns true if any script changed the class.
func (p *Patcher) Changed() bool {
	return p.changed
}

// Hook sets a hook to be called right before every change. If it returns an
// error, it will be passed on. If nil (the default), the hook will be removed.
// The find and replace arguments MUST NOT be modified by the hook.
func (p *Patcher) Hook(fn func(script PatchScript, find, replace []byte) error) {
	p.hook = fn
}

// Apply runs a script over the class. It returns false if the script did not
// change anything.
func (p *Patcher) Apply(s PatchScript) (bool, error) {
	if s == nil {
		return false, errors.New("Apply: script is nil")
	}
	if !s.WouldPatch(p.name) {
		return false, nil
	}
	out, err := s.Patch(p.name, p.buf, p.hooks)
	if err != nil {
		return false, fmt.Errorf("Apply: %s: %w", s.Name(), err)
	}
	if out == nil {
		Log("%s: no matching methods in %s", s.Name(), p.name)
		return false, nil
	}
	if p.hook != nil {
		if err := p.hook(s, p.buf, out); err != nil {
			return false, fmt.Errorf("Apply: hook returned error: %w", err)
		}
	}
	if !p.changed {
		metrics.ClassesPatched.Inc()
	}
	p.buf, p.changed = out, true
	return true, nil
}
