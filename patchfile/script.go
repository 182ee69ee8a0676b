package patchfile

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pgaskin/classpatch/patchlib"
	"gopkg.in/yaml.v3"
)

// Script is an instruction which builds a patch script.
type Script interface {
	Build() (patchlib.PatchScript, error)
}

// Target selects methods. Returns and Params are optional; Params requires
// Returns.
type Target struct {
	Class   string   `yaml:"Class" toml:"class"`
	Method  string   `yaml:"Method" toml:"method"`
	Returns *string  `yaml:"Returns,omitempty" toml:"returns"`
	Params  []string `yaml:"Params,omitempty,flow" toml:"params"`
	Inline  bool     `yaml:"-" toml:"-"` // whether the target was written as Class.Method
}

// UnmarshalYAML allows writing a target as a single Class.Method string.
func (t *Target) UnmarshalYAML(n *yaml.Node) error {
	*t = Target{} // reset

	var s string
	if err := n.DecodeStrict(&s); err == nil {
		i := strings.LastIndex(s, ".")
		if i <= 0 || i == len(s)-1 {
			return fmt.Errorf("line %d: target %#v is not in the form Class.Method", n.Line, s)
		}
		t.Class, t.Method, t.Inline = s[:i], s[i+1:], true
		return nil
	}

	type TargetData Target // no UnmarshalYAML, same tags
	var obj TargetData
	if err := n.DecodeStrict(&obj); err != nil {
		return fmt.Errorf("line %d: %w", n.Line, err)
	}
	*t = Target(obj)
	return nil
}

// Build creates the matcher.
func (t Target) Build() (*patchlib.MethodTarget, error) {
	if t.Returns == nil {
		if len(t.Params) != 0 {
			return nil, fmt.Errorf("target %s.%s: Params requires Returns", t.Class, t.Method)
		}
		return patchlib.NewMethodTarget(t.Class, t.Method)
	}
	return patchlib.NewMethodTargetDesc(t.Class, t.Method, *t.Returns, t.Params...)
}

// Hook refers to a static hook method.
type Hook struct {
	Class      string `yaml:"Class" toml:"class"`
	Method     string `yaml:"Method" toml:"method"`
	Descriptor string `yaml:"Descriptor" toml:"descriptor"`
}

// Build creates the hook reference. A nil Hook builds to nil.
func (h *Hook) Build() (*patchlib.Hook, error) {
	if h == nil {
		return nil, nil
	}
	return patchlib.NewHook(h.Class, h.Method, h.Descriptor)
}

// ParseRequests parses the names of the values to push before a hook is
// called: This, ReturnValue, or ParamN (zero-based). Names are not case
// sensitive.
func ParseRequests(names []string) (patchlib.StackRequests, error) {
	var r patchlib.StackRequests
	for _, name := range names {
		switch l := strings.ToLower(name); {
		case l == "this":
			r |= patchlib.RequestThis
		case l == "returnvalue":
			r |= patchlib.RequestReturnValue
		case strings.HasPrefix(l, "param"):
			i, err := strconv.Atoi(l[len("param"):])
			if err != nil || i < 0 || i >= patchlib.MaxParams {
				return 0, fmt.Errorf("invalid parameter request %#v", name)
			}
			r |= patchlib.RequestParam(i)
		default:
			return 0, fmt.Errorf("unknown request %#v", name)
		}
	}
	return r, nil
}

func buildCommon(targets []Target, strategy string, requests []string) ([]patchlib.TargetMatcher, patchlib.InvocationStrategy, patchlib.StackRequests, error) {
	if len(targets) == 0 {
		return nil, 0, 0, fmt.Errorf("no targets")
	}
	ms := make([]patchlib.TargetMatcher, len(targets))
	for i, t := range targets {
		m, err := t.Build()
		if err != nil {
			return nil, 0, 0, err
		}
		ms[i] = m
	}
	s, err := patchlib.ParseInvocationStrategy(strategy)
	if err != nil {
		return nil, 0, 0, err
	}
	r, err := ParseRequests(requests)
	if err != nil {
		return nil, 0, 0, err
	}
	return ms, s, r, nil
}

// ExitEarly builds a patchlib.ExitEarlyScript.
type ExitEarly struct {
	Targets  []Target `yaml:"Targets" toml:"targets"`
	Decision *Hook    `yaml:"Decision,omitempty,flow" toml:"decision"`
	Value    *Hook    `yaml:"Value,omitempty,flow" toml:"value"`
	Strategy string   `yaml:"Strategy,omitempty" toml:"strategy"`
	Requests []string `yaml:"Requests,omitempty,flow" toml:"requests"`
}

func (e ExitEarly) Build() (patchlib.PatchScript, error) {
	ms, s, r, err := buildCommon(e.Targets, e.Strategy, e.Requests)
	if err != nil {
		return nil, fmt.Errorf("ExitEarly: %w", err)
	}
	decision, err := e.Decision.Build()
	if err != nil {
		return nil, fmt.Errorf("ExitEarly: Decision: %w", err)
	}
	value, err := e.Value.Build()
	if err != nil {
		return nil, fmt.Errorf("ExitEarly: Value: %w", err)
	}
	sc, err := patchlib.NewExitEarlyScript(patchlib.ExitEarlyConfig{
		Targets:  ms,
		Decision: decision,
		Value:    value,
		Strategy: s,
		Requests: r,
	})
	if err != nil {
		return nil, fmt.Errorf("ExitEarly: %w", err)
	}
	return sc, nil
}

// WrapCall builds a patchlib.WrapCallScript.
type WrapCall struct {
	Targets  []Target `yaml:"Targets" toml:"targets"`
	Call     *Hook    `yaml:"Call,flow" toml:"call"`
	Wrapper  *Hook    `yaml:"Wrapper,flow" toml:"wrapper"`
	Strategy string   `yaml:"Strategy,omitempty" toml:"strategy"`
	Requests []string `yaml:"Requests,omitempty,flow" toml:"requests"`
}

func (c WrapCall) Build() (patchlib.PatchScript, error) {
	ms, s, r, err := buildCommon(c.Targets, c.Strategy, c.Requests)
	if err != nil {
		return nil, fmt.Errorf("WrapCall: %w", err)
	}
	call, err := c.Call.Build()
	if err != nil {
		return nil, fmt.Errorf("WrapCall: Call: %w", err)
	}
	wrapper, err := c.Wrapper.Build()
	if err != nil {
		return nil, fmt.Errorf("WrapCall: Wrapper: %w", err)
	}
	sc, err := patchlib.NewWrapCallScript(patchlib.WrapCallConfig{
		Targets:  ms,
		Call:     call,
		Wrapper:  wrapper,
		Strategy: s,
		Requests: r,
	})
	if err != nil {
		return nil, fmt.Errorf("WrapCall: %w", err)
	}
	return sc, nil
}

// WrapReturns builds a patchlib.WrapReturnsScript.
type WrapReturns struct {
	Targets  []Target `yaml:"Targets" toml:"targets"`
	Wrapper  *Hook    `yaml:"Wrapper,flow" toml:"wrapper"`
	Strategy string   `yaml:"Strategy,omitempty" toml:"strategy"`
	Requests []string `yaml:"Requests,omitempty,flow" toml:"requests"`
	Cast     bool     `yaml:"Cast,omitempty" toml:"cast"`
}

func (w WrapReturns) Build() (patchlib.PatchScript, error) {
	ms, s, r, err := buildCommon(w.Targets, w.Strategy, w.Requests)
	if err != nil {
		return nil, fmt.Errorf("WrapReturns: %w", err)
	}
	wrapper, err := w.Wrapper.Build()
	if err != nil {
		return nil, fmt.Errorf("WrapReturns: Wrapper: %w", err)
	}
	sc, err := patchlib.NewWrapReturnsScript(patchlib.WrapReturnsConfig{
		Targets:  ms,
		Wrapper:  wrapper,
		Strategy: s,
		Requests: r,
		Cast:     w.Cast,
	})
	if err != nil {
		return nil, fmt.Errorf("WrapReturns: %w", err)
	}
	return sc, nil
}

// ApplyScripts applies the scripts of a patch to a Patcher, logging what
// changed.
func ApplyScripts(pt *patchlib.Patcher, patch string, scripts []patchlib.PatchScript) error {
	for _, s := range scripts {
		Log("    %s\n", s.Name())
		changed, err := pt.Apply(s)
		if err != nil {
			return fmt.Errorf("patch `%s`: %w", patch, err)
		}
		Log("      changed: %t\n", changed)
	}
	return nil
}
