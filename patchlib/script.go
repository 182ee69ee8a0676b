package patchlib

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pgaskin/classpatch/bytecode"
	"github.com/pgaskin/classpatch/classfile"
	"github.com/pgaskin/classpatch/metrics"
)

var (
	// ErrInvalidArgument is returned for missing or malformed arguments.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrMalformedDescriptor is returned for invalid method descriptors.
	ErrMalformedDescriptor = errors.New("malformed descriptor")
	// ErrIllegalConfiguration is returned for scripts whose options can not
	// produce valid code.
	ErrIllegalConfiguration = errors.New("illegal configuration")
	// ErrHook is returned when a hook can not be loaded or materialized.
	ErrHook = errors.New("hook error")
)

// Log is used to log debugging messages.
var Log = func(format string, a ...interface{}) {}

// PatchScript rewrites the methods of a class. Scripts are immutable and may
// be used concurrently.
type PatchScript interface {
	// Name returns a short human-readable description.
	Name() string
	// WouldPatch is a quick check for whether Patch may change a class.
	WouldPatch(className string) bool
	// AffectedClasses returns the binary names of every class the script may
	// change.
	AffectedClasses() []string
	// Patch returns the rewritten class, or nil if nothing was changed. The
	// input is not modified.
	Patch(className string, classBytes []byte, hooks HookLoader) ([]byte, error)
}

// HookLoader provides the bytes of hook classes for transplanting and
// inserting. It is not used for hooks which are called.
type HookLoader interface {
	ClassBytes(className string) ([]byte, error)
}

// MapLoader is a HookLoader for classes in memory, keyed by internal name.
type MapLoader map[string][]byte

// ClassBytes implements HookLoader.
func (m MapLoader) ClassBytes(className string) ([]byte, error) {
	buf, ok := m[classfile.InternalName(className)]
	if !ok {
		return nil, fmt.Errorf("class %s not found", className)
	}
	return buf, nil
}

// rewriteFunc creates the visitor for one matched method.
type rewriteFunc func(cp *classPatch, m *classfile.Member, body *bytecode.Body, lg *bytecode.Logistics) (bytecode.Visitor, error)

// methodLevelScript is the part shared by scripts which rewrite the bodies
// of methods selected by matchers.
type methodLevelScript struct {
	kind     string
	matchers []TargetMatcher
	affected map[string]bool
	classes  []string
	strategy InvocationStrategy
}

func newMethodLevelScript(kind string, matchers []TargetMatcher, strategy InvocationStrategy) (methodLevelScript, error) {
	s := methodLevelScript{
		kind:     kind,
		affected: map[string]bool{},
		strategy: strategy,
	}
	switch strategy {
	case Call, Transplant, Insert:
	default:
		return s, fmt.Errorf("%w: %s", ErrInvalidArgument, strategy)
	}
	for i, m := range matchers {
		if m == nil {
			return s, fmt.Errorf("%w: target %d is nil", ErrInvalidArgument, i)
		}
		for _, c := range m.AffectedClasses() {
			c = classfile.BinaryName(c)
			if !s.affected[c] {
				s.affected[c] = true
				s.classes = append(s.classes, c)
			}
		}
	}
	s.matchers = append([]TargetMatcher{}, matchers...)
	return s, nil
}

// WouldPatch implements PatchScript.
func (s *methodLevelScript) WouldPatch(className string) bool {
	return s.affected[classfile.BinaryName(className)]
}

// AffectedClasses implements PatchScript.
func (s *methodLevelScript) AffectedClasses() []string {
	return append([]string{}, s.classes...)
}

// Matchers returns the script's targets.
func (s *methodLevelScript) Matchers() []TargetMatcher {
	return append([]TargetMatcher{}, s.matchers...)
}

// Strategy returns how the script's hooks are run.
func (s *methodLevelScript) Strategy() InvocationStrategy {
	return s.strategy
}

// DescribeMatchers describes the script's targets for use in names.
func (s *methodLevelScript) DescribeMatchers() string {
	switch len(s.matchers) {
	case 0:
		return "(No matchers)"
	case 1:
		return s.matchers[0].Describe()
	}
	d := make([]string, len(s.matchers))
	for i, m := range s.matchers {
		d[i] = m.Describe()
	}
	return "(" + strings.Join(d, ", ") + ")"
}

func (s *methodLevelScript) matches(className, methodName, descriptor string) bool {
	for _, m := range s.matchers {
		if m.Matches(className, methodName, descriptor) {
			return true
		}
	}
	return false
}

// patch runs rw over every matched method of the class.
func (s *methodLevelScript) patch(className string, classBytes []byte, hooks HookLoader, rw rewriteFunc) ([]byte, error) {
	if !s.WouldPatch(className) {
		return nil, nil
	}
	defer func(start time.Time) {
		metrics.PatchDuration.Observe(time.Since(start).Seconds())
	}(time.Now())

	out, err := s.patchClass(classBytes, hooks, rw)
	if err != nil {
		metrics.ScriptErrors.WithLabelValues(s.kind).Inc()
		return nil, fmt.Errorf("patch %s: %w", className, err)
	}
	if out != nil {
		metrics.ScriptsApplied.WithLabelValues(s.kind).Inc()
	}
	return out, nil
}

func (s *methodLevelScript) patchClass(classBytes []byte, hooks HookLoader, rw rewriteFunc) ([]byte, error) {
	cf, err := classfile.Parse(classBytes)
	if err != nil {
		return nil, fmt.Errorf("parse class: %w", err)
	}
	cp, err := newClassPatch(cf, hooks, s.strategy)
	if err != nil {
		return nil, err
	}

	var n int
	for _, m := range append([]*classfile.Member{}, cf.Methods...) {
		if !s.matches(cp.name, m.Name, m.Descriptor) {
			continue
		}
		code, err := m.Code(cf.Pool)
		if err != nil {
			return nil, err
		} else if code == nil {
			Log("%s: skipping %s.%s%s without code", s.kind, cp.name, m.Name, m.Descriptor)
			continue
		}
		Log("%s: rewriting %s.%s%s", s.kind, cp.name, m.Name, m.Descriptor)
		if err := cp.rewrite(m, code, rw); err != nil {
			return nil, fmt.Errorf("rewrite %s%s: %w", m.Name, m.Descriptor, err)
		}
		metrics.MethodsRewritten.WithLabelValues(s.kind).Inc()
		n++
	}
	if n == 0 {
		return nil, nil
	}

	out, err := cf.Bytes()
	if err != nil {
		return nil, fmt.Errorf("write class: %w", err)
	}
	return out, nil
}

// classPatch is the state for patching a single class.
type classPatch struct {
	cf       *classfile.ClassFile
	name     string
	hooks    HookLoader
	strategy InvocationStrategy

	hookClasses  map[string]*classfile.ClassFile
	transplanted map[string]bool
}

func newClassPatch(cf *classfile.ClassFile, hooks HookLoader, strategy InvocationStrategy) (*classPatch, error) {
	name, err := cf.ClassName()
	if err != nil {
		return nil, fmt.Errorf("class name: %w", err)
	}
	return &classPatch{
		cf:           cf,
		name:         name,
		hooks:        hooks,
		strategy:     strategy,
		hookClasses:  map[string]*classfile.ClassFile{},
		transplanted: map[string]bool{},
	}, nil
}

func (cp *classPatch) rewrite(m *classfile.Member, code *classfile.Code, rw rewriteFunc) error {
	body, err := bytecode.DecodeBody(code)
	if err != nil {
		return err
	}
	lg, err := bytecode.NewLogistics(m.AccessFlags, m.Descriptor)
	if err != nil {
		return err
	}
	v, err := rw(cp, m, body, lg)
	if err != nil {
		return err
	}
	if err := bytecode.Transform(body, cp.cf.Pool, v); err != nil {
		return err
	}
	nc, err := body.Encode(cp.cf.Pool)
	if err != nil {
		return err
	}
	return m.SetCode(cp.cf.Pool, nc)
}

// needsFrames checks whether new branch targets in body need stack map
// frames.
func (cp *classPatch) needsFrames(b *bytecode.Body) bool {
	switch {
	case cp.cf.MajorVersion >= 51:
		return true
	case cp.cf.MajorVersion == 50:
		return len(b.Frames) != 0
	default:
		return false
	}
}

// loadRequests pushes the receiver and parameters in r.
func loadRequests(w *bytecode.Writer, lg *bytecode.Logistics, r StackRequests) error {
	if r.Has(RequestThis) {
		if err := lg.LoadThis(w); err != nil {
			return err
		}
	}
	for _, p := range r.Params() {
		if err := lg.LoadParam(w, p); err != nil {
			return err
		}
	}
	return nil
}
