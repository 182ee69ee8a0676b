package patchlib

import (
	"fmt"

	"github.com/pgaskin/classpatch/bytecode"
	"github.com/pgaskin/classpatch/classfile"
)

// WrapReturnsConfig configures a WrapReturnsScript.
type WrapReturnsConfig struct {
	Targets []TargetMatcher
	// Wrapper is called before every return. If it isn't void, its result
	// is returned instead.
	Wrapper  *Hook
	Strategy InvocationStrategy
	// Requests may include RequestReturnValue to pass the value being
	// returned as the first argument.
	Requests StackRequests
	// Cast adds a checkcast to the method's return type after the wrapper,
	// for wrappers declared to return a supertype.
	Cast bool
}

// WrapReturnsScript adds a call to a hook before every return.
type WrapReturnsScript struct {
	methodLevelScript
	wrapper  *Hook
	requests StackRequests
	hijack   bool
	cast     bool
}

var _ PatchScript = (*WrapReturnsScript)(nil)

// NewWrapReturnsScript creates a WrapReturnsScript.
func NewWrapReturnsScript(c WrapReturnsConfig) (*WrapReturnsScript, error) {
	base, err := newMethodLevelScript("wrap_returns", c.Targets, c.Strategy)
	if err != nil {
		return nil, err
	}
	if c.Wrapper == nil {
		return nil, fmt.Errorf("%w: wrapper required", ErrInvalidArgument)
	}
	s := &WrapReturnsScript{
		methodLevelScript: base,
		wrapper:           c.Wrapper,
		requests:          c.Requests,
		hijack:            !c.Wrapper.ReturnsVoid(),
		cast:              c.Cast,
	}
	if s.cast && !s.hijack {
		return nil, fmt.Errorf("%w: cast requires a wrapper which returns a value", ErrIllegalConfiguration)
	}
	if s.cast && c.Strategy == Insert {
		return nil, fmt.Errorf("%w: cast can't be used with insert", ErrIllegalConfiguration)
	}
	return s, nil
}

// Name implements PatchScript.
func (s *WrapReturnsScript) Name() string {
	return "wrap returns with " + s.wrapper.MethodName + " in " + s.DescribeMatchers()
}

// Patch implements PatchScript.
func (s *WrapReturnsScript) Patch(className string, classBytes []byte, hooks HookLoader) ([]byte, error) {
	return s.patch(className, classBytes, hooks, s.rewrite)
}

func (s *WrapReturnsScript) rewrite(cp *classPatch, m *classfile.Member, body *bytecode.Body, lg *bytecode.Logistics) (bytecode.Visitor, error) {
	v := &wrapReturnsVisitor{s: s, cp: cp, lg: lg}
	if s.cast {
		t := lg.ReturnType()
		switch t[0] {
		case 'L':
			v.castType = t[1 : len(t)-1]
		case '[':
			v.castType = t
		default:
			return nil, fmt.Errorf("%w: can't cast to %s", ErrIllegalConfiguration, t)
		}
	}
	return v, nil
}

type wrapReturnsVisitor struct {
	s        *WrapReturnsScript
	cp       *classPatch
	lg       *bytecode.Logistics
	castType string
}

func (v *wrapReturnsVisitor) VisitCode(w *bytecode.Writer) error {
	return nil
}

func (v *wrapReturnsVisitor) VisitInsn(w *bytecode.Writer, in *bytecode.Insn) error {
	if in.Op != v.lg.ReturnOpcode() {
		w.Emit(in)
		return nil
	}

	var err error
	switch want := v.s.requests.Has(RequestReturnValue); {
	case want && !v.s.hijack:
		err = v.lg.DupReturn(w)
	case !want && v.s.hijack:
		err = v.lg.PopReturn(w)
	}
	if err != nil {
		return err
	}
	if err := loadRequests(w, v.lg, v.s.requests); err != nil {
		return err
	}
	if err := v.cp.invoke(w, v.s.wrapper); err != nil {
		return err
	}
	if v.castType != "" {
		if err := w.TypeInsn(bytecode.Checkcast, v.castType); err != nil {
			return err
		}
	}
	w.Emit(in)
	return nil
}
