package patchlib

import (
	"fmt"

	"github.com/pgaskin/classpatch/bytecode"
	"github.com/pgaskin/classpatch/classfile"
)

// WrapCallConfig configures a WrapCallScript.
type WrapCallConfig struct {
	Targets []TargetMatcher
	// Call is the method whose invocations are wrapped.
	Call *Hook
	// Wrapper is called right after each invocation of Call. Its first
	// parameter is the value produced by the call (if any). If it returns
	// void, the value is left as-is, otherwise it is replaced.
	Wrapper  *Hook
	Strategy InvocationStrategy
	Requests StackRequests
}

// WrapCallScript adds a call to a hook after every invocation of a method.
type WrapCallScript struct {
	methodLevelScript
	call     *Hook
	wrapper  *Hook
	requests StackRequests

	leaveReturnValueIntact bool
}

var _ PatchScript = (*WrapCallScript)(nil)

// NewWrapCallScript creates a WrapCallScript.
func NewWrapCallScript(c WrapCallConfig) (*WrapCallScript, error) {
	base, err := newMethodLevelScript("wrap_call", c.Targets, c.Strategy)
	if err != nil {
		return nil, err
	}
	if c.Call == nil {
		return nil, fmt.Errorf("%w: call to wrap required", ErrInvalidArgument)
	}
	if c.Wrapper == nil {
		return nil, fmt.Errorf("%w: wrapper required", ErrInvalidArgument)
	}
	if c.Requests.Has(RequestReturnValue) {
		return nil, fmt.Errorf("%w: the result of the wrapped call is always passed, so the return value can't be requested", ErrIllegalConfiguration)
	}
	return &WrapCallScript{
		methodLevelScript:      base,
		call:                   c.Call,
		wrapper:                c.Wrapper,
		requests:               c.Requests,
		leaveReturnValueIntact: c.Wrapper.ReturnsVoid() && (!c.Call.ReturnsVoid() || c.Call.IsConstructor()),
	}, nil
}

// Name implements PatchScript.
func (s *WrapCallScript) Name() string {
	return "wrap " + s.call.MethodName + " with " + s.wrapper.MethodName + " in " + s.DescribeMatchers()
}

// Patch implements PatchScript.
func (s *WrapCallScript) Patch(className string, classBytes []byte, hooks HookLoader) ([]byte, error) {
	return s.patch(className, classBytes, hooks, s.rewrite)
}

func (s *WrapCallScript) rewrite(cp *classPatch, m *classfile.Member, body *bytecode.Body, lg *bytecode.Logistics) (bytecode.Visitor, error) {
	return &wrapCallVisitor{s, cp, lg}, nil
}

type wrapCallVisitor struct {
	s  *WrapCallScript
	cp *classPatch
	lg *bytecode.Logistics
}

func (v *wrapCallVisitor) VisitCode(w *bytecode.Writer) error {
	return nil
}

func (v *wrapCallVisitor) VisitInsn(w *bytecode.Writer, in *bytecode.Insn) error {
	w.Emit(in)
	if !bytecode.IsInvoke(in.Op) {
		return nil
	}

	ref, err := v.cp.cf.Pool.ResolveRef(uint16(in.Index))
	if err != nil {
		return fmt.Errorf("%s: %w", bytecode.OpName(in.Op), err)
	}
	if ref.ClassName != v.s.call.Owner() || ref.Name != v.s.call.MethodName || ref.Descriptor != v.s.call.MethodDescriptor {
		return nil
	}

	if v.s.leaveReturnValueIntact {
		if v.s.call.IsConstructor() {
			err = w.Insn(bytecode.Dup)
		} else {
			err = bytecode.DupForType(w, v.s.call.ReturnType())
		}
		if err != nil {
			return err
		}
	}
	if err := loadRequests(w, v.lg, v.s.requests); err != nil {
		return err
	}
	return v.cp.invoke(w, v.s.wrapper)
}
