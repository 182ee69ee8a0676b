package patchlib

import (
	"fmt"

	"github.com/pgaskin/classpatch/bytecode"
	"github.com/pgaskin/classpatch/classfile"
)

// ExitEarlyConfig configures an ExitEarlyScript.
type ExitEarlyConfig struct {
	Targets []TargetMatcher
	// Decision returns a boolean telling whether to exit. If it returns void,
	// it is only called and the method always continues. If nil, the method
	// always exits.
	Decision *Hook
	// Value supplies the value to return when exiting a non-void method.
	Value    *Hook
	Strategy InvocationStrategy
	Requests StackRequests
}

// ExitEarlyScript adds code at the start of methods to return before the
// original code runs.
type ExitEarlyScript struct {
	methodLevelScript
	decision *Hook
	value    *Hook
	requests StackRequests
	callOnly bool
}

var _ PatchScript = (*ExitEarlyScript)(nil)

// NewExitEarlyScript creates an ExitEarlyScript.
func NewExitEarlyScript(c ExitEarlyConfig) (*ExitEarlyScript, error) {
	base, err := newMethodLevelScript("exit_early", c.Targets, c.Strategy)
	if err != nil {
		return nil, err
	}
	s := &ExitEarlyScript{
		methodLevelScript: base,
		decision:          c.Decision,
		value:             c.Value,
		requests:          c.Requests,
	}
	if c.Requests.Has(RequestReturnValue) {
		return nil, fmt.Errorf("%w: the return value is not available at the start of a method", ErrIllegalConfiguration)
	}
	if c.Decision != nil {
		switch rt := c.Decision.ReturnType(); rt {
		case "Z":
		case "V":
			s.callOnly = true
		default:
			return nil, fmt.Errorf("%w: decision hook %s must return boolean or void, not %s", ErrIllegalConfiguration, c.Decision, rt)
		}
	}
	if c.Value == nil && !s.callOnly {
		for _, m := range c.Targets {
			if t, ok := m.(interface{ ReturnTypeIsVoid() (bool, bool) }); ok {
				if isVoid, known := t.ReturnTypeIsVoid(); known && !isVoid {
					return nil, fmt.Errorf("%w: %s is not void, so a value hook is required", ErrIllegalConfiguration, m.Describe())
				}
			}
		}
	}
	return s, nil
}

// Name implements PatchScript.
func (s *ExitEarlyScript) Name() string {
	return "Exit Early from " + s.DescribeMatchers()
}

// Patch implements PatchScript.
func (s *ExitEarlyScript) Patch(className string, classBytes []byte, hooks HookLoader) ([]byte, error) {
	return s.patch(className, classBytes, hooks, s.rewrite)
}

func (s *ExitEarlyScript) rewrite(cp *classPatch, m *classfile.Member, body *bytecode.Body, lg *bytecode.Logistics) (bytecode.Visitor, error) {
	if s.value == nil && !s.callOnly && lg.ReturnOpcode() != bytecode.Return {
		return nil, fmt.Errorf("%w: method returns %s, so a value hook is required", ErrIllegalConfiguration, lg.ReturnType())
	}
	return &exitEarlyVisitor{s, cp, body, lg}, nil
}

type exitEarlyVisitor struct {
	s    *ExitEarlyScript
	cp   *classPatch
	body *bytecode.Body
	lg   *bytecode.Logistics
}

func (v *exitEarlyVisitor) VisitCode(w *bytecode.Writer) error {
	if v.s.decision == nil {
		if err := v.exit(w); err != nil {
			return err
		}
		return v.frame(w)
	}

	if err := loadRequests(w, v.lg, v.s.requests); err != nil {
		return err
	}
	if err := v.cp.invoke(w, v.s.decision); err != nil {
		return err
	}
	if v.s.callOnly {
		return nil
	}

	start, err := w.StartLabel()
	if err != nil {
		return err
	}
	if err := w.Jump(bytecode.Ifeq, start); err != nil {
		return err
	}
	if err := v.exit(w); err != nil {
		return err
	}
	return v.frame(w)
}

func (v *exitEarlyVisitor) VisitInsn(w *bytecode.Writer, in *bytecode.Insn) error {
	w.Emit(in)
	return nil
}

// exit returns from the method, with the value from the value hook if it
// isn't void.
func (v *exitEarlyVisitor) exit(w *bytecode.Writer) error {
	if v.lg.ReturnOpcode() != bytecode.Return {
		if err := loadRequests(w, v.lg, v.s.requests); err != nil {
			return err
		}
		if err := v.cp.invoke(w, v.s.value); err != nil {
			return err
		}
	}
	return v.lg.Return(w)
}

// frame adds a stack map frame at the original start of the method, which
// follows the added return.
func (v *exitEarlyVisitor) frame(w *bytecode.Writer) error {
	start, err := w.StartLabel()
	if err != nil {
		return err
	}
	if v.cp.needsFrames(v.body) && !w.HasFrameAt(start) {
		w.Frame(&bytecode.Frame{Label: start, Kind: bytecode.FrameSame})
	}
	return nil
}
