package patchlib

import (
	"fmt"

	"github.com/pgaskin/classpatch/bytecode"
	"github.com/pgaskin/classpatch/classfile"
	"github.com/pgaskin/classpatch/metrics"
)

// invoke adds the code to run h, whose arguments are already on the stack.
func (cp *classPatch) invoke(w *bytecode.Writer, h *Hook) error {
	if h.IsConstructor() {
		return fmt.Errorf("%w: constructor %s can not be used as a hook", ErrHook, h)
	}
	var err error
	switch cp.strategy {
	case Call:
		err = w.Invoke(bytecode.Invokestatic, h.Owner(), h.MethodName, h.MethodDescriptor)
	case Transplant:
		if err = cp.transplant(h); err == nil {
			err = w.Invoke(bytecode.Invokestatic, cp.name, h.MethodName, h.MethodDescriptor)
		}
	case Insert:
		err = cp.insert(w, h)
	default:
		err = fmt.Errorf("%w: %s", ErrInvalidArgument, cp.strategy)
	}
	if err != nil {
		return err
	}
	metrics.HooksMaterialized.WithLabelValues(cp.strategy.String()).Inc()
	return nil
}

// loadHook finds the code of h using the HookLoader. Hook classes are only
// parsed once per patched class.
func (cp *classPatch) loadHook(h *Hook) (*classfile.ClassFile, *classfile.Code, error) {
	owner := h.Owner()
	hcf, ok := cp.hookClasses[owner]
	if !ok {
		if cp.hooks == nil {
			return nil, nil, fmt.Errorf("%w: no hook loader for %s", ErrHook, owner)
		}
		buf, err := cp.hooks.ClassBytes(owner)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: load %s: %w", ErrHook, owner, err)
		}
		if hcf, err = classfile.Parse(buf); err != nil {
			return nil, nil, fmt.Errorf("%w: parse %s: %w", ErrHook, owner, err)
		}
		cp.hookClasses[owner] = hcf
	}

	m := hcf.FindMethod(h.MethodName, h.MethodDescriptor)
	if m == nil {
		return nil, nil, fmt.Errorf("%w: %s not found", ErrHook, h)
	}
	if !m.IsStatic() {
		return nil, nil, fmt.Errorf("%w: %s is not static", ErrHook, h)
	}
	code, err := m.Code(hcf.Pool)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrHook, err)
	} else if code == nil {
		return nil, nil, fmt.Errorf("%w: %s has no code", ErrHook, h)
	}
	return hcf, code, nil
}

// hookBody decodes the code of h and moves its constants into the patched
// class.
func (cp *classPatch) hookBody(h *Hook) (*bytecode.Body, error) {
	hcf, code, err := cp.loadHook(h)
	if err != nil {
		return nil, err
	}
	body, err := bytecode.DecodeBody(code)
	if err != nil {
		return nil, fmt.Errorf("%w: decode %s: %w", ErrHook, h, err)
	}
	body.Lines, body.Locals, body.LocalTypes = nil, nil, nil
	if err := body.Remap(func(i uint16) (uint16, error) {
		return cp.cf.Pool.Import(hcf.Pool, i)
	}); err != nil {
		return nil, fmt.Errorf("%w: copy %s: %w", ErrHook, h, err)
	}
	return body, nil
}

// transplant copies h into the patched class as a private static method,
// unless it was already copied. A private static synthetic method with the
// same name and descriptor is taken to be a copy made by an earlier script.
func (cp *classPatch) transplant(h *Hook) error {
	key := h.String()
	if cp.transplanted[key] {
		return nil
	}
	if m := cp.cf.FindMethod(h.MethodName, h.MethodDescriptor); m != nil {
		const copied = classfile.AccPrivate | classfile.AccStatic | classfile.AccSynthetic
		if m.AccessFlags&copied == copied {
			Log("reusing %s%s in %s", h.MethodName, h.MethodDescriptor, cp.name)
			cp.transplanted[key] = true
			return nil
		}
		return fmt.Errorf("%w: transplant %s: %s already has a method %s%s", ErrHook, h, cp.name, h.MethodName, h.MethodDescriptor)
	}
	body, err := cp.hookBody(h)
	if err != nil {
		return err
	}
	code, err := body.Encode(cp.cf.Pool)
	if err != nil {
		return fmt.Errorf("%w: transplant %s: %w", ErrHook, h, err)
	}
	m := cp.cf.AddMethod(classfile.AccPrivate|classfile.AccStatic|classfile.AccSynthetic, h.MethodName, h.MethodDescriptor)
	if err := m.SetCode(cp.cf.Pool, code); err != nil {
		return fmt.Errorf("%w: transplant %s: %w", ErrHook, h, err)
	}
	Log("transplanted %s into %s", h, cp.name)
	cp.transplanted[key] = true
	return nil
}

// insert inlines the body of h. The arguments are stored into new locals,
// which the copied body uses in place of its parameters.
func (cp *classPatch) insert(w *bytecode.Writer, h *Hook) error {
	body, err := cp.hookBody(h)
	if err != nil {
		return err
	}
	if err := body.StraightLine(); err != nil {
		return fmt.Errorf("%w: can't insert %s: %w", ErrHook, h, err)
	}
	params, ret, err := bytecode.ParseMethodDescriptor(h.MethodDescriptor)
	if err != nil {
		return err
	}

	base := w.NewLocal(body.MaxLocals)
	body.ShiftLocals(base)

	slots := make([]int, len(params))
	for i, slot := 0, base; i < len(params); i++ {
		slots[i] = slot
		slot += bytecode.TypeSize(params[i])
	}
	for i := len(params) - 1; i >= 0; i-- {
		if err := w.Var(bytecode.StoreOp(params[i]), slots[i]); err != nil {
			return err
		}
	}

	insns := body.Insns()
	for _, in := range insns[:len(insns)-1] {
		w.Raw(in)
	}
	w.Reserve(body.MaxStack)
	w.Adjust(bytecode.TypeSize(ret))
	return nil
}
