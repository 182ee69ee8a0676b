package bytecode

import (
	"errors"
	"fmt"

	"github.com/pgaskin/classpatch/classfile"
)

// ErrNoThis is returned when loading this in a static method.
var ErrNoThis = errors.New("static method has no this")

// ErrNoParam is returned when loading a parameter the method doesn't have.
var ErrNoParam = errors.New("no such parameter")

// Logistics generates the loads, returns and duplications needed to work with
// the parameters and return value of a method.
type Logistics struct {
	static bool
	params []string
	slots  []int
	ret    string
}

// NewLogistics creates Logistics for a method with the given access flags
// and descriptor.
func NewLogistics(access uint16, desc string) (*Logistics, error) {
	params, ret, err := ParseMethodDescriptor(desc)
	if err != nil {
		return nil, err
	}
	l := &Logistics{
		static: access&classfile.AccStatic != 0,
		params: params,
		ret:    ret,
	}
	slot := 0
	if !l.static {
		slot = 1
	}
	for _, p := range params {
		l.slots = append(l.slots, slot)
		slot += TypeSize(p)
	}
	return l, nil
}

// ParamCount returns the number of declared parameters.
func (l *Logistics) ParamCount() int {
	return len(l.params)
}

// ReturnType returns the return type descriptor.
func (l *Logistics) ReturnType() string {
	return l.ret
}

// ReturnOpcode returns the return instruction the method uses.
func (l *Logistics) ReturnOpcode() byte {
	return ReturnOp(l.ret)
}

// LoadThis pushes the receiver.
func (l *Logistics) LoadThis(w *Writer) error {
	if l.static {
		return ErrNoThis
	}
	return w.Var(Aload, 0)
}

// LoadParam pushes the parameter at (zero-based) position i.
func (l *Logistics) LoadParam(w *Writer, i int) error {
	if i < 0 || i >= len(l.params) {
		return fmt.Errorf("%w: parameter %d of %d", ErrNoParam, i, len(l.params))
	}
	return w.Var(LoadOp(l.params[i]), l.slots[i])
}

// Return adds the method's return instruction.
func (l *Logistics) Return(w *Writer) error {
	return w.Insn(l.ReturnOpcode())
}

// DupReturn duplicates a pending return value.
func (l *Logistics) DupReturn(w *Writer) error {
	return DupForType(w, l.ret)
}

// PopReturn discards a pending return value.
func (l *Logistics) PopReturn(w *Writer) error {
	switch TypeSize(l.ret) {
	case 0:
		return nil
	case 2:
		return w.Insn(Pop2)
	default:
		return w.Insn(Pop)
	}
}

// DupForType duplicates the value on top of the stack, which has type t.
// Nothing is added for void.
func DupForType(w *Writer, t string) error {
	switch TypeSize(t) {
	case 0:
		return nil
	case 2:
		return w.Insn(Dup2)
	default:
		return w.Insn(Dup)
	}
}
