package bytecode

import "fmt"

// Remap rewrites every constant pool index used by the body through fn, for
// moving a body into another class. Unmodelled code attributes are dropped.
func (b *Body) Remap(fn func(uint16) (uint16, error)) error {
	for _, in := range b.Insns() {
		switch opKind(in.Op) {
		case kindLdc, kindCP, kindInvokeinterface, kindInvokedynamic, kindMultianewarray:
		default:
			continue
		}
		i, err := fn(uint16(in.Index))
		if err != nil {
			return fmt.Errorf("%s %d: %w", OpName(in.Op), in.Index, err)
		}
		in.Index = int(i)
	}
	for i := range b.Handlers {
		if b.Handlers[i].CatchType == 0 {
			continue
		}
		ct, err := fn(b.Handlers[i].CatchType)
		if err != nil {
			return fmt.Errorf("exception handler %d: %w", i, err)
		}
		b.Handlers[i].CatchType = ct
	}
	for _, f := range b.Frames {
		for _, vts := range [][]VerificationType{f.Locals, f.Stack} {
			for i := range vts {
				if vts[i].Tag != VObject {
					continue
				}
				idx, err := fn(vts[i].Index)
				if err != nil {
					return fmt.Errorf("stack map frame: %w", err)
				}
				vts[i].Index = idx
			}
		}
	}
	for _, vars := range [][]LocalVar{b.Locals, b.LocalTypes} {
		for i := range vars {
			name, err := fn(vars[i].NameIndex)
			if err != nil {
				return fmt.Errorf("local variable: %w", err)
			}
			desc, err := fn(vars[i].DescriptorIndex)
			if err != nil {
				return fmt.Errorf("local variable: %w", err)
			}
			vars[i].NameIndex, vars[i].DescriptorIndex = name, desc
		}
	}

	// the modelled tables are regenerated with names from the new pool
	b.Attributes = nil
	return nil
}

// ShiftLocals moves every local variable slot used by the body up by n.
func (b *Body) ShiftLocals(n int) {
	for _, in := range b.Insns() {
		switch opKind(in.Op) {
		case kindVar, kindIinc:
			in.Index += n
		}
	}
	for _, vars := range [][]LocalVar{b.Locals, b.LocalTypes} {
		for i := range vars {
			vars[i].Index += uint16(n)
		}
	}
	b.MaxLocals += n
}

// StraightLine checks that the body runs from its first instruction to a
// single return at the end, without any other control flow.
func (b *Body) StraightLine() error {
	if len(b.Handlers) != 0 {
		return fmt.Errorf("has exception handlers")
	}
	insns := b.Insns()
	if len(insns) == 0 || !IsReturn(insns[len(insns)-1].Op) {
		return fmt.Errorf("does not end with a return")
	}
	for i, in := range insns {
		switch k := opKind(in.Op); {
		case k == kindBranch, k == kindBranchW, k == kindTableswitch, k == kindLookupswitch:
			return fmt.Errorf("contains %s", OpName(in.Op))
		case in.Op == Ret, in.Op == Athrow, in.Op == Invokedynamic:
			return fmt.Errorf("contains %s", OpName(in.Op))
		case IsReturn(in.Op) && i != len(insns)-1:
			return fmt.Errorf("returns before the end")
		}
	}
	return nil
}
