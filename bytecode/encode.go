package bytecode

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/pgaskin/classpatch/classfile"
)

// ErrBranchOverflow is returned when a relocated branch no longer fits its
// offset operand.
var ErrBranchOverflow = errors.New("branch offset overflow")

// ErrCodeTooLarge is returned when the encoded body exceeds 65535 bytes.
var ErrCodeTooLarge = errors.New("code too large")

// Encode lays out the body and encodes it as a Code attribute. Label offsets
// are updated in place. The pool is only used to name new attributes.
func (b *Body) Encode(pool *classfile.ConstantPool) (*classfile.Code, error) {
	if b.MaxStack > math.MaxUint16 || b.MaxLocals > math.MaxUint16 {
		return nil, fmt.Errorf("max stack %d or max locals %d out of range", b.MaxStack, b.MaxLocals)
	}

	pc := 0
	for _, n := range b.Nodes {
		switch n := n.(type) {
		case *Label:
			n.Offset = pc
		case *Insn:
			size, err := n.size(pc)
			if err != nil {
				return nil, err
			}
			pc += size
		}
	}
	if pc == 0 {
		return nil, errors.New("empty method body")
	}
	if pc > math.MaxUint16 {
		return nil, fmt.Errorf("%w (%d bytes)", ErrCodeTooLarge, pc)
	}

	var w bytes.Buffer
	for _, n := range b.Nodes {
		if in, ok := n.(*Insn); ok {
			if err := in.encode(&w); err != nil {
				return nil, fmt.Errorf("encoding %s at offset %d: %w", OpName(in.Op), w.Len(), err)
			}
		}
	}

	c := &classfile.Code{
		MaxStack:  uint16(b.MaxStack),
		MaxLocals: uint16(b.MaxLocals),
		Code:      w.Bytes(),
	}
	for _, h := range b.Handlers {
		c.ExceptionTable = append(c.ExceptionTable, classfile.ExceptionHandler{
			StartPC:   uint16(h.Start.Offset),
			EndPC:     uint16(h.End.Offset),
			HandlerPC: uint16(h.Handler.Offset),
			CatchType: h.CatchType,
		})
	}

	attrs, err := b.encodeAttributes(pool)
	if err != nil {
		return nil, err
	}
	c.Attributes = attrs
	return c, nil
}

// encodeAttributes regenerates the modelled attributes in place of the first
// attribute of each name (dropping repeats), appends the ones the body did
// not have, and keeps everything else as is.
func (b *Body) encodeAttributes(pool *classfile.ConstantPool) ([]*classfile.Attribute, error) {
	encoded := map[string][]byte{}
	var order []string
	add := func(name string, data []byte) {
		encoded[name] = data
		order = append(order, name)
	}
	if len(b.Frames) != 0 {
		data, err := encodeFrames(b.Frames)
		if err != nil {
			return nil, fmt.Errorf("encoding %s: %w", attrStackMapTable, err)
		}
		add(attrStackMapTable, data)
	}
	if len(b.Lines) != 0 {
		add(attrLineNumberTable, encodeLines(b.Lines))
	}
	if len(b.Locals) != 0 {
		add(attrLocalVariableTable, encodeLocals(b.Locals))
	}
	if len(b.LocalTypes) != 0 {
		add(attrLocalVariableTypeTable, encodeLocals(b.LocalTypes))
	}

	var attrs []*classfile.Attribute
	done := map[string]bool{}
	for _, a := range b.Attributes {
		switch a.Name {
		case attrStackMapTable, attrLineNumberTable, attrLocalVariableTable, attrLocalVariableTypeTable:
			if data, ok := encoded[a.Name]; ok && !done[a.Name] {
				attrs = append(attrs, &classfile.Attribute{NameIndex: a.NameIndex, Name: a.Name, Data: data})
				done[a.Name] = true
			}
		case attrVisibleTypeAnnotations, attrHiddenTypeAnnotations:
		default:
			attrs = append(attrs, a)
		}
	}
	for _, name := range order {
		if !done[name] {
			attrs = append(attrs, classfile.NewAttribute(pool, name, encoded[name]))
		}
	}
	return attrs, nil
}

func encodeLines(lines []LineNumber) []byte {
	var w bytes.Buffer
	binary.Write(&w, binary.BigEndian, uint16(len(lines)))
	for _, l := range lines {
		binary.Write(&w, binary.BigEndian, [2]uint16{uint16(l.Start.Offset), l.Line})
	}
	return w.Bytes()
}

func encodeLocals(vars []LocalVar) []byte {
	var w bytes.Buffer
	binary.Write(&w, binary.BigEndian, uint16(len(vars)))
	for _, v := range vars {
		binary.Write(&w, binary.BigEndian, [5]uint16{
			uint16(v.Start.Offset),
			uint16(v.End.Offset - v.Start.Offset),
			v.NameIndex,
			v.DescriptorIndex,
			v.Index,
		})
	}
	return w.Bytes()
}

// size returns the encoded size of the instruction when placed at pc.
func (in *Insn) size(pc int) (int, error) {
	switch opKind(in.Op) {
	case kindNone:
		return 1, nil
	case kindS1, kindNewarray:
		return 2, nil
	case kindS2, kindCP, kindBranch:
		return 3, nil
	case kindLdc:
		if in.Index > math.MaxUint8 {
			return 3, nil
		}
		return 2, nil
	case kindVar:
		switch {
		case in.Index <= 3 && in.Op != Ret:
			return 1, nil
		case in.Index <= math.MaxUint8:
			return 2, nil
		default:
			return 4, nil
		}
	case kindIinc:
		if in.Index > math.MaxUint8 || in.Value < math.MinInt8 || in.Value > math.MaxInt8 {
			return 6, nil
		}
		return 3, nil
	case kindBranchW, kindInvokeinterface, kindInvokedynamic:
		return 5, nil
	case kindMultianewarray:
		return 4, nil
	case kindTableswitch:
		return 1 + switchPad(pc) + 12 + 4*len(in.Targets), nil
	case kindLookupswitch:
		if len(in.Keys) != len(in.Targets) {
			return 0, fmt.Errorf("lookupswitch has %d keys but %d targets", len(in.Keys), len(in.Targets))
		}
		return 1 + switchPad(pc) + 8 + 8*len(in.Targets), nil
	default:
		return 0, fmt.Errorf("cannot encode opcode 0x%02x", in.Op)
	}
}

func switchPad(pc int) int {
	return (4 - (pc+1)%4) % 4
}

func (in *Insn) encode(w *bytes.Buffer) error {
	pc := w.Len()
	u1 := func(v int) { w.WriteByte(byte(v)) }
	u2 := func(v int) { binary.Write(w, binary.BigEndian, uint16(v)) }
	s4 := func(v int) { binary.Write(w, binary.BigEndian, int32(v)) }
	checkIndex := func(max int) error {
		if in.Index < 0 || in.Index > max {
			return fmt.Errorf("index %d out of range", in.Index)
		}
		return nil
	}

	switch opKind(in.Op) {
	case kindNone:
		u1(int(in.Op))
	case kindS1:
		if in.Value < math.MinInt8 || in.Value > math.MaxInt8 {
			return fmt.Errorf("value %d out of range", in.Value)
		}
		u1(int(in.Op))
		u1(in.Value)
	case kindS2:
		if in.Value < math.MinInt16 || in.Value > math.MaxInt16 {
			return fmt.Errorf("value %d out of range", in.Value)
		}
		u1(int(in.Op))
		u2(in.Value)
	case kindLdc:
		if err := checkIndex(math.MaxUint16); err != nil {
			return err
		}
		if in.Index > math.MaxUint8 {
			u1(LdcW)
			u2(in.Index)
		} else {
			u1(Ldc)
			u1(in.Index)
		}
	case kindCP:
		if err := checkIndex(math.MaxUint16); err != nil {
			return err
		}
		u1(int(in.Op))
		u2(in.Index)
	case kindVar:
		if err := checkIndex(math.MaxUint16); err != nil {
			return err
		}
		switch {
		case in.Index <= 3 && in.Op != Ret:
			if in.Op >= Istore {
				u1(Istore0 + int(in.Op-Istore)*4 + in.Index)
			} else {
				u1(Iload0 + int(in.Op-Iload)*4 + in.Index)
			}
		case in.Index <= math.MaxUint8:
			u1(int(in.Op))
			u1(in.Index)
		default:
			u1(Wide)
			u1(int(in.Op))
			u2(in.Index)
		}
	case kindIinc:
		if err := checkIndex(math.MaxUint16); err != nil {
			return err
		}
		if in.Value < math.MinInt16 || in.Value > math.MaxInt16 {
			return fmt.Errorf("increment %d out of range", in.Value)
		}
		if in.Index > math.MaxUint8 || in.Value < math.MinInt8 || in.Value > math.MaxInt8 {
			u1(Wide)
			u1(Iinc)
			u2(in.Index)
			u2(in.Value)
		} else {
			u1(Iinc)
			u1(in.Index)
			u1(in.Value)
		}
	case kindBranch:
		if in.Target == nil {
			return errors.New("branch without target")
		}
		off := in.Target.Offset - pc
		if off < math.MinInt16 || off > math.MaxInt16 {
			return fmt.Errorf("%w (%d)", ErrBranchOverflow, off)
		}
		u1(int(in.Op))
		u2(off)
	case kindBranchW:
		if in.Target == nil {
			return errors.New("branch without target")
		}
		u1(int(in.Op))
		s4(in.Target.Offset - pc)
	case kindTableswitch, kindLookupswitch:
		if in.Default == nil {
			return errors.New("switch without default")
		}
		u1(int(in.Op))
		for i := switchPad(pc); i > 0; i-- {
			u1(0)
		}
		s4(in.Default.Offset - pc)
		if in.Op == Tableswitch {
			s4(int(in.Low))
			s4(int(in.Low) + len(in.Targets) - 1)
			for _, t := range in.Targets {
				s4(t.Offset - pc)
			}
		} else {
			s4(len(in.Targets))
			for i, t := range in.Targets {
				s4(int(in.Keys[i]))
				s4(t.Offset - pc)
			}
		}
	case kindInvokeinterface:
		if err := checkIndex(math.MaxUint16); err != nil {
			return err
		}
		u1(int(in.Op))
		u2(in.Index)
		u1(in.Value)
		u1(0)
	case kindInvokedynamic:
		if err := checkIndex(math.MaxUint16); err != nil {
			return err
		}
		u1(int(in.Op))
		u2(in.Index)
		u2(0)
	case kindNewarray:
		u1(int(in.Op))
		u1(in.Value)
	case kindMultianewarray:
		if err := checkIndex(math.MaxUint16); err != nil {
			return err
		}
		u1(int(in.Op))
		u2(in.Index)
		u1(in.Value)
	default:
		return fmt.Errorf("cannot encode opcode 0x%02x", in.Op)
	}
	return nil
}
