package bytecode

import (
	"encoding/binary"
	"fmt"

	"github.com/pgaskin/classpatch/classfile"
)

type decoder struct {
	code     []byte
	starts   map[int]bool
	labels   map[int]*Label
	insns    []*Insn
	offsets  []int
	branches map[*Insn][]int // raw targets: [target] or [default, targets...]
}

// DecodeBody decodes a Code attribute into an editable body.
func DecodeBody(c *classfile.Code) (*Body, error) {
	d := &decoder{
		code:     c.Code,
		starts:   map[int]bool{},
		labels:   map[int]*Label{},
		branches: map[*Insn][]int{},
	}
	if err := d.decodeInsns(); err != nil {
		return nil, err
	}

	b := &Body{
		MaxStack:  int(c.MaxStack),
		MaxLocals: int(c.MaxLocals),
	}

	for i, h := range c.ExceptionTable {
		start, err := d.label(int(h.StartPC))
		if err != nil {
			return nil, fmt.Errorf("exception handler %d start: %w", i, err)
		}
		end, err := d.label(int(h.EndPC))
		if err != nil {
			return nil, fmt.Errorf("exception handler %d end: %w", i, err)
		}
		handler, err := d.label(int(h.HandlerPC))
		if err != nil {
			return nil, fmt.Errorf("exception handler %d target: %w", i, err)
		}
		b.Handlers = append(b.Handlers, Handler{Start: start, End: end, Handler: handler, CatchType: h.CatchType})
	}

	for _, a := range c.Attributes {
		var err error
		switch a.Name {
		case attrLineNumberTable:
			err = d.decodeLines(b, a.Data)
		case attrLocalVariableTable:
			b.Locals, err = d.decodeLocals(b.Locals, a.Data)
		case attrLocalVariableTypeTable:
			b.LocalTypes, err = d.decodeLocals(b.LocalTypes, a.Data)
		case attrStackMapTable:
			b.Frames, err = d.decodeFrames(a.Data)
		case attrVisibleTypeAnnotations, attrHiddenTypeAnnotations:
			continue // code offsets inside can't be kept valid
		}
		if err != nil {
			return nil, fmt.Errorf("decoding %s: %w", a.Name, err)
		}
		b.Attributes = append(b.Attributes, a)
	}

	for in, offs := range d.branches {
		ls := make([]*Label, len(offs))
		for i, off := range offs {
			l, err := d.label(off)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", OpName(in.Op), err)
			}
			ls[i] = l
		}
		if in.Op == Tableswitch || in.Op == Lookupswitch {
			in.Default, in.Targets = ls[0], ls[1:]
		} else {
			in.Target = ls[0]
		}
	}

	for i, in := range d.insns {
		if l, ok := d.labels[d.offsets[i]]; ok {
			b.Nodes = append(b.Nodes, l)
		}
		b.Nodes = append(b.Nodes, in)
	}
	if l, ok := d.labels[len(d.code)]; ok {
		b.Nodes = append(b.Nodes, l)
	}
	return b, nil
}

// label returns the label at off, creating it if needed.
func (d *decoder) label(off int) (*Label, error) {
	if off != len(d.code) && !d.starts[off] {
		return nil, fmt.Errorf("offset %d is not an instruction boundary", off)
	}
	l, ok := d.labels[off]
	if !ok {
		l = &Label{Offset: off}
		d.labels[off] = l
	}
	return l, nil
}

func (d *decoder) decodeInsns() error {
	code := d.code
	for pc := 0; pc < len(code); {
		need := func(n int) error {
			if pc+n > len(code) {
				return fmt.Errorf("truncated %s at offset %d", OpName(code[pc]), pc)
			}
			return nil
		}
		u1 := func(i int) int { return int(code[pc+i]) }
		u2 := func(i int) int { return int(binary.BigEndian.Uint16(code[pc+i:])) }
		s2 := func(i int) int { return int(int16(binary.BigEndian.Uint16(code[pc+i:]))) }
		s4 := func(i int) int32 { return int32(binary.BigEndian.Uint32(code[pc+i:])) }

		op := code[pc]
		in := &Insn{Op: op}
		var n int
		switch opKind(op) {
		case kindNone:
			n = 1
			switch {
			case op >= Iload0 && op <= Aload3:
				in.Op, in.Index = Iload+(op-Iload0)/4, int(op-Iload0)%4
			case op >= Istore0 && op <= Astore3:
				in.Op, in.Index = Istore+(op-Istore0)/4, int(op-Istore0)%4
			}
		case kindS1:
			n = 2
			if err := need(n); err != nil {
				return err
			}
			in.Value = int(int8(code[pc+1]))
		case kindS2:
			n = 3
			if err := need(n); err != nil {
				return err
			}
			in.Value = s2(1)
		case kindLdc:
			if op == Ldc {
				n = 2
				if err := need(n); err != nil {
					return err
				}
				in.Index = u1(1)
			} else {
				n = 3
				if err := need(n); err != nil {
					return err
				}
				in.Op, in.Index = Ldc, u2(1)
			}
		case kindCP:
			n = 3
			if err := need(n); err != nil {
				return err
			}
			in.Index = u2(1)
		case kindVar:
			n = 2
			if err := need(n); err != nil {
				return err
			}
			in.Index = u1(1)
		case kindIinc:
			n = 3
			if err := need(n); err != nil {
				return err
			}
			in.Index, in.Value = u1(1), int(int8(code[pc+2]))
		case kindBranch:
			n = 3
			if err := need(n); err != nil {
				return err
			}
			d.branches[in] = []int{pc + s2(1)}
		case kindBranchW:
			n = 5
			if err := need(n); err != nil {
				return err
			}
			d.branches[in] = []int{pc + int(s4(1))}
		case kindTableswitch:
			pad := (4 - (pc+1)%4) % 4
			if err := need(1 + pad + 12); err != nil {
				return err
			}
			base := 1 + pad
			low, high := s4(base+4), s4(base+8)
			if high < low {
				return fmt.Errorf("tableswitch at offset %d: high %d < low %d", pc, high, low)
			}
			count := int(int64(high) - int64(low) + 1)
			n = base + 12 + 4*count
			if err := need(n); err != nil {
				return err
			}
			offs := []int{pc + int(s4(base))}
			for i := 0; i < count; i++ {
				offs = append(offs, pc+int(s4(base+12+4*i)))
			}
			in.Low = low
			d.branches[in] = offs
		case kindLookupswitch:
			pad := (4 - (pc+1)%4) % 4
			if err := need(1 + pad + 8); err != nil {
				return err
			}
			base := 1 + pad
			npairs := int(s4(base + 4))
			if npairs < 0 {
				return fmt.Errorf("lookupswitch at offset %d: negative pair count", pc)
			}
			n = base + 8 + 8*npairs
			if err := need(n); err != nil {
				return err
			}
			offs := []int{pc + int(s4(base))}
			for i := 0; i < npairs; i++ {
				in.Keys = append(in.Keys, s4(base+8+8*i))
				offs = append(offs, pc+int(s4(base+12+8*i)))
			}
			d.branches[in] = offs
		case kindInvokeinterface:
			n = 5
			if err := need(n); err != nil {
				return err
			}
			in.Index, in.Value = u2(1), u1(3)
		case kindInvokedynamic:
			n = 5
			if err := need(n); err != nil {
				return err
			}
			in.Index = u2(1)
		case kindNewarray:
			n = 2
			if err := need(n); err != nil {
				return err
			}
			in.Value = u1(1)
		case kindMultianewarray:
			n = 4
			if err := need(n); err != nil {
				return err
			}
			in.Index, in.Value = u2(1), u1(3)
		default:
			if op != Wide {
				return fmt.Errorf("invalid opcode 0x%02x at offset %d", op, pc)
			}
			if err := need(2); err != nil {
				return err
			}
			in.Op = code[pc+1]
			switch opKind(in.Op) {
			case kindVar:
				n = 4
				if err := need(n); err != nil {
					return err
				}
				in.Index = u2(2)
			case kindIinc:
				n = 6
				if err := need(n); err != nil {
					return err
				}
				in.Index, in.Value = u2(2), s2(4)
			default:
				return fmt.Errorf("invalid wide opcode %s at offset %d", OpName(in.Op), pc)
			}
		}
		d.starts[pc] = true
		d.insns = append(d.insns, in)
		d.offsets = append(d.offsets, pc)
		pc += n
	}
	return nil
}

func (d *decoder) decodeLines(b *Body, data []byte) error {
	r := &reader{buf: data}
	count := r.u2()
	for i := 0; i < count && r.err == nil; i++ {
		start, line := r.u2(), r.u2()
		if r.err != nil {
			break
		}
		l, err := d.label(start)
		if err != nil {
			return err
		}
		b.Lines = append(b.Lines, LineNumber{Start: l, Line: uint16(line)})
	}
	return r.done()
}

func (d *decoder) decodeLocals(vars []LocalVar, data []byte) ([]LocalVar, error) {
	r := &reader{buf: data}
	count := r.u2()
	for i := 0; i < count && r.err == nil; i++ {
		start, length, name, desc, index := r.u2(), r.u2(), r.u2(), r.u2(), r.u2()
		if r.err != nil {
			break
		}
		sl, err := d.label(start)
		if err != nil {
			return nil, err
		}
		el, err := d.label(start + length)
		if err != nil {
			return nil, err
		}
		vars = append(vars, LocalVar{
			Start:           sl,
			End:             el,
			NameIndex:       uint16(name),
			DescriptorIndex: uint16(desc),
			Index:           uint16(index),
		})
	}
	return vars, r.done()
}

// reader is a sticky-error big-endian reader for attribute bodies.
type reader struct {
	buf []byte
	pos int
	err error
}

func (r *reader) u1() int {
	if r.err != nil {
		return 0
	}
	if r.pos+1 > len(r.buf) {
		r.err = fmt.Errorf("unexpected end of data at %d", r.pos)
		return 0
	}
	v := r.buf[r.pos]
	r.pos++
	return int(v)
}

func (r *reader) u2() int {
	if r.err != nil {
		return 0
	}
	if r.pos+2 > len(r.buf) {
		r.err = fmt.Errorf("unexpected end of data at %d", r.pos)
		return 0
	}
	v := binary.BigEndian.Uint16(r.buf[r.pos:])
	r.pos += 2
	return int(v)
}

func (r *reader) done() error {
	if r.err == nil && r.pos != len(r.buf) {
		r.err = fmt.Errorf("%d trailing bytes", len(r.buf)-r.pos)
	}
	return r.err
}
