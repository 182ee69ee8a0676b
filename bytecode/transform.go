package bytecode

import (
	"fmt"
	"sort"

	"github.com/pgaskin/classpatch/classfile"
)

// Visitor intercepts the instructions of a body during Transform. Original
// instructions are only kept if the visitor passes them on with Writer.Emit.
type Visitor interface {
	// VisitCode is called once, before the first node of the body.
	VisitCode(w *Writer) error
	// VisitInsn is called for every original instruction, after any label
	// preceding it has been written.
	VisitInsn(w *Writer, in *Insn) error
}

// Writer collects the rewritten body. Instructions added through its typed
// methods are tracked to compute the extra stack they need.
type Writer struct {
	body  *Body
	pool  *classfile.ConstantPool
	nodes []Node

	depth int // relative to the start of the current segment
	peak  int // highest depth reached in any segment

	start       *Label
	placeStart  bool
	inVisitCode bool
}

// Transform rewrites b in place by passing it through v. New constants are
// added to pool. MaxStack grows by the peak stack use of the added code.
func Transform(b *Body, pool *classfile.ConstantPool, v Visitor) error {
	w := &Writer{body: b, pool: pool}

	w.inVisitCode = true
	if err := v.VisitCode(w); err != nil {
		return err
	}
	w.inVisitCode = false
	if w.placeStart {
		w.nodes = append(w.nodes, w.start)
	}
	for _, n := range b.Nodes {
		switch n := n.(type) {
		case *Label:
			w.nodes = append(w.nodes, n)
		case *Insn:
			w.depth = 0
			if err := v.VisitInsn(w, n); err != nil {
				return err
			}
		}
	}

	order := map[*Label]int{}
	for i, n := range w.nodes {
		if l, ok := n.(*Label); ok {
			order[l] = i
		}
	}
	for _, f := range b.Frames {
		if _, ok := order[f.Label]; !ok {
			return fmt.Errorf("stack map frame label was removed")
		}
	}
	sort.SliceStable(b.Frames, func(i, j int) bool {
		return order[b.Frames[i].Label] < order[b.Frames[j].Label]
	})

	b.Nodes = w.nodes
	b.MaxStack += w.peak
	return nil
}

// StartLabel returns the label of the first original instruction, creating
// it if the body has none there. It may only be called from VisitCode.
func (w *Writer) StartLabel() (*Label, error) {
	if !w.inVisitCode {
		return nil, fmt.Errorf("StartLabel called outside VisitCode")
	}
	if w.start == nil {
		if len(w.body.Nodes) != 0 {
			if l, ok := w.body.Nodes[0].(*Label); ok {
				w.start = l
				return l, nil
			}
		}
		w.start, w.placeStart = &Label{}, true
	}
	return w.start, nil
}

// Pool returns the constant pool new instructions refer to.
func (w *Writer) Pool() *classfile.ConstantPool {
	return w.pool
}

func (w *Writer) push(n int) {
	w.depth += n
	if w.depth > w.peak {
		w.peak = w.depth
	}
}

// Emit passes an original instruction through unchanged.
func (w *Writer) Emit(in *Insn) {
	w.nodes = append(w.nodes, in)
}

// Insn adds an instruction without operands.
func (w *Writer) Insn(op byte) error {
	var effect int
	switch {
	case op == AconstNull, op >= IconstM1 && op <= Iconst5, op == Fconst0, op == Dup:
		effect = 1
	case op == Lconst0, op == Dconst0, op == Dup2:
		effect = 2
	case op == Pop:
		effect = -1
	case op == Pop2:
		effect = -2
	case op == Return:
		effect = 0
	case op == Lreturn, op == Dreturn:
		effect = -2
	case IsReturn(op), op == Athrow:
		effect = -1
	default:
		return fmt.Errorf("unsupported instruction %s", OpName(op))
	}
	w.nodes = append(w.nodes, &Insn{Op: op})
	w.push(effect)
	return nil
}

// Var adds a load or store of a local variable slot.
func (w *Writer) Var(op byte, slot int) error {
	var effect int
	switch op {
	case Iload, Fload, Aload:
		effect = 1
	case Lload, Dload:
		effect = 2
	case Istore, Fstore, Astore:
		effect = -1
	case Lstore, Dstore:
		effect = -2
	default:
		return fmt.Errorf("unsupported local variable instruction %s", OpName(op))
	}
	w.nodes = append(w.nodes, &Insn{Op: op, Index: slot})
	w.push(effect)
	return nil
}

// Invoke adds a method invocation. Invokeinterface uses an
// InterfaceMethodref.
func (w *Writer) Invoke(op byte, owner, name, desc string) error {
	params, ret, err := ParseMethodDescriptor(desc)
	if err != nil {
		return err
	}
	args := 0
	for _, p := range params {
		args += TypeSize(p)
	}
	in := &Insn{Op: op}
	switch op {
	case Invokestatic:
		in.Index = int(w.pool.Methodref(owner, name, desc))
	case Invokevirtual, Invokespecial:
		in.Index = int(w.pool.Methodref(owner, name, desc))
		args++
	case Invokeinterface:
		in.Index = int(w.pool.InterfaceMethodref(owner, name, desc))
		args++
		in.Value = args
	default:
		return fmt.Errorf("unsupported invoke instruction %s", OpName(op))
	}
	if err := w.pool.Err(); err != nil {
		return err
	}
	w.nodes = append(w.nodes, in)
	w.push(-args)
	w.push(TypeSize(ret))
	return nil
}

// TypeInsn adds a checkcast or instanceof of an internal class name (or
// array descriptor).
func (w *Writer) TypeInsn(op byte, class string) error {
	if op != Checkcast && op != Instanceof {
		return fmt.Errorf("unsupported type instruction %s", OpName(op))
	}
	idx := w.pool.Class(class)
	if err := w.pool.Err(); err != nil {
		return err
	}
	w.nodes = append(w.nodes, &Insn{Op: op, Index: int(idx)})
	return nil
}

// Jump adds a branch to l.
func (w *Writer) Jump(op byte, l *Label) error {
	var effect int
	switch {
	case op == Goto:
	case op >= Ifeq && op <= Ifeq+5, op == Ifnull, op == Ifnonnull:
		effect = -1
	default:
		return fmt.Errorf("unsupported jump instruction %s", OpName(op))
	}
	w.nodes = append(w.nodes, &Insn{Op: op, Target: l})
	w.push(effect)
	return nil
}

// Label places a new label.
func (w *Writer) Label(l *Label) {
	w.nodes = append(w.nodes, l)
}

// Frame adds a stack map frame. Frames are put in order by Transform.
func (w *Writer) Frame(f *Frame) {
	w.body.Frames = append(w.body.Frames, f)
}

// HasFrameAt reports whether a stack map frame is already placed at l.
func (w *Writer) HasFrameAt(l *Label) bool {
	for _, f := range w.body.Frames {
		if f.Label == l {
			return true
		}
	}
	return false
}

// Raw adds an instruction without tracking its stack effect; use Reserve and
// Adjust to account for it.
func (w *Writer) Raw(in *Insn) {
	w.nodes = append(w.nodes, in)
}

// Reserve records that n more stack slots than the current depth are needed.
func (w *Writer) Reserve(n int) {
	if w.depth+n > w.peak {
		w.peak = w.depth + n
	}
}

// Adjust changes the tracked depth by n.
func (w *Writer) Adjust(n int) {
	w.push(n)
}

// NewLocal allocates size fresh local variable slots above every slot the
// body uses, returning the first.
func (w *Writer) NewLocal(size int) int {
	slot := w.body.MaxLocals
	w.body.MaxLocals += size
	return slot
}
