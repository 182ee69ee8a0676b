package bytecode

import (
	"fmt"

	"github.com/pgaskin/classpatch/classfile"
)

// Node is an element of a method body: an *Insn or a *Label.
type Node interface {
	node()
}

// Label marks a position in the instruction list. Offset is the bytecode
// offset it had when decoded, and is updated by Encode.
type Label struct {
	Offset int
}

// Insn is a single instruction.
type Insn struct {
	Op byte
	// Index is the constant pool index for instructions taking one, or the
	// local variable slot for loads, stores, iinc and ret.
	Index int
	// Value is the immediate of bipush, sipush and iinc, the array type of
	// newarray, the dimensions of multianewarray and the count of
	// invokeinterface.
	Value int
	// Target is the destination of a branch.
	Target *Label
	// Switch operands.
	Default *Label
	Low     int32
	Keys    []int32
	Targets []*Label
}

func (*Label) node() {}
func (*Insn) node()  {}

func (in *Insn) String() string {
	switch opKind(in.Op) {
	case kindVar, kindCP, kindLdc, kindInvokeinterface, kindInvokedynamic:
		return fmt.Sprintf("%s %d", OpName(in.Op), in.Index)
	case kindIinc:
		return fmt.Sprintf("%s %d %d", OpName(in.Op), in.Index, in.Value)
	case kindS1, kindS2, kindNewarray:
		return fmt.Sprintf("%s %d", OpName(in.Op), in.Value)
	case kindMultianewarray:
		return fmt.Sprintf("%s %d %d", OpName(in.Op), in.Index, in.Value)
	default:
		return OpName(in.Op)
	}
}

// Handler is an exception table entry.
type Handler struct {
	Start, End, Handler *Label
	CatchType           uint16
}

// LineNumber maps the instructions from Start to a source line.
type LineNumber struct {
	Start *Label
	Line  uint16
}

// LocalVar is a LocalVariableTable or LocalVariableTypeTable entry.
type LocalVar struct {
	Start, End      *Label
	NameIndex       uint16
	DescriptorIndex uint16
	Index           uint16
}

// Body is an editable method body.
type Body struct {
	Nodes      []Node
	MaxStack   int
	MaxLocals  int
	Handlers   []Handler
	Frames     []*Frame
	Lines      []LineNumber
	Locals     []LocalVar
	LocalTypes []LocalVar
	// Attributes holds the code attributes in their original order. The
	// ones modelled above are regenerated by Encode, the rest are kept.
	Attributes []*classfile.Attribute
}

// Insns returns the instructions of the body in order.
func (b *Body) Insns() []*Insn {
	var insns []*Insn
	for _, n := range b.Nodes {
		if in, ok := n.(*Insn); ok {
			insns = append(insns, in)
		}
	}
	return insns
}

// Code attributes handled by DecodeBody and Encode.
const (
	attrStackMapTable          = "StackMapTable"
	attrLineNumberTable        = "LineNumberTable"
	attrLocalVariableTable     = "LocalVariableTable"
	attrLocalVariableTypeTable = "LocalVariableTypeTable"
	attrVisibleTypeAnnotations = "RuntimeVisibleTypeAnnotations"
	attrHiddenTypeAnnotations  = "RuntimeInvisibleTypeAnnotations"
)
