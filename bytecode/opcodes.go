// Package bytecode decodes JVM method bodies into an editable list of
// instructions and labels, and encodes them back with every offset (branches,
// switches, exception ranges, debug tables and stack map frames) relocated.
package bytecode

// Opcodes. The short forms (iload_0, astore_3, ...), ldc_w and wide are
// folded into their general forms when decoding and picked again by the
// encoder.
const (
	Nop             = 0x00
	AconstNull      = 0x01
	IconstM1        = 0x02
	Iconst0         = 0x03
	Iconst1         = 0x04
	Iconst5         = 0x08
	Lconst0         = 0x09
	Fconst0         = 0x0b
	Dconst0         = 0x0e
	Bipush          = 0x10
	Sipush          = 0x11
	Ldc             = 0x12
	LdcW            = 0x13
	Ldc2W           = 0x14
	Iload           = 0x15
	Lload           = 0x16
	Fload           = 0x17
	Dload           = 0x18
	Aload           = 0x19
	Iload0          = 0x1a
	Aload3          = 0x2d
	Iaload          = 0x2e
	Istore          = 0x36
	Lstore          = 0x37
	Fstore          = 0x38
	Dstore          = 0x39
	Astore          = 0x3a
	Istore0         = 0x3b
	Astore3         = 0x4e
	Iastore         = 0x4f
	Pop             = 0x57
	Pop2            = 0x58
	Dup             = 0x59
	DupX1           = 0x5a
	Dup2            = 0x5c
	Swap            = 0x5f
	Iadd            = 0x60
	Iinc            = 0x84
	Ifeq            = 0x99
	Ifne            = 0x9a
	IfAcmpne        = 0xa6
	Goto            = 0xa7
	Jsr             = 0xa8
	Ret             = 0xa9
	Tableswitch     = 0xaa
	Lookupswitch    = 0xab
	Ireturn         = 0xac
	Lreturn         = 0xad
	Freturn         = 0xae
	Dreturn         = 0xaf
	Areturn         = 0xb0
	Return          = 0xb1
	Getstatic       = 0xb2
	Putstatic       = 0xb3
	Getfield        = 0xb4
	Putfield        = 0xb5
	Invokevirtual   = 0xb6
	Invokespecial   = 0xb7
	Invokestatic    = 0xb8
	Invokeinterface = 0xb9
	Invokedynamic   = 0xba
	New             = 0xbb
	Newarray        = 0xbc
	Anewarray       = 0xbd
	Arraylength     = 0xbe
	Athrow          = 0xbf
	Checkcast       = 0xc0
	Instanceof      = 0xc1
	Monitorenter    = 0xc2
	Monitorexit     = 0xc3
	Wide            = 0xc4
	Multianewarray  = 0xc5
	Ifnull          = 0xc6
	Ifnonnull       = 0xc7
	GotoW           = 0xc8
	JsrW            = 0xc9
)

var opNames = [...]string{
	"nop", "aconst_null", "iconst_m1", "iconst_0", "iconst_1", "iconst_2", "iconst_3", "iconst_4", "iconst_5",
	"lconst_0", "lconst_1", "fconst_0", "fconst_1", "fconst_2", "dconst_0", "dconst_1", "bipush", "sipush",
	"ldc", "ldc_w", "ldc2_w", "iload", "lload", "fload", "dload", "aload",
	"iload_0", "iload_1", "iload_2", "iload_3", "lload_0", "lload_1", "lload_2", "lload_3",
	"fload_0", "fload_1", "fload_2", "fload_3", "dload_0", "dload_1", "dload_2", "dload_3",
	"aload_0", "aload_1", "aload_2", "aload_3",
	"iaload", "laload", "faload", "daload", "aaload", "baload", "caload", "saload",
	"istore", "lstore", "fstore", "dstore", "astore",
	"istore_0", "istore_1", "istore_2", "istore_3", "lstore_0", "lstore_1", "lstore_2", "lstore_3",
	"fstore_0", "fstore_1", "fstore_2", "fstore_3", "dstore_0", "dstore_1", "dstore_2", "dstore_3",
	"astore_0", "astore_1", "astore_2", "astore_3",
	"iastore", "lastore", "fastore", "dastore", "aastore", "bastore", "castore", "sastore",
	"pop", "pop2", "dup", "dup_x1", "dup_x2", "dup2", "dup2_x1", "dup2_x2", "swap",
	"iadd", "ladd", "fadd", "dadd", "isub", "lsub", "fsub", "dsub", "imul", "lmul", "fmul", "dmul",
	"idiv", "ldiv", "fdiv", "ddiv", "irem", "lrem", "frem", "drem", "ineg", "lneg", "fneg", "dneg",
	"ishl", "lshl", "ishr", "lshr", "iushr", "lushr", "iand", "land", "ior", "lor", "ixor", "lxor",
	"iinc", "i2l", "i2f", "i2d", "l2i", "l2f", "l2d", "f2i", "f2l", "f2d", "d2i", "d2l", "d2f",
	"i2b", "i2c", "i2s", "lcmp", "fcmpl", "fcmpg", "dcmpl", "dcmpg",
	"ifeq", "ifne", "iflt", "ifge", "ifgt", "ifle", "if_icmpeq", "if_icmpne", "if_icmplt", "if_icmpge",
	"if_icmpgt", "if_icmple", "if_acmpeq", "if_acmpne", "goto", "jsr", "ret", "tableswitch", "lookupswitch",
	"ireturn", "lreturn", "freturn", "dreturn", "areturn", "return",
	"getstatic", "putstatic", "getfield", "putfield",
	"invokevirtual", "invokespecial", "invokestatic", "invokeinterface", "invokedynamic",
	"new", "newarray", "anewarray", "arraylength", "athrow", "checkcast", "instanceof",
	"monitorenter", "monitorexit", "wide", "multianewarray", "ifnull", "ifnonnull", "goto_w", "jsr_w",
}

// OpName returns the mnemonic of op.
func OpName(op byte) string {
	if int(op) < len(opNames) {
		return opNames[op]
	}
	return "invalid"
}

// operand layouts; wide doubles the width of kindVar and kindIinc operands
const (
	kindNone = iota
	kindS1      // s1
	kindS2      // s2
	kindLdc     // u1 index
	kindCP      // u2 index
	kindVar     // u1 local (u2 when wide)
	kindIinc    // u1 local, s1 const (u2, s2 when wide)
	kindBranch  // s2 offset
	kindBranchW // s4 offset
	kindTableswitch
	kindLookupswitch
	kindInvokeinterface // u2 index, u1 count, u1 0
	kindInvokedynamic   // u2 index, u2 0
	kindNewarray        // u1 atype
	kindMultianewarray  // u2 index, u1 dims
	kindInvalid
)

func opKind(op byte) int {
	switch {
	case op <= 0x0f:
		return kindNone
	case op == Bipush:
		return kindS1
	case op == Sipush:
		return kindS2
	case op == Ldc || op == LdcW:
		return kindLdc
	case op == Ldc2W:
		return kindCP
	case op >= Iload && op <= Aload, op >= Istore && op <= Astore, op == Ret:
		return kindVar
	case op >= Iload0 && op <= Aload3, op >= Istore0 && op <= Astore3:
		return kindNone
	case op == Iinc:
		return kindIinc
	case op >= Ifeq && op <= Jsr, op == Ifnull, op == Ifnonnull:
		return kindBranch
	case op == GotoW || op == JsrW:
		return kindBranchW
	case op == Tableswitch:
		return kindTableswitch
	case op == Lookupswitch:
		return kindLookupswitch
	case op >= Getstatic && op <= Invokestatic, op == New, op == Anewarray, op == Checkcast, op == Instanceof:
		return kindCP
	case op == Invokeinterface:
		return kindInvokeinterface
	case op == Invokedynamic:
		return kindInvokedynamic
	case op == Newarray:
		return kindNewarray
	case op == Multianewarray:
		return kindMultianewarray
	case op <= JsrW && op != Wide:
		return kindNone
	default:
		return kindInvalid
	}
}

// IsReturn reports whether op is one of the return instructions.
func IsReturn(op byte) bool {
	return op >= Ireturn && op <= Return
}

// IsInvoke reports whether op is a method invocation (not invokedynamic).
func IsInvoke(op byte) bool {
	return op >= Invokevirtual && op <= Invokeinterface
}
