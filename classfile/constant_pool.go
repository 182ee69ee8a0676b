package classfile

import (
	"errors"
	"fmt"
	"math"
)

// Constant pool tags
const (
	TagUtf8               = 1
	TagInteger            = 3
	TagFloat              = 4
	TagLong               = 5
	TagDouble             = 6
	TagClass              = 7
	TagString             = 8
	TagFieldref           = 9
	TagMethodref          = 10
	TagInterfaceMethodref = 11
	TagNameAndType        = 12
	TagMethodHandle       = 15
	TagMethodType         = 16
	TagDynamic            = 17
	TagInvokeDynamic      = 18
	TagModule             = 19
	TagPackage            = 20
)

// ErrPoolOverflow is returned when a constant pool would need more than 65535
// slots.
var ErrPoolOverflow = errors.New("constant pool overflow")

// Constant is implemented by all constant pool entry types.
type Constant interface {
	Tag() uint8
}

type ConstantUtf8 struct {
	Value string
}

type ConstantInteger struct {
	Value int32
}

// ConstantFloat keeps the raw bits so NaN payloads survive a round trip.
type ConstantFloat struct {
	Bits uint32
}

type ConstantLong struct {
	Value int64
}

type ConstantDouble struct {
	Bits uint64
}

type ConstantClass struct {
	NameIndex uint16
}

type ConstantString struct {
	StringIndex uint16
}

// MemberRef is the shared layout of field, method and interface method
// references.
type MemberRef struct {
	ClassIndex       uint16
	NameAndTypeIndex uint16
}

type ConstantFieldref struct{ MemberRef }
type ConstantMethodref struct{ MemberRef }
type ConstantInterfaceMethodref struct{ MemberRef }

type ConstantNameAndType struct {
	NameIndex       uint16
	DescriptorIndex uint16
}

type ConstantMethodHandle struct {
	ReferenceKind  uint8
	ReferenceIndex uint16
}

type ConstantMethodType struct {
	DescriptorIndex uint16
}

type ConstantDynamic struct {
	BootstrapMethodAttrIndex uint16
	NameAndTypeIndex         uint16
}

type ConstantInvokeDynamic struct {
	BootstrapMethodAttrIndex uint16
	NameAndTypeIndex         uint16
}

type ConstantModule struct {
	NameIndex uint16
}

type ConstantPackage struct {
	NameIndex uint16
}

func (*ConstantUtf8) Tag() uint8               { return TagUtf8 }
func (*ConstantInteger) Tag() uint8            { return TagInteger }
func (*ConstantFloat) Tag() uint8              { return TagFloat }
func (*ConstantLong) Tag() uint8               { return TagLong }
func (*ConstantDouble) Tag() uint8             { return TagDouble }
func (*ConstantClass) Tag() uint8              { return TagClass }
func (*ConstantString) Tag() uint8             { return TagString }
func (*ConstantFieldref) Tag() uint8           { return TagFieldref }
func (*ConstantMethodref) Tag() uint8          { return TagMethodref }
func (*ConstantInterfaceMethodref) Tag() uint8 { return TagInterfaceMethodref }
func (*ConstantNameAndType) Tag() uint8        { return TagNameAndType }
func (*ConstantMethodHandle) Tag() uint8       { return TagMethodHandle }
func (*ConstantMethodType) Tag() uint8         { return TagMethodType }
func (*ConstantDynamic) Tag() uint8            { return TagDynamic }
func (*ConstantInvokeDynamic) Tag() uint8      { return TagInvokeDynamic }
func (*ConstantModule) Tag() uint8             { return TagModule }
func (*ConstantPackage) Tag() uint8            { return TagPackage }

// ConstantPool is a 1-indexed constant pool. Index 0 and the slot following
// every long and double are nil.
type ConstantPool struct {
	entries  []Constant
	index    map[string]uint16 // lazily built, first occurrence wins
	overflow bool
}

// NewConstantPool returns an empty pool.
func NewConstantPool() *ConstantPool {
	return &ConstantPool{entries: []Constant{nil}}
}

// Count returns constant_pool_count as written to the class file.
func (p *ConstantPool) Count() int {
	return len(p.entries)
}

// Err returns ErrPoolOverflow if an append ever failed.
func (p *ConstantPool) Err() error {
	if p.overflow {
		return ErrPoolOverflow
	}
	return nil
}

// Get returns the entry at index i.
func (p *ConstantPool) Get(i uint16) (Constant, error) {
	if int(i) >= len(p.entries) || p.entries[i] == nil {
		return nil, fmt.Errorf("invalid constant pool index %d", i)
	}
	return p.entries[i], nil
}

// GetUtf8 returns the Utf8 string at the given index.
func (p *ConstantPool) GetUtf8(i uint16) (string, error) {
	c, err := p.Get(i)
	if err != nil {
		return "", err
	}
	u, ok := c.(*ConstantUtf8)
	if !ok {
		return "", fmt.Errorf("constant pool index %d is not Utf8 (tag=%d)", i, c.Tag())
	}
	return u.Value, nil
}

// GetClassName returns the internal name referenced by a Class entry.
func (p *ConstantPool) GetClassName(i uint16) (string, error) {
	c, err := p.Get(i)
	if err != nil {
		return "", err
	}
	cls, ok := c.(*ConstantClass)
	if !ok {
		return "", fmt.Errorf("constant pool index %d is not Class (tag=%d)", i, c.Tag())
	}
	return p.GetUtf8(cls.NameIndex)
}

// GetNameAndType resolves a NameAndType entry.
func (p *ConstantPool) GetNameAndType(i uint16) (name, desc string, err error) {
	c, err := p.Get(i)
	if err != nil {
		return "", "", err
	}
	nat, ok := c.(*ConstantNameAndType)
	if !ok {
		return "", "", fmt.Errorf("constant pool index %d is not NameAndType (tag=%d)", i, c.Tag())
	}
	if name, err = p.GetUtf8(nat.NameIndex); err != nil {
		return "", "", fmt.Errorf("resolving name: %w", err)
	}
	if desc, err = p.GetUtf8(nat.DescriptorIndex); err != nil {
		return "", "", fmt.Errorf("resolving descriptor: %w", err)
	}
	return name, desc, nil
}

// RefInfo holds a resolved field or method reference.
type RefInfo struct {
	Tag        uint8
	ClassName  string
	Name       string
	Descriptor string
}

// ResolveRef resolves a Fieldref, Methodref or InterfaceMethodref entry.
func (p *ConstantPool) ResolveRef(i uint16) (*RefInfo, error) {
	c, err := p.Get(i)
	if err != nil {
		return nil, err
	}
	var ref MemberRef
	switch r := c.(type) {
	case *ConstantFieldref:
		ref = r.MemberRef
	case *ConstantMethodref:
		ref = r.MemberRef
	case *ConstantInterfaceMethodref:
		ref = r.MemberRef
	default:
		return nil, fmt.Errorf("constant pool index %d is not a member reference (tag=%d)", i, c.Tag())
	}
	className, err := p.GetClassName(ref.ClassIndex)
	if err != nil {
		return nil, fmt.Errorf("resolving reference class: %w", err)
	}
	name, desc, err := p.GetNameAndType(ref.NameAndTypeIndex)
	if err != nil {
		return nil, fmt.Errorf("resolving reference name and type: %w", err)
	}
	return &RefInfo{Tag: c.Tag(), ClassName: className, Name: name, Descriptor: desc}, nil
}

// Utf8 returns the index of a Utf8 entry, appending it if needed.
func (p *ConstantPool) Utf8(s string) uint16 {
	return p.add(&ConstantUtf8{Value: s})
}

func (p *ConstantPool) Integer(v int32) uint16 {
	return p.add(&ConstantInteger{Value: v})
}

func (p *ConstantPool) Float(v float32) uint16 {
	return p.add(&ConstantFloat{Bits: math.Float32bits(v)})
}

func (p *ConstantPool) Long(v int64) uint16 {
	return p.add(&ConstantLong{Value: v})
}

func (p *ConstantPool) Double(v float64) uint16 {
	return p.add(&ConstantDouble{Bits: math.Float64bits(v)})
}

// Class returns the index of a Class entry for an internal (slash-separated)
// name.
func (p *ConstantPool) Class(name string) uint16 {
	return p.add(&ConstantClass{NameIndex: p.Utf8(name)})
}

func (p *ConstantPool) String(s string) uint16 {
	return p.add(&ConstantString{StringIndex: p.Utf8(s)})
}

func (p *ConstantPool) NameAndType(name, desc string) uint16 {
	return p.add(&ConstantNameAndType{NameIndex: p.Utf8(name), DescriptorIndex: p.Utf8(desc)})
}

func (p *ConstantPool) Fieldref(owner, name, desc string) uint16 {
	return p.add(&ConstantFieldref{p.memberRef(owner, name, desc)})
}

func (p *ConstantPool) Methodref(owner, name, desc string) uint16 {
	return p.add(&ConstantMethodref{p.memberRef(owner, name, desc)})
}

func (p *ConstantPool) InterfaceMethodref(owner, name, desc string) uint16 {
	return p.add(&ConstantInterfaceMethodref{p.memberRef(owner, name, desc)})
}

func (p *ConstantPool) MethodType(desc string) uint16 {
	return p.add(&ConstantMethodType{DescriptorIndex: p.Utf8(desc)})
}

func (p *ConstantPool) MethodHandle(kind uint8, ref uint16) uint16 {
	return p.add(&ConstantMethodHandle{ReferenceKind: kind, ReferenceIndex: ref})
}

func (p *ConstantPool) memberRef(owner, name, desc string) MemberRef {
	return MemberRef{ClassIndex: p.Class(owner), NameAndTypeIndex: p.NameAndType(name, desc)}
}

// add returns the index of an equal entry, or appends c. On overflow it
// records the failure (see Err) and returns 0.
func (p *ConstantPool) add(c Constant) uint16 {
	k := constantKey(c)
	idx := p.lookup()
	if i, ok := idx[k]; ok {
		return i
	}
	width := 1
	if wide(c) {
		width = 2
	}
	if len(p.entries)+width > math.MaxUint16 {
		p.overflow = true
		return 0
	}
	i := uint16(len(p.entries))
	p.entries = append(p.entries, c)
	if width == 2 {
		p.entries = append(p.entries, nil)
	}
	idx[k] = i
	return i
}

func (p *ConstantPool) lookup() map[string]uint16 {
	if p.index == nil {
		p.index = make(map[string]uint16, len(p.entries))
		for i, c := range p.entries {
			if c == nil {
				continue
			}
			k := constantKey(c)
			if _, ok := p.index[k]; !ok {
				p.index[k] = uint16(i)
			}
		}
	}
	return p.index
}

func wide(c Constant) bool {
	t := c.Tag()
	return t == TagLong || t == TagDouble
}

func constantKey(c Constant) string {
	switch v := c.(type) {
	case *ConstantUtf8:
		return "u:" + v.Value
	case *ConstantInteger:
		return fmt.Sprintf("i:%d", v.Value)
	case *ConstantFloat:
		return fmt.Sprintf("f:%x", v.Bits)
	case *ConstantLong:
		return fmt.Sprintf("j:%d", v.Value)
	case *ConstantDouble:
		return fmt.Sprintf("d:%x", v.Bits)
	case *ConstantClass:
		return fmt.Sprintf("c:%d", v.NameIndex)
	case *ConstantString:
		return fmt.Sprintf("s:%d", v.StringIndex)
	case *ConstantFieldref:
		return fmt.Sprintf("fr:%d:%d", v.ClassIndex, v.NameAndTypeIndex)
	case *ConstantMethodref:
		return fmt.Sprintf("mr:%d:%d", v.ClassIndex, v.NameAndTypeIndex)
	case *ConstantInterfaceMethodref:
		return fmt.Sprintf("ir:%d:%d", v.ClassIndex, v.NameAndTypeIndex)
	case *ConstantNameAndType:
		return fmt.Sprintf("nt:%d:%d", v.NameIndex, v.DescriptorIndex)
	case *ConstantMethodHandle:
		return fmt.Sprintf("mh:%d:%d", v.ReferenceKind, v.ReferenceIndex)
	case *ConstantMethodType:
		return fmt.Sprintf("mt:%d", v.DescriptorIndex)
	case *ConstantDynamic:
		return fmt.Sprintf("dy:%d:%d", v.BootstrapMethodAttrIndex, v.NameAndTypeIndex)
	case *ConstantInvokeDynamic:
		return fmt.Sprintf("id:%d:%d", v.BootstrapMethodAttrIndex, v.NameAndTypeIndex)
	case *ConstantModule:
		return fmt.Sprintf("mo:%d", v.NameIndex)
	case *ConstantPackage:
		return fmt.Sprintf("pk:%d", v.NameIndex)
	default:
		panic(fmt.Sprintf("unknown constant type %T", c))
	}
}
