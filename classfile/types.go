// Package classfile reads and writes JVM class files. Everything it does not
// need to understand (attributes, unused constants) is kept verbatim, so a
// parsed class written back without changes is byte-identical.
package classfile

import "strings"

// Access flags
const (
	AccPublic    = 0x0001
	AccPrivate   = 0x0002
	AccProtected = 0x0004
	AccStatic    = 0x0008
	AccFinal     = 0x0010
	AccSuper     = 0x0020
	AccNative    = 0x0100
	AccInterface = 0x0200
	AccAbstract  = 0x0400
	AccSynthetic = 0x1000
)

// ClassFile represents a parsed .class file.
type ClassFile struct {
	MinorVersion uint16
	MajorVersion uint16
	Pool         *ConstantPool
	AccessFlags  uint16
	ThisClass    uint16
	SuperClass   uint16
	Interfaces   []uint16
	Fields       []*Member
	Methods      []*Member
	Attributes   []*Attribute
}

// Member is a field or a method.
type Member struct {
	AccessFlags     uint16
	NameIndex       uint16
	DescriptorIndex uint16
	Name            string
	Descriptor      string
	Attributes      []*Attribute
}

// Attribute is a raw attribute. NameIndex is authoritative when writing.
type Attribute struct {
	NameIndex uint16
	Name      string
	Data      []byte
}

// New creates an empty public class.
func New(major uint16, name, super string) *ClassFile {
	pool := NewConstantPool()
	cf := &ClassFile{
		MajorVersion: major,
		Pool:         pool,
		AccessFlags:  AccPublic | AccSuper,
		ThisClass:    pool.Class(name),
	}
	if super != "" {
		cf.SuperClass = pool.Class(super)
	}
	return cf
}

// ClassName returns the internal (slash-separated) name of this class.
func (cf *ClassFile) ClassName() (string, error) {
	return cf.Pool.GetClassName(cf.ThisClass)
}

// FindMethod finds a method by name and descriptor.
func (cf *ClassFile) FindMethod(name, descriptor string) *Member {
	for _, m := range cf.Methods {
		if m.Name == name && m.Descriptor == descriptor {
			return m
		}
	}
	return nil
}

// AddMethod appends a method, interning its name and descriptor.
func (cf *ClassFile) AddMethod(access uint16, name, descriptor string, attrs ...*Attribute) *Member {
	m := &Member{
		AccessFlags:     access,
		NameIndex:       cf.Pool.Utf8(name),
		DescriptorIndex: cf.Pool.Utf8(descriptor),
		Name:            name,
		Descriptor:      descriptor,
		Attributes:      attrs,
	}
	cf.Methods = append(cf.Methods, m)
	return m
}

// NewAttribute creates an attribute whose name is interned in pool.
func NewAttribute(pool *ConstantPool, name string, data []byte) *Attribute {
	return &Attribute{NameIndex: pool.Utf8(name), Name: name, Data: data}
}

// Attribute returns the first attribute with the given name, or nil.
func (m *Member) Attribute(name string) *Attribute {
	for _, a := range m.Attributes {
		if a.Name == name {
			return a
		}
	}
	return nil
}

// IsStatic reports whether ACC_STATIC is set.
func (m *Member) IsStatic() bool {
	return m.AccessFlags&AccStatic != 0
}

// InternalName converts a binary name (dots) to an internal name (slashes).
func InternalName(name string) string {
	return strings.ReplaceAll(name, ".", "/")
}

// BinaryName converts an internal name (slashes) to a binary name (dots).
func BinaryName(name string) string {
	return strings.ReplaceAll(name, "/", ".")
}
