package classfile

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

const classMagic = 0xCAFEBABE

// Parse parses a class file.
func Parse(buf []byte) (*ClassFile, error) {
	r := bytes.NewReader(buf)
	cf := &ClassFile{}

	var magic uint32
	if err := binary.Read(r, binary.BigEndian, &magic); err != nil {
		return nil, fmt.Errorf("reading magic number: %w", err)
	}
	if magic != classMagic {
		return nil, fmt.Errorf("invalid magic number: 0x%X (expected 0xCAFEBABE)", magic)
	}

	if err := binary.Read(r, binary.BigEndian, &cf.MinorVersion); err != nil {
		return nil, fmt.Errorf("reading minor version: %w", err)
	}
	if err := binary.Read(r, binary.BigEndian, &cf.MajorVersion); err != nil {
		return nil, fmt.Errorf("reading major version: %w", err)
	}

	var cpCount uint16
	if err := binary.Read(r, binary.BigEndian, &cpCount); err != nil {
		return nil, fmt.Errorf("reading constant pool count: %w", err)
	}
	pool, err := parseConstantPool(r, cpCount)
	if err != nil {
		return nil, fmt.Errorf("parsing constant pool: %w", err)
	}
	cf.Pool = pool

	if err := binary.Read(r, binary.BigEndian, &cf.AccessFlags); err != nil {
		return nil, fmt.Errorf("reading access flags: %w", err)
	}
	if err := binary.Read(r, binary.BigEndian, &cf.ThisClass); err != nil {
		return nil, fmt.Errorf("reading this_class: %w", err)
	}
	if err := binary.Read(r, binary.BigEndian, &cf.SuperClass); err != nil {
		return nil, fmt.Errorf("reading super_class: %w", err)
	}

	var interfacesCount uint16
	if err := binary.Read(r, binary.BigEndian, &interfacesCount); err != nil {
		return nil, fmt.Errorf("reading interfaces count: %w", err)
	}
	cf.Interfaces = make([]uint16, interfacesCount)
	if err := binary.Read(r, binary.BigEndian, cf.Interfaces); err != nil {
		return nil, fmt.Errorf("reading interfaces: %w", err)
	}

	if cf.Fields, err = parseMembers(r, pool); err != nil {
		return nil, fmt.Errorf("parsing fields: %w", err)
	}
	if cf.Methods, err = parseMembers(r, pool); err != nil {
		return nil, fmt.Errorf("parsing methods: %w", err)
	}
	if cf.Attributes, err = parseAttributes(r, pool); err != nil {
		return nil, fmt.Errorf("parsing class attributes: %w", err)
	}

	if r.Len() != 0 {
		return nil, fmt.Errorf("%d trailing bytes after class file", r.Len())
	}
	return cf, nil
}

func parseConstantPool(r io.Reader, count uint16) (*ConstantPool, error) {
	if count == 0 {
		return nil, fmt.Errorf("constant pool count must be at least 1")
	}
	entries := make([]Constant, count)
	for i := uint16(1); i < count; i++ {
		var tag uint8
		if err := binary.Read(r, binary.BigEndian, &tag); err != nil {
			return nil, fmt.Errorf("reading constant pool tag at index %d: %w", i, err)
		}

		var c Constant
		switch tag {
		case TagUtf8:
			var length uint16
			if err := binary.Read(r, binary.BigEndian, &length); err != nil {
				return nil, fmt.Errorf("reading Utf8 length at index %d: %w", i, err)
			}
			b := make([]byte, length)
			if _, err := io.ReadFull(r, b); err != nil {
				return nil, fmt.Errorf("reading Utf8 bytes at index %d: %w", i, err)
			}
			c = &ConstantUtf8{Value: string(b)}
		case TagInteger:
			c = &ConstantInteger{}
		case TagFloat:
			c = &ConstantFloat{}
		case TagLong:
			c = &ConstantLong{}
		case TagDouble:
			c = &ConstantDouble{}
		case TagClass:
			c = &ConstantClass{}
		case TagString:
			c = &ConstantString{}
		case TagFieldref:
			c = &ConstantFieldref{}
		case TagMethodref:
			c = &ConstantMethodref{}
		case TagInterfaceMethodref:
			c = &ConstantInterfaceMethodref{}
		case TagNameAndType:
			c = &ConstantNameAndType{}
		case TagMethodHandle:
			c = &ConstantMethodHandle{}
		case TagMethodType:
			c = &ConstantMethodType{}
		case TagDynamic:
			c = &ConstantDynamic{}
		case TagInvokeDynamic:
			c = &ConstantInvokeDynamic{}
		case TagModule:
			c = &ConstantModule{}
		case TagPackage:
			c = &ConstantPackage{}
		default:
			return nil, fmt.Errorf("unknown constant pool tag %d at index %d", tag, i)
		}
		if tag != TagUtf8 {
			// every other constant is a fixed-size big-endian struct
			if err := binary.Read(r, binary.BigEndian, c); err != nil {
				return nil, fmt.Errorf("reading constant (tag=%d) at index %d: %w", tag, i, err)
			}
		}
		entries[i] = c

		if wide(c) {
			i++ // long and double take 2 slots
		}
	}
	return &ConstantPool{entries: entries}, nil
}

func parseMembers(r io.Reader, pool *ConstantPool) ([]*Member, error) {
	var count uint16
	if err := binary.Read(r, binary.BigEndian, &count); err != nil {
		return nil, fmt.Errorf("reading count: %w", err)
	}
	members := make([]*Member, count)
	for i := range members {
		m := &Member{}
		if err := binary.Read(r, binary.BigEndian, &m.AccessFlags); err != nil {
			return nil, fmt.Errorf("reading member %d access flags: %w", i, err)
		}
		if err := binary.Read(r, binary.BigEndian, &m.NameIndex); err != nil {
			return nil, fmt.Errorf("reading member %d name index: %w", i, err)
		}
		if err := binary.Read(r, binary.BigEndian, &m.DescriptorIndex); err != nil {
			return nil, fmt.Errorf("reading member %d descriptor index: %w", i, err)
		}

		var err error
		if m.Name, err = pool.GetUtf8(m.NameIndex); err != nil {
			return nil, fmt.Errorf("resolving member %d name: %w", i, err)
		}
		if m.Descriptor, err = pool.GetUtf8(m.DescriptorIndex); err != nil {
			return nil, fmt.Errorf("resolving member %d descriptor: %w", i, err)
		}
		if m.Attributes, err = parseAttributes(r, pool); err != nil {
			return nil, fmt.Errorf("parsing attributes of %s%s: %w", m.Name, m.Descriptor, err)
		}
		members[i] = m
	}
	return members, nil
}

func parseAttributes(r io.Reader, pool *ConstantPool) ([]*Attribute, error) {
	var count uint16
	if err := binary.Read(r, binary.BigEndian, &count); err != nil {
		return nil, fmt.Errorf("reading attributes count: %w", err)
	}
	attrs := make([]*Attribute, count)
	for i := range attrs {
		a := &Attribute{}
		if err := binary.Read(r, binary.BigEndian, &a.NameIndex); err != nil {
			return nil, fmt.Errorf("reading attribute %d name index: %w", i, err)
		}
		var length uint32
		if err := binary.Read(r, binary.BigEndian, &length); err != nil {
			return nil, fmt.Errorf("reading attribute %d length: %w", i, err)
		}
		a.Data = make([]byte, length)
		if _, err := io.ReadFull(r, a.Data); err != nil {
			return nil, fmt.Errorf("reading attribute %d data: %w", i, err)
		}
		name, err := pool.GetUtf8(a.NameIndex)
		if err != nil {
			return nil, fmt.Errorf("resolving attribute %d name: %w", i, err)
		}
		a.Name = name
		attrs[i] = a
	}
	return attrs, nil
}
