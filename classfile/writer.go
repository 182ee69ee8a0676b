package classfile

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
)

// Bytes serializes the class file.
func (cf *ClassFile) Bytes() ([]byte, error) {
	if err := cf.Pool.Err(); err != nil {
		return nil, err
	}

	var w bytes.Buffer
	put := func(v interface{}) {
		binary.Write(&w, binary.BigEndian, v) // bytes.Buffer writes never fail
	}

	put(uint32(classMagic))
	put(cf.MinorVersion)
	put(cf.MajorVersion)

	if err := cf.Pool.write(&w); err != nil {
		return nil, fmt.Errorf("writing constant pool: %w", err)
	}

	put(cf.AccessFlags)
	put(cf.ThisClass)
	put(cf.SuperClass)
	put(uint16(len(cf.Interfaces)))
	put(cf.Interfaces)

	if err := writeMembers(&w, cf.Fields); err != nil {
		return nil, fmt.Errorf("writing fields: %w", err)
	}
	if err := writeMembers(&w, cf.Methods); err != nil {
		return nil, fmt.Errorf("writing methods: %w", err)
	}
	if err := writeAttributes(&w, cf.Attributes); err != nil {
		return nil, fmt.Errorf("writing class attributes: %w", err)
	}
	return w.Bytes(), nil
}

func (p *ConstantPool) write(w *bytes.Buffer) error {
	binary.Write(w, binary.BigEndian, uint16(len(p.entries)))
	for i, c := range p.entries {
		if c == nil {
			continue
		}
		w.WriteByte(c.Tag())
		if u, ok := c.(*ConstantUtf8); ok {
			// values hold the raw modified UTF-8 bytes
			b := []byte(u.Value)
			if len(b) > math.MaxUint16 {
				return fmt.Errorf("Utf8 constant at index %d too long (%d bytes)", i, len(b))
			}
			binary.Write(w, binary.BigEndian, uint16(len(b)))
			w.Write(b)
			continue
		}
		if err := binary.Write(w, binary.BigEndian, c); err != nil {
			return fmt.Errorf("writing constant (tag=%d) at index %d: %w", c.Tag(), i, err)
		}
	}
	return nil
}

func writeMembers(w *bytes.Buffer, members []*Member) error {
	if len(members) > math.MaxUint16 {
		return fmt.Errorf("too many members (%d)", len(members))
	}
	binary.Write(w, binary.BigEndian, uint16(len(members)))
	for _, m := range members {
		binary.Write(w, binary.BigEndian, m.AccessFlags)
		binary.Write(w, binary.BigEndian, m.NameIndex)
		binary.Write(w, binary.BigEndian, m.DescriptorIndex)
		if err := writeAttributes(w, m.Attributes); err != nil {
			return fmt.Errorf("writing attributes of %s%s: %w", m.Name, m.Descriptor, err)
		}
	}
	return nil
}

func writeAttributes(w *bytes.Buffer, attrs []*Attribute) error {
	if len(attrs) > math.MaxUint16 {
		return fmt.Errorf("too many attributes (%d)", len(attrs))
	}
	binary.Write(w, binary.BigEndian, uint16(len(attrs)))
	for _, a := range attrs {
		if uint64(len(a.Data)) > math.MaxUint32 {
			return fmt.Errorf("attribute %s too long", a.Name)
		}
		binary.Write(w, binary.BigEndian, a.NameIndex)
		binary.Write(w, binary.BigEndian, uint32(len(a.Data)))
		w.Write(a.Data)
	}
	return nil
}
