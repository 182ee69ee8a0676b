package classfile

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// Code is a parsed Code attribute. Nested attributes are kept raw.
type Code struct {
	MaxStack       uint16
	MaxLocals      uint16
	Code           []byte
	ExceptionTable []ExceptionHandler
	Attributes     []*Attribute
}

// ExceptionHandler is an exception_table entry. CatchType 0 catches
// everything.
type ExceptionHandler struct {
	StartPC   uint16
	EndPC     uint16
	HandlerPC uint16
	CatchType uint16
}

// Attribute returns the first nested attribute with the given name, or nil.
func (c *Code) Attribute(name string) *Attribute {
	for _, a := range c.Attributes {
		if a.Name == name {
			return a
		}
	}
	return nil
}

// ParseCode parses the body of a Code attribute.
func ParseCode(pool *ConstantPool, data []byte) (*Code, error) {
	r := bytes.NewReader(data)
	c := &Code{}

	if err := binary.Read(r, binary.BigEndian, &c.MaxStack); err != nil {
		return nil, fmt.Errorf("reading max stack: %w", err)
	}
	if err := binary.Read(r, binary.BigEndian, &c.MaxLocals); err != nil {
		return nil, fmt.Errorf("reading max locals: %w", err)
	}

	var codeLength uint32
	if err := binary.Read(r, binary.BigEndian, &codeLength); err != nil {
		return nil, fmt.Errorf("reading code length: %w", err)
	}
	if codeLength == 0 || codeLength > math.MaxUint16 {
		return nil, fmt.Errorf("invalid code length %d", codeLength)
	}
	c.Code = make([]byte, codeLength)
	if _, err := io.ReadFull(r, c.Code); err != nil {
		return nil, fmt.Errorf("reading code: %w", err)
	}

	var exceptionTableLength uint16
	if err := binary.Read(r, binary.BigEndian, &exceptionTableLength); err != nil {
		return nil, fmt.Errorf("reading exception table length: %w", err)
	}
	c.ExceptionTable = make([]ExceptionHandler, exceptionTableLength)
	if err := binary.Read(r, binary.BigEndian, c.ExceptionTable); err != nil {
		return nil, fmt.Errorf("reading exception table: %w", err)
	}

	attrs, err := parseAttributes(r, pool)
	if err != nil {
		return nil, fmt.Errorf("parsing code attributes: %w", err)
	}
	c.Attributes = attrs

	if r.Len() != 0 {
		return nil, fmt.Errorf("%d trailing bytes in Code attribute", r.Len())
	}
	return c, nil
}

// Encode serializes the body of a Code attribute.
func (c *Code) Encode() ([]byte, error) {
	if len(c.Code) == 0 || len(c.Code) > math.MaxUint16 {
		return nil, fmt.Errorf("invalid code length %d", len(c.Code))
	}
	if len(c.ExceptionTable) > math.MaxUint16 {
		return nil, fmt.Errorf("exception table too long (%d entries)", len(c.ExceptionTable))
	}
	var w bytes.Buffer
	binary.Write(&w, binary.BigEndian, c.MaxStack)
	binary.Write(&w, binary.BigEndian, c.MaxLocals)
	binary.Write(&w, binary.BigEndian, uint32(len(c.Code)))
	w.Write(c.Code)
	binary.Write(&w, binary.BigEndian, uint16(len(c.ExceptionTable)))
	binary.Write(&w, binary.BigEndian, c.ExceptionTable)
	if err := writeAttributes(&w, c.Attributes); err != nil {
		return nil, fmt.Errorf("writing code attributes: %w", err)
	}
	return w.Bytes(), nil
}

// Code parses the method's Code attribute. It returns nil, nil for abstract
// and native methods.
func (m *Member) Code(pool *ConstantPool) (*Code, error) {
	a := m.Attribute("Code")
	if a == nil {
		return nil, nil
	}
	c, err := ParseCode(pool, a.Data)
	if err != nil {
		return nil, fmt.Errorf("parsing Code of %s%s: %w", m.Name, m.Descriptor, err)
	}
	return c, nil
}

// SetCode replaces (or adds) the method's Code attribute.
func (m *Member) SetCode(pool *ConstantPool, c *Code) error {
	data, err := c.Encode()
	if err != nil {
		return fmt.Errorf("encoding Code of %s%s: %w", m.Name, m.Descriptor, err)
	}
	if a := m.Attribute("Code"); a != nil {
		a.Data = data
		return nil
	}
	m.Attributes = append(m.Attributes, NewAttribute(pool, "Code", data))
	return nil
}
