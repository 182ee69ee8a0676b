package classfile

import "fmt"

// Import copies the constant at index i of src (and everything it refers to)
// into p, returning its index in p. Equal constants already in p are reused.
// Dynamic and invokedynamic constants are rejected since they refer to the
// source class's BootstrapMethods attribute.
func (p *ConstantPool) Import(src *ConstantPool, i uint16) (uint16, error) {
	c, err := src.Get(i)
	if err != nil {
		return 0, err
	}
	var n uint16
	switch v := c.(type) {
	case *ConstantUtf8:
		n = p.Utf8(v.Value)
	case *ConstantInteger:
		n = p.Integer(v.Value)
	case *ConstantFloat:
		n = p.add(&ConstantFloat{Bits: v.Bits})
	case *ConstantLong:
		n = p.Long(v.Value)
	case *ConstantDouble:
		n = p.add(&ConstantDouble{Bits: v.Bits})
	case *ConstantClass:
		name, err := src.GetUtf8(v.NameIndex)
		if err != nil {
			return 0, err
		}
		n = p.Class(name)
	case *ConstantString:
		s, err := src.GetUtf8(v.StringIndex)
		if err != nil {
			return 0, err
		}
		n = p.String(s)
	case *ConstantNameAndType:
		name, desc, err := src.GetNameAndType(i)
		if err != nil {
			return 0, err
		}
		n = p.NameAndType(name, desc)
	case *ConstantFieldref, *ConstantMethodref, *ConstantInterfaceMethodref:
		ref, err := src.ResolveRef(i)
		if err != nil {
			return 0, err
		}
		switch ref.Tag {
		case TagFieldref:
			n = p.Fieldref(ref.ClassName, ref.Name, ref.Descriptor)
		case TagMethodref:
			n = p.Methodref(ref.ClassName, ref.Name, ref.Descriptor)
		default:
			n = p.InterfaceMethodref(ref.ClassName, ref.Name, ref.Descriptor)
		}
	case *ConstantMethodType:
		desc, err := src.GetUtf8(v.DescriptorIndex)
		if err != nil {
			return 0, err
		}
		n = p.MethodType(desc)
	case *ConstantMethodHandle:
		ref, err := p.Import(src, v.ReferenceIndex)
		if err != nil {
			return 0, fmt.Errorf("importing method handle reference: %w", err)
		}
		n = p.MethodHandle(v.ReferenceKind, ref)
	default:
		return 0, fmt.Errorf("cannot import constant (tag=%d) at index %d", c.Tag(), i)
	}
	if err := p.Err(); err != nil {
		return 0, err
	}
	return n, nil
}
