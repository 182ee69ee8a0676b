package bytecode

import "fmt"

// ParseMethodDescriptor splits a method descriptor into its parameter type
// descriptors and its return type descriptor.
func ParseMethodDescriptor(desc string) (params []string, ret string, err error) {
	if len(desc) == 0 || desc[0] != '(' {
		return nil, "", fmt.Errorf("invalid method descriptor %q: missing '('", desc)
	}
	i := 1
	for i < len(desc) && desc[i] != ')' {
		n, err := typeLen(desc[i:])
		if err != nil {
			return nil, "", fmt.Errorf("invalid method descriptor %q: %w", desc, err)
		}
		params = append(params, desc[i:i+n])
		i += n
	}
	if i >= len(desc) {
		return nil, "", fmt.Errorf("invalid method descriptor %q: missing ')'", desc)
	}
	ret = desc[i+1:]
	if ret != "V" {
		if n, err := typeLen(ret); err != nil || n != len(ret) {
			return nil, "", fmt.Errorf("invalid method descriptor %q: bad return type", desc)
		}
	}
	return params, ret, nil
}

// typeLen returns the length of the field descriptor at the start of s.
func typeLen(s string) (int, error) {
	i := 0
	for i < len(s) && s[i] == '[' {
		i++
	}
	if i >= len(s) {
		return 0, fmt.Errorf("truncated type")
	}
	switch s[i] {
	case 'B', 'C', 'D', 'F', 'I', 'J', 'S', 'Z':
		return i + 1, nil
	case 'L':
		for j := i + 1; j < len(s); j++ {
			if s[j] == ';' {
				if j == i+1 {
					return 0, fmt.Errorf("empty class name")
				}
				return j + 1, nil
			}
		}
		return 0, fmt.Errorf("unterminated class type")
	default:
		return 0, fmt.Errorf("invalid type %q", s[i])
	}
}

// TypeSize returns the number of stack or local slots used by a value of the
// given type descriptor.
func TypeSize(t string) int {
	switch t {
	case "V":
		return 0
	case "J", "D":
		return 2
	default:
		return 1
	}
}

// LoadOp returns the load instruction for a type descriptor.
func LoadOp(t string) byte {
	return typedOp(t, Iload)
}

// StoreOp returns the store instruction for a type descriptor.
func StoreOp(t string) byte {
	return typedOp(t, Istore)
}

// ReturnOp returns the return instruction for a type descriptor.
func ReturnOp(t string) byte {
	if t == "V" {
		return Return
	}
	return typedOp(t, Ireturn)
}

// typedOp picks the i/l/f/d/a variant of an instruction family.
func typedOp(t string, base byte) byte {
	switch t[0] {
	case 'J':
		return base + 1
	case 'F':
		return base + 2
	case 'D':
		return base + 3
	case 'L', '[':
		return base + 4
	default:
		return base
	}
}
