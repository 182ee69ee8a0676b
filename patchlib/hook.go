package patchlib

import (
	"fmt"

	"github.com/pgaskin/classpatch/classfile"
)

// Hook refers to a static method (or a constructor) which is called from,
// or copied into, patched code.
type Hook struct {
	ClassSpec        string // binary or internal name of the owner
	MethodName       string
	MethodDescriptor string
}

// NewHook creates a Hook, checking the descriptor.
func NewHook(classSpec, methodName, descriptor string) (*Hook, error) {
	if classSpec == "" {
		return nil, fmt.Errorf("%w: hook class name required", ErrInvalidArgument)
	}
	if methodName == "" {
		return nil, fmt.Errorf("%w: hook method name required", ErrInvalidArgument)
	}
	if _, err := DecomposeFullDesc(descriptor); err != nil {
		return nil, fmt.Errorf("hook %s.%s: %w", classSpec, methodName, err)
	}
	return &Hook{
		ClassSpec:        classSpec,
		MethodName:       methodName,
		MethodDescriptor: descriptor,
	}, nil
}

// IsConstructor returns true if the hook is an instance initializer.
func (h *Hook) IsConstructor() bool {
	return h.MethodName == "<init>"
}

// Owner returns the internal name of the hook's class.
func (h *Hook) Owner() string {
	return classfile.InternalName(h.ClassSpec)
}

// ReturnType returns the return type token of the hook's descriptor.
func (h *Hook) ReturnType() string {
	for i := len(h.MethodDescriptor) - 1; i >= 0; i-- {
		if h.MethodDescriptor[i] == ')' {
			return h.MethodDescriptor[i+1:]
		}
	}
	return ""
}

// ReturnsVoid returns true if the hook's descriptor ends in V.
func (h *Hook) ReturnsVoid() bool {
	return h.ReturnType() == "V"
}

func (h *Hook) String() string {
	return classfile.BinaryName(h.ClassSpec) + "." + h.MethodName + h.MethodDescriptor
}
