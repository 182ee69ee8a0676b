package patchlib

import (
	"fmt"
	"strings"

	"github.com/pgaskin/classpatch/classfile"
)

// TargetMatcher selects the methods a script rewrites.
type TargetMatcher interface {
	// Matches checks a method by its class (internal or binary name), name and
	// descriptor.
	Matches(classSpec, methodName, descriptor string) bool
	// AffectedClasses returns the binary names of every class which may
	// contain a matching method.
	AffectedClasses() []string
	// Describe returns a short human-readable description.
	Describe() string
}

// MethodTarget matches methods by class name, method name and optionally
// the return and parameter types, which are given in source form (e.g.
// java.lang.String[] or int).
type MethodTarget struct {
	classSpec      string
	methodName     string
	hasDescription bool
	returnSpec     string
	parameterSpec  []string
}

var _ TargetMatcher = (*MethodTarget)(nil)

// NewMethodTarget creates a MethodTarget matching every overload of a method.
func NewMethodTarget(classSpec, methodName string) (*MethodTarget, error) {
	if err := checkTarget(classSpec, methodName); err != nil {
		return nil, err
	}
	return &MethodTarget{
		classSpec:  classSpec,
		methodName: methodName,
	}, nil
}

// NewMethodTargetDesc creates a MethodTarget matching methods with exactly
// the given return type and parameter types.
func NewMethodTargetDesc(classSpec, methodName, returnSpec string, parameterSpec ...string) (*MethodTarget, error) {
	if err := checkTarget(classSpec, methodName); err != nil {
		return nil, err
	}
	if returnSpec == "" {
		return nil, fmt.Errorf("%w: return type required for %s", ErrInvalidArgument, methodName)
	}
	for i, p := range parameterSpec {
		if p == "" {
			return nil, fmt.Errorf("%w: parameter %d of %s is empty", ErrInvalidArgument, i, methodName)
		}
	}
	return &MethodTarget{
		classSpec:      classSpec,
		methodName:     methodName,
		hasDescription: true,
		returnSpec:     returnSpec,
		parameterSpec:  append([]string{}, parameterSpec...),
	}, nil
}

func checkTarget(classSpec, methodName string) error {
	if classSpec == "" {
		return fmt.Errorf("%w: class name required", ErrInvalidArgument)
	}
	if methodName == "" {
		return fmt.Errorf("%w: method name required", ErrInvalidArgument)
	}
	if strings.ContainsAny(methodName, ".[") {
		return fmt.Errorf("%w: method name %q contains '.' or '[' (return type and method name swapped?)", ErrInvalidArgument, methodName)
	}
	return nil
}

// ClassSpec returns the class name the target was created with.
func (t *MethodTarget) ClassSpec() string {
	return t.classSpec
}

// MethodName returns the method name the target was created with.
func (t *MethodTarget) MethodName() string {
	return t.methodName
}

// HasDescription returns true if the target restricts the method's types.
func (t *MethodTarget) HasDescription() bool {
	return t.hasDescription
}

// ReturnSpec returns the return type pattern, if any.
func (t *MethodTarget) ReturnSpec() string {
	return t.returnSpec
}

// ParameterSpec returns a copy of the parameter type patterns, if any.
func (t *MethodTarget) ParameterSpec() []string {
	if !t.hasDescription {
		return nil
	}
	return append([]string{}, t.parameterSpec...)
}

// ReturnTypeIsVoid reports whether the target only matches void methods. If
// known is false, the target has no description and may match either.
func (t *MethodTarget) ReturnTypeIsVoid() (isVoid, known bool) {
	if !t.hasDescription {
		return false, false
	}
	return t.returnSpec == "void", true
}

// Equal compares two targets structurally.
func (t *MethodTarget) Equal(o *MethodTarget) bool {
	if t == nil || o == nil {
		return t == o
	}
	if t.classSpec != o.classSpec || t.methodName != o.methodName || t.hasDescription != o.hasDescription || t.returnSpec != o.returnSpec {
		return false
	}
	if len(t.parameterSpec) != len(o.parameterSpec) {
		return false
	}
	for i := range t.parameterSpec {
		if t.parameterSpec[i] != o.parameterSpec[i] {
			return false
		}
	}
	return true
}

// Describe returns the simple class name and the method name (e.g.
// Baz:doThing for com.foo.Bar$Baz).
func (t *MethodTarget) Describe() string {
	return t.classSpec[strings.LastIndexAny(t.classSpec, ".$/")+1:] + ":" + t.methodName
}

// AffectedClasses implements TargetMatcher.
func (t *MethodTarget) AffectedClasses() []string {
	return []string{classfile.BinaryName(t.classSpec)}
}

// ClassMatches checks whether a class name is the target's class.
func (t *MethodTarget) ClassMatches(classSpec string) bool {
	return TypeMatches(classSpec, classfile.BinaryName(t.classSpec))
}

// Matches implements TargetMatcher.
func (t *MethodTarget) Matches(classSpec, methodName, descriptor string) bool {
	if methodName != t.methodName || !t.ClassMatches(classSpec) {
		return false
	}
	if !t.hasDescription {
		return true
	}

	types, err := DecomposeFullDesc(descriptor)
	if err != nil {
		Log("target %s: not matching %s%s: %v", t.Describe(), methodName, descriptor, err)
		return false
	}
	if !TypeSpecMatch(types[0], t.returnSpec) {
		return false
	}
	if len(types)-1 != len(t.parameterSpec) {
		return false
	}
	for i, p := range t.parameterSpec {
		if !TypeSpecMatch(types[i+1], p) {
			return false
		}
	}
	return true
}

func (t *MethodTarget) String() string {
	if !t.hasDescription {
		return fmt.Sprintf("MethodTarget[%s.%s]", t.classSpec, t.methodName)
	}
	return fmt.Sprintf("MethodTarget[%s.%s(%s) returns %s]", t.classSpec, t.methodName, strings.Join(t.parameterSpec, ", "), t.returnSpec)
}
