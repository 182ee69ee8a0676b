package patchlib

import (
	"fmt"
	"regexp"

	"github.com/pgaskin/classpatch/classfile"
)

var (
	fullDescRe  = regexp.MustCompile(`^\(((?:\[*(?:[BCDFIJSZ]|L[^;]+;))*)\)(V|\[*(?:[BCDFIJSZ]|L[^;]+;))$`)
	paramDescRe = regexp.MustCompile(`\[*(?:[BCDFIJSZ]|L[^;]+;)`)
	bracketsRe  = regexp.MustCompile(`^(?:\[\])*$`)
)

var primitiveNames = map[byte]string{
	'B': "byte",
	'C': "char",
	'D': "double",
	'F': "float",
	'I': "int",
	'J': "long",
	'S': "short",
	'Z': "boolean",
}

// DecomposeFullDesc splits a method descriptor into its type tokens. The
// first element is the return type, followed by the parameter types in order.
func DecomposeFullDesc(desc string) ([]string, error) {
	m := fullDescRe.FindStringSubmatch(desc)
	if m == nil {
		return nil, fmt.Errorf("%w: %q", ErrMalformedDescriptor, desc)
	}
	return append([]string{m[2]}, paramDescRe.FindAllString(m[1], -1)...), nil
}

// TypeSpecMatch checks whether a descriptor type token (e.g. [[I or
// Ljava/lang/String;) matches a source-style type pattern (e.g. int[][] or
// java.lang.String).
func TypeSpecMatch(token, pattern string) bool {
	if token == "V" {
		return pattern == "void"
	}

	dims := 0
	for dims < len(token) && token[dims] == '[' {
		dims++
	}
	if len(pattern) < dims*2 {
		return false
	}
	base := pattern[:len(pattern)-dims*2]
	if !bracketsRe.MatchString(pattern[len(base):]) {
		return false
	}

	elem := token[dims:]
	switch {
	case len(elem) == 0:
		return false
	case elem[0] == 'L':
		if len(elem) < 2 || elem[len(elem)-1] != ';' {
			return false
		}
		return TypeMatches(elem[1:len(elem)-1], base)
	case len(elem) == 1:
		name, ok := primitiveNames[elem[0]]
		return ok && name == base
	default:
		return false
	}
}

// TypeMatches checks whether an internal or binary class name matches a
// dotted class name exactly.
func TypeMatches(name, pattern string) bool {
	return classfile.BinaryName(name) == pattern
}
