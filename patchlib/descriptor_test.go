package patchlib

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecomposeFullDesc(t *testing.T) {
	for _, tc := range []struct {
		desc  string
		types []string
	}{
		{"()V", []string{"V"}},
		{"(I)I", []string{"I", "I"}},
		{"(IJ[[Ljava/lang/String;Z)Ljava/lang/Object;", []string{"Ljava/lang/Object;", "I", "J", "[[Ljava/lang/String;", "Z"}},
		{"([B)[I", []string{"[I", "[B"}},
		{"(Lcom/foo/Bar$Baz;D)V", []string{"V", "Lcom/foo/Bar$Baz;", "D"}},
	} {
		t.Run(tc.desc, func(t *testing.T) {
			types, err := DecomposeFullDesc(tc.desc)
			require.NoError(t, err)
			assert.Equal(t, tc.types, types)
			assert.Equal(t, tc.desc[len(tc.desc)-len(types[0]):], types[0], "return type should be the portion after ')'")
		})
	}
	for _, desc := range []string{
		"",
		"V",
		"()",
		"(I",
		"(V)V",
		"(X)V",
		"(L;)V",
		"(Ljava/lang/String)V",
		"()[V",
		"()II",
	} {
		t.Run("invalid/"+desc, func(t *testing.T) {
			_, err := DecomposeFullDesc(desc)
			assert.ErrorIs(t, err, ErrMalformedDescriptor)
		})
	}
}

func TestTypeSpecMatch(t *testing.T) {
	for _, tc := range []struct {
		token   string
		pattern string
		match   bool
	}{
		{"I", "int", true},
		{"[I", "int[]", true},
		{"[[Ljava/lang/String;", "java.lang.String[][]", true},
		{"I", "int[]", false},
		{"[I", "int", false},
		{"[[I", "int[]", false},
		{"[I", "int[][]", false},
		{"V", "void", true},
		{"V", "Void", false},
		{"I", "void", false},
		{"Z", "boolean", true},
		{"J", "long", true},
		{"B", "byte", true},
		{"C", "char", true},
		{"S", "short", true},
		{"F", "float", true},
		{"D", "double", true},
		{"D", "float", false},
		{"Ljava/lang/String;", "java.lang.String", true},
		{"Ljava/lang/String;", "java/lang/String", false},
		{"Ljava/lang/String;", "String", false},
		{"Lcom/foo/Bar$Baz;", "com.foo.Bar$Baz", true},
		{"[I", "int[", false},
		{"[I", "in[]", false},
		{"[", "[]", false},
	} {
		t.Run(tc.token+"/"+tc.pattern, func(t *testing.T) {
			assert.Equal(t, tc.match, TypeSpecMatch(tc.token, tc.pattern))
		})
	}
}

func TestTypeMatches(t *testing.T) {
	assert.True(t, TypeMatches("java/lang/String", "java.lang.String"))
	assert.True(t, TypeMatches("java.lang.String", "java.lang.String"))
	assert.False(t, TypeMatches("java/lang/String", "java.lang.Strin"))
	assert.False(t, TypeMatches("java/lang/StringBuilder", "java.lang.String"))
}
