package patchlib

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustTarget(t *testing.T, class, method string) *MethodTarget {
	t.Helper()
	mt, err := NewMethodTarget(class, method)
	require.NoError(t, err)
	return mt
}

func mustTargetDesc(t *testing.T, class, method, ret string, params ...string) *MethodTarget {
	t.Helper()
	mt, err := NewMethodTargetDesc(class, method, ret, params...)
	require.NoError(t, err)
	return mt
}

func TestNewMethodTarget(t *testing.T) {
	for _, tc := range []struct {
		name   string
		class  string
		method string
	}{
		{"NoClass", "", "run"},
		{"NoMethod", "com.foo.Bar", ""},
		{"Dot", "com.foo.Bar", "java.lang.String"},
		{"Bracket", "com.foo.Bar", "int[]"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewMethodTarget(tc.class, tc.method)
			assert.ErrorIs(t, err, ErrInvalidArgument)
			_, err = NewMethodTargetDesc(tc.class, tc.method, "void")
			assert.ErrorIs(t, err, ErrInvalidArgument)
		})
	}

	_, err := NewMethodTargetDesc("com.foo.Bar", "run", "")
	assert.ErrorIs(t, err, ErrInvalidArgument, "missing return type")
	_, err = NewMethodTargetDesc("com.foo.Bar", "run", "void", "int", "")
	assert.ErrorIs(t, err, ErrInvalidArgument, "empty parameter")

	params := []string{"int"}
	mt := mustTargetDesc(t, "com.foo.Bar", "run", "void", params...)
	params[0] = "long"
	assert.Equal(t, []string{"int"}, mt.ParameterSpec(), "parameters should be copied")
}

func TestMethodTargetDescribe(t *testing.T) {
	assert.Equal(t, "Baz:doThing", mustTarget(t, "com.foo.Bar$Baz", "doThing").Describe())
	assert.Equal(t, "Bar:run", mustTarget(t, "com.foo.Bar", "run").Describe())
	assert.Equal(t, "Bar:run", mustTarget(t, "com/foo/Bar", "run").Describe())
	assert.Equal(t, "Bar:run", mustTarget(t, "Bar", "run").Describe())
}

func TestMethodTargetMatches(t *testing.T) {
	t.Run("Undescribed", func(t *testing.T) {
		mt := mustTarget(t, "com.foo.Bar", "run")
		assert.True(t, mt.Matches("com/foo/Bar", "run", "()V"))
		assert.True(t, mt.Matches("com.foo.Bar", "run", "(IJ)Ljava/lang/String;"))
		assert.True(t, mt.Matches("com/foo/Bar", "run", "garbage"), "descriptor should not be parsed")
		assert.False(t, mt.Matches("com/foo/Bar", "walk", "()V"))
		assert.False(t, mt.Matches("com/foo/Baz", "run", "()V"))
		assert.False(t, mt.Matches("com/foo/Bar$Inner", "run", "()V"))
	})
	t.Run("Described", func(t *testing.T) {
		mt := mustTargetDesc(t, "com.foo.Bar", "run", "java.lang.String", "int", "long[]")
		assert.True(t, mt.Matches("com/foo/Bar", "run", "(I[J)Ljava/lang/String;"))
		assert.False(t, mt.Matches("com/foo/Bar", "run", "(I[J)V"), "return type")
		assert.False(t, mt.Matches("com/foo/Bar", "run", "(IJ)Ljava/lang/String;"), "array dimensions")
		assert.False(t, mt.Matches("com/foo/Bar", "run", "(I)Ljava/lang/String;"), "missing parameter")
		assert.False(t, mt.Matches("com/foo/Bar", "run", "(I[JI)Ljava/lang/String;"), "extra parameter")
		assert.False(t, mt.Matches("com/foo/Bar", "run", "(I[J"), "malformed descriptor")
	})
	t.Run("NoParams", func(t *testing.T) {
		mt := mustTargetDesc(t, "com.foo.Bar", "run", "void")
		assert.True(t, mt.Matches("com/foo/Bar", "run", "()V"))
		assert.False(t, mt.Matches("com/foo/Bar", "run", "(I)V"))
	})
}

func TestMethodTargetProperties(t *testing.T) {
	mt := mustTarget(t, "com/foo/Bar", "run")
	assert.Equal(t, []string{"com.foo.Bar"}, mt.AffectedClasses())
	assert.True(t, mt.ClassMatches("com/foo/Bar"))
	assert.False(t, mt.HasDescription())
	_, known := mt.ReturnTypeIsVoid()
	assert.False(t, known)

	isVoid, known := mustTargetDesc(t, "com.foo.Bar", "run", "void").ReturnTypeIsVoid()
	assert.True(t, known)
	assert.True(t, isVoid)
	isVoid, known = mustTargetDesc(t, "com.foo.Bar", "run", "int").ReturnTypeIsVoid()
	assert.True(t, known)
	assert.False(t, isVoid)

	a := mustTargetDesc(t, "com.foo.Bar", "run", "int", "long")
	assert.True(t, a.Equal(mustTargetDesc(t, "com.foo.Bar", "run", "int", "long")))
	assert.False(t, a.Equal(mustTargetDesc(t, "com.foo.Bar", "run", "int")))
	assert.False(t, a.Equal(mustTargetDesc(t, "com.foo.Bar", "run", "int", "int")))
	assert.False(t, a.Equal(mustTarget(t, "com.foo.Bar", "run")))
	assert.False(t, a.Equal(nil))

	assert.Equal(t, "MethodTarget[com.foo.Bar.run(long) returns int]", a.String())
	assert.Equal(t, "MethodTarget[com/foo/Bar.run]", mt.String())
}

func TestStackRequests(t *testing.T) {
	r := Requests(RequestParam(2), RequestThis, RequestParam(0), RequestParam(2))
	assert.True(t, r.Has(RequestThis))
	assert.True(t, r.Has(RequestThis|RequestParam(0)))
	assert.False(t, r.Has(RequestReturnValue))
	assert.False(t, r.Has(RequestParam(1)))
	assert.Equal(t, []int{0, 2}, r.Params())
	assert.Equal(t, "[this, param0, param2]", r.String())
	assert.Equal(t, []int{MaxParams - 1}, RequestParam(MaxParams-1).Params())
	assert.Panics(t, func() { RequestParam(MaxParams) })
	assert.Panics(t, func() { RequestParam(-1) })
}

func TestInvocationStrategy(t *testing.T) {
	for _, s := range []InvocationStrategy{Call, Transplant, Insert} {
		p, err := ParseInvocationStrategy(s.String())
		require.NoError(t, err)
		assert.Equal(t, s, p)
	}
	p, err := ParseInvocationStrategy("")
	require.NoError(t, err)
	assert.Equal(t, Call, p)
	_, err = ParseInvocationStrategy("inline")
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestHook(t *testing.T) {
	h, err := NewHook("com.foo.Hooks", "check", "(Ljava/lang/Object;I)Z")
	require.NoError(t, err)
	assert.Equal(t, "com/foo/Hooks", h.Owner())
	assert.Equal(t, "Z", h.ReturnType())
	assert.False(t, h.ReturnsVoid())
	assert.False(t, h.IsConstructor())
	assert.Equal(t, "com.foo.Hooks.check(Ljava/lang/Object;I)Z", h.String())

	h, err = NewHook("com.foo.Widget", "<init>", "(I)V")
	require.NoError(t, err)
	assert.True(t, h.IsConstructor())
	assert.True(t, h.ReturnsVoid())

	_, err = NewHook("com.foo.Hooks", "check", "(I)")
	assert.ErrorIs(t, err, ErrMalformedDescriptor)
	_, err = NewHook("", "check", "()V")
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, err = NewHook("com.foo.Hooks", "", "()V")
	assert.ErrorIs(t, err, ErrInvalidArgument)
}
