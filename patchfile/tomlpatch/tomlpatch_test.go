package tomlpatch

import (
	"testing"

	"github.com/pgaskin/classpatch/bytecode"
	"github.com/pgaskin/classpatch/classfile"
	"github.com/pgaskin/classpatch/patchfile"
	"github.com/pgaskin/classpatch/patchlib"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPatchFile = `
[[patch]]
name = "Wrap count"
enabled = true
group = "count"
description = "Pass every count through a hook."

[[patch.wrap_returns]]
targets = [{ class = "com.example.Book", method = "count", returns = "int", params = ["int"] }]
wrapper = { class = "com.example.Hooks", method = "count", descriptor = "(I)I" }
requests = ["ReturnValue"]

[[patch]]
name = "Skip run"
enabled = false

[[patch.exit_early]]
targets = [{ class = "com.example.Book", method = "run" }]
strategy = "call"
`

func bookBytes(t *testing.T) []byte {
	t.Helper()
	cf := classfile.New(52, "com/example/Book", "java/lang/Object")
	run := &bytecode.Body{MaxLocals: 1, Nodes: []bytecode.Node{
		&bytecode.Insn{Op: bytecode.Return},
	}}
	c, err := run.Encode(cf.Pool)
	require.NoError(t, err)
	require.NoError(t, cf.AddMethod(classfile.AccPublic, "run", "()V").SetCode(cf.Pool, c))
	count := &bytecode.Body{MaxStack: 1, MaxLocals: 2, Nodes: []bytecode.Node{
		&bytecode.Insn{Op: bytecode.Iload, Index: 1},
		&bytecode.Insn{Op: bytecode.Ireturn},
	}}
	c, err = count.Encode(cf.Pool)
	require.NoError(t, err)
	require.NoError(t, cf.AddMethod(classfile.AccPublic, "count", "(I)I").SetCode(cf.Pool, c))
	buf, err := cf.Bytes()
	require.NoError(t, err)
	return buf
}

func ops(t *testing.T, buf []byte, name, desc string) []string {
	t.Helper()
	cf, err := classfile.Parse(buf)
	require.NoError(t, err)
	m := cf.FindMethod(name, desc)
	require.NotNil(t, m)
	c, err := m.Code(cf.Pool)
	require.NoError(t, err)
	b, err := bytecode.DecodeBody(c)
	require.NoError(t, err)
	var s []string
	for _, in := range b.Insns() {
		s = append(s, bytecode.OpName(in.Op))
	}
	return s
}

func mustParse(t *testing.T, s string) *PatchSet {
	t.Helper()
	ps, err := Parse([]byte(s))
	require.NoError(t, err)
	return ps.(*PatchSet)
}

func TestParse(t *testing.T) {
	ps := mustParse(t, testPatchFile)
	require.Len(t, ps.Patches, 2)

	p := ps.Patches[0]
	assert.Equal(t, "Wrap count", p.Name)
	assert.Equal(t, "count", p.Group)
	require.Len(t, p.WrapReturns, 1)
	require.Len(t, p.WrapReturns[0].Targets, 1)
	require.NotNil(t, p.WrapReturns[0].Targets[0].Returns)
	assert.Equal(t, "int", *p.WrapReturns[0].Targets[0].Returns)
	assert.Equal(t, []string{"int"}, p.WrapReturns[0].Targets[0].Params)
	assert.Equal(t, &patchfile.Hook{Class: "com.example.Hooks", Method: "count", Descriptor: "(I)I"}, p.WrapReturns[0].Wrapper)
	require.NotNil(t, ps.Patches[1].Enabled)
	assert.False(t, *ps.Patches[1].Enabled)

	require.NoError(t, ps.Validate())
	scripts, err := ps.Scripts()
	require.NoError(t, err)
	require.Len(t, scripts, 1)
	assert.Equal(t, []string{"com.example.Book"}, scripts[0].AffectedClasses())

	_, ok := patchfile.GetFormat("classpatch-toml")
	assert.True(t, ok)

	_, err = Parse([]byte("[[patch]]\nname = \"x\"\nenabeld = true\n"))
	if assert.Error(t, err) {
		assert.Contains(t, err.Error(), "unknown keys: patch.enabeld")
	}

	_, err = Parse([]byte("[[patch]\n"))
	if assert.Error(t, err) {
		assert.Contains(t, err.Error(), "error parsing patch file")
	}
}

func TestValidate(t *testing.T) {
	for _, tc := range []struct {
		name string
		toml string
		err  string
	}{
		{"NoName", `
[[patch]]
enabled = true
[[patch.exit_early]]
targets = [{ class = "a.B", method = "c" }]
`, "patch 1 has no name"},
		{"Duplicate", `
[[patch]]
name = "P"
enabled = true
[[patch.exit_early]]
targets = [{ class = "a.B", method = "c" }]
[[patch]]
name = "P"
enabled = false
[[patch.exit_early]]
targets = [{ class = "a.B", method = "d" }]
`, "more than one patch named `P`"},
		{"NoEnabled", `
[[patch]]
name = "P"
[[patch.exit_early]]
targets = [{ class = "a.B", method = "c" }]
`, "no `enabled` option in `P`"},
		{"NoScripts", `
[[patch]]
name = "P"
enabled = true
`, "no scripts in `P`"},
		{"Group", `
[[patch]]
name = "P1"
enabled = true
group = "g"
[[patch.exit_early]]
targets = [{ class = "a.B", method = "c" }]
[[patch]]
name = "P2"
enabled = true
group = "g"
[[patch.exit_early]]
targets = [{ class = "a.B", method = "d" }]
`, "more than one patch enabled in group `g`"},
		{"InvalidTarget", `
[[patch]]
name = "P"
enabled = true
[[patch.wrap_call]]
targets = [{ class = "", method = "c" }]
call = { class = "a.B", method = "d", descriptor = "()V" }
wrapper = { class = "a.H", method = "w", descriptor = "()V" }
`, "invalid script in patch `P`"},
		{"NonVoidWithoutValue", `
[[patch]]
name = "P"
enabled = true
[[patch.exit_early]]
targets = [{ class = "a.B", method = "c", returns = "int" }]
`, "illegal configuration"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			err := mustParse(t, tc.toml).Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.err)
		})
	}
}

func TestApplyTo(t *testing.T) {
	ps := mustParse(t, testPatchFile)
	in := bookBytes(t)

	pt := patchlib.NewPatcher("com/example/Book", in, nil)
	require.NoError(t, ps.ApplyTo(pt))
	assert.True(t, pt.Changed())
	assert.Equal(t, []string{"iload", "invokestatic", "ireturn"}, ops(t, pt.GetBytes(), "count", "(I)I"))
	assert.Equal(t, []string{"return"}, ops(t, pt.GetBytes(), "run", "()V"))

	require.NoError(t, ps.SetEnabled("Wrap count", false))
	require.NoError(t, ps.SetEnabled("Skip run", true))
	pt = patchlib.NewPatcher("com/example/Book", in, nil)
	require.NoError(t, ps.ApplyTo(pt))
	assert.Equal(t, []string{"iload", "ireturn"}, ops(t, pt.GetBytes(), "count", "(I)I"))
	assert.Equal(t, []string{"return", "return"}, ops(t, pt.GetBytes(), "run", "()V"))

	assert.EqualError(t, ps.SetEnabled("Nope", true), "could not set enabled state of 'Nope' to true: no such patch")
}
