package classpatch

import (
	"testing"

	"github.com/pgaskin/classpatch/bytecode"
	"github.com/pgaskin/classpatch/classfile"
	"github.com/pgaskin/classpatch/patchfile"
	"github.com/pgaskin/classpatch/patchlib"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

const bookClass = "com/example/Book"

const testPatchFile = `
Wrap count:
  - Enabled: true
  - PatchGroup: count
  - Description: Pass every count through a hook.
  - WrapReturns:
      Targets:
        - Class: com.example.Book
          Method: count
          Returns: int
          Params: [int]
      Wrapper: {Class: com.example.Hooks, Method: count, Descriptor: (I)I}
      Requests: [ReturnValue]
Skip run:
  - Enabled: false
  - ExitEarly:
      Targets: [com.example.Book.run]
Other class:
  - Enabled: true
  - ExitEarly:
      Targets: [com.example.Shelf.run]
`

func bookBytes(t *testing.T) []byte {
	t.Helper()
	cf := classfile.New(52, bookClass, "java/lang/Object")
	for _, m := range []struct {
		name, desc   string
		stack, local int
		nodes        []bytecode.Node
	}{
		{"run", "()V", 0, 1, []bytecode.Node{
			&bytecode.Insn{Op: bytecode.Return},
		}},
		{"count", "(I)I", 1, 2, []bytecode.Node{
			&bytecode.Insn{Op: bytecode.Iload, Index: 1},
			&bytecode.Insn{Op: bytecode.Ireturn},
		}},
	} {
		b := &bytecode.Body{Nodes: m.nodes, MaxStack: m.stack, MaxLocals: m.local}
		c, err := b.Encode(cf.Pool)
		require.NoError(t, err)
		require.NoError(t, cf.AddMethod(classfile.AccPublic, m.name, m.desc).SetCode(cf.Pool, c))
	}
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

func mustParse(t *testing.T, y string) *PatchSet {
	t.Helper()
	ps, err := Parse([]byte(y))
	require.NoError(t, err)
	return ps.(*PatchSet)
}

func TestInstructionNodeToInstruction(t *testing.T) {
	for _, tc := range []struct {
		name string
		y    string
		err  string
		chk  func(t *testing.T, i *Instruction)
	}{
		{"None", ``, "expected instruction, got nothing", nil},
		{"Unknown", `Unknown: true`, "line 1: unknown instruction type \"Unknown\"", nil},
		{"TooMany", "Enabled: true\nDescription: test", "multiple types found in instruction, maybe you forgot a '-'", nil},
		{"Value", `PatchGroup: test`, "", func(t *testing.T, i *Instruction) {
			require.NotNil(t, i.PatchGroup)
			assert.Equal(t, PatchGroup("test"), *i.PatchGroup)
			assert.Nil(t, i.Script())
		}},
		{"Struct", `ExitEarly: {Targets: [a.B.c, {Class: a.B, Method: d, Returns: void}], Strategy: transplant}`, "", func(t *testing.T, i *Instruction) {
			require.NotNil(t, i.ExitEarly)
			require.Len(t, i.ExitEarly.Targets, 2)
			assert.Equal(t, "a.B", i.ExitEarly.Targets[0].Class)
			assert.Equal(t, "c", i.ExitEarly.Targets[0].Method)
			assert.True(t, i.ExitEarly.Targets[0].Inline)
			require.NotNil(t, i.ExitEarly.Targets[1].Returns)
			assert.Equal(t, "void", *i.ExitEarly.Targets[1].Returns)
			assert.Equal(t, "transplant", i.ExitEarly.Strategy)
			assert.Equal(t, *i.ExitEarly, i.ToSingleInstruction())
			assert.NotNil(t, i.Script())
		}},
		{"StructExtra", `WrapCall: {Targets: [a.B.c], Extra: true}`, "field Extra not found in type patchfile.WrapCall", nil},
		{"BadInlineTarget", `WrapReturns: {Targets: [nodot]}`, "is not in the form Class.Method", nil},
	} {
		t.Run(tc.name, func(t *testing.T) {
			var n InstructionNode
			require.NoError(t, yaml.Unmarshal([]byte(tc.y), &n))
			i, err := n.ToInstruction()
			if tc.err != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tc.err)
				return
			}
			require.NoError(t, err)
			tc.chk(t, i)
		})
	}
}

func TestParse(t *testing.T) {
	ps := mustParse(t, testPatchFile)
	require.Len(t, *ps, 3)
	assert.Len(t, (*ps)["Wrap count"], 4)
	assert.Equal(t, []string{"Other class", "Skip run", "Wrap count"}, ps.names())
	require.NoError(t, ps.Validate())

	scripts, err := ps.Scripts()
	require.NoError(t, err)
	require.Len(t, scripts, 2)
	assert.Equal(t, "Exit Early from Shelf:run", scripts[0].Name())
	assert.IsType(t, &patchlib.WrapReturnsScript{}, scripts[1])

	f, ok := patchfile.GetFormat("classpatch")
	require.True(t, ok)
	_, err = f([]byte(testPatchFile))
	assert.NoError(t, err)

	_, err = Parse([]byte("Patch:\n  - Enabled: true\n    Description: test\n"))
	if assert.Error(t, err) {
		assert.Contains(t, err.Error(), "patch `Patch`")
		assert.Contains(t, err.Error(), "maybe you forgot a '-'")
	}

	_, err = Parse([]byte("Patch: [\n"))
	if assert.Error(t, err) {
		assert.Contains(t, err.Error(), "error parsing patch file")
	}
}

func TestValidate(t *testing.T) {
	for _, tc := range []struct {
		name string
		y    string
		err  string
	}{
		{"NoEnabled", `
P:
  - ExitEarly: {Targets: [a.B.c]}
`, "no `Enabled` option in `P`"},
		{"TwoEnabled", `
P:
  - Enabled: true
  - Enabled: false
  - ExitEarly: {Targets: [a.B.c]}
`, "more than one `Enabled` option in `P`"},
		{"TwoDescriptions", `
P:
  - Enabled: true
  - Description: a
  - Description: b
  - ExitEarly: {Targets: [a.B.c]}
`, "more than one `Description` option in `P`"},
		{"NoInstructions", `
P:
  - Enabled: true
`, "no instructions in `P`"},
		{"PatchGroup", `
P1:
  - Enabled: true
  - PatchGroup: g
  - ExitEarly: {Targets: [a.B.c]}
P2:
  - Enabled: true
  - PatchGroup: g
  - ExitEarly: {Targets: [a.B.d]}
`, "more than one patch enabled in PatchGroup `g`"},
		{"InvalidTarget", `
P:
  - Enabled: true
  - ExitEarly: {Targets: [{Class: a.B, Method: "c[]"}]}
`, "invalid instruction in patch `P`"},
		{"ParamsWithoutReturns", `
P:
  - Enabled: true
  - ExitEarly: {Targets: [{Class: a.B, Method: c, Params: [int]}]}
`, "Params requires Returns"},
		{"BadStrategy", `
P:
  - Enabled: true
  - ExitEarly: {Targets: [a.B.c], Strategy: teleport}
`, "unknown invocation strategy"},
		{"BadRequest", `
P:
  - Enabled: true
  - ExitEarly: {Targets: [a.B.c], Requests: [Param99]}
`, "invalid parameter request"},
		{"NoTargets", `
P:
  - Enabled: true
  - WrapReturns: {Wrapper: {Class: a.H, Method: w, Descriptor: ()V}}
`, "no targets"},
		{"IllegalConfiguration", `
P:
  - Enabled: true
  - WrapCall:
      Targets: [a.B.c]
      Call: {Class: a.B, Method: d, Descriptor: ()I}
      Wrapper: {Class: a.H, Method: w, Descriptor: (I)I}
      Requests: [ReturnValue]
`, "WrapCall: illegal configuration"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			err := mustParse(t, tc.y).Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.err)
		})
	}

	t.Run("PatchGroupDisabled", func(t *testing.T) {
		ps := mustParse(t, `
P1:
  - Enabled: true
  - PatchGroup: g
  - ExitEarly: {Targets: [a.B.c]}
P2:
  - Enabled: false
  - PatchGroup: g
  - ExitEarly: {Targets: [a.B.d]}
`)
		assert.NoError(t, ps.Validate())
	})
}

func TestApplyTo(t *testing.T) {
	ps := mustParse(t, testPatchFile)
	in := bookBytes(t)

	pt := patchlib.NewPatcher(bookClass, in, nil)
	require.NoError(t, ps.ApplyTo(pt))
	assert.True(t, pt.Changed())
	assert.Equal(t, []string{"iload", "invokestatic", "ireturn"}, ops(t, pt.GetBytes(), "count", "(I)I"))
	assert.Equal(t, []string{"return"}, ops(t, pt.GetBytes(), "run", "()V"), "disabled patch applied")

	require.NoError(t, ps.SetEnabled("Skip run", true))
	require.NoError(t, ps.SetEnabled("Wrap count", false))
	pt = patchlib.NewPatcher(bookClass, in, nil)
	require.NoError(t, ps.ApplyTo(pt))
	assert.Equal(t, []string{"iload", "ireturn"}, ops(t, pt.GetBytes(), "count", "(I)I"))
	assert.Equal(t, []string{"return", "return"}, ops(t, pt.GetBytes(), "run", "()V"))

	pt = patchlib.NewPatcher("com/example/Unrelated", in, nil)
	require.NoError(t, ps.ApplyTo(pt))
	assert.False(t, pt.Changed())

	require.NoError(t, ps.SetEnabled("Skip run", false))
	require.NoError(t, ps.SetEnabled("Other class", false))
	pt = patchlib.NewPatcher(bookClass, in, nil)
	require.NoError(t, ps.ApplyTo(pt))
	assert.False(t, pt.Changed())
	assert.Equal(t, in, pt.GetBytes())
}

func TestApplyToInvalid(t *testing.T) {
	ps := mustParse(t, "P:\n  - ExitEarly: {Targets: [a.B.c]}\n")
	err := ps.ApplyTo(patchlib.NewPatcher(bookClass, bookBytes(t), nil))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid patch file")
}

func TestSetEnabled(t *testing.T) {
	ps := mustParse(t, testPatchFile)
	assert.EqualError(t, ps.SetEnabled("Nope", true), "could not set enabled state of 'Nope' to true: no such patch")
	require.NoError(t, ps.SetEnabled("Wrap count", false))
	assert.False(t, (*ps)["Wrap count"].enabled())

	(*ps)["Bare"] = Patch{{ExitEarly: &patchfile.ExitEarly{}}}
	assert.EqualError(t, ps.SetEnabled("Bare", true), "could not set enabled state of 'Bare' to true: no Enabled instruction in patch")
}
