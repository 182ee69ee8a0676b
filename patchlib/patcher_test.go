package patchlib

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPatcher(t *testing.T) {
	in := targetBytes(t, 52)

	done, err := NewWrapReturnsScript(WrapReturnsConfig{
		Targets: []TargetMatcher{mustTarget(t, "com.example.Target", "run")},
		Wrapper: mustHook(t, hooksClass, "done", "()V"),
	})
	require.NoError(t, err)

	saw, err := NewWrapReturnsScript(WrapReturnsConfig{
		Targets:  []TargetMatcher{mustTarget(t, "com.example.Target", "count")},
		Wrapper:  mustHook(t, hooksClass, "saw", "(I)V"),
		Requests: RequestReturnValue,
	})
	require.NoError(t, err)

	other, err := NewWrapReturnsScript(WrapReturnsConfig{
		Targets: []TargetMatcher{mustTarget(t, "com.example.Other", "run")},
		Wrapper: mustHook(t, hooksClass, "done", "()V"),
	})
	require.NoError(t, err)

	t.Run("Unchanged", func(t *testing.T) {
		p := NewPatcher(targetClass, in, nil)
		ok, err := p.Apply(other)
		require.NoError(t, err)
		assert.False(t, ok)
		assert.False(t, p.Changed())
		assert.Equal(t, in, p.GetBytes())
		assert.Equal(t, targetClass, p.ClassName())
	})

	t.Run("Chained", func(t *testing.T) {
		p := NewPatcher(targetClass, in, nil)
		ok, err := p.Apply(done)
		require.NoError(t, err)
		assert.True(t, ok)
		ok, err = p.Apply(saw)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.True(t, p.Changed())

		code, _ := disasm(t, p.GetBytes(), "run", "()V")
		assert.Equal(t, []string{"invokestatic com/example/Hooks.done()V", "return"}, code)
		code, _ = disasm(t, p.GetBytes(), "count", "(I)I")
		assert.Equal(t, []string{"iload 1", "dup", "invokestatic com/example/Hooks.saw(I)V", "ireturn"}, code)
	})

	t.Run("Hook", func(t *testing.T) {
		p := NewPatcher(targetClass, in, nil)
		var calls int
		p.Hook(func(s PatchScript, find, replace []byte) error {
			calls++
			assert.Equal(t, done, s)
			assert.Equal(t, in, find)
			assert.NotEqual(t, find, replace)
			return nil
		})
		_, err := p.Apply(done)
		require.NoError(t, err)
		assert.Equal(t, 1, calls)

		p = NewPatcher(targetClass, in, nil)
		hookErr := errors.New("stop")
		p.Hook(func(PatchScript, []byte, []byte) error {
			return hookErr
		})
		_, err = p.Apply(done)
		assert.ErrorIs(t, err, hookErr)
		assert.False(t, p.Changed())
		assert.Equal(t, in, p.GetBytes())
	})

	t.Run("Error", func(t *testing.T) {
		p := NewPatcher(targetClass, []byte("not a class"), nil)
		_, err := p.Apply(done)
		assert.Error(t, err)
		assert.False(t, p.Changed())

		_, err = p.Apply(nil)
		assert.Error(t, err)
	})
}
