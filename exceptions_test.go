package ember

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newContextManager builds a trivial context-manager instance whose
// __exit__ is the given native function and whose __enter__ just returns
// itself, enough to exercise cleanupWith without needing pushWith's
// bytecode-level PUSH_WITH/CLEANUP_WITH opcode pairing.
func newContextManager(vm *VM, exit NativeFn) Value {
	cls := newTestClass(vm, "CM", nil)
	cls.Methods.Set(ObjectValue(vm.intern("__enter__")), nativeMethod(func(vm *VM, args []Value, hasKw bool) (Value, error) {
		return args[0], nil
	}))
	cls.Methods.Set(ObjectValue(vm.intern("__exit__")), nativeMethod(exit))
	cls.finalize()
	inst := &Instance{Class: cls, Fields: NewTable()}
	inst.typ = ObjInstance
	return ObjectValue(inst)
}

func TestCleanupWithSuppressesExceptionWhenExitReturnsTruthy(t *testing.T) {
	vm := newTestVM()
	th := vm.currentThread()

	var gotType, gotVal Value
	cm := newContextManager(vm, func(vm *VM, args []Value, hasKw bool) (Value, error) {
		gotType, gotVal = args[1], args[2]
		return BoolValue(true), nil
	})

	pending := vm.newException(vm.exc.ValueError, "boom")
	th.push(cm)
	th.push(pending)
	err := vm.cleanupWith(th)
	require.NoError(t, err)
	assert.False(t, th.is(flagHasException), "a truthy __exit__ result must suppress the pending exception")
	assert.Same(t, vm.exc.ValueError, gotType.obj.(*ClassObj))
	assert.Equal(t, pending, gotVal)
}

func TestCleanupWithReraisesWhenExitReturnsFalsy(t *testing.T) {
	vm := newTestVM()
	th := vm.currentThread()

	cm := newContextManager(vm, func(vm *VM, args []Value, hasKw bool) (Value, error) {
		return BoolValue(false), nil
	})

	pending := vm.newException(vm.exc.ValueError, "boom")
	th.push(cm)
	th.push(pending)
	err := vm.cleanupWith(th)
	require.NoError(t, err)
	assert.True(t, th.is(flagHasException), "a falsy __exit__ result must let the pending exception propagate")
	assert.Equal(t, pending, th.exception)
}

func TestCleanupWithPropagatesWhenExitItselfRaises(t *testing.T) {
	vm := newTestVM()
	th := vm.currentThread()

	cm := newContextManager(vm, func(vm *VM, args []Value, hasKw bool) (Value, error) {
		return Value{}, vm.newValueError("exit blew up")
	})

	pending := vm.newException(vm.exc.ValueError, "boom")
	th.push(cm)
	th.push(pending)
	err := vm.cleanupWith(th)
	require.Error(t, err, "an error raised from __exit__ itself must propagate instead of being swallowed")
}

func TestCleanupWithNoOpWhenNothingPending(t *testing.T) {
	vm := newTestVM()
	th := vm.currentThread()

	called := false
	cm := newContextManager(vm, func(vm *VM, args []Value, hasKw bool) (Value, error) {
		called = true
		assert.True(t, args[1].IsNone())
		assert.True(t, args[2].IsNone())
		return BoolValue(false), nil
	})

	th.push(cm)
	th.push(NoneValue())
	err := vm.cleanupWith(th)
	require.NoError(t, err)
	assert.True(t, called, "__exit__ still runs on the clean exit path, just with None arguments")
	assert.False(t, th.is(flagHasException))
}
