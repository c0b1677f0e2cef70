package ember

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestGetAttributeOnClassReceiverSearchesItsOwnMRO locks in the mroRoot
// fix: reading an attribute directly off a class value (ClassName.attr,
// not through an instance) must walk the class's own base chain, not the
// always-empty `type` metaclass classOf otherwise reports for it.
func TestGetAttributeOnClassReceiverSearchesItsOwnMRO(t *testing.T) {
	vm := newTestVM()
	base := newTestClass(vm, "Base", nil)
	sub := newTestClass(vm, "Sub", base)

	base.Methods.Set(ObjectValue(vm.intern("greeting")), ObjectValue(vm.intern("hello")))
	base.finalize()

	v, err := getAttribute(vm, ObjectValue(sub), vm.intern("greeting"))
	require.NoError(t, err)
	assert.Equal(t, "hello", v.obj.(*StringObj).String())
}

// TestGetMethodOnClassReceiverFindsClassmethod mirrors the above for the
// CALL_METHOD fast path, which used to suffer the identical bug.
func TestGetMethodOnClassReceiverFindsClassmethod(t *testing.T) {
	vm := newTestVM()
	cls := newTestClass(vm, "Counter", nil)
	cls.Methods.Set(ObjectValue(vm.intern("make")), nativeMethod(func(vm *VM, args []Value, hasKw bool) (Value, error) {
		return IntValue(42), nil
	}))
	cls.finalize()

	recv, callable, err := vm.getMethod(ObjectValue(cls), vm.intern("make"))
	require.NoError(t, err)
	assert.Same(t, cls, recv.obj.(*ClassObj), "the plain-callable fast path rotates the class itself in as the receiver to call with")
	result, err := vm.callValue(callable, nil, false)
	require.NoError(t, err)
	assert.Equal(t, int64(42), result.AsInt())
}

// TestGetAttributeOnClassReceiverStillRaisesForMissingName ensures the
// fix doesn't accidentally make every class attribute lookup succeed.
func TestGetAttributeOnClassReceiverStillRaisesForMissingName(t *testing.T) {
	vm := newTestVM()
	cls := newTestClass(vm, "Empty", nil)
	_, err := getAttribute(vm, ObjectValue(cls), vm.intern("nope"))
	require.Error(t, err)
}
