package ember

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newCounterFactory hand-assembles the bytecode equivalent of:
//
//	def make_counter():
//	    x = 0
//	    def counter():
//	        nonlocal x
//	        x = x + 1
//	        return x
//	    return counter
//
// exercising CLOSURE's upvalue-capture loop (a FromParentLocal descriptor
// pointing at the outer frame's local slot 0) and OpGetUpvalue/OpSetUpvalue.
func newCounterFactory(vm *VM, module *ModuleObj) *ClosureObj {
	inner := NewChunkBuilder()
	inner.Emit1(OpGetUpvalue, 0)
	inner.EmitConstant(IntValue(1))
	inner.Emit(OpAdd)
	inner.Emit1(OpSetUpvalue, 0)
	inner.Emit(OpReturn)
	innerChunk := inner.Chunk()
	innerCode := &CodeObject{
		Name: "counter", Filename: "<test>", Chunk: innerChunk,
		Upvalues: []UpvalueDescriptor{{FromParentLocal: true, Index: 0}},
	}
	innerCode.typ = ObjCodeObject

	outer := NewChunkBuilder()
	outer.EmitConstant(IntValue(0)) // local slot 0: x
	idx := outer.AddConstant(ObjectValue(innerCode))
	outer.Emit1(OpClosure, byte(idx))
	outer.Emit(OpReturn)
	outerChunk := outer.Chunk()
	outerCode := &CodeObject{Name: "make_counter", Filename: "<test>", Chunk: outerChunk}
	outerCode.typ = ObjCodeObject

	cl := &ClosureObj{Code: outerCode, Globals: module, Fields: NewTable(), Annotations: NoneValue()}
	cl.typ = ObjClosure
	return cl
}

func TestClosureCapturesAndSharesUpvalueAcrossCalls(t *testing.T) {
	vm := newTestVM()
	module := vm.newModule("__main__", false)
	factory := newCounterFactory(vm, module)

	counterVal, err := vm.callClosure(factory, nil, false)
	require.NoError(t, err)
	counter, ok := counterVal.obj.(*ClosureObj)
	require.True(t, ok, "make_counter must return the inner closure, not run it")

	v1, err := vm.callClosure(counter, nil, false)
	require.NoError(t, err)
	assert.Equal(t, int64(1), v1.AsInt())

	v2, err := vm.callClosure(counter, nil, false)
	require.NoError(t, err)
	assert.Equal(t, int64(2), v2.AsInt(), "the second call must see the state left by the first: same upvalue, not a fresh local")

	v3, err := vm.callClosure(counter, nil, false)
	require.NoError(t, err)
	assert.Equal(t, int64(3), v3.AsInt())
}

func TestClosuresFromSeparateFactoryCallsDoNotShareState(t *testing.T) {
	vm := newTestVM()
	module := vm.newModule("__main__", false)
	factory := newCounterFactory(vm, module)

	c1Val, err := vm.callClosure(factory, nil, false)
	require.NoError(t, err)
	c2Val, err := vm.callClosure(factory, nil, false)
	require.NoError(t, err)
	c1 := c1Val.obj.(*ClosureObj)
	c2 := c2Val.obj.(*ClosureObj)

	v1, err := vm.callClosure(c1, nil, false)
	require.NoError(t, err)
	assert.Equal(t, int64(1), v1.AsInt())

	v2, err := vm.callClosure(c2, nil, false)
	require.NoError(t, err)
	assert.Equal(t, int64(1), v2.AsInt(), "a second factory call must close over its own independent local, not c1's")
}
