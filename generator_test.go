package ember

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newGeneratorClosure hand-assembles a zero-argument generator function
// equivalent to:
//
//	def gen():
//	    yield 1
//	    yield 2
//	    return 3
//
// matching the shape the compiler (an external collaborator, §1) would
// otherwise emit: each resumption after the first opens with a POP that
// discards whatever resumeGenerator pushed as the sent value.
func newGeneratorClosure(vm *VM, module *ModuleObj) *ClosureObj {
	b := NewChunkBuilder()
	b.EmitConstant(IntValue(1))
	b.Emit(OpYield)
	b.Emit(OpPop)
	b.EmitConstant(IntValue(2))
	b.Emit(OpYield)
	b.Emit(OpPop)
	b.EmitConstant(IntValue(3))
	b.Emit(OpReturn)
	chunk := b.Chunk()

	code := &CodeObject{Name: "gen", Filename: "<test>", Chunk: chunk}
	code.typ = ObjCodeObject
	code.set(flagCodeIsGenerator)

	cl := &ClosureObj{Code: code, Globals: module, Fields: NewTable(), Annotations: NoneValue()}
	cl.typ = ObjClosure
	return cl
}

func TestGeneratorSuspendResume(t *testing.T) {
	vm := newTestVM()
	module := vm.newModule("__main__", false)

	cl := newGeneratorClosure(vm, module)
	genVal, err := vm.callClosure(cl, nil, false)
	require.NoError(t, err)
	gen, ok := genVal.obj.(*GeneratorObj)
	require.True(t, ok, "calling a generator-flagged closure should produce a GeneratorObj, not run eagerly")
	assert.False(t, gen.Started)
	assert.False(t, gen.Done)

	v1, err := vm.resumeGenerator(gen, nil, false)
	require.NoError(t, err)
	assert.Equal(t, int64(1), v1.AsInt())
	assert.True(t, gen.Started)
	assert.False(t, gen.Done)

	v2, err := vm.resumeGenerator(gen, []Value{NoneValue()}, false)
	require.NoError(t, err)
	assert.Equal(t, int64(2), v2.AsInt())
	assert.False(t, gen.Done)

	v3, err := vm.resumeGenerator(gen, []Value{NoneValue()}, false)
	require.NoError(t, err)
	assert.Equal(t, int64(3), v3.AsInt())
	assert.True(t, gen.Done, "returning from the generator body must mark it Done")
	assert.Equal(t, int64(3), gen.Result.AsInt())

	_, err = vm.resumeGenerator(gen, nil, false)
	require.Error(t, err, "resuming an exhausted generator must raise StopIteration")
	re, ok := err.(*raisedError)
	require.True(t, ok)
	inst, ok := re.value.obj.(*Instance)
	require.True(t, ok)
	assert.Same(t, vm.exc.StopIteration, inst.Class)
}

func TestGeneratorRejectsDoubleResume(t *testing.T) {
	vm := newTestVM()
	module := vm.newModule("__main__", false)
	cl := newGeneratorClosure(vm, module)
	genVal, err := vm.callClosure(cl, nil, false)
	require.NoError(t, err)
	gen := genVal.obj.(*GeneratorObj)

	gen.Running = true
	_, err = vm.resumeGenerator(gen, nil, false)
	require.Error(t, err)
}
