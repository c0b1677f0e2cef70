package ember

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProcessComplexArgumentsSplatsAListArgument(t *testing.T) {
	vm := newTestVM()
	l := &ListObj{Items: []Value{IntValue(1), IntValue(2), IntValue(3)}}
	l.typ = ObjList

	raw := []Value{
		IntValue(0),
		KwargsValue(KwargsList), ObjectValue(l),
		IntValue(4),
	}
	positional, kwargs, err := vm.processComplexArguments(raw)
	require.NoError(t, err)
	assert.Nil(t, kwargs)
	require.Len(t, positional, 5)
	for i, want := range []int64{0, 1, 2, 3, 4} {
		assert.Equal(t, want, positional[i].AsInt())
	}
}

func TestProcessComplexArgumentsMergesADictSplat(t *testing.T) {
	vm := newTestVM()
	tbl := NewTable()
	tbl.Set(ObjectValue(vm.intern("x")), IntValue(1))
	d := &DictObj{Table: tbl}
	d.typ = ObjDict

	raw := []Value{
		KwargsValue(KwargsDict), ObjectValue(d),
		KwargsValue(KwargsSingle), ObjectValue(vm.intern("y")), IntValue(2),
	}
	positional, kwargs, err := vm.processComplexArguments(raw)
	require.NoError(t, err)
	assert.Empty(t, positional)
	require.NotNil(t, kwargs)
	xv, ok := kwargs.Get(ObjectValue(vm.intern("x")))
	require.True(t, ok)
	assert.Equal(t, int64(1), xv.AsInt())
	yv, ok := kwargs.Get(ObjectValue(vm.intern("y")))
	require.True(t, ok)
	assert.Equal(t, int64(2), yv.AsInt())
}

func TestProcessComplexArgumentsRejectsDuplicateKeyword(t *testing.T) {
	vm := newTestVM()
	tbl := NewTable()
	tbl.Set(ObjectValue(vm.intern("x")), IntValue(1))
	d := &DictObj{Table: tbl}
	d.typ = ObjDict

	raw := []Value{
		KwargsValue(KwargsDict), ObjectValue(d),
		KwargsValue(KwargsSingle), ObjectValue(vm.intern("x")), IntValue(9),
	}
	_, _, err := vm.processComplexArguments(raw)
	require.Error(t, err, "x=9 colliding with an already-splatted **d[\"x\"] must raise ArgumentError")
}

// TestBindArgumentsCollectsVarargsAndVarKwargs exercises bindArguments'
// *args/**kwargs collection directly against a hand-built CodeObject, the
// counterpart to processComplexArguments' call-site assembly.
func TestBindArgumentsCollectsVarargsAndVarKwargs(t *testing.T) {
	vm := newTestVM()
	code := &CodeObject{
		Name:     "f",
		ArgNames: []string{"a", "args", "kwargs"},
	}
	code.typ = ObjCodeObject
	code.set(flagCodeCollectsArgs)
	code.set(flagCodeCollectsKwargs)

	cl := &ClosureObj{Code: code, Fields: NewTable(), Annotations: NoneValue()}
	cl.typ = ObjClosure

	kwTbl := NewTable()
	kwTbl.Set(ObjectValue(vm.intern("z")), IntValue(99))
	kwDict := &DictObj{Table: kwTbl}
	kwDict.typ = ObjDict

	args := []Value{IntValue(1), IntValue(2), IntValue(3), ObjectValue(kwDict)}
	slots, err := vm.bindArguments(cl, args, true)
	require.NoError(t, err)
	require.Len(t, slots, 3)
	assert.Equal(t, int64(1), slots[0].AsInt())

	varargs, ok := slots[1].obj.(*TupleObj)
	require.True(t, ok)
	require.Len(t, varargs.Items, 2)
	assert.Equal(t, int64(2), varargs.Items[0].AsInt())
	assert.Equal(t, int64(3), varargs.Items[1].AsInt())

	varkwargs, ok := slots[2].obj.(*DictObj)
	require.True(t, ok)
	zv, ok := varkwargs.Table.Get(ObjectValue(vm.intern("z")))
	require.True(t, ok)
	assert.Equal(t, int64(99), zv.AsInt())
}
