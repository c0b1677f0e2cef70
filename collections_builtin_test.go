package ember

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestList(items ...Value) *ListObj {
	l := &ListObj{Items: items}
	l.typ = ObjList
	return l
}

func newTestTuple(items ...Value) *TupleObj {
	t := &TupleObj{Items: items}
	t.typ = ObjTuple
	return t
}

func newTestDict(vm *VM, pairs map[string]int64) *DictObj {
	tbl := NewTable()
	for k, v := range pairs {
		tbl.Set(ObjectValue(vm.intern(k)), IntValue(v))
	}
	d := &DictObj{Table: tbl}
	d.typ = ObjDict
	return d
}

func newTestSet(vm *VM, items ...string) *SetObj {
	tbl := NewTable()
	for _, s := range items {
		tbl.Set(ObjectValue(vm.intern(s)), NoneValue())
	}
	s := &SetObj{Table: tbl}
	s.typ = ObjSet
	return s
}

func drainIterator(t *testing.T, vm *VM, iter Value) []Value {
	t.Helper()
	var out []Value
	for {
		v, stop, err := vm.callIterNext(iter)
		require.NoError(t, err)
		if stop {
			return out
		}
		out = append(out, v)
	}
}

func TestListSubscriptAndIterationProtocol(t *testing.T) {
	vm := newTestVM()
	l := newTestList(IntValue(10), IntValue(20), IntValue(30))
	recv := ObjectValue(l)

	v, err := vm.invokeGetItem(recv, IntValue(1))
	require.NoError(t, err)
	assert.Equal(t, int64(20), v.AsInt())

	v, err = vm.invokeGetItem(recv, IntValue(-1))
	require.NoError(t, err)
	assert.Equal(t, int64(30), v.AsInt(), "negative indices count from the end")

	_, err = vm.invokeGetItem(recv, IntValue(5))
	require.Error(t, err)
	require.True(t, isInstanceOf(err.(*raisedError).value, vm.exc.IndexError))

	err = vm.invokeSetItem(recv, IntValue(0), IntValue(99))
	require.NoError(t, err)
	assert.Equal(t, int64(99), l.Items[0].AsInt())

	err = vm.invokeDelItem(recv, IntValue(1))
	require.NoError(t, err)
	require.Len(t, l.Items, 2)
	assert.Equal(t, int64(30), l.Items[1].AsInt())

	iter, err := vm.invokeIter(recv)
	require.NoError(t, err)
	got := drainIterator(t, vm, iter)
	require.Len(t, got, 2)
	assert.Equal(t, int64(99), got[0].AsInt())
	assert.Equal(t, int64(30), got[1].AsInt())

	contains, err := vm.invokeContains(recv, IntValue(99))
	require.NoError(t, err)
	assert.True(t, contains.truthy())
}

func TestTupleSubscriptHasNoSetOrDelItem(t *testing.T) {
	vm := newTestVM()
	tup := newTestTuple(IntValue(1), IntValue(2))
	recv := ObjectValue(tup)

	v, err := vm.invokeGetItem(recv, IntValue(1))
	require.NoError(t, err)
	assert.Equal(t, int64(2), v.AsInt())

	err = vm.invokeSetItem(recv, IntValue(0), IntValue(9))
	require.Error(t, err, "tuples are immutable: no __setitem__ should be registered")

	err = vm.invokeDelItem(recv, IntValue(0))
	require.Error(t, err, "tuples are immutable: no __delitem__ should be registered")
}

func TestDictSubscriptAndIterationProtocol(t *testing.T) {
	vm := newTestVM()
	d := newTestDict(vm, map[string]int64{"a": 1})
	recv := ObjectValue(d)

	err := vm.invokeSetItem(recv, ObjectValue(vm.intern("b")), IntValue(2))
	require.NoError(t, err)

	v, err := vm.invokeGetItem(recv, ObjectValue(vm.intern("b")))
	require.NoError(t, err)
	assert.Equal(t, int64(2), v.AsInt())

	_, err = vm.invokeGetItem(recv, ObjectValue(vm.intern("missing")))
	require.Error(t, err)
	require.True(t, isInstanceOf(err.(*raisedError).value, vm.exc.KeyError))

	contains, err := vm.invokeContains(recv, ObjectValue(vm.intern("a")))
	require.NoError(t, err)
	assert.True(t, contains.truthy())

	err = vm.invokeDelItem(recv, ObjectValue(vm.intern("a")))
	require.NoError(t, err)
	assert.False(t, d.Table.Has(ObjectValue(vm.intern("a"))))

	err = vm.invokeDelItem(recv, ObjectValue(vm.intern("a")))
	require.Error(t, err, "deleting an already-absent key must raise KeyError")
}

func TestSetMembershipAndIterationProtocolWithNoSubscript(t *testing.T) {
	vm := newTestVM()
	s := newTestSet(vm, "x", "y")
	recv := ObjectValue(s)

	contains, err := vm.invokeContains(recv, ObjectValue(vm.intern("x")))
	require.NoError(t, err)
	assert.True(t, contains.truthy())

	contains, err = vm.invokeContains(recv, ObjectValue(vm.intern("z")))
	require.NoError(t, err)
	assert.False(t, contains.truthy())

	iter, err := vm.invokeIter(recv)
	require.NoError(t, err)
	require.Len(t, drainIterator(t, vm, iter), 2)

	_, err = vm.invokeGetItem(recv, ObjectValue(vm.intern("x")))
	require.Error(t, err, "sets are not subscriptable")
}

func TestLenBuiltinUsesRegisteredDunderForCollections(t *testing.T) {
	vm := newTestVM()
	l := newTestList(IntValue(1), IntValue(2), IntValue(3))
	v, err := builtinLen(vm, []Value{ObjectValue(l)}, false)
	require.NoError(t, err)
	assert.Equal(t, int64(3), v.AsInt())
}
