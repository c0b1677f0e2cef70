package ember

import "bytes"

// collections_builtin.go wires native __getitem__/__setitem__/__delitem__/
// __iter__/__len__/__contains__ onto the preconstructed list/dict/set/
// tuple/bytes classes in builtinTypeClasses. Without these, finalize()
// leaves special[MGetItem]/special[MSetItem]/special[MDelItem]/
// special[MIter] at the zero Value for every one of them, and
// OpInvokeGetter/OpInvokeSetter/OpInvokeDelete/OpInvokeIter (vm.go) have no
// fallback the way invokeContains falls back to materializeIterable — so
// ordinary `x[i]`, `x[i] = v`, `del x[i]`, and `for v in x:` syntax would
// raise TypeError against every collection literal the VM itself builds.

func registerCollectionProtocols(vm *VM, b *builtinTypeClasses) {
	addMethods(vm, b.byObjType[ObjList], map[string]NativeFn{
		"__getitem__": listGetItem, "__setitem__": listSetItem, "__delitem__": listDelItem,
		"__iter__": listIter, "__len__": listLen, "__contains__": listContains,
	})
	addMethods(vm, b.byObjType[ObjTuple], map[string]NativeFn{
		"__getitem__": tupleGetItem, "__iter__": tupleIter,
		"__len__": tupleLen, "__contains__": tupleContains,
	})
	addMethods(vm, b.byObjType[ObjBytes], map[string]NativeFn{
		"__getitem__": bytesGetItem, "__iter__": bytesIter,
		"__len__": bytesLen, "__contains__": bytesContains,
	})
	addMethods(vm, b.byObjType[ObjDict], map[string]NativeFn{
		"__getitem__": dictGetItem, "__setitem__": dictSetItem, "__delitem__": dictDelItem,
		"__iter__": dictIter, "__len__": dictLen, "__contains__": dictContains,
	})
	addMethods(vm, b.byObjType[ObjSet], map[string]NativeFn{
		"__iter__": setIter, "__len__": setLen, "__contains__": setContains,
	})
	for _, c := range []*ClassObj{
		b.byObjType[ObjList], b.byObjType[ObjTuple], b.byObjType[ObjBytes],
		b.byObjType[ObjDict], b.byObjType[ObjSet],
	} {
		c.finalize()
	}
}

func addMethods(vm *VM, c *ClassObj, methods map[string]NativeFn) {
	for name, fn := range methods {
		n := &NativeFunctionObj{Name: name, Fn: fn}
		n.typ = ObjNativeFunction
		vm.gc.track(n, objectSize(n))
		c.Methods.Set(ObjectValue(vm.intern(name)), ObjectValue(n))
	}
}

// sequenceIndex resolves a __getitem__/__setitem__/__delitem__ index
// argument against length: negative indices count from the end, and both
// a non-integer index and an out-of-range one raise the error Python would.
func (vm *VM) sequenceIndex(typeName string, idx Value, length int) (int, error) {
	if !idx.IsInt() {
		return 0, vm.newTypeError("%s indices must be integers, not %s", typeName, vm.typeName(idx))
	}
	i := int(idx.AsInt())
	if i < 0 {
		i += length
	}
	if i < 0 || i >= length {
		return 0, vm.newIndexError("%s index out of range", typeName)
	}
	return i, nil
}

// sequenceContains implements __contains__ for the sequence types that have
// no faster-than-linear membership test (list and tuple use it; bytes has
// its own byte scan, and dict/set use their backing Table's hash lookup).
func (vm *VM) sequenceContains(items []Value, item Value) (Value, error) {
	for _, v := range items {
		eq, err := vm.equalOp(v, item)
		if err != nil {
			return Value{}, err
		}
		if eq.truthy() {
			return BoolValue(true), nil
		}
	}
	return BoolValue(false), nil
}

// newSequenceIterator builds the native __iter__ result every collection
// protocol below returns: a zero-argument callable closing over items and
// an index, raising StopIteration once exhausted, matching the
// call-then-check-StopIteration convention callIterNext expects.
func (vm *VM) newSequenceIterator(items []Value) Value {
	i := 0
	fn := &NativeFunctionObj{
		Name: "iterator",
		Fn: func(vm *VM, args []Value, hasKw bool) (Value, error) {
			if i >= len(items) {
				return Value{}, &raisedError{value: vm.newException(vm.exc.StopIteration, "")}
			}
			v := items[i]
			i++
			return v, nil
		},
	}
	fn.typ = ObjNativeFunction
	vm.gc.track(fn, objectSize(fn))
	return ObjectValue(fn)
}

func listGetItem(vm *VM, args []Value, hasKw bool) (Value, error) {
	l := args[0].obj.(*ListObj)
	i, err := vm.sequenceIndex("list", args[1], len(l.Items))
	if err != nil {
		return Value{}, err
	}
	return l.Items[i], nil
}

func listSetItem(vm *VM, args []Value, hasKw bool) (Value, error) {
	l := args[0].obj.(*ListObj)
	i, err := vm.sequenceIndex("list", args[1], len(l.Items))
	if err != nil {
		return Value{}, err
	}
	l.Items[i] = args[2]
	return NoneValue(), nil
}

func listDelItem(vm *VM, args []Value, hasKw bool) (Value, error) {
	l := args[0].obj.(*ListObj)
	i, err := vm.sequenceIndex("list", args[1], len(l.Items))
	if err != nil {
		return Value{}, err
	}
	l.Items = append(l.Items[:i], l.Items[i+1:]...)
	return NoneValue(), nil
}

func listLen(vm *VM, args []Value, hasKw bool) (Value, error) {
	return IntValue(int64(len(args[0].obj.(*ListObj).Items))), nil
}

func listIter(vm *VM, args []Value, hasKw bool) (Value, error) {
	l := args[0].obj.(*ListObj)
	return vm.newSequenceIterator(append([]Value(nil), l.Items...)), nil
}

func listContains(vm *VM, args []Value, hasKw bool) (Value, error) {
	return vm.sequenceContains(args[0].obj.(*ListObj).Items, args[1])
}

func tupleGetItem(vm *VM, args []Value, hasKw bool) (Value, error) {
	t := args[0].obj.(*TupleObj)
	i, err := vm.sequenceIndex("tuple", args[1], len(t.Items))
	if err != nil {
		return Value{}, err
	}
	return t.Items[i], nil
}

func tupleLen(vm *VM, args []Value, hasKw bool) (Value, error) {
	return IntValue(int64(len(args[0].obj.(*TupleObj).Items))), nil
}

func tupleIter(vm *VM, args []Value, hasKw bool) (Value, error) {
	t := args[0].obj.(*TupleObj)
	return vm.newSequenceIterator(append([]Value(nil), t.Items...)), nil
}

func tupleContains(vm *VM, args []Value, hasKw bool) (Value, error) {
	return vm.sequenceContains(args[0].obj.(*TupleObj).Items, args[1])
}

func bytesGetItem(vm *VM, args []Value, hasKw bool) (Value, error) {
	b := args[0].obj.(*BytesObj)
	i, err := vm.sequenceIndex("bytes", args[1], len(b.Data))
	if err != nil {
		return Value{}, err
	}
	return IntValue(int64(b.Data[i])), nil
}

func bytesLen(vm *VM, args []Value, hasKw bool) (Value, error) {
	return IntValue(int64(len(args[0].obj.(*BytesObj).Data))), nil
}

func bytesIter(vm *VM, args []Value, hasKw bool) (Value, error) {
	data := args[0].obj.(*BytesObj).Data
	items := make([]Value, len(data))
	for i, by := range data {
		items[i] = IntValue(int64(by))
	}
	return vm.newSequenceIterator(items), nil
}

// bytesContains supports both `170 in b` (a single byte value) and
// `b"ab" in b` (subsequence search), the two forms Python's bytes.__contains__
// accepts.
func bytesContains(vm *VM, args []Value, hasKw bool) (Value, error) {
	b := args[0].obj.(*BytesObj)
	if args[1].IsInt() {
		n := args[1].AsInt()
		for _, by := range b.Data {
			if int64(by) == n {
				return BoolValue(true), nil
			}
		}
		return BoolValue(false), nil
	}
	if sub, ok := args[1].obj.(*BytesObj); ok {
		return BoolValue(bytes.Contains(b.Data, sub.Data)), nil
	}
	return Value{}, vm.newTypeError("a bytes-like object or int is required, not %s", vm.typeName(args[1]))
}

func dictGetItem(vm *VM, args []Value, hasKw bool) (Value, error) {
	d := args[0].obj.(*DictObj)
	v, ok := d.Table.Get(args[1])
	if !ok {
		return Value{}, vm.newKeyError(args[1])
	}
	return v, nil
}

func dictSetItem(vm *VM, args []Value, hasKw bool) (Value, error) {
	d := args[0].obj.(*DictObj)
	d.Table.Set(args[1], args[2])
	return NoneValue(), nil
}

func dictDelItem(vm *VM, args []Value, hasKw bool) (Value, error) {
	d := args[0].obj.(*DictObj)
	if !d.Table.Delete(args[1]) {
		return Value{}, vm.newKeyError(args[1])
	}
	return NoneValue(), nil
}

func dictLen(vm *VM, args []Value, hasKw bool) (Value, error) {
	return IntValue(int64(args[0].obj.(*DictObj).Table.Count())), nil
}

func dictContains(vm *VM, args []Value, hasKw bool) (Value, error) {
	return BoolValue(args[0].obj.(*DictObj).Table.Has(args[1])), nil
}

func dictIter(vm *VM, args []Value, hasKw bool) (Value, error) {
	d := args[0].obj.(*DictObj)
	var keys []Value
	d.Table.Each(func(k, _ Value) { keys = append(keys, k) })
	return vm.newSequenceIterator(keys), nil
}

func setLen(vm *VM, args []Value, hasKw bool) (Value, error) {
	return IntValue(int64(args[0].obj.(*SetObj).Table.Count())), nil
}

func setContains(vm *VM, args []Value, hasKw bool) (Value, error) {
	return BoolValue(args[0].obj.(*SetObj).Table.Has(args[1])), nil
}

func setIter(vm *VM, args []Value, hasKw bool) (Value, error) {
	s := args[0].obj.(*SetObj)
	var keys []Value
	s.Table.Each(func(k, _ Value) { keys = append(keys, k) })
	return vm.newSequenceIterator(keys), nil
}
