package ember

// This file implements the opcode-level protocol dispatch that §4.4's
// subscript, attribute, call, and collection opcode families delegate to:
// the plumbing between a raw opcode and the §4.3 attribute-lookup/dunder
// machinery already living in class.go and operators.go.

// equalOp implements `==`: an integer/float fast path, then the dunder
// tower, with the §7 exception to the usual NotImplemented-escalation
// rule — if neither side implements __eq__ (or both return
// NotImplemented), the result is identity comparison promoted to a bool,
// never a TypeError, matching "the __eq__ protocol treats NotImplemented
// as false".
func (vm *VM) equalOp(a, b Value) (Value, error) {
	if a.IsNumber() && b.IsNumber() {
		if v, ok := numericFastPath(OpEqual, a, b); ok {
			return v, nil
		}
	}
	if v, ok, err := vm.tryDunder(a, MEq, []Value{a, b}); err != nil {
		return Value{}, err
	} else if ok {
		return v, nil
	}
	if v, ok, err := vm.tryDunder(b, MEq, []Value{b, a}); err != nil {
		return Value{}, err
	} else if ok {
		return v, nil
	}
	return BoolValue(valuesSame(a, b)), nil
}

func (vm *VM) invokeGetItem(recv, idx Value) (Value, error) {
	cls := vm.classOf(recv)
	if cls.special[MGetItem] == (Value{}) {
		return Value{}, vm.newTypeError("%s object is not subscriptable", vm.typeName(recv))
	}
	return vm.callValue(cls.special[MGetItem], []Value{recv, idx}, false)
}

func (vm *VM) invokeSetItem(recv, idx, value Value) error {
	cls := vm.classOf(recv)
	if cls.special[MSetItem] == (Value{}) {
		return vm.newTypeError("%s object does not support item assignment", vm.typeName(recv))
	}
	_, err := vm.callValue(cls.special[MSetItem], []Value{recv, idx, value}, false)
	return err
}

func (vm *VM) invokeDelItem(recv, idx Value) error {
	cls := vm.classOf(recv)
	if cls.special[MDelItem] == (Value{}) {
		return vm.newTypeError("%s object does not support item deletion", vm.typeName(recv))
	}
	_, err := vm.callValue(cls.special[MDelItem], []Value{recv, idx}, false)
	return err
}

func (vm *VM) invokeContains(recv, item Value) (Value, error) {
	cls := vm.classOf(recv)
	if cls.special[MContains] != (Value{}) {
		return vm.callValue(cls.special[MContains], []Value{recv, item}, false)
	}
	items, err := vm.materializeIterable(recv)
	if err != nil {
		return Value{}, err
	}
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

func (vm *VM) invokeIter(recv Value) (Value, error) {
	cls := vm.classOf(recv)
	if cls.special[MIter] == (Value{}) {
		return Value{}, vm.newTypeError("%s object is not iterable", vm.typeName(recv))
	}
	return vm.callValue(cls.special[MIter], []Value{recv}, false)
}

// callIterNext drives one step of the iteration protocol: calling the
// iterator (its __call__, for a generator) and treating StopIteration as
// "stop" rather than propagating it, the convention CALL_ITER/LOOP_ITER
// rely on to avoid a try/except around every loop iteration.
func (vm *VM) callIterNext(iter Value) (Value, bool, error) {
	v, err := vm.callValue(iter, nil, false)
	if err != nil {
		if re, ok := err.(*raisedError); ok && isInstanceOf(re.value, vm.exc.StopIteration) {
			return Value{}, true, nil
		}
		return Value{}, false, err
	}
	if gen, ok := iter.obj.(*GeneratorObj); ok && gen.Done {
		return Value{}, true, nil
	}
	return v, false, nil
}

// materializeIterable drains an iterable value into a Go slice, used by
// UNPACK/UNPACK_EX, splat-argument expansion, and the __contains__
// fallback. Tuples, lists, and sets are read directly; anything else goes
// through the full __iter__/call protocol.
func (vm *VM) materializeIterable(v Value) ([]Value, error) {
	if v.IsObject() {
		switch o := v.obj.(type) {
		case *TupleObj:
			return append([]Value(nil), o.Items...), nil
		case *ListObj:
			return append([]Value(nil), o.Items...), nil
		case *SetObj:
			var out []Value
			o.Table.Each(func(k, _ Value) { out = append(out, k) })
			return out, nil
		case *StringObj:
			var out []Value
			for _, r := range o.String() {
				out = append(out, ObjectValue(vm.intern(string(r))))
			}
			return out, nil
		}
	}
	iter, err := vm.invokeIter(v)
	if err != nil {
		return nil, err
	}
	var out []Value
	for {
		item, stop, err := vm.callIterNext(iter)
		if err != nil {
			return nil, err
		}
		if stop {
			return out, nil
		}
		out = append(out, item)
	}
}

func (vm *VM) lookupGlobal(frame *CallFrame, name *StringObj) (Value, error) {
	if v, ok := frame.globals.Get(ObjectValue(name)); ok {
		return v, nil
	}
	if v, ok := vm.builtins.Fields.Get(ObjectValue(name)); ok {
		return v, nil
	}
	return Value{}, vm.newNameError(name.String())
}

// getMethod implements the CALL_METHOD fast path's lookup (§4.4): when the
// resolved attribute is a plain function found through the class (not the
// instance dict), it is returned unbound alongside the receiver so
// CALL_METHOD can rotate the receiver in without allocating a BoundMethodObj;
// otherwise it falls back to the ordinary bound getAttribute result with a
// None receiver placeholder, so the call site always has a uniform
// (receiver, callable) pair on the stack.
func (vm *VM) getMethod(recv Value, name *StringObj) (Value, Value, error) {
	cls := mroRoot(vm, recv)
	if inst, ok := recv.obj.(*Instance); ok {
		if _, ok := inst.Fields.Get(ObjectValue(name)); ok {
			v, err := getAttribute(vm, recv, name)
			return NoneValue(), v, err
		}
	}
	nameHash := name.hash
	classVal, found := cls.cacheGet(nameHash)
	if !found {
		classVal, found = lookupMRO(cls, name)
		cls.cachePut(nameHash, classVal, found)
	}
	if found && !isDataDescriptor(classVal) && !isNonDataDescriptor(classVal) && isPlainCallable(classVal) {
		return recv, classVal, nil
	}
	v, err := getAttribute(vm, recv, name)
	return NoneValue(), v, err
}

func isPlainCallable(v Value) bool {
	if !v.IsObject() {
		return false
	}
	switch v.obj.(type) {
	case *ClosureObj, *NativeFunctionObj:
		return true
	}
	return false
}

// getSuper resolves name starting one level above baseVal in recv's MRO,
// the behavior GET_SUPER exists to give `super().method()` call sites.
func (vm *VM) getSuper(recv, baseVal Value, name *StringObj) (Value, error) {
	base, ok := baseVal.obj.(*ClassObj)
	if !ok {
		return Value{}, vm.newTypeError("super() argument must be a class")
	}
	if v, ok := lookupMRO(base.Base, name); ok {
		return bindIfCallable(vm, v, recv), nil
	}
	return Value{}, vm.newAttributeError(recv, name.String())
}

// sliceOp builds a tuple(start, stop[, step]) the way CPython's BUILD_SLICE
// does — there is no distinguished Slice heap type in this core, since
// __getitem__ implementations are free to interpret a 2/3-tuple argument
// however they need to (the built-in list/dict/set/tuple/bytes
// __getitem__s registered in collections_builtin.go only accept a plain
// integer index; a user class's __getitem__ may give slice tuples their
// own meaning).
func (vm *VM) sliceOp(th *ThreadState, n int) error {
	items := make([]Value, n)
	copy(items, th.stack[len(th.stack)-n:])
	th.popN(n)
	tup := &TupleObj{Items: items}
	tup.typ = ObjTuple
	vm.gc.track(tup, objectSize(tup))
	th.push(ObjectValue(tup))
	return nil
}

// unpackOp implements UNPACK/UNPACK_EX: drains the top-of-stack iterable
// and pushes its elements so that after this opcode, the first unpacked
// element is deepest on the stack (matching left-to-right assignment
// target order). UNPACK_EX additionally collects every element beyond
// `before` and before the trailing `after` elements into a list bound at
// position `before`.
func (vm *VM) unpackOp(th *ThreadState, before, after int) error {
	src := th.pop()
	items, err := vm.materializeIterable(src)
	if err != nil {
		return err
	}
	if after < 0 {
		if len(items) != before {
			return vm.newValueError("not enough values to unpack (expected %d, got %d)", before, len(items))
		}
		for _, it := range items {
			th.push(it)
		}
		return nil
	}
	need := before + after
	if len(items) < need {
		return vm.newValueError("not enough values to unpack (expected at least %d, got %d)", need, len(items))
	}
	for i := 0; i < before; i++ {
		th.push(items[i])
	}
	mid := append([]Value(nil), items[before:len(items)-after]...)
	l := &ListObj{Items: mid}
	l.typ = ObjList
	vm.gc.track(l, objectSize(l))
	th.push(ObjectValue(l))
	for i := len(items) - after; i < len(items); i++ {
		th.push(items[i])
	}
	return nil
}

// formatValue implements FORMAT_VALUE: pop the value (and, for the debug
// `{x=}` form, its source text already pushed by the compiler as a
// string constant just below it), apply str/repr/a user __format__, and
// push the resulting string.
func (vm *VM) formatValue(th *ThreadState, flags FormatFlag) error {
	v := th.pop()
	var prefix string
	if flags&FormatEq != 0 {
		src := th.pop()
		prefix = src.obj.(*StringObj).String() + "="
	}
	var s string
	var err error
	switch {
	case flags&FormatRepr != 0:
		s, err = vm.reprOf(v)
	case flags&FormatFormat != 0:
		s, err = vm.formatOf(v)
	default:
		s, err = vm.strOf(v)
	}
	if err != nil {
		return err
	}
	th.push(ObjectValue(vm.intern(prefix + s)))
	return nil
}

func (vm *VM) strOf(v Value) (string, error) {
	cls := vm.classOf(v)
	if cls.special[MStr] != (Value{}) {
		r, err := vm.callValue(cls.special[MStr], []Value{v}, false)
		if err != nil {
			return "", err
		}
		return r.obj.(*StringObj).String(), nil
	}
	return vm.reprOf(v)
}

func (vm *VM) reprOf(v Value) (string, error) {
	cls := vm.classOf(v)
	if cls.special[MRepr] != (Value{}) {
		r, err := vm.callValue(cls.special[MRepr], []Value{v}, false)
		if err != nil {
			return "", err
		}
		return r.obj.(*StringObj).String(), nil
	}
	return vm.reprFallback(v), nil
}

func (vm *VM) formatOf(v Value) (string, error) {
	cls := vm.classOf(v)
	if cls.special[MFormat] != (Value{}) {
		r, err := vm.callValue(cls.special[MFormat], []Value{v, ObjectValue(vm.intern(""))}, false)
		if err != nil {
			return "", err
		}
		return r.obj.(*StringObj).String(), nil
	}
	return vm.strOf(v)
}

// makeStringOp implements MAKE_STRING n: concatenate the top n stack
// values (already converted to strings by preceding FORMAT_VALUE/CONSTANT
// opcodes) into one interned string, the final step of f-string assembly.
func (vm *VM) makeStringOp(th *ThreadState, n int) error {
	var sb []byte
	base := len(th.stack) - n
	for i := base; i < len(th.stack); i++ {
		s, ok := th.stack[i].obj.(*StringObj)
		if !ok {
			return vm.newTypeError("f-string component is not a string")
		}
		sb = append(sb, s.data...)
	}
	th.popN(n)
	th.push(ObjectValue(vm.intern(string(sb))))
	return nil
}

// makeClosure implements the CLOSURE opcode's upvalue-capture loop (§4.4):
// for each upvalue descriptor on the CodeObject, either capture a local
// from the currently executing frame or inherit one already captured by
// that frame's own closure.
func (vm *VM) makeClosure(th *ThreadState, frame *CallFrame, code *CodeObject) *ClosureObj {
	owner, _ := frame.globalsOwner.obj.(*ModuleObj)
	if owner == nil {
		owner = vm.builtins
	}
	cl := &ClosureObj{
		Code:        code,
		Upvalues:    make([]*UpvalueObj, len(code.Upvalues)),
		Fields:      NewTable(),
		Globals:     owner,
		Annotations: NoneValue(),
	}
	cl.typ = ObjClosure
	vm.gc.track(cl, objectSize(cl))
	for i, desc := range code.Upvalues {
		if desc.FromParentLocal {
			cl.Upvalues[i] = th.captureUpvalue(vm, frame.slotsBase+desc.Index)
		} else {
			cl.Upvalues[i] = frame.closure.Upvalues[desc.Index]
		}
	}
	return cl
}

// pushBuildClass returns the native PUSH_BUILD_CLASS helper: a callable the
// compiler invokes with (name, methodsFn[, base]) to assemble a ClassObj.
// Modeled as a NativeFunctionObj so class construction goes through the
// same callValue path as everything else.
func (vm *VM) pushBuildClass() *NativeFunctionObj {
	fn := &NativeFunctionObj{
		Name: "__build_class__",
		Fn: func(vm *VM, args []Value, hasKw bool) (Value, error) {
			if len(args) < 2 {
				return Value{}, vm.newArgumentError("__build_class__ requires a name and a methods function")
			}
			name := args[0].obj.(*StringObj).String()
			var base *ClassObj
			if len(args) > 2 && args[2].IsObject() {
				base, _ = args[2].obj.(*ClassObj)
			}
			cls := &ClassObj{Name: name, Base: base, Methods: NewTable(), Subclasses: newSubclassSet()}
			cls.typ = ObjClass
			vm.gc.track(cls, objectSize(cls))
			if base != nil {
				base.Subclasses.add(cls)
			}
			body := args[1]
			ns := NewTable()
			nsModule := &ModuleObj{Fields: ns}
			nsModule.typ = ObjModule
			vm.gc.track(nsModule, objectSize(nsModule))
			if cl, ok := body.obj.(*ClosureObj); ok {
				saved := cl.Globals
				cl.Globals = nsModule
				_, err := vm.callValue(body, nil, false)
				cl.Globals = saved
				if err != nil {
					return Value{}, err
				}
			}
			ns.Each(func(k, v Value) { cls.Methods.Set(k, v) })
			cls.finalize()
			return ObjectValue(cls), nil
		},
	}
	fn.typ = ObjNativeFunction
	vm.gc.track(fn, objectSize(fn))
	return fn
}
