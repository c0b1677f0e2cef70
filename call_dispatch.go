package ember

// processComplexArguments turns a raw CALL operand slice (which may
// interleave Kwargs sentinels with their payload values, as pushed by
// EXPAND_ARGS/KWARGS for a `*args`/`**kwargs`/keyword-argument call site)
// into a plain positional slice plus an optional keyword dict, materializing
// any splatted iterable along the way. A sentinel's exact shape:
//
//	KwargsList  sentinel, iterable        -- `*expr`
//	KwargsDict  sentinel, dict            -- `**expr`
//	KwargsSingle sentinel, name, value    -- `name=expr`
//	KwargsUnset/KwargsNil sentinel alone  -- padding, skipped
//
// Anything not preceded by a sentinel is an ordinary positional argument.
func (vm *VM) processComplexArguments(raw []Value) (positional []Value, kwargs *Table, err error) {
	i := 0
	for i < len(raw) {
		v := raw[i]
		if !v.IsKwargs() {
			positional = append(positional, v)
			i++
			continue
		}
		switch v.AsKwargs() {
		case KwargsList:
			items, ierr := vm.materializeIterable(raw[i+1])
			if ierr != nil {
				return nil, nil, ierr
			}
			positional = append(positional, items...)
			i += 2
		case KwargsDict:
			d, ok := raw[i+1].obj.(*DictObj)
			if !ok {
				return nil, nil, vm.newTypeError("argument after ** must be a mapping")
			}
			if kwargs == nil {
				kwargs = NewTable()
			}
			var dupErr error
			d.Table.Each(func(k, val Value) {
				if dupErr != nil {
					return
				}
				if kwargs.Has(k) {
					name, _ := k.obj.(*StringObj)
					dupErr = vm.newArgumentError("got multiple values for keyword argument %q", name.String())
					return
				}
				kwargs.Set(k, val)
			})
			if dupErr != nil {
				return nil, nil, dupErr
			}
			i += 2
		case KwargsSingle:
			name := raw[i+1]
			val := raw[i+2]
			if kwargs == nil {
				kwargs = NewTable()
			}
			if kwargs.Has(name) {
				n, _ := name.obj.(*StringObj)
				return nil, nil, vm.newArgumentError("got multiple values for keyword argument %q", n.String())
			}
			kwargs.Set(name, val)
			i += 3
		default: // KwargsUnset, KwargsNil
			i++
		}
	}
	return positional, kwargs, nil
}

// finalizeArgs builds the args/hasKw pair callValue expects from the raw
// stack window a CALL opcode collected: positional args, followed by the
// kwargs dict appended at the end when present, matching bindArguments'
// convention in call.go.
func (vm *VM) finalizeArgs(raw []Value) ([]Value, bool, error) {
	positional, kwargs, err := vm.processComplexArguments(raw)
	if err != nil {
		return nil, false, err
	}
	if kwargs == nil {
		return positional, false, nil
	}
	d := &DictObj{Table: kwargs}
	d.typ = ObjDict
	vm.gc.track(d, objectSize(d))
	return append(positional, ObjectValue(d)), true, nil
}

// dispatchCall implements CALL n: n is the raw stack-slot count collected
// for the call site (arguments plus any interleaved kwargs sentinels), with
// the callee sitting just beneath them.
func (vm *VM) dispatchCall(th *ThreadState, n int, _ bool) (Value, error) {
	raw := append([]Value(nil), th.stack[len(th.stack)-n:]...)
	th.popN(n)
	callee := th.pop()
	args, hasKw, err := vm.finalizeArgs(raw)
	if err != nil {
		return Value{}, err
	}
	return vm.callValue(callee, args, hasKw)
}

// dispatchMethodCall implements CALL_METHOD n: GET_METHOD left (receiver,
// callable) on the stack below the n raw argument slots; when receiver is
// not None it is prepended to the argument list (the unbound-method fast
// path), otherwise callable is invoked as a free function.
func (vm *VM) dispatchMethodCall(th *ThreadState, n int) (Value, error) {
	raw := append([]Value(nil), th.stack[len(th.stack)-n:]...)
	th.popN(n)
	callable := th.pop()
	recv := th.pop()
	args, hasKw, err := vm.finalizeArgs(raw)
	if err != nil {
		return Value{}, err
	}
	if !recv.IsNone() {
		args = append([]Value{recv}, args...)
	}
	return vm.callValue(callable, args, hasKw)
}
