package ember

// maximumCallDepth is overridden at startup from Config.MaxCallDepth
// (itself from VMOptions.MaxCallDepth); kept as a package-level var rather
// than threading Config through every call site.
var maximumCallDepth = 1000

// callValue is the single entry point the dispatch loop, operator tower,
// and native helpers all funnel through to invoke anything callable: a
// native function, a user closure, a bound method, or a class (which
// constructs a new instance). argsHasKw reports whether the last element
// of args is a kwargs dict appended by processComplexArguments.
func (vm *VM) callValue(callee Value, args []Value, argsHasKw bool) (Value, error) {
	if !callee.IsObject() {
		return Value{}, vm.newTypeError("%s object is not callable", vm.typeName(callee))
	}
	switch fn := callee.obj.(type) {
	case *NativeFunctionObj:
		return vm.callNative(fn, args, argsHasKw)
	case *ClosureObj:
		return vm.callClosure(fn, args, argsHasKw)
	case *BoundMethodObj:
		return vm.callValue(fn.Callable, append([]Value{fn.Receiver}, args...), argsHasKw)
	case *ClassObj:
		return vm.instantiate(fn, args, argsHasKw)
	case *GeneratorObj:
		return vm.resumeGenerator(fn, args, argsHasKw)
	default:
		cls := vm.classOf(callee)
		if cls.special[MCall] != (Value{}) {
			return vm.callValue(cls.special[MCall], append([]Value{callee}, args...), argsHasKw)
		}
		return Value{}, vm.newTypeError("%s object is not callable", vm.typeName(callee))
	}
}

// callNative invokes a Go-ABI builtin directly, with flagDeferStackFree set
// on the current thread for the duration of the call. The collector does
// not consult that flag, and args is not a GC root, so the flag does not
// by itself keep the argument slice's objects reachable during the call.
func (vm *VM) callNative(fn *NativeFunctionObj, args []Value, hasKw bool) (Value, error) {
	th := vm.currentThread()
	th.set(flagDeferStackFree)
	defer th.clear(flagDeferStackFree)
	return fn.Fn(vm, args, hasKw)
}

// callClosure pushes a new CallFrame for a managed function and drives the
// dispatch loop until that frame returns, so native code calling back into
// user code (e.g. a sort comparator) is just a nested call to run().
func (vm *VM) callClosure(cl *ClosureObj, args []Value, hasKw bool) (Value, error) {
	th := vm.currentThread()
	if th.depth() >= maximumCallDepth {
		return Value{}, vm.newValueError("maximum recursion depth exceeded")
	}
	bound, err := vm.bindArguments(cl, args, hasKw)
	if err != nil {
		return Value{}, err
	}
	if cl.Code.IsGenerator() || cl.Code.IsCoroutine() {
		return vm.newGenerator(cl, bound), nil
	}
	base := len(th.stack)
	th.stack = append(th.stack, bound...)
	outSlots := base - 0
	th.pushFrame(CallFrame{
		closure:      cl,
		slotsBase:    base,
		outSlots:     outSlots,
		globals:      cl.Globals.Fields,
		globalsOwner: ObjectValue(cl.Globals),
	})
	return vm.run(th, th.depth())
}

// instantiate runs Class.__new__ (or the default instance allocator if the
// class doesn't override it) followed by __init__, returning the new
// instance. __init__'s return value is discarded per the usual rule that
// __init__ must return None.
func (vm *VM) instantiate(cls *ClassObj, args []Value, hasKw bool) (Value, error) {
	var recv Value
	if cls.special[MNew] != (Value{}) {
		v, err := vm.callValue(cls.special[MNew], append([]Value{ObjectValue(cls)}, args...), hasKw)
		if err != nil {
			return Value{}, err
		}
		recv = v
	} else {
		inst := &Instance{Class: cls, Fields: NewTable()}
		inst.typ = ObjInstance
		vm.gc.track(inst, objectSize(inst))
		recv = ObjectValue(inst)
	}
	if cls.special[MInit] != (Value{}) {
		if _, err := vm.callValue(cls.special[MInit], append([]Value{recv}, args...), hasKw); err != nil {
			return Value{}, err
		}
	}
	return recv, nil
}

// bindArguments implements positional/default/keyword/variadic/splat
// binding against a CodeObject's declared parameter list, producing the
// slice of local-slot values a new frame should start with (params first,
// then zeroed locals up to the frame's total local count — callClosure
// only needs the params; vm.go's frame setup extends with zero values for
// the rest).
func (vm *VM) bindArguments(cl *ClosureObj, args []Value, hasKw bool) ([]Value, error) {
	code := cl.Code
	var kwargs *Table
	positional := args
	if hasKw && len(args) > 0 {
		if d, ok := args[len(args)-1].obj.(*DictObj); ok {
			kwargs = d.Table
		}
		positional = args[:len(args)-1]
	}

	slots := make([]Value, len(code.ArgNames))
	nParams := len(code.ArgNames)
	collectsArgs := code.CollectsArgs()
	collectsKwargs := code.CollectsKwargs()
	fixedParams := nParams
	if collectsArgs {
		fixedParams--
	}
	if collectsKwargs {
		fixedParams--
	}

	nPos := len(positional)
	if nPos > fixedParams && !collectsArgs {
		return nil, vm.newArgumentError("%s() takes %d positional arguments but %d were given",
			code.Name, fixedParams, nPos)
	}
	boundCount := nPos
	if boundCount > fixedParams {
		boundCount = fixedParams
	}
	for i := 0; i < boundCount; i++ {
		slots[i] = positional[i]
	}

	if collectsArgs {
		extra := []Value{}
		if nPos > fixedParams {
			extra = append(extra, positional[fixedParams:]...)
		}
		tup := &TupleObj{Items: extra}
		tup.typ = ObjTuple
		vm.gc.track(tup, objectSize(tup))
		slots[fixedParams] = ObjectValue(tup)
	}

	bound := make([]bool, fixedParams)
	for i := 0; i < boundCount; i++ {
		bound[i] = true
	}

	var kwDict *Table
	if collectsKwargs {
		kwDict = NewTable()
	}
	if kwargs != nil {
		kwargs.Each(func(k, v Value) {
			name := k.obj.(*StringObj).String()
			idx := indexOfArgName(code.ArgNames, name)
			if idx >= 0 && idx < fixedParams {
				slots[idx] = v
				bound[idx] = true
				return
			}
			if kwDict != nil {
				kwDict.Set(k, v)
			}
		})
	}
	if collectsKwargs {
		d := &DictObj{Table: kwDict}
		d.typ = ObjDict
		vm.gc.track(d, objectSize(d))
		slots[nParams-1] = ObjectValue(d)
	}

	for i := 0; i < fixedParams; i++ {
		if bound[i] {
			continue
		}
		if dv, ok := defaultFor(code, i, fixedParams); ok {
			slots[i] = dv
			continue
		}
		return nil, vm.newArgumentError("%s() missing required argument: %q", code.Name, code.ArgNames[i])
	}
	return slots, nil
}

func indexOfArgName(names []string, name string) int {
	for i, n := range names {
		if n == name {
			return i
		}
	}
	return -1
}

// defaultFor resolves parameter i's default, if any: Defaults is aligned
// to the tail of the fixed parameter list, the same convention most
// bytecode VMs use (defaults apply to the last len(Defaults) parameters).
func defaultFor(code *CodeObject, i, fixedParams int) (Value, bool) {
	offset := fixedParams - len(code.Defaults)
	if i < offset {
		return Value{}, false
	}
	return code.Defaults[i-offset], true
}
