package ember

// This file implements §4.9: generator/coroutine construction, resumption,
// and the YIELD_FROM/INVOKE_AWAIT opcodes. A coroutine is a GeneratorObj
// whose Closure.Code carries flagCodeIsCoroutine instead of
// flagCodeIsGenerator; resumption and suspension are identical for both,
// only the dunder surface a caller drives them through differs (`next`
// versus `send`/`await`).

// newGenerator builds the suspended-frame snapshot callClosure returns in
// place of entering the frame, per §4.7's "construct a generator object and
// return it without entering the frame": initialLocals is exactly the bound
// parameter slots bindArguments produced, and ip starts at zero since
// nothing has executed yet.
func (vm *VM) newGenerator(cl *ClosureObj, initialLocals []Value) Value {
	g := &GeneratorObj{Closure: cl, savedStack: initialLocals, ip: 0}
	g.typ = ObjGenerator
	vm.gc.track(g, objectSize(g))
	return ObjectValue(g)
}

// resumeGenerator implements calling a generator/coroutine value: restore
// its saved stack window and open upvalues onto a fresh frame on the
// current thread, splice in the sent value (if this isn't the first
// resumption), and drive the dispatch loop until it yields, returns, or
// raises. Calling a generator is how both `next(gen)` and `gen.send(v)`
// are implemented; the only difference is which value the native wrapper
// passes as args[0].
func (vm *VM) resumeGenerator(gen *GeneratorObj, args []Value, hasKw bool) (Value, error) {
	if gen.Running {
		return Value{}, vm.newValueError("generator already executing")
	}
	if gen.Done {
		return Value{}, &raisedError{value: vm.newException(vm.exc.StopIteration, "")}
	}
	sent := NoneValue()
	if len(args) > 0 {
		sent = args[0]
	}
	if !gen.Started && !sent.IsNone() {
		return Value{}, vm.newTypeError("can't send non-None value to a just-started generator")
	}

	th := vm.currentThread()
	base := len(th.stack)
	th.stack = append(th.stack, gen.savedStack...)
	gen.savedStack = nil
	th.reattachUpvalues(gen.openUpvalues, base)
	gen.openUpvalues = nil
	if gen.Started {
		th.push(sent)
	}

	th.pushFrame(CallFrame{
		closure:      gen.Closure,
		ip:           gen.ip,
		slotsBase:    base,
		outSlots:     base,
		globals:      gen.Closure.Globals.Fields,
		globalsOwner: ObjectValue(gen.Closure.Globals),
		generator:    gen,
	})

	gen.Running = true
	gen.Started = true
	result, err := vm.run(th, th.depth())
	gen.Running = false
	if err != nil {
		gen.Done = true
		return Value{}, err
	}
	return result, nil
}

// driveSubIterator powers both YIELD_FROM and INVOKE_AWAIT (§4.9): peek the
// inner iterator left on top of stack, pull one item from it, and either
// forward that item as this generator's own yield (suspending exactly as
// OpYield does, but rewinding the instruction pointer by size so the same
// instruction re-enters the drive loop on resume instead of advancing past
// it) or, once the inner iterator is exhausted, pop it and push its final
// result so execution falls through to the following instruction.
func (vm *VM) driveSubIterator(th *ThreadState, frame *CallFrame, size, exitOnFrame int) (suspended bool, yieldedVal Value, err error) {
	iter := th.peek(0)
	item, stop, ierr := vm.callIterNext(iter)
	if ierr != nil {
		return false, Value{}, ierr
	}
	if stop {
		th.pop()
		result := NoneValue()
		if gen, ok := iter.obj.(*GeneratorObj); ok {
			result = gen.Result
		}
		th.push(result)
		return false, Value{}, nil
	}

	frame.ip -= size
	popped := th.popFrame()
	gen := popped.generator
	if gen == nil {
		return false, Value{}, vm.newTypeError("yield outside a generator")
	}
	gen.savedStack = append([]Value(nil), th.stack[popped.slotsBase:]...)
	gen.ip = popped.ip
	gen.openUpvalues = th.detachUpvaluesFrom(popped.slotsBase, popped.slotsBase)
	th.stack = th.stack[:popped.outSlots]
	th.push(item)
	if th.depth() < exitOnFrame {
		return true, item, nil
	}
	return true, Value{}, nil
}

// resolveAwaitable implements INVOKE_AWAIT's front half (§4.9): a
// coroutine is its own iterator, anything else must define __await__
// returning one.
func (vm *VM) resolveAwaitable(v Value) (Value, error) {
	if _, ok := v.obj.(*GeneratorObj); ok {
		return v, nil
	}
	cls := vm.classOf(v)
	if cls.special[MAwait] == (Value{}) {
		return Value{}, vm.newTypeError("%s object is not awaitable", vm.typeName(v))
	}
	return vm.callValue(cls.special[MAwait], []Value{v}, false)
}
