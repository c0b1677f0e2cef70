package ember

// This file implements §4.8's unwinder: handler search, traceback
// construction, and the try/except/finally/with cleanup opcodes.
//
// Stack contract for a handler sentinel pushed by PUSH_TRY/PUSH_WITH: the
// sentinel's Target is the IP to resume at once a propagating exception
// reaches it. unwind finds the topmost handler sentinel at or above the
// current frame's locals, truncates the stack back to (and including) that
// sentinel's slot, and pushes the propagating exception value in its place
// before jumping — so FILTER_EXCEPT/BEGIN_FINALLY always see exactly one
// value on top of stack: the exception being handled. A with-statement's
// context-manager value is pushed below its sentinel (not above), so it
// survives that truncation for CLEANUP_WITH to retrieve.
//
// A plain try/finally with no except clause relies on the compiler emitting
// the finally body's instructions twice: once inline for the body-completed-
// normally path (preceded by an explicit NONE so BEGIN_FINALLY always finds
// a uniform "pending exception or None" on top of stack), and once as
// PUSH_TRY's target for the unwind path. This keeps the core's own
// BEGIN_FINALLY/END_FINALLY handling free of a hidden "which path is this"
// flag.

// unwindSearchable reports whether a handler sentinel's kind is one unwind
// stops the stack scan at (PUSH_TRY/PUSH_WITH) or merely treats as an
// already-spent marker to scan past (FILTER_EXCEPT/RAISE/END_FINALLY), per
// the kind list named in §4.8.
func unwindSearchable(kind OpCode) bool {
	switch kind {
	case OpPushTry, OpPushWith, OpFilterExcept, OpRaise, OpEndFinally:
		return true
	}
	return false
}

func findHandler(stack []Value, floor int) int {
	for i := len(stack) - 1; i >= floor; i-- {
		if stack[i].IsHandler() && unwindSearchable(stack[i].AsHandlerKind()) {
			return i
		}
	}
	return -1
}

// unwind implements §4.8's handler search. Returning done=true means run()
// should return (val, err) to its caller (no handler short of exitOnFrame);
// done=false means a handler was installed and the dispatch loop should
// simply continue from the frame's updated ip.
func (vm *VM) unwind(th *ThreadState, exitOnFrame int) (done bool, val Value, err error) {
	for {
		frame := th.topFrame()
		idx := findHandler(th.stack, frame.slotsBase)
		if idx >= 0 {
			kind := th.stack[idx].AsHandlerKind()
			if kind != OpPushTry && kind != OpPushWith {
				// a spent marker from an earlier FILTER_EXCEPT mismatch or
				// completed finally/with cleanup; nothing to install, keep
				// searching below it.
				th.stack = th.stack[:idx]
				continue
			}
			target := th.stack[idx].AsHandlerTarget()
			exc := th.exception
			th.clearException()
			th.stack = th.stack[:idx]
			th.push(exc)
			frame.ip = int(target)
			return false, Value{}, nil
		}

		vm.attachTracebackFrame(th, frame)
		th.closeUpvalues(frame.slotsBase)
		popped := th.popFrame()
		th.stack = th.stack[:popped.outSlots]
		if popped.generator != nil {
			popped.generator.Done = true
		}
		if th.depth() < exitOnFrame {
			exc := th.exception
			th.clearException()
			return true, Value{}, &raisedError{value: exc}
		}
	}
}

// attachTracebackFrame appends (closure, ip) for frame to th.exception's
// `traceback` attribute, creating the tuple on first sight and extending it
// on every subsequent frame the same propagation passes through. A
// previously attached traceback from an earlier propagation (e.g. a caught
// exception re-raised later) is extended, never reset.
func (vm *VM) attachTracebackFrame(th *ThreadState, frame *CallFrame) {
	if !th.exception.IsObject() {
		return
	}
	inst, ok := th.exception.obj.(*Instance)
	if !ok {
		return
	}
	key := ObjectValue(vm.intern("traceback"))
	var frames []Value
	if existing, ok := inst.Fields.Get(key); ok {
		if tup, ok := existing.obj.(*TupleObj); ok {
			frames = append(frames, tup.Items...)
		}
	}
	pair := &TupleObj{Items: []Value{ObjectValue(frame.closure), IntValue(int64(frame.ip))}}
	pair.typ = ObjTuple
	vm.gc.track(pair, objectSize(pair))
	frames = append(frames, ObjectValue(pair))
	tup := &TupleObj{Items: frames}
	tup.typ = ObjTuple
	vm.gc.track(tup, objectSize(tup))
	inst.Fields.Set(key, ObjectValue(tup))
}

// raiseValue implements RAISE/RAISE_FROM: attach cause (if any) as
// __cause__ and hand back a Go error the dispatch loop's common
// err-to-exception path will turn into a raised thread exception.
func (vm *VM) raiseValue(exc, cause Value) error {
	if inst, ok := exc.obj.(*Instance); ok && cause.IsObject() {
		inst.Fields.Set(ObjectValue(vm.intern("__cause__")), cause)
	}
	return &raisedError{value: exc}
}

// filterExcept implements FILTER_EXCEPT: test the exception unwind left on
// top of stack against the except clause's class constant. A match leaves
// the (possibly subclass-narrowed) exception value on the stack for the
// except body's binding; a mismatch re-raises it for an enclosing handler.
func (vm *VM) filterExcept(th *ThreadState, constIdx int) error {
	frame := th.topFrame()
	excVal := th.pop()
	cls, ok := frame.closure.Code.Chunk.Constants[constIdx].obj.(*ClassObj)
	if !ok {
		return vm.newTypeError("except clause must name a class")
	}
	if isInstanceOf(excVal, cls) {
		th.push(excVal)
		return nil
	}
	th.raise(excVal)
	return nil
}

// endFinally implements END_FINALLY: the value BEGIN_FINALLY left on top of
// stack is either None (the finally's try body, or its except clause,
// completed without an outstanding exception) or the exception that was
// propagating when the finally was entered; in the latter case it resumes
// propagating once the finally body itself completes.
func (vm *VM) endFinally(th *ThreadState) error {
	pending := th.pop()
	if pending.IsNone() {
		return nil
	}
	th.raise(pending)
	return nil
}

// pushWith implements PUSH_WITH: call __enter__ on the context manager on
// top of stack, then leave (cm, handler-sentinel, enter-result) so a
// propagating exception's unwind truncates away the sentinel and bound
// value but keeps cm available for CLEANUP_WITH, while the non-exceptional
// path binds enter-result via the compiler's `as` target.
func (vm *VM) pushWith(th *ThreadState, target uint16) error {
	cm := th.pop()
	cls := vm.classOf(cm)
	if cls.special[MEnter] == (Value{}) {
		return vm.newTypeError("%s object does not support the context manager protocol", vm.typeName(cm))
	}
	enterResult, err := vm.callValue(cls.special[MEnter], []Value{cm}, false)
	if err != nil {
		return err
	}
	th.push(cm)
	th.push(HandlerValue(OpPushWith, target))
	th.push(enterResult)
	return nil
}

// cleanupWith implements CLEANUP_WITH: pop the pending-exception-or-None
// BEGIN_FINALLY-style value and the context manager beneath it, call
// __exit__, and re-raise the pending exception unless __exit__ returned
// something truthy (suppressing it), matching §4.8's with semantics.
func (vm *VM) cleanupWith(th *ThreadState) error {
	pending := th.pop()
	cm := th.pop()
	cls := vm.classOf(cm)
	if cls.special[MExit] == (Value{}) {
		if !pending.IsNone() {
			th.raise(pending)
		}
		return nil
	}
	typeArg, valArg, tbArg := NoneValue(), NoneValue(), NoneValue()
	if !pending.IsNone() {
		typeArg = ObjectValue(vm.classOf(pending))
		valArg = pending
		if inst, ok := pending.obj.(*Instance); ok {
			if tb, ok := inst.Fields.Get(ObjectValue(vm.intern("traceback"))); ok {
				tbArg = tb
			}
		}
	}
	result, err := vm.callValue(cls.special[MExit], []Value{cm, typeArg, valArg, tbArg}, false)
	if err != nil {
		return err
	}
	if !pending.IsNone() {
		suppressed, terr := vm.truthValue(result)
		if terr != nil {
			return terr
		}
		if !suppressed {
			th.raise(pending)
		}
	}
	return nil
}
