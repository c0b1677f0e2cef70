package ember

import "github.com/google/uuid"

// threadFlag packs the boolean state a ThreadState carries between opcode
// dispatches; kept as a bitmask rather than separate bools since several of
// them are checked together at the top of the dispatch loop.
type threadFlag uint8

const (
	flagHasException threadFlag = 1 << iota
	flagDeferStackFree
	flagSingleStep
	flagSignalled
	flagEnableTracing
)

// CallFrame is one activation record on a ThreadState's frame stack: the
// closure being executed, its instruction pointer, and where its locals
// begin on the shared value stack. outSlots records the stack depth to
// truncate to on return, and globals/globalsOwner let GET_GLOBAL resolve
// against the defining module rather than the caller's.
type CallFrame struct {
	closure      *ClosureObj
	ip           int
	slotsBase    int
	outSlots     int
	globals      *Table
	globalsOwner Value

	// generator is non-nil only for a frame pushed by vm.resumeGenerator
	// (generator.go); OpYield consults it to know which generator to
	// snapshot state into.
	generator *GeneratorObj
}

// ThreadState is a single logical thread of execution: its own value
// stack, frame stack, and open-upvalue list, plus the exception currently
// propagating (if flagHasException is set). A generator snapshots only its
// own frame's stack window and open upvalues on suspend (see GeneratorObj
// in object.go) and restores them onto the resuming thread on resume.
type ThreadState struct {
	id uuid.UUID

	stack []Value
	// frames holds the call stack; push/pop/top mirror the teacher's
	// stack[frame] idiom (see the deleted vm_stack.go), generalized from a
	// parser backtracking stack to a call-frame stack.
	frames []CallFrame

	// openUpvalues is sorted by descending stackIdx so the first entry
	// whose stackIdx < some threshold marks where closing can stop early.
	openUpvalues []*UpvalueObj

	exception Value
	flags     threadFlag

	module *ModuleObj

	// scratch is a small fixed pool of slots native functions can borrow
	// for intermediate values without growing the value stack; cleared on
	// each top-level interpret() call.
	scratch [4]Value
}

func newThreadState(module *ModuleObj) *ThreadState {
	return &ThreadState{
		id:     uuid.New(),
		stack:  make([]Value, 0, 256),
		frames: make([]CallFrame, 0, 64),
		module: module,
	}
}

func (t *ThreadState) is(f threadFlag) bool { return t.flags&f != 0 }
func (t *ThreadState) set(f threadFlag)     { t.flags |= f }
func (t *ThreadState) clear(f threadFlag)   { t.flags &^= f }

func (t *ThreadState) push(v Value) { t.stack = append(t.stack, v) }

func (t *ThreadState) pop() Value {
	v := t.stack[len(t.stack)-1]
	t.stack = t.stack[:len(t.stack)-1]
	return v
}

func (t *ThreadState) peek(distFromTop int) Value {
	return t.stack[len(t.stack)-1-distFromTop]
}

func (t *ThreadState) popN(n int) {
	t.stack = t.stack[:len(t.stack)-n]
}

func (t *ThreadState) pushFrame(f CallFrame) {
	t.frames = append(t.frames, f)
}

func (t *ThreadState) popFrame() CallFrame {
	f := t.frames[len(t.frames)-1]
	t.frames = t.frames[:len(t.frames)-1]
	return f
}

func (t *ThreadState) topFrame() *CallFrame {
	return &t.frames[len(t.frames)-1]
}

func (t *ThreadState) depth() int { return len(t.frames) }

// captureUpvalue returns the open UpvalueObj aliasing stackIdx, reusing one
// already open for that slot, or opens a new one and keeps openUpvalues
// sorted by descending stackIdx so closeUpvalues can stop at the first
// entry below the watermark.
func (t *ThreadState) captureUpvalue(vm *VM, stackIdx int) *UpvalueObj {
	for _, uv := range t.openUpvalues {
		if uv.stackIdx == stackIdx {
			return uv
		}
		if uv.stackIdx < stackIdx {
			break
		}
	}
	uv := &UpvalueObj{open: true, thread: t, stackIdx: stackIdx}
	uv.typ = ObjUpvalue
	vm.gc.track(uv, objectSize(uv))
	inserted := false
	for i, existing := range t.openUpvalues {
		if existing.stackIdx < stackIdx {
			t.openUpvalues = append(t.openUpvalues, nil)
			copy(t.openUpvalues[i+1:], t.openUpvalues[i:])
			t.openUpvalues[i] = uv
			inserted = true
			break
		}
	}
	if !inserted {
		t.openUpvalues = append(t.openUpvalues, uv)
	}
	return uv
}

// closeUpvalues closes every open upvalue aliasing a stack slot at or above
// watermark, copying the value out of the stack and detaching the upvalue
// from this thread. Called on frame pop and on block-scope exit.
func (t *ThreadState) closeUpvalues(watermark int) {
	i := 0
	for i < len(t.openUpvalues) {
		uv := t.openUpvalues[i]
		if uv.stackIdx < watermark {
			break
		}
		uv.closed = t.stack[uv.stackIdx]
		uv.open = false
		uv.thread = nil
		i++
	}
	t.openUpvalues = t.openUpvalues[i:]
}

// detachUpvaluesFrom removes every open upvalue aliasing a stack slot at or
// above watermark from this thread's open list and rebases its stackIdx
// relative to base, without closing it — used when a generator suspends
// (OpYield) and needs to carry its still-open upvalues along in its own
// snapshot rather than collapsing them to closed values, since the frame
// may resume and mutate them again later.
func (t *ThreadState) detachUpvaluesFrom(watermark, base int) []*UpvalueObj {
	var detached []*UpvalueObj
	i := 0
	for i < len(t.openUpvalues) {
		uv := t.openUpvalues[i]
		if uv.stackIdx < watermark {
			break
		}
		uv.thread = nil
		uv.stackIdx -= base
		detached = append(detached, uv)
		i++
	}
	t.openUpvalues = t.openUpvalues[i:]
	return detached
}

// reattachUpvalues is the inverse of detachUpvaluesFrom: called by
// vm.resumeGenerator to splice a suspended generator's own open upvalues
// back into this thread's list at their new absolute stack position
// (base-relative index restored), keeping the descending-stackIdx
// invariant the rest of the thread's bookkeeping relies on.
func (t *ThreadState) reattachUpvalues(upvalues []*UpvalueObj, base int) {
	for _, uv := range upvalues {
		uv.thread = t
		uv.stackIdx += base
		inserted := false
		for i, existing := range t.openUpvalues {
			if existing.stackIdx < uv.stackIdx {
				t.openUpvalues = append(t.openUpvalues, nil)
				copy(t.openUpvalues[i+1:], t.openUpvalues[i:])
				t.openUpvalues[i] = uv
				inserted = true
				break
			}
		}
		if !inserted {
			t.openUpvalues = append(t.openUpvalues, uv)
		}
	}
}

func (t *ThreadState) raise(exc Value) {
	t.exception = exc
	t.set(flagHasException)
}

func (t *ThreadState) clearException() {
	t.exception = Value{}
	t.clear(flagHasException)
}
