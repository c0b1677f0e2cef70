package ember

import (
	"fmt"

	"github.com/xlab/treeprint"
)

// VM owns every process-wide singleton the interpreter needs: the set of
// live thread states, the module cache, the builtins module, the special-
// method name table, the garbage collector, and the preconstructed builtin
// exception classes. A host embeds one VM per interpreter instance. Some
// state is still package-level and shared by every VM: the hash seed
// (hashtable.go, set once by memory.go), maximumCallDepth (call.go),
// internedName (class.go) and the collector's grayStack (memory.go).
type VM struct {
	threads []*ThreadState
	main    *ThreadState

	modules  *moduleCache
	builtins *ModuleObj

	exc                 *exceptionBuiltinClasses
	builtinTypeClasses  *builtinTypeClasses

	gc     *gcState
	config *Config

	// internCache avoids re-interning the same Go string literal (attribute
	// names, special-method names) on every lookup; internedName (class.go)
	// is wired to vm.intern once the VM exists.
	internCache map[string]*StringObj

	// sourceCompiler is the host-registered hook the module loader (§4.6)
	// calls to turn a source file's contents into a CodeObject; the
	// compiler itself is an external collaborator (§1), so this core only
	// ever calls through this seam.
	sourceCompiler SourceCompiler
}

// SourceCompiler is the host hook that turns a module's source file into a
// CodeObject. The core never parses source itself (§1); a REPL/CLI host
// registers one with SetSourceCompiler before importing anything that
// resolves to a source file on disk.
type SourceCompiler func(vm *VM, path, filename string) (*CodeObject, error)

// SetSourceCompiler installs the host's source-to-bytecode compiler, used
// by the module loader (§4.6) to compile a package's __init__ file or a
// plain source file (it is not used for a native extension), and by
// RunFile.
func (vm *VM) SetSourceCompiler(fn SourceCompiler) { vm.sourceCompiler = fn }

// NewVM constructs a VM from opts (normally loaded from the process
// environment, see config.go), installs the builtin exception hierarchy,
// seeds the builtins module, and opens the main thread.
func NewVM(opts VMOptions) *VM {
	if hashSeed0 == 0 && hashSeed1 == 0 {
		initHashSeed()
	}
	vm := &VM{
		modules:     newModuleCache(),
		internCache: make(map[string]*StringObj),
	}
	vm.gc = newGCState(vm)
	vm.gc.stressMode = opts.GCStress
	vm.config = NewConfig(opts)
	maximumCallDepth = vm.config.MaxCallDepth
	internedName = vm.intern

	vm.exc = newBuiltinExceptionClasses(vm)
	vm.builtinTypeClasses = newBuiltinTypeClasses(vm)
	vm.builtins = vm.newModule("builtins", false)
	seedBuiltins(vm)

	vm.main = vm.newThread(vm.builtins)
	return vm
}

// InitVM is the process-entrypoint spelling from the host-facing surface
// (§6): construct a VM seeded straight from the environment.
func InitVM() (*VM, error) {
	opts, err := loadVMOptions()
	if err != nil {
		return nil, err
	}
	return NewVM(opts), nil
}

// FreeVM releases the VM's hold on its heap: it nulls the Base pointer of
// every class bound in a cached module's globals and drops the thread
// list. It does not walk the collector's live-object list or free objects
// one by one, in any order; reclaiming the memory is left to Go's own GC.
func (vm *VM) FreeVM() {
	var classes []*ClassObj
	vm.modules.Each(func(_ string, m *ModuleObj) {
		m.Fields.Each(func(_, fv Value) {
			if c, ok := fv.obj.(*ClassObj); ok {
				classes = append(classes, c)
			}
		})
	})
	for _, c := range classes {
		c.Base = nil
	}
	vm.threads = nil
	vm.main = nil
}

func (vm *VM) newThread(module *ModuleObj) *ThreadState {
	th := newThreadState(module)
	vm.threads = append(vm.threads, th)
	return th
}

func (vm *VM) currentThread() *ThreadState {
	return vm.threads[len(vm.threads)-1]
}

// intern returns the canonical StringObj for s, consulting a small Go-side
// cache before falling through to the GC's interner (which does the real
// work of guaranteeing one StringObj per distinct content).
func (vm *VM) intern(s string) *StringObj {
	if so, ok := vm.internCache[s]; ok {
		return so
	}
	so := vm.gc.internString(s)
	vm.internCache[s] = so
	return so
}

func (vm *VM) newModule(name string, isPackage bool) *ModuleObj {
	m := &ModuleObj{Fields: NewTable(), Package: isPackage}
	m.typ = ObjModule
	vm.gc.track(m, objectSize(m))
	m.Fields.Set(ObjectValue(vm.intern("__name__")), ObjectValue(vm.intern(name)))
	m.Fields.Set(ObjectValue(vm.intern("__doc__")), NoneValue())
	m.Fields.Set(ObjectValue(vm.intern("__package__")), NoneValue())
	m.Fields.Set(ObjectValue(vm.intern("__ispackage__")), BoolValue(isPackage))
	return m
}

// classOf returns the type of any Value: primitive kinds map to their
// preconstructed builtin class, objects report the class stashed on their
// header (Instance.Class, or a per-ObjType singleton for everything else).
func (vm *VM) classOf(v Value) *ClassObj {
	if v.IsObject() {
		switch o := v.obj.(type) {
		case *Instance:
			return o.Class
		case *ClassObj:
			return vm.builtinTypeClasses.typeClass
		}
		return vm.builtinTypeClasses.forObjType(v.obj.objType())
	}
	switch {
	case v.IsNone():
		return vm.builtinTypeClasses.noneClass
	case v.IsBool():
		return vm.builtinTypeClasses.boolClass
	case v.IsInt():
		return vm.builtinTypeClasses.intClass
	case v.IsFloat():
		return vm.builtinTypeClasses.floatClass
	default:
		return vm.builtinTypeClasses.objectClass
	}
}

func (vm *VM) typeName(v Value) string {
	return vm.classOf(v).Name
}

// classOf is the free-function seam class.go's getAttribute/setAttribute
// call without holding a VM method value; it simply forwards.
func classOf(vm *VM, v Value) *ClassObj { return vm.classOf(v) }

// Interpret compiles nothing itself (compilation is an external
// collaborator, §1) but accepts an already-built CodeObject for filename,
// wraps it in a closure bound to a fresh module's globals, and runs it to
// completion on a new thread — the host-facing entrypoint named in §6.
func (vm *VM) Interpret(code *CodeObject, filename string) (Value, error) {
	module := vm.newModule("__main__", false)
	return vm.runModule(code, module)
}

func (vm *VM) runModule(code *CodeObject, module *ModuleObj) (Value, error) {
	cl := &ClosureObj{Code: code, Globals: module, Fields: NewTable(), Annotations: NoneValue()}
	cl.typ = ObjClosure
	vm.gc.track(cl, objectSize(cl))
	th := vm.newThread(module)
	th.pushFrame(CallFrame{
		closure:      cl,
		slotsBase:    0,
		outSlots:     0,
		globals:      module.Fields,
		globalsOwner: ObjectValue(module),
	})
	v, err := vm.run(th, 1)
	vm.threads = vm.threads[:len(vm.threads)-1]
	if err != nil {
		vm.dumpTraceback(th, err)
	}
	return v, err
}

// RunNext resumes interpretation of the current thread up to the given
// exitOnFrame, the spelling §6 gives the re-entrant "drive the interpreter
// from a native callback" entrypoint.
func (vm *VM) RunNext(th *ThreadState, exitOnFrame int) (Value, error) {
	return vm.run(th, exitOnFrame)
}

// DumpTraceback renders the exception carried by err (if any) as an
// indented tree using xlab/treeprint, the outermost frame first, matching
// §6's dumpTraceback entrypoint. It both prints to stdout (the traceback
// printer's usual job, §7) and returns the rendered text so a host can
// redirect it elsewhere.
func (vm *VM) DumpTraceback(err error) string {
	re, ok := err.(*raisedError)
	if !ok {
		fmt.Println(err.Error())
		return err.Error()
	}
	inst, ok := re.value.obj.(*Instance)
	if !ok {
		return ""
	}
	tree := treeprint.New()
	tree.SetValue("Traceback (most recent call last)")
	if tb, ok := inst.Fields.Get(ObjectValue(vm.intern("traceback"))); ok {
		if tup, ok := tb.obj.(*TupleObj); ok {
			// Frames are appended innermost first as the exception
			// propagates, so walk them backwards.
			for i := len(tup.Items) - 1; i >= 0; i-- {
				if fr, ok := tup.Items[i].obj.(*TupleObj); ok && len(fr.Items) == 2 {
					if cl, ok := fr.Items[0].obj.(*ClosureObj); ok {
						line := cl.Code.Chunk.LineFor(int(fr.Items[1].AsInt()))
						tree.AddNode(fmt.Sprintf("File %q, line %d, in %s", cl.Code.Filename, line, cl.Code.Name))
					}
				}
			}
		}
	}
	msg, _ := inst.Fields.Get(ObjectValue(vm.intern("message")))
	tree.AddNode(fmt.Sprintf("%s: %s", inst.Class.Name, vm.reprFallback(msg)))
	out := tree.String()
	fmt.Print(out)
	return out
}

func (vm *VM) dumpTraceback(th *ThreadState, err error) { vm.DumpTraceback(err) }

// ---------------------------------------------------------------------
// The dispatch loop
// ---------------------------------------------------------------------

// run is the threaded bytecode dispatcher (§4.4): it executes instructions
// from th's current top frame until that frame (or any frame pushed after
// it, e.g. by a CALL opcode recursing into this same function) unwinds
// below exitOnFrame, either via OpReturn, via OpYield suspending a
// generator, or via an exception with no handler short of that depth.
func (vm *VM) run(th *ThreadState, exitOnFrame int) (Value, error) {
	for {
		frame := th.topFrame()
		code := &frame.closure.Code.Chunk

		if th.is(flagSignalled) {
			th.clear(flagSignalled)
			th.raise(vm.newException(vm.exc.KeyboardInterrupt, "interrupted"))
			if done, retVal, retErr := vm.unwind(th, exitOnFrame); done {
				return retVal, retErr
			}
			continue
		}

		op := OpCode(code.Code[frame.ip])
		realOp, operand, size := vm.decodeInstruction(code, frame.ip, op)
		frame.ip += size

		var err error
		switch realOp {
		case OpPop:
			th.pop()
		case OpSwapPop:
			top := th.pop()
			th.stack[len(th.stack)-1] = top
		case OpDup:
			th.push(th.peek(operand))
		case OpSwap:
			i := len(th.stack) - 1
			j := i - operand
			th.stack[i], th.stack[j] = th.stack[j], th.stack[i]
		case OpPopMany:
			th.popN(operand)
		case OpCloseMany:
			base := len(th.stack) - operand
			th.closeUpvalues(base)
			th.popN(operand)

		case OpNone:
			th.push(NoneValue())
		case OpTrue:
			th.push(BoolValue(true))
		case OpFalse:
			th.push(BoolValue(false))
		case OpUnset:
			th.push(KwargsValue(KwargsUnset))
		case OpConstant:
			th.push(code.Constants[operand])

		case OpAdd, OpSub, OpMul, OpTrueDiv, OpFloorDiv, OpMod, OpPow,
			OpLShift, OpRShift, OpBitAnd, OpBitOr, OpBitXor, OpMatMul,
			OpLess, OpGreater, OpLessEqual, OpGreaterEqual:
			b := th.pop()
			a := th.pop()
			var v Value
			v, err = vm.binaryOp(realOp, a, b)
			th.push(v)
		case OpEqual:
			b := th.pop()
			a := th.pop()
			v, eqErr := vm.equalOp(a, b)
			if eqErr != nil {
				err = eqErr
			}
			th.push(v)
		case OpIs:
			b := th.pop()
			a := th.pop()
			th.push(BoolValue(valuesSame(a, b)))
		case OpNegate, OpPos, OpBitNegate, OpNot:
			a := th.pop()
			var v Value
			v, err = vm.unaryOp(realOp, a)
			th.push(v)

		case OpInplaceAdd, OpInplaceSub, OpInplaceMul, OpInplaceTrueDiv,
			OpInplaceFloorDiv, OpInplaceMod, OpInplacePow, OpInplaceLShift,
			OpInplaceRShift, OpInplaceBitAnd, OpInplaceBitOr, OpInplaceBitXor,
			OpInplaceMatMul:
			b := th.pop()
			a := th.pop()
			var v Value
			v, err = vm.inplaceOp(realOp, a, b)
			th.push(v)

		case OpInvokeGetter:
			idx := th.pop()
			recv := th.pop()
			var v Value
			v, err = vm.invokeGetItem(recv, idx)
			th.push(v)
		case OpInvokeSetter:
			value := th.pop()
			idx := th.pop()
			recv := th.pop()
			err = vm.invokeSetItem(recv, idx, value)
		case OpInvokeDelete:
			idx := th.pop()
			recv := th.pop()
			err = vm.invokeDelItem(recv, idx)
		case OpInvokeContains:
			item := th.pop()
			recv := th.pop()
			var v Value
			v, err = vm.invokeContains(recv, item)
			th.push(v)
		case OpInvokeIter:
			recv := th.pop()
			var v Value
			v, err = vm.invokeIter(recv)
			th.push(v)

		case OpGetLocal:
			th.push(th.stack[frame.slotsBase+operand])
		case OpSetLocal:
			th.stack[frame.slotsBase+operand] = th.peek(0)
		case OpSetLocalPop:
			th.stack[frame.slotsBase+operand] = th.pop()

		case OpGetGlobal:
			name := code.Constants[operand].obj.(*StringObj)
			var v Value
			v, err = vm.lookupGlobal(frame, name)
			th.push(v)
		case OpSetGlobal:
			name := code.Constants[operand].obj.(*StringObj)
			frame.globals.Set(ObjectValue(name), th.peek(0))
		case OpDelGlobal:
			name := code.Constants[operand].obj.(*StringObj)
			if !frame.globals.Delete(ObjectValue(name)) {
				err = vm.newNameError(name.String())
			}
		case OpDefineGlobal:
			name := code.Constants[operand].obj.(*StringObj)
			frame.globals.Set(ObjectValue(name), th.pop())

		case OpGetUpvalue:
			th.push(frame.closure.Upvalues[operand].get())
		case OpSetUpvalue:
			frame.closure.Upvalues[operand].set(th.peek(0))

		case OpGetProperty, OpGetName:
			name := code.Constants[operand].obj.(*StringObj)
			recv := th.pop()
			var v Value
			v, err = getAttribute(vm, recv, name)
			th.push(v)
		case OpSetProperty, OpSetName:
			name := code.Constants[operand].obj.(*StringObj)
			value := th.pop()
			recv := th.pop()
			err = setAttribute(vm, recv, name, value)
			if err == nil {
				th.push(value)
			}
		case OpDelProperty:
			name := code.Constants[operand].obj.(*StringObj)
			recv := th.pop()
			err = delAttribute(vm, recv, name)
		case OpGetMethod:
			name := code.Constants[operand].obj.(*StringObj)
			recv := th.pop()
			var recvOut, method Value
			recvOut, method, err = vm.getMethod(recv, name)
			th.push(recvOut)
			th.push(method)
		case OpGetSuper:
			name := code.Constants[operand].obj.(*StringObj)
			recv := th.pop()
			baseVal := th.pop()
			var v Value
			v, err = vm.getSuper(recv, baseVal, name)
			th.push(v)

		case OpCall:
			var v Value
			v, err = vm.dispatchCall(th, operand, false)
			th.push(v)
		case OpCallMethod:
			var v Value
			v, err = vm.dispatchMethodCall(th, operand)
			th.push(v)
		case OpCallIter:
			var v Value
			var stop bool
			v, stop, err = vm.callIterNext(th.peek(0))
			if err == nil {
				if stop {
					th.pop()
					th.push(HandlerValue(OpExitLoop, 0))
				} else {
					th.push(v)
				}
			}
		case OpLoopIter:
			frame.ip = operand

		case OpJump:
			frame.ip = operand
		case OpLoop:
			frame.ip = operand
		case OpJumpIfFalseOrPop:
			if !th.peek(0).truthy() {
				frame.ip = operand
			} else {
				th.pop()
			}
		case OpPopJumpIfFalse:
			if !th.pop().truthy() {
				frame.ip = operand
			}
		case OpJumpIfTrueOrPop:
			if th.peek(0).truthy() {
				frame.ip = operand
			} else {
				th.pop()
			}
		case OpOverlongJump:
			fix := code.Overlong[frame.ip-size]
			frame.ip = fix.Target
			realOp = fix.OriginalOpcode

		case OpTestArg:
			if th.peek(0).IsKwargs() && th.peek(0).AsKwargs() == KwargsUnset {
				th.pop()
				frame.ip = operand
			}

		case OpClosure:
			th.push(ObjectValue(vm.makeClosure(th, frame, code.Constants[operand].obj.(*CodeObject))))

		case OpTuple:
			items := make([]Value, operand)
			copy(items, th.stack[len(th.stack)-operand:])
			th.popN(operand)
			tup := &TupleObj{Items: items}
			tup.typ = ObjTuple
			vm.gc.track(tup, objectSize(tup))
			th.push(ObjectValue(tup))
		case OpMakeList:
			items := make([]Value, operand)
			copy(items, th.stack[len(th.stack)-operand:])
			th.popN(operand)
			l := &ListObj{Items: items}
			l.typ = ObjList
			vm.gc.track(l, objectSize(l))
			th.push(ObjectValue(l))
		case OpMakeDict:
			tbl := NewTable()
			base := len(th.stack) - operand
			for i := base; i < len(th.stack); i += 2 {
				tbl.Set(th.stack[i], th.stack[i+1])
			}
			th.popN(operand)
			d := &DictObj{Table: tbl}
			d.typ = ObjDict
			vm.gc.track(d, objectSize(d))
			th.push(ObjectValue(d))
		case OpMakeSet:
			tbl := NewTable()
			base := len(th.stack) - operand
			for i := base; i < len(th.stack); i++ {
				tbl.Set(th.stack[i], NoneValue())
			}
			th.popN(operand)
			s := &SetObj{Table: tbl}
			s.typ = ObjSet
			vm.gc.track(s, objectSize(s))
			th.push(ObjectValue(s))
		case OpSlice:
			err = vm.sliceOp(th, operand)
		case OpListAppend:
			v := th.pop()
			l := th.peek(operand - 1).obj.(*ListObj)
			l.Items = append(l.Items, v)
		case OpListAppendTop:
			v := th.peek(0)
			l := th.peek(operand).obj.(*ListObj)
			l.Items = append(l.Items, v)
			th.pop()
		case OpDictSet:
			v := th.pop()
			k := th.pop()
			d := th.peek(operand - 1).obj.(*DictObj)
			d.Table.Set(k, v)
		case OpSetAdd:
			v := th.pop()
			s := th.peek(operand - 1).obj.(*SetObj)
			s.Table.Set(v, NoneValue())

		case OpUnpack:
			err = vm.unpackOp(th, operand, -1)
		case OpUnpackEx:
			before := operand >> 8
			after := operand & 0xFF
			err = vm.unpackOp(th, before, after)
		case OpTupleFromList:
			l := th.pop().obj.(*ListObj)
			tup := &TupleObj{Items: append([]Value(nil), l.Items...)}
			tup.typ = ObjTuple
			vm.gc.track(tup, objectSize(tup))
			th.push(ObjectValue(tup))

		case OpPushTry:
			th.push(HandlerValue(OpPushTry, uint16(operand)))
		case OpPushWith:
			err = vm.pushWith(th, uint16(operand))
		case OpRaise:
			exc := th.pop()
			err = vm.raiseValue(exc, Value{})
		case OpRaiseFrom:
			cause := th.pop()
			exc := th.pop()
			err = vm.raiseValue(exc, cause)
		case OpFilterExcept:
			err = vm.filterExcept(th, operand)
		case OpBeginFinally:
			// no-op landing point: the pending-exception-or-None value is
			// already on top of stack, left there either by unwind
			// (exceptional entry) or by the compiler's NONE just before
			// this opcode (normal-completion entry).
		case OpEnterExcept:
			// no-op landing point: FILTER_EXCEPT already left the bound
			// exception value on top of stack on a match.
		case OpEndFinally:
			err = vm.endFinally(th)
		case OpTryElse:
			th.pop()
		case OpCleanupWith:
			err = vm.cleanupWith(th)
		case OpExitLoop:
			// marker value produced by OpCallIter on exhaustion; the
			// compiler emits a POP_JUMP_IF_FALSE-style test against it, so
			// reaching this opcode directly means "fell off the loop".

		case OpReturn:
			result := th.pop()
			popped := th.popFrame()
			th.closeUpvalues(popped.slotsBase)
			th.stack = th.stack[:popped.outSlots]
			if popped.generator != nil {
				popped.generator.Done = true
				popped.generator.Result = result
			}
			th.push(result)
			if th.depth() < exitOnFrame {
				return result, nil
			}
			continue

		case OpYield:
			val := th.pop()
			popped := th.popFrame()
			gen := popped.generator
			gen.savedStack = append([]Value(nil), th.stack[popped.slotsBase:]...)
			gen.ip = popped.ip
			gen.openUpvalues = th.detachUpvaluesFrom(popped.slotsBase, popped.slotsBase)
			th.stack = th.stack[:popped.outSlots]
			th.push(val)
			if th.depth() < exitOnFrame {
				return val, nil
			}
			continue

		case OpYieldFrom:
			var suspended bool
			var v Value
			suspended, v, err = vm.driveSubIterator(th, frame, size, exitOnFrame)
			if err == nil && suspended {
				if th.depth() < exitOnFrame {
					return v, nil
				}
				continue
			}

		case OpInvokeAwait:
			awaited := th.pop()
			var iter Value
			iter, err = vm.resolveAwaitable(awaited)
			if err == nil {
				th.push(iter)
				var suspended bool
				var v Value
				suspended, v, err = vm.driveSubIterator(th, frame, size, exitOnFrame)
				if err == nil && suspended {
					if th.depth() < exitOnFrame {
						return v, nil
					}
					continue
				}
			}

		case OpFormatValue:
			err = vm.formatValue(th, FormatFlag(operand))
		case OpMakeString:
			err = vm.makeStringOp(th, operand)

		case OpPushBuildClass:
			th.push(ObjectValue(vm.pushBuildClass()))
		case OpImport:
			name := code.Constants[operand].obj.(*StringObj)
			var mod *ModuleObj
			mod, err = vm.importModule(th, name.String())
			if err == nil {
				th.push(ObjectValue(mod))
			}
		case OpImportFrom:
			name := code.Constants[operand].obj.(*StringObj)
			mod := th.peek(0).obj.(*ModuleObj)
			var v Value
			v, err = getAttribute(vm, ObjectValue(mod), name)
			th.push(v)
		case OpAnnotate:
			frame.closure.Annotations = th.pop()
		case OpBreakpoint:
			// no-op: the debugger frontend is out of scope (§1).
		case OpMissingKw:
			err = vm.newArgumentError("missing required keyword argument")
		case OpKwargs:
			th.push(KwargsValue(Kwargs(operand)))
		case OpExpandArgs:
			// the value to expand is already on the stack; EXPAND_ARGS only
			// tags how CALL should interpret it, via the kwargs sentinel
			// pushed immediately after by a paired OpKwargs in the stream
			// the compiler emits. No stack effect here beyond recording
			// kind, which dispatchCall reads back off the sentinel.
			_ = ExpandKind(operand)

		case OpReverse:
			reverseTop(th, operand)

		case OpHalt:
			if len(th.stack) > 0 {
				return th.peek(0), nil
			}
			return NoneValue(), nil

		default:
			err = fmt.Errorf("ember: unimplemented opcode %d", realOp)
		}

		if err != nil {
			th.raise(errToValue(vm, err))
		}
		if th.is(flagHasException) {
			done, retVal, retErr := vm.unwind(th, exitOnFrame)
			if done {
				return retVal, retErr
			}
		}
	}
}

func reverseTop(th *ThreadState, n int) {
	s := th.stack[len(th.stack)-n:]
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}

// errToValue unwraps a *raisedError back into the exception Value it
// carries, or synthesizes a plain RuntimeError-shaped instance for a Go
// error that didn't go through errors.go's raisers (e.g. a bug in this
// implementation surfacing as a type assertion panic recovered upstream).
func errToValue(vm *VM, err error) Value {
	if re, ok := err.(*raisedError); ok {
		return re.value
	}
	return vm.newException(vm.exc.Exception, err.Error())
}

// decodeInstruction normalizes a short or long opcode (and OVERLONG_JUMP)
// into (logical opcode, operand, total instruction size in bytes),
// collapsing the short/long pairing so the dispatch switch only needs one
// case per logical operation.
func (vm *VM) decodeInstruction(c *Chunk, ip int, op OpCode) (OpCode, int, int) {
	if longBase, ok := longToShort[op]; ok {
		operand := int(c.Code[ip+1])<<16 | int(c.Code[ip+2])<<8 | int(c.Code[ip+3])
		return longBase, operand, 4
	}
	switch op {
	case OpJump, OpLoop, OpLoopIter, OpJumpIfFalseOrPop, OpPopJumpIfFalse, OpJumpIfTrueOrPop, OpTestArg:
		rel := int(int16(uint16(c.Code[ip+1])<<8 | uint16(c.Code[ip+2])))
		if op == OpLoop || op == OpLoopIter {
			return op, ip + 3 - rel, 3
		}
		return op, ip + 3 + rel, 3
	case OpUnpackEx:
		before := int(c.Code[ip+1])
		after := int(c.Code[ip+2])
		return op, before<<8 | after, 3
	case OpOverlongJump:
		return op, 0, 1
	}
	n := op.operandBytes()
	switch n {
	case 0:
		return op, 0, 1
	case 1:
		return op, int(c.Code[ip+1]), 2
	case 2:
		return op, int(c.Code[ip+1])<<8 | int(c.Code[ip+2]), 3
	case 3:
		return op, int(c.Code[ip+1])<<16 | int(c.Code[ip+2])<<8 | int(c.Code[ip+3]), 4
	default:
		return op, 0, 1
	}
}

// longToShort maps every *_LONG opcode to the logical opcode the dispatch
// switch matches on, so e.g. OpGetLocalLong and OpGetLocal share one case.
var longToShort = map[OpCode]OpCode{
	OpDupLong: OpDup, OpSwapLong: OpSwap, OpPopManyLong: OpPopMany, OpCloseManyLong: OpCloseMany,
	OpConstantLong: OpConstant,
	OpClosureLong:  OpClosure,
	OpGetLocalLong: OpGetLocal, OpSetLocalLong: OpSetLocal, OpSetLocalPopLong: OpSetLocalPop,
	OpGetGlobalLong: OpGetGlobal, OpSetGlobalLong: OpSetGlobal, OpDelGlobalLong: OpDelGlobal,
	OpDefineGlobalLong: OpDefineGlobal,
	OpGetUpvalueLong:   OpGetUpvalue, OpSetUpvalueLong: OpSetUpvalue,
	OpGetPropertyLong: OpGetProperty, OpSetPropertyLong: OpSetProperty, OpDelPropertyLong: OpDelProperty,
	OpGetMethodLong: OpGetMethod, OpGetSuperLong: OpGetSuper,
	OpGetNameLong: OpGetName, OpSetNameLong: OpSetName,
	OpCallLong: OpCall, OpCallMethodLong: OpCallMethod,
	OpTupleLong: OpTuple, OpMakeListLong: OpMakeList, OpMakeDictLong: OpMakeDict, OpMakeSetLong: OpMakeSet,
	OpUnpackLong: OpUnpack, OpUnpackExLong: OpUnpackEx,
	OpFilterExceptLong: OpFilterExcept,
	OpMakeStringLong:   OpMakeString,
	OpImportLong:       OpImport, OpImportFromLong: OpImportFrom,
	OpReverseLong: OpReverse,
}
