package ember

import "fmt"

// exceptionBuiltinClasses holds the preconstructed ClassObj for every
// built-in exception type, installed by NewVM/seedBuiltins so raising one
// never has to look a name up through the builtins module at runtime.
type exceptionBuiltinClasses struct {
	BaseException      *ClassObj
	Exception          *ClassObj
	TypeError          *ClassObj
	AttributeError     *ClassObj
	NameError          *ClassObj
	ValueError         *ClassObj
	IndexError         *ClassObj
	KeyError           *ClassObj
	ImportError         *ClassObj
	SyntaxError        *ClassObj
	ZeroDivisionError  *ClassObj
	NotImplementedErr  *ClassObj
	ArgumentError      *ClassObj
	KeyboardInterrupt  *ClassObj
	StopIteration      *ClassObj
}

// newBuiltinExceptionClasses wires the exception hierarchy: every concrete
// error class derives from Exception, which derives from BaseException, so
// a bare `except Exception:` clause in user code catches everything except
// KeyboardInterrupt, which derives from BaseException directly.
func newBuiltinExceptionClasses(vm *VM) *exceptionBuiltinClasses {
	base := newExceptionClass(vm, "BaseException", nil)
	exc := newExceptionClass(vm, "Exception", base)

	c := &exceptionBuiltinClasses{
		BaseException:     base,
		Exception:         exc,
		TypeError:         newExceptionClass(vm, "TypeError", exc),
		AttributeError:    newExceptionClass(vm, "AttributeError", exc),
		NameError:         newExceptionClass(vm, "NameError", exc),
		ValueError:        newExceptionClass(vm, "ValueError", exc),
		KeyError:          newExceptionClass(vm, "KeyError", exc),
		ImportError:       newExceptionClass(vm, "ImportError", exc),
		SyntaxError:       newExceptionClass(vm, "SyntaxError", exc),
		NotImplementedErr: newExceptionClass(vm, "NotImplementedError", exc),
		ArgumentError:     newExceptionClass(vm, "ArgumentError", exc),
		KeyboardInterrupt: newExceptionClass(vm, "KeyboardInterrupt", base),
		StopIteration:     newExceptionClass(vm, "StopIteration", exc),
	}
	c.IndexError = newExceptionClass(vm, "IndexError", c.ValueError)
	c.ZeroDivisionError = newExceptionClass(vm, "ZeroDivisionError", c.ArgumentError)
	return c
}

func newExceptionClass(vm *VM, name string, base *ClassObj) *ClassObj {
	c := &ClassObj{Name: name, Base: base, Methods: NewTable(), Subclasses: newSubclassSet()}
	c.typ = ObjClass
	c.makeImmortal()
	if base != nil {
		base.Subclasses.add(c)
	}
	c.finalize()
	vm.gc.track(c, objectSize(c))
	return c
}

// isInstanceOf reports whether recv's class is cls or a descendant of cls,
// walking the Base chain — the same relation `isinstance`/except-clause
// matching relies on.
func isInstanceOf(recv Value, cls *ClassObj) bool {
	if !recv.IsObject() {
		return false
	}
	inst, ok := recv.obj.(*Instance)
	if !ok {
		return false
	}
	for cur := inst.Class; cur != nil; cur = cur.Base {
		if cur == cls {
			return true
		}
	}
	return false
}

// newException allocates an instance of cls with a `message` field set to
// msg, the shape every built-in raiser in this file produces.
func (vm *VM) newException(cls *ClassObj, msg string) Value {
	inst := &Instance{Class: cls, Fields: NewTable()}
	inst.typ = ObjInstance
	vm.gc.track(inst, objectSize(inst))
	inst.Fields.Set(ObjectValue(vm.intern("message")), ObjectValue(vm.intern(msg)))
	return ObjectValue(inst)
}

func (vm *VM) newTypeError(format string, args ...any) error {
	return &raisedError{value: vm.newException(vm.exc.TypeError, fmt.Sprintf(format, args...))}
}

func (vm *VM) newAttributeError(recv Value, name string) error {
	return &raisedError{value: vm.newException(vm.exc.AttributeError,
		fmt.Sprintf("%s object has no attribute %q", vm.typeName(recv), name))}
}

func (vm *VM) newNameError(name string) error {
	return &raisedError{value: vm.newException(vm.exc.NameError,
		fmt.Sprintf("name %q is not defined", name))}
}

func (vm *VM) newValueError(format string, args ...any) error {
	return &raisedError{value: vm.newException(vm.exc.ValueError, fmt.Sprintf(format, args...))}
}

func (vm *VM) newIndexError(format string, args ...any) error {
	return &raisedError{value: vm.newException(vm.exc.IndexError, fmt.Sprintf(format, args...))}
}

func (vm *VM) newKeyError(key Value) error {
	return &raisedError{value: vm.newException(vm.exc.KeyError, vm.reprFallback(key))}
}

func (vm *VM) newImportError(format string, args ...any) error {
	return &raisedError{value: vm.newException(vm.exc.ImportError, fmt.Sprintf(format, args...))}
}

func (vm *VM) newZeroDivisionError(op string) error {
	return &raisedError{value: vm.newException(vm.exc.ZeroDivisionError,
		fmt.Sprintf("%s by zero", op))}
}

func (vm *VM) newArgumentError(format string, args ...any) error {
	return &raisedError{value: vm.newException(vm.exc.ArgumentError, fmt.Sprintf(format, args...))}
}

// raisedError wraps an exception Value so Go's error-propagation idiom
// (returning error up the call stack from native functions and the
// dispatch loop) can carry a full user-visible exception object instead of
// a plain string. The unwinder in exceptions.go unwraps it back into
// th.exception before searching for a handler.
type raisedError struct {
	value Value
}

func (e *raisedError) Error() string {
	return "exception"
}

// reprFallback renders v well enough for an error message when the full
// __repr__ dispatch machinery can't be used (e.g. because we're already
// constructing an exception about attribute lookup failing).
func (vm *VM) reprFallback(v Value) string {
	switch {
	case v.IsNone():
		return "None"
	case v.IsInt():
		return fmt.Sprintf("%d", v.AsInt())
	case v.IsFloat():
		return fmt.Sprintf("%g", v.AsFloat())
	case v.IsBool():
		return fmt.Sprintf("%t", v.AsBool())
	case v.IsObject():
		if s, ok := v.obj.(*StringObj); ok {
			return fmt.Sprintf("%q", s.String())
		}
		return vm.typeName(v)
	default:
		return "?"
	}
}
