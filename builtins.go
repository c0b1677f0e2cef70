package ember

import (
	"fmt"
	"strings"
)

// RegisterNative installs a Go-backed callable into the builtins module
// under name, the seam every free function below is registered through and
// the one a host extends with its own natives, modeled on the teacher's
// own builtin-handler registration surface.
func (vm *VM) RegisterNative(name, doc string, fn NativeFn) {
	n := &NativeFunctionObj{Name: name, Doc: doc, Fn: fn}
	n.typ = ObjNativeFunction
	vm.gc.track(n, objectSize(n))
	vm.builtins.Fields.Set(ObjectValue(vm.intern(name)), ObjectValue(n))
}

// seedBuiltins installs every name a bare module's globals fall back to
// through lookupGlobal (protocols.go): the small set of free functions
// every script can call without an explicit import, plus the built-in
// exception classes so `except ValueError:` works without an import.
func seedBuiltins(vm *VM) {
	vm.RegisterNative("print", "print(*args) -> None", builtinPrint)
	vm.RegisterNative("len", "len(obj) -> int", builtinLen)
	vm.RegisterNative("repr", "repr(obj) -> str", builtinRepr)
	vm.RegisterNative("str", "str(obj) -> str", builtinStr)
	vm.RegisterNative("isinstance", "isinstance(obj, cls) -> bool", builtinIsInstance)
	vm.RegisterNative("hash", "hash(obj) -> int", builtinHash)
	vm.RegisterNative("iter", "iter(obj) -> iterator", builtinIter)
	vm.RegisterNative("next", "next(iterator) -> value", builtinNext)
	vm.RegisterNative("type", "type(obj) -> class", builtinType)
	vm.RegisterNative("getattr", "getattr(obj, name) -> value", builtinGetattr)
	vm.RegisterNative("setattr", "setattr(obj, name, value) -> None", builtinSetattr)

	for name, cls := range map[string]*ClassObj{
		"BaseException":      vm.exc.BaseException,
		"Exception":          vm.exc.Exception,
		"TypeError":          vm.exc.TypeError,
		"AttributeError":     vm.exc.AttributeError,
		"NameError":          vm.exc.NameError,
		"ValueError":         vm.exc.ValueError,
		"IndexError":         vm.exc.IndexError,
		"KeyError":           vm.exc.KeyError,
		"ImportError":        vm.exc.ImportError,
		"SyntaxError":        vm.exc.SyntaxError,
		"ZeroDivisionError":  vm.exc.ZeroDivisionError,
		"NotImplementedError": vm.exc.NotImplementedErr,
		"ArgumentError":      vm.exc.ArgumentError,
		"KeyboardInterrupt":  vm.exc.KeyboardInterrupt,
		"StopIteration":      vm.exc.StopIteration,
	} {
		vm.builtins.Fields.Set(ObjectValue(vm.intern(name)), ObjectValue(cls))
	}
}

func builtinPrint(vm *VM, args []Value, hasKw bool) (Value, error) {
	parts := make([]string, len(args))
	for i, a := range args {
		s, err := vm.strOf(a)
		if err != nil {
			return Value{}, err
		}
		parts[i] = s
	}
	fmt.Println(strings.Join(parts, " "))
	return NoneValue(), nil
}

func builtinLen(vm *VM, args []Value, hasKw bool) (Value, error) {
	if len(args) != 1 {
		return Value{}, vm.newArgumentError("len() takes exactly one argument")
	}
	v := args[0]
	// str has no __len__ registered (collections_builtin.go only wires the
	// list/dict/set/tuple/bytes protocols), so it keeps a direct fast path;
	// everything else goes through the dunder every other type registers.
	if s, ok := v.obj.(*StringObj); ok {
		return IntValue(int64(s.RuneCount())), nil
	}
	cls := vm.classOf(v)
	if cls.special[MLen] != (Value{}) {
		return vm.callValue(cls.special[MLen], []Value{v}, false)
	}
	return Value{}, vm.newTypeError("object of type %s has no len()", vm.typeName(v))
}

func builtinRepr(vm *VM, args []Value, hasKw bool) (Value, error) {
	s, err := vm.reprOf(args[0])
	if err != nil {
		return Value{}, err
	}
	return ObjectValue(vm.intern(s)), nil
}

func builtinStr(vm *VM, args []Value, hasKw bool) (Value, error) {
	s, err := vm.strOf(args[0])
	if err != nil {
		return Value{}, err
	}
	return ObjectValue(vm.intern(s)), nil
}

func builtinIsInstance(vm *VM, args []Value, hasKw bool) (Value, error) {
	if len(args) != 2 {
		return Value{}, vm.newArgumentError("isinstance() takes exactly two arguments")
	}
	cls, ok := args[1].obj.(*ClassObj)
	if !ok {
		return Value{}, vm.newTypeError("isinstance() arg 2 must be a class")
	}
	if isInstanceOf(args[0], cls) {
		return BoolValue(true), nil
	}
	for cur := vm.classOf(args[0]); cur != nil; cur = cur.Base {
		if cur == cls {
			return BoolValue(true), nil
		}
	}
	return BoolValue(false), nil
}

func builtinHash(vm *VM, args []Value, hasKw bool) (Value, error) {
	v := args[0]
	cls := vm.classOf(v)
	if cls.special[MHash] != (Value{}) {
		return vm.callValue(cls.special[MHash], []Value{v}, false)
	}
	return IntValue(int64(hashValue(v))), nil
}

func builtinIter(vm *VM, args []Value, hasKw bool) (Value, error) {
	return vm.invokeIter(args[0])
}

func builtinNext(vm *VM, args []Value, hasKw bool) (Value, error) {
	v, stop, err := vm.callIterNext(args[0])
	if err != nil {
		return Value{}, err
	}
	if stop {
		return Value{}, &raisedError{value: vm.newException(vm.exc.StopIteration, "")}
	}
	return v, nil
}

func builtinType(vm *VM, args []Value, hasKw bool) (Value, error) {
	return ObjectValue(vm.classOf(args[0])), nil
}

func builtinGetattr(vm *VM, args []Value, hasKw bool) (Value, error) {
	name, ok := args[1].obj.(*StringObj)
	if !ok {
		return Value{}, vm.newTypeError("getattr() attribute name must be a string")
	}
	return getAttribute(vm, args[0], name)
}

func builtinSetattr(vm *VM, args []Value, hasKw bool) (Value, error) {
	name, ok := args[1].obj.(*StringObj)
	if !ok {
		return Value{}, vm.newTypeError("setattr() attribute name must be a string")
	}
	if err := setAttribute(vm, args[0], name, args[2]); err != nil {
		return Value{}, err
	}
	return NoneValue(), nil
}
