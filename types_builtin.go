package ember

// builtinTypeClasses holds the preconstructed ClassObj vm.classOf returns
// for every value shape that isn't itself an Instance of a user-defined
// class: the primitive kinds, and one class per heap ObjType that the
// collection/string machinery produces (list, dict, set, tuple, str,
// function, class, module, generator...). Beyond the subscript/iteration/
// length/membership protocols registerCollectionProtocols wires onto
// list/dict/set/tuple/bytes, built-in collection methods are out of scope
// (§1); these classes exist so __class__, isinstance, and the operator/
// attribute protocols have somewhere to resolve a receiver's type to, same
// as the teacher's grammar AST nodes each carried a fixed "kind" rather
// than a full class hierarchy.
type builtinTypeClasses struct {
	noneClass   *ClassObj
	boolClass   *ClassObj
	intClass    *ClassObj
	floatClass  *ClassObj
	objectClass *ClassObj
	typeClass   *ClassObj

	byObjType [numBuiltinObjTypes]*ClassObj
}

const numBuiltinObjTypes = int(ObjSet) + 1

func newBuiltinTypeClasses(vm *VM) *builtinTypeClasses {
	mk := func(name string) *ClassObj {
		c := &ClassObj{Name: name, Methods: NewTable(), Subclasses: newSubclassSet()}
		c.typ = ObjClass
		c.makeImmortal()
		c.finalize()
		vm.gc.track(c, objectSize(c))
		return c
	}
	b := &builtinTypeClasses{
		noneClass:   mk("NoneType"),
		boolClass:   mk("bool"),
		intClass:    mk("int"),
		floatClass:  mk("float"),
		objectClass: mk("object"),
		typeClass:   mk("type"),
	}
	names := [numBuiltinObjTypes]string{
		ObjString: "str", ObjCodeObject: "codeobject", ObjNativeFunction: "native_function",
		ObjClosure: "function", ObjUpvalue: "upvalue", ObjClass: "type",
		ObjInstance: "object", ObjBoundMethod: "bound_method", ObjTuple: "tuple",
		ObjBytes: "bytes", ObjModule: "module", ObjGenerator: "generator",
		ObjList: "list", ObjDict: "dict", ObjSet: "set",
	}
	for t, n := range names {
		if n == "" {
			continue
		}
		b.byObjType[t] = mk(n)
	}
	registerCollectionProtocols(vm, b)
	return b
}

func (b *builtinTypeClasses) forObjType(t ObjType) *ClassObj {
	if int(t) < len(b.byObjType) && b.byObjType[t] != nil {
		return b.byObjType[t]
	}
	return b.objectClass
}
