package ember

import "github.com/dolthub/swiss"

// subclassSet tracks the classes that directly derive from a given
// ClassObj, so that a setattr on a base can cascade a method-cache
// invalidation down the whole tree (each subclass cascades to its own set)
// without a linear scan of every live class. Backed by a swiss-table map keyed on the subclass pointer itself;
// membership and iteration are all this needs, never a value lookup.
type subclassSet struct {
	m *swiss.Map[*ClassObj, struct{}]
}

func newSubclassSet() *subclassSet {
	return &subclassSet{m: swiss.NewMap[*ClassObj, struct{}](4)}
}

func (s *subclassSet) add(c *ClassObj) { s.m.Put(c, struct{}{}) }

func (s *subclassSet) each(fn func(*ClassObj)) {
	s.m.Iter(func(c *ClassObj, _ struct{}) bool {
		fn(c)
		return false
	})
}

// methodCacheSize is the direct-mapped cache's slot count; collisions
// simply evict, there is no chaining.
const methodCacheSize = 4096

type methodCacheEntry struct {
	nameHash   uint64
	generation uint64
	value      Value
	found      bool
}

func (c *ClassObj) cacheGet(nameHash uint64) (Value, bool) {
	slot := &c.cache[nameHash%methodCacheSize]
	if slot.nameHash == nameHash && slot.generation == c.cacheGeneration {
		return slot.value, slot.found
	}
	return Value{}, false
}

func (c *ClassObj) cachePut(nameHash uint64, v Value, found bool) {
	slot := &c.cache[nameHash%methodCacheSize]
	slot.nameHash = nameHash
	slot.generation = c.cacheGeneration
	slot.value = v
	slot.found = found
}

// clearCache invalidates every attribute-lookup entry cached for this
// class by bumping its generation counter; stale entries are never
// scanned individually, just shadowed by the counter mismatch.
func (c *ClassObj) clearCache() { c.cacheGeneration++ }

// finalize recomputes the cached special-method slots after Methods or
// Base changes: it walks the MRO (this class, then Base, then Base.Base,
// ...) once per dunder, stopping at the first class whose Methods table
// defines it and isn't excluded by isCacheableEvenIfStatic. It also
// invalidates the attribute cache for this class and cascades to every
// known subclass, since a base method changing shadows what subclasses had
// resolved too.
func (c *ClassObj) finalize() {
	for m := SpecialMethod(0); m < numSpecialMethods; m++ {
		c.special[m] = Value{}
		name := specialMethodNames[m]
		for cur := c; cur != nil; cur = cur.Base {
			v, ok := cur.Methods.Get(ObjectValue(internedName(name)))
			if !ok {
				continue
			}
			if isStaticCallable(v) && !isCacheableEvenIfStatic(m) {
				continue
			}
			c.special[m] = v
			break
		}
	}
	// §4.3: overriding __eq__ without overriding __hash__ resets __hash__
	// to none, preserving the equality/hash contract, unless this class
	// itself (not an ancestor) defines __hash__ explicitly.
	if _, ownEq := c.Methods.Get(ObjectValue(internedName(specialMethodNames[MEq]))); ownEq {
		if _, ownHash := c.Methods.Get(ObjectValue(internedName(specialMethodNames[MHash]))); !ownHash {
			c.special[MHash] = Value{}
		}
	}
	c.clearCache()
	if c.Subclasses != nil {
		c.Subclasses.each(func(sub *ClassObj) { sub.finalize() })
	}
}

func isStaticCallable(v Value) bool {
	if !v.IsObject() {
		return false
	}
	switch fn := v.obj.(type) {
	case *NativeFunctionObj:
		return fn.Static()
	case *ClosureObj:
		return fn.Static()
	}
	return false
}

// internedName is a small seam so class.go doesn't need to carry a VM
// reference just to look up the string interner; vm.go installs the real
// implementation during VM initialization.
var internedName = func(s string) *StringObj { panic("ember: interner not installed") }

// mroRoot returns the class whose MRO getAttribute/getMethod should walk
// for recv: recv itself when recv is a class value, so `ClassName.attr`
// searches the class's own base chain instead of the always-empty `type`
// metaclass that classOf reports as a class value's runtime type.
func mroRoot(vm *VM, recv Value) *ClassObj {
	if cls, ok := recv.obj.(*ClassObj); ok {
		return cls
	}
	return classOf(vm, recv)
}

// getAttribute implements the lookup every GET_PROPERTY goes through; the
// class-side search in step 2 is served from the per-class method cache
// when it holds the name:
//  1. instance.__dict__, if recv is an Instance
//  2. recv's class MRO, first class whose Methods has name
//  3. if the class entry is a data descriptor (defines __set__), call
//     its __get__ and return that
//  4. else if step 1 found something, return it
//  5. else if the class entry is a non-data descriptor, call its __get__
//  6. else if the class entry exists, bind it to recv if callable
//  7. else consult __getattr__ if the class defines it
//  8. else raise AttributeError
func getAttribute(vm *VM, recv Value, name *StringObj) (Value, error) {
	cls := mroRoot(vm, recv)
	var instanceVal Value
	var hasInstanceVal bool
	if inst, ok := recv.obj.(*Instance); ok {
		if v, ok := inst.Fields.Get(ObjectValue(name)); ok {
			instanceVal, hasInstanceVal = v, true
		}
	}

	nameHash := name.hash
	classVal, foundInClass := cls.cacheGet(nameHash)
	if !foundInClass {
		classVal, foundInClass = lookupMRO(cls, name)
		cls.cachePut(nameHash, classVal, foundInClass)
	}

	if foundInClass && isDataDescriptor(classVal) {
		return invokeGet(vm, classVal, recv, cls)
	}
	if hasInstanceVal {
		return instanceVal, nil
	}
	if foundInClass {
		if isNonDataDescriptor(classVal) {
			return invokeGet(vm, classVal, recv, cls)
		}
		return bindIfCallable(vm, classVal, recv), nil
	}
	if cls.special[MGetAttr] != (Value{}) {
		return vm.callValue(cls.special[MGetAttr], []Value{recv, ObjectValue(name)}, false)
	}
	return Value{}, vm.newAttributeError(recv, name.String())
}

func lookupMRO(cls *ClassObj, name *StringObj) (Value, bool) {
	for cur := cls; cur != nil; cur = cur.Base {
		if v, ok := cur.Methods.Get(ObjectValue(name)); ok {
			return v, true
		}
	}
	return Value{}, false
}

// descriptorClass reports the class owning __get__/__set__ for a callable
// value found in a method table. A closure stored directly as a method
// attribute is not itself a descriptor unless its own type is (e.g. a
// property instance), so this only applies to non-function objects.
func descriptorClass(v Value) *ClassObj {
	if !v.IsObject() {
		return nil
	}
	if inst, ok := v.obj.(*Instance); ok {
		return inst.Class
	}
	return nil
}

func isDataDescriptor(v Value) bool {
	cls := descriptorClass(v)
	return cls != nil && cls.special[MSet] != (Value{})
}

func isNonDataDescriptor(v Value) bool {
	cls := descriptorClass(v)
	return cls != nil && cls.special[MGet] != (Value{})
}

func invokeGet(vm *VM, descriptor, instance Value, owner *ClassObj) (Value, error) {
	cls := descriptorClass(descriptor)
	return vm.callValue(cls.special[MGet], []Value{descriptor, instance, ObjectValue(owner)}, false)
}

func bindIfCallable(vm *VM, v Value, recv Value) Value {
	if v.IsObject() {
		switch v.obj.(type) {
		case *ClosureObj, *NativeFunctionObj:
			bm := &BoundMethodObj{Receiver: recv, Callable: v}
			bm.typ = ObjBoundMethod
			vm.gc.track(bm, objectSize(bm))
			return ObjectValue(bm)
		}
	}
	return v
}

// setAttribute stores name=value either through a data descriptor's
// __set__ or directly into the instance dict. Setting directly on a class
// object goes into its Methods table and triggers finalize so the method
// cache and special-method slots reflect the change immediately.
func setAttribute(vm *VM, recv Value, name *StringObj, value Value) error {
	if cls, ok := recv.obj.(*ClassObj); ok {
		cls.Methods.Set(ObjectValue(name), value)
		cls.finalize()
		return nil
	}
	cls := classOf(vm, recv)
	if classVal, ok := lookupMRO(cls, name); ok && isDataDescriptor(classVal) {
		descCls := descriptorClass(classVal)
		_, err := vm.callValue(descCls.special[MSet], []Value{classVal, recv, value}, false)
		return err
	}
	inst, ok := recv.obj.(*Instance)
	if !ok {
		return vm.newAttributeError(recv, name.String())
	}
	inst.Fields.Set(ObjectValue(name), value)
	return nil
}

func delAttribute(vm *VM, recv Value, name *StringObj) error {
	inst, ok := recv.obj.(*Instance)
	if !ok {
		return vm.newAttributeError(recv, name.String())
	}
	if !inst.Fields.Delete(ObjectValue(name)) {
		return vm.newAttributeError(recv, name.String())
	}
	return nil
}
