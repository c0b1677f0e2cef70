package ember

// ObjType tags which concrete heap entity a heapObj wraps. It exists
// alongside Go's own type switch so the memory manager and the
// disassembler can report a human name without reflection.
type ObjType uint8

const (
	ObjString ObjType = iota
	ObjCodeObject
	ObjNativeFunction
	ObjClosure
	ObjUpvalue
	ObjClass
	ObjInstance
	ObjBoundMethod
	ObjTuple
	ObjBytes
	ObjModule
	ObjGenerator
	ObjList
	ObjDict
	ObjSet
)

var objTypeNames = [...]string{
	ObjString:         "string",
	ObjCodeObject:     "codeobject",
	ObjNativeFunction: "native",
	ObjClosure:        "closure",
	ObjUpvalue:        "upvalue",
	ObjClass:          "class",
	ObjInstance:       "instance",
	ObjBoundMethod:    "boundmethod",
	ObjTuple:          "tuple",
	ObjBytes:          "bytes",
	ObjModule:         "module",
	ObjGenerator:      "generator",
	ObjList:           "list",
	ObjDict:           "dict",
	ObjSet:            "set",
}

func (t ObjType) String() string { return objTypeNames[t] }

// objFlags packs the per-object bits the collector and interpreter consult
// on every allocation: GC mark state, immortality, repr-cycle guards, and
// cached-hash validity.
type objFlags uint32

const (
	flagMarked objFlags = 1 << iota
	flagImmortal
	flagSecondChance
	flagInRepr
	flagValidHash
	flagNoInherit
	flagStringASCII
	flagStringUCS1
	flagStringUCS2
	flagStringUCS4
	flagCodeIsGenerator
	flagCodeIsCoroutine
	flagFunctionStatic
	flagFunctionClassMethod
	flagCodeCollectsArgs
	flagCodeCollectsKwargs
)

// heapObj is implemented by every heap entity's header. Go interface
// equality between two heapObj values is already a single pointer
// comparison, which is what valuesSame relies on for object identity.
type heapObj interface {
	header() *objHeader
	objType() ObjType
}

// objHeader is embedded as the first field of every heap entity: a type
// tag, flag bits, a cached hash, and the VM-wide live-object list pointer
// the sweeper walks.
type objHeader struct {
	typ   ObjType
	flags objFlags
	hash  uint64
	id    uint64 // monotonic allocation-order id, used for identity hashing
	next  heapObj
}

func (h *objHeader) header() *objHeader { return h }
func (h *objHeader) objType() ObjType   { return h.typ }

func (h *objHeader) is(f objFlags) bool  { return h.flags&f != 0 }
func (h *objHeader) set(f objFlags)      { h.flags |= f }
func (h *objHeader) clear(f objFlags)    { h.flags &^= f }
func (h *objHeader) marked() bool        { return h.is(flagMarked) }
func (h *objHeader) mark()               { h.set(flagMarked) }
func (h *objHeader) unmark()             { h.clear(flagMarked) }
func (h *objHeader) immortal() bool      { return h.is(flagImmortal) }
func (h *objHeader) makeImmortal()       { h.set(flagImmortal) }

// StringEncoding records the narrowest fixed-width encoding that can
// represent a string's codepoints, across ASCII / UCS-1 / UCS-2 / UCS-4
// tiers. The core only ever produces ASCII and UCS-4 (every
// non-ASCII string is stored as UTF-8 bytes plus a decoded rune count);
// UCS-1/UCS-2 are exposed for a host that wants tighter packing and are
// otherwise unused by this implementation.
type StringEncoding uint8

const (
	EncodingASCII StringEncoding = iota
	EncodingUCS1
	EncodingUCS2
	EncodingUCS4
)

// StringObj is an interned, immutable byte string plus its decoded
// codepoint count. Identity implies content equality: the interner in
// memory.go guarantees only one StringObj exists per distinct content.
type StringObj struct {
	objHeader
	data     []byte
	runes    int
	encoding StringEncoding
}

func (s *StringObj) Bytes() []byte { return s.data }
func (s *StringObj) String() string { return string(s.data) }
func (s *StringObj) RuneCount() int  { return s.runes }

// LocalDebugEntry records the birth/death instruction offsets of a local
// variable slot, used by a debugger or disassembler to recover names.
type LocalDebugEntry struct {
	Name  string
	Slot  int
	Birth int
	Death int
}

// UpvalueDescriptor tells a CLOSURE opcode how to populate one upvalue slot
// of the closure it is about to build: capture a local from the enclosing
// frame, or inherit one already captured by the enclosing closure.
type UpvalueDescriptor struct {
	FromParentLocal bool
	Index           int
}

// CodeObject is the immutable, post-compile artifact a compiler (external
// to this core) hands over. One CodeObject backs every Closure built from
// it.
type CodeObject struct {
	objHeader

	Name      string
	QualName  string
	Doc       string
	Filename  string
	Chunk     Chunk
	ArgNames  []string
	KwNames   []string
	Defaults  []Value
	KwDefault map[string]Value
	Locals    []LocalDebugEntry
	Upvalues  []UpvalueDescriptor

	RequiredArgCount int
}

func (c *CodeObject) IsGenerator() bool   { return c.is(flagCodeIsGenerator) }
func (c *CodeObject) IsCoroutine() bool   { return c.is(flagCodeIsCoroutine) }
func (c *CodeObject) CollectsArgs() bool  { return c.is(flagCodeCollectsArgs) }
func (c *CodeObject) CollectsKwargs() bool { return c.is(flagCodeCollectsKwargs) }

// NativeFn is the Go-ABI shape every built-in function implements: it
// receives the VM (for raising exceptions/allocating), the positional
// argument slice (a method's receiver is args[0]), and whether a kwargs
// dict was merged onto the end of that slice by processComplexArguments
// (see call_dispatch.go).
type NativeFn func(vm *VM, args []Value, hasKw bool) (Value, error)

type NativeFunctionObj struct {
	objHeader
	Name string
	Doc  string
	Fn   NativeFn
}

func (n *NativeFunctionObj) Static() bool      { return n.is(flagFunctionStatic) }
func (n *NativeFunctionObj) ClassMethod() bool { return n.is(flagFunctionClassMethod) }

// ClosureObj wraps a CodeObject with its captured upvalues and the
// globals environment it was defined under. Function attributes (set via
// SET_PROPERTY on a function value) live in Fields.
type ClosureObj struct {
	objHeader
	Code        *CodeObject
	Upvalues    []*UpvalueObj
	Fields      *Table
	Globals     *ModuleObj
	Annotations Value
}

func (c *ClosureObj) Static() bool      { return c.is(flagFunctionStatic) }
func (c *ClosureObj) ClassMethod() bool { return c.is(flagFunctionClassMethod) }

// UpvalueObj is either open (aliasing a slot on some thread's value stack)
// or closed (owning its value outright). Every open upvalue belonging to a
// frame is closed no later than that frame's pop.
type UpvalueObj struct {
	objHeader
	open     bool
	thread   *ThreadState
	stackIdx int
	closed   Value
}

func (u *UpvalueObj) get() Value {
	if u.open {
		return u.thread.stack[u.stackIdx]
	}
	return u.closed
}

func (u *UpvalueObj) set(v Value) {
	if u.open {
		u.thread.stack[u.stackIdx] = v
		return
	}
	u.closed = v
}

// SpecialMethod indexes the cached-slot array every Class carries, one
// slot per dunder the core dispatches directly rather than through a
// generic name lookup.
type SpecialMethod int

const (
	MInit SpecialMethod = iota
	MNew
	MRepr
	MStr
	MGetItem
	MSetItem
	MDelItem
	MLen
	MIter
	MCall
	MContains
	MEnter
	MExit
	MEq
	MLt
	MLe
	MGt
	MGe
	MAdd
	MRAdd
	MIAdd
	MSub
	MRSub
	MISub
	MMul
	MRMul
	MIMul
	MTrueDiv
	MRTrueDiv
	MITrueDiv
	MFloorDiv
	MRFloorDiv
	MIFloorDiv
	MMod
	MRMod
	MIMod
	MPow
	MRPow
	MIPow
	MLShift
	MRLShift
	MILShift
	MRShift
	MRRShift
	MIRShift
	MAnd
	MRAnd
	MIAnd
	MOr
	MROr
	MIOr
	MXor
	MRXor
	MIXor
	MMatMul
	MRMatMul
	MIMatMul
	MNeg
	MPos
	MInvert
	MBool
	MHash
	MGetAttr
	MSetAttr
	MDir
	MFormat
	MGet
	MSet
	MAwait

	numSpecialMethods
)

var specialMethodNames = [numSpecialMethods]string{
	MInit: "__init__", MNew: "__new__", MRepr: "__repr__", MStr: "__str__",
	MGetItem: "__getitem__", MSetItem: "__setitem__", MDelItem: "__delitem__",
	MLen: "__len__", MIter: "__iter__", MCall: "__call__", MContains: "__contains__",
	MEnter: "__enter__", MExit: "__exit__",
	MEq: "__eq__", MLt: "__lt__", MLe: "__le__", MGt: "__gt__", MGe: "__ge__",
	MAdd: "__add__", MRAdd: "__radd__", MIAdd: "__iadd__",
	MSub: "__sub__", MRSub: "__rsub__", MISub: "__isub__",
	MMul: "__mul__", MRMul: "__rmul__", MIMul: "__imul__",
	MTrueDiv: "__truediv__", MRTrueDiv: "__rtruediv__", MITrueDiv: "__itruediv__",
	MFloorDiv: "__floordiv__", MRFloorDiv: "__rfloordiv__", MIFloorDiv: "__ifloordiv__",
	MMod: "__mod__", MRMod: "__rmod__", MIMod: "__imod__",
	MPow: "__pow__", MRPow: "__rpow__", MIPow: "__ipow__",
	MLShift: "__lshift__", MRLShift: "__rlshift__", MILShift: "__ilshift__",
	MRShift: "__rshift__", MRRShift: "__rrshift__", MIRShift: "__irshift__",
	MAnd: "__and__", MRAnd: "__rand__", MIAnd: "__iand__",
	MOr: "__or__", MROr: "__ror__", MIOr: "__ior__",
	MXor: "__xor__", MRXor: "__rxor__", MIXor: "__ixor__",
	MMatMul: "__matmul__", MRMatMul: "__rmatmul__", MIMatMul: "__imatmul__",
	MNeg: "__neg__", MPos: "__pos__", MInvert: "__invert__", MBool: "__bool__",
	MHash: "__hash__", MGetAttr: "__getattr__", MSetAttr: "__setattr__",
	MDir: "__dir__", MFormat: "__format__", MGet: "__get__", MSet: "__set__",
	MAwait: "__await__",
}

// isCacheableEvenIfStatic reports whether a special method found as a
// staticmethod should still populate the cached-slot array; every dunder
// but __new__ is excluded from the cache when defined static. Consulted by
// Class.finalize.
func isCacheableEvenIfStatic(m SpecialMethod) bool { return m == MNew }

// ClassObj is a single-inheritance class: name, optional base, its own
// methods table, a weak subclass set (maintained so setattr on a base can
// cascade cache invalidation down the tree), and the cached special-method
// slots resolved by finalize (class.go).
type ClassObj struct {
	objHeader

	Name       string
	Base       *ClassObj
	Methods    *Table
	Subclasses *subclassSet

	special [numSpecialMethods]Value

	// cache is the direct-mapped attribute-lookup cache keyed by
	// name-hash modulo methodCacheSize; see class.go.
	cache [methodCacheSize]methodCacheEntry

	AllocSize int
	// cacheGeneration is bumped by finalize/clearCache; a cache entry
	// stamped with a stale generation is treated as empty instead of
	// being individually invalidated. See class.go.
	cacheGeneration uint64

	// OnGCScan lets a class with non-standard instance layout (none in
	// this core, but kept for a host's native classes) contribute extra
	// GC roots when the memory manager blackens one of its instances.
	OnGCScan func(inst *Instance, gc *gcState)
}

// Instance is an object of a user-defined (or built-in) class: a class
// pointer plus a per-instance fields table, sized at Class.AllocSize.
type Instance struct {
	objHeader
	Class  *ClassObj
	Fields *Table
}

// BoundMethodObj pairs a receiver value with the callable resolved for it,
// produced by getAttribute (class.go) when a plain function is looked up
// through an instance.
type BoundMethodObj struct {
	objHeader
	Receiver Value
	Callable Value
}

// TupleObj is an immutable sequence; its hash aggregates element hashes
// (computed lazily by hashValue and cached via flagValidHash).
type TupleObj struct {
	objHeader
	Items []Value
}

// BytesObj is an immutable byte sequence distinct from StringObj (it does
// not participate in decoding/interning).
type BytesObj struct {
	objHeader
	Data []byte
}

// ListObj is the mutable growable sequence built by MAKE_LIST/LIST_APPEND.
type ListObj struct {
	objHeader
	Items []Value
}

// DictObj is the mutable mapping built by MAKE_DICT/DICT_SET, and also
// what processComplexArguments (call_dispatch.go) uses to carry a bound **kwargs
// parameter and a call site's keyword arguments.
type DictObj struct {
	objHeader
	Table *Table
}

// SetObj is the mutable hash set built by MAKE_SET/SET_ADD; membership
// only, so it reuses Table but never looks at the stored values.
type SetObj struct {
	objHeader
	Table *Table
}

// ModuleObj backs both regular and package modules. Handle records a
// loaded shared-object library handle so it is never unloaded while the
// module using it is alive.
type ModuleObj struct {
	objHeader
	Fields  *Table
	Handle  any
	Package bool
}

// GeneratorObj is a suspended-frame snapshot: enough of a ThreadState to
// resume execution exactly where a YIELD left off. A coroutine is simply a
// GeneratorObj whose Closure.Code carries flagCodeIsCoroutine.
type GeneratorObj struct {
	objHeader

	Closure      *ClosureObj
	savedStack   []Value
	ip           int
	openUpvalues []*UpvalueObj
	fakeThread   *ThreadState

	Running bool
	Started bool
	Done    bool
	Result  Value
}

func (g *GeneratorObj) IsCoroutine() bool { return g.Closure.Code.IsCoroutine() }
