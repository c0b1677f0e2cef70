package ember

import (
	"crypto/rand"
	"encoding/binary"

	"github.com/dustin/go-humanize"
)

// gcInitialThreshold starts the collector at a generous floor so a short-lived
// script never triggers a collection, then grows multiplicatively until it
// crosses gcAdditiveCutoff, after which it grows by a fixed additive step
// instead — unbounded multiplicative growth on a long-running process would
// eventually demand unreasonable headroom between collections.
const (
	gcInitialThreshold = 1 << 20 // 1 MiB
	gcAdditiveCutoff   = 64 << 20
	gcAdditiveStep     = 16 << 20
	gcGrowthFactor     = 2
)

// gcState owns every GC-managed allocation: the intrusive singly-linked
// list of live objects (threaded through objHeader.next), the string
// interner, and the bytes-allocated/next-threshold bookkeeping that decides
// when track triggers a collection.
type gcState struct {
	vm *VM

	head      heapObj
	bytesLive int64
	nextGC    int64

	// strings is keyed by raw Go string content rather than a Table,
	// since Table equality (valuesSame) compares object keys by pointer —
	// exactly wrong for deduplicating by content, which is the interner's
	// whole job.
	strings map[string]*StringObj

	stressMode bool
	logf       func(format string, args ...any)

	collections int

	// nextID is the last allocation-order id handed out by track.
	nextID uint64
}

func newGCState(vm *VM) *gcState {
	return &gcState{
		vm:      vm,
		nextGC:  gcInitialThreshold,
		strings: make(map[string]*StringObj),
	}
}

func initHashSeed() {
	var buf [16]byte
	if _, err := rand.Read(buf[:]); err != nil {
		// crypto/rand failing means the platform's entropy source is
		// broken; fall back to a fixed seed rather than leaving the
		// hash table predictable by accident.
		hashSeed0, hashSeed1 = 0x9e3779b97f4a7c15, 0xbf58476d1ce4e5b9
		return
	}
	hashSeed0 = binary.LittleEndian.Uint64(buf[0:8])
	hashSeed1 = binary.LittleEndian.Uint64(buf[8:16])
}

// track registers a freshly allocated object with the collector and
// triggers a collection first if size pushes bytesLive over nextGC (or
// unconditionally, under stressMode — a testing aid that collects on every
// single allocation to shake out missed roots).
func (gc *gcState) track(o heapObj, size int64) {
	h := o.header()
	gc.nextID++
	h.id = gc.nextID
	h.next = gc.head
	gc.head = o
	gc.bytesLive += size
	if gc.stressMode || gc.bytesLive > gc.nextGC {
		gc.collect()
	}
}

func (gc *gcState) collect() {
	gc.markRoots()
	gc.traceReferences()
	gc.removeWhiteStrings()
	freed := gc.sweep()
	gc.adjustThreshold()
	gc.collections++
	if gc.logf != nil {
		gc.logf("gc: collection %d freed %s, %s live, next at %s",
			gc.collections,
			humanize.Bytes(uint64(freed)),
			humanize.Bytes(uint64(gc.bytesLive)),
			humanize.Bytes(uint64(gc.nextGC)))
	}
}

func (gc *gcState) adjustThreshold() {
	if gc.bytesLive < gcAdditiveCutoff {
		gc.nextGC = gc.bytesLive * gcGrowthFactor
		if gc.nextGC < gcInitialThreshold {
			gc.nextGC = gcInitialThreshold
		}
		return
	}
	gc.nextGC = gc.bytesLive + gcAdditiveStep
}

// markRoots marks every object directly reachable from outside the heap:
// each thread's value stack and frame closures, every module's globals,
// and the VM's own builtins/module-cache tables.
func (gc *gcState) markRoots() {
	for _, th := range gc.vm.threads {
		for _, v := range th.stack {
			gc.markValue(v)
		}
		for i := range th.frames {
			gc.markObject(th.frames[i].closure)
		}
		for _, uv := range th.openUpvalues {
			gc.markObject(uv)
		}
		gc.markValue(th.exception)
		for _, v := range th.scratch {
			gc.markValue(v)
		}
	}
	gc.vm.modules.Each(func(_ string, m *ModuleObj) { gc.markObject(m) })
	if gc.vm.builtins != nil {
		gc.markObject(gc.vm.builtins)
	}
}

func (gc *gcState) markValue(v Value) {
	if v.IsObject() && v.obj != nil {
		gc.markObject(v.obj)
	}
}

// grayStack holds objects marked but not yet blackened, the classic
// tri-color worklist; reused across collections to avoid reallocating.
var grayStack []heapObj

func (gc *gcState) markObject(o heapObj) {
	if o == nil {
		return
	}
	h := o.header()
	if h.marked() {
		return
	}
	h.mark()
	grayStack = append(grayStack, o)
}

func (gc *gcState) traceReferences() {
	for len(grayStack) > 0 {
		o := grayStack[len(grayStack)-1]
		grayStack = grayStack[:len(grayStack)-1]
		gc.blacken(o)
	}
}

// blacken marks every object directly referenced by o. Each object type
// enumerates its own outgoing edges; strings, bytes, and numbers are
// already leaves by the time they reach here.
func (gc *gcState) blacken(o heapObj) {
	switch v := o.(type) {
	case *CodeObject:
		for _, c := range v.Chunk.Constants {
			gc.markValue(c)
		}
	case *ClosureObj:
		gc.markObject(v.Code)
		for _, uv := range v.Upvalues {
			gc.markObject(uv)
		}
		if v.Fields != nil {
			v.Fields.Each(func(k, val Value) { gc.markValue(k); gc.markValue(val) })
		}
		gc.markObject(v.Globals)
		gc.markValue(v.Annotations)
	case *UpvalueObj:
		if !v.open {
			gc.markValue(v.closed)
		}
	case *ClassObj:
		gc.markObject(v.Base)
		v.Methods.Each(func(k, val Value) { gc.markValue(k); gc.markValue(val) })
		for _, s := range v.special {
			gc.markValue(s)
		}
	case *Instance:
		gc.markObject(v.Class)
		v.Fields.Each(func(k, val Value) { gc.markValue(k); gc.markValue(val) })
		if v.Class != nil && v.Class.OnGCScan != nil {
			v.Class.OnGCScan(v, gc)
		}
	case *BoundMethodObj:
		gc.markValue(v.Receiver)
		gc.markValue(v.Callable)
	case *TupleObj:
		for _, item := range v.Items {
			gc.markValue(item)
		}
	case *ListObj:
		for _, item := range v.Items {
			gc.markValue(item)
		}
	case *DictObj:
		v.Table.Each(func(k, val Value) { gc.markValue(k); gc.markValue(val) })
	case *SetObj:
		v.Table.Each(func(k, val Value) { gc.markValue(k) })
	case *ModuleObj:
		v.Fields.Each(func(k, val Value) { gc.markValue(k); gc.markValue(val) })
	case *GeneratorObj:
		gc.markObject(v.Closure)
		for _, sv := range v.savedStack {
			gc.markValue(sv)
		}
		for _, uv := range v.openUpvalues {
			gc.markObject(uv)
		}
		gc.markValue(v.Result)
	}
}

// sweep walks the intrusive live-object list and gives every unmarked,
// non-immortal object a second chance before it is freed: the first sweep
// that finds it unmarked only sets flagSecondChance and keeps it; a later
// sweep that finds it unmarked with the flag already set unlinks it. Every
// marked object is unmarked here in preparation for the next cycle, and
// its flagSecondChance is cleared.
func (gc *gcState) sweep() int64 {
	var freed int64
	var prev heapObj
	cur := gc.head
	for cur != nil {
		h := cur.header()
		if h.marked() {
			h.unmark()
			h.clear(flagSecondChance)
			prev = cur
			cur = h.next
			continue
		}
		if h.immortal() {
			prev = cur
			cur = h.next
			continue
		}
		if !h.is(flagSecondChance) {
			h.set(flagSecondChance)
			prev = cur
			cur = h.next
			continue
		}
		next := h.next
		freed += objectSize(cur)
		if prev == nil {
			gc.head = next
		} else {
			prev.header().next = next
		}
		cur = next
	}
	gc.bytesLive -= freed
	if gc.bytesLive < 0 {
		gc.bytesLive = 0
	}
	return freed
}

// objectSize estimates the heap footprint charged against bytesLive;
// exact down to field granularity isn't necessary, only proportionate.
func objectSize(o heapObj) int64 {
	switch v := o.(type) {
	case *StringObj:
		return int64(40 + len(v.data))
	case *TupleObj:
		return int64(32 + 16*len(v.Items))
	case *BytesObj:
		return int64(32 + len(v.Data))
	case *Instance:
		return 64
	case *ClosureObj:
		return int64(64 + 8*len(v.Upvalues))
	case *ListObj:
		return int64(32 + 16*len(v.Items))
	case *DictObj:
		return int64(32 + 48*v.Table.Count())
	case *SetObj:
		return int64(32 + 32*v.Table.Count())
	default:
		return 48
	}
}

// internString returns the canonical StringObj for s, allocating and
// registering a new one only on first sight. Every subsequent Value built
// from the same text shares the pointer, which is what lets valuesSame and
// Table lookups treat string equality as pointer equality.
func (gc *gcState) internString(s string) *StringObj {
	if existing, ok := gc.strings[s]; ok {
		return existing
	}
	obj := &StringObj{data: []byte(s), runes: len([]rune(s))}
	obj.typ = ObjString
	if obj.runes != len(obj.data) {
		obj.encoding = EncodingUCS4
	}
	obj.hash = hashStringBytes(obj.data)
	obj.next = gc.head
	gc.head = obj
	gc.strings[s] = obj
	gc.bytesLive += objectSize(obj)
	return obj
}

// removeWhiteStrings drops interner entries whose StringObj failed to be
// marked during the current trace, so a string that became unreachable
// doesn't stay interned (and therefore alive) forever.
func (gc *gcState) removeWhiteStrings() {
	for k, v := range gc.strings {
		if !v.header().marked() {
			delete(gc.strings, k)
		}
	}
}
