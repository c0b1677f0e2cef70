package ember

import (
	"testing"

	"github.com/kylelemons/godebug/pretty"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrackLinksEveryAllocationIntoTheLiveList(t *testing.T) {
	vm := newTestVM()
	before := vm.gc.bytesLive

	cls := newTestClass(vm, "Point", nil)
	inst := &Instance{Class: cls, Fields: NewTable()}
	inst.typ = ObjInstance
	vm.gc.track(inst, objectSize(inst))

	assert.Equal(t, vm.gc.head, heapObj(inst), "the most recently tracked object must sit at gc.head")
	assert.Greater(t, vm.gc.bytesLive, before)
}

func TestCollectSweepsUnreachableObjectsButKeepsRoots(t *testing.T) {
	vm := newTestVM()
	th := vm.currentThread()

	cls := newTestClass(vm, "Boxed", nil)
	reachable := &Instance{Class: cls, Fields: NewTable()}
	reachable.typ = ObjInstance
	vm.gc.track(reachable, objectSize(reachable))
	th.push(ObjectValue(reachable))

	garbage := &Instance{Class: cls, Fields: NewTable()}
	garbage.typ = ObjInstance
	vm.gc.track(garbage, objectSize(garbage))

	// The first collection only flags the unreachable object for its
	// second chance; the second one frees it.
	vm.gc.collect()
	vm.gc.collect()

	assert.True(t, reachable.header().marked() == false, "sweep unmarks survivors for the next cycle")
	found := false
	for cur := vm.gc.head; cur != nil; cur = cur.header().next {
		if cur == heapObj(reachable) {
			found = true
		}
		require.NotSame(t, garbage, cur, "an object with no root or reference should not survive collect()")
	}
	assert.True(t, found, "an object referenced from a thread's stack must survive collect()")

	th.pop()
}

func TestImmortalBootstrapClassesSurviveCollection(t *testing.T) {
	vm := newTestVM()
	vm.gc.collect()

	found := false
	for cur := vm.gc.head; cur != nil; cur = cur.header().next {
		if cur == heapObj(vm.exc.TypeError) {
			found = true
			break
		}
	}
	assert.True(t, found, "TypeError's ClassObj is immortal and must never be swept")
}

func TestAdjustThresholdGrowsMultiplicativelyThenAdditively(t *testing.T) {
	gc := &gcState{}

	gc.bytesLive = 1 << 10
	gc.adjustThreshold()
	assert.Equal(t, int64(gcInitialThreshold), gc.nextGC, "small live sets floor at the initial threshold")

	gc.bytesLive = 32 << 20
	gc.adjustThreshold()
	assert.Equal(t, gc.bytesLive*gcGrowthFactor, gc.nextGC)

	gc.bytesLive = 100 << 20
	gc.adjustThreshold()
	assert.Equal(t, gc.bytesLive+gcAdditiveStep, gc.nextGC)
}

func TestInternStringDeduplicatesByContent(t *testing.T) {
	vm := newTestVM()
	a := vm.intern("shared")
	b := vm.intern("shared")
	assert.Same(t, a, b, "interning the same text twice must return the same StringObj")

	before := &struct{ Live int64 }{vm.gc.bytesLive}
	vm.intern("shared")
	after := &struct{ Live int64 }{vm.gc.bytesLive}
	if diff := pretty.Compare(before, after); diff != "" {
		t.Fatalf("re-interning an already-seen string must not grow bytesLive, got diff:\n%s", diff)
	}
}
