package ember

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveRelativeImport(t *testing.T) {
	vm := newTestVM()

	t.Run("a name with no leading dot is already absolute", func(t *testing.T) {
		got, err := vm.resolveRelative(nil, "os.path")
		require.NoError(t, err)
		assert.Equal(t, "os.path", got)
	})

	t.Run("a single leading dot resolves sibling-relative to the current package", func(t *testing.T) {
		th := vm.currentThread()
		owner := vm.newModule("pkg.sub", false)
		owner.Fields.Set(ObjectValue(vm.intern("__package__")), ObjectValue(vm.intern("pkg")))
		cl := &ClosureObj{Code: &CodeObject{}, Globals: owner, Fields: NewTable(), Annotations: NoneValue()}
		cl.typ = ObjClosure
		th.pushFrame(CallFrame{closure: cl, globalsOwner: ObjectValue(owner)})
		defer th.popFrame()

		got, err := vm.resolveRelative(th, ".sibling")
		require.NoError(t, err)
		assert.Equal(t, "pkg.sibling", got)
	})

	t.Run("two leading dots pop one extra package level", func(t *testing.T) {
		th := vm.currentThread()
		owner := vm.newModule("pkg.sub.mod", false)
		owner.Fields.Set(ObjectValue(vm.intern("__package__")), ObjectValue(vm.intern("pkg.sub")))
		cl := &ClosureObj{Code: &CodeObject{}, Globals: owner, Fields: NewTable(), Annotations: NoneValue()}
		cl.typ = ObjClosure
		th.pushFrame(CallFrame{closure: cl, globalsOwner: ObjectValue(owner)})
		defer th.popFrame()

		got, err := vm.resolveRelative(th, "..cousin")
		require.NoError(t, err)
		assert.Equal(t, "pkg.cousin", got)
	})

	t.Run("popping beyond the top-level package is an ImportError", func(t *testing.T) {
		th := vm.currentThread()
		owner := vm.newModule("pkg", false)
		owner.Fields.Set(ObjectValue(vm.intern("__package__")), ObjectValue(vm.intern("pkg")))
		cl := &ClosureObj{Code: &CodeObject{}, Globals: owner, Fields: NewTable(), Annotations: NoneValue()}
		cl.typ = ObjClosure
		th.pushFrame(CallFrame{closure: cl, globalsOwner: ObjectValue(owner)})
		defer th.popFrame()

		_, err := vm.resolveRelative(th, "...unreachable")
		require.Error(t, err)
	})
}

func TestImportDottedCachesEachPrefix(t *testing.T) {
	vm := newTestVM()
	top := vm.newModule("pkg", true)
	vm.modules.set("pkg", top)
	child := vm.newModule("pkg.mod", false)
	vm.modules.set("pkg.mod", child)

	got, err := vm.importDotted("pkg.mod")
	require.NoError(t, err)
	assert.Same(t, child, got)

	cached, ok := vm.modules.get("pkg")
	require.True(t, ok)
	assert.Same(t, top, cached)
}
