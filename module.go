package ember

import (
	"fmt"
	"os"
	"path/filepath"
	"plugin"
	"runtime"
	"strings"

	"github.com/dolthub/swiss"
)

// moduleCache is the process-wide table the loader memoizes resolved
// modules into, keyed by the dotted name they were imported as (§4.6:
// "caching in a process-wide table"). Backed by a swiss-table map rather
// than this core's own open-addressed Table, the same way Class.Subclasses
// is (class.go) — neither needs Value-keyed lookup, only Go string keys.
type moduleCache struct {
	m *swiss.Map[string, *ModuleObj]
}

func newModuleCache() *moduleCache {
	return &moduleCache{m: swiss.NewMap[string, *ModuleObj](8)}
}

func (c *moduleCache) get(name string) (*ModuleObj, bool) { return c.m.Get(name) }
func (c *moduleCache) set(name string, m *ModuleObj)       { c.m.Put(name, m) }

func (c *moduleCache) Each(fn func(name string, m *ModuleObj)) {
	c.m.Iter(func(name string, m *ModuleObj) bool {
		fn(name, m)
		return false
	})
}

// sourceExtension and sharedObjectExtension name the two on-disk shapes the
// loader recognizes, per §4.6's "src-extension"/"shared-object-extension".
// The shared-object suffix follows the host platform's native extension
// since it is opened with Go's own plugin loader.
const sourceExtension = ".ember"

func sharedObjectExtension() string {
	switch runtime.GOOS {
	case "darwin":
		return ".dylib"
	case "windows":
		return ".dll"
	default:
		return ".so"
	}
}

// ModuleOnload is the Go-ABI shape a native extension module exports as
// module_onload_<name>, per §6's shared-object module ABI.
type ModuleOnload func(vm *VM, runAs string) (*ModuleObj, error)

// importModule implements OpImport's resolution (§4.6): split a dotted or
// relative name, resolve each component against the module cache and the
// search path, and return the module the import statement binds.
func (vm *VM) importModule(th *ThreadState, name string) (*ModuleObj, error) {
	resolved, err := vm.resolveRelative(th, name)
	if err != nil {
		return nil, err
	}
	mod, err := vm.importDotted(resolved)
	if err != nil {
		return nil, err
	}
	if !mod.Package {
		return mod, nil
	}
	// __main__ handling (§4.6): importing a package as __main__ also
	// imports package.__main__ inside it, once the package itself loaded.
	if name == "__main__" {
		if _, err := vm.importDotted(resolved + ".__main__"); err != nil {
			return nil, err
		}
	}
	return mod, nil
}

// resolveRelative turns a leading-dots name into an absolute dotted name,
// by popping one package component per dot beyond the first off the
// current module's __package__ (§4.6). A name with no leading dot is
// already absolute and is returned unchanged.
func (vm *VM) resolveRelative(th *ThreadState, name string) (string, error) {
	if len(name) == 0 || name[0] != '.' {
		return name, nil
	}
	dots := 0
	for dots < len(name) && name[dots] == '.' {
		dots++
	}
	remainder := name[dots:]

	pkg := vm.currentPackage(th)
	parts := []string{}
	if pkg != "" {
		parts = strings.Split(pkg, ".")
	}
	popCount := dots - 1
	if popCount > len(parts) {
		return "", vm.newImportError("attempted relative import beyond top-level package")
	}
	parts = parts[:len(parts)-popCount]
	if remainder != "" {
		parts = append(parts, remainder)
	}
	return strings.Join(parts, "."), nil
}

// currentPackage reads __package__ off the module owning the currently
// executing frame, the base a relative import resolves against.
func (vm *VM) currentPackage(th *ThreadState) string {
	if th == nil || th.depth() == 0 {
		return ""
	}
	owner, ok := th.topFrame().globalsOwner.obj.(*ModuleObj)
	if !ok {
		return ""
	}
	v, ok := owner.Fields.Get(ObjectValue(vm.intern("__package__")))
	if !ok || v.IsNone() {
		return ""
	}
	s, ok := v.obj.(*StringObj)
	if !ok {
		return ""
	}
	return s.String()
}

// importDotted implements §4.6's dotted-name walk: resolve the left-most
// unresolved segment as a package one level at a time, attaching each
// child module onto its parent's fields as it goes, finally returning the
// full dotted module (matching CPython's "import a.b.c binds a, but
// a.b.c is what a.b.c's own cache entry names").
func (vm *VM) importDotted(dotted string) (*ModuleObj, error) {
	if mod, ok := vm.modules.get(dotted); ok {
		return mod, nil
	}
	segments := strings.Split(dotted, ".")
	var parent *ModuleObj
	runningName := ""
	for i, seg := range segments {
		if runningName == "" {
			runningName = seg
		} else {
			runningName = runningName + "." + seg
		}
		if mod, ok := vm.modules.get(runningName); ok {
			parent = mod
			continue
		}
		if i > 0 && parent != nil && !parent.Package {
			// only a package can have children attached beneath it; a
			// plain module can be the final (rightmost) segment only.
			return nil, vm.newImportError("%q is not a package", strings.Join(segments[:i], "."))
		}
		mod, err := vm.resolveSingle(seg, runningName, parent)
		if err != nil {
			return nil, err
		}
		vm.modules.set(runningName, mod)
		if parent != nil {
			parent.Fields.Set(ObjectValue(vm.intern(seg)), ObjectValue(mod))
		}
		parent = mod
	}
	return parent, nil
}

// resolveSingle implements §4.6's per-segment resolution algorithm: walk
// modulePaths trying, in order, a package directory, a native extension,
// then a plain source file.
func (vm *VM) resolveSingle(name, runAs string, parentPkg *ModuleObj) (*ModuleObj, error) {
	for _, dir := range vm.config.ModulePaths() {
		pkgInit := filepath.Join(dir, name, "__init__"+sourceExtension)
		if fileExists(pkgInit) {
			mod := vm.newModule(runAs, true)
			mod.Fields.Set(ObjectValue(vm.intern("__package__")), ObjectValue(vm.intern(runAs)))
			if err := vm.execModuleFile(mod, pkgInit, pkgInit); err != nil {
				return nil, err
			}
			return mod, nil
		}

		soPath := filepath.Join(dir, name+sharedObjectExtension())
		if fileExists(soPath) {
			mod, err := vm.loadNativeModule(soPath, name, runAs)
			if err != nil {
				return nil, err
			}
			return mod, nil
		}

		srcPath := filepath.Join(dir, name+sourceExtension)
		if fileExists(srcPath) {
			mod := vm.newModule(runAs, false)
			if parentPkg != nil {
				parentName, _ := parentPkg.Fields.Get(ObjectValue(vm.intern("__name__")))
				if s, ok := parentName.obj.(*StringObj); ok {
					mod.Fields.Set(ObjectValue(vm.intern("__package__")), ObjectValue(vm.intern(s.String())))
				}
			}
			if err := vm.execModuleFile(mod, srcPath, srcPath); err != nil {
				return nil, err
			}
			return mod, nil
		}
	}
	return nil, vm.newImportError("no module named %q", name)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// execModuleFile compiles (via the host-registered SourceCompiler) and
// runs filename's code object against module's own globals table, the
// "compile and execute that file in the new module" step of §4.6.
func (vm *VM) execModuleFile(mod *ModuleObj, path, filename string) error {
	if vm.sourceCompiler == nil {
		return vm.newImportError("no source compiler registered to load %q", filename)
	}
	code, err := vm.sourceCompiler(vm, path, filename)
	if err != nil {
		return vm.newImportError("compiling %q: %v", filename, err)
	}
	_, err = vm.runModule(code, mod)
	return err
}

// loadNativeModule implements §4.6/§6's shared-object ABI: open the shared
// object, resolve module_onload_<name>, call it, and keep the plugin
// handle alive on the returned module for as long as the module is.
func (vm *VM) loadNativeModule(path, name, runAs string) (*ModuleObj, error) {
	p, err := plugin.Open(path)
	if err != nil {
		return nil, vm.newImportError("loading native module %q: %v", path, err)
	}
	sym, err := p.Lookup(fmt.Sprintf("module_onload_%s", name))
	if err != nil {
		return nil, vm.newImportError("native module %q missing module_onload_%s: %v", path, name, err)
	}
	onload, ok := sym.(func(*VM, string) (*ModuleObj, error))
	if !ok {
		return nil, vm.newImportError("native module %q: module_onload_%s has the wrong signature", path, name)
	}
	mod, err := onload(vm, runAs)
	if err != nil {
		return nil, err
	}
	mod.Handle = p
	return mod, nil
}

// StartModule is the host-facing §6 entrypoint: resolve and fully import
// name as a top-level module, returning it without requiring an enclosing
// IMPORT bytecode instruction.
func (vm *VM) StartModule(name string) (*ModuleObj, error) {
	return vm.importModule(vm.currentThread(), name)
}

// RunFile is §6's runfile(filename, displayName) -> value: compile and
// execute a standalone file as the __main__ module, the entrypoint a CLI
// host (out of scope) drives.
func (vm *VM) RunFile(filename, displayName string) (Value, error) {
	if vm.sourceCompiler == nil {
		return Value{}, vm.newImportError("no source compiler registered to run %q", filename)
	}
	code, err := vm.sourceCompiler(vm, filename, displayName)
	if err != nil {
		return Value{}, vm.newImportError("compiling %q: %v", filename, err)
	}
	return vm.Interpret(code, displayName)
}
