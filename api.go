// Package ember implements a register-free, stack-based bytecode VM core:
// value representation, hash table, garbage collector, class/method-cache
// model, interpreter dispatch loop, call machinery, exception unwinder,
// generator/coroutine suspension, and module loader. Compiling source text
// into a CodeObject is an external collaborator's job; this package only
// ever consumes one.
package ember

// Run is the single-shot convenience entrypoint a small host (a `runfile`-
// style CLI, say) reaches for instead of wiring SetSourceCompiler and
// RunFile itself: it installs compiler as the VM's source compiler (it
// stays installed after Run returns), then compiles and executes filename
// as __main__.
func Run(vm *VM, compiler SourceCompiler, filename, displayName string) (Value, error) {
	vm.SetSourceCompiler(compiler)
	return vm.RunFile(filename, displayName)
}
