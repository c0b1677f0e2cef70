package ember

// newTestVM builds a VM with sane defaults for tests that don't care about
// environment-sourced configuration, mirroring what InitVM would produce
// for a freshly started process but without touching the environment.
func newTestVM() *VM {
	return NewVM(VMOptions{MaxCallDepth: 1000})
}
