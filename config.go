package ember

import (
	"fmt"

	"github.com/caarlos0/env/v6"
)

// VMOptions is parsed once from the process environment at startup via
// caarlos0/env, then copied field-by-field into the runtime Config so the
// rest of the interpreter never has to know these came from the
// environment rather than a host-supplied struct.
type VMOptions struct {
	ModulePath   []string `env:"EMBER_MODULE_PATH" envSeparator:":"`
	GCStress     bool     `env:"EMBER_GC_STRESS" envDefault:"false"`
	MaxCallDepth int      `env:"EMBER_MAX_CALL_DEPTH" envDefault:"1000"`
	TraceInstr   bool     `env:"EMBER_TRACE" envDefault:"false"`
}

func loadVMOptions() (VMOptions, error) {
	var opts VMOptions
	if err := env.Parse(&opts); err != nil {
		return VMOptions{}, fmt.Errorf("ember: parsing environment options: %w", err)
	}
	return opts, nil
}

// Config is the runtime's settled-down view of VMOptions: a small, fixed
// set of statically-typed fields rather than a dynamically-typed,
// string-keyed map. The VM's settings don't grow at runtime the way a
// grammar file can declare new compiler directives, so there's no need
// for a per-entry type tag or union to track what each path holds.
type Config struct {
	GCStress          bool
	MaxCallDepth      int
	TraceInstructions bool
	ModulePath        []string
}

// NewConfig creates a Config seeded with the defaults every VM needs, then
// overridden by opts (itself sourced from the environment by default).
func NewConfig(opts VMOptions) *Config {
	paths := opts.ModulePath
	if len(paths) == 0 {
		paths = []string{"."}
	}
	return &Config{
		GCStress:          opts.GCStress,
		MaxCallDepth:      opts.MaxCallDepth,
		TraceInstructions: opts.TraceInstr,
		ModulePath:        paths,
	}
}

func (c *Config) ModulePaths() []string { return c.ModulePath }
