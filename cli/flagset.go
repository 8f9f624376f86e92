package cli

import (
	"time"
)

// FlagSet is a flag set populated by hand. It lets an action be invoked
// without parsing a command line. A flag set to a value of the wrong type
// reads as the zero value.
//
// - implements cli.Flags
type FlagSet map[string]interface{}

// String implements cli.Flags.
func (fset FlagSet) String(name string) string {
	v, _ := fset[name].(string)
	return v
}

// StringSlice implements cli.Flags. It returns nil if the flag is not set.
func (fset FlagSet) StringSlice(name string) []string {
	v, _ := fset[name].([]string)
	return v
}

// Duration implements cli.Flags.
func (fset FlagSet) Duration(name string) time.Duration {
	v, _ := fset[name].(time.Duration)
	return v
}

// Path implements cli.Flags.
func (fset FlagSet) Path(name string) string {
	return fset.String(name)
}

// Int implements cli.Flags.
func (fset FlagSet) Int(name string) int {
	v, _ := fset[name].(int)
	return v
}

// Uint64 implements cli.Flags. An integer that is not negative is accepted.
func (fset FlagSet) Uint64(name string) uint64 {
	switch v := fset[name].(type) {
	case uint64:
		return v
	case int:
		if v >= 0 {
			return uint64(v)
		}
	}

	return 0
}

// Bool implements cli.Flags.
func (fset FlagSet) Bool(name string) bool {
	v, _ := fset[name].(bool)
	return v
}
