package ghactions

import (
	"os"
	"strings"
)

// LookupFunc reads an environment variable. os.LookupEnv satisfies it.
type LookupFunc func(key string) (string, bool)

// MapLookup returns a LookupFunc over a fixed map.
func MapLookup(env map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}
}

// OSLookup reads the process environment.
var OSLookup LookupFunc = os.LookupEnv

// InputEnv returns the environment variable an action input is passed in.
func InputEnv(name string) string {
	return "INPUT_" + strings.ToUpper(strings.ReplaceAll(name, " ", "_"))
}

// Input returns the trimmed value of the named action input, or "".
func Input(lookup LookupFunc, name string) string {
	v, _ := lookup(InputEnv(name))
	return strings.TrimSpace(v)
}

// Env returns the environment variable key, or def when it's unset or empty.
func Env(lookup LookupFunc, key, def string) string {
	if v, ok := lookup(key); ok && v != "" {
		return v
	}
	return def
}

// IsDebug reports whether the runner has step debug logging enabled.
func IsDebug(lookup LookupFunc) bool {
	v, _ := lookup("RUNNER_DEBUG")
	return v == "1"
}
