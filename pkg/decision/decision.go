// Package decision decides, from post-build statistics, whether the cache
// directory is worth persisting.
package decision

import "github.com/richardartoul/buildcache-action/pkg/stats"

// Reason explains why a save was skipped.
type Reason int

const (
	// None is the reason attached to Proceed.
	None Reason = iota
	// Disabled means saving was turned off with save_cache=false.
	Disabled
	// Empty means the cache holds no entries.
	Empty
	// Unmodified means the build produced no misses, so the cache content is
	// what was restored.
	Unmodified
)

func (r Reason) String() string {
	switch r {
	case Disabled:
		return "disabled"
	case Empty:
		return "empty"
	case Unmodified:
		return "unmodified"
	default:
		return "none"
	}
}

// Message is the log line emitted for a skip. Other tooling greps for these
// exact strings.
func (r Reason) Message() string {
	switch r {
	case Disabled:
		return "buildcache: not saving cache."
	case Empty:
		return "buildcache: not saving empty cache."
	case Unmodified:
		return "buildcache: not saving unmodified cache."
	default:
		return ""
	}
}

// Outcome is the result of Decide.
type Outcome struct {
	Save   bool
	Reason Reason
}

// Proceed is the outcome that saves the cache.
var Proceed = Outcome{Save: true, Reason: None}

// Skip returns an outcome that does not save, for reason r.
func Skip(r Reason) Outcome {
	return Outcome{Save: false, Reason: r}
}

func (o Outcome) String() string {
	if o.Save {
		return "proceed"
	}
	return "skip(" + o.Reason.String() + ")"
}

// Decide applies the save policy. The first matching rule wins:
//
//  1. saveCacheFlag == "false" skips (Disabled)
//  2. no entries skips (Empty)
//  3. no misses skips (Unmodified)
//  4. otherwise the cache is saved
//
// Unknown counters (stats.Unknown) never equal zero, so a report that could
// not be parsed results in a save.
func Decide(s stats.Stats, saveCacheFlag string) Outcome {
	switch {
	case saveCacheFlag == "false":
		return Skip(Disabled)
	case s.Entries == 0:
		return Skip(Empty)
	case s.Misses == 0:
		return Skip(Unmodified)
	default:
		return Proceed
	}
}
