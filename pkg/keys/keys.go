// Package keys derives the cache key family used to restore and save the
// buildcache directory.
//
// Remote cache entries are immutable, so every save is written under a key
// that has never been used before (Unique). Restores look that key up first,
// which always misses, and then fall back to the newest entry whose key starts
// with WithInput.
package keys

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Base is the namespace shared by every cache entry this tool writes.
const Base = "buildcache"

// timestampLayout matches JavaScript's Date.prototype.toISOString, which keeps
// keys written by earlier versions of the action sortable alongside ours.
const timestampLayout = "2006-01-02T15:04:05.000Z"

// Family is the three-tier key set derived for a single restore or save.
type Family struct {
	// Base is the tool namespace.
	Base string
	// WithInput is Base scoped by the user supplied token. It is the
	// restore-fallback key and is stable across runs.
	WithInput string
	// Unique is WithInput plus a timestamp. It is only ever written.
	Unique string
}

// Derive computes the key family for token at time now.
func Derive(token string, now time.Time) Family {
	withInput := Base
	if token = strings.TrimSpace(token); token != "" {
		withInput = Base + "-" + token
	}
	return Family{
		Base:      Base,
		WithInput: withInput,
		Unique:    withInput + "-" + now.UTC().Format(timestampLayout),
	}
}

// Deriver derives key families from a clock and an optional entropy source.
// The zero value uses the wall clock and no entropy.
type Deriver struct {
	Now     func() time.Time
	Entropy func() string
}

// Derive returns the key family for token. When d.Entropy is set, its result
// is appended to Unique so that two saves within the same millisecond still
// produce distinct keys.
func (d Deriver) Derive(token string) Family {
	now := time.Now
	if d.Now != nil {
		now = d.Now
	}
	f := Derive(token, now())
	if d.Entropy != nil {
		if suffix := d.Entropy(); suffix != "" {
			f.Unique += "-" + suffix
		}
	}
	return f
}

// UUIDEntropy returns the first eight hex characters of a random UUID.
func UUIDEntropy() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}
