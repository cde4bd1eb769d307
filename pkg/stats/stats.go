// Package stats runs the installed buildcache binary to print its
// configuration and to read or reset its hit/miss counters.
package stats

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
)

// ImpersonateEnv makes buildcache act as the compiler it names. It is removed
// from the probe's environment so the probe always talks to buildcache itself.
const ImpersonateEnv = "BUILDCACHE_IMPERSONATE"

// Unknown is stored in a Stats field whose label was not found.
const Unknown = -1

// Labels of the fields read from the `buildcache -s` report.
const (
	EntriesLabel = "Entries in cache"
	MissesLabel  = "Misses"
)

// Stats holds the counters the save decision is based on.
type Stats struct {
	Entries int64
	Misses  int64
}

// Known reports whether both counters were found in the report.
func (s Stats) Known() bool {
	return s.Entries != Unknown && s.Misses != Unknown
}

func (s Stats) String() string {
	return fmt.Sprintf("entries=%d misses=%d", s.Entries, s.Misses)
}

var (
	entriesPattern = labelPattern(EntriesLabel)
	missesPattern  = labelPattern(MissesLabel)
)

func labelPattern(label string) *regexp.Regexp {
	return regexp.MustCompile(`(?m)^  ` + regexp.QuoteMeta(label) + `:[ \t]*(\d+)`)
}

// Parse extracts Stats from a status report. Missing or malformed fields are
// reported as Unknown; Parse never fails.
func Parse(report string) Stats {
	return Stats{
		Entries: field(entriesPattern, report),
		Misses:  field(missesPattern, report),
	}
}

func field(re *regexp.Regexp, report string) int64 {
	m := re.FindStringSubmatch(report)
	if m == nil {
		return Unknown
	}
	n, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return Unknown
	}
	return n
}

// Probe invokes the buildcache binary.
type Probe struct {
	// Binary is the command to run. Defaults to "buildcache" resolved from PATH.
	Binary string
	// Env is the base environment for the child. Defaults to os.Environ().
	Env []string
	// Stdout receives the binary's report output. Defaults to io.Discard.
	Stdout io.Writer
}

// ReadStats runs `buildcache -s`, echoes the report to p.Stdout and parses it.
// An error is returned only when the binary could not be run.
func (p *Probe) ReadStats(ctx context.Context) (Stats, error) {
	out, err := p.run(ctx, "-s")
	if err != nil {
		return Stats{Entries: Unknown, Misses: Unknown}, err
	}
	return Parse(string(out)), nil
}

// ZeroStats resets the hit/miss counters.
func (p *Probe) ZeroStats(ctx context.Context) error {
	_, err := p.run(ctx, "-z")
	return err
}

// PrintConfig echoes the binary's effective configuration.
func (p *Probe) PrintConfig(ctx context.Context) error {
	_, err := p.run(ctx, "-c")
	return err
}

func (p *Probe) run(ctx context.Context, arg string) ([]byte, error) {
	bin := p.Binary
	if bin == "" {
		bin = "buildcache"
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, bin, arg)
	cmd.Env = withoutVar(p.env(), ImpersonateEnv)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("%s %s: %w: %s", bin, arg, err, msg)
		}
		return nil, fmt.Errorf("%s %s: %w", bin, arg, err)
	}

	if p.Stdout != nil {
		if _, err := p.Stdout.Write(stdout.Bytes()); err != nil {
			return nil, fmt.Errorf("failed to echo %s %s output: %w", bin, arg, err)
		}
	}
	return stdout.Bytes(), nil
}

func (p *Probe) env() []string {
	if p.Env != nil {
		return p.Env
	}
	return os.Environ()
}

func withoutVar(env []string, name string) []string {
	out := make([]string, 0, len(env))
	prefix := name + "="
	for _, kv := range env {
		if strings.HasPrefix(kv, prefix) {
			continue
		}
		out = append(out, kv)
	}
	return out
}
