package ghactions

import (
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
)

// Runner exports variables and PATH entries to later steps of the job.
type Runner struct {
	// EnvFile is the file named by GITHUB_ENV. Empty means only the current
	// process sees exported variables.
	EnvFile string
	// PathFile is the file named by GITHUB_PATH.
	PathFile string

	setenv func(key, value string) error
	getenv func(key string) string
}

// NewRunner creates a Runner writing to the given command files.
func NewRunner(envFile, pathFile string) *Runner {
	return &Runner{
		EnvFile:  envFile,
		PathFile: pathFile,
		setenv:   os.Setenv,
		getenv:   os.Getenv,
	}
}

// NewRunnerFromEnv creates a Runner from GITHUB_ENV and GITHUB_PATH.
func NewRunnerFromEnv(lookup LookupFunc) *Runner {
	envFile, _ := lookup("GITHUB_ENV")
	pathFile, _ := lookup("GITHUB_PATH")
	return NewRunner(envFile, pathFile)
}

// ExportVariable makes name=value visible to this process and to every
// later step.
func (r *Runner) ExportVariable(name, value string) error {
	if err := r.setenv(name, value); err != nil {
		return fmt.Errorf("failed to set %s: %w", name, err)
	}
	if r.EnvFile == "" {
		return nil
	}

	delimiter := "ghadelimiter_" + uuid.NewString()
	if strings.Contains(name, delimiter) || strings.Contains(value, delimiter) {
		return fmt.Errorf("unexpected input: %s contains the delimiter %q", name, delimiter)
	}
	return appendFile(r.EnvFile, fmt.Sprintf("%s<<%s\n%s\n%s\n", name, delimiter, value, delimiter))
}

// AddPath prepends dir to PATH for this process and every later step.
func (r *Runner) AddPath(dir string) error {
	path := dir
	if current := r.getenv("PATH"); current != "" {
		path = dir + string(os.PathListSeparator) + current
	}
	if err := r.setenv("PATH", path); err != nil {
		return fmt.Errorf("failed to update PATH: %w", err)
	}
	if r.PathFile == "" {
		return nil
	}
	return appendFile(r.PathFile, dir+"\n")
}

func appendFile(path, content string) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	if _, err := f.WriteString(content); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}
