// Package ghactions talks to the CI runner the way GitHub Actions expects:
// inputs arrive as INPUT_* environment variables, exported variables and PATH
// entries are appended to the files named by GITHUB_ENV and GITHUB_PATH, and
// log output uses workflow commands (::warning::, ::error::, ::debug::).
//
// The package holds no global state. Callers pass a lookup function for
// reading the environment, which keeps configuration loading testable.
package ghactions
