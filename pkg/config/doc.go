// Package config builds the immutable configuration for one restore or save
// invocation.
//
// Values are layered, later layers winning:
//
//  1. Default()
//  2. an optional TOML file named by the config_file input, holding the
//     backend sections
//  3. action inputs (INPUT_* variables) and the runner environment
//
// CLI flags are applied on top by the command layer. Nothing outside this
// package reads the process environment for configuration; the Config value is
// passed to each component explicitly.
//
// # Config file
//
//	backend = "s3"
//
//	[s3]
//	bucket = "ci-caches"
//	region = "eu-west-1"
//	prefix = "buildcache/"
//
//	[redis]
//	addr = "localhost:6379"
//	ttl = "168h"
package config
