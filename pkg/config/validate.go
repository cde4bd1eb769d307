package config

import (
	"fmt"
	"path/filepath"
)

// Validate checks the backend settings.
func (c Config) Validate() error {
	switch c.Backend.Kind {
	case BackendDisk:
		if c.Backend.Disk.Dir == "" {
			return fmt.Errorf("disk backend: directory: %w", ErrMissing)
		}
	case BackendS3:
		if c.Backend.S3.Bucket == "" {
			return fmt.Errorf("s3 backend: set the s3_bucket input: %w", ErrMissing)
		}
	case BackendRedis:
		if c.Backend.Redis.Addr == "" {
			return fmt.Errorf("redis backend: set the redis_addr input: %w", ErrMissing)
		}
	default:
		return fmt.Errorf("unknown backend %q (want %s, %s or %s)", c.Backend.Kind, BackendDisk, BackendS3, BackendRedis)
	}
	return nil
}

// RequireToken returns the access token used to query releases.
func (c Config) RequireToken() (string, error) {
	if c.AccessToken == "" {
		return "", fmt.Errorf("unable to get an access token, set the access_token input or GITHUB_TOKEN: %w", ErrMissing)
	}
	return c.AccessToken, nil
}

// RequireInstallDir returns the directory buildcache is installed into.
func (c Config) RequireInstallDir() (string, error) {
	if c.InstallDir == "" {
		return "", fmt.Errorf("unable to determine the install directory, set the install_dir input or GITHUB_WORKSPACE: %w", ErrMissing)
	}
	return filepath.Abs(c.InstallDir)
}

// ResolveCacheDir returns BUILDCACHE_DIR when the environment has it, and
// <install dir>/.buildcache otherwise.
func (c Config) ResolveCacheDir() (string, error) {
	if c.CacheDir != "" {
		return filepath.Abs(c.CacheDir)
	}
	installDir, err := c.RequireInstallDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(installDir, CacheDirName), nil
}

// LogFilePath resolves the buildcache log file against cacheDir. An absolute
// LogFile is returned unchanged.
func (c Config) LogFilePath(cacheDir string) string {
	if filepath.IsAbs(c.LogFile) {
		return c.LogFile
	}
	return filepath.Join(cacheDir, c.LogFile)
}
