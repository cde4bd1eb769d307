package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/richardartoul/buildcache-action/pkg/ghactions"
)

// ErrMissing is wrapped by errors for required settings that are absent.
var ErrMissing = errors.New("missing required configuration")

// Backend kinds.
const (
	BackendDisk  = "disk"
	BackendS3    = "s3"
	BackendRedis = "redis"
)

// Defaults exported to the buildcache binary when the environment has none.
const (
	DefaultMaxCacheSize = "500000000"
	DefaultDebug        = "2"
	DefaultLogFile      = "buildcache.log"
	// CacheDirName is the cache directory created inside the install dir.
	CacheDirName = ".buildcache"
)

// Config holds everything one invocation needs.
type Config struct {
	AccessToken string
	// Tag is the buildcache release to install; "" or "latest" picks the newest.
	Tag string
	// CacheKey scopes the restore-fallback key.
	CacheKey   string
	InstallDir string
	// CacheDir is BUILDCACHE_DIR as found in the environment. Restore derives
	// it from InstallDir when unset; save reads back what restore exported.
	CacheDir string
	// SaveCache is the raw save_cache input; "false" disables saving.
	SaveCache    string
	ZeroStats    bool
	UploadLog    bool
	UniqueSuffix bool

	MaxCacheSize string
	Debug        string
	LogFile      string

	// APIURL and ServerURL locate the GitHub API and web host releases are
	// fetched from. Empty means github.com.
	APIURL    string
	ServerURL string

	// LockDir holds the lock files that serialize access to the cache dir.
	LockDir string
	Verbose bool

	Backend BackendConfig
}

// BackendConfig selects and configures the remote cache store.
type BackendConfig struct {
	Kind  string      `toml:"backend"`
	Disk  DiskConfig  `toml:"disk"`
	S3    S3Config    `toml:"s3"`
	Redis RedisConfig `toml:"redis"`
}

// DiskConfig configures the directory store.
type DiskConfig struct {
	Dir string `toml:"dir"`
}

// S3Config configures the S3 store.
type S3Config struct {
	Bucket   string `toml:"bucket"`
	Region   string `toml:"region"`
	Prefix   string `toml:"prefix"`
	Endpoint string `toml:"endpoint"`
}

// RedisConfig configures the Redis store.
type RedisConfig struct {
	Addr     string        `toml:"addr"`
	Password string        `toml:"password"`
	DB       int           `toml:"db"`
	Prefix   string        `toml:"prefix"`
	TTL      time.Duration `toml:"ttl"`
}

// Default returns the configuration before any file or input is applied.
// lookup is consulted only for runner directories.
func Default(lookup ghactions.LookupFunc) Config {
	return Config{
		MaxCacheSize: DefaultMaxCacheSize,
		Debug:        DefaultDebug,
		LogFile:      DefaultLogFile,
		LockDir:      ghactions.Env(lookup, "RUNNER_TEMP", os.TempDir()),
		Backend: BackendConfig{
			Kind: BackendDisk,
			Disk: DiskConfig{Dir: defaultDiskDir(lookup)},
			Redis: RedisConfig{
				Prefix: "buildcache:",
			},
		},
	}
}

func defaultDiskDir(lookup ghactions.LookupFunc) string {
	if dir := ghactions.Env(lookup, "RUNNER_TOOL_CACHE", ""); dir != "" {
		return filepath.Join(dir, "buildcache-action", "store")
	}
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, "buildcache-action", "store")
	}
	return filepath.Join(os.TempDir(), "buildcache-action", "store")
}

// Load builds a Config from the config file (if the config_file input names
// one), the action inputs and the runner environment.
func Load(lookup ghactions.LookupFunc) (Config, error) {
	cfg := Default(lookup)

	if file := ghactions.Input(lookup, "config_file"); file != "" {
		if err := LoadFile(file, &cfg.Backend); err != nil {
			return Config{}, err
		}
	}

	input := func(name string) string { return ghactions.Input(lookup, name) }

	cfg.AccessToken = input("access_token")
	if cfg.AccessToken == "" {
		cfg.AccessToken = ghactions.Env(lookup, "GITHUB_TOKEN", "")
	}
	cfg.Tag = input("buildcache_tag")
	cfg.CacheKey = input("cache_key")
	if cfg.CacheKey == "" {
		// Deprecated alias.
		cfg.CacheKey = input("key")
	}
	cfg.InstallDir = input("install_dir")
	if cfg.InstallDir == "" {
		cfg.InstallDir = ghactions.Env(lookup, "GITHUB_WORKSPACE", "")
	}
	cfg.SaveCache = input("save_cache")
	cfg.ZeroStats = input("zero_buildcache_stats") == "true"
	cfg.UploadLog = input("upload_buildcache_log") == "true"
	cfg.UniqueSuffix = input("unique_suffix") == "true"
	cfg.Verbose = ghactions.IsDebug(lookup)
	cfg.APIURL = ghactions.Env(lookup, "GITHUB_API_URL", "")
	cfg.ServerURL = ghactions.Env(lookup, "GITHUB_SERVER_URL", "")

	cfg.CacheDir = ghactions.Env(lookup, "BUILDCACHE_DIR", "")
	cfg.MaxCacheSize = ghactions.Env(lookup, "BUILDCACHE_MAX_CACHE_SIZE", cfg.MaxCacheSize)
	cfg.Debug = ghactions.Env(lookup, "BUILDCACHE_DEBUG", cfg.Debug)
	cfg.LogFile = ghactions.Env(lookup, "BUILDCACHE_LOG_FILE", cfg.LogFile)

	if err := applyBackendInputs(input, &cfg.Backend); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyBackendInputs(input func(string) string, b *BackendConfig) error {
	set := func(dst *string, name string) {
		if v := input(name); v != "" {
			*dst = v
		}
	}
	set(&b.Kind, "backend")
	set(&b.Disk.Dir, "disk_dir")
	set(&b.S3.Bucket, "s3_bucket")
	set(&b.S3.Region, "s3_region")
	set(&b.S3.Prefix, "s3_prefix")
	set(&b.S3.Endpoint, "s3_endpoint")
	set(&b.Redis.Addr, "redis_addr")
	set(&b.Redis.Password, "redis_password")
	set(&b.Redis.Prefix, "redis_prefix")

	if v := input("redis_db"); v != "" {
		db, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid redis_db %q: %w", v, err)
		}
		b.Redis.DB = db
	}
	if v := input("redis_ttl"); v != "" {
		ttl, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid redis_ttl %q: %w", v, err)
		}
		b.Redis.TTL = ttl
	}
	return nil
}

// LoadFile decodes the backend sections of a TOML config file into b.
// Keys not present in the file leave b unchanged.
func LoadFile(path string, b *BackendConfig) error {
	md, err := toml.DecodeFile(path, b)
	if err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return fmt.Errorf("unknown keys in config file %s: %v", path, undecoded)
	}
	return nil
}
