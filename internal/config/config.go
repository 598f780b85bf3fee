// Package config loads tcforge settings from /etc/tcforge.conf and the environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"gopkg.in/ini.v1"
)

// DefaultFile is read when no --config flag or TCFORGE_CONFIG is given.
const DefaultFile = "/etc/tcforge.conf"

const (
	defaultRoot      = "/var/cache/tcforge"
	defaultTarget    = "arm-none-eabi"
	defaultTailLines = 20
	defaultGNUMirror = "https://mirrors.kernel.org/gnu"
)

// S3Config holds the bucket used by s3:// sources and the mirror commands.
type S3Config struct {
	Endpoint        string
	Region          string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
}

// Configured reports whether enough is set to talk to a bucket.
func (s S3Config) Configured() bool {
	return s.Bucket != "" && s.AccessKeyID != "" && s.SecretAccessKey != ""
}

// Config struct
type Config struct {
	Values map[string]string

	Root      string // workspace holding archives/, sources/, build/, install/, status/
	Prefix    string // install prefix handed to configure
	Target    string // target triplet
	Manifest  string // external manifest; empty selects the embedded one
	GNUMirror string
	Jobs      int // concurrency hint passed to make
	TailLines int
	Nice      bool // run make stages under nice -n 19
	Debug     bool
	Verbose   bool
	S3        S3Config
}

// Load reads path (a missing file is not an error), merges TCFORGE_* environment
// overrides and applies defaults.
func Load(path string) (*Config, error) {
	cfg := &Config{Values: make(map[string]string)}

	file, err := ini.LoadSources(ini.LoadOptions{Loose: true, IgnoreInlineComment: true}, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	for key, val := range file.Section("").KeysHash() {
		cfg.Values[strings.TrimSpace(key)] = strings.Trim(strings.TrimSpace(val), `"'`)
	}

	mergeEnvOverrides(cfg)
	return FromValues(cfg.Values)
}

// FromValues builds a Config from raw KEY=VALUE settings.
func FromValues(values map[string]string) (*Config, error) {
	cfg := &Config{Values: values}
	if err := cfg.init(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// envKeys outside the TCFORGE_ namespace that may still be overridden from the environment.
var envKeys = []string{
	"GNU_MIRROR",
	"S3_ENDPOINT",
	"S3_REGION",
	"S3_BUCKET",
	"S3_ACCESS_KEY_ID",
	"S3_SECRET_ACCESS_KEY",
}

// Merge TCFORGE_* env overrides
func mergeEnvOverrides(cfg *Config) {
	for _, env := range os.Environ() {
		if strings.HasPrefix(env, "TCFORGE_") {
			parts := strings.SplitN(env, "=", 2)
			if len(parts) == 2 {
				cfg.Values[parts[0]] = parts[1]
			}
		}
	}
	for _, key := range envKeys {
		if val, ok := os.LookupEnv(key); ok {
			cfg.Values[key] = val
		}
	}
}

func (cfg *Config) init() error {
	cfg.Root = cfg.Values["TCFORGE_ROOT"]
	if cfg.Root == "" {
		cfg.Root = defaultRoot
	}
	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		return fmt.Errorf("invalid TCFORGE_ROOT %q: %w", cfg.Root, err)
	}
	cfg.Root = root

	cfg.Prefix = cfg.Values["TCFORGE_PREFIX"]

	cfg.Target = cfg.Values["TCFORGE_TARGET"]
	if cfg.Target == "" {
		cfg.Target = defaultTarget
	}

	cfg.Manifest = cfg.Values["TCFORGE_MANIFEST"]

	cfg.Jobs = runtime.NumCPU()
	if v := cfg.Values["TCFORGE_JOBS"]; v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return fmt.Errorf("invalid TCFORGE_JOBS %q: want a positive integer", v)
		}
		cfg.Jobs = n
	}

	cfg.TailLines = defaultTailLines
	if v := cfg.Values["TCFORGE_TAIL_LINES"]; v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return fmt.Errorf("invalid TCFORGE_TAIL_LINES %q", v)
		}
		cfg.TailLines = n
	}

	cfg.Debug = cfg.Values["TCFORGE_DEBUG"] == "1"
	cfg.Verbose = cfg.Values["TCFORGE_VERBOSE"] == "1"
	cfg.Nice = cfg.Values["TCFORGE_NICE"] == "1"

	// Load the GNU mirror URL if it's set in the config
	cfg.GNUMirror = strings.TrimRight(cfg.Values["GNU_MIRROR"], "/")
	switch cfg.GNUMirror {
	case "":
		cfg.GNUMirror = defaultGNUMirror
	case "off", "none":
		cfg.GNUMirror = ""
	}

	cfg.S3 = S3Config{
		Endpoint:        cfg.Values["S3_ENDPOINT"],
		Region:          cfg.Values["S3_REGION"],
		Bucket:          cfg.Values["S3_BUCKET"],
		AccessKeyID:     cfg.Values["S3_ACCESS_KEY_ID"],
		SecretAccessKey: cfg.Values["S3_SECRET_ACCESS_KEY"],
	}
	if cfg.S3.Region == "" {
		cfg.S3.Region = "auto"
	}
	return nil
}

// InstallPrefix returns the configured prefix, defaulting to <root>/install.
func (cfg *Config) InstallPrefix() string {
	if cfg.Prefix != "" {
		return cfg.Prefix
	}
	return filepath.Join(cfg.Root, "install")
}
