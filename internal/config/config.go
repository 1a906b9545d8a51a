package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Config holds all configuration for storekit
type Config struct {
	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"` // json, text

	// Module names the default store resolved when nothing is registered
	Module string `mapstructure:"module"`
	// Primary selects the read side of the combined fs+kv module: fs or kv
	Primary   string `mapstructure:"primary"`
	Sandboxed bool   `mapstructure:"sandboxed"`

	FS         FSConfig         `mapstructure:"fs"`
	KV         KVConfig         `mapstructure:"kv"`
	LocalStore LocalStoreConfig `mapstructure:"localstore"`
	S3         S3Config         `mapstructure:"s3"`

	// Prefixes routes a first key component to a module name
	Prefixes map[string]string `mapstructure:"prefixes"`

	Server ServerConfig `mapstructure:"server"`
}

// FSConfig configures the filesystem module
type FSConfig struct {
	Root string `mapstructure:"root"`
}

// KVConfig configures the ordered KV engine
type KVConfig struct {
	Engine        string        `mapstructure:"engine"` // pebble, badger, bbolt, memory
	Path          string        `mapstructure:"path"`
	SyncWrites    bool          `mapstructure:"sync_writes"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

// LocalStoreConfig configures the local-store module. An empty path keeps
// it in memory.
type LocalStoreConfig struct {
	Path string `mapstructure:"path"`
}

// S3Config configures the object-store module
type S3Config struct {
	Endpoint  string `mapstructure:"endpoint"`
	Region    string `mapstructure:"region"`
	Bucket    string `mapstructure:"bucket"`
	Prefix    string `mapstructure:"prefix"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	ReadOnly  bool   `mapstructure:"read_only"`
}

// ServerConfig configures the HTTP API
type ServerConfig struct {
	Listen      string `mapstructure:"listen"`
	MetricsPath string `mapstructure:"metrics_path"`
}

// KV engine names
const (
	EnginePebble = "pebble"
	EngineBadger = "badger"
	EngineBbolt  = "bbolt"
	EngineMemory = "memory"
)

// Load loads configuration from defaults, flags, an optional config file
// and STORE_* environment variables
func Load(cmd *cobra.Command) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if err := bindFlags(cmd, v); err != nil {
		return nil, fmt.Errorf("failed to bind flags: %w", err)
	}

	if f := cmd.Flags().Lookup("config"); f != nil && f.Value.String() != "" {
		v.SetConfigFile(f.Value.String())
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	return load(v)
}

func load(v *viper.Viper) (*Config, error) {
	v.SetEnvPrefix("STORE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "json")

	v.SetDefault("module", "filesystem")
	v.SetDefault("primary", "fs")
	v.SetDefault("sandboxed", false)

	v.SetDefault("fs.root", ".store")

	v.SetDefault("kv.engine", EnginePebble)
	v.SetDefault("kv.path", ".store.kv")
	v.SetDefault("kv.sync_writes", false)
	v.SetDefault("kv.sweep_interval", time.Minute)

	v.SetDefault("localstore.path", "")

	v.SetDefault("s3.endpoint", "")
	v.SetDefault("s3.region", "us-east-1")
	v.SetDefault("s3.bucket", "")
	v.SetDefault("s3.prefix", "")
	v.SetDefault("s3.access_key", "")
	v.SetDefault("s3.secret_key", "")
	v.SetDefault("s3.read_only", false)

	v.SetDefault("server.listen", ":8080")
	v.SetDefault("server.metrics_path", "/metrics")
}

// bindFlags binds the flags a command defines. Flags missing from cmd are
// skipped so subcommands can declare only what they use.
func bindFlags(cmd *cobra.Command, v *viper.Viper) error {
	flags := map[string]string{
		"log-level":  "log_level",
		"log-format": "log_format",
		"module":     "module",
		"primary":    "primary",
		"sandboxed":  "sandboxed",
		"fs-root":    "fs.root",
		"kv-engine":  "kv.engine",
		"kv-path":    "kv.path",
		"listen":     "server.listen",
	}

	for flag, key := range flags {
		f := cmd.Flags().Lookup(flag)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return err
		}
	}

	return nil
}

func validate(cfg *Config) error {
	if cfg.FS.Root == "" {
		return fmt.Errorf("fs.root is required: specify via --fs-root flag, config file, or STORE_FS_ROOT environment variable")
	}
	root, err := filepath.Abs(cfg.FS.Root)
	if err != nil {
		return fmt.Errorf("failed to resolve fs.root: %w", err)
	}
	cfg.FS.Root = root

	switch cfg.Primary {
	case "fs", "kv":
	default:
		return fmt.Errorf("primary must be fs or kv, got %q", cfg.Primary)
	}

	switch cfg.KV.Engine {
	case EnginePebble, EngineBadger, EngineBbolt:
		if cfg.KV.Path == "" {
			return fmt.Errorf("kv.path is required for the %s engine", cfg.KV.Engine)
		}
		if cfg.KV.Path, err = filepath.Abs(cfg.KV.Path); err != nil {
			return fmt.Errorf("failed to resolve kv.path: %w", err)
		}
	case EngineMemory:
	default:
		return fmt.Errorf("unknown kv.engine %q", cfg.KV.Engine)
	}

	if cfg.LocalStore.Path != "" {
		if cfg.LocalStore.Path, err = filepath.Abs(cfg.LocalStore.Path); err != nil {
			return fmt.Errorf("failed to resolve localstore.path: %w", err)
		}
	}

	for prefix, module := range cfg.Prefixes {
		if prefix == "" || module == "" {
			return fmt.Errorf("prefix routes need a prefix and a module, got %q=%q", prefix, module)
		}
	}

	return nil
}
