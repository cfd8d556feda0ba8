package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"faltas/internal/sidecar"
)

// EnvPrefix is the prefix of environment overrides, e.g. FALTAS_LOG_LEVEL.
const EnvPrefix = "FALTAS"

// Config is the root of the application configuration.
type Config struct {
	Backend BackendConfig `mapstructure:"backend" yaml:"backend"`
	Shell   ShellConfig   `mapstructure:"shell" yaml:"shell"`
	Log     LogConfig     `mapstructure:"log" yaml:"log"`
}

// BackendConfig describes the packaged backend and how it is supervised.
type BackendConfig struct {
	ResourcesDir      string            `mapstructure:"resources_dir" yaml:"resources_dir"` // empty = derive from the executable
	Dir               string            `mapstructure:"dir" yaml:"dir"`
	EntryFile         string            `mapstructure:"entry_file" yaml:"entry_file"`
	Runtime           string            `mapstructure:"runtime" yaml:"runtime"`
	Host              string            `mapstructure:"host" yaml:"host"`
	PreferredPort     int               `mapstructure:"preferred_port" yaml:"preferred_port"`
	FallbackPort      int               `mapstructure:"fallback_port" yaml:"fallback_port"`
	ReadyTimeout      time.Duration     `mapstructure:"ready_timeout" yaml:"ready_timeout"`
	ProbeInterval     time.Duration     `mapstructure:"probe_interval" yaml:"probe_interval"`
	ReapTimeout       time.Duration     `mapstructure:"reap_timeout" yaml:"reap_timeout"`
	RuntimeConstraint string            `mapstructure:"runtime_constraint" yaml:"runtime_constraint"`
	DataDir           string            `mapstructure:"data_dir" yaml:"data_dir"`   // empty = per-user data dir
	CacheDir          string            `mapstructure:"cache_dir" yaml:"cache_dir"` // empty = per-user cache dir
	Env               map[string]string `mapstructure:"env" yaml:"env,omitempty"`
}

// Sidecar converts the backend section into a supervisor configuration.
// Paths are expanded; empty data and cache directories resolve to the
// per-user defaults, or to directories under the resources dir when those
// cannot be determined.
func (c BackendConfig) Sidecar() sidecar.Config {
	cfg := sidecar.Config{
		ResourcesDir:  expandOrKeep(c.ResourcesDir),
		BackendDir:    c.Dir,
		EntryFile:     c.EntryFile,
		Runtime:       c.Runtime,
		Host:          c.Host,
		PreferredPort: c.PreferredPort,
		FallbackPort:  c.FallbackPort,
		ReadyTimeout:  c.ReadyTimeout,
		ProbeInterval: c.ProbeInterval,
		DataDir:       expandOrKeep(c.DataDir),
		CacheDir:      expandOrKeep(c.CacheDir),
	}
	if cfg.DataDir == "" {
		cfg.DataDir, _ = DefaultDataDir()
	}
	if cfg.CacheDir == "" {
		cfg.CacheDir, _ = DefaultCacheDir()
	}

	// viper lowercases map keys; environment names are conventionally upper case.
	if len(c.Env) > 0 {
		cfg.Env = make(map[string]string, len(c.Env))
		for k, v := range c.Env {
			cfg.Env[strings.ToUpper(k)] = v
		}
	}
	return cfg
}

// ShellConfig holds window and run mode settings.
type ShellConfig struct {
	// Packaged selects the file log sink. Development runs set it to false.
	Packaged bool   `mapstructure:"packaged" yaml:"packaged"`
	DevURL   string `mapstructure:"dev_url" yaml:"dev_url"`
	Title    string `mapstructure:"title" yaml:"title"`
	Width    int    `mapstructure:"width" yaml:"width"`
	Height   int    `mapstructure:"height" yaml:"height"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
	File   string `mapstructure:"file" yaml:"file"`
	// Dir holds sidecar.log and gui.log. Empty means DefaultLogDir.
	Dir string `mapstructure:"dir" yaml:"dir"`
}

// ResolveDir returns the log directory with ~ expanded and the default applied.
func (c LogConfig) ResolveDir() (string, error) {
	if c.Dir != "" {
		return ExpandPath(c.Dir)
	}
	return DefaultLogDir()
}

func expandOrKeep(path string) string {
	expanded, err := ExpandPath(path)
	if err != nil {
		return path
	}
	return expanded
}

var (
	globalConfig *Config
	configPath   string
	mu           sync.RWMutex
)

// Load reads the config file at path.
// Priority: env > file > defaults.
func Load(path string) (*Config, error) {
	mu.Lock()
	defer mu.Unlock()

	SetDefaults()

	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if path != "" {
		expandedPath, err := ExpandPath(path)
		if err != nil {
			return nil, err
		}
		configPath = expandedPath

		viper.SetConfigFile(expandedPath)
		viper.SetConfigType("yaml")
		if err := viper.ReadInConfig(); err != nil {
			// A missing file is not an error.
			var pathErr *os.PathError
			if !errors.As(err, &pathErr) && !os.IsNotExist(err) {
				return nil, err
			}
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	globalConfig = &cfg
	return &cfg, nil
}

// GetConfig returns the last loaded configuration.
func GetConfig() *Config {
	mu.RLock()
	defer mu.RUnlock()
	return globalConfig
}

// Path returns the config file path given to the last Load, if any.
func Path() string {
	mu.RLock()
	defer mu.RUnlock()
	return configPath
}

// Get returns the value of any key.
func Get(key string) any {
	return viper.Get(key)
}

// GetString returns a key as a string.
func GetString(key string) string {
	return viper.GetString(key)
}

// AllSettings returns the merged settings as a nested map.
func AllSettings() map[string]any {
	return viper.AllSettings()
}

// Set updates a key and persists the file.
func Set(key string, value any) error {
	mu.Lock()
	defer mu.Unlock()

	viper.Set(key, value)

	if configPath != "" {
		return save()
	}
	return nil
}

// save writes the settings; the caller holds mu.
func save() error {
	if configPath == "" {
		return errors.New("config path not set")
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return err
	}

	data, err := yaml.Marshal(viper.AllSettings())
	if err != nil {
		return err
	}
	return os.WriteFile(configPath, data, 0644)
}

// SaveTo writes cfg to path as YAML.
func SaveTo(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Reset clears all state. Used by tests.
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	globalConfig = nil
	configPath = ""
	viper.Reset()
}
