package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// ConfigFileName is the name of the config file.
const ConfigFileName = "statcube.yaml"

// ConfigFileNameAlt is the alternate name of the config file.
const ConfigFileNameAlt = "statcube.yml"

// EnvPrefix namespaces the environment variable overrides.
const EnvPrefix = "STATCUBE_"

// Default configuration values.
const (
	DefaultDataDir       = "data"
	DefaultStatePath     = "statcube.db"
	DefaultRefDataSchema = "refdata"
	DefaultTargetType    = "duckdb"
	DefaultTargetPath    = "statcube.duckdb"
	DefaultServerHost    = "127.0.0.1"
	DefaultServerPort    = 8080
)

// Load builds the configuration by layering, lowest priority first:
// defaults, the config file, STATCUBE_ environment variables, and flags.
// cfgFile may be empty, in which case statcube.yaml is searched in the
// working directory.
func Load(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(map[string]interface{}{
		"data_dir":              DefaultDataDir,
		"state_path":            DefaultStatePath,
		"refdata_schema":        DefaultRefDataSchema,
		"target.type":           DefaultTargetType,
		"target.path":           DefaultTargetPath,
		"server.host":           DefaultServerHost,
		"server.port":           DefaultServerPort,
		"preview.min_page_size": 1,
		"preview.max_page_size": 1000,
		"verbose":               false,
	}, "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if cfgFile == "" {
		cfgFile = findConfigFile(".")
	}
	if cfgFile != "" {
		if err := k.Load(file.Provider(cfgFile), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", cfgFile, err)
		}
	}

	// STATCUBE_TARGET__TYPE -> target.type; a double underscore separates
	// nesting levels so snake_case keys survive.
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		key := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
		return strings.ReplaceAll(key, "__", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, interface{}) {
			if !f.Changed {
				return "", nil
			}
			key := strings.ReplaceAll(f.Name, "-", "_")
			if key == "state" {
				return "state_path", posflag.FlagVal(flags, f)
			}
			return key, posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// findConfigFile looks for the config file in a directory. Returns empty if
// not found.
func findConfigFile(dir string) string {
	for _, name := range []string{ConfigFileName, ConfigFileNameAlt} {
		candidate := filepath.Join(dir, name)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return ""
}
