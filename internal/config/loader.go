package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// Config file names, in lookup order.
const (
	ConfigFileName    = "strata.yaml"
	ConfigFileNameAlt = "strata.yml"
)

// findConfigFile resolves the config file to use. An explicit path wins;
// otherwise the working directory is searched.
func findConfigFile(explicit string) string {
	if explicit != "" {
		return explicit
	}
	for _, name := range []string{ConfigFileName, ConfigFileNameAlt} {
		if _, err := os.Stat(name); err == nil {
			return name
		}
	}
	return ""
}

// Load builds the configuration. Precedence, highest first: flags, STRATA_
// environment variables, the config file, defaults.
func Load(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(map[string]interface{}{
		"data_dir":   DefaultDataDir,
		"state_path": DefaultStatePath,
		"verbose":    false,
	}, "."), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path := findConfigFile(cfgFile); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
	} else if cfgFile != "" {
		return nil, fmt.Errorf("config file %s not found", cfgFile)
	}

	// STRATA_DATA_DIR -> data_dir, STRATA_TARGET__TYPE -> target.type.
	if err := k.Load(env.Provider("STRATA_", ".", func(s string) string {
		key := strings.ToLower(strings.TrimPrefix(s, "STRATA_"))
		return strings.ReplaceAll(key, "__", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("load env vars: %w", err)
	}

	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, interface{}) {
			if !f.Changed {
				return "", nil
			}
			key := strings.ReplaceAll(f.Name, "-", "_")
			switch key {
			case "state":
				key = "state_path"
			case "database":
				key = "target.database"
			case "target":
				key = "target.type"
			}
			return key, posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	cfg.ApplyDefaults()
	expandTargetEnvVars(cfg.Target)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars expands ${VAR} references so credentials can stay out of
// the config file.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		if val := os.Getenv(match[2 : len(match)-1]); val != "" {
			return val
		}
		return match
	})
}

func expandTargetEnvVars(t *TargetConfig) {
	if t == nil {
		return
	}
	t.User = expandEnvVars(t.User)
	t.Password = expandEnvVars(t.Password)
	t.Host = expandEnvVars(t.Host)
	t.Database = expandEnvVars(t.Database)
}
