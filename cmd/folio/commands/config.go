package commands

import (
	"fmt"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/parsers/toml/v2"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/urfave/cli/v3"

	"github.com/florianilch/folio/internal/app"
)

// envPrefix is stripped from environment variables during config loading (e.g., FOLIO_API__BASE_URL → api.base_url)
const envPrefix = "FOLIO_"

// configFlag names the flag that points at the config file; it is not itself a setting.
const configFlag = "config"

// loadConfig loads application configuration from various sources with precedence:
// config file → environment variables → CLI flags → defaults.
// Unknown keys in the config file are rejected; unknown FOLIO_* variables are ignored.
func loadConfig(configPath string, cmd *cli.Command, environFunc func() []string) (*app.Config, error) {
	k := koanf.New(".")

	if configPath != "" {
		fk := koanf.New(".")
		if err := fk.Load(file.Provider(configPath), toml.Parser()); err != nil {
			return nil, fmt.Errorf("loading config file: %w", err)
		}
		if err := unmarshal(fk, &app.Config{}, true); err != nil {
			return nil, fmt.Errorf("config file %s: %w", configPath, err)
		}
		if err := k.Merge(fk); err != nil {
			return nil, fmt.Errorf("merging config file: %w", err)
		}
	}

	envProvider := env.Provider(".", env.Opt{
		Prefix: envPrefix,
		TransformFunc: func(key, value string) (string, any) {
			// The default token variable shares the prefix but holds a secret, not a setting.
			if key == app.DefaultConfigAuthEnvKey {
				return "", nil
			}
			stripped := strings.TrimPrefix(key, envPrefix)
			nested := strings.ToLower(strings.ReplaceAll(stripped, "__", "."))
			return nested, value
		},
		EnvironFunc: environFunc,
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("loading environment variables: %w", err)
	}

	if cmd != nil {
		flagValues := extractAndTransformFlags(cmd)
		if err := k.Load(confmap.Provider(flagValues, "."), nil); err != nil {
			return nil, fmt.Errorf("loading CLI flags: %w", err)
		}
	}

	config := &app.Config{}
	if err := unmarshal(k, config, false); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := config.ApplyDefaults(); err != nil {
		return nil, fmt.Errorf("applying defaults: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return config, nil
}

// unmarshal decodes k into config with koanf's usual hooks. strict reports keys
// that match no config field.
func unmarshal(k *koanf.Koanf, config *app.Config, strict bool) error {
	return k.UnmarshalWithConf("", config, koanf.UnmarshalConf{
		Tag: "json",
		DecoderConfig: &mapstructure.DecoderConfig{
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
				mapstructure.TextUnmarshallerHookFunc(),
			),
			WeaklyTypedInput: true,
			ErrorUnused:      strict,
			Result:           config,
		},
	})
}

// extractAndTransformFlags transforms the root command's settings flags to match the
// config structure. Examples: --api--base-url → api.base_url, --log-level → log_level.
// Subcommand flags never reach the config.
func extractAndTransformFlags(cmd *cli.Command) map[string]any {
	values := make(map[string]any)

	for _, flag := range cmd.Root().Flags {
		name := flag.Names()[0]
		if name == configFlag {
			continue
		}
		// Skip unset flags to preserve precedence from earlier config sources
		if !cmd.IsSet(name) {
			continue
		}

		if value := cmd.Value(name); value != nil {
			key := strings.ReplaceAll(name, "--", ".")
			key = strings.ReplaceAll(key, "-", "_")
			values[key] = value
		}
	}

	return values
}
