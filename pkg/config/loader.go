package config

import (
	"fmt"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// LoadFile reads a parameter file (JSON or YAML, decided by extension) on top
// of the defaults and validates the result.
func LoadFile(path string) (*Params, error) {
	v := viper.New()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	params := DefaultParams()
	if err := params.ApplyOverrides(v.AllSettings()); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}

	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}

	return params, nil
}

// ApplyOverrides merges an override map into the parameter set. Unknown keys
// are configuration errors: a misspelled parameter name must fail the run
// instead of silently falling back to the default.
func (p *Params) ApplyOverrides(overrides map[string]interface{}) error {
	if len(overrides) == 0 {
		return nil
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           p,
		ErrorUnused:      true,
		WeaklyTypedInput: true,
		TagName:          "mapstructure",
	})
	if err != nil {
		return fmt.Errorf("failed to build override decoder: %w", err)
	}

	if err := decoder.Decode(overrides); err != nil {
		return fmt.Errorf("invalid parameter override: %w", err)
	}

	return nil
}

// ParseOverrideArgs turns repeated "key=value" CLI arguments into an override
// map for ApplyOverrides.
func ParseOverrideArgs(args []string) (map[string]interface{}, error) {
	if len(args) == 0 {
		return nil, nil
	}

	overrides := make(map[string]interface{}, len(args))
	for _, arg := range args {
		key, value, found := strings.Cut(arg, "=")
		if !found || key == "" {
			return nil, fmt.Errorf("override %q must have the form key=value", arg)
		}
		overrides[key] = value
	}
	return overrides, nil
}
