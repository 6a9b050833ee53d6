// Package cfg decodes raw TOML driver and service tables into typed configs.
package cfg

import (
	"sort"

	"github.com/mitchellh/mapstructure"
)

// Setter is implemented by config structs that fill their own defaults.
type Setter interface {
	ApplyDefaults()
}

// Decode decodes input into the struct pointed to by c.
// Strings such as "30s" decode into time.Duration fields, and numeric
// strings are accepted for numeric fields. If c implements Setter,
// ApplyDefaults runs after decoding (also for a nil input).
func Decode(input map[string]any, c any) error {
	_, err := decode(input, c)
	return err
}

// DecodeWithUnused is Decode that also reports unknown keys, sorted.
func DecodeWithUnused(input map[string]any, c any) ([]string, error) {
	return decode(input, c)
}

func decode(input map[string]any, c any) ([]string, error) {
	var md mapstructure.Metadata
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Metadata:         &md,
		Result:           c,
		TagName:          "mapstructure",
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return nil, err
	}
	if input != nil {
		if err := decoder.Decode(input); err != nil {
			return nil, err
		}
	}

	if s, ok := c.(Setter); ok {
		s.ApplyDefaults()
	}

	unused := md.Unused
	sort.Strings(unused)
	return unused, nil
}
