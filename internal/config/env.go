package config

import (
	"os"
	"reflect"
	"regexp"

	"github.com/mitchellh/mapstructure"
)

// envPattern matches ${VAR} and ${VAR:default}.
var envPattern = regexp.MustCompile(`\$\{([A-Z0-9_]+)(?::([^}]*))?\}`)

// InterpolateEnv replaces ${VAR[:default]} references with environment
// values. An unset variable without default becomes the empty string; a set
// but empty variable stays empty.
func InterpolateEnv(s string) string {
	return envPattern.ReplaceAllStringFunc(s, func(match string) string {
		groups := envPattern.FindStringSubmatch(match)
		if val, ok := os.LookupEnv(groups[1]); ok {
			return val
		}
		return groups[2]
	})
}

// decodeHook interpolates environment references in decoded string values,
// so a substituted value is never parsed as YAML. The viper defaults for
// durations and comma separated slices run afterwards.
func decodeHook() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		interpolateHook,
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)
}

// interpolateHook expands strings decoded into typed fields. Values decoded
// into any (tech_stack) are not visited again by the decoder, so their
// strings are expanded in one pass here.
func interpolateHook(from reflect.Type, to reflect.Type, data any) (any, error) {
	if s, ok := data.(string); ok {
		return InterpolateEnv(s), nil
	}
	if to.Kind() == reflect.Interface {
		return interpolateValue(data), nil
	}
	return data, nil
}

func interpolateValue(data any) any {
	switch v := data.(type) {
	case string:
		return InterpolateEnv(v)
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = interpolateValue(item)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, item := range v {
			out[k] = interpolateValue(item)
		}
		return out
	}
	return data
}
