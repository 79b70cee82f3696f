package config

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/danielolaszy/archprompt/pkg/models"
	"github.com/mitchellh/mapstructure"
)

// DefaultStackProfile is used when neither --stack nor tech_stack.name is set.
const DefaultStackProfile = "generic"

// EffectiveStack merges the global tech_stack with the app's override and
// resolves the profile name. Priority for the profile: explicit (the --stack
// flag), then the merged tech_stack.name, then DefaultStackProfile.
func (c *ProjectConfig) EffectiveStack(app, explicit string) (models.TechStack, error) {
	var override map[string]any
	if appCfg, ok := c.App(app); ok {
		override = appCfg.TechStack
	}

	merged := deepMerge(c.TechStack, override)

	var stack models.TechStack
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       stackItemHook,
		WeaklyTypedInput: true,
		Result:           &stack,
	})
	if err != nil {
		return models.TechStack{}, fmt.Errorf("failed to create tech stack decoder: %w", err)
	}
	if err := decoder.Decode(merged); err != nil {
		return models.TechStack{}, configErrorf("invalid tech_stack for app %q: %v", app, err)
	}

	stack.Profile = stackProfile(stack.Name, explicit)
	return stack, nil
}

func stackProfile(name, explicit string) string {
	if p := strings.ToLower(strings.TrimSpace(explicit)); p != "" {
		return p
	}
	if p := strings.ToLower(strings.TrimSpace(name)); p != "" {
		return p
	}
	return DefaultStackProfile
}

// stackItemHook lets a tech stack entry be written as a bare string.
func stackItemHook(from reflect.Type, to reflect.Type, data any) (any, error) {
	if to != reflect.TypeOf(models.StackItem{}) || from.Kind() != reflect.String {
		return data, nil
	}
	return models.StackItem{Name: data.(string)}, nil
}

// deepMerge returns base with override applied recursively. Nested maps
// merge; any other override value replaces the base value.
func deepMerge(base, override map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(override))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range override {
		baseMap, baseIsMap := toStringMap(out[k])
		overrideMap, overrideIsMap := toStringMap(v)
		if baseIsMap && overrideIsMap {
			out[k] = deepMerge(baseMap, overrideMap)
			continue
		}
		out[k] = v
	}
	return out
}

func toStringMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case map[any]any:
		out := make(map[string]any, len(m))
		for k, val := range m {
			out[fmt.Sprint(k)] = val
		}
		return out, true
	default:
		return nil, false
	}
}
