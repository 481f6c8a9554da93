package threads

import (
	_ "embed"
	"fmt"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed presets.yaml
var presetsYAML []byte

// presetTemplate is a spec with {target} placeholders still in place.
type presetTemplate struct {
	Type   string   `yaml:"type"`
	Task   string   `yaml:"task"`
	Agent  string   `yaml:"agent"`
	Agents []string `yaml:"agents"`
	Steps  []struct {
		Agent  string   `yaml:"agent"`
		Task   string   `yaml:"task"`
		Output string   `yaml:"output"`
		Reads  []string `yaml:"reads"`
		Model  string   `yaml:"model"`
	} `yaml:"steps"`
}

var (
	presetsOnce sync.Once
	presetsMap  map[string]presetTemplate
	presetsErr  error
)

func loadPresets() (map[string]presetTemplate, error) {
	presetsOnce.Do(func() {
		var doc struct {
			Presets map[string]presetTemplate `yaml:"presets"`
		}
		if err := yaml.Unmarshal(presetsYAML, &doc); err != nil {
			presetsErr = fmt.Errorf("failed to parse thread presets: %w", err)
			return
		}
		presetsMap = doc.Presets
	})
	return presetsMap, presetsErr
}

// PresetNames lists the available thread presets, sorted.
func PresetNames() []string {
	presets, err := loadPresets()
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Preset materializes a named preset against a target string. The returned
// spec is ready for Launch.
func Preset(name, target string) (Spec, error) {
	presets, err := loadPresets()
	if err != nil {
		return Spec{}, err
	}
	tmpl, ok := presets[name]
	if !ok {
		return Spec{}, fmt.Errorf("unknown thread preset %q", name)
	}

	fill := func(s string) string {
		return strings.ReplaceAll(s, "{target}", target)
	}

	spec := Spec{
		Type:   tmpl.Type,
		Task:   fill(tmpl.Task),
		Agent:  tmpl.Agent,
		Agents: append([]string(nil), tmpl.Agents...),
	}
	for _, step := range tmpl.Steps {
		spec.Steps = append(spec.Steps, Step{
			Agent:  step.Agent,
			Task:   fill(step.Task),
			Output: step.Output,
			Reads:  append([]string(nil), step.Reads...),
			Model:  step.Model,
		})
	}
	return spec, nil
}
