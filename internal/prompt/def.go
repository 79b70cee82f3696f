package prompt

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Section is one named part of a prompt definition. In YAML the value is
// either a scalar (the text) or a mapping with text, append and heading.
//
// Append names a data key whose value follows Text. A section whose append
// value is empty is left out of the prompt.
type Section struct {
	Name    string
	Text    string
	Append  string
	Heading string
}

type sectionDetail struct {
	Text    string `yaml:"text"`
	Append  string `yaml:"append"`
	Heading string `yaml:"heading"`
}

// Def is an ordered prompt definition: a YAML sequence of single-key
// mappings.
type Def []Section

// UnmarshalYAML decodes a sequence of single-key mappings.
func (d *Def) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.SequenceNode {
		return fmt.Errorf("prompt definition must be a YAML sequence, got kind %v", value.Kind)
	}

	def := make(Def, 0, len(value.Content))
	for i, item := range value.Content {
		if item.Kind != yaml.MappingNode || len(item.Content) != 2 {
			return fmt.Errorf("section %d: expected a single-key mapping", i)
		}
		sec := Section{Name: item.Content[0].Value}

		switch val := item.Content[1]; val.Kind {
		case yaml.ScalarNode:
			sec.Text = val.Value
		case yaml.MappingNode:
			var detail sectionDetail
			if err := val.Decode(&detail); err != nil {
				return fmt.Errorf("section %q: %w", sec.Name, err)
			}
			sec.Text = detail.Text
			sec.Append = detail.Append
			sec.Heading = detail.Heading
		default:
			return fmt.Errorf("section %q: unexpected YAML node kind %v", sec.Name, val.Kind)
		}
		def = append(def, sec)
	}

	*d = def
	return nil
}

// ParseDef parses a prompt definition document.
func ParseDef(data []byte) (Def, error) {
	var def Def
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, err
	}
	if len(def) == 0 {
		return nil, fmt.Errorf("prompt definition has no sections")
	}
	return def, nil
}

// loadDef returns the definition in dir/name when that file exists, and the
// embedded fallback otherwise.
func loadDef(dir, name, fallback string) (Def, error) {
	if dir != "" {
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			def, err := ParseDef(data)
			if err != nil {
				return nil, fmt.Errorf("failed to parse prompt definition %s: %w", path, err)
			}
			return def, nil
		case !os.IsNotExist(err):
			return nil, fmt.Errorf("failed to read prompt definition %s: %w", path, err)
		}
	}

	def, err := ParseDef([]byte(fallback))
	if err != nil {
		return nil, fmt.Errorf("failed to parse embedded prompt definition %s: %w", name, err)
	}
	return def, nil
}

func (s Section) heading() string {
	if s.Heading != "" {
		return s.Heading
	}
	return "## " + titleCase(s.Name)
}

// titleCase turns a snake_case key into "Snake Case".
func titleCase(key string) string {
	words := strings.Fields(strings.ReplaceAll(key, "_", " "))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

// Render assembles the prompt. Placeholders of the form {key} are replaced
// in headings and texts only; appended values are inserted verbatim.
func (d Def) Render(data map[string]string) string {
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	pairs := make([]string, 0, 2*len(keys))
	for _, k := range keys {
		pairs = append(pairs, "{"+k+"}", data[k])
	}
	sub := strings.NewReplacer(pairs...)

	var parts []string
	for _, sec := range d {
		var appended string
		if sec.Append != "" {
			appended = strings.TrimSpace(data[sec.Append])
			if appended == "" {
				continue
			}
		}

		blocks := []string{sub.Replace(sec.heading())}
		if text := strings.TrimSpace(sec.Text); text != "" {
			blocks = append(blocks, sub.Replace(text))
		}
		if appended != "" {
			blocks = append(blocks, appended)
		}
		parts = append(parts, strings.Join(blocks, "\n\n"))
	}
	return strings.Join(parts, "\n\n")
}
