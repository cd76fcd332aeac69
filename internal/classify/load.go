package classify

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// File is the on-disk form of a classifier table.
//
//	default: [overview, file_content]
//	rules:
//	  - name: licensing
//	    keywords: [license, licence]
//	    providers: [overview, file_content]
//	presets:
//	  release:
//	    providers: [commit_history, issues]
type File struct {
	Default []string          `yaml:"default"`
	Rules   []Rule            `yaml:"rules"`
	Presets map[string]Preset `yaml:"presets"`
	// Append keeps the built-in rules after the loaded ones instead of
	// replacing them.
	Append bool `yaml:"append"`
}

// LoadRules parses a YAML classifier table.
func LoadRules(r io.Reader) (File, error) {
	var f File
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && err != io.EOF {
		return File{}, fmt.Errorf("classify: decode rules: %w", err)
	}
	for i, rule := range f.Rules {
		if rule.Name == "" {
			return File{}, fmt.Errorf("classify: rule %d has no name", i)
		}
		if len(rule.Keywords) == 0 || len(rule.Providers) == 0 {
			return File{}, fmt.Errorf("classify: rule %q needs keywords and providers", rule.Name)
		}
	}
	return f, nil
}

// LoadRulesFile reads a YAML table from disk.
func LoadRulesFile(path string) (File, error) {
	fh, err := os.Open(path)
	if err != nil {
		return File{}, err
	}
	defer fh.Close()
	return LoadRules(fh)
}

// Options turns a loaded table into classifier options.
func (f File) Options() []Option {
	var opts []Option
	if len(f.Rules) > 0 {
		rules := f.Rules
		if f.Append {
			rules = append(append([]Rule(nil), f.Rules...), DefaultRules...)
		}
		opts = append(opts, WithRules(rules))
	}
	if len(f.Presets) > 0 {
		opts = append(opts, WithPresets(f.Presets))
	}
	if len(f.Default) > 0 {
		opts = append(opts, WithDefault(f.Default))
	}
	return opts
}

// Providers lists every provider name the table mentions, for validation
// against the registry.
func (f File) Providers() []string {
	var out []string
	out = appendUnique(out, f.Default...)
	for _, r := range f.Rules {
		out = appendUnique(out, r.Providers...)
	}
	for _, p := range f.Presets {
		out = appendUnique(out, p.Providers...)
	}
	return out
}
