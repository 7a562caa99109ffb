// Package i18n resolves bot replies and notification templates from YAML catalogs.
package i18n

import (
	"embed"
	"fmt"
	"io/fs"
	"maps"
	"path"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed locales/*.yaml
var locales embed.FS

// Vars fills {placeholders} in a translated string.
type Vars map[string]string

// Translator resolves localized strings using dot-separated keys.
type Translator interface {
	T(key string) string
	// F translates key and substitutes {name} placeholders from vars.
	F(key string, vars Vars) string
	Lang() string
}

// Manager stores all available translations.
type Manager struct {
	translations catalog
	defaultLang  string
}

// Load loads the embedded catalogs.
func Load(defaultLang string) (*Manager, error) {
	return LoadFS(locales, "locales", defaultLang)
}

// LoadFS loads translations from a directory of YAML files in fsys.
func LoadFS(fsys fs.FS, dir, defaultLang string) (*Manager, error) {
	loaded, err := parseDir(fsys, dir)
	if err != nil {
		return nil, err
	}

	if defaultLang == "" {
		defaultLang = "en"
	}
	if _, ok := loaded[defaultLang]; !ok {
		return nil, fmt.Errorf("i18n: default language %q is missing", defaultLang)
	}

	return &Manager{translations: loaded, defaultLang: defaultLang}, nil
}

// Translator returns a translator for the requested language.
func (m *Manager) Translator(lang string) Translator {
	if m == nil {
		return translator{}
	}

	norm := strings.ToLower(strings.TrimSpace(lang))
	if norm == "" || m.translations[norm] == nil {
		norm = m.defaultLang
	}

	return translator{
		lang:         norm,
		fallback:     m.defaultLang,
		translations: m.translations,
	}
}

// Languages returns all loaded languages.
func (m *Manager) Languages() []string {
	if m == nil {
		return nil
	}

	return slices.Sorted(maps.Keys(m.translations))
}

type translator struct {
	lang         string
	fallback     string
	translations catalog
}

func (t translator) Lang() string {
	return t.lang
}

// T returns the text for key, falling back to the default language and then to key itself.
func (t translator) T(key string) string {
	key = strings.TrimSpace(key)
	if key == "" {
		return ""
	}
	for _, lang := range []string{t.lang, t.fallback} {
		if value := t.translations[lang][key]; value != "" {
			return value
		}
	}
	return key
}

func (t translator) F(key string, vars Vars) string {
	text := t.T(key)
	if len(vars) == 0 {
		return text
	}

	pairs := make([]string, 0, len(vars)*2)
	for name, value := range vars {
		pairs = append(pairs, "{"+name+"}", value)
	}
	return strings.NewReplacer(pairs...).Replace(text)
}

// catalog maps language -> flattened key -> text.
type catalog map[string]map[string]string

func (c catalog) merge(lang string, entries map[string]string) {
	if c[lang] == nil {
		c[lang] = make(map[string]string, len(entries))
	}
	maps.Copy(c[lang], entries)
}

func parseDir(fsys fs.FS, dir string) (catalog, error) {
	names, err := fs.Glob(fsys, path.Join(dir, "*.y*ml"))
	if err != nil {
		return nil, fmt.Errorf("i18n: list %s: %w", dir, err)
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("i18n: no yaml files found in %s", dir)
	}

	out := make(catalog)
	for _, name := range names {
		data, err := fs.ReadFile(fsys, name)
		if err != nil {
			return nil, fmt.Errorf("i18n: read file %s: %w", name, err)
		}

		var doc map[string]yaml.Node
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("i18n: parse file %s: %w", name, err)
		}

		for lang, node := range doc {
			lang = strings.ToLower(strings.TrimSpace(lang))
			entries := make(map[string]string)
			if err := flatten("", &node, entries); err != nil {
				return nil, fmt.Errorf("i18n: %s: %w", name, err)
			}
			if lang != "" && len(entries) > 0 {
				out.merge(lang, entries)
			}
		}
	}

	return out, nil
}

// flatten walks a mapping node and stores scalar leaves under dotted keys.
func flatten(prefix string, node *yaml.Node, out map[string]string) error {
	switch node.Kind {
	case yaml.ScalarNode:
		if prefix != "" {
			out[prefix] = node.Value
		}
		return nil
	case yaml.MappingNode:
		for i := 0; i+1 < len(node.Content); i += 2 {
			key := node.Content[i].Value
			if prefix != "" {
				key = prefix + "." + key
			}
			if err := flatten(key, node.Content[i+1], out); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("unsupported value at %q (line %d)", prefix, node.Line)
	}
}
