package device

import (
	"regexp"
	"strings"
)

// punctuation is ASCII punctuation except the underscore.
const punctuation = "!\"#$%&'()*+,-./:;<=>?@[\\]^`{|}~"

var (
	reCapWord    = regexp.MustCompile(`(.)([A-Z][a-z])`)
	reDigits     = regexp.MustCompile(`(.)([0-9]+)`)
	reUnderscore = regexp.MustCompile(`_+`)
)

var labelReplacer = strings.NewReplacer(" ", "_", "-", "_")

// ScriptPrefix is the prefix execute_script puts on plugin input names:
// spaces and hyphens become underscores and the label is lowercased, so
// "MyPlugin2" stays "myplugin2". Config overrides use SnakeCase instead.
func ScriptPrefix(label string) string {
	return strings.ToLower(labelReplacer.Replace(label))
}

// SnakeCase normalizes a plugin name into the identifier used to namespace
// its inputs and environment overrides: "Plugin Name" and "plugin-name" both
// become "plugin_name".
func SnakeCase(s string) string {
	s = reCapWord.ReplaceAllString(s, "${1}_${2}")
	s = reDigits.ReplaceAllString(s, "${1}_${2}")
	s = strings.ReplaceAll(s, "-", "_")
	s = strings.Map(func(r rune) rune {
		if strings.ContainsRune(punctuation, r) {
			return -1
		}
		return r
	}, s)
	s = strings.Trim(strings.ReplaceAll(s, " ", "_"), "_")
	s = strings.ToLower(s)
	return reUnderscore.ReplaceAllString(s, "_")
}
