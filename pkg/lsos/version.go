// Package lsos parses Larsen OS version strings and answers minimum-version
// questions used to pick protocol variants.
package lsos

import (
	"fmt"
	"strconv"
	"strings"
)

// Version is an ordered list of numeric components, major first.
type Version []int

// Parse reads a dotted version such as "7.0.1", "v7.0.1" or "7.0.1-rc1".
func Parse(s string) (Version, error) {
	core := strings.Trim(strings.ToLower(strings.TrimSpace(s)), "v")
	core, _, _ = strings.Cut(core, "-")
	if core == "" {
		return nil, fmt.Errorf("parse version %q: empty", s)
	}
	parts := strings.Split(core, ".")
	v := make(Version, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("parse version %q: %w", s, err)
		}
		v = append(v, n)
	}
	return v, nil
}

// MustParse is Parse for constants; it panics on error.
func MustParse(s string) Version {
	v, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return v
}

// ParseOrZero parses s and falls back to version 0 when s is unparseable,
// which makes every minimum-version check fail.
func ParseOrZero(s string) Version {
	v, err := Parse(s)
	if err != nil {
		return Version{0}
	}
	return v
}

// AtLeast reports whether v satisfies the required components, compared left
// to right. The first unequal component decides; if all given components are
// equal the requirement is met. Components v lacks count as zero. It panics
// when called without components.
func (v Version) AtLeast(required ...int) bool {
	if len(required) == 0 {
		panic("lsos: AtLeast needs at least one version component")
	}
	for i, want := range required {
		have := 0
		if i < len(v) {
			have = v[i]
		}
		if have != want {
			return have > want
		}
	}
	return true
}

// AtLeast parses current and checks it against the required components.
func AtLeast(current string, required ...int) (bool, error) {
	v, err := Parse(current)
	if err != nil {
		return false, err
	}
	return v.AtLeast(required...), nil
}

func (v Version) String() string {
	parts := make([]string, len(v))
	for i, n := range v {
		parts[i] = strconv.Itoa(n)
	}
	return strings.Join(parts, ".")
}
