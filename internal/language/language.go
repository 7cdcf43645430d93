// Package language normalizes BCP 47 target language tags and renders
// human-readable names for prompts and CLI output.
package language

import (
	"fmt"
	"strings"

	xlanguage "golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// Normalize parses raw as a BCP 47 tag and returns its canonical form, so
// "PT-br" and "pt-BR" persist identically.
func Normalize(raw string) (string, error) {
	tag, err := xlanguage.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("language tag %q: %w", raw, err)
	}
	return tag.String(), nil
}

// DisplayName returns the English name for the tag, for example "pt-BR"
// yields "Brazilian Portuguese".
func DisplayName(raw string) (string, error) {
	tag, err := xlanguage.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("language tag %q: %w", raw, err)
	}
	name := display.English.Tags().Name(tag)
	if name == "" {
		return tag.String(), nil
	}
	return name, nil
}

// Describe formats a tag for human-facing text, for example "Spanish (es)".
// Unparseable input is returned unchanged so callers never lose the value.
func Describe(raw string) string {
	raw = strings.TrimSpace(raw)
	name, err := DisplayName(raw)
	if err != nil || name == raw {
		return raw
	}
	return fmt.Sprintf("%s (%s)", name, raw)
}
