// Package i18n implements the Translator capability over an embedded
// bilingual message catalog. Locale resolution uses BCP-47 matching so
// requests carrying "en-GB" or "cy-GB" land on the supported base locales.
package i18n

import (
	_ "embed"
	"fmt"
	"strings"

	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"

	"github.com/openstats-labs/statcube/pkg/core"
)

//go:embed messages.yaml
var messagesYAML []byte

// Welsh has no predefined tag constant in x/text/language.
var welsh = language.MustParse("cy")

var supportedTags = []language.Tag{
	language.English, // en, the fallback
	welsh,
}

// Catalog resolves message keys to locale strings. It implements
// core.Translator.
type Catalog struct {
	messages map[string]map[core.Locale]string
	matcher  language.Matcher
}

// NewCatalog parses the embedded message catalog.
func NewCatalog() (*Catalog, error) {
	var raw map[string]map[string]string
	if err := yaml.Unmarshal(messagesYAML, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse message catalog: %w", err)
	}

	messages := make(map[string]map[core.Locale]string, len(raw))
	for key, byLang := range raw {
		entry := make(map[core.Locale]string, len(byLang))
		for lang, msg := range byLang {
			entry[core.Locale(lang)] = msg
		}
		if _, ok := entry[core.LocaleEnglish]; !ok {
			return nil, fmt.Errorf("message %q has no English text", key)
		}
		messages[key] = entry
	}

	return &Catalog{
		messages: messages,
		matcher:  language.NewMatcher(supportedTags),
	}, nil
}

// Translate resolves key to a locale string, substituting {name} placeholders
// from params. Unknown keys render as the key itself so a missing translation
// never hides an error.
func (c *Catalog) Translate(locale core.Locale, key string, params map[string]any) string {
	byLocale, ok := c.messages[key]
	if !ok {
		return key
	}

	msg, ok := byLocale[locale]
	if !ok {
		msg = byLocale[core.LocaleEnglish]
	}

	for name, value := range params {
		msg = strings.ReplaceAll(msg, "{"+name+"}", fmt.Sprint(value))
	}
	return msg
}

// MatchLocale maps a caller-supplied language tag to a supported locale.
// Returns false for tags that do not resolve to English or Welsh.
func (c *Catalog) MatchLocale(tag string) (core.Locale, bool) {
	if tag == "" {
		return "", false
	}

	parsed, err := language.Parse(tag)
	if err != nil {
		return "", false
	}

	_, index, confidence := c.matcher.Match(parsed)
	if confidence == language.No {
		return "", false
	}

	if supportedTags[index] == welsh {
		return core.LocaleWelsh, true
	}
	return core.LocaleEnglish, true
}

var _ core.Translator = (*Catalog)(nil)
