package core

// Locale identifies one of the publication languages.
type Locale string

const (
	// LocaleEnglish is the English locale.
	LocaleEnglish Locale = "en"

	// LocaleWelsh is the Welsh locale.
	LocaleWelsh Locale = "cy"
)

// Locales returns the supported locales in a fixed order.
// View generation iterates this slice, so the order is part of the
// idempotence contract.
func Locales() []Locale {
	return []Locale{LocaleEnglish, LocaleWelsh}
}

// Valid reports whether l is a supported locale.
func (l Locale) Valid() bool {
	return l == LocaleEnglish || l == LocaleWelsh
}
