package core

// Translator resolves a message key and parameters to a locale string.
// The engine never reads translation tables itself; a Translator is injected
// at the boundary.
type Translator interface {
	Translate(locale Locale, key string, params map[string]any) string
}

// UserMessages renders a message key in every supported locale, in the fixed
// Locales() order.
func UserMessages(t Translator, key string, params map[string]any) []TranslatedMessage {
	msgs := make([]TranslatedMessage, 0, len(Locales()))
	for _, l := range Locales() {
		msgs = append(msgs, TranslatedMessage{Lang: l, Message: t.Translate(l, key, params)})
	}
	return msgs
}

// NewFieldError builds a bilingual field error for a message key.
func NewFieldError(t Translator, field, key string, params map[string]any) FieldError {
	return FieldError{
		Field:       field,
		UserMessage: UserMessages(t, key, params),
		Message:     MessageKey{Key: key, Params: params},
	}
}
