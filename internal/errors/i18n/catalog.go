// Package i18n provides locale-aware catalogs for user-facing error messages.
package i18n

import (
	"strings"
	"text/template"

	"golang.org/x/text/language"
)

// Code mirrors the machine-readable error code as a plain string key.
type Code = string

// Catalog holds the user-facing messages for one locale.
type Catalog struct {
	locale   string
	messages map[Code]string
}

// fallbackMessage is returned when a code has no catalog entry.
const fallbackMessage = "An unexpected error occurred"

var (
	catalogs = map[string]*Catalog{
		"en-US": enUSCatalog,
	}

	supportedTags = []language.Tag{
		language.AmericanEnglish, // en-US: first tag is the fallback
	}

	matcher = language.NewMatcher(supportedTags)
)

// GetCatalog returns the catalog that best matches the requested locale.
// Unknown or malformed locales fall back to en-US.
func GetCatalog(locale string) *Catalog {
	tag, err := language.Parse(strings.TrimSpace(locale))
	if err != nil {
		return enUSCatalog
	}
	_, index, _ := matcher.Match(tag)
	matched := supportedTags[index].String()
	if catalog, ok := catalogs[matched]; ok {
		return catalog
	}
	return enUSCatalog
}

// Locale returns the catalog's BCP 47 locale identifier.
func (c *Catalog) Locale() string {
	if c == nil {
		return "en-US"
	}
	return c.locale
}

// Format renders the message for a code, expanding {{.Key}} placeholders
// from metadata. Missing codes or template failures yield a generic message.
func (c *Catalog) Format(code Code, metadata map[string]string) string {
	if c == nil {
		return fallbackMessage
	}
	message, ok := c.messages[code]
	if !ok {
		return fallbackMessage
	}
	if len(metadata) == 0 || !strings.Contains(message, "{{") {
		return message
	}

	tmpl, err := template.New(code).Parse(message)
	if err != nil {
		return message
	}
	var builder strings.Builder
	if err := tmpl.Execute(&builder, metadata); err != nil {
		return message
	}
	return builder.String()
}
