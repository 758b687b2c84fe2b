// Package i18n translates the few display strings that end up in paths and
// notifications.
package i18n

import (
	"sync"

	"golang.org/x/text/language"
)

// Catalog maps message keys to translations per supported language.
type Catalog struct {
	mu       sync.RWMutex
	tags     []language.Tag
	messages map[language.Tag]map[string]string
	matcher  language.Matcher
}

// NewCatalog creates a catalog whose first language is the fallback.
func NewCatalog(fallback language.Tag) *Catalog {
	c := &Catalog{messages: map[language.Tag]map[string]string{}}
	c.addLanguage(fallback)
	return c
}

func (c *Catalog) addLanguage(tag language.Tag) {
	if _, ok := c.messages[tag]; ok {
		return
	}
	c.tags = append(c.tags, tag)
	c.messages[tag] = map[string]string{}
	c.matcher = language.NewMatcher(c.tags)
}

// Set registers the translation of key for tag.
func (c *Catalog) Set(tag language.Tag, key, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.addLanguage(tag)
	c.messages[tag][key] = value
}

// Translate returns key translated for locale (a BCP 47 tag or an
// Accept-Language value). It falls back to the catalog's first language,
// then to key itself.
func (c *Catalog) Translate(key, locale string) string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	tag := c.tags[0]
	if locale != "" {
		if prefs, _, err := language.ParseAcceptLanguage(locale); err == nil && len(prefs) > 0 {
			_, idx, _ := c.matcher.Match(prefs...)
			tag = c.tags[idx]
		}
	}
	if v, ok := c.messages[tag][key]; ok {
		return v
	}
	if v, ok := c.messages[c.tags[0]][key]; ok {
		return v
	}
	return key
}

// Default returns the catalog shipped with the service.
func Default() *Catalog {
	c := NewCatalog(language.French)
	c.Set(language.French, "workspace.title", "Espace documentaire")
	c.Set(language.English, "workspace.title", "Workspace")
	c.Set(language.Spanish, "workspace.title", "Espacio documental")
	c.Set(language.German, "workspace.title", "Dokumentenbereich")
	c.Set(language.Italian, "workspace.title", "Spazio documenti")
	return c
}
