package i18n

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/text/language"
)

func TestTranslate(t *testing.T) {
	c := Default()

	cases := []struct {
		locale string
		want   string
	}{
		{"fr", "Espace documentaire"},
		{"en-GB", "Workspace"},
		{"es-ES,es;q=0.9", "Espacio documental"},
		{"", "Espace documentaire"},
		{"ja", "Espace documentaire"},
		{"not a locale!!", "Espace documentaire"},
	}
	for _, tc := range cases {
		t.Run(tc.locale, func(t *testing.T) {
			assert.Equal(t, tc.want, c.Translate("workspace.title", tc.locale))
		})
	}
}

func TestTranslateUnknownKey(t *testing.T) {
	c := NewCatalog(language.English)
	c.Set(language.German, "hello", "Hallo")
	assert.Equal(t, "missing.key", c.Translate("missing.key", "de"))
	assert.Equal(t, "Hallo", c.Translate("hello", "de-AT"))
}
