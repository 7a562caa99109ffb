package i18n

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Embedded(t *testing.T) {
	m, err := Load("en")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"en", "ru"}, m.Languages())

	tr := m.Translator("RU")
	assert.Equal(t, "ru", tr.Lang())
	assert.Contains(t, tr.T("link.expired"), "истёк")
}

func TestTranslator_FallsBackToDefault(t *testing.T) {
	fsys := fstest.MapFS{
		"l/en.yaml": {Data: []byte("en:\n  a: A\n  b:\n    c: C {x}\n")},
		"l/de.yaml": {Data: []byte("de:\n  a: A-de\n")},
	}
	m, err := LoadFS(fsys, "l", "en")
	require.NoError(t, err)

	tr := m.Translator("de")
	assert.Equal(t, "A-de", tr.T("a"))
	assert.Equal(t, "C 1", tr.F("b.c", Vars{"x": "1"}))
	assert.Equal(t, "missing.key", tr.T("missing.key"))

	assert.Equal(t, "en", m.Translator("fr").Lang())
}

func TestLoadFS_MissingDefault(t *testing.T) {
	fsys := fstest.MapFS{"l/de.yaml": {Data: []byte("de:\n  a: A\n")}}
	_, err := LoadFS(fsys, "l", "en")
	assert.Error(t, err)
}

func TestCatalogs_HaveSameKeys(t *testing.T) {
	m, err := Load("en")
	require.NoError(t, err)

	for key := range m.translations["en"] {
		assert.Contains(t, m.translations["ru"], key)
	}
}
