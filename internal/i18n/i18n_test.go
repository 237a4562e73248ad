package i18n

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"
)

func newTestBundle(t *testing.T) *I18n {
	t.Helper()
	dir := t.TempDir()
	en := `[greeting]
other = "Hello"

[farewell]
other = "Goodbye, {{.Name}}"
`
	fa := `[greeting]
other = "سلام"
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "en.toml"), []byte(en), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "fa.toml"), []byte(fa), 0644))

	tr := New(language.English)
	require.NoError(t, tr.LoadTranslations(dir))
	return tr
}

func TestTranslate(t *testing.T) {
	tr := newTestBundle(t)

	assert.Equal(t, "Hello", tr.Translate("greeting", "en", nil))
	assert.Equal(t, "سلام", tr.Translate("greeting", "fa", nil))
}

func TestTranslate_FallbackToDefaultLanguage(t *testing.T) {
	tr := newTestBundle(t)

	// farewell has no Persian translation, English is the bundle default
	got := tr.Translate("farewell", "fa", map[string]interface{}{"Name": "Sara"})
	assert.Equal(t, "Goodbye, Sara", got)
}

func TestTranslate_UnknownMessageReturnsID(t *testing.T) {
	tr := newTestBundle(t)

	assert.Equal(t, "no_such_key", tr.Translate("no_such_key", "en", nil))
	assert.False(t, tr.Has("no_such_key", "en"))
	assert.True(t, tr.Has("greeting", "fa"))
}

func TestLoadTranslations_MissingDir(t *testing.T) {
	tr := New(language.English)
	assert.Error(t, tr.LoadTranslations(filepath.Join(t.TempDir(), "absent")))
}
