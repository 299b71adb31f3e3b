package input

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "payloads.txt")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadPayloads(t *testing.T) {
	t.Parallel()
	path := writeFile(t, "/https://evil.test\n\n  //evil.test  \n\r\n%2F%2Fevil.test\n")

	got, err := LoadPayloads(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"/https://evil.test", "//evil.test", "%2F%2Fevil.test"}, got)
}

func TestLoadPayloadsMissing(t *testing.T) {
	t.Parallel()
	_, err := LoadPayloads(filepath.Join(t.TempDir(), "nope.txt"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, fs.ErrNotExist))
}

func TestLoadPayloadsEmpty(t *testing.T) {
	t.Parallel()
	_, err := LoadPayloads(writeFile(t, "\n   \n"))
	assert.ErrorIs(t, err, ErrNoPayloads)
}

func TestLoadPayloadsKeepsDuplicates(t *testing.T) {
	t.Parallel()
	got, err := LoadPayloads(writeFile(t, "a\na\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "a"}, got)
}

func TestReadTemplates(t *testing.T) {
	t.Parallel()
	in := "http://testphp.vulnweb.com/redir.php?r=FUZZ&view=FUZZ\n\nhttp://example.com/?q=test\n"

	got, err := ReadTemplates(strings.NewReader(in), "FUZZ")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"http://testphp.vulnweb.com/redir.php?r=FUZZ&view=FUZZ",
		"http://example.com/?q=FUZZ",
	}, got)
}

func TestLoadTemplates(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "urls.txt")
	require.NoError(t, os.WriteFile(path, []byte("https://a.test/?next=home\n"), 0o600))

	got, err := LoadTemplates(path, "FUZZ")
	require.NoError(t, err)
	assert.Equal(t, []string{"https://a.test/?next=FUZZ"}, got)
}
