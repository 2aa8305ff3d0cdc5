package macro

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoader_LoadFileJS(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "main.js")
	require.NoError(t, os.WriteFile(path, []byte("1+1;"), 0o644))

	l := NewLoader()
	src, kind, err := l.Load("file://" + path)
	require.NoError(t, err)
	assert.Equal(t, "1+1;", src)
	assert.Equal(t, mediaJS, kind)
}

func TestLoader_LoadFileTypeScriptTranspiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "main.ts")
	require.NoError(t, os.WriteFile(path, []byte("let x: number = 1;"), 0o644))

	l := NewLoader()
	src, kind, err := l.Load("file://" + path)
	require.NoError(t, err)
	assert.Equal(t, mediaTypeScript, kind)
	assert.NotContains(t, src, ": number")
}

func TestLoader_UnsupportedExtensionFails(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "main.exe")
	require.NoError(t, os.WriteFile(path, []byte("bin"), 0o644))

	l := NewLoader()
	_, _, err := l.Load("file://" + path)
	assert.ErrorContains(t, err, "exe")
}

func TestLoader_LoadHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/javascript")
		_, _ = w.Write([]byte("2+2;"))
	}))
	defer srv.Close()

	l := NewLoader()
	src, kind, err := l.Load(srv.URL + "/main")
	require.NoError(t, err)
	assert.Equal(t, "2+2;", src)
	assert.Equal(t, mediaJS, kind)
}

func TestLoader_Resolve(t *testing.T) {
	l := NewLoader()
	resolved, err := l.Resolve("./util.js", "file:///macros/main.js")
	require.NoError(t, err)
	assert.Equal(t, "file:///macros/util.js", resolved)
}
