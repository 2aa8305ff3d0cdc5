package macro

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"strings"
	"time"
)

// mediaKind classifies a resolved module by how its source must be turned
// into executable JavaScript.
type mediaKind int

const (
	mediaJS mediaKind = iota
	mediaJSON
	mediaTypeScript // .ts, .tsx, .jsx, .mts, .cts, .d.ts: requires transpilation
)

// Loader resolves module specifiers against a base URL and reads their
// source, selecting media type from the extension (falling back to
// Content-Type for http(s) fetches without a recognized extension).
type Loader struct {
	httpClient *http.Client
}

// NewLoader builds a Loader with a bounded-timeout HTTP client for http(s)
// module fetches.
func NewLoader() *Loader {
	return &Loader{httpClient: &http.Client{Timeout: 30 * time.Second}}
}

// Resolve turns a specifier relative to the calling module's URL into an
// absolute URL string.
func (l *Loader) Resolve(specifier, fromURL string) (string, error) {
	base, err := url.Parse(fromURL)
	if err != nil {
		return "", fmt.Errorf("parse base url %q: %w", fromURL, err)
	}
	ref, err := url.Parse(specifier)
	if err != nil {
		return "", fmt.Errorf("parse specifier %q: %w", specifier, err)
	}
	return base.ResolveReference(ref).String(), nil
}

// Load reads the module at moduleURL and returns its JavaScript source,
// transpiling TypeScript variants and passing JS/JSON through with minimal
// handling. Unsupported extensions fail with an error naming the extension.
func (l *Loader) Load(moduleURL string) (source string, kind mediaKind, err error) {
	u, err := url.Parse(moduleURL)
	if err != nil {
		return "", 0, fmt.Errorf("parse module url %q: %w", moduleURL, err)
	}

	var raw []byte
	var contentType string
	switch u.Scheme {
	case "file", "":
		raw, err = os.ReadFile(u.Path)
		if err != nil {
			return "", 0, fmt.Errorf("read %q: %w", u.Path, err)
		}
	case "http", "https":
		resp, err := l.httpClient.Get(moduleURL)
		if err != nil {
			return "", 0, fmt.Errorf("fetch %q: %w", moduleURL, err)
		}
		defer resp.Body.Close()
		contentType = resp.Header.Get("Content-Type")
		raw, err = io.ReadAll(resp.Body)
		if err != nil {
			return "", 0, fmt.Errorf("read body of %q: %w", moduleURL, err)
		}
	default:
		return "", 0, fmt.Errorf("unsupported module scheme %q", u.Scheme)
	}

	kind, err = classify(u.Path, contentType)
	if err != nil {
		return "", 0, err
	}

	switch kind {
	case mediaJS, mediaJSON:
		return string(raw), kind, nil
	case mediaTypeScript:
		js, err := Transpile(string(raw))
		if err != nil {
			return "", 0, fmt.Errorf("transpile %q: %w", moduleURL, err)
		}
		return js, kind, nil
	default:
		return "", 0, fmt.Errorf("unrecognized module kind for %q", moduleURL)
	}
}

func classify(p, contentType string) (mediaKind, error) {
	ext := strings.ToLower(path.Ext(p))
	if strings.HasSuffix(strings.ToLower(p), ".d.ts") {
		ext = ".d.ts"
	}

	switch ext {
	case ".ts", ".tsx", ".jsx", ".mts", ".cts", ".d.ts":
		return mediaTypeScript, nil
	case ".json":
		return mediaJSON, nil
	case ".js", ".mjs", ".cjs":
		return mediaJS, nil
	case "":
		switch {
		case strings.Contains(contentType, "typescript"):
			return mediaTypeScript, nil
		case strings.Contains(contentType, "json"):
			return mediaJSON, nil
		case strings.Contains(contentType, "javascript"):
			return mediaJS, nil
		}
		return 0, fmt.Errorf("module has no extension and an unrecognized Content-Type %q", contentType)
	default:
		return 0, fmt.Errorf("unsupported module extension %q", ext)
	}
}
