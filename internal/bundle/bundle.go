// Package bundle locates a built composition bundle on disk and optionally
// serves it over loopback HTTP.
package bundle

import (
	"net/url"
	"os"
	"path/filepath"

	"framecast/internal/pkg/errors"
)

const (
	// IndexFile is the page every surface navigates to.
	IndexFile = "index.html"
	// ScriptFile is the entry script evaluated after load when injection is on.
	ScriptFile = "bundle.js"
)

// Bundle is a resolved bundle directory.
type Bundle struct {
	Dir string
	// Script is the contents of bundle.js when it was loaded.
	Script string
}

// Open resolves dir and checks it holds an index page. With loadScript the
// bundle.js entry is required and read into Script.
func Open(dir string, loadScript bool) (*Bundle, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, errors.Config("bundle_path", "resolve bundle path %q: %v", dir, err)
	}

	info, err := os.Stat(abs)
	if err != nil || !info.IsDir() {
		return nil, errors.Config("bundle_path", "bundle directory %q not found", dir)
	}
	if _, err := os.Stat(filepath.Join(abs, IndexFile)); err != nil {
		return nil, errors.Config("bundle_path", "bundle %q has no %s", dir, IndexFile)
	}

	b := &Bundle{Dir: abs}
	if loadScript {
		data, err := os.ReadFile(filepath.Join(abs, ScriptFile))
		if err != nil {
			return nil, errors.Config("bundle_path", "bundle %q has no readable %s", dir, ScriptFile)
		}
		b.Script = string(data)
	}
	return b, nil
}

// IndexURL is the file URL of the index page.
func (b *Bundle) IndexURL() string {
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(filepath.Join(b.Dir, IndexFile))}
	return u.String()
}
