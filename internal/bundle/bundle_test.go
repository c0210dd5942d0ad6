package bundle

import (
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"framecast/internal/pkg/errors"
	"framecast/internal/pkg/logger"
)

func writeBundle(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, body := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func TestOpen(t *testing.T) {
	tests := []struct {
		name       string
		files      map[string]string
		loadScript bool
		wantErr    bool
	}{
		{"index only", map[string]string{"index.html": "<html>"}, false, false},
		{"index and script", map[string]string{"index.html": "<html>", "bundle.js": "void 0"}, true, false},
		{"missing index", map[string]string{"bundle.js": "void 0"}, false, true},
		{"missing script", map[string]string{"index.html": "<html>"}, true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := Open(writeBundle(t, tt.files), tt.loadScript)
			if tt.wantErr {
				if !errors.IsConfig(err) {
					t.Fatalf("expected config error, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.loadScript && b.Script != "void 0" {
				t.Errorf("expected script contents, got %q", b.Script)
			}
		})
	}
}

func TestOpenMissingDir(t *testing.T) {
	if _, err := Open(filepath.Join(t.TempDir(), "nope"), false); !errors.IsConfig(err) {
		t.Fatalf("expected config error, got %v", err)
	}
}

func TestIndexURL(t *testing.T) {
	b, err := Open(writeBundle(t, map[string]string{"index.html": "x"}), false)
	if err != nil {
		t.Fatal(err)
	}
	u := b.IndexURL()
	if !strings.HasPrefix(u, "file:///") || !strings.HasSuffix(u, "/index.html") {
		t.Errorf("unexpected url %s", u)
	}
}

func TestServe(t *testing.T) {
	dir := writeBundle(t, map[string]string{"index.html": "<html>hello</html>", "bundle.js": "window.x = 1"})
	b, err := Open(dir, true)
	if err != nil {
		t.Fatal(err)
	}

	srv, err := Serve(b, logger.Discard())
	if err != nil {
		t.Fatal(err)
	}

	resp, err := http.Get(srv.IndexURL())
	if err != nil {
		t.Fatal(err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), "hello") {
		t.Errorf("unexpected response %d %s", resp.StatusCode, body)
	}
	if resp.Header.Get("Cache-Control") != "no-store" {
		t.Error("expected no-store cache header")
	}

	resp, err = http.Get(srv.BaseURL() + "/missing.js")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404, got %d", resp.StatusCode)
	}

	if err := srv.Close(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}
}
