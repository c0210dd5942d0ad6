package httpkit

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestWriteErr(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteErr(rec, 404, "NOT_FOUND", "render not found", map[string]any{"render_id": "rnd_1"})

	if rec.Code != 404 || rec.Header().Get("Content-Type") != "application/json" {
		t.Fatalf("unexpected response %d %q", rec.Code, rec.Header().Get("Content-Type"))
	}
	var env ErrorEnvelope
	if err := json.NewDecoder(rec.Body).Decode(&env); err != nil {
		t.Fatal(err)
	}
	if env.Error.Code != "NOT_FOUND" || env.Error.Details["render_id"] != "rnd_1" {
		t.Errorf("unexpected envelope %+v", env)
	}
}

func TestDecodeJSONRejectsUnknownFields(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"a":1,"b":2}`))
	var v struct {
		A int `json:"a"`
	}
	if err := DecodeJSON(req, &v); err == nil {
		t.Fatal("expected unknown field error")
	}
}

func TestDecodeJSONRejectsTrailingData(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"a":1} {"a":2}`))
	var v struct {
		A int `json:"a"`
	}
	if err := DecodeJSON(req, &v); err == nil {
		t.Fatal("expected trailing data error")
	}

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader("{\"a\":1}\n"))
	if err := DecodeJSON(req, &v); err != nil || v.A != 1 {
		t.Fatalf("trailing whitespace must be accepted: %v", err)
	}
}

func TestCORS(t *testing.T) {
	h := CORS(CORSOptions{AllowedOrigins: []string{"http://localhost:5173"}})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	tests := []struct {
		name       string
		method     string
		origin     string
		preflight  bool
		wantStatus int
		wantAllow  string
	}{
		{"allowed", http.MethodGet, "http://localhost:5173", false, http.StatusTeapot, "http://localhost:5173"},
		{"other origin", http.MethodGet, "http://evil.test", false, http.StatusTeapot, ""},
		{"preflight", http.MethodOptions, "http://localhost:5173", true, http.StatusNoContent, "http://localhost:5173"},
		{"plain options", http.MethodOptions, "", false, http.StatusTeapot, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/renders", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			if tt.preflight {
				req.Header.Set("Access-Control-Request-Method", "POST")
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("expected %d, got %d", tt.wantStatus, rec.Code)
			}
			if got := rec.Header().Get("Access-Control-Allow-Origin"); got != tt.wantAllow {
				t.Errorf("expected allow origin %q, got %q", tt.wantAllow, got)
			}
		})
	}
}

func TestSplitCSV(t *testing.T) {
	got := SplitCSV(" a, ,b ,")
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("unexpected split %v", got)
	}
}
