package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCORSMiddleware(t *testing.T) {
	mw := NewCORSMiddleware("https://admin.example.com, http://localhost:3000/")
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	handler := mw(next)

	tests := []struct {
		name       string
		method     string
		origin     string
		wantStatus int
		wantAllow  string
	}{
		{"許可オリジン", http.MethodGet, "https://admin.example.com", http.StatusOK, "https://admin.example.com"},
		{"末尾スラッシュ付きで設定したオリジン", http.MethodGet, "http://localhost:3000", http.StatusOK, "http://localhost:3000"},
		{"許可外のオリジン", http.MethodGet, "https://evil.example.com", http.StatusOK, ""},
		{"Originなし", http.MethodGet, "", http.StatusOK, ""},
		{"プリフライト", http.MethodOptions, "https://admin.example.com", http.StatusNoContent, "https://admin.example.com"},
		{"許可外のプリフライトは素通し", http.MethodOptions, "https://evil.example.com", http.StatusOK, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/storytime/dashboard/posts", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if got := w.Header().Get("Access-Control-Allow-Origin"); got != tt.wantAllow {
				t.Errorf("Allow-Origin = %q, want %q", got, tt.wantAllow)
			}
			if w.Header().Get("Vary") != "Origin" {
				t.Error("Vary: Origin should always be set")
			}
			if tt.wantAllow != "" {
				if w.Header().Get("Access-Control-Allow-Credentials") != "true" {
					t.Error("credentials should be allowed")
				}
				if got := w.Header().Get("Access-Control-Allow-Headers"); got != "Content-Type, X-CSRF-Token, X-Requested-With" {
					t.Errorf("Allow-Headers = %q", got)
				}
			}
		})
	}
}
