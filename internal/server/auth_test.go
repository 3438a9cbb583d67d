package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

// TestRequireToken_NoSecret verifies the wrapper is a no-op when no
// secret is configured.
func TestRequireToken_NoSecret(t *testing.T) {
	h := requireToken("", okHandler())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/rpc", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200 without a secret", rec.Code)
	}
}

// TestRequireToken_ValidToken verifies a correct Bearer token passes.
func TestRequireToken_ValidToken(t *testing.T) {
	h := requireToken("s3cret", okHandler())
	req := httptest.NewRequest(http.MethodPost, "/rpc", nil)
	req.Header.Set("Authorization", "Bearer s3cret")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200 with a valid token", rec.Code)
	}
}

// TestRequireToken_Rejections verifies missing, malformed and wrong
// tokens all get a JSON-RPC error body with a 401.
func TestRequireToken_Rejections(t *testing.T) {
	h := requireToken("s3cret", okHandler())
	cases := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"wrong token", "Bearer nope"},
		{"no bearer prefix", "s3cret"},
		{"basic auth", "Basic czNjcmV0"},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodPost, "/rpc", nil)
		if tc.header != "" {
			req.Header.Set("Authorization", tc.header)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("%s: status = %d, want 401", tc.name, rec.Code)
			continue
		}
		var body struct {
			Jsonrpc string `json:"jsonrpc"`
			Error   struct {
				Code    int    `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
			t.Errorf("%s: body is not JSON: %v", tc.name, err)
			continue
		}
		if body.Jsonrpc != "2.0" || body.Error.Code != -32600 {
			t.Errorf("%s: body = %+v, want JSON-RPC 2.0 error", tc.name, body)
		}
	}
}

// TestValidToken verifies the comparison helper directly.
func TestValidToken(t *testing.T) {
	if !validToken("abc", "Bearer abc") {
		t.Error("matching token rejected")
	}
	if validToken("abc", "Bearer abd") {
		t.Error("mismatched token accepted")
	}
	if validToken("abc", "abc") {
		t.Error("token without Bearer prefix accepted")
	}
	if validToken("abc", "") {
		t.Error("empty header accepted")
	}
}
