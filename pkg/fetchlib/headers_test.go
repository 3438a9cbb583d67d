package fetchlib

import (
	"net/http"
	"testing"
)

// TestHeaders_SetAndValue verifies Set replaces in place and Value
// reports absence as "".
func TestHeaders_SetAndValue(t *testing.T) {
	var h Headers
	h.Set("Authorization", "Bearer a")
	h.Set("Accept", "application/json")
	h.Set("Authorization", "Bearer b")

	if len(h) != 2 {
		t.Fatalf("len = %d, want 2", len(h))
	}
	if got := h.Value("Authorization"); got != "Bearer b" {
		t.Errorf("Value(Authorization) = %q", got)
	}
	if got := h.Value("X-Missing"); got != "" {
		t.Errorf("Value(X-Missing) = %q, want empty", got)
	}
}

// TestHeaders_Apply verifies every entry lands on the request header map.
func TestHeaders_Apply(t *testing.T) {
	h := Headers{
		{Key: "Authorization", Value: "Bearer x"},
		{Key: "Accept", Value: "application/json"},
	}
	hdr := http.Header{}
	h.Apply(hdr)

	if got := hdr.Get("Authorization"); got != "Bearer x" {
		t.Errorf("Authorization = %q", got)
	}
	if got := hdr.Get("Accept"); got != "application/json" {
		t.Errorf("Accept = %q", got)
	}
}
