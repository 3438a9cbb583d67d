package fetchlib

import "net/http"

const (
	// Header keys
	USER_AGENT_KEY       = "User-Agent"
	RANGE_KEY            = "Range"
	IF_RANGE_KEY         = "If-Range"
	IF_NONE_MATCH_KEY    = "If-None-Match"
	RETRY_AFTER_KEY      = "Retry-After"
	REDUCED_PRIORITY_KEY = "X-Accept-Reduced-Priority"
)

// Headers is an ordered list of request headers carried on a task. The
// list form (rather than a map) keeps JSON encoding stable on the task
// row and the RPC wire.
type Headers []Header

// Header is one key-value pair.
type Header struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Apply copies every header onto the request header map.
func (h Headers) Apply(header http.Header) {
	for _, x := range h {
		header.Set(x.Key, x.Value)
	}
}

// Value returns the value stored for key, or "" when absent.
func (h Headers) Value(key string) string {
	for _, x := range h {
		if x.Key == key {
			return x.Value
		}
	}
	return ""
}

// Set replaces the value for key, appending a new entry when absent.
func (h *Headers) Set(key, value string) {
	for i, x := range *h {
		if x.Key == key {
			(*h)[i].Value = value
			return
		}
	}
	*h = append(*h, Header{Key: key, Value: value})
}
