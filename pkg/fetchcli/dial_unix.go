//go:build !windows

package fetchcli

import (
	"context"
	"net"
	"net/http"
)

// newTransport returns the HTTP transport and base URL for the
// platform. On Unix-likes the daemon listens on a Unix domain socket;
// the host in the base URL is a placeholder, every request is dialed
// to the socket. ARCHFETCH_FORCE_TCP switches to the TCP fallback.
func newTransport() (http.RoundTripper, string) {
	if forceTCP() {
		return http.DefaultTransport, tcpBase()
	}
	path := socketPath()
	transport := &http.Transport{
		DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, "unix", path)
		},
	}
	return transport, "http://archfetch/rpc"
}
