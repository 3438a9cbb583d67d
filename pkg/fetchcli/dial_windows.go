//go:build windows

package fetchcli

import (
	"context"
	"net"
	"net/http"
	"os"

	"github.com/Microsoft/go-winio"
)

const pipePathEnv = "ARCHFETCH_PIPE_PATH"

func pipePath() string {
	if path := os.Getenv(pipePathEnv); path != "" {
		return path
	}
	return `\\.\pipe\archfetch`
}

// newTransport returns the HTTP transport and base URL for the
// platform. On Windows the daemon listens on a named pipe; the host in
// the base URL is a placeholder, every request is dialed to the pipe.
// ARCHFETCH_FORCE_TCP switches to the TCP fallback.
func newTransport() (http.RoundTripper, string) {
	if forceTCP() {
		return http.DefaultTransport, tcpBase()
	}
	path := pipePath()
	transport := &http.Transport{
		DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
			return winio.DialPipeContext(ctx, path)
		},
	}
	return transport, "http://archfetch/rpc"
}
