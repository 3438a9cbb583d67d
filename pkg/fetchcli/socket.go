package fetchcli

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/archfetch/archfetch/common"
)

func socketPath() string {
	if path := os.Getenv(common.SocketPathEnv); path != "" {
		return path
	}
	return filepath.Join(os.TempDir(), "archfetch.sock")
}

func forceTCP() bool {
	v := os.Getenv(common.ForceTCPEnv)
	return v == "1" || v == "true"
}

func tcpPort() int {
	if v := os.Getenv(common.TCPPortEnv); v != "" {
		if port, err := strconv.Atoi(v); err == nil && port > 0 {
			return port
		}
	}
	return common.DefaultTCPPort
}

func tcpBase() string {
	return fmt.Sprintf("http://%s:%d/rpc", common.TCPHost, tcpPort())
}
