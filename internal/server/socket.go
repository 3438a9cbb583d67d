package server

import (
	"os"
	"path/filepath"

	"github.com/archfetch/archfetch/common"
)

func socketPath() string {
	if path := os.Getenv(common.SocketPathEnv); path != "" {
		return path
	}
	return filepath.Join(os.TempDir(), "archfetch.sock")
}
