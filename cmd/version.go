package cmd

import (
	"fmt"
	"runtime"
)

// Build-time variables, overridden via -ldflags.
var (
	version   = "0.1.0"
	BuildType = "dev"
	commit    = "unknown"
	date      = "unknown"
)

func versionString() string {
	return fmt.Sprintf(
		"archfetch %s-%s (%s/%s)\nbuilt %s commit %s",
		version, BuildType, runtime.GOOS, runtime.GOARCH, date, commit,
	)
}
