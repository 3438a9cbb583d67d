package fetchlib

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Size unit constants for byte conversions.
const (
	// B represents one byte.
	B int64 = 1
	// KB represents one kilobyte (1024 bytes).
	KB = 1024 * B
	// MB represents one megabyte (1024 kilobytes).
	MB = 1024 * KB
	// GB represents one gigabyte (1024 megabytes).
	GB = 1024 * MB
)

const (
	DEF_CHUNK_SIZE  = 32 * KB
	DEF_USER_AGENT  = "Archfetch/1.0"
	DEF_MAX_RETRIES = 5

	DEF_BASE_DELAY = 2 * time.Second
	DEF_MAX_DELAY  = 5 * time.Minute
)

// DataDirEnv is the environment variable name used to override the
// default data directory.
const DataDirEnv = "ARCHFETCH_DATA_DIR"

// DataDir returns the directory holding the state database and the
// daemon socket, creating it if necessary.
func DataDir() (string, error) {
	dir := os.Getenv(DataDirEnv)
	if dir == "" {
		cdr, err := os.UserConfigDir()
		if err != nil {
			return "", err
		}
		dir = filepath.Join(cdr, "archfetch")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	return dir, nil
}

// ParseSpeedLimit parses a human-readable speed limit string.
// Returns bytes per second. 0 means unlimited.
//
// Supported formats:
//   - Plain bytes: "100", "1024"
//   - With B suffix: "100B", "1024B"
//   - Kilobytes: "512KB", "512kb"
//   - Megabytes: "1MB", "1.5mb"
//   - Gigabytes: "1GB", "2.5gb"
//
// Returns an error for invalid formats.
func ParseSpeedLimit(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty speed limit")
	}
	if s == "0" {
		return 0, nil
	}

	s = strings.ToUpper(s)

	var numStr string
	var unit string
	for i, c := range s {
		if (c < '0' || c > '9') && c != '.' && c != '-' {
			numStr = s[:i]
			unit = s[i:]
			break
		}
	}
	if numStr == "" {
		numStr = s
		unit = ""
	}
	if numStr == "" {
		return 0, fmt.Errorf("invalid speed limit: no numeric value in %q", s)
	}
	if strings.HasPrefix(numStr, "-") {
		return 0, fmt.Errorf("invalid speed limit: negative value not allowed in %q", s)
	}

	num, err := strconv.ParseFloat(numStr, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid speed limit: %q is not a valid number", numStr)
	}

	var multiplier int64
	switch unit {
	case "", "B":
		multiplier = B
	case "KB", "K":
		multiplier = KB
	case "MB", "M":
		multiplier = MB
	case "GB", "G":
		multiplier = GB
	default:
		return 0, fmt.Errorf("invalid speed limit unit: %q (use B, KB, MB, or GB)", unit)
	}

	result := int64(num * float64(multiplier))
	if result < 0 {
		return 0, fmt.Errorf("invalid speed limit: result is negative")
	}
	return result, nil
}
