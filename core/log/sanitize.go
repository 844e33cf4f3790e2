package log

import (
	"crypto/sha256"
	"fmt"
	"strings"
	"sync/atomic"
)

// SanitizationMode controls how sensitive data is handled in logs
type SanitizationMode int32

const (
	// ProductionMode hashes sensitive data for production use
	ProductionMode SanitizationMode = iota
	// DevelopmentMode shows truncated sensitive data for debugging
	DevelopmentMode
	// DebugMode shows full sensitive data (only for development)
	DebugMode
)

var currentMode atomic.Int32

// ParseMode maps a log.mode config value to a SanitizationMode
func ParseMode(mode string) (SanitizationMode, error) {
	switch strings.ToLower(mode) {
	case "production", "":
		return ProductionMode, nil
	case "development":
		return DevelopmentMode, nil
	case "debug":
		return DebugMode, nil
	default:
		return ProductionMode, fmt.Errorf("unknown log mode %q", mode)
	}
}

// SetMode selects how paths are rendered in logs
func SetMode(mode SanitizationMode) {
	currentMode.Store(int32(mode))
}

// Mode returns the active sanitization mode
func Mode() SanitizationMode {
	return SanitizationMode(currentMode.Load())
}

// SanitizePath sanitizes file paths for logging based on the current mode
func SanitizePath(path string) string {
	if path == "" {
		return ""
	}

	switch Mode() {
	case DevelopmentMode:
		if len(path) <= 20 {
			return path
		}
		return path[:10] + "..." + path[len(path)-7:]
	case DebugMode:
		return path
	default:
		// Hash the path to prevent leaking sensitive filenames
		hash := sha256.Sum256([]byte(path))
		return fmt.Sprintf("hash:%x", hash[:8])
	}
}

// SanitizeSize rounds sizes to the nearest KiB in production mode
func SanitizeSize(size int64) int64 {
	if Mode() == ProductionMode {
		return (size + 512) / 1024 * 1024
	}
	return size
}
