package app

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
)

// TestModeEnv makes the binaries exit before opening the store, Redis or
// Gotenberg. Packages importing internal/testing/guard set it to 1.
const TestModeEnv = "CAREPOINT_TEST_MODE"

var testMode struct {
	once sync.Once
	on   atomic.Bool
}

func parseTestMode(raw string) bool {
	on, err := strconv.ParseBool(strings.TrimSpace(raw))
	return err == nil && on
}

// InTestMode reports whether TestModeEnv is set to a true value. The
// variable is read once; RefreshTestMode re-reads it.
func InTestMode() bool {
	testMode.once.Do(RefreshTestMode)
	return testMode.on.Load()
}

// RefreshTestMode re-reads TestModeEnv.
func RefreshTestMode() {
	testMode.on.Store(parseTestMode(os.Getenv(TestModeEnv)))
}

// SkipStartup reports whether the named binary must not start, logging the
// reason when it must not.
func SkipStartup(logger *slog.Logger, binary string) bool {
	if !InTestMode() {
		return false
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("test mode detected, skipping startup", slog.String("binary", binary), slog.String("env", TestModeEnv))
	return true
}
