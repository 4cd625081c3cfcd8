package app

import (
	"os"
	"sync"
	"sync/atomic"
)

const testModeEnv = "GATEWARDEN_TEST_MODE"

var (
	testModeOnce sync.Once
	testModeFlag atomic.Bool
)

// InTestMode reports whether runtime side effects (servers, pools,
// workers) should be skipped. The GATEWARDEN_TEST_MODE flag is read
// once on first call.
func InTestMode() bool {
	testModeOnce.Do(func() {
		testModeFlag.Store(os.Getenv(testModeEnv) == "1")
	})
	return testModeFlag.Load()
}

// RefreshTestMode re-reads the flag after the environment changed
// mid-process, which only tests do.
func RefreshTestMode() {
	testModeFlag.Store(os.Getenv(testModeEnv) == "1")
}
