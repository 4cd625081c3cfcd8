// Package guard forces test mode on for any package that imports it,
// keeping side-effectful runtime paths out of unit tests.
package guard

import (
	"os"
	"sync"
)

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv("GATEWARDEN_TEST_MODE") == "" {
			_ = os.Setenv("GATEWARDEN_TEST_MODE", "1")
		}
	})
}
