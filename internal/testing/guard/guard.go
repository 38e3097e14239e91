// Package guard switches the process into test mode when imported, so test binaries
// skip request logging and other runtime side effects.
package guard

import (
	"os"
	"sync"
)

// Env is the variable internal/app reads to detect test mode.
const Env = "BACKOFFICE_TEST_MODE"

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv(Env) == "" {
			_ = os.Setenv(Env, "1")
		}
	})
}
