// Package testing flips the runtime into test mode for any test binary that
// imports it, so cmd entrypoints and background side effects stay inert.
package testing

import (
	"os"
	"sync"
	stdtesting "testing"
)

var once sync.Once

func ensureTestMode() {
	once.Do(func() {
		_ = os.Setenv("ODYSSEY_TEST_MODE", "1")
		if os.Getenv("PAYMENT_GATEWAY_URL") == "" {
			_ = os.Setenv("PAYMENT_GATEWAY_URL", "http://127.0.0.1:0")
		}
	})
}

func init() {
	ensureTestMode()
}

func TestMain(m *stdtesting.M) {
	ensureTestMode()
	os.Exit(m.Run())
}
