// Package guard switches the process into test mode when imported for side
// effects from test files that build the application wiring.
package guard

import "os"

func init() {
	if os.Getenv("KASKITA_TEST_MODE") == "" {
		_ = os.Setenv("KASKITA_TEST_MODE", "1")
	}
}
