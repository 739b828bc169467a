// Package testing switches binaries into test mode for packages that import it
// blank, and points document rendering at an unreachable address.
package testing

import "os"

func init() {
	_ = os.Setenv("FRESHLINE_TEST_MODE", "1")
	if os.Getenv("GOTENBERG_URL") == "" {
		_ = os.Setenv("GOTENBERG_URL", "http://127.0.0.1:0")
	}
}
