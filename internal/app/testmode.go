package app

import "os"

// InTestMode reports whether the process runs under the test harness.
func InTestMode() bool {
	return os.Getenv("MERIDIAN_TEST_MODE") == "1"
}
