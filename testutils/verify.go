// Package testutils contains fixtures shared by the tests of the vision packages.
package testutils

import (
	"go.uber.org/goleak"
)

// VerifyTestMain runs the tests of a package and fails if goroutines are left running after them.
func VerifyTestMain(m goleak.TestingM) {
	goleak.VerifyTestMain(m)
}
