// Package main provides the entry point for the warden worker tuner CLI.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/jamesainslie/warden/pkg/warden/matrix"
)

func main() {
	err := Execute()
	os.Exit(exitCode(err))
}

// exitCode maps errors to process exit codes: 0 success, 1 for cell or
// runtime failures, 2 for setup and configuration problems.
func exitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, matrix.ErrInvalidDefinition), errors.Is(err, errSetup):
		return 2
	default:
		return 1
	}
}

// errSetup marks failures that happen before any real work starts.
var errSetup = errors.New("setup failed")

func setupErr(err error) error {
	return fmt.Errorf("%w: %w", errSetup, err)
}
