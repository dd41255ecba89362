//go:build !linux && !darwin

package main

import "errors"

// enterCbreak is unsupported here; keys are read once Enter is pressed.
func enterCbreak(fd int) (func(), error) {
	return nil, errors.New("single-key input not supported on this platform")
}
