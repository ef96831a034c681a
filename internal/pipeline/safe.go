package pipeline

import (
	"errors"
	"fmt"
)

// ErrPanic wraps a panic raised by an external algorithm.
var ErrPanic = errors.New("algorithm panicked")

// guard runs fn and converts a panic into an error.
func guard[T any](fn func() (T, error)) (v T, err error) {
	defer func() {
		if r := recover(); r != nil {
			var zero T
			v = zero
			err = fmt.Errorf("%w: %v", ErrPanic, r)
		}
	}()
	return fn()
}
