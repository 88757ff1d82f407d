package safe

import (
	"fmt"
	"github.com/pkg/errors"
)

// ErrPanic marks errors recovered from a panicking callback.
var ErrPanic = errors.New("recovered panic")

//be safe, don't panic

// Run calls fn and turns a panic inside it into an error wrapping ErrPanic.
func Run(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			switch x := r.(type) {
			case error:
				err = errors.WithMessage(ErrPanic, x.Error())
			default:
				err = errors.WithMessage(ErrPanic, fmt.Sprintf("%v", x))
			}
		}
	}()
	err = fn()
	return err
}

// Call is Run for callbacks that also produce a value.
func Call[T any](fn func() (T, error)) (v T, err error) {
	err = Run(func() error {
		var innerErr error
		v, innerErr = fn()
		return innerErr
	})
	return v, err
}

func Go(fn func() error) chan error {
	c := make(chan error, 1)
	go func() {
		c <- Run(fn)
		close(c)
	}()
	return c
}
