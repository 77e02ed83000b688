package scape

import (
	"errors"
	"fmt"
)

// ErrEnvironment marks failures raised by an environment during reset, step
// or close.
var ErrEnvironment = errors.New("environment error")

type EnvironmentError struct {
	Op      string
	Episode int
	Step    int
	Err     error
}

func (e *EnvironmentError) Error() string {
	return fmt.Sprintf("%s: %s (episode=%d step=%d): %v", ErrEnvironment, e.Op, e.Episode, e.Step, e.Err)
}

func (e *EnvironmentError) Unwrap() error {
	return e.Err
}

func (e *EnvironmentError) Is(target error) bool {
	return target == ErrEnvironment
}
