package workflow

import (
	"errors"
	"fmt"
)

var (
	// ErrAlreadyRunning reports a live run for the project.
	ErrAlreadyRunning = errors.New("workflow already running")
	// ErrNotRunning reports that there is no logically running workflow to
	// resume.
	ErrNotRunning = errors.New("workflow not running")
)

// StageError carries the stage (and unit, for fan-out stages) that failed.
type StageError struct {
	Stage Stage
	Unit  int
	Err   error
}

func (e *StageError) Error() string {
	if e.Unit > 0 {
		return fmt.Sprintf("%s unit %d: %v", e.Stage, e.Unit, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }
