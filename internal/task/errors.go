package task

import "errors"

var (
	ErrNoFiles      = errors.New("no files provided")
	ErrTaskNotFound = errors.New("task not found")
	ErrRunActive    = errors.New("a batch run is already active")
)
