package domain

import (
	"errors"
	"fmt"
)

// ErrNotFound is the root of every "referenced id is absent" failure.
var ErrNotFound = errors.New("not found")

var (
	// ErrBoardNotFound is returned when the referenced board does not exist.
	ErrBoardNotFound = fmt.Errorf("TaskBoard %w", ErrNotFound)
	// ErrBoardOrTaskNotFound is returned when the board or the task does not exist.
	ErrBoardOrTaskNotFound = fmt.Errorf("TaskBoard or Task %w", ErrNotFound)
)
