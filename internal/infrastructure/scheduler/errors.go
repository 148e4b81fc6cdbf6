package scheduler

import "errors"

var (
	// ErrInvalidConfig is returned when configuration is invalid
	ErrInvalidConfig = errors.New("invalid scheduler configuration")

	// ErrInvalidInterval is returned when a start request carries a non-positive interval
	ErrInvalidInterval = errors.New("interval must be positive")

	// ErrShutdown is returned when starting a scheduler that has been shut down
	ErrShutdown = errors.New("scheduler is shut down")
)
