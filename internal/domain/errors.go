package domain

import "errors"

var (
	// ErrNotFound is returned by stores when a row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrNotEnrolled is returned when an operation needs a review state that does not exist.
	ErrNotEnrolled = errors.New("item is not scheduled")
	// ErrInvalidInput wraps request validation failures.
	ErrInvalidInput = errors.New("invalid input")
)
