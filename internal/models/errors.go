package models

import "errors"

var (
	// ErrNotFound marks a command referencing an unknown zone or device.
	ErrNotFound = errors.New("not found")
	// ErrInvalidConfig marks a rejected configuration change; the prior
	// configuration stays in effect.
	ErrInvalidConfig = errors.New("invalid configuration")
)
