// Package common defines sentinel errors shared by the engine, its stores and
// the HTTP layer. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Store-level errors.
	ErrNotFound = errors.New("not found")

	// Engine-level errors.
	ErrInvalidInput   = errors.New("invalid input")
	ErrAlreadyRunning = errors.New("already running")

	// Auth errors.
	ErrUnauthorized = errors.New("unauthorized")
	ErrInvalidToken = errors.New("invalid token")
)
