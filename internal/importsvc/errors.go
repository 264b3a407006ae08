// Copyright (C) ConfigHub, Inc.
// SPDX-License-Identifier: MIT

package importsvc

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidState is returned when an action is invoked from a state that does not permit it.
	ErrInvalidState = errors.New("action not allowed in current state")

	// ErrSessionClosed is returned for a handle whose session was torn down or replaced.
	ErrSessionClosed = errors.New("import session is closed")

	// ErrCancelled is returned when the user declines the confirmation prompt.
	ErrCancelled = errors.New("import cancelled")
)

// ValidationError reports a failed preview: the server rejected the file or
// the call did not complete. The user may retry from the selected file.
type ValidationError struct {
	Message string
	Err     error
}

func (e *ValidationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("preview failed: %s: %v", e.Message, e.Err)
	}
	return "preview failed: " + e.Message
}

func (e *ValidationError) Unwrap() error { return e.Err }

// SubmissionError reports that the server did not accept the import job.
type SubmissionError struct {
	Message string
	Err     error
}

func (e *SubmissionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("import not started: %s: %v", e.Message, e.Err)
	}
	return "import not started: " + e.Message
}

func (e *SubmissionError) Unwrap() error { return e.Err }

// RuntimeImportError reports a job failure pushed over the progress channel,
// or a stall with no progress at all.
type RuntimeImportError struct {
	Message string
}

func (e *RuntimeImportError) Error() string {
	return "import failed: " + e.Message
}

// stateError wraps ErrInvalidState with the offending transition.
func stateError(action string, s Status) error {
	return fmt.Errorf("%s from %s: %w", action, s, ErrInvalidState)
}

// userMessage extracts the text to show the user from a remote failure.
func userMessage(err error) string {
	type messager interface{ Message() string }
	var m messager
	if errors.As(err, &m) {
		return m.Message()
	}
	return err.Error()
}
