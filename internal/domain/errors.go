package domain

import "errors"

// Domain errors.
var (
	ErrNullBundle             = errors.New("the bundle is null")
	ErrInvalidBundle          = errors.New("invalid bundle")
	ErrEmptyExecutable        = errors.New("executable cannot be empty")
	ErrExecutableNotFound     = errors.New("executable not found")
	ErrNotRegularFile         = errors.New("executable is not a regular file")
	ErrNotReadable            = errors.New("file is not readable")
	ErrNotExecutable          = errors.New("file is not executable")
	ErrWorkingDirInvalid      = errors.New("working directory is invalid")
	ErrExternalPathNotAllowed = errors.New("executable outside the scripts directory is not allowed")
	ErrServiceStart           = errors.New("failed to start execution service")
	ErrCallbackNotFound       = errors.New("no pending callback for request code")
	ErrMissingResult          = errors.New("callback payload has no result")
	ErrInvalidVariableName    = errors.New("invalid variable name")
	ErrInvalidSessionAction   = errors.New("invalid session action")
	ErrInvalidLogLevel        = errors.New("invalid custom log level")
	ErrNotInitialized         = errors.New("state store not initialized")
	ErrConfigExists           = errors.New("config file already exists")
	ErrSessionRunning         = errors.New("session already running")
	ErrNoSession              = errors.New("no running session")
	ErrInvalidMessage         = errors.New("invalid queue message")
)
