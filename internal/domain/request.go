package domain

import (
	"strconv"
	"strings"
)

// Session actions for terminal executions.
const (
	SessionActionSwitchAndOpen     = 0 // Switch to the new session and bring the terminal forward
	SessionActionKeepAndOpen       = 1 // Keep the current session and bring the terminal forward
	SessionActionSwitchWithoutOpen = 2 // Switch to the new session without bringing the terminal forward
	SessionActionKeepWithoutOpen   = 3 // Keep the current session without bringing the terminal forward
)

// Custom log levels for background executions.
const (
	LogLevelOff     = 0
	LogLevelNormal  = 1
	LogLevelDebug   = 2
	LogLevelVerbose = 3
)

// ExecutionRequest is the validated content of an inbound bundle.
// Fields are ordered to minimize memory padding.
type ExecutionRequest struct {
	SessionAction            *int // nil when unset
	BackgroundCustomLogLevel *int // nil when unset
	Executable               string
	Arguments                string
	WorkingDirectory         string
	Stdin                    string
	ProtocolVersion          int
	RunInTerminal            bool
	WaitForResult            bool
}

// NewExecutionRequest reads a validated bundle into a request.
// ValidateBundle must have succeeded on b.
func NewExecutionRequest(b Bundle) (*ExecutionRequest, error) {
	req := &ExecutionRequest{
		Executable:       b.GetString(KeyExecutable),
		Arguments:        b.GetString(KeyArguments),
		WorkingDirectory: b.GetString(KeyWorkingDirectory),
		Stdin:            b.GetString(KeyStdin),
		ProtocolVersion:  b.GetInt(KeyVersionCode, 0),
		RunInTerminal:    b.GetBool(KeyTerminal),
		WaitForResult:    b.GetBool(KeyWaitForResult),
	}

	action, err := parseOptionalInt(b, KeySessionAction)
	if err != nil {
		return nil, ErrInvalidSessionAction
	}
	if action != nil && !IsValidSessionAction(*action) {
		return nil, ErrInvalidSessionAction
	}
	req.SessionAction = action

	level, err := parseOptionalInt(b, KeyBackgroundCustomLogLevel)
	if err != nil {
		return nil, ErrInvalidLogLevel
	}
	if level != nil && !IsValidCustomLogLevel(*level) {
		return nil, ErrInvalidLogLevel
	}
	req.BackgroundCustomLogLevel = level

	return req, nil
}

// IsValidSessionAction reports whether v is a known session action.
func IsValidSessionAction(v int) bool {
	return v >= SessionActionSwitchAndOpen && v <= SessionActionKeepWithoutOpen
}

// IsValidCustomLogLevel reports whether v is a known custom log level.
func IsValidCustomLogLevel(v int) bool {
	return v >= LogLevelOff && v <= LogLevelVerbose
}

// parseOptionalInt reads an integer stored either as a number or a numeric string.
// Empty strings and absent keys yield nil.
func parseOptionalInt(b Bundle, key string) (*int, error) {
	switch v := b[key].(type) {
	case nil:
		return nil, nil
	case int:
		return &v, nil
	case string:
		s := strings.TrimSpace(v)
		if s == "" || s == "null" {
			return nil, nil
		}
		n, err := strconv.Atoi(s)
		if err != nil {
			return nil, err
		}
		return &n, nil
	default:
		return nil, strconv.ErrSyntax
	}
}

// CallbackAddress tells the execution service where to deliver a result.
type CallbackAddress struct {
	Queue       string `json:"queue"` // Callback queue directory or http(s) URL
	RequestCode int    `json:"requestCode"`
}

// ExecutionIntent is the outbound message handed to the execution service.
// Fields are ordered to minimize memory padding.
type ExecutionIntent struct {
	Callback                 *CallbackAddress `json:"callback,omitempty"`
	SessionAction            *int             `json:"sessionAction,omitempty"`
	BackgroundCustomLogLevel *int             `json:"backgroundCustomLogLevel,omitempty"`
	ID                       string           `json:"id"`
	Executable               string           `json:"executable"`
	WorkingDirectory         string           `json:"workingDirectory,omitempty"`
	Stdin                    string           `json:"stdin,omitempty"`
	Args                     []string         `json:"args"`
	Background               bool             `json:"background"`
}

// Validate checks the intent has enough information to run.
func (i ExecutionIntent) Validate() error {
	if i.Executable == "" {
		return ErrEmptyExecutable
	}
	return nil
}

// RequestCode returns the correlation ID of the intent, or 0 when no callback is attached.
func (i ExecutionIntent) RequestCode() int {
	if i.Callback == nil {
		return 0
	}
	return i.Callback.RequestCode
}
