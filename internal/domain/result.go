package domain

import (
	"errors"
	"fmt"
	"strconv"
	"time"
	"unicode/utf8"
)

// Host result codes.
const (
	ResultCodeOK                = -1
	ResultCodeOKMinorFailures   = 1
	ResultCodeFailed            = 2
	ResultCodePending           = 3
	ResultCodeUnknown           = 4
	ResultCodeFailedPluginFirst = 9
)

// Plugin-specific failure codes, numbered from ResultCodeFailedPluginFirst.
const (
	ResultCodeMalformedRequest = ResultCodeFailedPluginFirst + iota
	ResultCodePolicyViolation
	ResultCodeFileState
)

// ErrCodeSuccess is the callback error code for a successful execution.
const ErrCodeSuccess = 0

// ErrCodeLaunchFailed is reported by the execution service when a command cannot be started.
const ErrCodeLaunchFailed = 1

// Host variable names.
const (
	VarStdout               = "%stdout"
	VarStdoutOriginalLength = "%stdout_original_length"
	VarStderr               = "%stderr"
	VarStderrOriginalLength = "%stderr_original_length"
	VarResult               = "%result"
	VarErr                  = "%err"
	VarErrmsg               = "%errmsg"
)

// ExecutionResult is the outcome reported by the execution service.
// Fields are ordered to minimize memory padding.
type ExecutionResult struct {
	ExitCode             *int   `json:"exitCode,omitempty" yaml:"exitCode,omitempty"` // nil when not applicable
	ErrorCode            *int   `json:"err,omitempty" yaml:"err,omitempty"`           // nil or 0 means success
	Stdout               string `json:"stdout" yaml:"stdout"`
	StdoutOriginalLength string `json:"stdoutOriginalLength,omitempty" yaml:"stdoutOriginalLength,omitempty"`
	Stderr               string `json:"stderr" yaml:"stderr"`
	StderrOriginalLength string `json:"stderrOriginalLength,omitempty" yaml:"stderrOriginalLength,omitempty"`
	ErrorMessage         string `json:"errmsg,omitempty" yaml:"errmsg,omitempty"`
}

// CallbackPayload carries an execution result back to the relay.
type CallbackPayload struct {
	CreatedAt   time.Time        `json:"createdAt"`
	Result      *ExecutionResult `json:"result"`
	ID          string           `json:"id"`
	RequestCode int              `json:"requestCode"`
}

// Validate checks the payload carries a result.
func (p CallbackPayload) Validate() error {
	if p.Result == nil {
		return ErrMissingResult
	}
	return nil
}

// Variables maps host variable names to values.
type Variables map[string]string

// Reply is what the host receives, either immediately or as a finish signal.
// Fields are ordered to minimize memory padding.
type Reply struct {
	Variables   Variables `json:"variables,omitempty"`
	CallerID    string    `json:"callerId,omitempty"`
	RequestCode int       `json:"requestCode,omitempty"`
	ResultCode  int       `json:"resultCode"`
	Pending     bool      `json:"pending,omitempty"`
}

// Succeeded reports whether the reply carries the OK result code.
func (r Reply) Succeeded() bool {
	return r.ResultCode == ResultCodeOK
}

// HostResultCode maps a callback error code to a host result code.
// Codes below the success value are coerced to success; coerced reports that.
func HostResultCode(errCode *int) (code int, coerced bool) {
	if errCode == nil {
		return ResultCodeOK, false
	}
	switch {
	case *errCode < ErrCodeSuccess:
		return ResultCodeOK, true
	case *errCode == ErrCodeSuccess:
		return ResultCodeOK, false
	default:
		return *errCode, false
	}
}

// ResultCodeFor maps a dispatch error to the host result code reported for it.
func ResultCodeFor(err error) int {
	switch {
	case err == nil:
		return ResultCodeOK
	case errors.Is(err, ErrNullBundle),
		errors.Is(err, ErrInvalidBundle),
		errors.Is(err, ErrInvalidSessionAction),
		errors.Is(err, ErrInvalidLogLevel):
		return ResultCodeMalformedRequest
	case errors.Is(err, ErrExternalPathNotAllowed):
		return ResultCodePolicyViolation
	case errors.Is(err, ErrEmptyExecutable),
		errors.Is(err, ErrExecutableNotFound),
		errors.Is(err, ErrNotRegularFile),
		errors.Is(err, ErrNotReadable),
		errors.Is(err, ErrNotExecutable),
		errors.Is(err, ErrWorkingDirInvalid):
		return ResultCodeFileState
	default:
		return ResultCodeFailed
	}
}

// BuildVariables converts an execution result into host variables.
//
// Stderr variables are left out for terminal executions. An error message
// paired with a success code is dropped, and each such adjustment is
// returned as a note for logging.
func BuildVariables(r ExecutionResult, resultCode int, runInTerminal bool) (Variables, []string) {
	var notes []string

	errmsg := r.ErrorMessage
	if resultCode == ResultCodeOK && errmsg != "" {
		notes = append(notes, fmt.Sprintf("ignoring %s since result code is OK: %q", VarErrmsg, errmsg))
		errmsg = ""
	}

	exitCode := ""
	if r.ExitCode != nil {
		exitCode = strconv.Itoa(*r.ExitCode)
	}

	pairs := [][2]string{
		{VarStdout, r.Stdout},
		{VarStdoutOriginalLength, r.StdoutOriginalLength},
	}
	if !runInTerminal {
		pairs = append(pairs,
			[2]string{VarStderr, r.Stderr},
			[2]string{VarStderrOriginalLength, r.StderrOriginalLength},
		)
	}
	pairs = append(pairs,
		[2]string{VarResult, exitCode},
		[2]string{VarErrmsg, errmsg},
	)

	vars := make(Variables, len(pairs))
	for _, p := range pairs {
		if !IsValidVariableName(p[0]) {
			notes = append(notes, fmt.Sprintf("ignoring invalid variable name %q", p[0]))
			continue
		}
		vars[p[0]] = p[1]
	}
	return vars, notes
}

// ImmediateVariables returns the variables sent with a synchronous reply.
// Only the error message carries information at that point.
func ImmediateVariables(resultCode int, errmsg string) (Variables, []string) {
	return BuildVariables(ExecutionResult{ErrorMessage: errmsg}, resultCode, false)
}

// TruncateOutput keeps at most maxBytes from the end of s, cut on a UTF-8
// boundary. originalLength is the byte length of s when it was truncated
// and empty otherwise. A non-positive maxBytes disables truncation.
func TruncateOutput(s string, maxBytes int) (kept, originalLength string) {
	if maxBytes <= 0 || len(s) <= maxBytes {
		return s, ""
	}
	start := len(s) - maxBytes
	for start < len(s) && !utf8.RuneStart(s[start]) {
		start++
	}
	return s[start:], strconv.Itoa(len(s))
}
