package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// DefaultActionTimeoutMS is the host timeout requested for synchronous actions.
const DefaultActionTimeoutMS = 10000

// MaxBlurbLength caps the summary shown by the host.
const MaxBlurbLength = 120

const (
	checkMark   = "✓"
	uncheckMark = "✕"
)

// variableReplaceKeys are the bundle keys the host resolves variables in before firing.
var variableReplaceKeys = []string{
	KeyExecutable,
	KeyArguments,
	KeyWorkingDirectory,
	KeyStdin,
	KeySessionAction,
	KeyBackgroundCustomLogLevel,
}

// ActionForm is the editable state of a configured action.
// Fields are ordered to minimize memory padding.
type ActionForm struct {
	Executable               string
	Arguments                string
	WorkingDirectory         string
	Stdin                    string
	SessionAction            string
	BackgroundCustomLogLevel string
	InTerminal               bool
	WaitForResult            bool
}

// FieldError describes a problem with one form field.
type FieldError struct {
	Field   string
	Message string
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Form field names used in FieldError.
const (
	FieldExecutable               = "executable"
	FieldWorkingDirectory         = "working_directory"
	FieldSessionAction            = "session_action"
	FieldBackgroundCustomLogLevel = "background_custom_log_level"
)

// Validate runs the checks that need no filesystem access.
// Fields containing host variables are not path-checked since the host
// resolves them at fire time.
func (f ActionForm) Validate(paths Paths, allowExternal bool) []FieldError {
	var errs []FieldError

	if strings.TrimSpace(f.Executable) == "" {
		errs = append(errs, FieldError{Field: FieldExecutable, Message: "executable is required"})
	} else if !ContainsVariable(f.Executable) && !allowExternal {
		resolved := paths.ResolveExecutable(f.Executable)
		if !paths.InScriptsDir(resolved) {
			errs = append(errs, FieldError{
				Field:   FieldExecutable,
				Message: fmt.Sprintf("%s is outside %s and allow_external_apps is disabled", resolved, paths.ScriptsDir),
			})
		}
	}

	if e := validateIntField(FieldSessionAction, f.SessionAction, SessionActionSwitchAndOpen, SessionActionKeepWithoutOpen); e != nil {
		errs = append(errs, *e)
	}
	if e := validateIntField(FieldBackgroundCustomLogLevel, f.BackgroundCustomLogLevel, LogLevelOff, LogLevelVerbose); e != nil {
		errs = append(errs, *e)
	}

	return errs
}

func validateIntField(field, value string, minValue, maxValue int) *FieldError {
	if value == "" || ContainsVariable(value) {
		return nil
	}
	n, err := strconv.Atoi(value)
	if err != nil || n < minValue || n > maxValue {
		return &FieldError{Field: field, Message: fmt.Sprintf("must be an integer in range [%d, %d]", minValue, maxValue)}
	}
	return nil
}

// Bundle returns the bundle for the form. With variableReplace the host is
// asked to resolve variables in the string fields.
func (f ActionForm) Bundle(variableReplace bool) Bundle {
	b := GenerateBundle(f)
	if variableReplace {
		b[KeyVariableReplaceKeys] = strings.Join(variableReplaceKeys, " ")
	}
	return b
}

// Blurb returns the short summary of the action shown by the host.
func (f ActionForm) Blurb() string {
	var sb strings.Builder

	sb.WriteString(f.Executable)
	if f.Arguments != "" {
		args := []rune(f.Arguments)
		if len(args) > 20 {
			args = args[:20]
		}
		sb.WriteString(" ")
		sb.WriteString(string(args))
	}

	sb.WriteString("\n\nWorking Directory ")
	sb.WriteString(mark(f.WorkingDirectory != ""))

	if !f.InTerminal {
		sb.WriteString("\nStdin ")
		sb.WriteString(mark(f.Stdin != ""))
		sb.WriteString("\nCustom Log Level ")
		sb.WriteString(orDash(f.BackgroundCustomLogLevel))
	} else if f.SessionAction != "" {
		sb.WriteString("\nSession Action ")
		sb.WriteString(f.SessionAction)
	}

	sb.WriteString("\nIn Terminal ")
	sb.WriteString(mark(f.InTerminal))
	sb.WriteString("\nWait For Result ")
	sb.WriteString(mark(f.WaitForResult))

	blurb := []rune(sb.String())
	if len(blurb) > MaxBlurbLength {
		blurb = blurb[:MaxBlurbLength]
	}
	return string(blurb)
}

// RelevantVariable describes a variable the action can return.
type RelevantVariable struct {
	Name        string
	Label       string
	Description string
}

// RelevantVariables lists the variables the action returns. Nothing is
// returned unless the action waits for its result; terminal executions
// have no separate stderr.
func (f ActionForm) RelevantVariables() []RelevantVariable {
	if !f.WaitForResult {
		return nil
	}
	vars := []RelevantVariable{
		{VarStdout, "Standard Output", "The stdout of the command."},
		{VarStdoutOriginalLength, "Standard Output Original Length", "The original length of stdout."},
	}
	if !f.InTerminal {
		vars = append(vars,
			RelevantVariable{VarStderr, "Standard Error", "The stderr of the command."},
			RelevantVariable{VarStderrOriginalLength, "Standard Error Original Length", "The original length of stderr."},
		)
	}
	vars = append(vars, RelevantVariable{VarResult, "Exit Code", "The exit code of the command. 0 often means success."})
	return vars
}

// FormFromBundle loads a stored bundle back into form state.
func FormFromBundle(b Bundle) ActionForm {
	return ActionForm{
		Executable:               b.GetString(KeyExecutable),
		Arguments:                b.GetString(KeyArguments),
		WorkingDirectory:         b.GetString(KeyWorkingDirectory),
		Stdin:                    b.GetString(KeyStdin),
		SessionAction:            stringOrInt(b, KeySessionAction),
		BackgroundCustomLogLevel: stringOrInt(b, KeyBackgroundCustomLogLevel),
		InTerminal:               b.GetBool(KeyTerminal),
		WaitForResult:            b.GetBool(KeyWaitForResult),
	}
}

func stringOrInt(b Bundle, key string) string {
	if n, ok := b[key].(int); ok {
		return strconv.Itoa(n)
	}
	return b.GetString(key)
}

func mark(ok bool) string {
	if ok {
		return checkMark
	}
	return uncheckMark
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
