package usecase

import (
	"context"

	"github.com/runoshun/termux-tasker/internal/domain"
)

// ConfigureActionInput contains the edited form state.
type ConfigureActionInput struct {
	Form            domain.ActionForm
	VariableReplace bool // Ask the host to resolve variables in string fields
}

// ConfigureActionOutput contains what the host stores for the action.
// Fields are ordered to minimize memory padding.
type ConfigureActionOutput struct {
	Bundle    domain.Bundle
	Blurb     string
	Errors    []domain.FieldError // Block saving
	Warnings  []domain.FieldError // Filesystem problems the service may repair
	Variables []domain.RelevantVariable
	TimeoutMS int // Host timeout for actions that wait for their result
}

// Valid reports whether the action can be saved.
func (o *ConfigureActionOutput) Valid() bool {
	return len(o.Errors) == 0
}

// ConfigureAction validates a configured action and builds its bundle.
type ConfigureAction struct {
	validator     domain.PathValidator
	paths         domain.Paths
	allowExternal bool
}

// NewConfigureAction creates a new ConfigureAction use case.
func NewConfigureAction(validator domain.PathValidator, paths domain.Paths, allowExternal bool) *ConfigureAction {
	return &ConfigureAction{
		validator:     validator,
		paths:         paths,
		allowExternal: allowExternal,
	}
}

// Execute validates the form and returns the bundle, blurb and relevant variables.
// The bundle is built even when the form has errors.
func (uc *ConfigureAction) Execute(_ context.Context, in ConfigureActionInput) (*ConfigureActionOutput, error) {
	form := in.Form
	out := &ConfigureActionOutput{
		Errors:    form.Validate(uc.paths, uc.allowExternal),
		Bundle:    form.Bundle(in.VariableReplace),
		Blurb:     form.Blurb(),
		Variables: form.RelevantVariables(),
	}
	if form.WaitForResult {
		out.TimeoutMS = domain.DefaultActionTimeoutMS
	}

	if form.Executable != "" && !domain.ContainsVariable(form.Executable) {
		exe := uc.paths.ResolveExecutable(form.Executable)
		if err := uc.validator.ValidateExecutable(exe, uc.paths.ScriptsDir); err != nil {
			out.Warnings = append(out.Warnings, domain.FieldError{Field: domain.FieldExecutable, Message: err.Error()})
		}
	}
	if form.WorkingDirectory != "" && !domain.ContainsVariable(form.WorkingDirectory) {
		wd := uc.paths.ResolveWorkingDirectory(form.WorkingDirectory)
		if err := uc.validator.ValidateWorkingDirectory(wd, uc.paths.Home, !form.InTerminal); err != nil {
			out.Warnings = append(out.Warnings, domain.FieldError{Field: domain.FieldWorkingDirectory, Message: err.Error()})
		}
	}
	return out, nil
}
