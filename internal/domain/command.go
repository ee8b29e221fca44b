package domain

// ExecCommand represents an external command to be executed.
// This type is used to pass command information between layers
// without exposing implementation details.
type ExecCommand struct {
	Program string
	Dir     string
	Stdin   string
	Args    []string
	Env     []string
}

// NewCommand creates a command running program with args in dir.
func NewCommand(program string, args []string, dir string) *ExecCommand {
	return &ExecCommand{
		Program: program,
		Args:    args,
		Dir:     dir,
	}
}

// CommandOutput is the captured outcome of a finished command.
type CommandOutput struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// StartSessionOptions contains options for starting a terminal session.
type StartSessionOptions struct {
	Name       string // Session name
	Dir        string // Working directory
	Transcript string // File the session output is piped to
	Command    *ExecCommand
	Switch     bool // Switch attached clients to the new session
}
