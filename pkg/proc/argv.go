package proc

import (
	"strings"

	"github.com/google/shlex"
)

// Argv contains the complete argv.
type Argv struct {
	// P is the MANDATORY program to execute.
	P string

	// V contains the OPTIONAL arguments.
	V []string
}

// NewArgv creates a new [Argv]. The program is not looked up: a missing
// binary is reported when the process is started.
func NewArgv(command string, args ...string) *Argv {
	return &Argv{P: command, V: args}
}

// SplitArgs splits extra arguments given as a single string.
func SplitArgs(s string) ([]string, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	return shlex.Split(s)
}

// String returns the quoted command line. [SplitArgs] splits it back.
func (a *Argv) String() string {
	v := make([]string, 0, len(a.V)+1)
	v = append(v, maybeQuoteArg(a.P))
	for _, arg := range a.V {
		v = append(v, maybeQuoteArg(arg))
	}
	return strings.Join(v, " ")
}

// maybeQuoteArg single-quotes an argument if the shell would split or
// expand it.
func maybeQuoteArg(a string) string {
	if a == "" {
		return "''"
	}
	if !strings.ContainsAny(a, " \t\n'\"\\$`*?[]{}()<>|&;#~") {
		return a
	}
	return "'" + strings.ReplaceAll(a, "'", `'"'"'`) + "'"
}
