package infrastructure

import "github.com/alessio/shellescape"

// ShellEscapeCommand renders binary and args as one copy-pasteable shell
// line for the fetch log. Process invocation never goes through a shell.
func ShellEscapeCommand(binary string, args ...string) string {
	return shellescape.QuoteCommand(append([]string{binary}, args...))
}
