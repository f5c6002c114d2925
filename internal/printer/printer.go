package printer

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
)

var (
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow)
	red    = color.New(color.FgRed, color.Bold)
	cyan   = color.New(color.FgCyan)
	bold   = color.New(color.Bold)
)

// Output is where non-error messages are written
var Output io.Writer = os.Stdout

// Success prints a success message in green with a checkmark prefix
func Success(format string, a ...any) {
	msg := fmt.Sprintf(format, a...)
	if !strings.HasPrefix(msg, "✓") {
		msg = "✓ " + msg
	}
	green.Fprint(Output, msg)
}

// Info prints an informational message in the default color
func Info(format string, a ...any) {
	fmt.Fprintf(Output, format, a...)
}

// Warning prints a warning message in yellow
func Warning(format string, a ...any) {
	yellow.Fprintf(Output, "⚠️  %s", fmt.Sprintf(format, a...))
}

// Step prints a step message with emphasis
func Step(format string, a ...any) {
	cyan.Fprintf(Output, "→ %s", fmt.Sprintf(format, a...))
}

// Value prints a label followed by a bold value on its own line
func Value(label string, value any) {
	fmt.Fprintf(Output, "%-10s ", label+":")
	bold.Fprintf(Output, "%v\n", value)
}

// Error prints a formatted error with title, explanation and suggestions to
// stderr and returns a plain error for Cobra
func Error(title string, explanation string, suggestions []string) error {
	red.Fprintf(os.Stderr, "%s\n\n", title)

	if explanation != "" {
		fmt.Fprintf(os.Stderr, "%s\n", explanation)
	}

	if len(suggestions) > 0 {
		fmt.Fprintf(os.Stderr, "\n")
		if len(suggestions) == 1 {
			fmt.Fprintf(os.Stderr, "%s\n", suggestions[0])
		} else {
			fmt.Fprintf(os.Stderr, "Either:\n")
			for i, suggestion := range suggestions {
				fmt.Fprintf(os.Stderr, "  %d. %s\n", i+1, suggestion)
			}
		}
	}

	return fmt.Errorf("%s", title)
}
