// Package printer renders the CLI's user-facing output: colored status
// lines for lifecycle steps and the structured error blocks commands return
// when an instance or agent operation cannot proceed.
package printer

import (
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
)

func init() {
	// Color by default even without a TTY; NO_COLOR opts out.
	if os.Getenv("NO_COLOR") == "" {
		color.NoColor = false
	}
}

var (
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow)
	red    = color.New(color.FgRed, color.Bold)
	cyan   = color.New(color.FgCyan)
)

// prefixed prints one formatted message through c, prepending prefix and
// sep unless the message already starts with the prefix.
func prefixed(c *color.Color, prefix, sep, format string, a ...any) {
	msg := fmt.Sprintf(format, a...)
	if strings.HasPrefix(msg, prefix) {
		c.Print(msg)
		return
	}
	c.Printf("%s%s%s", prefix, sep, msg)
}

// Success prints a green checkmarked line.
func Success(format string, a ...any) {
	prefixed(green, "✓", " ", format, a...)
}

// Info prints an uncolored informational line.
func Info(format string, a ...any) {
	fmt.Printf(format, a...)
}

// Warning prints a yellow warning line.
func Warning(format string, a ...any) {
	prefixed(yellow, "⚠️", "  ", format, a...)
}

// Failure prints a red crossed line.
func Failure(format string, a ...any) {
	prefixed(red, "✗", " ", format, a...)
}

// Step prints a cyan arrow line, used while multi-step commands progress.
func Step(format string, a ...any) {
	cyan.Printf("→ %s", fmt.Sprintf(format, a...))
}

// Error prints a structured error block to stderr (title, explanation,
// suggested fixes) and returns an error carrying only the title. Commands
// run with SilenceErrors, so the returned error sets the exit code without
// printing the message a second time.
func Error(title string, explanation string, suggestions []string) error {
	red.Fprintf(os.Stderr, "%s\n\n", title)
	fmt.Fprintf(os.Stderr, "%s\n", explanation)
	printSuggestions(suggestions)
	return fmt.Errorf("%s", title)
}

// ErrorWithContext is Error plus a key/value detail section between the
// explanation and the suggestions.
func ErrorWithContext(title string, explanation string, context map[string]string, suggestions []string) error {
	red.Fprintf(os.Stderr, "%s\n\n", title)
	if explanation != "" {
		fmt.Fprintf(os.Stderr, "%s\n", explanation)
	}

	if len(context) > 0 {
		fmt.Fprintf(os.Stderr, "\n")
		for key, value := range context {
			fmt.Fprintf(os.Stderr, "  %s: %s\n", key, value)
		}
	}

	printSuggestions(suggestions)
	return fmt.Errorf("%s", title)
}

// printSuggestions writes the fix list: bare for a single suggestion,
// numbered under an "Either:" header for several.
func printSuggestions(suggestions []string) {
	if len(suggestions) == 0 {
		return
	}

	fmt.Fprintf(os.Stderr, "\n")
	if len(suggestions) == 1 {
		fmt.Fprintf(os.Stderr, "%s\n", suggestions[0])
		return
	}

	fmt.Fprintf(os.Stderr, "Either:\n")
	for i, suggestion := range suggestions {
		fmt.Fprintf(os.Stderr, "  %d. %s\n", i+1, suggestion)
	}
}

// Println prints a plain line with no prefix or color.
func Println(a ...any) {
	fmt.Println(a...)
}

// Printf prints plain formatted text with no prefix or color.
func Printf(format string, a ...any) {
	fmt.Printf(format, a...)
}
