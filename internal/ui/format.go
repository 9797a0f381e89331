// Package ui renders terminal output for the starload commands.
package ui

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/AlecAivazis/survey/v2"
	"github.com/AlecAivazis/survey/v2/terminal"
	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/mgutz/ansi"

	"starload/pkg/errors"
)

var (
	// Check if output supports colors
	supportsColor = isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())

	// out receives all rendered output.
	out io.Writer = os.Stdout

	ColorSuccess  = colorFunc(ansi.Green)
	ColorError    = colorFunc(ansi.Red)
	ColorWarning  = colorFunc(ansi.Yellow)
	ColorInfo     = colorFunc(ansi.Cyan)
	ColorProgress = colorFunc(ansi.Blue)
	ColorBold     = colorFunc("default+b")
	ColorDim      = colorFunc("default+h")
)

func init() {
	color.NoColor = !supportsColor
}

// SetOutput redirects rendered output and returns the previous writer.
func SetOutput(w io.Writer) io.Writer {
	prev := out
	out = w
	return prev
}

// SetColor forces colored output on or off.
func SetColor(enabled bool) {
	supportsColor = enabled
	color.NoColor = !enabled
}

// Output returns the writer rendered output goes to.
func Output() io.Writer {
	return out
}

func colorFunc(code string) func(string) string {
	return func(text string) string {
		if supportsColor {
			return ansi.Color(text, code)
		}
		return text
	}
}

// ShowHeader displays a boxed title.
func ShowHeader(title string) {
	width := 50
	if len(title)+4 > width {
		width = len(title) + 4
	}
	padding := (width - len(title) - 2) / 2

	fmt.Fprintln(out, "\n+"+strings.Repeat("-", width-2)+"+")
	fmt.Fprintf(out, "|%s%s%s|\n",
		strings.Repeat(" ", padding),
		ColorBold(title),
		strings.Repeat(" ", width-2-padding-len(title)),
	)
	fmt.Fprintln(out, "+"+strings.Repeat("-", width-2)+"+")
}

// ShowError displays an error. Application errors show their code, context
// and suggestions.
func ShowError(err error) {
	if err == nil {
		return
	}

	var appErr *errors.AppError
	if !errors.As(err, &appErr) {
		fmt.Fprintf(out, "\n%s %s\n", ColorError("ERROR:"), err.Error())
		return
	}

	label := ColorError("ERROR:")
	if appErr.Severity == errors.SeverityWarning {
		label = ColorWarning("WARNING:")
	}
	fmt.Fprintf(out, "\n%s %s %s\n", label, ColorDim("["+string(appErr.Code)+"]"), appErr.Message)
	if appErr.Cause != nil {
		for _, line := range strings.Split(appErr.Cause.Error(), "\n") {
			fmt.Fprintf(out, "  %s\n", ColorDim(line))
		}
	}

	for _, key := range sortedKeys(appErr.Context) {
		if key == "query" {
			continue
		}
		fmt.Fprintf(out, "  %-18s %v\n", ColorDim(key+":"), appErr.Context[key])
	}

	for _, s := range appErr.Suggestions {
		fmt.Fprintf(out, "  %s %s\n", ColorInfo("TIP:"), s)
	}
}

// ShowSuccess displays a success message
func ShowSuccess(message string) {
	fmt.Fprintf(out, "%s %s\n", ColorSuccess("SUCCESS:"), message)
}

// ShowWarning displays a warning message
func ShowWarning(message string) {
	fmt.Fprintf(out, "%s %s\n", ColorWarning("WARNING:"), ColorWarning(message))
}

// ShowInfo displays an info message
func ShowInfo(message string) {
	fmt.Fprintf(out, "%s %s\n", ColorInfo("INFO:"), message)
}

// PrintSection prints a section header.
func PrintSection(title string) {
	fmt.Fprintf(out, "\n%s %s\n", ColorBold(">"), ColorBold(title))
	fmt.Fprintln(out, strings.Repeat("-", 50))
}

// PrintKeyValue prints an aligned key/value pair.
func PrintKeyValue(key, value string) {
	fmt.Fprintf(out, "  %-20s %s\n", ColorDim(key+":"), value)
}

// Confirm asks a yes/no question. An interrupt counts as an answer of no.
func Confirm(message string, defaultValue bool) (bool, error) {
	answer := defaultValue
	prompt := &survey.Confirm{
		Message: message,
		Default: defaultValue,
	}
	if err := survey.AskOne(prompt, &answer); err != nil {
		if err == terminal.InterruptErr {
			return false, nil
		}
		return false, err
	}
	return answer, nil
}

// PromptPassword reads a secret without echoing it.
func PromptPassword(message string) (string, error) {
	var password string
	prompt := &survey.Password{Message: message}
	if err := survey.AskOne(prompt, &password, survey.WithValidator(survey.Required)); err != nil {
		if err == terminal.InterruptErr {
			return "", errors.New(errors.ErrCodeCancelled, "Prompt cancelled")
		}
		return "", err
	}
	return password, nil
}

// FormatDuration formats a duration in a human-readable way
func FormatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	if d < time.Hour {
		minutes := int(d.Minutes())
		seconds := int(d.Seconds()) % 60
		return fmt.Sprintf("%dm%ds", minutes, seconds)
	}
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	return fmt.Sprintf("%dh%dm", hours, minutes)
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
