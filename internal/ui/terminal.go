package ui

import (
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"golang.org/x/term"
)

// Color modes accepted by --color and the color config key.
const (
	ColorAuto   = "auto"
	ColorAlways = "always"
	ColorNever  = "never"
)

// defaultWidth is used when stdout is not a terminal.
const defaultWidth = 100

// IsTerminal reports whether stdout is attached to a terminal.
func IsTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// TerminalWidth returns the stdout terminal width, or a default when
// stdout is redirected.
func TerminalWidth() int {
	if !IsTerminal() {
		return defaultWidth
	}
	w, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || w <= 0 {
		return defaultWidth
	}
	return w
}

// ShouldUseColor follows the NO_COLOR and CLICOLOR conventions, then
// falls back to whether stdout is a terminal.
// NO_COLOR wins over CLICOLOR_FORCE.
func ShouldUseColor() bool {
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		return false
	}
	if os.Getenv("CLICOLOR") == "0" {
		return false
	}
	if f := os.Getenv("CLICOLOR_FORCE"); f != "" && f != "0" {
		return true
	}
	return IsTerminal()
}

// ApplyColorMode sets the lipgloss color profile for the process.
func ApplyColorMode(mode string) error {
	switch mode {
	case "", ColorAuto:
		if !ShouldUseColor() {
			lipgloss.SetColorProfile(termenv.Ascii)
			return nil
		}
		if !IsTerminal() {
			// Forced color into a pipe: termenv would detect Ascii.
			lipgloss.SetColorProfile(termenv.ANSI256)
			return nil
		}
		lipgloss.SetColorProfile(termenv.NewOutput(os.Stdout).EnvColorProfile())
	case ColorAlways:
		lipgloss.SetColorProfile(termenv.ANSI256)
	case ColorNever:
		lipgloss.SetColorProfile(termenv.Ascii)
	default:
		return fmt.Errorf("invalid color mode %q (want auto, always or never)", mode)
	}
	return nil
}
