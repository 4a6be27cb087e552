package ui

import (
	"os"
	"strings"
	"testing"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

func TestShouldUseColor(t *testing.T) {
	tests := []struct {
		name          string
		noColor       string
		cliColor      string
		cliColorForce string
		wantColor     bool
	}{
		{name: "NO_COLOR disables color", noColor: "1", wantColor: false},
		{name: "CLICOLOR=0 disables color", cliColor: "0", wantColor: false},
		{name: "CLICOLOR_FORCE enables color even in non-TTY", cliColorForce: "1", wantColor: true},
		{name: "NO_COLOR takes precedence over CLICOLOR_FORCE", noColor: "1", cliColorForce: "1", wantColor: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for key, val := range map[string]string{
				"NO_COLOR":       tt.noColor,
				"CLICOLOR":       tt.cliColor,
				"CLICOLOR_FORCE": tt.cliColorForce,
			} {
				t.Setenv(key, val)
				if val == "" {
					_ = os.Unsetenv(key)
				}
			}

			if got := ShouldUseColor(); got != tt.wantColor {
				t.Errorf("ShouldUseColor() = %v, want %v", got, tt.wantColor)
			}
		})
	}
}

func TestApplyColorMode(t *testing.T) {
	t.Cleanup(func() { lipgloss.SetColorProfile(termenv.Ascii) })

	if err := ApplyColorMode(ColorNever); err != nil {
		t.Fatalf("ApplyColorMode(never) error = %v", err)
	}
	if got := RenderPriority(0); got != "P0" {
		t.Errorf("RenderPriority(0) with color off = %q, want P0", got)
	}

	if err := ApplyColorMode(ColorAlways); err != nil {
		t.Fatalf("ApplyColorMode(always) error = %v", err)
	}
	if got := RenderFail("x"); !strings.Contains(got, "\x1b[") {
		t.Errorf("RenderFail with color forced = %q, want ANSI escapes", got)
	}

	if err := ApplyColorMode("sometimes"); err == nil {
		t.Error("ApplyColorMode(sometimes) should fail")
	}
}

func TestRenderPlain(t *testing.T) {
	lipgloss.SetColorProfile(termenv.Ascii)

	if got := RenderPriority(7); got != "P7" {
		t.Errorf("RenderPriority(7) = %q", got)
	}
	if got := RenderLabels([]string{"backend", "urgent"}); got != "[backend, urgent]" {
		t.Errorf("RenderLabels() = %q", got)
	}
	if got := RenderLabels(nil); got != "" {
		t.Errorf("RenderLabels(nil) = %q, want empty", got)
	}
	if got := RenderID("wb-a1b2"); got != "wb-a1b2" {
		t.Errorf("RenderID() = %q", got)
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in    string
		width int
		want  string
	}{
		{"short", 10, "short"},
		{"exactly10!", 10, "exactly10!"},
		{"this is too long", 10, "this is t…"},
		{"multi\nline  text", 20, "multi line text"},
		{"日本語テキスト", 5, "日本…"},
		{"anything", 0, ""},
	}
	for _, tt := range tests {
		if got := Truncate(tt.in, tt.width); got != tt.want {
			t.Errorf("Truncate(%q, %d) = %q, want %q", tt.in, tt.width, got, tt.want)
		}
	}
}

func TestTerminalWidthNonTTY(t *testing.T) {
	if IsTerminal() {
		t.Skip("stdout is a terminal")
	}
	if got := TerminalWidth(); got != defaultWidth {
		t.Errorf("TerminalWidth() = %d, want %d", got, defaultWidth)
	}
}
