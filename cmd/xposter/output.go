package main

import (
	"fmt"
	"io"
	"os"
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorBold   = "\033[1m"
)

// msgOut receives progress and diagnostics. Stdout is kept for the final
// status line and command output.
var msgOut io.Writer = os.Stderr

func colorize(color, text string) string {
	if noColor {
		return text
	}
	return color + text + colorReset
}

func printSuccess(format string, args ...any) {
	printLine(colorGreen, "✓ ", format, args...)
}

func printError(format string, args ...any) {
	printLine(colorRed, "✗ ", format, args...)
}

func printWarning(format string, args ...any) {
	printLine(colorYellow, "⚠ ", format, args...)
}

// printStep is also the publisher's progress sink.
func printStep(format string, args ...any) {
	printLine(colorCyan, "→ ", format, args...)
}

func printStatus(label string, format string, args ...any) {
	val := fmt.Sprintf(format, args...)
	fmt.Fprintf(msgOut, "  %s %s\n", colorize(colorBold, label+":"), val)
}

func printLine(color, marker, format string, args ...any) {
	fmt.Fprintln(msgOut, colorize(color, marker+fmt.Sprintf(format, args...)))
}
