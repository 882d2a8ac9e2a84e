package cmd

import (
	"fmt"
	"io"

	"github.com/fatih/color"
)

var (
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow, color.Bold)
	blue   = color.New(color.FgBlue)
	red    = color.New(color.FgRed)
	faint  = color.New(color.Faint)
)

// printSuccess prints a success message
func printSuccess(w io.Writer, format string, args ...interface{}) {
	green.Fprintf(w, "  → %s\n", fmt.Sprintf(format, args...))
}

// printInfo prints an info message
func printInfo(w io.Writer, format string, args ...interface{}) {
	fmt.Fprintf(w, "  → %s\n", fmt.Sprintf(format, args...))
}

// printWarning prints a warning message
func printWarning(w io.Writer, format string, args ...interface{}) {
	yellow.Fprintf(w, "  ⚠ %s\n", fmt.Sprintf(format, args...))
}

// printError prints an error message
func printError(w io.Writer, format string, args ...interface{}) {
	red.Fprintf(w, "Error: %s\n", fmt.Sprintf(format, args...))
}
