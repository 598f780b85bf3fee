// Package ui holds the console output helpers shared by every tcforge command.
package ui

import (
	"fmt"
	"io"
	"os"

	"github.com/gookit/color"
)

// color helpers
var (
	colInfo    = color.Info
	colWarn    = color.Warn
	colError   = color.Error
	colDanger  = color.Danger
	colSuccess = color.HEX("#1976D2")
	colArrow   = color.HEX("#FFEB3B")
)

// Printer writes "-> " prefixed notices the way every command reports progress.
// A nil *Printer discards everything.
type Printer struct {
	out     io.Writer
	debug   bool
	verbose bool
}

// NewPrinter returns a Printer writing to out, or os.Stdout when out is nil.
func NewPrinter(out io.Writer, debug, verbose bool) *Printer {
	if out == nil {
		out = os.Stdout
	}
	return &Printer{out: out, debug: debug, verbose: verbose}
}

// Writer returns the underlying writer.
func (p *Printer) Writer() io.Writer {
	if p == nil {
		return io.Discard
	}
	return p.out
}

// Verbose reports whether stage output should be mirrored to the console.
func (p *Printer) Verbose() bool {
	return p != nil && (p.verbose || p.debug)
}

func (p *Printer) arrow() {
	fmt.Fprint(p.out, colArrow.Sprint("-> "))
}

// OK prints a success notice.
func (p *Printer) OK(format string, a ...any) {
	if p == nil {
		return
	}
	p.arrow()
	fmt.Fprintln(p.out, colSuccess.Sprintf(format, a...))
}

// Info prints an informational notice.
func (p *Printer) Info(format string, a ...any) {
	if p == nil {
		return
	}
	p.arrow()
	fmt.Fprintln(p.out, colInfo.Sprintf(format, a...))
}

// Warn prints a warning.
func (p *Printer) Warn(format string, a ...any) {
	if p == nil {
		return
	}
	p.arrow()
	fmt.Fprintln(p.out, colWarn.Sprintf(format, a...))
}

// Error prints a failure notice.
func (p *Printer) Error(format string, a ...any) {
	if p == nil {
		return
	}
	p.arrow()
	fmt.Fprintln(p.out, colDanger.Sprintf(format, a...))
}

// Block prints a titled block of raw lines, used for log tails.
func (p *Printer) Block(title string, lines []string) {
	if p == nil {
		return
	}
	fmt.Fprintln(p.out, colError.Sprintf("==> %s", title))
	for _, l := range lines {
		fmt.Fprintln(p.out, l)
	}
}

// Debugf prints debug messages when debug output is enabled.
func (p *Printer) Debugf(format string, a ...any) {
	if p == nil || !p.debug {
		return
	}
	fmt.Fprintf(p.out, format, a...)
}
