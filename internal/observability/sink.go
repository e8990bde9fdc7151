package observability

import (
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// Sink receives human-readable progress lines from the loop. The loop
// takes a Sink at construction; there is no package-level console
// state.
type Sink interface {
	Printf(format string, args ...any)
}

// NopSink discards everything. It is the fallback when no sink is
// injected.
type NopSink struct{}

func (NopSink) Printf(format string, args ...any) {}

// ConsoleSink writes plain progress lines to a writer.
type ConsoleSink struct {
	W io.Writer
}

func NewConsoleSink() *ConsoleSink {
	return &ConsoleSink{W: os.Stdout}
}

func (c *ConsoleSink) Printf(format string, args ...any) {
	fmt.Fprintf(c.W, format+"\n", args...)
}

// Banner prints the startup header, sized to the terminal when stdout
// is one.
func (c *ConsoleSink) Banner(name, goal string) {
	width := 60
	if f, ok := c.W.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		if w, _, err := term.GetSize(int(f.Fd())); err == nil && w > 20 {
			width = w
		}
	}
	if width > 78 {
		width = 78
	}

	line := strings.Repeat("=", width)
	fmt.Fprintln(c.W, line)
	fmt.Fprintf(c.W, "%s - autonomous research agent\n", name)
	fmt.Fprintf(c.W, "goal: %s\n", goal)
	fmt.Fprintln(c.W, line)
}
