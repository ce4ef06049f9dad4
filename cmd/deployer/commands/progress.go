package commands

import (
	"fmt"
	"io"
)

// consoleObserver renders engine progress for an interactive terminal. The
// verbosity policy lives here, not in the engine: step boundaries are always
// shown, details at -v, debug output at -vv.
type consoleObserver struct {
	out       io.Writer
	verbosity int
}

func newConsoleObserver(out io.Writer, verbosity int) *consoleObserver {
	return &consoleObserver{out: out, verbosity: verbosity}
}

func (o *consoleObserver) StepStarted(index, total int, description string) {
	fmt.Fprintf(o.out, "[%d/%d] %s\n", index, total, description)
}

func (o *consoleObserver) StepCompleted(index int, description string) {
	if o.verbosity >= 1 {
		fmt.Fprintf(o.out, "      done: %s\n", description)
	}
}

func (o *consoleObserver) Detail(text string) {
	if o.verbosity >= 1 {
		fmt.Fprintf(o.out, "      %s\n", text)
	}
}

func (o *consoleObserver) Debug(text string) {
	if o.verbosity >= 2 {
		fmt.Fprintf(o.out, "      # %s\n", text)
	}
}
