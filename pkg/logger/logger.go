package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
)

// New returns a stdlib-backed logger with component prefix. Libraries that
// expect a printf-style logger (sarama, golang-migrate) get one of these.
func New(component string) *log.Logger {
	return newLogger(os.Stdout, component)
}

func newLogger(w io.Writer, component string) *log.Logger {
	prefix := fmt.Sprintf("[%s] ", component)
	return log.New(w, prefix, log.LstdFlags|log.Lmsgprefix)
}

// Migrate adapts a component logger to golang-migrate's Logger interface.
type Migrate struct {
	*log.Logger
	verbose bool
}

// NewMigrate returns a migration logger. Verbose output is only requested
// from migrate when verbose is true.
func NewMigrate(component string, verbose bool) *Migrate {
	return &Migrate{Logger: New(component), verbose: verbose}
}

// Printf trims the trailing newline migrate appends to every line.
func (m *Migrate) Printf(format string, v ...any) {
	m.Logger.Print(strings.TrimRight(fmt.Sprintf(format, v...), "\n"))
}

func (m *Migrate) Verbose() bool { return m.verbose }
