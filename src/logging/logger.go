package logging

import (
	"io"
	"log"
	"os"
)

// New returns a component logger writing to stderr with a bracketed prefix.
func New(component string) *log.Logger {
	return NewTo(os.Stderr, component)
}

// NewTo is New with an explicit writer.
func NewTo(w io.Writer, component string) *log.Logger {
	prefix := ""
	if component != "" {
		prefix = "[" + component + "] "
	}
	return log.New(w, prefix, log.LstdFlags|log.Lmsgprefix)
}

// Discard returns a logger that drops everything. Used by tests and optional components.
func Discard() *log.Logger {
	return log.New(io.Discard, "", 0)
}

// OrDiscard returns l, or a discarding logger when l is nil.
func OrDiscard(l *log.Logger) *log.Logger {
	if l == nil {
		return Discard()
	}
	return l
}
