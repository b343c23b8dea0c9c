package logging

import (
	"io"
	"log"
	"os"
)

func New() *log.Logger {
	return log.New(os.Stdout, "cidbench ", log.LstdFlags|log.LUTC)
}

// Discard returns a logger that drops everything, used when a component is
// constructed without one.
func Discard() *log.Logger {
	return log.New(io.Discard, "", 0)
}
