package app

import (
	"io"
	"os"

	"golang.org/x/term"
)

// Domain: Terminal Output
// This file decides whether output is coloured

const (
	ansiReset  = "\033[0m"
	ansiRed    = "\033[31m"
	ansiGreen  = "\033[32m"
	ansiYellow = "\033[33m"
)

// isTerminal reports whether w is a terminal. NO_COLOR disables colour.
func isTerminal(w io.Writer) bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}

type colorizer struct {
	enabled bool
}

func newColorizer(w io.Writer) colorizer {
	return colorizer{enabled: isTerminal(w)}
}

func (c colorizer) wrap(code, s string) string {
	if !c.enabled {
		return s
	}
	return code + s + ansiReset
}

func (c colorizer) red(s string) string    { return c.wrap(ansiRed, s) }
func (c colorizer) green(s string) string  { return c.wrap(ansiGreen, s) }
func (c colorizer) yellow(s string) string { return c.wrap(ansiYellow, s) }
