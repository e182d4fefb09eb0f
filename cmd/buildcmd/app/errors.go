package app

import (
	stderrors "errors"
	"fmt"

	"github.com/phillarmonic/buildcmd/internal/errors"
)

// Domain: Error Reporting
// This file renders errors for the terminal

// PrintError writes err to the application's stderr. Template errors get a
// caret under the offending position when stderr is a terminal.
func (a *App) PrintError(err error) {
	var tmplErr *errors.TemplateError
	if stderrors.As(err, &tmplErr) && tmplErr.Offset >= 0 && isTerminal(a.stderr) {
		fmt.Fprintf(a.stderr, "Error: %v\n%s\n", err, tmplErr.FormatError())
		return
	}
	fmt.Fprintf(a.stderr, "Error: %v\n", err)
}
