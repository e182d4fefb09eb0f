package main

import (
	"os"

	"github.com/phillarmonic/buildcmd/cmd/buildcmd/app"
)

// Version information (set at build time)
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	a := app.NewApp(version, commit, date)
	if err := a.Execute(); err != nil {
		a.PrintError(err)
		os.Exit(1)
	}
}
