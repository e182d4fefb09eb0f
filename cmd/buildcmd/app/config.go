package app

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/phillarmonic/buildcmd/internal/spec"
)

// Domain: Configuration Management
// This file contains logic for creating a starter build file

// initialize writes a starter build file
func (a *App) initialize() error {
	targetFile := spec.DefaultFilenames[0]
	if a.configFile != "" {
		targetFile = a.configFile
	}

	if _, err := os.Stat(targetFile); err == nil {
		return fmt.Errorf("build file '%s' already exists", targetFile)
	}

	if dir := filepath.Dir(targetFile); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory '%s': %w", dir, err)
		}
	}

	if err := os.WriteFile(targetFile, []byte(generateStarterConfig()), 0644); err != nil {
		return fmt.Errorf("failed to write build file: %w", err)
	}

	fmt.Fprintf(a.stdout, "Created %s\n", targetFile)
	fmt.Fprintln(a.stdout, "Get started with: buildcmd list")
	return nil
}

// generateStarterConfig creates a starter build file
func generateStarterConfig() string {
	return `# buildcmd build file
# Tasks are command pipelines. ${NAME} is replaced with a variable,
# ${SRC} and ${TGT} with the task's input and output files.
# Write $$ for a literal dollar sign.

version: "1"
out: build

env:
  CC: cc
  OPT: -O2
  WARN: -Wall

tasks:
  - name: compile
    help: Compile the program
    command: ${CC} ${OPT} ${WARN} -c ${SRC} -o ${TGT}
    source: main.c
    target: main.o

  - name: link
    help: Link the program
    command: ${CC} ${SRC} -o ${TGT}
    source: main.o
    target: app

  - name: checksum
    help: Record the checksum of the program
    command: cat ${SRC} | cksum > ${TGT}
    source: app
    target: app.sum
`
}
