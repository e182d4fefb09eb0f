package spec

import (
	stderrors "errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/phillarmonic/buildcmd/internal/errors"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("Failed to create directory: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write test file: %v", err)
	}
}

func TestLoader_Load_ValidFile(t *testing.T) {
	tempDir := t.TempDir()
	writeFile(t, filepath.Join(tempDir, "buildcmd.yml"), `
env:
  CC: gcc
tasks:
  - name: compile
    help: "Compile main"
    command: ${CC} -c ${SRC} -o ${TGT}
    source: main.c
    target: main.o
`)

	loader := NewLoader(tempDir)
	bf, err := loader.Load("")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if bf.Version != "1" {
		t.Errorf("Expected default version '1', got %q", bf.Version)
	}
	if bf.Top != "." || bf.Out != "build" {
		t.Errorf("Expected default top/out '.'/'build', got %q/%q", bf.Top, bf.Out)
	}
	if bf.Options.Jobs != runtime.NumCPU() {
		t.Errorf("Expected jobs to default to %d, got %d", runtime.NumCPU(), bf.Options.Jobs)
	}
	if bf.Env["CC"] != "gcc" {
		t.Errorf("Expected CC='gcc', got %v", bf.Env["CC"])
	}
	if len(bf.Tasks) != 1 || bf.Tasks[0].Help != "Compile main" {
		t.Fatalf("Unexpected tasks: %+v", bf.Tasks)
	}
}

func TestLoader_Load_NoFile(t *testing.T) {
	loader := NewLoader(t.TempDir())
	if _, err := loader.Load(""); err == nil {
		t.Fatal("Expected error when no build file exists")
	}
}

func TestLoader_Load_InvalidYAML(t *testing.T) {
	tempDir := t.TempDir()
	writeFile(t, filepath.Join(tempDir, "buildcmd.yml"), `
tasks:
  - name: x
    command: "echo
      invalid: [unclosed
`)

	if _, err := NewLoader(tempDir).Load(""); err == nil {
		t.Fatal("Expected error for invalid YAML")
	}
}

func TestLoader_Load_ValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"no tasks", "tasks: []\n"},
		{"missing name", "tasks:\n  - command: echo\n"},
		{"duplicate name", "tasks:\n  - name: a\n    command: echo\n  - name: a\n    command: echo\n"},
		{"empty command", "tasks:\n  - name: a\n    command: '  '\n"},
		{"duplicate target", "tasks:\n  - name: a\n    command: echo\n    target: out.txt\n  - name: b\n    command: echo\n    target: ./out.txt\n"},
		{"unknown dependency", "tasks:\n  - name: a\n    command: echo\n    after: missing\n"},
		{"self dependency", "tasks:\n  - name: a\n    command: echo\n    after: a\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tempDir := t.TempDir()
			writeFile(t, filepath.Join(tempDir, "buildcmd.yml"), tt.content)

			_, err := NewLoader(tempDir).Load("")
			if err == nil {
				t.Fatal("Expected validation error")
			}
			var verr *errors.ValidationError
			if !stderrors.As(err, &verr) {
				t.Errorf("Expected ValidationError, got %T: %v", err, err)
			}
		})
	}
}

func TestLoader_Load_Includes(t *testing.T) {
	tempDir := t.TempDir()
	writeFile(t, filepath.Join(tempDir, "tasks", "a.yml"), `
env:
  CC: clang
  MODE: debug
options:
  jobs: 2
tasks:
  - name: gen
    command: echo included
  - name: shared
    command: echo from-include
`)
	writeFile(t, filepath.Join(tempDir, "buildcmd.yml"), `
out: out
include:
  - tasks/*.yml
env:
  CC: gcc
tasks:
  - name: shared
    command: echo from-main
  - name: link
    command: echo link
`)

	bf, err := NewLoader(tempDir).Load("")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if bf.Env["CC"] != "gcc" {
		t.Errorf("Expected main file to override CC, got %v", bf.Env["CC"])
	}
	if bf.Env["MODE"] != "debug" {
		t.Errorf("Expected included MODE, got %v", bf.Env["MODE"])
	}
	if bf.Options.Jobs != 2 {
		t.Errorf("Expected included jobs=2, got %d", bf.Options.Jobs)
	}
	if bf.Out != "out" {
		t.Errorf("Expected out='out', got %q", bf.Out)
	}

	var names []string
	for _, task := range bf.Tasks {
		names = append(names, task.Name)
	}
	want := []string{"gen", "shared", "link"}
	if len(names) != len(want) {
		t.Fatalf("Expected tasks %v, got %v", want, names)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("Expected tasks %v, got %v", want, names)
		}
	}
	if bf.Tasks[1].Command != "echo from-main" {
		t.Errorf("Expected main file task to win, got %q", bf.Tasks[1].Command)
	}
}

func TestLoader_Load_ExplicitFile(t *testing.T) {
	tempDir := t.TempDir()
	writeFile(t, filepath.Join(tempDir, "custom.yml"), "tasks:\n  - name: a\n    command: echo\n")

	bf, err := NewLoader(tempDir).Load("custom.yml")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if bf.Tasks[0].Name != "a" {
		t.Errorf("Unexpected task %q", bf.Tasks[0].Name)
	}
}

func TestLoader_Load_CacheFollowsModTime(t *testing.T) {
	tempDir := t.TempDir()
	path := filepath.Join(tempDir, "buildcmd.yml")
	writeFile(t, path, "tasks:\n  - name: a\n    command: echo one\n")

	loader := NewLoader(tempDir)
	first, err := loader.Load("")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	second, err := loader.Load("")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if first != second {
		t.Error("Expected cached build file to be reused")
	}

	writeFile(t, path, "tasks:\n  - name: a\n    command: echo two\n")
	later := time.Now().Add(2 * time.Second)
	if err := os.Chtimes(path, later, later); err != nil {
		t.Fatalf("Failed to touch file: %v", err)
	}

	third, err := loader.Load("")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if third.Tasks[0].Command != "echo two" {
		t.Errorf("Expected reload after modification, got %q", third.Tasks[0].Command)
	}
}
