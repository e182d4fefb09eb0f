package app

import (
	"bytes"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/phillarmonic/buildcmd/internal/spec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testBuildFile = `
env:
  GREETING: hello
tasks:
  - name: upper
    help: Uppercase the input
    command: tr a-z A-Z < ${SRC} > ${TGT}
    source: in.txt
    target: upper.txt
  - name: greet
    command: echo ${GREETING} > ${TGT}
    target: greet.txt
`

func setupProject(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "buildcmd.yml"), []byte(content), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "in.txt"), []byte("abc\n"), 0644))
	return dir
}

func run(t *testing.T, dir string, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	a := NewApp("1.2.3", "abc123", "unknown")
	a.SetOutput(&stdout, &stderr)
	a.SetArgs(append([]string{"-f", filepath.Join(dir, "buildcmd.yml")}, args...))
	err := a.Execute()
	return stdout.String(), stderr.String(), err
}

func skipOnWindows(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("runs POSIX tools")
	}
}

func TestBuildCommand(t *testing.T) {
	skipOnWindows(t)
	dir := setupProject(t, testBuildFile)

	_, stderr, err := run(t, dir, "build")
	require.NoError(t, err, stderr)
	assert.Contains(t, stderr, "build finished: 2 ok")

	data, err := os.ReadFile(filepath.Join(dir, "build", "upper.txt"))
	require.NoError(t, err)
	assert.Equal(t, "ABC\n", string(data))

	data, err = os.ReadFile(filepath.Join(dir, "build", "greet.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello\n", string(data))

	_, stderr, err = run(t, dir, "build")
	require.NoError(t, err)
	assert.Contains(t, stderr, "2 up to date")
}

func TestRootCommandBuildsTargets(t *testing.T) {
	skipOnWindows(t)
	dir := setupProject(t, testBuildFile)

	_, stderr, err := run(t, dir, "greet")
	require.NoError(t, err, stderr)

	_, err = os.Stat(filepath.Join(dir, "build", "greet.txt"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, "build", "upper.txt"))
	assert.True(t, os.IsNotExist(err))
}

func TestBuildCommand_Failure(t *testing.T) {
	skipOnWindows(t)
	dir := setupProject(t, "tasks:\n  - name: bad\n    command: sh -c 'exit 3'\n")

	_, stderr, err := run(t, dir, "build")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exited with code 3")
	assert.Contains(t, stderr, "build failed")
}

func TestListCommand(t *testing.T) {
	dir := setupProject(t, testBuildFile)

	stdout, _, err := run(t, dir, "list")
	require.NoError(t, err)
	assert.Contains(t, stdout, "upper (tr): in.txt -> build/upper.txt")
	assert.Contains(t, stdout, "Uppercase the input")
	assert.Contains(t, stdout, "greet (echo): -> build/greet.txt")
}

func TestListCommand_VerboseShowsSignatureCache(t *testing.T) {
	skipOnWindows(t)
	dir := setupProject(t, testBuildFile)

	stdout, _, err := run(t, dir, "list", "-v")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Signature cache: empty")

	_, err = os.Stat(filepath.Join(dir, "build"))
	assert.True(t, os.IsNotExist(err), "list must not create the cache")

	_, _, err = run(t, dir, "build")
	require.NoError(t, err)

	stdout, _, err = run(t, dir, "list", "-v")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Signature cache: 2 entries")
}

func TestWatchFiles_SkipsGeneratedFiles(t *testing.T) {
	dir := setupProject(t, `
tasks:
  - name: upper
    command: tr a-z A-Z < ${SRC} > ${TGT}
    source: in.txt
    target: upper.txt
  - name: both
    command: cat ${SRC[0]} ${SRC[1]} > ${TGT}
    source: [in.txt, upper.txt]
    target: both.txt
`)

	a := NewApp("dev", "unknown", "unknown")
	a.configFile = filepath.Join(dir, "buildcmd.yml")
	s, err := a.load(spec.NewLoader(dir))
	require.NoError(t, err)

	src, err := filepath.Abs(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{a.configFile, filepath.Join(src, "in.txt")}, watchFiles(s))
}

func TestExplainCommand(t *testing.T) {
	dir := setupProject(t, testBuildFile)

	stdout, _, err := run(t, dir, "explain", "greet")
	require.NoError(t, err)
	assert.Contains(t, stdout, "1: echo hello > ")
	assert.Contains(t, stdout, filepath.Join("build", "greet.txt"))

	_, _, err = run(t, dir, "explain", "missing")
	assert.Error(t, err)
}

func TestCleanCommand(t *testing.T) {
	skipOnWindows(t)
	dir := setupProject(t, testBuildFile)

	_, _, err := run(t, dir, "build")
	require.NoError(t, err)

	stdout, _, err := run(t, dir, "clean")
	require.NoError(t, err)
	assert.Contains(t, stdout, "removed build/upper.txt")
	assert.Contains(t, stdout, "removed signature cache")

	_, err = os.Stat(filepath.Join(dir, "build", "upper.txt"))
	assert.True(t, os.IsNotExist(err))
}

func TestInitCommand(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "buildcmd.yml")

	var stdout bytes.Buffer
	a := NewApp("dev", "unknown", "unknown")
	a.SetOutput(&stdout, &bytes.Buffer{})
	a.SetArgs([]string{"init", "-f", target})
	require.NoError(t, a.Execute())
	assert.Contains(t, stdout.String(), "Created")

	// the starter file must itself load and substitute
	_, _, err := run(t, dir, "list")
	require.NoError(t, err)
	out, _, err := run(t, dir, "explain", "compile")
	require.NoError(t, err)
	assert.Contains(t, out, "cc -O2 -Wall -c main.c -o ")

	a = NewApp("dev", "unknown", "unknown")
	a.SetOutput(&bytes.Buffer{}, &bytes.Buffer{})
	a.SetArgs([]string{"init", "-f", target})
	assert.Error(t, a.Execute(), "existing file must not be overwritten")
}

func TestVersionCommand(t *testing.T) {
	var stdout bytes.Buffer
	a := NewApp("1.2.3", "abc123", "unknown")
	a.SetOutput(&stdout, &bytes.Buffer{})
	a.SetArgs([]string{"version"})
	require.NoError(t, a.Execute())

	out := stdout.String()
	assert.Contains(t, out, "Version 1.2.3")
	assert.Contains(t, out, "commit: abc123")
	assert.False(t, strings.Contains(out, "built:"))
}

func TestPrintError_PlainWhenNotTerminal(t *testing.T) {
	dir := setupProject(t, "tasks:\n  - name: bad\n    command: cp ${SRC\n")

	var stderr bytes.Buffer
	a := NewApp("dev", "unknown", "unknown")
	a.SetOutput(&bytes.Buffer{}, &stderr)
	a.SetArgs([]string{"-f", filepath.Join(dir, "buildcmd.yml"), "list"})
	err := a.Execute()
	require.Error(t, err)

	a.PrintError(err)
	assert.True(t, strings.HasPrefix(stderr.String(), "Error: "))
	assert.NotContains(t, stderr.String(), "\033[")
}
