// Package pipeline parses shell-like command lines into stages and runs them
// directly, without a shell. Supported syntax: pipes, && || ; sequencing,
// < > >> 2> 2>> 2>&1 redirections, leading NAME=value env overrides and
// "cd DIR" stages.
package pipeline

import (
	"path/filepath"
	"strings"
)

// Op connects a stage to the next one
type Op int

const (
	// OpEnd marks the last stage
	OpEnd Op = iota
	// OpPipe feeds stdout into the next command's stdin
	OpPipe
	// OpAnd runs the next job only if this one succeeded
	OpAnd
	// OpOr runs the next job only if this one failed
	OpOr
	// OpSeq runs the next job unconditionally
	OpSeq
)

// String returns the operator token
func (o Op) String() string {
	switch o {
	case OpPipe:
		return "|"
	case OpAnd:
		return "&&"
	case OpOr:
		return "||"
	case OpSeq:
		return ";"
	default:
		return ""
	}
}

// RedirectKind says where a standard stream goes
type RedirectKind int

const (
	// RedirectNone inherits the executor's stream
	RedirectNone RedirectKind = iota
	// RedirectFile reads from or writes to Path
	RedirectFile
	// RedirectPipe is connected to the neighbouring command
	RedirectPipe
	// RedirectToStdout sends stderr wherever stdout goes (2>&1)
	RedirectToStdout
)

// Redirect describes one standard stream of a command. Only RedirectFile
// carries a path; the other kinds are live stream references.
type Redirect struct {
	Kind   RedirectKind
	Path   string
	Append bool
}

// IsFile reports whether the redirect targets a path
func (r Redirect) IsFile() bool {
	return r.Kind == RedirectFile
}

// Stage is one step of a pipeline: *Command or *Chdir
type Stage interface {
	// Connector returns the operator that follows the stage
	Connector() Op
	String() string
	isStage()
}

// Command is an executable stage
type Command struct {
	Argv   []string
	Stdin  Redirect
	Stdout Redirect
	Stderr Redirect
	Env    map[string]string // nil when the stage has no overrides
	Next   Op
}

// Connector implements Stage
func (c *Command) Connector() Op { return c.Next }

func (c *Command) isStage() {}

// String renders the command back to a shell-like line
func (c *Command) String() string {
	var parts []string
	for _, k := range sortedKeys(c.Env) {
		parts = append(parts, k+"="+quote(c.Env[k]))
	}
	for _, a := range c.Argv {
		parts = append(parts, quote(a))
	}
	if c.Stdin.IsFile() {
		parts = append(parts, "<", quote(c.Stdin.Path))
	}
	if c.Stdout.IsFile() {
		op := ">"
		if c.Stdout.Append {
			op = ">>"
		}
		parts = append(parts, op, quote(c.Stdout.Path))
	}
	switch c.Stderr.Kind {
	case RedirectFile:
		op := "2>"
		if c.Stderr.Append {
			op = "2>>"
		}
		parts = append(parts, op, quote(c.Stderr.Path))
	case RedirectToStdout:
		parts = append(parts, "2>&1")
	}
	return strings.Join(parts, " ")
}

// Clone returns a deep copy of the command
func (c *Command) Clone() *Command {
	out := *c
	out.Argv = append([]string(nil), c.Argv...)
	if c.Env != nil {
		out.Env = make(map[string]string, len(c.Env))
		for k, v := range c.Env {
			out.Env[k] = v
		}
	}
	return &out
}

// Chdir changes the working directory of the stages that follow it
type Chdir struct {
	Dir  string
	Next Op
}

// Connector implements Stage
func (c *Chdir) Connector() Op { return c.Next }

func (c *Chdir) isStage() {}

// String renders the stage back to a shell-like line
func (c *Chdir) String() string {
	return "cd " + quote(c.Dir)
}

// Pipeline is an ordered list of stages
type Pipeline struct {
	Stages []Stage
}

// String renders the whole pipeline
func (p *Pipeline) String() string {
	var b strings.Builder
	for i, st := range p.Stages {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(st.String())
		if op := st.Connector(); op != OpEnd {
			b.WriteByte(' ')
			b.WriteString(op.String())
		}
	}
	return b.String()
}

// Abbrev returns a short label for the first stage: the program's base name
// or "cd"
func (p *Pipeline) Abbrev() string {
	if len(p.Stages) == 0 {
		return ""
	}
	switch st := p.Stages[0].(type) {
	case *Command:
		if len(st.Argv) == 0 {
			return ""
		}
		return filepath.Base(st.Argv[0])
	case *Chdir:
		return "cd"
	default:
		return ""
	}
}

// quote wraps a word in single quotes when it would not survive re-tokenizing
func quote(s string) string {
	if s == "" {
		return "''"
	}
	if !strings.ContainsAny(s, " \t\n'\"\\|&;<>()$`*?#~") {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'"'"'`) + "'"
}
