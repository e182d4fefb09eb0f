// Package task binds the command engine to build tasks: a generator
// declares a command template with sources and targets, and the resulting
// Task parses, substitutes and runs it.
package task

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/phillarmonic/buildcmd/internal/command"
	"github.com/phillarmonic/buildcmd/internal/env"
	"github.com/phillarmonic/buildcmd/internal/fsnode"
	"github.com/phillarmonic/buildcmd/internal/pipeline"
)

// Generator is the declaration of one command task
type Generator struct {
	Name      string
	Command   string         // pipeline template with ${...} placeholders
	Variables map[string]any // extra names available to the template
	Source    []string       // input files, relative to the source dir
	Target    []string       // output files, relative to the build dir
}

// Executor runs a fully substituted pipeline and returns its exit status
type Executor interface {
	Execute(ctx context.Context, p *pipeline.Pipeline, opts *pipeline.RunOptions) (int, error)
}

// RunOptions configures one task run
type RunOptions struct {
	Verbose bool      // Log every pipeline stage
	Dir     string    // Working directory (default: the source dir)
	Stdout  io.Writer // default: os.Stdout
	Stderr  io.Writer // default: os.Stderr
}

// Task is a declared command task
type Task struct {
	gen      *Generator
	env      *env.Environment
	tree     *fsnode.Tree
	inputs   []*fsnode.Node
	outputs  []*fsnode.Node
	executor Executor
}

// New declares the task for gen. Input and output nodes are interned in
// tree, so declaring the same generator twice yields equal node lists.
// Nothing is executed.
func New(e *env.Environment, gen *Generator, tree *fsnode.Tree) (*Task, error) {
	if gen == nil {
		return nil, fmt.Errorf("nil task generator")
	}
	if strings.TrimSpace(gen.Command) == "" {
		return nil, fmt.Errorf("task %s: empty command", gen.Name)
	}
	if _, err := command.Scan(gen.Command); err != nil {
		return nil, fmt.Errorf("task %s: %w", gen.Name, err)
	}

	t := &Task{
		gen:      gen,
		env:      e,
		tree:     tree,
		executor: pipeline.Executor{},
	}

	for _, src := range gen.Source {
		n, err := tree.Node(src)
		if err != nil {
			return nil, fmt.Errorf("task %s: source %q: %w", gen.Name, src, err)
		}
		t.inputs = append(t.inputs, n)
	}
	for _, tgt := range gen.Target {
		n, err := tree.Output(tgt)
		if err != nil {
			return nil, fmt.Errorf("task %s: target %q: %w", gen.Name, tgt, err)
		}
		t.outputs = append(t.outputs, n)
	}

	return t, nil
}

// SetExecutor replaces the pipeline executor
func (t *Task) SetExecutor(x Executor) {
	t.executor = x
}

// Name returns the generator name
func (t *Task) Name() string { return t.gen.Name }

// Generator returns the declaration the task was built from
func (t *Task) Generator() *Generator { return t.gen }

// Env returns the task environment
func (t *Task) Env() *env.Environment { return t.env }

// Inputs returns the input nodes in declaration order
func (t *Task) Inputs() []*fsnode.Node { return t.inputs }

// Outputs returns the output nodes in declaration order
func (t *Task) Outputs() []*fsnode.Node { return t.outputs }

// Describe returns a one-line label, e.g. "copy (cp): a.txt -> build/b.txt"
func (t *Task) Describe() string {
	abbrev := "?"
	if p, err := pipeline.Parse(t.gen.Command); err == nil {
		abbrev = p.Abbrev()
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s (%s)", t.gen.Name, abbrev)

	if len(t.inputs) == 0 && len(t.outputs) == 0 {
		return b.String()
	}

	ins := make([]string, 0, len(t.inputs))
	for _, n := range t.inputs {
		ins = append(ins, n.SourcePath())
	}
	outs := make([]string, 0, len(t.outputs))
	for _, n := range t.outputs {
		outs = append(outs, t.displayOutput(n))
	}

	b.WriteString(":")
	if len(ins) > 0 {
		b.WriteString(" " + strings.Join(ins, " "))
	}
	if len(outs) > 0 {
		b.WriteString(" -> " + strings.Join(outs, " "))
	}
	return b.String()
}

// displayOutput shows build paths relative to the source dir when possible
func (t *Task) displayOutput(n *fsnode.Node) string {
	rel, err := filepath.Rel(t.tree.SourceDir(), n.BuildPath())
	if err != nil || strings.HasPrefix(rel, "..") {
		return n.BuildPath()
	}
	return filepath.ToSlash(rel)
}

// Namespace builds a fresh resolution namespace for one run
func (t *Task) Namespace() *command.Namespace {
	var envVars map[string]any
	if t.env != nil {
		envVars = t.env.Merged()
	}
	return command.NewNamespace(envVars, t.gen.Variables, t.inputs, t.outputs)
}

// Prepare parses the template and substitutes every placeholder. The
// returned pipeline is private to the caller.
func (t *Task) Prepare() (*pipeline.Pipeline, error) {
	p, err := pipeline.Parse(t.gen.Command)
	if err != nil {
		return nil, fmt.Errorf("task %s: %w", t.gen.Name, err)
	}
	if err := command.Substitute(p, t.Namespace()); err != nil {
		return nil, fmt.Errorf("task %s: %w", t.gen.Name, err)
	}
	return p, nil
}

// Run parses, substitutes and executes the command. Parse and resolution
// errors are returned before any process starts. The executor's status and
// error are returned unchanged.
func (t *Task) Run(ctx context.Context, opts RunOptions) (int, error) {
	p, err := t.Prepare()
	if err != nil {
		return -1, err
	}

	for _, n := range t.outputs {
		if err := os.MkdirAll(filepath.Dir(n.BuildPath()), 0755); err != nil {
			return -1, fmt.Errorf("task %s: failed to create output directory: %w", t.gen.Name, err)
		}
	}

	runOpts := &pipeline.RunOptions{
		Dir:     opts.Dir,
		Stdout:  opts.Stdout,
		Stderr:  opts.Stderr,
		Verbose: opts.Verbose,
	}
	if runOpts.Dir == "" {
		runOpts.Dir = t.tree.SourceDir()
	}
	if runOpts.Stdout == nil {
		runOpts.Stdout = os.Stdout
	}
	if runOpts.Stderr == nil {
		runOpts.Stderr = os.Stderr
	}
	runOpts.Log = runOpts.Stderr

	return t.executor.Execute(ctx, p, runOpts)
}
