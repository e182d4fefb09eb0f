package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"time"
)

// RunOptions configures pipeline execution
type RunOptions struct {
	Dir     string    // Starting working directory (default: current directory)
	Env     []string  // Base process environment (default: os.Environ())
	Stdin   io.Reader // Stdin of the first command when not redirected (nil: empty)
	Stdout  io.Writer // Where unredirected stdout goes
	Stderr  io.Writer // Where unredirected stderr goes
	Verbose bool      // Log every stage before it runs
	Log     io.Writer // Where verbose logging goes (default: Stderr)
}

// DefaultOptions returns options wired to the process streams
func DefaultOptions() *RunOptions {
	return &RunOptions{
		Stdout: os.Stdout,
		Stderr: os.Stderr,
		Log:    os.Stderr,
	}
}

// Executor runs parsed pipelines with os/exec
type Executor struct{}

// runState is the mutable state of one pipeline run
type runState struct {
	opts   *RunOptions
	dir    string
	env    []string
	status int
	index  int
	total  int
}

// Execute runs every stage in order and returns the exit status of the last
// job that ran. The error is only set for failures to start processes or
// open redirection targets; a non-zero status is not an error.
func (e Executor) Execute(ctx context.Context, p *Pipeline, opts *RunOptions) (int, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	if len(p.Stages) == 0 {
		return 0, fmt.Errorf("empty pipeline")
	}

	dir := opts.Dir
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return -1, fmt.Errorf("failed to get working directory: %w", err)
		}
		dir = wd
	}

	env := opts.Env
	if env == nil {
		env = os.Environ()
	}

	st := &runState{opts: opts, dir: dir, env: env, total: len(p.Stages)}

	run := true
	for i := 0; i < len(p.Stages); {
		job := nextJob(p.Stages, i)
		last := job[len(job)-1]

		if run {
			if err := e.runJob(ctx, st, job); err != nil {
				return st.status, err
			}
		}
		st.index += len(job)
		i += len(job)

		switch last.Connector() {
		case OpAnd:
			run = st.status == 0
		case OpOr:
			run = st.status != 0
		default:
			run = true
		}
	}

	return st.status, nil
}

// nextJob returns the stages starting at i that run together: a single cd,
// or commands joined by pipes
func nextJob(stages []Stage, i int) []Stage {
	j := i
	for j < len(stages)-1 {
		if _, ok := stages[j].(*Command); !ok || stages[j].Connector() != OpPipe {
			break
		}
		j++
	}
	return stages[i : j+1]
}

func (e Executor) runJob(ctx context.Context, st *runState, job []Stage) error {
	if cd, ok := job[0].(*Chdir); ok {
		st.logStage(0, cd)
		st.chdir(cd.Dir)
		return nil
	}

	cmds := make([]*Command, 0, len(job))
	for _, s := range job {
		cmds = append(cmds, s.(*Command))
	}

	start := time.Now()
	status, err := e.runCommands(ctx, st, cmds)
	if st.opts.Verbose {
		st.logf("    exit %d (%s)", status, time.Since(start).Round(time.Millisecond))
	}
	st.status = status
	return err
}

// chdir changes the directory of later stages. A missing directory fails
// the stage with status 1, like a shell's cd.
func (st *runState) chdir(dir string) {
	target := st.path(dir)
	info, err := os.Stat(target)
	if err != nil || !info.IsDir() {
		if st.opts.Stderr != nil {
			fmt.Fprintf(st.opts.Stderr, "cd: %s: no such directory\n", dir)
		}
		st.status = 1
		return
	}
	st.dir = target
	st.status = 0
}

// runCommands starts a pipe-connected group of commands and waits for all
// of them. The status is the last command's.
func (e Executor) runCommands(ctx context.Context, st *runState, cmds []*Command) (int, error) {
	// Parent-side copies of every file handed to a child. They are closed
	// once all children started, otherwise pipe readers never see EOF.
	var parentFiles []*os.File
	closeParent := func() {
		for _, f := range parentFiles {
			_ = f.Close()
		}
		parentFiles = nil
	}
	defer closeParent()

	procs := make([]*exec.Cmd, len(cmds))
	var pipeReader *os.File

	for i, c := range cmds {
		if len(c.Argv) == 0 {
			return -1, fmt.Errorf("command %d has no arguments", i+1)
		}

		cmd := exec.CommandContext(ctx, c.Argv[0], c.Argv[1:]...)
		cmd.Dir = st.dir
		cmd.Env = mergeEnv(st.env, c.Env)

		switch c.Stdin.Kind {
		case RedirectFile:
			f, err := os.Open(st.path(c.Stdin.Path))
			if err != nil {
				return -1, fmt.Errorf("failed to open input %s: %w", c.Stdin.Path, err)
			}
			parentFiles = append(parentFiles, f)
			cmd.Stdin = f
		case RedirectPipe:
			cmd.Stdin = pipeReader
		default:
			if i == 0 {
				cmd.Stdin = st.opts.Stdin
			}
		}

		switch c.Stdout.Kind {
		case RedirectFile:
			f, err := openOutput(st.path(c.Stdout.Path), c.Stdout.Append)
			if err != nil {
				return -1, err
			}
			parentFiles = append(parentFiles, f)
			cmd.Stdout = f
		case RedirectPipe:
			r, w, err := os.Pipe()
			if err != nil {
				return -1, fmt.Errorf("failed to create pipe: %w", err)
			}
			parentFiles = append(parentFiles, r, w)
			cmd.Stdout = w
			pipeReader = r
		default:
			cmd.Stdout = st.opts.Stdout
		}

		switch c.Stderr.Kind {
		case RedirectFile:
			f, err := openOutput(st.path(c.Stderr.Path), c.Stderr.Append)
			if err != nil {
				return -1, err
			}
			parentFiles = append(parentFiles, f)
			cmd.Stderr = f
		case RedirectToStdout:
			cmd.Stderr = cmd.Stdout
		default:
			cmd.Stderr = st.opts.Stderr
		}

		procs[i] = cmd
	}

	for i, cmd := range procs {
		st.logStage(i, cmds[i])
		if err := cmd.Start(); err != nil {
			for _, started := range procs[:i] {
				_ = started.Process.Kill()
			}
			closeParent()
			for _, started := range procs[:i] {
				_ = started.Wait()
			}
			return 127, fmt.Errorf("failed to start %s: %w", cmds[i].Argv[0], err)
		}
	}
	closeParent()

	status := 0
	var waitErr error
	for i, cmd := range procs {
		err := cmd.Wait()
		code := 0
		if err != nil {
			var exitErr *exec.ExitError
			if errors.As(err, &exitErr) {
				code = exitErr.ExitCode()
				if code < 0 {
					// killed by a signal
					code = 128
				}
			} else if waitErr == nil {
				waitErr = fmt.Errorf("command %s failed: %w", cmds[i].Argv[0], err)
				code = -1
			}
		}
		if i == len(procs)-1 {
			status = code
		}
	}

	if ctxErr := ctx.Err(); ctxErr != nil && waitErr == nil {
		waitErr = fmt.Errorf("pipeline interrupted: %w", ctxErr)
	}
	return status, waitErr
}

// path resolves p against the current stage directory
func (st *runState) path(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(st.dir, p)
}

func (st *runState) logStage(offset int, s Stage) {
	if !st.opts.Verbose {
		return
	}
	st.logf("[%d/%d] %s", st.index+offset+1, st.total, s.String())
}

func (st *runState) logf(format string, args ...any) {
	w := st.opts.Log
	if w == nil {
		w = st.opts.Stderr
	}
	if w == nil {
		return
	}
	fmt.Fprintf(w, format+"\n", args...)
}

// openOutput opens a redirection target, creating parent directories so
// outputs can land anywhere in the build tree
func openOutput(path string, appendMode bool) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory for %s: %w", path, err)
	}
	flags := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	if appendMode {
		flags = os.O_WRONLY | os.O_CREATE | os.O_APPEND
	}
	f, err := os.OpenFile(path, flags, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open output %s: %w", path, err)
	}
	return f, nil
}

// mergeEnv appends overrides to base; exec keeps the last value of a key
func mergeEnv(base []string, overrides map[string]string) []string {
	if len(overrides) == 0 {
		return base
	}
	out := make([]string, 0, len(base)+len(overrides))
	out = append(out, base...)
	for _, k := range sortedKeys(overrides) {
		out = append(out, k+"="+overrides[k])
	}
	return out
}
