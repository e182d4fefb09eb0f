package build

import (
	"context"
	"fmt"
	"io"
	"os"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/phillarmonic/buildcmd/internal/cache"
	"github.com/phillarmonic/buildcmd/internal/errors"
	"github.com/phillarmonic/buildcmd/internal/task"
	"golang.org/x/sync/errgroup"
)

// Status is the outcome of one task in a build
type Status int

const (
	StatusSuccess Status = iota
	StatusFailed
	StatusSkipped  // not run because a dependency failed or the build stopped
	StatusUpToDate // signature unchanged and outputs present
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "ok"
	case StatusFailed:
		return "failed"
	case StatusSkipped:
		return "skipped"
	case StatusUpToDate:
		return "up to date"
	default:
		return "unknown"
	}
}

// Result records what happened to one task
type Result struct {
	Task     string
	Status   Status
	ExitCode int
	Err      error
	Duration time.Duration
}

// Report is the outcome of a build, in execution order
type Report struct {
	Results []Result
}

// Count returns the number of results with status s
func (r *Report) Count(s Status) int {
	n := 0
	for _, res := range r.Results {
		if res.Status == s {
			n++
		}
	}
	return n
}

// Err returns nil when no task failed, otherwise an error wrapping the
// first failure
func (r *Report) Err() error {
	var first error
	failed := 0
	for _, res := range r.Results {
		if res.Status == StatusFailed {
			if first == nil {
				first = res.Err
			}
			failed++
		}
	}
	if failed == 0 {
		return nil
	}
	if failed == 1 {
		return first
	}
	return fmt.Errorf("%d tasks failed, first: %w", failed, first)
}

// Options configures a build
type Options struct {
	Jobs      int       // Maximum concurrent tasks
	KeepGoing bool      // Keep running independent tasks after a failure
	NoCache   bool      // Ignore stored signatures
	Verbose   bool      // Log every pipeline stage
	Stdout    io.Writer // Task stdout
	Stderr    io.Writer // Task stderr
	Log       io.Writer // Progress messages
}

// DefaultOptions returns default build options
func DefaultOptions() *Options {
	return &Options{
		Jobs:   runtime.NumCPU(),
		Stdout: os.Stdout,
		Stderr: os.Stderr,
		Log:    os.Stderr,
	}
}

// Builder runs the tasks of a Context
type Builder struct {
	ctx   *Context
	graph *Graph
	cache *cache.Manager
	opts  *Options
}

// NewBuilder creates a builder. cm may be nil, which disables up-to-date checks.
func NewBuilder(c *Context, cm *cache.Manager, opts *Options) (*Builder, error) {
	g, err := NewGraph(c)
	if err != nil {
		return nil, err
	}
	if opts == nil {
		opts = DefaultOptions()
	}
	if opts.Jobs <= 0 {
		opts.Jobs = 1
	}
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if opts.Log == nil {
		opts.Log = io.Discard
	}
	return &Builder{ctx: c, graph: g, cache: cm, opts: opts}, nil
}

// Graph returns the dependency graph
func (b *Builder) Graph() *Graph { return b.graph }

// Build runs the tasks needed for targets (every task when empty). Tasks
// start once all their dependencies succeeded or were up to date; at most
// Options.Jobs run at once. The returned error is only set for problems
// that prevent the build from starting; task failures are in the report.
func (b *Builder) Build(ctx context.Context, targets []string) (*Report, error) {
	selected, err := b.graph.Select(targets)
	if err != nil {
		return nil, err
	}

	total := len(selected)
	results := make([]Result, len(b.ctx.tasks))
	done := make([]chan struct{}, len(b.ctx.tasks))
	for _, i := range selected {
		done[i] = make(chan struct{})
	}

	var (
		started atomic.Int32
		stopped atomic.Bool
		logMu   sync.Mutex
	)
	logf := func(format string, args ...any) {
		logMu.Lock()
		defer logMu.Unlock()
		fmt.Fprintf(b.opts.Log, format+"\n", args...)
	}

	g := new(errgroup.Group)
	g.SetLimit(b.opts.Jobs)

	for _, i := range selected {
		g.Go(func() error {
			defer close(done[i])
			t := b.ctx.tasks[i]

			for _, d := range b.graph.Deps(i) {
				if done[d] == nil {
					continue
				}
				<-done[d]
				if s := results[d].Status; s == StatusFailed || s == StatusSkipped {
					results[i] = Result{Task: t.Name(), Status: StatusSkipped}
					return nil
				}
			}

			if stopped.Load() || ctx.Err() != nil {
				results[i] = Result{Task: t.Name(), Status: StatusSkipped}
				return nil
			}

			n := started.Add(1)
			res := b.runTask(ctx, t, func(format string, args ...any) {
				logf("[%d/%d] "+format, append([]any{n, total}, args...)...)
			})
			results[i] = res

			if res.Status == StatusFailed {
				logf("%s", res.Err)
				if !b.opts.KeepGoing {
					stopped.Store(true)
				}
			}
			return nil
		})
	}
	_ = g.Wait()

	report := &Report{Results: make([]Result, 0, total)}
	for _, i := range selected {
		report.Results = append(report.Results, results[i])
	}
	return report, nil
}

// runTask runs one task unless its signature shows it is up to date
func (b *Builder) runTask(ctx context.Context, t *task.Task, logf func(string, ...any)) Result {
	res := Result{Task: t.Name()}
	useCache := b.cache != nil && !b.cache.Disabled() && !b.opts.NoCache

	var sig []byte
	if useCache {
		var err error
		sig, err = Signature(t)
		if err != nil {
			res.Status = StatusFailed
			res.Err = errors.NewTaskFailedError(t.Describe(), -1, err)
			return res
		}
		if outputsExist(t) {
			if ok, err := b.cache.Matches(t.Name(), sig); err == nil && ok {
				res.Status = StatusUpToDate
				if b.opts.Verbose {
					logf("%s: up to date", t.Name())
				}
				return res
			}
		}
	}

	logf("%s", t.Describe())
	start := time.Now()
	code, err := t.Run(ctx, task.RunOptions{
		Verbose: b.opts.Verbose,
		Stdout:  b.opts.Stdout,
		Stderr:  b.opts.Stderr,
	})
	res.Duration = time.Since(start)
	res.ExitCode = code

	if err != nil || code != 0 {
		res.Status = StatusFailed
		res.Err = errors.NewTaskFailedError(t.Describe(), code, err)
		if useCache {
			_ = b.cache.Delete(t.Name())
		}
		return res
	}

	res.Status = StatusSuccess
	if useCache {
		if err := b.cache.Set(t.Name(), sig); err != nil {
			logf("warning: %s: %v", t.Name(), err)
		}
	}
	return res
}
