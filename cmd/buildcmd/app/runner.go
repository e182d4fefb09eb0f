package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/phillarmonic/buildcmd/internal/build"
	"github.com/phillarmonic/buildcmd/internal/cache"
	"github.com/phillarmonic/buildcmd/internal/spec"
	"github.com/phillarmonic/buildcmd/internal/watch"
	"github.com/spf13/cobra"
)

// Domain: Build Execution
// This file contains logic for loading the build file and running tasks

// session is one loaded build file with its effective options
type session struct {
	path string
	ctx  *build.Context
	opts *build.Options
}

// load reads the build file and applies command line overrides
func (a *App) load(loader *spec.Loader) (*session, error) {
	if loader == nil {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, err
		}
		loader = spec.NewLoader(cwd)
	}

	path, err := loader.Find(a.configFile)
	if err != nil {
		return nil, err
	}
	bf, err := loader.Load(path)
	if err != nil {
		return nil, err
	}

	c, err := build.NewContext(bf, filepath.Dir(path))
	if err != nil {
		return nil, err
	}

	opts := build.DefaultOptions()
	opts.Jobs = bf.Options.Jobs
	opts.Verbose = bf.Options.Verbose || a.verbose
	opts.KeepGoing = bf.Options.KeepGoing || a.keepGoing
	opts.NoCache = bf.Options.NoCache || a.noCache
	if a.jobs > 0 {
		opts.Jobs = a.jobs
	}
	opts.Stdout = a.stdout
	opts.Stderr = a.stderr
	opts.Log = a.stderr

	return &session{path: path, ctx: c, opts: opts}, nil
}

// runBuild handles `buildcmd build` and the bare root command
func (a *App) runBuild(cmd *cobra.Command, targets []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := a.load(nil)
	if err != nil {
		return err
	}

	cm, err := cache.NewManager(s.ctx.Tree().BuildDir(), cache.DefaultExpiration, s.opts.NoCache)
	if err != nil {
		return err
	}
	defer cm.Close()

	return a.buildOnce(ctx, s, cm, targets)
}

func (a *App) buildOnce(ctx context.Context, s *session, cm *cache.Manager, targets []string) error {
	b, err := build.NewBuilder(s.ctx, cm, s.opts)
	if err != nil {
		return err
	}

	start := time.Now()
	report, err := b.Build(ctx, targets)
	if err != nil {
		return err
	}
	a.printSummary(report, time.Since(start))

	if _, err := cm.CompactAbove(cache.CompactThreshold); err != nil {
		fmt.Fprintf(a.stderr, "warning: %v\n", err)
	}
	return report.Err()
}

// printSummary writes one line with the count of every status
func (a *App) printSummary(r *build.Report, elapsed time.Duration) {
	c := newColorizer(a.stderr)

	parts := []string{fmt.Sprintf("%d ok", r.Count(build.StatusSuccess))}
	if n := r.Count(build.StatusUpToDate); n > 0 {
		parts = append(parts, fmt.Sprintf("%d up to date", n))
	}
	if n := r.Count(build.StatusSkipped); n > 0 {
		parts = append(parts, c.yellow(fmt.Sprintf("%d skipped", n)))
	}
	if n := r.Count(build.StatusFailed); n > 0 {
		parts = append(parts, c.red(fmt.Sprintf("%d failed", n)))
	}

	status := c.green("build finished")
	if r.Count(build.StatusFailed) > 0 {
		status = c.red("build failed")
	}
	fmt.Fprintf(a.stderr, "%s: %s (%s)\n", status, strings.Join(parts, ", "), elapsed.Round(time.Millisecond))
}

func (a *App) runList(cmd *cobra.Command, args []string) error {
	s, err := a.load(nil)
	if err != nil {
		return err
	}

	g, err := build.NewGraph(s.ctx)
	if err != nil {
		return err
	}

	fmt.Fprintln(a.stdout, "Available tasks:")
	for _, i := range g.Order() {
		t := s.ctx.Tasks()[i]
		line := "  " + t.Describe()
		if help := s.ctx.Help(t.Name()); help != "" {
			line += "\n      " + help
		}
		fmt.Fprintln(a.stdout, line)
	}

	if a.verbose {
		return a.printCacheStats(s)
	}
	return nil
}

// printCacheStats describes the signature cache without creating it
func (a *App) printCacheStats(s *session) error {
	buildDir := s.ctx.Tree().BuildDir()
	if _, err := os.Stat(cache.Path(buildDir)); os.IsNotExist(err) {
		fmt.Fprintln(a.stdout, "Signature cache: empty")
		return nil
	}

	cm, err := cache.NewManager(buildDir, cache.DefaultExpiration, false)
	if err != nil {
		return err
	}
	defer cm.Close()

	st := cm.Stats()
	fmt.Fprintf(a.stdout, "Signature cache: %d entries, %d bytes\n", st.Keys, st.FileBytes)
	return nil
}

func (a *App) runExplain(cmd *cobra.Command, args []string) error {
	s, err := a.load(nil)
	if err != nil {
		return err
	}
	return s.ctx.Explain(a.stdout, args[0])
}

func (a *App) runClean(cmd *cobra.Command, args []string) error {
	s, err := a.load(nil)
	if err != nil {
		return err
	}

	res, err := s.ctx.Clean()
	if err != nil {
		return err
	}
	for _, p := range res.Removed {
		fmt.Fprintf(a.stdout, "removed %s\n", p)
	}
	if res.Cache {
		fmt.Fprintln(a.stdout, "removed signature cache")
	}
	return nil
}

// runWatch builds once, then rebuilds on every change of a source file.
// A change to the build file reloads it first.
func (a *App) runWatch(cmd *cobra.Command, targets []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cwd, err := os.Getwd()
	if err != nil {
		return err
	}
	loader := spec.NewLoader(cwd)

	for {
		s, err := a.load(loader)
		if err != nil {
			return err
		}

		reload, err := a.watchSession(ctx, s, targets)
		if err != nil || !reload {
			return err
		}
		loader.Invalidate(s.path)
		fmt.Fprintf(a.stderr, "%s changed, reloading\n", filepath.Base(s.path))
	}
}

// watchSession runs the watch loop for one loaded build file. It returns
// true when the build file changed and must be reloaded.
func (a *App) watchSession(ctx context.Context, s *session, targets []string) (bool, error) {
	cm, err := cache.NewManager(s.ctx.Tree().BuildDir(), cache.DefaultExpiration, s.opts.NoCache)
	if err != nil {
		return false, err
	}
	defer cm.Close()

	if err := a.buildOnce(ctx, s, cm, targets); err != nil {
		fmt.Fprintf(a.stderr, "%v\n", err)
	}

	files := watchFiles(s)
	w, err := watch.New(files, watch.Options{Log: a.stderr})
	if err != nil {
		return false, err
	}
	defer w.Close()

	fmt.Fprintf(a.stderr, "watching %d files, press Ctrl+C to stop\n", len(files))

	buildFile, _ := filepath.Abs(s.path)
	watchCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	reload := false
	err = w.Run(watchCtx, func(ctx context.Context, changed []string) error {
		for _, f := range changed {
			if f == buildFile {
				reload = true
				cancel()
				return nil
			}
		}
		fmt.Fprintf(a.stderr, "changed: %s\n", strings.Join(changed, ", "))
		return a.buildOnce(ctx, s, cm, targets)
	})
	return reload, err
}

// watchFiles lists the build file and every declared file no task produces
func watchFiles(s *session) []string {
	files := []string{s.path}
	for _, n := range s.ctx.Tree().Nodes() {
		if !n.Generated() {
			files = append(files, n.SourceFile())
		}
	}
	return files
}

// completeTargets provides autocompletion for task names
func (a *App) completeTargets(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	s, err := a.load(nil)
	if err != nil {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}

	var completions []string
	for _, t := range s.ctx.Tasks() {
		if strings.HasPrefix(t.Name(), toComplete) {
			completions = append(completions, t.Name()+"\t"+s.ctx.Help(t.Name()))
		}
	}
	return completions, cobra.ShellCompDirectiveNoFileComp
}
