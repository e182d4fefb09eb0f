package build

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/phillarmonic/buildcmd/internal/cache"
	"github.com/phillarmonic/buildcmd/internal/env"
	"github.com/phillarmonic/buildcmd/internal/pipeline"
)

// Explain writes what running a task would do without running it: its
// description, help, dependencies and the fully substituted pipeline
func (c *Context) Explain(w io.Writer, name string) error {
	t, ok := c.Task(name)
	if !ok {
		return fmt.Errorf("task '%s' not found", name)
	}

	fmt.Fprintf(w, "Task: %s\n", t.Describe())
	if help := c.Help(name); help != "" {
		fmt.Fprintf(w, "Help: %s\n", help)
	}
	fmt.Fprintf(w, "Working Directory: %s\n", c.tree.SourceDir())
	fmt.Fprintf(w, "Template: %s\n", t.Generator().Command)

	if after := c.after(c.byName[name]); len(after) > 0 {
		fmt.Fprintf(w, "After: %s\n", strings.Join(after, ", "))
	}
	for _, k := range sortedKeys(c.file.Tasks[c.byName[name]].Env) {
		v, _ := t.Env().Get(k)
		fmt.Fprintf(w, "Env: %s=%s\n", k, env.Stringify(v))
	}

	p, err := t.Prepare()
	if err != nil {
		return err
	}

	fmt.Fprintln(w, "Pipeline:")
	for i, st := range p.Stages {
		line := st.String()
		if op := st.Connector(); op != pipeline.OpEnd {
			line += " " + op.String()
		}
		fmt.Fprintf(w, "  %d: %s\n", i+1, line)
	}
	return nil
}

// CleanResult lists what Clean removed
type CleanResult struct {
	Removed []string
	Cache   bool
}

// Clean removes every declared output and the signature cache. Outputs are
// only removed from the build directory; source files are never touched.
func (c *Context) Clean() (*CleanResult, error) {
	res := &CleanResult{}

	for _, t := range c.tasks {
		for _, out := range t.Outputs() {
			p := out.BuildPath()
			if err := os.Remove(p); err != nil {
				if os.IsNotExist(err) {
					continue
				}
				return res, fmt.Errorf("failed to remove %s: %w", p, err)
			}
			res.Removed = append(res.Removed, out.SourcePath())
		}
	}

	dir := filepath.Dir(cache.Path(c.tree.BuildDir()))
	if _, err := os.Stat(dir); err == nil {
		if err := os.RemoveAll(dir); err != nil {
			return res, fmt.Errorf("failed to remove cache: %w", err)
		}
		res.Cache = true
	}

	return res, nil
}
