// Package build hosts command tasks: it declares them from a build file,
// orders them by their file dependencies and runs them in parallel.
package build

import (
	"fmt"
	"path/filepath"
	"sort"

	"github.com/phillarmonic/buildcmd/internal/env"
	"github.com/phillarmonic/buildcmd/internal/fsnode"
	"github.com/phillarmonic/buildcmd/internal/model"
	"github.com/phillarmonic/buildcmd/internal/task"
)

// Context is a declared build: the environment, the file tree and every task
type Context struct {
	file   *model.BuildFile
	root   *env.Environment
	tree   *fsnode.Tree
	tasks  []*task.Task
	byName map[string]int
}

// NewContext declares every task of bf. baseDir is the directory the build
// file was loaded from; bf.Top and bf.Out are resolved against it.
func NewContext(bf *model.BuildFile, baseDir string) (*Context, error) {
	top := bf.Top
	if !filepath.IsAbs(top) {
		top = filepath.Join(baseDir, top)
	}

	tree, err := fsnode.NewTree(top, bf.Out)
	if err != nil {
		return nil, err
	}

	c := &Context{
		file:   bf,
		root:   env.FromMap(bf.Env),
		tree:   tree,
		byName: make(map[string]int, len(bf.Tasks)),
	}

	for _, spec := range bf.Tasks {
		if _, dup := c.byName[spec.Name]; dup {
			return nil, fmt.Errorf("duplicate task name '%s'", spec.Name)
		}

		e := c.root
		if len(spec.Env) > 0 {
			e = c.root.Derive()
			for _, k := range sortedKeys(spec.Env) {
				e.Set(k, spec.Env[k])
			}
		}

		t, err := task.New(e, &task.Generator{
			Name:      spec.Name,
			Command:   spec.Command,
			Variables: spec.Variables,
			Source:    spec.Source,
			Target:    spec.Target,
		}, tree)
		if err != nil {
			return nil, err
		}

		c.byName[spec.Name] = len(c.tasks)
		c.tasks = append(c.tasks, t)
	}

	return c, nil
}

// File returns the build description
func (c *Context) File() *model.BuildFile { return c.file }

// Env returns the root build environment
func (c *Context) Env() *env.Environment { return c.root }

// Tree returns the file tree
func (c *Context) Tree() *fsnode.Tree { return c.tree }

// Tasks returns the tasks in declaration order
func (c *Context) Tasks() []*task.Task { return c.tasks }

// Task looks a task up by name
func (c *Context) Task(name string) (*task.Task, bool) {
	i, ok := c.byName[name]
	if !ok {
		return nil, false
	}
	return c.tasks[i], true
}

// Help returns the help text declared for a task
func (c *Context) Help(name string) string {
	i, ok := c.byName[name]
	if !ok {
		return ""
	}
	return c.file.Tasks[i].Help
}

// after returns the explicit ordering constraints of task i
func (c *Context) after(i int) []string {
	return c.file.Tasks[i].After
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
