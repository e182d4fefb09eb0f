package build

import (
	"fmt"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/phillarmonic/buildcmd/internal/fsnode"
)

// Graph orders the tasks of a Context. A task depends on every task that
// produces one of its inputs and on the tasks named in its `after` list.
type Graph struct {
	ctx   *Context
	deps  [][]int // deps[i] are the tasks i waits for
	order []int   // topological order
}

// NewGraph builds the dependency graph and rejects cycles
func NewGraph(c *Context) (*Graph, error) {
	n := len(c.tasks)

	producers := make(map[*fsnode.Node]int)
	for i, t := range c.tasks {
		for _, out := range t.Outputs() {
			if other, ok := producers[out]; ok && other != i {
				return nil, fmt.Errorf("target '%s' is produced by both '%s' and '%s'",
					out.Path(), c.tasks[other].Name(), t.Name())
			}
			producers[out] = i
		}
	}

	g := &Graph{ctx: c, deps: make([][]int, n)}
	var edges [][2]int

	for i, t := range c.tasks {
		seen := make(map[int]bool)
		add := func(dep int) {
			if dep == i || seen[dep] {
				return
			}
			seen[dep] = true
			g.deps[i] = append(g.deps[i], dep)
			edges = append(edges, [2]int{dep, i})
		}

		for _, in := range t.Inputs() {
			if p, ok := producers[in]; ok {
				add(p)
			}
		}
		for _, name := range c.after(i) {
			p, ok := c.byName[name]
			if !ok {
				return nil, fmt.Errorf("task '%s': dependency '%s' not found", t.Name(), name)
			}
			add(p)
		}
		sort.Ints(g.deps[i])
	}

	order, err := g.topologicalSort(n, edges)
	if err != nil {
		return nil, err
	}
	g.order = order
	return g, nil
}

// topologicalSort performs topological sorting using Kahn's algorithm.
// Ties keep declaration order.
func (g *Graph) topologicalSort(n int, edges [][2]int) ([]int, error) {
	adj := make([][]int, n)
	inDegree := make([]int, n)

	for _, edge := range edges {
		from, to := edge[0], edge[1]
		adj[from] = append(adj[from], to)
		inDegree[to]++
	}

	var queue []int
	for i := 0; i < n; i++ {
		if inDegree[i] == 0 {
			queue = append(queue, i)
		}
	}

	result := make([]int, 0, n)
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		result = append(result, current)

		for _, neighbor := range adj[current] {
			inDegree[neighbor]--
			if inDegree[neighbor] == 0 {
				queue = append(queue, neighbor)
			}
		}
	}

	if len(result) != n {
		var stuck []string
		for i := 0; i < n; i++ {
			if inDegree[i] > 0 {
				stuck = append(stuck, g.ctx.tasks[i].Name())
			}
		}
		return nil, fmt.Errorf("circular dependency detected between tasks: %s", strings.Join(stuck, ", "))
	}

	return result, nil
}

// Order returns every task index in execution order
func (g *Graph) Order() []int {
	return append([]int(nil), g.order...)
}

// Deps returns the tasks task i waits for
func (g *Graph) Deps(i int) []int {
	return g.deps[i]
}

// Select returns, in execution order, the tasks needed for targets. A
// target is a task name or a declared output path. No targets selects
// every task.
func (g *Graph) Select(targets []string) ([]int, error) {
	if len(targets) == 0 {
		return g.Order(), nil
	}

	wanted := make(map[int]bool)
	var visit func(int)
	visit = func(i int) {
		if wanted[i] {
			return
		}
		wanted[i] = true
		for _, d := range g.deps[i] {
			visit(d)
		}
	}

	for _, target := range targets {
		i, ok := g.lookup(target)
		if !ok {
			return nil, fmt.Errorf("unknown task or target '%s'", target)
		}
		visit(i)
	}

	selected := make([]int, 0, len(wanted))
	for _, i := range g.order {
		if wanted[i] {
			selected = append(selected, i)
		}
	}
	return selected, nil
}

// lookup finds a task by name, then by output path
func (g *Graph) lookup(target string) (int, bool) {
	if i, ok := g.ctx.byName[target]; ok {
		return i, true
	}

	want := path.Clean(filepath.ToSlash(target))
	for i, t := range g.ctx.tasks {
		for _, out := range t.Outputs() {
			if out.Path() == want || out.SourcePath() == want {
				return i, true
			}
		}
	}
	return 0, false
}
