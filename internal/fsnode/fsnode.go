// Package fsnode models source and build files as nodes of a project tree.
//
// A node is identified by its path relative to the project top. The same
// relative path is rendered two ways: relative to the source directory (how
// inputs are addressed, so diagnostics match the source layout) and as an
// absolute path under the build directory (where outputs are written).
package fsnode

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// Node is a handle to one file of the project
type Node struct {
	rel       string // slash separated, relative to the tree root
	tree      *Tree
	generated bool // declared as some task's output
}

// SourcePath returns the path of the file relative to the source directory.
// Generated nodes live in the build directory, so their source path points
// there (e.g. "build/main.o") and consumers read the produced file.
func (n *Node) SourcePath() string {
	if !n.Generated() {
		return n.rel
	}
	rel, err := filepath.Rel(n.tree.sourceDir, n.BuildPath())
	if err != nil {
		return n.BuildPath()
	}
	return filepath.ToSlash(rel)
}

// Generated reports whether a task declared the node as an output
func (n *Node) Generated() bool {
	n.tree.mu.Lock()
	defer n.tree.mu.Unlock()
	return n.generated
}

// BuildPath returns the absolute path of the node inside the build directory
func (n *Node) BuildPath() string {
	return filepath.Join(n.tree.buildDir, filepath.FromSlash(n.rel))
}

// SourceFile returns the absolute path of the node inside the source directory
func (n *Node) SourceFile() string {
	return filepath.Join(n.tree.sourceDir, filepath.FromSlash(n.rel))
}

// Name returns the base name of the node
func (n *Node) Name() string {
	return path.Base(n.rel)
}

// Locate returns the file that currently backs the node: the build output
// when it exists, otherwise the source file. ok is false when neither exists.
func (n *Node) Locate() (string, bool) {
	if _, err := os.Stat(n.BuildPath()); err == nil {
		return n.BuildPath(), true
	}
	if _, err := os.Stat(n.SourceFile()); err == nil {
		return n.SourceFile(), true
	}
	return "", false
}

// Path returns the node identity: its slash separated tree path
func (n *Node) Path() string {
	return n.rel
}

// String implements fmt.Stringer
func (n *Node) String() string {
	return n.rel
}

// Tree owns every node of a project. Nodes are interned: asking twice for
// the same path returns the same *Node.
type Tree struct {
	sourceDir string
	buildDir  string

	mu    sync.Mutex
	nodes map[string]*Node
}

// NewTree creates a tree rooted at sourceDir whose outputs live in buildDir.
// Relative buildDir values are resolved against sourceDir.
func NewTree(sourceDir, buildDir string) (*Tree, error) {
	src, err := filepath.Abs(sourceDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve source directory: %w", err)
	}

	bld := buildDir
	if !filepath.IsAbs(bld) {
		bld = filepath.Join(src, bld)
	}
	bld = filepath.Clean(bld)

	if bld == src {
		return nil, fmt.Errorf("build directory must differ from source directory %s", src)
	}

	return &Tree{
		sourceDir: src,
		buildDir:  bld,
		nodes:     make(map[string]*Node, 32),
	}, nil
}

// SourceDir returns the absolute source directory
func (t *Tree) SourceDir() string {
	return t.sourceDir
}

// BuildDir returns the absolute build directory
func (t *Tree) BuildDir() string {
	return t.buildDir
}

// Node finds or declares the node for a path relative to the source directory
func (t *Tree) Node(name string) (*Node, error) {
	rel, err := t.normalize(name)
	if err != nil {
		return nil, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if n, ok := t.nodes[rel]; ok {
		return n, nil
	}
	n := &Node{rel: rel, tree: t}
	t.nodes[rel] = n
	return n, nil
}

// Output finds or declares the node for name and marks it as generated
func (t *Tree) Output(name string) (*Node, error) {
	n, err := t.Node(name)
	if err != nil {
		return nil, err
	}

	t.mu.Lock()
	n.generated = true
	t.mu.Unlock()
	return n, nil
}

// Nodes returns every declared node sorted by path
func (t *Tree) Nodes() []*Node {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]*Node, 0, len(t.nodes))
	for _, n := range t.nodes {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].rel < out[j].rel })
	return out
}

// normalize turns name into a clean slash separated path inside the tree
func (t *Tree) normalize(name string) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", fmt.Errorf("empty file name")
	}

	p := name
	if filepath.IsAbs(p) {
		rel, err := filepath.Rel(t.sourceDir, p)
		if err != nil {
			return "", fmt.Errorf("path %s is outside the source directory: %w", name, err)
		}
		p = rel
	}

	p = path.Clean(filepath.ToSlash(p))
	if p == "." || p == ".." || strings.HasPrefix(p, "../") {
		return "", fmt.Errorf("path %s is outside the source directory", name)
	}
	return p, nil
}
