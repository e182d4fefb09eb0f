package command

import (
	"fmt"

	"github.com/phillarmonic/buildcmd/internal/env"
	"github.com/phillarmonic/buildcmd/internal/errors"
	"github.com/phillarmonic/buildcmd/internal/fsnode"
	"github.com/phillarmonic/buildcmd/internal/pool"
)

// Reserved namespace bindings
const (
	InputsName  = "SRC"
	OutputsName = "TGT"
)

// Position says which kind of field a placeholder is substituted into
type Position int

const (
	// PositionNeutral is an argument, env value or cd target
	PositionNeutral Position = iota
	// PositionInput is a stdin redirection target
	PositionInput
	// PositionOutput is a stdout or stderr redirection target
	PositionOutput
)

// String returns the position name
func (p Position) String() string {
	switch p {
	case PositionInput:
		return "input"
	case PositionOutput:
		return "output"
	default:
		return "neutral"
	}
}

type role int

const (
	roleNone role = iota
	roleInput
	roleOutput
)

// FileList is a task's ordered input or output list as bound in a namespace
type FileList struct {
	role  role
	nodes []*fsnode.Node
}

// Len returns the number of files
func (l *FileList) Len() int {
	return len(l.nodes)
}

// fileRef is a node picked out of a FileList; it remembers which list
type fileRef struct {
	node *fsnode.Node
	role role
}

// Namespace is the set of names a template is resolved against. It is
// built per run and never shared.
type Namespace struct {
	vars    map[string]any
	inputs  *FileList
	outputs *FileList
}

// NewNamespace merges, in order, the flattened environment, the task's own
// variables and the reserved SRC/TGT bindings. Later layers win. envVars and
// variables are copied, never mutated.
func NewNamespace(envVars, variables map[string]any, inputs, outputs []*fsnode.Node) *Namespace {
	ns := &Namespace{
		vars:    make(map[string]any, len(envVars)+len(variables)+2),
		inputs:  &FileList{role: roleInput, nodes: append([]*fsnode.Node(nil), inputs...)},
		outputs: &FileList{role: roleOutput, nodes: append([]*fsnode.Node(nil), outputs...)},
	}
	for k, v := range envVars {
		ns.vars[k] = v
	}
	for k, v := range variables {
		ns.vars[k] = v
	}
	ns.vars[InputsName] = ns.inputs
	ns.vars[OutputsName] = ns.outputs
	return ns
}

// Resolve evaluates ${name code} and renders the result for a field at pos
func (ns *Namespace) Resolve(name, code string, pos Position) (string, error) {
	value, ok := ns.vars[name]
	if !ok {
		return "", errors.NewResolutionError(errors.Unbound, name, code, fmt.Sprintf("%s is not defined", name))
	}

	value, err := evaluate(name, code, value)
	if err != nil {
		return "", err
	}

	switch v := value.(type) {
	case fileRef:
		return renderNode(v.node, v.role, pos), nil

	case *fsnode.Node:
		return renderNode(v, roleNone, pos), nil

	case *FileList:
		switch v {
		case ns.outputs:
			if v.Len() != 1 {
				return "", errors.NewResolutionError(errors.AmbiguousOutput, name, code,
					fmt.Sprintf("task has %d outputs; select one, e.g. ${%s[0]}", v.Len(), OutputsName))
			}
			return v.nodes[0].BuildPath(), nil
		case ns.inputs:
			if v.Len() != 1 {
				return "", errors.NewResolutionError(errors.AmbiguousInput, name, code,
					fmt.Sprintf("task has %d inputs; select one, e.g. ${%s[0]}", v.Len(), InputsName))
			}
			return v.nodes[0].SourcePath(), nil
		}
		return "", errors.NewResolutionError(errors.BadAccessor, name, code, "file list from another namespace")

	case []*fsnode.Node:
		if len(v) != 1 {
			return "", errors.NewResolutionError(errors.BadAccessor, name, code,
				fmt.Sprintf("list of %d files needs an index", len(v)))
		}
		return renderNode(v[0], roleNone, pos), nil

	case []string:
		if len(v) != 1 {
			return "", listError(name, code, len(v))
		}
		return v[0], nil

	case []any:
		if len(v) != 1 {
			return "", listError(name, code, len(v))
		}
		return env.Stringify(v[0]), nil
	}

	return env.Stringify(value), nil
}

// listError reports a list that must be narrowed to one element. A list is
// never joined into a single word.
func listError(name, code string, n int) error {
	return errors.NewResolutionError(errors.BadAccessor, name, code,
		fmt.Sprintf("list of %d values needs an index, e.g. ${%s[0]}", n, name))
}

// renderNode picks the path form for a node. Input fields get the source
// path, output fields the build path. Neutral fields follow the list the
// node came from so ${TGT[0]} in an argument still names the build output.
func renderNode(n *fsnode.Node, r role, pos Position) string {
	switch pos {
	case PositionOutput:
		return n.BuildPath()
	case PositionInput:
		return n.SourcePath()
	}
	if r == roleOutput {
		return n.BuildPath()
	}
	return n.SourcePath()
}

// Expand substitutes every placeholder of s for a field at pos
func Expand(s string, ns *Namespace, pos Position) (string, error) {
	tokens, err := Scan(s)
	if err != nil {
		return "", err
	}

	sb := pool.GetBuilder()
	defer pool.PutBuilder(sb)

	for _, tok := range tokens {
		switch tok.Kind {
		case Literal:
			sb.WriteString(tok.Text)
		case Escape:
			sb.WriteByte('$')
		case Ref:
			val, err := ns.Resolve(tok.Name, tok.Code, pos)
			if err != nil {
				return "", err
			}
			sb.WriteString(val)
		}
	}
	return sb.String(), nil
}
