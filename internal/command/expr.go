package command

import (
	"fmt"
	"strconv"

	"github.com/phillarmonic/buildcmd/internal/errors"
	"github.com/phillarmonic/buildcmd/internal/fsnode"
)

// accessor is one step of the trailing code of a reference: [N] or .name
type accessor struct {
	index   int
	isIndex bool
	name    string
}

// parseAccessors parses CODE := { "[" INT "]" | "." IDENT [ "()" ] }
func parseAccessors(name, code string) ([]accessor, error) {
	var out []accessor

	bad := func(format string, args ...any) error {
		return errors.NewResolutionError(errors.BadAccessor, name, code, fmt.Sprintf(format, args...))
	}

	for i := 0; i < len(code); {
		switch code[i] {
		case '[':
			end := i + 1
			for end < len(code) && code[end] != ']' {
				end++
			}
			if end == len(code) {
				return nil, bad("missing ']'")
			}
			n, err := strconv.Atoi(code[i+1 : end])
			if err != nil {
				return nil, bad("index %q is not an integer", code[i+1:end])
			}
			out = append(out, accessor{index: n, isIndex: true})
			i = end + 1
		case '.':
			end := i + 1
			for end < len(code) && isIdentByte(code[end]) {
				end++
			}
			if end == i+1 {
				return nil, bad("expected a name after '.'")
			}
			out = append(out, accessor{name: code[i+1 : end]})
			i = end
			if i+1 < len(code) && code[i] == '(' && code[i+1] == ')' {
				i += 2
			}
		default:
			return nil, bad("unexpected %q", code[i:])
		}
	}

	return out, nil
}

func isIdentByte(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

// evaluate applies the accessors in code to value
func evaluate(name, code string, value any) (any, error) {
	accessors, err := parseAccessors(name, code)
	if err != nil {
		return nil, err
	}

	for _, acc := range accessors {
		if acc.isIndex {
			value, err = index(name, code, value, acc.index)
		} else {
			value, err = attribute(name, code, value, acc.name)
		}
		if err != nil {
			return nil, err
		}
	}
	return value, nil
}

func index(name, code string, value any, i int) (any, error) {
	var n int
	var at func(int) any

	switch v := value.(type) {
	case *FileList:
		n = len(v.nodes)
		at = func(k int) any { return fileRef{node: v.nodes[k], role: v.role} }
	case []*fsnode.Node:
		n = len(v)
		at = func(k int) any { return v[k] }
	case []string:
		n = len(v)
		at = func(k int) any { return v[k] }
	case []any:
		n = len(v)
		at = func(k int) any { return v[k] }
	default:
		return nil, errors.NewResolutionError(errors.BadAccessor, name, code,
			fmt.Sprintf("cannot index a value of type %T", value))
	}

	k := i
	if k < 0 {
		k += n
	}
	if k < 0 || k >= n {
		return nil, errors.NewResolutionError(errors.IndexOutOfRange, name, code,
			fmt.Sprintf("index %d out of range for %d element(s)", i, n))
	}
	return at(k), nil
}

func attribute(name, code string, value any, attr string) (any, error) {
	var node *fsnode.Node
	switch v := value.(type) {
	case fileRef:
		node = v.node
	case *fsnode.Node:
		node = v
	default:
		return nil, errors.NewResolutionError(errors.BadAccessor, name, code,
			fmt.Sprintf("no attribute %q on a value of type %T", attr, value))
	}

	switch attr {
	case "abspath", "bldpath":
		return node.BuildPath(), nil
	case "srcpath":
		return node.SourcePath(), nil
	case "name":
		return node.Name(), nil
	default:
		return nil, errors.NewResolutionError(errors.BadAccessor, name, code,
			fmt.Sprintf("unknown file attribute %q (want abspath, bldpath, srcpath or name)", attr))
	}
}
