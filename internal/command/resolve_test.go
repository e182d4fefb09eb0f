package command

import (
	stderrors "errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phillarmonic/buildcmd/internal/errors"
	"github.com/phillarmonic/buildcmd/internal/fsnode"
)

type fixture struct {
	tree *fsnode.Tree
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	tree, err := fsnode.NewTree(t.TempDir(), "build")
	require.NoError(t, err)
	return &fixture{tree: tree}
}

func (f *fixture) nodes(t *testing.T, names ...string) []*fsnode.Node {
	t.Helper()
	out := make([]*fsnode.Node, 0, len(names))
	for _, name := range names {
		n, err := f.tree.Node(name)
		require.NoError(t, err)
		out = append(out, n)
	}
	return out
}

func (f *fixture) build(name string) string {
	return filepath.Join(f.tree.BuildDir(), filepath.FromSlash(name))
}

func resolutionKind(t *testing.T, err error) errors.ResolutionKind {
	t.Helper()
	var resErr *errors.ResolutionError
	require.True(t, stderrors.As(err, &resErr), "want *ResolutionError, got %T: %v", err, err)
	return resErr.Kind
}

func TestExpand_EscapeIsIndependentOfNamespace(t *testing.T) {
	f := newFixture(t)
	namespaces := []*Namespace{
		NewNamespace(nil, nil, nil, nil),
		NewNamespace(map[string]any{"$": "x", "SRC": "shadow"}, map[string]any{"A": 1}, f.nodes(t, "a"), f.nodes(t, "b", "c")),
	}

	for _, ns := range namespaces {
		for _, pos := range []Position{PositionNeutral, PositionInput, PositionOutput} {
			got, err := Expand("$$", ns, pos)
			require.NoError(t, err)
			assert.Equal(t, "$", got)
		}
	}
}

func TestExpand_LiteralTemplatesRoundTrip(t *testing.T) {
	f := newFixture(t)
	ns := NewNamespace(map[string]any{"CC": "gcc"}, nil, f.nodes(t, "a.c"), f.nodes(t, "a.o"))

	for _, s := range []string{"", "gcc", "-DX=1", "echo $HOME", "a{b}c", "100%"} {
		got, err := Expand(s, ns, PositionNeutral)
		require.NoError(t, err)
		assert.Equal(t, s, got)
	}
}

func TestResolve_SingleOutputAndInput(t *testing.T) {
	f := newFixture(t)
	ns := NewNamespace(nil, nil, f.nodes(t, "src/a.txt"), f.nodes(t, "out/b.txt"))

	for _, pos := range []Position{PositionNeutral, PositionInput, PositionOutput} {
		got, err := ns.Resolve(OutputsName, "", pos)
		require.NoError(t, err)
		assert.Equal(t, f.build("out/b.txt"), got, "TGT at %s", pos)

		got, err = ns.Resolve(InputsName, "", pos)
		require.NoError(t, err)
		assert.Equal(t, "src/a.txt", got, "SRC at %s", pos)
	}
}

func TestResolve_MultipleFilesAreAmbiguous(t *testing.T) {
	f := newFixture(t)
	ns := NewNamespace(nil, nil, f.nodes(t, "a", "b"), f.nodes(t, "x", "y", "z"))

	_, err := ns.Resolve(OutputsName, "", PositionNeutral)
	require.Error(t, err)
	assert.Equal(t, errors.AmbiguousOutput, resolutionKind(t, err))

	_, err = ns.Resolve(InputsName, "", PositionOutput)
	require.Error(t, err)
	assert.Equal(t, errors.AmbiguousInput, resolutionKind(t, err))
}

func TestResolve_NoFilesIsAmbiguous(t *testing.T) {
	ns := NewNamespace(nil, nil, nil, nil)

	_, err := ns.Resolve(OutputsName, "", PositionNeutral)
	assert.Equal(t, errors.AmbiguousOutput, resolutionKind(t, err))

	_, err = ns.Resolve(InputsName, "", PositionNeutral)
	assert.Equal(t, errors.AmbiguousInput, resolutionKind(t, err))
}

func TestResolve_PositionSensitivity(t *testing.T) {
	f := newFixture(t)
	nodes := f.nodes(t, "gen/file.h")
	ns := NewNamespace(nil, map[string]any{"HEADER": nodes[0]}, nodes, nodes)

	for _, name := range []string{"HEADER", InputsName, OutputsName} {
		code := ""
		if name != "HEADER" {
			code = "[0]"
		}

		in, err := ns.Resolve(name, code, PositionInput)
		require.NoError(t, err)
		out, err := ns.Resolve(name, code, PositionOutput)
		require.NoError(t, err)

		assert.Equal(t, "gen/file.h", in, name)
		assert.Equal(t, f.build("gen/file.h"), out, name)
	}
}

func TestResolve_NeutralFollowsList(t *testing.T) {
	f := newFixture(t)
	ns := NewNamespace(nil, map[string]any{"N": f.nodes(t, "n")[0]}, f.nodes(t, "in"), f.nodes(t, "out"))

	got, err := ns.Resolve(InputsName, "[0]", PositionNeutral)
	require.NoError(t, err)
	assert.Equal(t, "in", got)

	got, err = ns.Resolve(OutputsName, "[-1]", PositionNeutral)
	require.NoError(t, err)
	assert.Equal(t, f.build("out"), got)

	got, err = ns.Resolve("N", "", PositionNeutral)
	require.NoError(t, err)
	assert.Equal(t, "n", got)
}

func TestResolve_Accessors(t *testing.T) {
	f := newFixture(t)
	ns := NewNamespace(nil, nil, f.nodes(t, "src/a.c", "src/b.c"), f.nodes(t, "obj/a.o"))

	tests := []struct {
		name string
		code string
		want string
	}{
		{InputsName, "[1]", "src/b.c"},
		{InputsName, "[-2]", "src/a.c"},
		{InputsName, "[1].name", "b.c"},
		{InputsName, "[0].abspath()", f.build("src/a.c")},
		{InputsName, "[0].bldpath", f.build("src/a.c")},
		{OutputsName, "[0].srcpath()", "obj/a.o"},
		{OutputsName, "[0].name()", "a.o"},
	}

	for _, tt := range tests {
		t.Run(tt.name+tt.code, func(t *testing.T) {
			got, err := ns.Resolve(tt.name, tt.code, PositionNeutral)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolve_Errors(t *testing.T) {
	f := newFixture(t)
	ns := NewNamespace(
		map[string]any{"CFLAGS": []string{"-O2", "-g"}, "CC": "gcc"},
		nil,
		f.nodes(t, "a.c"),
		f.nodes(t, "a.o"),
	)

	tests := []struct {
		name string
		code string
		kind errors.ResolutionKind
	}{
		{"MISSING", "", errors.Unbound},
		{InputsName, "[1]", errors.IndexOutOfRange},
		{InputsName, "[-2]", errors.IndexOutOfRange},
		{"CFLAGS", "[5]", errors.IndexOutOfRange},
		{InputsName, "[x]", errors.BadAccessor},
		{InputsName, "[0", errors.BadAccessor},
		{InputsName, ".name", errors.BadAccessor},
		{InputsName, "[0].size", errors.BadAccessor},
		{InputsName, "[0].", errors.BadAccessor},
		{"CC", "[0]", errors.BadAccessor},
		{"CC", ".upper()", errors.BadAccessor},
		{InputsName, " + 1", errors.BadAccessor},
		{"A", "${B", errors.Unbound},
	}

	for _, tt := range tests {
		t.Run(tt.name+tt.code, func(t *testing.T) {
			_, err := ns.Resolve(tt.name, tt.code, PositionNeutral)
			require.Error(t, err)
			assert.Equal(t, tt.kind, resolutionKind(t, err))
		})
	}
}

func TestResolve_Values(t *testing.T) {
	f := newFixture(t)
	ns := NewNamespace(
		map[string]any{
			"CC":     "gcc",
			"CFLAGS": []string{"-O2", "-g"},
			"LIBS":   []string{"m"},
			"OPT":    3,
			"FLAG":   "env",
		},
		map[string]any{
			"FLAG":  "task",
			"MIXED": []any{true},
			"FILES": f.nodes(t, "x", "y"),
			"ONE":   f.nodes(t, "only"),
		},
		nil, nil,
	)

	tests := []struct {
		name string
		code string
		want string
	}{
		{"CC", "", "gcc"},
		{"CFLAGS", "[1]", "-g"},
		{"LIBS", "", "m"},
		{"OPT", "", "3"},
		{"FLAG", "", "task"},
		{"MIXED", "", "true"},
		{"FILES", "[1]", "y"},
		{"ONE", "", "only"},
	}

	for _, tt := range tests {
		t.Run(tt.name+tt.code, func(t *testing.T) {
			got, err := ns.Resolve(tt.name, tt.code, PositionNeutral)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := ns.Resolve("FILES", "", PositionNeutral)
	assert.Equal(t, errors.BadAccessor, resolutionKind(t, err))
}

func TestResolve_ListsNeedOneElement(t *testing.T) {
	ns := NewNamespace(
		map[string]any{
			"CFLAGS": []string{"-O2", "-g"},
			"EMPTY":  []string{},
			"L":      []any{"a", "b"},
			"NONE":   []any{},
		},
		nil, nil, nil,
	)

	for _, name := range []string{"CFLAGS", "EMPTY", "L", "NONE"} {
		for _, pos := range []Position{PositionNeutral, PositionInput, PositionOutput} {
			t.Run(name+"/"+pos.String(), func(t *testing.T) {
				got, err := ns.Resolve(name, "", pos)
				require.Error(t, err)
				assert.Empty(t, got)
				assert.Equal(t, errors.BadAccessor, resolutionKind(t, err))
			})
		}
	}

	got, err := ns.Resolve("L", "[1]", PositionNeutral)
	require.NoError(t, err)
	assert.Equal(t, "b", got)
}

func TestNewNamespace_ReservedNamesWin(t *testing.T) {
	f := newFixture(t)
	ns := NewNamespace(
		map[string]any{InputsName: "env-src"},
		map[string]any{OutputsName: "var-tgt"},
		f.nodes(t, "a"), f.nodes(t, "b"),
	)

	got, err := ns.Resolve(InputsName, "", PositionNeutral)
	require.NoError(t, err)
	assert.Equal(t, "a", got)

	got, err = ns.Resolve(OutputsName, "", PositionNeutral)
	require.NoError(t, err)
	assert.Equal(t, f.build("b"), got)
}

func TestNewNamespace_DoesNotMutateInputs(t *testing.T) {
	envVars := map[string]any{"CC": "gcc"}
	vars := map[string]any{"X": "1"}

	NewNamespace(envVars, vars, nil, nil)

	assert.Equal(t, map[string]any{"CC": "gcc"}, envVars)
	assert.Equal(t, map[string]any{"X": "1"}, vars)
}
