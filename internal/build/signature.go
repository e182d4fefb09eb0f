package build

import (
	"encoding/binary"
	"fmt"
	"hash"
	"io"
	"os"
	"sort"

	"github.com/phillarmonic/buildcmd/internal/env"
	"github.com/phillarmonic/buildcmd/internal/task"
	"golang.org/x/crypto/blake2b"
)

// Signature hashes everything that decides what a task produces: the
// command template, its variables, the environment it sees, the content
// of every input and the target names.
func Signature(t *task.Task) ([]byte, error) {
	h, err := blake2b.New256(nil)
	if err != nil {
		return nil, err
	}

	writeField(h, "command", t.Generator().Command)

	vars := t.Generator().Variables
	varKeys := sortedKeys(vars)
	for _, k := range varKeys {
		writeField(h, "var:"+k, env.Stringify(vars[k]))
	}

	if e := t.Env(); e != nil {
		merged := e.Merged()
		for _, k := range sortedKeys(merged) {
			writeField(h, "env:"+k, env.Stringify(merged[k]))
		}
	}

	for _, in := range t.Inputs() {
		writeField(h, "input", in.Path())
		if err := hashFile(h, in); err != nil {
			return nil, fmt.Errorf("task %s: %w", t.Name(), err)
		}
	}

	outs := make([]string, 0, len(t.Outputs()))
	for _, out := range t.Outputs() {
		outs = append(outs, out.Path())
	}
	sort.Strings(outs)
	for _, out := range outs {
		writeField(h, "output", out)
	}

	return h.Sum(nil), nil
}

// locator is the part of a file node needed to hash its content
type locator interface {
	Locate() (string, bool)
}

func hashFile(h hash.Hash, n locator) error {
	p, ok := n.Locate()
	if !ok {
		writeField(h, "missing", "")
		return nil
	}

	f, err := os.Open(p)
	if err != nil {
		return fmt.Errorf("failed to read input: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(h, f); err != nil {
		return fmt.Errorf("failed to read input %s: %w", p, err)
	}
	return nil
}

// writeField writes a length prefixed key/value pair so adjacent fields
// can't collide
func writeField(h hash.Hash, key, value string) {
	var buf [8]byte
	for _, s := range []string{key, value} {
		binary.LittleEndian.PutUint64(buf[:], uint64(len(s)))
		h.Write(buf[:])
		io.WriteString(h, s)
	}
}

// outputsExist reports whether every output of t is present in the build dir
func outputsExist(t *task.Task) bool {
	for _, out := range t.Outputs() {
		if _, err := os.Stat(out.BuildPath()); err != nil {
			return false
		}
	}
	return true
}
