package pipeline

import (
	"fmt"
	"regexp"
	"sort"

	"github.com/google/shlex"

	"github.com/phillarmonic/buildcmd/internal/errors"
)

var (
	envAssignRegex = regexp.MustCompile(`^([A-Za-z_][A-Za-z0-9_]*)=(.*)$`)

	connectors = map[string]Op{
		"|":  OpPipe,
		"&&": OpAnd,
		"||": OpOr,
		";":  OpSeq,
	}

	redirections = map[string]bool{
		"<":    true,
		">":    true,
		">>":   true,
		"2>":   true,
		"2>>":  true,
		"2>&1": true,
	}
)

// Parse tokenizes line with POSIX quoting rules and builds the pipeline.
// Operators must be separate words ("a | b", not "a|b").
func Parse(line string) (*Pipeline, error) {
	words, err := shlex.Split(line)
	if err != nil {
		return nil, errors.NewTemplateError(fmt.Sprintf("cannot tokenize command: %v", err), line, -1)
	}
	return ParseWords(line, words)
}

// ParseWords builds a pipeline from already tokenized words. line is only
// used for error reporting.
func ParseWords(line string, words []string) (*Pipeline, error) {
	p := &parser{line: line, words: words}
	if err := p.parse(); err != nil {
		return nil, err
	}
	return &Pipeline{Stages: p.stages}, nil
}

type parser struct {
	line  string
	words []string
	pos   int

	stages  []Stage
	cmd     *Command
	chdir   *Chdir
	env     map[string]string
	pipedIn bool
}

func (p *parser) fail(format string, args ...any) error {
	return errors.NewTemplateError(fmt.Sprintf(format, args...), p.line, -1)
}

func (p *parser) parse() error {
	var last Op = OpEnd

	for p.pos = 0; p.pos < len(p.words); p.pos++ {
		w := p.words[p.pos]

		if op, ok := connectors[w]; ok {
			if err := p.finishStage(op); err != nil {
				return err
			}
			last = op
			continue
		}
		last = OpEnd

		if p.cmd == nil && p.chdir == nil {
			if err := p.beginStage(w); err != nil {
				return err
			}
			continue
		}

		if p.chdir != nil {
			return p.fail("unexpected %q after cd %s", w, p.chdir.Dir)
		}

		if redirections[w] {
			if err := p.redirect(w); err != nil {
				return err
			}
			continue
		}

		p.cmd.Argv = append(p.cmd.Argv, w)
	}

	if p.cmd != nil || p.chdir != nil {
		return p.finishStage(OpEnd)
	}
	if len(p.env) > 0 {
		return p.fail("environment overrides without a command")
	}
	if len(p.stages) == 0 {
		return p.fail("empty command")
	}
	switch last {
	case OpSeq:
		// a trailing ';' is harmless
		p.setLastConnector(OpEnd)
		return nil
	case OpEnd:
		return nil
	default:
		return p.fail("empty command after %q", last.String())
	}
}

// beginStage handles the first word of a stage
func (p *parser) beginStage(w string) error {
	if m := envAssignRegex.FindStringSubmatch(w); m != nil {
		if p.env == nil {
			p.env = make(map[string]string, 4)
		}
		p.env[m[1]] = m[2]
		return nil
	}

	if redirections[w] {
		return p.fail("redirection %q before the command name is not supported", w)
	}

	if w == "cd" {
		if len(p.env) > 0 {
			return p.fail("environment overrides cannot apply to cd")
		}
		if p.pipedIn {
			return p.fail("cannot pipe into cd")
		}
		dir, ok := p.operand()
		if !ok {
			return p.fail("expected a directory after cd")
		}
		p.chdir = &Chdir{Dir: dir}
		return nil
	}

	p.cmd = &Command{Argv: []string{w}, Env: p.env}
	p.env = nil
	if p.pipedIn {
		p.cmd.Stdin = Redirect{Kind: RedirectPipe}
		p.pipedIn = false
	}
	return nil
}

// redirect consumes a redirection operator and its target
func (p *parser) redirect(op string) error {
	if op == "2>&1" {
		p.cmd.Stderr = Redirect{Kind: RedirectToStdout}
		return nil
	}

	target, ok := p.operand()
	if !ok {
		return p.fail("expected a file after %q", op)
	}

	switch op {
	case "<":
		if p.cmd.Stdin.Kind == RedirectPipe {
			return p.fail("stdin of %s is both piped and redirected", p.cmd.Argv[0])
		}
		p.cmd.Stdin = Redirect{Kind: RedirectFile, Path: target}
	case ">", ">>":
		// 2>&1 binds stderr to the stdout of that moment, so a later
		// stdout file would leave stderr behind
		if p.cmd.Stderr.Kind == RedirectToStdout {
			return p.fail("%s %s must come before 2>&1", op, target)
		}
		p.cmd.Stdout = Redirect{Kind: RedirectFile, Path: target, Append: op == ">>"}
	case "2>", "2>>":
		p.cmd.Stderr = Redirect{Kind: RedirectFile, Path: target, Append: op == "2>>"}
	}
	return nil
}

// operand returns the next word if it is not an operator
func (p *parser) operand() (string, bool) {
	if p.pos+1 >= len(p.words) {
		return "", false
	}
	next := p.words[p.pos+1]
	if _, isOp := connectors[next]; isOp || redirections[next] {
		return "", false
	}
	p.pos++
	return next, true
}

// finishStage closes the current stage with op
func (p *parser) finishStage(op Op) error {
	switch {
	case p.cmd != nil:
		if op == OpPipe {
			if p.cmd.Stdout.IsFile() {
				return p.fail("stdout of %s is both redirected and piped", p.cmd.Argv[0])
			}
			p.cmd.Stdout = Redirect{Kind: RedirectPipe}
			p.pipedIn = true
		}
		p.cmd.Next = op
		p.stages = append(p.stages, p.cmd)
		p.cmd = nil
	case p.chdir != nil:
		if op == OpPipe {
			return p.fail("cannot pipe from cd")
		}
		p.chdir.Next = op
		p.stages = append(p.stages, p.chdir)
		p.chdir = nil
	default:
		if op == OpEnd {
			return nil
		}
		return p.fail("empty command before %q", op.String())
	}
	return nil
}

func (p *parser) setLastConnector(op Op) {
	switch st := p.stages[len(p.stages)-1].(type) {
	case *Command:
		st.Next = op
	case *Chdir:
		st.Next = op
	}
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
