package command

import (
	"fmt"

	"github.com/phillarmonic/buildcmd/internal/pipeline"
)

// Substitute resolves every substitutable field of every stage. All fields
// are resolved before any stage is modified, so on error the pipeline is
// left exactly as parsed.
func Substitute(p *pipeline.Pipeline, ns *Namespace) error {
	resolved := make([]pipeline.Stage, len(p.Stages))
	for i, stage := range p.Stages {
		out, err := substituteStage(stage, ns)
		if err != nil {
			return fmt.Errorf("stage %d (%s): %w", i+1, stage, err)
		}
		resolved[i] = out
	}

	for i, stage := range p.Stages {
		switch st := stage.(type) {
		case *pipeline.Command:
			*st = *resolved[i].(*pipeline.Command)
		case *pipeline.Chdir:
			*st = *resolved[i].(*pipeline.Chdir)
		}
	}
	return nil
}

func substituteStage(stage pipeline.Stage, ns *Namespace) (pipeline.Stage, error) {
	switch st := stage.(type) {
	case *pipeline.Command:
		return substituteCommand(st, ns)
	case *pipeline.Chdir:
		dir, err := Expand(st.Dir, ns, PositionNeutral)
		if err != nil {
			return nil, fmt.Errorf("cd target: %w", err)
		}
		return &pipeline.Chdir{Dir: dir, Next: st.Next}, nil
	default:
		return nil, fmt.Errorf("unsupported stage type %T", stage)
	}
}

func substituteCommand(c *pipeline.Command, ns *Namespace) (*pipeline.Command, error) {
	out := c.Clone()

	var err error
	if out.Stdin, err = substituteRedirect(out.Stdin, ns, PositionInput); err != nil {
		return nil, fmt.Errorf("stdin: %w", err)
	}
	if out.Stdout, err = substituteRedirect(out.Stdout, ns, PositionOutput); err != nil {
		return nil, fmt.Errorf("stdout: %w", err)
	}
	if out.Stderr, err = substituteRedirect(out.Stderr, ns, PositionOutput); err != nil {
		return nil, fmt.Errorf("stderr: %w", err)
	}

	for i, arg := range out.Argv {
		if out.Argv[i], err = Expand(arg, ns, PositionNeutral); err != nil {
			return nil, fmt.Errorf("argument %d: %w", i, err)
		}
	}

	for k, v := range out.Env {
		if out.Env[k], err = Expand(v, ns, PositionNeutral); err != nil {
			return nil, fmt.Errorf("environment %s: %w", k, err)
		}
	}

	return out, nil
}

// substituteRedirect only touches file targets; pipes and 2>&1 are live
// stream references
func substituteRedirect(r pipeline.Redirect, ns *Namespace, pos Position) (pipeline.Redirect, error) {
	if !r.IsFile() {
		return r, nil
	}
	path, err := Expand(r.Path, ns, pos)
	if err != nil {
		return r, err
	}
	r.Path = path
	return r, nil
}
