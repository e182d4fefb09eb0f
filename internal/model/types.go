package model

// BuildFile represents a complete buildcmd description
type BuildFile struct {
	Version string         `yaml:"version"`
	Top     string         `yaml:"top,omitempty"`
	Out     string         `yaml:"out,omitempty"`
	Options Options        `yaml:"options,omitempty"`
	Env     map[string]any `yaml:"env,omitempty"`
	Include []string       `yaml:"include,omitempty"`
	Tasks   []TaskSpec     `yaml:"tasks"`
}

// Options contains global build settings
type Options struct {
	Verbose   bool `yaml:"verbose,omitempty"`
	Jobs      int  `yaml:"jobs,omitempty"`
	KeepGoing bool `yaml:"keep_going,omitempty"`
	NoCache   bool `yaml:"no_cache,omitempty"`
}

// TaskSpec declares one command task
type TaskSpec struct {
	Name      string         `yaml:"name"`
	Help      string         `yaml:"help,omitempty"`
	Command   string         `yaml:"command"`
	Source    StringList     `yaml:"source,omitempty"`
	Target    StringList     `yaml:"target,omitempty"`
	Variables map[string]any `yaml:"variables,omitempty"`
	Env       map[string]any `yaml:"env,omitempty"`   // per-task environment overlay
	After     StringList     `yaml:"after,omitempty"` // explicit ordering on other tasks
}

// StringList is a list of words that may be written as a YAML sequence or
// as a single whitespace separated scalar
type StringList []string
