// Package spec loads and validates buildcmd build descriptions
package spec

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/phillarmonic/buildcmd/internal/errors"
	"github.com/phillarmonic/buildcmd/internal/model"
	"gopkg.in/yaml.v3"
)

// DefaultFilenames are the build file names to look for, in order
var DefaultFilenames = []string{
	"buildcmd.yml",
	"buildcmd.yaml",
	".buildcmd.yml",
}

const (
	defaultVersion = "1"
	defaultTop     = "."
	defaultOut     = "build"
)

// CacheEntry represents a cached build file with metadata
type CacheEntry struct {
	File    *model.BuildFile
	Path    string
	ModTime time.Time
}

// Loader handles loading and validating build descriptions
type Loader struct {
	baseDir string
	cache   sync.Map // Cache build files by path
}

// NewLoader creates a new loader resolving relative names against baseDir
func NewLoader(baseDir string) *Loader {
	return &Loader{baseDir: baseDir}
}

// Find returns the path of the build file that Load would read
func (l *Loader) Find(filename string) (string, error) {
	if filename != "" {
		if filepath.IsAbs(filename) {
			return filename, nil
		}
		return filepath.Join(l.baseDir, filename), nil
	}

	for _, name := range DefaultFilenames {
		candidate := filepath.Join(l.baseDir, name)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("no build file found (tried: %s)", strings.Join(DefaultFilenames, ", "))
}

// Load reads, merges and validates a build description. An empty filename
// searches DefaultFilenames in the base dir.
func (l *Loader) Load(filename string) (*model.BuildFile, error) {
	filePath, err := l.Find(filename)
	if err != nil {
		return nil, err
	}

	if cached, ok := l.getCached(filePath); ok {
		return cached, nil
	}

	bf, err := l.parseFile(filePath)
	if err != nil {
		return nil, err
	}

	if len(bf.Include) > 0 {
		merged := &model.BuildFile{}
		if err := l.processIncludes(merged, bf.Include, filepath.Dir(filePath)); err != nil {
			return nil, fmt.Errorf("failed to process includes: %w", err)
		}
		// main file overrides included content
		mergeBuildFiles(merged, bf)
		merged.Version = bf.Version
		merged.Top = bf.Top
		merged.Out = bf.Out
		merged.Include = bf.Include
		bf = merged
	}

	setDefaults(bf)

	if err := validate(bf); err != nil {
		return nil, fmt.Errorf("validation failed for %s: %w", filePath, err)
	}

	l.store(filePath, bf)
	return bf, nil
}

func (l *Loader) parseFile(path string) (*model.BuildFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read build file %s: %w", path, err)
	}

	var bf model.BuildFile
	if err := yaml.Unmarshal(data, &bf); err != nil {
		return nil, fmt.Errorf("failed to parse YAML in %s: %w", path, err)
	}
	return &bf, nil
}

// processIncludes merges every file matched by the include globs, in order
func (l *Loader) processIncludes(dst *model.BuildFile, patterns []string, baseDir string) error {
	for _, pattern := range patterns {
		if !filepath.IsAbs(pattern) {
			pattern = filepath.Join(baseDir, pattern)
		}

		matches, err := filepath.Glob(pattern)
		if err != nil {
			return fmt.Errorf("invalid glob pattern '%s': %w", pattern, err)
		}

		for _, match := range matches {
			included, err := l.parseFile(match)
			if err != nil {
				return err
			}
			if len(included.Include) > 0 {
				return fmt.Errorf("%s: nested includes are not supported", match)
			}
			mergeBuildFiles(dst, included)
		}
	}
	return nil
}

// mergeBuildFiles merges src into dst; src wins on conflicts. Tasks are
// matched by name and keep the position of their first declaration.
func mergeBuildFiles(dst, src *model.BuildFile) {
	if len(src.Env) > 0 && dst.Env == nil {
		dst.Env = make(map[string]any, len(src.Env))
	}
	for k, v := range src.Env {
		dst.Env[k] = v
	}

	if src.Options.Verbose {
		dst.Options.Verbose = true
	}
	if src.Options.KeepGoing {
		dst.Options.KeepGoing = true
	}
	if src.Options.NoCache {
		dst.Options.NoCache = true
	}
	if src.Options.Jobs != 0 {
		dst.Options.Jobs = src.Options.Jobs
	}

	for _, t := range src.Tasks {
		replaced := false
		for i := range dst.Tasks {
			if dst.Tasks[i].Name == t.Name {
				dst.Tasks[i] = t
				replaced = true
				break
			}
		}
		if !replaced {
			dst.Tasks = append(dst.Tasks, t)
		}
	}
}

func setDefaults(bf *model.BuildFile) {
	if bf.Version == "" {
		bf.Version = defaultVersion
	}
	if bf.Top == "" {
		bf.Top = defaultTop
	}
	if bf.Out == "" {
		bf.Out = defaultOut
	}
	if bf.Options.Jobs <= 0 {
		bf.Options.Jobs = runtime.NumCPU()
	}
}

func validate(bf *model.BuildFile) error {
	if len(bf.Tasks) == 0 {
		return errors.NewValidationError("no tasks defined")
	}

	names := make(map[string]bool, len(bf.Tasks))
	producers := make(map[string]string)

	for i, t := range bf.Tasks {
		if t.Name == "" {
			return errors.NewValidationError(fmt.Sprintf("task %d has no name", i+1))
		}
		if names[t.Name] {
			return errors.NewValidationError(fmt.Sprintf("duplicate task name '%s'", t.Name))
		}
		names[t.Name] = true

		if strings.TrimSpace(t.Command) == "" {
			return errors.NewValidationError(fmt.Sprintf("task '%s' has an empty command", t.Name))
		}

		for _, tgt := range t.Target {
			key := filepath.ToSlash(filepath.Clean(tgt))
			if other, ok := producers[key]; ok {
				return errors.NewValidationError(fmt.Sprintf("target '%s' is produced by both '%s' and '%s'", tgt, other, t.Name))
			}
			producers[key] = t.Name
		}
	}

	for _, t := range bf.Tasks {
		for _, dep := range t.After {
			if !names[dep] {
				return errors.NewValidationError(fmt.Sprintf("task '%s': dependency '%s' not found", t.Name, dep))
			}
			if dep == t.Name {
				return errors.NewValidationError(fmt.Sprintf("task '%s' depends on itself", t.Name))
			}
		}
	}

	return nil
}

// getCached returns a cached build file if the file hasn't been modified
func (l *Loader) getCached(filePath string) (*model.BuildFile, bool) {
	info, err := os.Stat(filePath)
	if err != nil {
		return nil, false
	}

	if cached, ok := l.cache.Load(filePath); ok {
		entry := cached.(*CacheEntry)
		if entry.ModTime.Equal(info.ModTime()) {
			return entry.File, true
		}
		l.cache.Delete(filePath)
	}
	return nil, false
}

// Invalidate drops any cached copy of filePath
func (l *Loader) Invalidate(filePath string) {
	l.cache.Delete(filePath)
}

func (l *Loader) store(filePath string, bf *model.BuildFile) {
	info, err := os.Stat(filePath)
	if err != nil {
		return
	}
	l.cache.Store(filePath, &CacheEntry{File: bf, Path: filePath, ModTime: info.ModTime()})
}
