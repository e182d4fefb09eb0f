package errors

import (
	"fmt"
	"strings"
)

// TemplateError is raised when a command template cannot be scanned or
// parsed into a pipeline
type TemplateError struct {
	Message  string
	Template string
	Offset   int // byte offset into Template, -1 when unknown
}

// Error implements the error interface
func (e *TemplateError) Error() string {
	if e.Offset >= 0 {
		return fmt.Sprintf("template error at offset %d: %s", e.Offset, e.Message)
	}
	return "template error: " + e.Message
}

// FormatError formats the error with the template and a caret under the offending byte
func (e *TemplateError) FormatError() string {
	var result strings.Builder

	result.WriteString(fmt.Sprintf("\033[31mError\033[0m: %s\n", e.Message))
	result.WriteString(fmt.Sprintf("   \033[34m|\033[0m %s\n", e.Template))

	if e.Offset >= 0 && e.Offset <= len(e.Template) {
		spaces := strings.Repeat(" ", e.Offset)
		result.WriteString(fmt.Sprintf("   \033[34m|\033[0m %s\033[31m^\033[0m\n", spaces))
	}

	if suggestion := e.getSuggestion(); suggestion != "" {
		result.WriteString(fmt.Sprintf("   \033[33mHelp:\033[0m %s\n", suggestion))
	}

	return result.String()
}

// getSuggestion returns a hint for common template mistakes
func (e *TemplateError) getSuggestion() string {
	msg := strings.ToLower(e.Message)

	if strings.Contains(msg, "unterminated") {
		return "Close the reference with '}', or write '$$' for a literal '$'"
	}

	if strings.Contains(msg, "expected a file") {
		return "Put a path after the redirection operator"
	}

	if strings.Contains(msg, "empty command") {
		return "Remove the dangling operator"
	}

	return ""
}

// NewTemplateError creates a new template error
func NewTemplateError(message, template string, offset int) *TemplateError {
	return &TemplateError{
		Message:  message,
		Template: template,
		Offset:   offset,
	}
}

// ResolutionKind classifies why a placeholder could not be resolved
type ResolutionKind int

const (
	// Unbound means the placeholder names a symbol missing from the namespace
	Unbound ResolutionKind = iota
	// AmbiguousInput means ${SRC} was used with zero or several inputs
	AmbiguousInput
	// AmbiguousOutput means ${TGT} was used with zero or several outputs
	AmbiguousOutput
	// BadAccessor means the trailing code is not valid for the value
	BadAccessor
	// IndexOutOfRange means an index accessor fell outside the list
	IndexOutOfRange
)

// String returns the kind name
func (k ResolutionKind) String() string {
	switch k {
	case Unbound:
		return "unbound"
	case AmbiguousInput:
		return "ambiguous input"
	case AmbiguousOutput:
		return "ambiguous output"
	case BadAccessor:
		return "bad accessor"
	case IndexOutOfRange:
		return "index out of range"
	default:
		return "unknown"
	}
}

// ResolutionError is raised when a placeholder reference cannot be turned into a string
type ResolutionError struct {
	Kind    ResolutionKind
	Name    string
	Code    string
	Message string
}

// Error implements the error interface
func (e *ResolutionError) Error() string {
	return fmt.Sprintf("cannot resolve ${%s%s}: %s", e.Name, e.Code, e.Message)
}

// NewResolutionError creates a new resolution error
func NewResolutionError(kind ResolutionKind, name, code, message string) *ResolutionError {
	return &ResolutionError{
		Kind:    kind,
		Name:    name,
		Code:    code,
		Message: message,
	}
}

// TaskFailedError reports a task that did not complete successfully.
// ExitCode is the executor's result, Err is set when the task failed before
// or while spawning processes.
type TaskFailedError struct {
	Task     string
	ExitCode int
	Err      error
}

// Error implements the error interface
func (e *TaskFailedError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Task, e.Err)
	}
	return fmt.Sprintf("%s: exited with code %d", e.Task, e.ExitCode)
}

// Unwrap returns the underlying error
func (e *TaskFailedError) Unwrap() error {
	return e.Err
}

// NewTaskFailedError creates a new task failure
func NewTaskFailedError(task string, exitCode int, err error) *TaskFailedError {
	return &TaskFailedError{
		Task:     task,
		ExitCode: exitCode,
		Err:      err,
	}
}

// ValidationError reports an invalid build description; it should not show CLI usage
type ValidationError struct {
	Message string
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	return e.Message
}

// NewValidationError creates a new validation error
func NewValidationError(message string) *ValidationError {
	return &ValidationError{
		Message: message,
	}
}
