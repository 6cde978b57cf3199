package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// ErrorCode represents a unique error identifier
type ErrorCode string

// Error categories
const (
	// Parse errors (PARSE-001 to PARSE-099)
	ErrCodeParseFailed     ErrorCode = "PARSE-001"
	ErrCodeAmbiguousIntent ErrorCode = "PARSE-002"
	ErrCodeEmptyUtterance  ErrorCode = "PARSE-003"

	// Graph errors (GRAPH-001 to GRAPH-099)
	ErrCodeGraphCyclicDep  ErrorCode = "GRAPH-001"
	ErrCodeGraphUnknownDep ErrorCode = "GRAPH-002"
	ErrCodeGraphEmpty      ErrorCode = "GRAPH-003"

	// Policy errors (POLICY-001 to POLICY-099)
	ErrCodeCapabilityDenied    ErrorCode = "POLICY-001"
	ErrCodeConfirmationTimeout ErrorCode = "POLICY-002"
	ErrCodeConfirmationDenied  ErrorCode = "POLICY-003"
	ErrCodePolicyInvalid       ErrorCode = "POLICY-004"
	ErrCodePolicyNotFound      ErrorCode = "POLICY-005"

	// Scheduler errors (SCHED-001 to SCHED-099)
	ErrCodeDependencyAborted ErrorCode = "SCHED-001"
	ErrCodeCancelled         ErrorCode = "SCHED-002"
	ErrCodeInvalidTransition ErrorCode = "SCHED-003"
	ErrCodeUnknownTask       ErrorCode = "SCHED-004"

	// GUI verification errors (GUI-001 to GUI-099)
	ErrCodeVerificationMismatch ErrorCode = "GUI-001"
	ErrCodeNoTargetFound        ErrorCode = "GUI-002"

	// Provider errors (PROVIDER-001 to PROVIDER-099)
	ErrCodeCollaboratorUnavailable ErrorCode = "PROVIDER-001"
	ErrCodeMalformedModelOutput    ErrorCode = "PROVIDER-002"
	ErrCodeProviderNotFound        ErrorCode = "PROVIDER-003"
	ErrCodeProviderTimeout         ErrorCode = "PROVIDER-004"

	// Execution errors (EXEC-001 to EXEC-099)
	ErrCodeExecutionFailure ErrorCode = "EXEC-001"
	ErrCodeExecutionTimeout ErrorCode = "EXEC-002"
	ErrCodeLibraryInvalid   ErrorCode = "EXEC-003"

	// File I/O errors (IO-001 to IO-099)
	ErrCodeFileNotFound   ErrorCode = "IO-001"
	ErrCodeFileReadFailed ErrorCode = "IO-002"
	ErrCodeFileUnmarshal  ErrorCode = "IO-003"

	// Configuration errors (CONFIG-001 to CONFIG-099)
	ErrCodeConfigInvalid ErrorCode = "CONFIG-001"
)

// VoxError represents an enhanced error with code, suggestions, and documentation
type VoxError struct {
	Code        ErrorCode
	Message     string
	Suggestions []string
	DocsURL     string
	Cause       error
}

// Error implements the error interface
func (e *VoxError) Error() string {
	var b strings.Builder

	// Error code and message
	b.WriteString(fmt.Sprintf("[%s] %s", e.Code, e.Message))

	// Add cause if present
	if e.Cause != nil {
		b.WriteString(fmt.Sprintf(": %v", e.Cause))
	}

	// Add suggestions
	if len(e.Suggestions) > 0 {
		b.WriteString("\n\nSuggestions:")
		for _, suggestion := range e.Suggestions {
			b.WriteString(fmt.Sprintf("\n  • %s", suggestion))
		}
	}

	// Add documentation link
	if e.DocsURL != "" {
		b.WriteString(fmt.Sprintf("\n\nDocumentation: %s", e.DocsURL))
	}

	return b.String()
}

// Unwrap implements error unwrapping for errors.Is and errors.As
func (e *VoxError) Unwrap() error {
	return e.Cause
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target any) bool {
	return stderrors.As(err, target)
}

// New creates a new VoxError
func New(code ErrorCode, message string) *VoxError {
	return &VoxError{
		Code:    code,
		Message: message,
	}
}

// Wrap creates a new VoxError wrapping an existing error
func Wrap(code ErrorCode, message string, cause error) *VoxError {
	return &VoxError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// WithSuggestion adds a suggestion to the error
func (e *VoxError) WithSuggestion(suggestion string) *VoxError {
	e.Suggestions = append(e.Suggestions, suggestion)
	return e
}

// WithSuggestions adds multiple suggestions to the error
func (e *VoxError) WithSuggestions(suggestions ...string) *VoxError {
	e.Suggestions = append(e.Suggestions, suggestions...)
	return e
}

// WithDocs adds a documentation URL to the error
func (e *VoxError) WithDocs(url string) *VoxError {
	e.DocsURL = url
	return e
}

// CodeOf returns the error code of err, or the empty code when err carries none
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ""
	}
	var voxErr *VoxError
	if As(err, &voxErr) {
		return voxErr.Code
	}
	return ""
}

// HasCode reports whether err carries the given error code
func HasCode(err error, code ErrorCode) bool {
	return CodeOf(err) == code
}

// Common error constructors for frequently used errors

// NewAmbiguousIntentError creates an error for an utterance that cannot be
// resolved into a task graph
func NewAmbiguousIntentError(segment string) *VoxError {
	return New(ErrCodeAmbiguousIntent, fmt.Sprintf("cannot resolve intent: %q", segment)).
		WithSuggestion("Rephrase the instruction with an explicit verb and target").
		WithSuggestion("Run 'voxop library list' to see known phrases").
		WithDocs("https://github.com/voxop/voxop#utterance-grammar")
}

// NewCyclicDependencyError creates an error for a task graph with a cycle
func NewCyclicDependencyError(from, to string) *VoxError {
	return New(ErrCodeGraphCyclicDep, fmt.Sprintf("circular dependency detected: %s -> %s", from, to)).
		WithSuggestion("Reorder the sequencing cues in the instruction").
		WithDocs("https://github.com/voxop/voxop#task-graphs")
}

// NewCapabilityDeniedError creates an error for an action blocked by policy
func NewCapabilityDeniedError(capability, payload string) *VoxError {
	return New(ErrCodeCapabilityDenied, fmt.Sprintf("capability %s denied for action: %s", capability, payload)).
		WithSuggestion("Review the safety policy with 'voxop policy show'").
		WithSuggestion("Adjust the capability rule if the action should be allowed").
		WithDocs("https://github.com/voxop/voxop#safety-policy")
}

// NewConfirmationTimeoutError creates an error for an unanswered confirmation
func NewConfirmationTimeoutError(taskID string) *VoxError {
	return New(ErrCodeConfirmationTimeout, fmt.Sprintf("confirmation timed out for task: %s", taskID)).
		WithSuggestion("Approve or deny pending confirmations before the timeout").
		WithSuggestion("Raise confirmation_timeout in the config if prompts expire too fast")
}

// NewConfirmationDeniedError creates an error for a confirmation the user
// rejected
func NewConfirmationDeniedError(taskID string) *VoxError {
	return New(ErrCodeConfirmationDenied, fmt.Sprintf("confirmation denied for task: %s", taskID))
}

// NewDependencyAbortedError creates an error for a task skipped because a
// critical predecessor failed
func NewDependencyAbortedError(taskID, depID string) *VoxError {
	return New(ErrCodeDependencyAborted, fmt.Sprintf("task %s aborted: dependency %s did not succeed", taskID, depID))
}

// NewVerificationMismatchError creates an error for a GUI target that could
// not be verified on screen
func NewVerificationMismatchError(target string, attempts int) *VoxError {
	return New(ErrCodeVerificationMismatch, fmt.Sprintf("could not verify %q on screen after %d attempts", target, attempts)).
		WithSuggestion("Make sure the target window is visible and not occluded").
		WithSuggestion("Add a keyboard shortcut for this target to the command library").
		WithDocs("https://github.com/voxop/voxop#gui-verification")
}

// NewCollaboratorUnavailableError creates an error for an unreachable
// external collaborator
func NewCollaboratorUnavailableError(name string, cause error) *VoxError {
	return Wrap(ErrCodeCollaboratorUnavailable, fmt.Sprintf("collaborator unavailable: %s", name), cause).
		WithSuggestion("Check that the collaborator endpoint is running").
		WithSuggestion("Run 'voxop doctor' to verify collaborator health").
		WithDocs("https://github.com/voxop/voxop#collaborators")
}

// NewMalformedModelOutputError creates an error for model output that failed
// contract validation
func NewMalformedModelOutputError(provider string, cause error) *VoxError {
	return Wrap(ErrCodeMalformedModelOutput, fmt.Sprintf("model output failed validation: %s", provider), cause).
		WithSuggestion("The model may need a lower temperature for structured output").
		WithSuggestion("Check the provider's model configuration")
}

// NewExecutionFailureError creates an error for a command that exited non-zero
func NewExecutionFailureError(command string, exitCode int, stderr string) *VoxError {
	msg := fmt.Sprintf("command failed with exit code %d: %s", exitCode, command)
	err := New(ErrCodeExecutionFailure, msg)
	if stderr != "" {
		err = err.WithSuggestion(fmt.Sprintf("stderr: %s", strings.TrimSpace(stderr)))
	}
	return err
}

// NewExecutionTimeoutError creates an error for a command that exceeded its
// time budget
func NewExecutionTimeoutError(command string, timeout string) *VoxError {
	return New(ErrCodeExecutionTimeout, fmt.Sprintf("command timed out after %s: %s", timeout, command)).
		WithSuggestion("Increase shell.command_timeout in the config if the command legitimately runs long")
}

// NewCancelledError creates an error for a task aborted by the fail-safe
func NewCancelledError(taskID string) *VoxError {
	return New(ErrCodeCancelled, fmt.Sprintf("task %s cancelled by user", taskID))
}

// NewInvalidTransitionError creates an error for an illegal task state change
func NewInvalidTransitionError(taskID, from, to string) *VoxError {
	return New(ErrCodeInvalidTransition, fmt.Sprintf("invalid transition for task %s: %s -> %s", taskID, from, to))
}

// NewPolicyNotFoundError creates a policy file not found error
func NewPolicyNotFoundError(path string) *VoxError {
	return New(ErrCodePolicyNotFound, fmt.Sprintf("policy file not found: %s", path)).
		WithSuggestion("Run 'voxop policy init' to create a default policy").
		WithSuggestion("Check if the file path is correct").
		WithDocs("https://github.com/voxop/voxop#safety-policy")
}

// NewFileNotFoundError creates a file not found error
func NewFileNotFoundError(path string) *VoxError {
	return New(ErrCodeFileNotFound, fmt.Sprintf("file not found: %s", path)).
		WithSuggestion("Check if the file path is correct").
		WithSuggestion("Verify the file exists and you have read permissions")
}

// NewFileUnmarshalError creates an unmarshal error
func NewFileUnmarshalError(path string, format string, cause error) *VoxError {
	return Wrap(ErrCodeFileUnmarshal, fmt.Sprintf("failed to parse %s file: %s", format, path), cause).
		WithSuggestion("Check the file syntax and format").
		WithSuggestion(fmt.Sprintf("Ensure the file is valid %s", format))
}

// NewConfigInvalidError creates a configuration validation error
func NewConfigInvalidError(field string, reason string) *VoxError {
	return New(ErrCodeConfigInvalid, fmt.Sprintf("invalid configuration: %s: %s", field, reason)).
		WithSuggestion("Fix the named field in the config file").
		WithDocs("https://github.com/voxop/voxop#configuration")
}
