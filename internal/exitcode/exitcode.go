package exitcode

import (
	"os"

	"github.com/voxop/voxop/internal/errors"
)

// Exit codes for consistent error handling across the CLI
const (
	// Success indicates successful execution
	Success = 0

	// GeneralError indicates a general error condition
	GeneralError = 1

	// UsageError indicates invalid command usage (bad flags, missing args, etc.)
	UsageError = 2

	// ParseFailed indicates the utterance could not be resolved into a graph
	ParseFailed = 3

	// PolicyDenied indicates the safety gate blocked or timed out an action
	PolicyDenied = 4

	// Aborted indicates the run was cancelled by the fail-safe
	Aborted = 5

	// CollaboratorError indicates an external collaborator was unreachable
	CollaboratorError = 6

	// PartialFailure indicates the graph finished with failed tasks
	PartialFailure = 7
)

// Exit terminates the program with the given exit code
func Exit(code int) {
	os.Exit(code)
}

// ExitWithError exits with an appropriate code based on error type
func ExitWithError(err error) {
	if err == nil {
		Exit(Success)
		return
	}
	Exit(DetermineExitCode(err))
}

// DetermineExitCode maps an error to an exit code by its error code
func DetermineExitCode(err error) int {
	if err == nil {
		return Success
	}

	switch errors.CodeOf(err) {
	case errors.ErrCodeParseFailed, errors.ErrCodeAmbiguousIntent,
		errors.ErrCodeEmptyUtterance, errors.ErrCodeGraphCyclicDep,
		errors.ErrCodeGraphUnknownDep, errors.ErrCodeGraphEmpty:
		return ParseFailed
	case errors.ErrCodeCapabilityDenied, errors.ErrCodeConfirmationTimeout,
		errors.ErrCodeConfirmationDenied:
		return PolicyDenied
	case errors.ErrCodeCancelled:
		return Aborted
	case errors.ErrCodeExecutionFailure:
		return PartialFailure
	case errors.ErrCodeCollaboratorUnavailable, errors.ErrCodeProviderTimeout:
		return CollaboratorError
	case errors.ErrCodeConfigInvalid:
		return UsageError
	default:
		return GeneralError
	}
}

// Description returns a human-readable description of an exit code
func Description(code int) string {
	switch code {
	case Success:
		return "Success"
	case GeneralError:
		return "General error"
	case UsageError:
		return "Usage error (invalid flags or arguments)"
	case ParseFailed:
		return "Utterance could not be parsed"
	case PolicyDenied:
		return "Blocked by safety policy"
	case Aborted:
		return "Aborted by user"
	case CollaboratorError:
		return "Collaborator unreachable"
	case PartialFailure:
		return "Finished with failed tasks"
	default:
		return "Unknown error"
	}
}
