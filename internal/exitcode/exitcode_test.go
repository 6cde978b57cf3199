package exitcode

import (
	stderrors "errors"
	"testing"

	"github.com/voxop/voxop/internal/errors"
)

func TestExitCodes(t *testing.T) {
	tests := []struct {
		name     string
		code     int
		expected int
	}{
		{"Success", Success, 0},
		{"GeneralError", GeneralError, 1},
		{"UsageError", UsageError, 2},
		{"ParseFailed", ParseFailed, 3},
		{"PolicyDenied", PolicyDenied, 4},
		{"Aborted", Aborted, 5},
		{"CollaboratorError", CollaboratorError, 6},
		{"PartialFailure", PartialFailure, 7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.code != tt.expected {
				t.Errorf("Exit code %s = %d, want %d", tt.name, tt.code, tt.expected)
			}
		})
	}
}

func TestDetermineExitCode(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected int
	}{
		{
			name:     "nil error returns success",
			err:      nil,
			expected: Success,
		},
		{
			name:     "ambiguous intent",
			err:      errors.NewAmbiguousIntentError("do it"),
			expected: ParseFailed,
		},
		{
			name:     "cyclic graph",
			err:      errors.NewCyclicDependencyError("task_0", "task_1"),
			expected: ParseFailed,
		},
		{
			name:     "capability denied",
			err:      errors.NewCapabilityDeniedError("process-control", "killall chrome"),
			expected: PolicyDenied,
		},
		{
			name:     "confirmation timeout",
			err:      errors.NewConfirmationTimeoutError("t-1"),
			expected: PolicyDenied,
		},
		{
			name:     "cancelled by user",
			err:      errors.NewCancelledError("t-1"),
			expected: Aborted,
		},
		{
			name:     "collaborator unavailable",
			err:      errors.NewCollaboratorUnavailableError("vision-model", stderrors.New("refused")),
			expected: CollaboratorError,
		},
		{
			name:     "execution failure",
			err:      errors.NewExecutionFailureError("false", 1, ""),
			expected: PartialFailure,
		},
		{
			name:     "invalid config",
			err:      errors.NewConfigInvalidError("scheduler.concurrency", "must be positive"),
			expected: UsageError,
		},
		{
			name:     "uncoded error falls back to general",
			err:      stderrors.New("something else"),
			expected: GeneralError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DetermineExitCode(tt.err); got != tt.expected {
				t.Errorf("DetermineExitCode() = %d, want %d", got, tt.expected)
			}
		})
	}
}

func TestDescription(t *testing.T) {
	if Description(Success) != "Success" {
		t.Errorf("unexpected description for Success")
	}
	if Description(99) != "Unknown error" {
		t.Errorf("unknown codes should describe as unknown")
	}
}
