package ferriself

import (
	"errors"
	"fmt"
	"log/slog"
)

var _ error = &statusError{}

type statusError struct {
	Code int
	Text string

	WrappedError error
}

func (s *statusError) LogValue() slog.Value {
	if s == nil {
		return slog.Value{}
	}
	return slog.StringValue(s.Text)
}

func (s *statusError) Error() string {
	return s.Text
}

func (s *statusError) Unwrap() error {
	return s.WrappedError
}

func (s *statusError) Is(target error) bool {
	if err, ok := target.(*statusError); ok {
		return err.Text == s.Text
	}
	return false
}

func Statusf(status int, format string, args ...any) error {
	return &statusError{Code: status, Text: fmt.Sprintf(format, args...)}
}

func WrapError(err error, text string) error {
	return &statusError{Code: 500, Text: text, WrappedError: err}
}

func ErrorCode(err error) int {
	if err == nil {
		return 200
	}
	var err2 *statusError
	if errors.As(err, &err2) {
		return err2.Code
	}
	return 500
}

// BuildError means the submission's image could not be built. Log carries the
// compiler/build output, already trimmed for delivery.
type BuildError struct {
	Log string
}

func (e *BuildError) Error() string { return "error building benchmark" }

// RunError means the sandboxed run crashed, exited non-zero or timed out.
type RunError struct {
	Stderr []byte
}

func (e *RunError) Error() string { return "error running benchmark" }

// MalformedOutputError means the sandbox produced output the protocol parser
// could not interpret. Treated like a run failure: it aborts the submission.
type MalformedOutputError struct {
	Missing []string
}

func (e *MalformedOutputError) Error() string {
	return fmt.Sprintf("malformed benchmark output: missing %v", e.Missing)
}

// WrongAnswerError means a fixture with a known reference answer did not
// match. Fixture is the 1-based index of the offending input.
type WrongAnswerError struct {
	Fixture int
}

func (e *WrongAnswerError) Error() string {
	return fmt.Sprintf("benchmark returned wrong answer for input %d", e.Fixture)
}

// FetchError means the input fixtures for a (year, day) are unavailable.
type FetchError struct {
	Year int
	Day  int
	Err  error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("failed to read input files for day %d", e.Day)
}

func (e *FetchError) Unwrap() error { return e.Err }
