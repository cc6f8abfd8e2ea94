package errors

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
	"time"
)

// ErrorCode represents a unique error code for categorizing errors
type ErrorCode string

const (
	// Connection errors (1xxx)
	ErrCodeConnectionFailed     ErrorCode = "SLFT1001"
	ErrCodeConnectionTimeout    ErrorCode = "SLFT1002"
	ErrCodeAuthenticationFailed ErrorCode = "SLFT1003"

	// Configuration errors (2xxx)
	ErrCodeConfigNotFound ErrorCode = "SLFT2001"
	ErrCodeConfigInvalid  ErrorCode = "SLFT2002"
	ErrCodeConfigMissing  ErrorCode = "SLFT2003"

	// Workflow errors (3xxx)
	ErrCodeWorkflowOrdering  ErrorCode = "SLFT3001"
	ErrCodeRunExists         ErrorCode = "SLFT3002"
	ErrCodeRunNotFound       ErrorCode = "SLFT3003"
	ErrCodeStaleCandidate    ErrorCode = "SLFT3004"
	ErrCodeCommitConflict    ErrorCode = "SLFT3005"
	ErrCodeStateCorrupted    ErrorCode = "SLFT3006"
	ErrCodeReviewInterrupted ErrorCode = "SLFT3007"

	// SQL execution errors (4xxx)
	ErrCodeSQLSyntax         ErrorCode = "SLFT4001"
	ErrCodeSQLPermission     ErrorCode = "SLFT4002"
	ErrCodeSQLObjectNotFound ErrorCode = "SLFT4003"
	ErrCodeSQLExecution      ErrorCode = "SLFT4004"
	ErrCodeSQLTransaction    ErrorCode = "SLFT4005"

	// File system errors (5xxx)
	ErrCodeFileNotFound  ErrorCode = "SLFT5001"
	ErrCodeFileOperation ErrorCode = "SLFT5002"

	// Validation errors (6xxx)
	ErrCodeValidationFailed ErrorCode = "SLFT6001"
	ErrCodeInvalidInput     ErrorCode = "SLFT6002"

	// Security errors (7xxx)
	ErrCodeCredentialNotFound ErrorCode = "SLFT7001"
	ErrCodeEncryptionFailed   ErrorCode = "SLFT7002"

	// System errors (9xxx)
	ErrCodeInternal ErrorCode = "SLFT9001"
)

// ErrorSeverity represents the severity level of an error
type ErrorSeverity string

const (
	SeverityCritical ErrorSeverity = "CRITICAL"
	SeverityError    ErrorSeverity = "ERROR"
	SeverityWarning  ErrorSeverity = "WARNING"
	SeverityInfo     ErrorSeverity = "INFO"
)

// AppError represents a structured application error with context
type AppError struct {
	Code        ErrorCode
	Message     string
	Severity    ErrorSeverity
	Context     map[string]interface{}
	Cause       error
	Stack       string
	Timestamp   time.Time
	Recoverable bool
	Suggestions []string
}

// Error implements the error interface
func (e *AppError) Error() string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("[%s] %s: %s", e.Code, e.Severity, e.Message))

	if e.Cause != nil {
		b.WriteString(fmt.Sprintf("\nCaused by: %v", e.Cause))
	}

	if len(e.Suggestions) > 0 {
		b.WriteString("\nSuggestions:")
		for i, suggestion := range e.Suggestions {
			b.WriteString(fmt.Sprintf("\n  %d. %s", i+1, suggestion))
		}
	}

	return b.String()
}

// Unwrap returns the cause of the error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is implements error comparison
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// New creates a new AppError
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:        code,
		Message:     message,
		Severity:    SeverityError,
		Context:     make(map[string]interface{}),
		Stack:       captureStack(),
		Timestamp:   time.Now(),
		Recoverable: false,
	}
}

// Wrap wraps an existing error with AppError
func Wrap(err error, code ErrorCode, message string) *AppError {
	if err == nil {
		return nil
	}

	appErr := New(code, message)
	appErr.Cause = err

	// Inherit context when wrapping another AppError
	if ae, ok := err.(*AppError); ok {
		for k, v := range ae.Context {
			appErr.Context[k] = v
		}
	}

	return appErr
}

// WithContext adds context to the error
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithSeverity sets the error severity
func (e *AppError) WithSeverity(severity ErrorSeverity) *AppError {
	e.Severity = severity
	return e
}

// WithSuggestions adds recovery suggestions
func (e *AppError) WithSuggestions(suggestions ...string) *AppError {
	e.Suggestions = append(e.Suggestions, suggestions...)
	return e
}

// AsRecoverable marks the error as recoverable
func (e *AppError) AsRecoverable() *AppError {
	e.Recoverable = true
	return e
}

// captureStack captures the current stack trace
func captureStack() string {
	const depth = 32
	var pcs [depth]uintptr
	n := runtime.Callers(3, pcs[:])

	var b strings.Builder
	frames := runtime.CallersFrames(pcs[:n])

	for {
		frame, more := frames.Next()
		if !strings.Contains(frame.File, "runtime/") {
			b.WriteString(fmt.Sprintf("%s:%d %s\n", frame.File, frame.Line, frame.Function))
		}
		if !more {
			break
		}
	}

	return b.String()
}

// Common error constructors

// ConnectionError creates a connection-related error
func ConnectionError(message string, cause error) *AppError {
	return Wrap(cause, ErrCodeConnectionFailed, message).
		WithSeverity(SeverityError).
		WithSuggestions(
			"Check your network connection",
			"Verify the Snowflake endpoint is accessible",
			"Run 'schemalift init' to verify connection settings",
		)
}

// ConfigError creates a configuration-related error
func ConfigError(message string, field string) *AppError {
	return New(ErrCodeConfigInvalid, message).
		WithContext("field", field).
		WithSuggestions(
			fmt.Sprintf("Check the '%s' configuration value", field),
			"Run 'schemalift init' to regenerate the configuration",
		)
}

// OrderingError creates a workflow ordering error naming the stage that must
// complete before the requested stage may run.
func OrderingError(schema, requested, required, current string) *AppError {
	return New(ErrCodeWorkflowOrdering,
		fmt.Sprintf("cannot run '%s' for schema %s: requires stage '%s', current stage is '%s'",
			requested, schema, required, current)).
		WithContext("schema", schema).
		WithContext("requested_stage", requested).
		WithContext("required_stage", required).
		WithContext("current_stage", current).
		WithSuggestions(
			fmt.Sprintf("Run 'schemalift workflow --workflow %s --schema %s' first", stageCommand(required), schema),
			fmt.Sprintf("Or restart from scratch: 'schemalift workflow --workflow clean --schema %s'", schema),
		)
}

// stageCommand maps a required stage name onto the workflow command that
// produces it.
func stageCommand(stage string) string {
	switch stage {
	case "extracted":
		return "extract"
	case "reviewed":
		return "review"
	case "generated":
		return "generate"
	default:
		return "status"
	}
}

// StaleCandidateError signals that the DDL text drifted after analysis, so a
// recorded substitution no longer applies at its offset.
func StaleCandidateError(object, candidateID, expected, found string) *AppError {
	return New(ErrCodeStaleCandidate,
		fmt.Sprintf("candidate %s for object %s is stale: expected %q at recorded offset, found %q",
			candidateID, object, expected, found)).
		WithContext("object", object).
		WithContext("candidate_id", candidateID).
		WithSuggestions(
			"The source schema changed since analysis",
			"Run 'clean' and start a fresh extraction",
		)
}

// ConflictError signals that a commit destination has uncommitted local
// modifications and must be resolved by the operator.
func ConflictError(path string) *AppError {
	return New(ErrCodeCommitConflict,
		fmt.Sprintf("destination %s has uncommitted local modifications", path)).
		WithContext("path", path).
		WithSuggestions(
			"Commit or stash your local changes to the tracked schema tree",
			"Then re-run the commit stage",
		)
}

// SQLError creates an SQL execution error
func SQLError(message string, query string, cause error) *AppError {
	err := Wrap(cause, ErrCodeSQLExecution, message).
		WithContext("query", truncateString(query, 200))

	if cause != nil {
		errStr := cause.Error()
		if strings.Contains(errStr, "permission") || strings.Contains(errStr, "access denied") {
			err.Code = ErrCodeSQLPermission
		} else if strings.Contains(errStr, "does not exist") || strings.Contains(errStr, "not found") {
			err.Code = ErrCodeSQLObjectNotFound
		}
	}

	return err
}

// ValidationError creates a validation error
func ValidationError(field string, value interface{}, reason string) *AppError {
	return New(ErrCodeValidationFailed, fmt.Sprintf("Validation failed for %s: %s", field, reason)).
		WithContext("field", field).
		WithContext("value", value).
		WithSeverity(SeverityWarning).
		AsRecoverable()
}

// IsRecoverable checks if an error is recoverable
func IsRecoverable(err error) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Recoverable
	}
	return false
}

// GetErrorCode extracts the error code from an error
func GetErrorCode(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrCodeInternal
}

// truncateString truncates a string to maxLen characters
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
