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
	ErrCodeConnectionFailed     ErrorCode = "SLE1001"
	ErrCodeConnectionTimeout    ErrorCode = "SLE1002"
	ErrCodeAuthenticationFailed ErrorCode = "SLE1003"
	ErrCodeNetworkUnavailable   ErrorCode = "SLE1004"

	// Configuration errors (2xxx)
	ErrCodeConfigNotFound ErrorCode = "SLE2001"
	ErrCodeConfigInvalid  ErrorCode = "SLE2002"
	ErrCodeConfigMissing  ErrorCode = "SLE2003"

	// Object storage errors (3xxx)
	ErrCodeSourceNotFound     ErrorCode = "SLE3001"
	ErrCodeStorageUnavailable ErrorCode = "SLE3002"

	// SQL execution errors (4xxx)
	ErrCodeSQLSyntax         ErrorCode = "SLE4001"
	ErrCodeSQLPermission     ErrorCode = "SLE4002"
	ErrCodeSQLTimeout        ErrorCode = "SLE4003"
	ErrCodeSQLObjectNotFound ErrorCode = "SLE4005"
	ErrCodeSQLExecution      ErrorCode = "SLE4006"
	ErrCodeStagingFailed     ErrorCode = "SLE4007"
	ErrCodeDuplicateEntry    ErrorCode = "SLE4009"

	// History errors (5xxx)
	ErrCodeHistoryUnavailable ErrorCode = "SLE5001"
	ErrCodeNotFound           ErrorCode = "SLE5004"

	// System errors (9xxx)
	ErrCodeInternal           ErrorCode = "SLE9001"
	ErrCodeTimeout            ErrorCode = "SLE9002"
	ErrCodeResourceExhausted  ErrorCode = "SLE9003"
	ErrCodeServiceUnavailable ErrorCode = "SLE9004"
	ErrCodeInvalidInput       ErrorCode = "SLE9005"
	ErrCodeCancelled          ErrorCode = "SLE9008"
)

// ErrorSeverity represents the severity level of an error
type ErrorSeverity string

const (
	SeverityCritical ErrorSeverity = "CRITICAL" // Rebuild cannot continue
	SeverityError    ErrorSeverity = "ERROR"    // Operation failed
	SeverityWarning  ErrorSeverity = "WARNING"  // Operation succeeded with issues
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

// Is reports whether target is an AppError with the same code
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
		Code:      code,
		Message:   message,
		Severity:  SeverityError,
		Context:   make(map[string]interface{}),
		Stack:     captureStack(),
		Timestamp: time.Now(),
	}
}

// Wrap wraps an existing error with AppError
func Wrap(err error, code ErrorCode, message string) *AppError {
	if err == nil {
		return nil
	}

	appErr := New(code, message)
	appErr.Cause = err

	// Inherit context from a wrapped AppError
	var ae *AppError
	if errors.As(err, &ae) {
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
		WithSuggestions(
			"Check your network connection",
			"Verify the cluster endpoint in CLUSTER.DSN is reachable",
			"Check security group and firewall settings",
		)
}

// ConfigError creates an error for a configuration value that is present but unusable
func ConfigError(message string, field string) *AppError {
	return New(ErrCodeConfigInvalid, message).
		WithContext("field", field).
		WithSuggestions(
			fmt.Sprintf("Check the '%s' configuration value", field),
			"Run 'starload check' to validate the configuration",
		)
}

// MissingConfigError creates an error for a required configuration key that is absent or empty
func MissingConfigError(field string) *AppError {
	return New(ErrCodeConfigMissing, fmt.Sprintf("Required configuration key %s is missing or empty", field)).
		WithContext("field", field).
		WithSeverity(SeverityCritical).
		WithSuggestions(
			fmt.Sprintf("Set %s in dwh.cfg", field),
			fmt.Sprintf("Or export STARLOAD_%s", strings.ReplaceAll(field, ".", "_")),
		)
}

// SQLError classifies a warehouse execution error for the given statement
func SQLError(message string, query string, cause error) *AppError {
	if cause == nil {
		return New(ErrCodeSQLExecution, message).
			WithContext("query", truncateString(query, 200))
	}
	err := Wrap(cause, ErrCodeSQLExecution, message).
		WithContext("query", truncateString(query, 200))

	lower := strings.ToLower(cause.Error())

	switch {
	case strings.Contains(lower, "permission denied") || strings.Contains(lower, "access denied") ||
		strings.Contains(lower, "insufficient privileges") || strings.Contains(lower, "not authorized"):
		err.Code = ErrCodeSQLPermission
		_ = err.WithSuggestions(
			"Check the IAM role attached to the cluster",
			"Verify the database user has privileges on the target schema",
		)
	case strings.Contains(lower, "timeout") || strings.Contains(lower, "deadline exceeded") ||
		strings.Contains(lower, "canceling statement"):
		err.Code = ErrCodeSQLTimeout
		_ = err.WithSuggestions(
			"Increase CLUSTER.TIMEOUT",
			"Check warehouse or cluster size",
		)
	case strings.Contains(lower, "duplicate key") || strings.Contains(lower, "unique constraint") ||
		strings.Contains(lower, "duplicate row"):
		err.Code = ErrCodeDuplicateEntry
		_ = err.WithSuggestions(
			"Staging data contains several rows for the same natural key",
			"Inspect the staging table for conflicting attributes",
		)
	case strings.Contains(lower, "load into table") || strings.Contains(lower, "stl_load_errors") ||
		strings.Contains(lower, "error parsing json") || strings.Contains(lower, "s3 prefix") ||
		strings.Contains(lower, "specified s3") || strings.Contains(lower, "s3serviceexception") ||
		strings.Contains(lower, "jsonpaths file"):
		err.Code = ErrCodeStagingFailed
		_ = err.WithSuggestions(
			"Query STL_LOAD_ERRORS for the failing file and line",
			"Check S3.LOG_DATA, S3.SONG_DATA and S3.LOG_JSONPATH point at existing objects",
			"Check the JSONPaths file matches the event log layout",
		)
	case strings.Contains(lower, "does not exist") || strings.Contains(lower, "not found"):
		err.Code = ErrCodeSQLObjectNotFound
		_ = err.WithSuggestions(
			"Run the create stage before copy or insert",
			"Check for typos in object names",
		)
	case strings.Contains(lower, "syntax error"):
		err.Code = ErrCodeSQLSyntax
	}

	return err
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

// HasCode reports whether err carries the given code anywhere in its chain
func HasCode(err error, code ErrorCode) bool {
	return errors.Is(err, &AppError{Code: code})
}

func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

// As is errors.As, re-exported so callers need a single errors import.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Is is errors.Is.
func Is(err, target error) bool {
	return errors.Is(err, target)
}
