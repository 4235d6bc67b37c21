package sync

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a push failure.
type ErrorKind string

const (
	KindScanFailed            ErrorKind = "ScanFailed"
	KindChangeDetectionFailed ErrorKind = "ChangeDetectionFailed"
	KindUploadFailed          ErrorKind = "UploadFailed"
	KindConfigurationError    ErrorKind = "ConfigurationError"
	KindStateSaveFailed       ErrorKind = "StateSaveFailed"
)

// Sentinels for errors.Is; they match any SyncError of the same kind.
var (
	ErrScanFailed            = &SyncError{Kind: KindScanFailed}
	ErrChangeDetectionFailed = &SyncError{Kind: KindChangeDetectionFailed}
	ErrUploadFailed          = &SyncError{Kind: KindUploadFailed}
	ErrConfiguration         = &SyncError{Kind: KindConfigurationError}
	ErrStateSaveFailed       = &SyncError{Kind: KindStateSaveFailed}
)

// SyncError is one entry of PushResult.Errors. Path is the object key for
// upload failures and the base directory for scan failures.
type SyncError struct {
	Kind ErrorKind
	Path string
	Err  error
}

func newSyncError(kind ErrorKind, path string, err error) *SyncError {
	return &SyncError{Kind: kind, Path: path, Err: err}
}

func (e *SyncError) Error() string {
	msg := string(e.Kind)
	if e.Path != "" {
		msg += " " + e.Path
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *SyncError) Unwrap() error {
	return e.Err
}

// Is matches sentinels by kind.
func (e *SyncError) Is(target error) bool {
	t, ok := target.(*SyncError)
	if !ok || t.Path != "" || t.Err != nil {
		return false
	}
	return t.Kind == e.Kind
}

// Fatal reports whether the error aborted the pipeline.
func (e *SyncError) Fatal() bool {
	switch e.Kind {
	case KindScanFailed, KindChangeDetectionFailed, KindConfigurationError:
		return true
	default:
		return false
	}
}

// KindOf returns the kind of the first SyncError in err's chain, or "".
func KindOf(err error) ErrorKind {
	var serr *SyncError
	if errors.As(err, &serr) {
		return serr.Kind
	}
	return ""
}

func configError(format string, args ...any) *SyncError {
	return newSyncError(KindConfigurationError, "", fmt.Errorf(format, args...))
}
