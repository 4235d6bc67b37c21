package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net"
	"syscall"
)

var (
	ErrNotFound        = errors.New("blob: object not found")
	ErrAuthentication  = errors.New("blob: authentication failed")
	ErrNetwork         = errors.New("blob: network error")
	ErrInvalidKey      = errors.New("blob: invalid key")
	ErrUnknownProvider = errors.New("blob: unknown provider")
	ErrInvalidConfig   = errors.New("blob: invalid configuration")
)

// ErrorKind is the caller-facing classification of a store error.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindNotFound
	KindAuth
	KindNetwork
	KindProvider
	KindInvalid
)

func (k ErrorKind) String() string {
	switch k {
	case KindNotFound:
		return "not-found"
	case KindAuth:
		return "auth"
	case KindNetwork:
		return "network"
	case KindProvider:
		return "provider"
	case KindInvalid:
		return "invalid"
	default:
		return "unknown"
	}
}

// ProviderError carries a vendor error code that doesn't map onto one of the
// sentinel errors. Retryable is set by the adapter that produced it.
type ProviderError struct {
	Provider  string
	Op        string
	Key       string
	Code      string
	Status    int
	Retryable bool
	Err       error
}

func (e *ProviderError) Error() string {
	msg := fmt.Sprintf("%s.%s", e.Provider, e.Op)
	if e.Key != "" {
		msg += " " + e.Key
	}
	if e.Code != "" {
		msg += " [" + e.Code + "]"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// OpError wraps a classified sentinel with the operation and key it happened on.
type OpError struct {
	Provider string
	Op       string
	Key      string
	Kind     error
	Err      error
}

func (e *OpError) Error() string {
	msg := fmt.Sprintf("%s.%s", e.Provider, e.Op)
	if e.Key != "" {
		msg += " " + e.Key
	}
	msg += ": " + e.Kind.Error()
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *OpError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func newOpError(provider, op, key string, kind, err error) error {
	return &OpError{Provider: provider, Op: op, Key: key, Kind: kind, Err: err}
}

// localFileError wraps a failure to open or stat the file being uploaded.
// A vanished file is not-found; any other local failure stays unclassified.
func localFileError(provider, op, key string, err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return newOpError(provider, op, key, ErrNotFound, err)
	}
	return fmt.Errorf("%s.%s %s: %w", provider, op, key, err)
}

// Classify maps any error returned by a Client onto an ErrorKind.
func Classify(err error) ErrorKind {
	if err == nil {
		return KindUnknown
	}
	switch {
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrAuthentication):
		return KindAuth
	case errors.Is(err, ErrInvalidKey), errors.Is(err, ErrInvalidConfig), errors.Is(err, ErrUnknownProvider):
		return KindInvalid
	case errors.Is(err, ErrNetwork):
		return KindNetwork
	}
	var perr *ProviderError
	if errors.As(err, &perr) {
		return KindProvider
	}
	if isNetworkError(err) {
		return KindNetwork
	}
	return KindUnknown
}

// IsRetryable reports whether an operation that failed with err is worth
// attempting again. Auth, validation and configuration failures never are.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	switch Classify(err) {
	case KindNetwork:
		return true
	case KindProvider:
		var perr *ProviderError
		errors.As(err, &perr)
		return perr.Retryable
	default:
		return false
	}
}

// isNetworkError ignores a bare syscall.Errno, which satisfies net.Error but
// is just as likely to come from a local file.
func isNetworkError(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		if _, errno := netErr.(syscall.Errno); !errno {
			return true
		}
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	return errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.EPIPE)
}

// retryableStatus reports whether an HTTP status code signals a transient
// condition on the provider side.
func retryableStatus(status int) bool {
	return status == 429 || status == 500 || status == 502 || status == 503 || status == 504
}
