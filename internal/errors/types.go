// Package errors classifies failures of the worker's collaborators so the
// loop controller can apply one policy per kind instead of blanket recovery.
package errors

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"syscall"
)

// Kind is the classification the loop controller switches on.
type Kind int

const (
	// KindUnknown is an unclassified failure; treated like a transient remote error.
	KindUnknown Kind = iota
	// KindTransientRemote covers network failures, timeouts, 429 and 5xx.
	// The cycle is aborted and nothing is retried until the next tick.
	KindTransientRemote
	// KindPermanentRemote covers non-retryable 4xx answers such as 404 or 409.
	KindPermanentRemote
	// KindLocalCorruption is an unreadable local artifact, recovered via defaults.
	KindLocalCorruption
	// KindPolicyViolation is a self-imposed limit that has not elapsed yet.
	KindPolicyViolation
	// KindCanceled means the caller's context ended, usually on shutdown.
	KindCanceled
)

func (k Kind) String() string {
	switch k {
	case KindTransientRemote:
		return "transient-remote"
	case KindPermanentRemote:
		return "permanent-remote"
	case KindLocalCorruption:
		return "local-corruption"
	case KindPolicyViolation:
		return "policy-violation"
	case KindCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// Error is a classified failure. Op names the adapter operation, e.g.
// "tasksource.accept".
type Error struct {
	Kind       Kind
	Op         string
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	if e.StatusCode > 0 {
		fmt.Fprintf(&b, "HTTP %d: ", e.StatusCode)
	}
	if e.Err != nil {
		b.WriteString(e.Err.Error())
	} else {
		b.WriteString(e.Kind.String())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New builds a classified error.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// FromStatus classifies a non-2xx HTTP answer.
func FromStatus(op string, statusCode int, message string) *Error {
	kind := KindPermanentRemote
	if isTransientHTTPStatus(statusCode) {
		kind = KindTransientRemote
	}
	if message == "" {
		message = http.StatusText(statusCode)
	}
	return &Error{Kind: kind, Op: op, StatusCode: statusCode, Err: errors.New(message)}
}

// Classify wraps err with op and the kind inferred from it. Already
// classified errors keep their kind.
func Classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var classified *Error
	if errors.As(err, &classified) {
		if classified.Op == "" {
			classified.Op = op
		}
		return err
	}
	return &Error{Kind: infer(err), Op: op, Err: err}
}

// KindOf returns the kind of err, inferring one for unclassified errors.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var classified *Error
	if errors.As(err, &classified) {
		return classified.Kind
	}
	return infer(err)
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var classified *Error
	if errors.As(err, &classified) {
		return classified.StatusCode
	}
	return 0
}

// IsConflict reports whether err is an HTTP 409 answer.
func IsConflict(err error) bool {
	return StatusCode(err) == http.StatusConflict
}

// IsTransient reports whether err is worth trying again on a later tick.
func IsTransient(err error) bool {
	switch KindOf(err) {
	case KindTransientRemote, KindUnknown:
		return err != nil
	default:
		return false
	}
}

func infer(err error) Kind {
	if errors.Is(err, context.Canceled) {
		return KindCanceled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTransientRemote
	}
	if isNetworkError(err) || isSyscallError(err) {
		return KindTransientRemote
	}
	return KindUnknown
}

func isNetworkError(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}

	errStr := strings.ToLower(err.Error())
	networkPatterns := []string{
		"connection refused",
		"timeout",
		"deadline exceeded",
		"no such host",
		"connection reset",
		"broken pipe",
		"eof",
	}
	for _, pattern := range networkPatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}
	return false
}

func isSyscallError(err error) bool {
	var syscallErr syscall.Errno
	if errors.As(err, &syscallErr) {
		switch syscallErr {
		case syscall.ECONNREFUSED, syscall.ECONNRESET, syscall.EPIPE,
			syscall.ETIMEDOUT, syscall.ENETUNREACH, syscall.EHOSTUNREACH:
			return true
		}
	}
	return false
}

func isTransientHTTPStatus(statusCode int) bool {
	switch statusCode {
	case http.StatusRequestTimeout, // 408
		http.StatusTooManyRequests,     // 429
		http.StatusInternalServerError, // 500
		http.StatusBadGateway,          // 502
		http.StatusServiceUnavailable,  // 503
		http.StatusGatewayTimeout:      // 504
		return true
	}
	return statusCode >= 500
}
