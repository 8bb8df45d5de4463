// Package driven defines secondary port interfaces for external adapters.
package driven

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrorKind classifies a failure so callers can decide whether to abort,
// warn, or compensate without inspecting transport details.
type ErrorKind string

const (
	KindUnknown               ErrorKind = ""
	KindRemoteUnreachable     ErrorKind = "remote_unreachable"
	KindRemoteRejected        ErrorKind = "remote_rejected"
	KindRemotePrivilegeDenied ErrorKind = "remote_privilege_denied"
	KindRemoteUnavailableData ErrorKind = "remote_unavailable_data"
	KindLocalStoreConflict    ErrorKind = "local_store_conflict"
	KindLocalStoreFailure     ErrorKind = "local_store_failure"
	KindMissingCredential     ErrorKind = "missing_credential"
)

// Sentinel errors, one per kind. Adapters wrap these so errors.Is works
// across package boundaries.
var (
	// ErrRemoteUnreachable indicates a network failure, timeout, or server error.
	// Retrying the whole operation is safe.
	ErrRemoteUnreachable = errors.New("remote server unreachable")

	// ErrRemoteRejected indicates the remote server refused the request as
	// invalid, including not-found.
	ErrRemoteRejected = errors.New("remote server rejected request")

	// ErrRemotePrivilegeDenied indicates the credential lacks the privilege
	// required for the operation.
	ErrRemotePrivilegeDenied = errors.New("remote server denied privilege")

	// ErrRemoteUnavailableData indicates a read succeeded at the transport
	// level but its payload was empty or undecodable.
	ErrRemoteUnavailableData = errors.New("remote data not available")

	// ErrLocalStoreConflict indicates a uniqueness conflict in a local store.
	ErrLocalStoreConflict = errors.New("local store conflict")

	// ErrLocalStoreFailure indicates an infrastructure failure in a local store.
	ErrLocalStoreFailure = errors.New("local store failure")

	// ErrMissingCredential indicates no active credential exists for a
	// (host, class) pair.
	ErrMissingCredential = errors.New("missing credential")
)

var kindSentinels = []struct {
	kind ErrorKind
	err  error
}{
	{KindMissingCredential, ErrMissingCredential},
	{KindRemotePrivilegeDenied, ErrRemotePrivilegeDenied},
	{KindRemoteUnreachable, ErrRemoteUnreachable},
	{KindRemoteRejected, ErrRemoteRejected},
	{KindRemoteUnavailableData, ErrRemoteUnavailableData},
	{KindLocalStoreConflict, ErrLocalStoreConflict},
	{KindLocalStoreFailure, ErrLocalStoreFailure},
}

// Sentinel returns the sentinel error for kind, or nil for KindUnknown.
func (k ErrorKind) Sentinel() error {
	for _, ks := range kindSentinels {
		if ks.kind == k {
			return ks.err
		}
	}
	return nil
}

// RemoteError is a classified failure returned by a remote client.
type RemoteError struct {
	Kind       ErrorKind
	Op         string // e.g. "projects/create"
	StatusCode int    // 0 when no response was received
	Message    string // message reported by the remote server, if any
	Err        error  // underlying transport or decode error, if any
}

// Error implements the error interface.
func (e *RemoteError) Error() string {
	var b strings.Builder
	b.WriteString(e.Op)
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, ": status %d", e.StatusCode)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap exposes both the kind sentinel and the underlying cause.
func (e *RemoteError) Unwrap() []error {
	errs := make([]error, 0, 2)
	if s := e.Kind.Sentinel(); s != nil {
		errs = append(errs, s)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// KindOf returns the kind of err, or KindUnknown if err carries none.
// Sentinels are checked in priority order, so a privilege denial wins over a
// generic rejection.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindUnknown
	}
	for _, ks := range kindSentinels {
		if errors.Is(err, ks.err) {
			return ks.kind
		}
	}
	return KindUnknown
}

// privilegeMarkers are matched case-insensitively against remote error text.
// The list follows the remote server's wording and may need updating when
// that wording changes.
var privilegeMarkers = []string{
	"insufficient privileges",
	"privilege",
	"not authorized",
	"unauthorized",
	"access denied",
}

// IsPrivilegeMessage reports whether msg matches one of the privilege markers.
// Quoted segments are ignored: the remote server quotes the keys and names it
// echoes back, and a project called 'privilege-audit' says nothing about
// privileges.
func IsPrivilegeMessage(msg string) bool {
	lower := strings.ToLower(stripQuoted(msg))
	for _, marker := range privilegeMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

func stripQuoted(s string) string {
	var b strings.Builder
	var quote rune
	for _, r := range s {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			}
		case r == '\'' || r == '"':
			quote = r
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// IsPrivilegeDenied reports whether err is a privilege or authorization
// failure. A classified kind wins: unreachable, unavailable-data and
// not-found failures are never privilege failures. For rejections and
// unclassified remote errors the markers are matched against the remote
// message only, never against the wrapped error text.
func IsPrivilegeDenied(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrRemotePrivilegeDenied) {
		return true
	}

	var re *RemoteError
	if errors.As(err, &re) {
		if re.Kind != KindRemoteRejected && re.Kind != KindUnknown {
			return false
		}
		if re.StatusCode == http.StatusNotFound {
			return false
		}
		return IsPrivilegeMessage(re.Message)
	}

	if KindOf(err) != KindUnknown {
		return false
	}
	return IsPrivilegeMessage(err.Error())
}
