// Package application contains use-case orchestration services.
package application

import (
	"errors"
	"fmt"

	"github.com/ericfisherdev/sonarpanel/internal/domain/model"
	"github.com/ericfisherdev/sonarpanel/internal/domain/port/driven"
)

// ErrInvalidInput marks a request the caller must correct before retrying.
var ErrInvalidInput = errors.New("invalid input")

// MissingCredentialError reports that no active credential exists for a
// host and class. It is a configuration gap the caller can fix by running
// the admin-token bootstrap for the host.
type MissingCredentialError struct {
	Host  string
	Class model.CredentialClass
}

// Error implements the error interface.
func (e *MissingCredentialError) Error() string {
	return fmt.Sprintf("no active %s credential for %s: create an admin token for this host first", e.Class, e.Host)
}

// Unwrap ties the error to driven.ErrMissingCredential.
func (e *MissingCredentialError) Unwrap() error {
	return driven.ErrMissingCredential
}

// Warning describes a degraded step of an operation that still succeeded.
type Warning struct {
	Step    string
	Kind    driven.ErrorKind
	Message string
	// Token carries a secret that was minted remotely but could not be stored.
	// It cannot be fetched from the remote server again.
	Token string
	// CredentialID names a stored token the project record does not reference.
	CredentialID string
}

// Saga step names used in warnings and logs.
const (
	StepGenerateToken = "generate_token"
	StepSaveToken     = "save_token"
	StepAttachToken   = "attach_token"
	StepDeleteRemote  = "delete_remote_project"
	StepDeactivate    = "deactivate_credential"
)

func newWarning(step string, err error) *Warning {
	return &Warning{Step: step, Kind: driven.KindOf(err), Message: err.Error()}
}

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

// storeError wraps a local store error, classifying unknown failures as
// LocalStoreFailure so callers never see an unclassified store error.
func storeError(op string, err error) error {
	if driven.KindOf(err) != driven.KindUnknown {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, driven.ErrLocalStoreFailure, err)
}
