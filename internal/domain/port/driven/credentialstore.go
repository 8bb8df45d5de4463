package driven

import (
	"context"
	"errors"

	"github.com/ericfisherdev/sonarpanel/internal/domain/model"
)

// ErrEncryptionKeyNotSet is returned by CredentialStore operations when
// SONARPANEL_SECRET_KEY has not been configured.
var ErrEncryptionKeyNotSet = errors.New("encryption key not configured: set SONARPANEL_SECRET_KEY")

// ErrCredentialNotFound indicates no credential exists for the given id.
var ErrCredentialNotFound = errors.New("credential not found")

// CredentialStore defines the driven port for encrypted credential persistence.
// The adapter layer is responsible for encryption/decryption; this interface
// operates on plaintext values at the domain boundary.
type CredentialStore interface {
	// Insert stores a new credential. An empty ID is replaced with a generated
	// one. The stored record is returned.
	Insert(ctx context.Context, cred model.Credential) (*model.Credential, error)

	// Get returns nil, nil if no credential exists for id.
	Get(ctx context.Context, id string) (*model.Credential, error)

	// FindActiveByHostAndClass returns an active credential for the pair, or
	// nil, nil if there is none. When more than one active credential
	// matches, which one is returned is unspecified.
	FindActiveByHostAndClass(ctx context.Context, hostURL string, class model.CredentialClass) (*model.Credential, error)

	// List returns all credentials, active or not, newest first.
	List(ctx context.Context) ([]model.Credential, error)

	// ListByProject returns the credentials issued for a project key,
	// active or not, newest first.
	ListByProject(ctx context.Context, projectKey string) ([]model.Credential, error)

	// UpdateValue replaces the secret value. Returns ErrCredentialNotFound if
	// id does not exist.
	UpdateValue(ctx context.Context, id, value string) error

	// Deactivate clears the active flag. Returns ErrCredentialNotFound if id
	// does not exist.
	Deactivate(ctx context.Context, id string) error

	// Delete removes the credential. Returns ErrCredentialNotFound if id
	// does not exist.
	Delete(ctx context.Context, id string) error
}
