package driven

import (
	"context"

	"github.com/ericfisherdev/sonarpanel/internal/domain/model"
)

// SonarClient defines the driven port for the remote code-quality server.
// Every error it returns is a *RemoteError carrying a kind.
type SonarClient interface {
	// CreateProject creates a project. An empty visibility uses the server default.
	CreateProject(ctx context.Context, name, key string, visibility model.Visibility) (*model.RemoteProject, error)

	// GenerateToken mints a token. The secret is returned only once.
	GenerateToken(ctx context.Context, req model.TokenRequest) (*model.GeneratedToken, error)

	// RevokeToken revokes a token of the authenticated user by name.
	RevokeToken(ctx context.Context, name string) error

	DeleteProject(ctx context.Context, key string) error

	// SearchIssues returns one page of unresolved issues. page is 1-based.
	SearchIssues(ctx context.Context, key string, filter model.IssueFilter, page, pageSize int) (*model.IssuePage, error)

	// GetCoverage returns ErrRemoteUnavailableData if no measures exist yet.
	GetCoverage(ctx context.Context, key string) (*model.Coverage, error)

	// GetQualityGate returns ErrRemoteUnavailableData if the gate has not
	// been computed yet.
	GetQualityGate(ctx context.Context, key string) (*model.QualityGate, error)

	// ProjectExists reports whether a project with key is visible to the caller.
	ProjectExists(ctx context.Context, key string) (bool, error)

	ServerStatus(ctx context.Context) (*model.ServerStatus, error)
}

// Auth is the HTTP Basic credential used for a remote call. Token-based calls
// send the token as the username and leave Password empty.
type Auth struct {
	Username string
	Password string
}

// TokenAuth returns the Auth for a token credential.
func TokenAuth(token string) Auth {
	return Auth{Username: token}
}

// SonarConnector builds clients bound to a host and a credential.
type SonarConnector interface {
	Connect(hostURL string, auth Auth) SonarClient

	// Forget discards any state kept for the pair, such as cached responses.
	Forget(hostURL string, auth Auth)
}
