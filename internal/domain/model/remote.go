package model

import "time"

// RemoteProject is the remote server's view of a project. It is copied into
// a Project record after a successful create call and then discarded.
type RemoteProject struct {
	Key        string
	Name       string
	Qualifier  string
	Visibility Visibility
}

// TokenRequest describes a token to mint on the remote server.
type TokenRequest struct {
	Name       string
	Class      CredentialClass
	ProjectKey string
	ExpiresAt  *time.Time
}

// GeneratedToken is returned once by the remote server when a token is
// minted. The secret cannot be fetched again afterwards.
type GeneratedToken struct {
	Login      string
	Name       string
	Token      string
	Class      CredentialClass
	ProjectKey string
	CreatedAt  time.Time
	ExpiresAt  *time.Time
}

// ServerStatus is the remote server's self-reported state.
type ServerStatus struct {
	ID      string
	Version string
	Status  string
}
