package application

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ericfisherdev/sonarpanel/internal/domain/model"
	"github.com/ericfisherdev/sonarpanel/internal/domain/port/driven"
)

// AdminTokenRequest is the input of the admin-token bootstrap. The username
// and password are used for one remote call and never stored.
type AdminTokenRequest struct {
	HostURL   string
	Username  string
	Password  string
	TokenName string
	Note      string
	ExpiresAt *time.Time
}

// CredentialResult is a stored or minted credential. Warning is set when
// a later step degraded.
type CredentialResult struct {
	Credential model.Credential
	Warning    *Warning
}

// CredentialService manages stored credentials and their remote tokens.
type CredentialService struct {
	store          driven.CredentialStore
	resolver       *CredentialResolver
	connector      driven.SonarConnector
	defaultHostURL string
	logger         *slog.Logger
	now            func() time.Time
}

// NewCredentialService creates a CredentialService with all required dependencies.
func NewCredentialService(
	store driven.CredentialStore,
	resolver *CredentialResolver,
	connector driven.SonarConnector,
	defaultHostURL string,
	logger *slog.Logger,
) *CredentialService {
	if logger == nil {
		logger = slog.Default()
	}
	return &CredentialService{
		store:          store,
		resolver:       resolver,
		connector:      connector,
		defaultHostURL: model.NormalizeHostURL(defaultHostURL),
		logger:         logger,
		now:            time.Now,
	}
}

// CreateAdminToken mints an administrative token with a username and
// password and stores it as the active admin credential for the host.
// If the token is minted but cannot be stored, the result carries a
// warning holding the raw token.
func (s *CredentialService) CreateAdminToken(ctx context.Context, req AdminTokenRequest) (*CredentialResult, error) {
	host := model.NormalizeHostURL(req.HostURL)
	if host == "" {
		host = s.defaultHostURL
	}
	switch {
	case host == "":
		return nil, invalidf("host URL is required")
	case req.Username == "" || req.Password == "":
		return nil, invalidf("username and password are required")
	}

	name := req.TokenName
	if name == "" {
		name = fmt.Sprintf("sonarpanel-admin-%d", s.now().Unix())
	}

	auth := driven.Auth{Username: req.Username, Password: req.Password}
	client := s.connector.Connect(host, auth)
	defer s.connector.Forget(host, auth)

	tok, err := client.GenerateToken(ctx, model.TokenRequest{
		Name:      name,
		Class:     model.CredentialClassAdmin,
		ExpiresAt: req.ExpiresAt,
	})
	if err != nil {
		s.logger.Error("admin token generation failed", "host", host, "username", req.Username, "error", err)
		return nil, fmt.Errorf("generate admin token: %w", err)
	}

	cred := model.Credential{
		Username:  req.Username,
		Name:      tok.Name,
		Value:     tok.Token,
		HostURL:   host,
		Class:     model.CredentialClassAdmin,
		Active:    true,
		ExpiresAt: tok.ExpiresAt,
		Note:      req.Note,
	}
	if cred.Name == "" {
		cred.Name = name
	}

	saved, err := s.store.Insert(ctx, cred)
	if err != nil {
		err = storeError("save admin token", err)
		s.logger.Warn("admin token generated but not stored", "host", host, "token_name", cred.Name, "error", err)
		w := newWarning(StepSaveToken, err)
		w.Token = tok.Token
		return &CredentialResult{Credential: cred, Warning: w}, nil
	}

	s.logger.Info("admin token stored", "host", host, "credential_id", saved.ID, "token_name", saved.Name)
	return &CredentialResult{Credential: *saved}, nil
}

// List returns the stored credentials, newest first. A non-empty projectKey
// limits the list to tokens issued for that project.
func (s *CredentialService) List(ctx context.Context, projectKey string) ([]model.Credential, error) {
	if projectKey == "" {
		creds, err := s.store.List(ctx)
		if err != nil {
			return nil, storeError("list credentials", err)
		}
		return creds, nil
	}

	creds, err := s.store.ListByProject(ctx, projectKey)
	if err != nil {
		return nil, storeError("list credentials for "+projectKey, err)
	}
	if creds == nil {
		creds = []model.Credential{}
	}
	return creds, nil
}

// Revoke revokes the credential's token on its host using the host's admin
// credential, then deactivates it locally. If the local step fails after the
// remote revoke succeeded, the result carries a warning.
func (s *CredentialService) Revoke(ctx context.Context, id string) (*CredentialResult, error) {
	cred, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !cred.Active {
		return &CredentialResult{Credential: *cred}, nil
	}

	adminToken, err := s.resolver.Resolve(ctx, cred.HostURL, model.CredentialClassAdmin)
	if err != nil {
		return nil, err
	}

	client := s.connector.Connect(cred.HostURL, driven.TokenAuth(adminToken))
	if err := client.RevokeToken(ctx, cred.Name); err != nil {
		s.logger.Error("remote token revoke failed", "credential_id", id, "token_name", cred.Name, "error", err)
		return nil, fmt.Errorf("revoke token %s: %w", cred.Name, err)
	}
	s.connector.Forget(cred.HostURL, driven.TokenAuth(cred.Value))

	result := &CredentialResult{Credential: *cred}
	if err := s.store.Deactivate(ctx, id); err != nil {
		err = storeError("deactivate credential", err)
		s.logger.Warn("token revoked remotely but still active locally", "credential_id", id, "error", err)
		result.Warning = newWarning(StepDeactivate, err)
		return result, nil
	}

	result.Credential.Active = false
	s.logger.Info("credential revoked", "credential_id", id, "host", cred.HostURL)
	return result, nil
}

// Delete removes the credential record without touching the remote token.
func (s *CredentialService) Delete(ctx context.Context, id string) error {
	cred, err := s.get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return storeError("delete credential", err)
	}
	s.connector.Forget(cred.HostURL, driven.TokenAuth(cred.Value))
	s.logger.Info("credential deleted", "credential_id", id)
	return nil
}

func (s *CredentialService) get(ctx context.Context, id string) (*model.Credential, error) {
	if id == "" {
		return nil, invalidf("credential id is required")
	}
	cred, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, storeError("get credential", err)
	}
	if cred == nil {
		return nil, fmt.Errorf("credential %s: %w", id, driven.ErrCredentialNotFound)
	}
	return cred, nil
}
