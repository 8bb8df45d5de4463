package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ericfisherdev/sonarpanel/internal/domain/model"
	"github.com/ericfisherdev/sonarpanel/internal/domain/port/driven"
)

// ProvisionState is the terminal state of a provisioning run.
type ProvisionState string

const (
	// ProvisionDone means the project, its token, and the token record all exist.
	ProvisionDone ProvisionState = "done"
	// ProvisionTokenWarning means the project exists but no token was generated.
	ProvisionTokenWarning ProvisionState = "persisted_with_token_warning"
	// ProvisionSaveWarning means a token exists but the project record does
	// not reference it. The warning carries the raw token when it could not
	// be stored, or the id of the stored credential otherwise.
	ProvisionSaveWarning ProvisionState = "persisted_with_save_warning"
)

// ProvisioningConfig holds the settings the provisioning saga needs.
type ProvisioningConfig struct {
	// DefaultHostURL is used when a request names no host.
	DefaultHostURL string
	// TokenTTL sets the expiry of generated project tokens. Zero means no expiry.
	TokenTTL time.Duration
}

// CreateProjectRequest is the input of a provisioning run.
type CreateProjectRequest struct {
	Path               string
	Name               string
	Key                string
	Language           string
	SourcesPath        string
	TestsPath          string
	CoverageReportPath string
	HostURL            string
	Visibility         model.Visibility
}

// ProvisionResult is the outcome of a provisioning run that created or found
// a project. Warning is set for every state other than ProvisionDone.
type ProvisionResult struct {
	Project model.Project
	State   ProvisionState
	Warning *Warning
	// Resumed is true when the run found an existing local record.
	Resumed bool
}

// ProvisioningService creates a remote project, records it locally, and
// attaches a project token. Steps run in order and are never rolled back:
// once the remote project exists the saga always records it locally
// first and reports later failures as warnings. A cancelled context can
// leave a remote project without a local record.
type ProvisioningService struct {
	projects  driven.ProjectStore
	creds     driven.CredentialStore
	resolver  *CredentialResolver
	connector driven.SonarConnector
	cfg       ProvisioningConfig
	logger    *slog.Logger
	now       func() time.Time
}

// NewProvisioningService creates a ProvisioningService with all required dependencies.
func NewProvisioningService(
	projects driven.ProjectStore,
	creds driven.CredentialStore,
	resolver *CredentialResolver,
	connector driven.SonarConnector,
	cfg ProvisioningConfig,
	logger *slog.Logger,
) *ProvisioningService {
	if logger == nil {
		logger = slog.Default()
	}
	cfg.DefaultHostURL = model.NormalizeHostURL(cfg.DefaultHostURL)
	return &ProvisioningService{
		projects:  projects,
		creds:     creds,
		resolver:  resolver,
		connector: connector,
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
	}
}

// TokenName returns the name under which a project's token is generated.
func TokenName(projectKey string) string {
	return projectKey + "-token"
}

// CreateProject runs the provisioning saga. An error is returned only when
// nothing new was recorded locally: on invalid input, a path or key already
// tracked for another project, a missing admin credential, a failed remote
// create, or a failed local insert.
func (s *ProvisioningService) CreateProject(ctx context.Context, req CreateProjectRequest) (*ProvisionResult, error) {
	host := model.NormalizeHostURL(req.HostURL)
	if host == "" {
		host = s.cfg.DefaultHostURL
	}
	if err := validateCreate(req, host); err != nil {
		return nil, err
	}
	log := s.logger.With("project_key", req.Key, "path", req.Path, "host", host)

	// Re-entry: a previous run already recorded this project.
	existing, err := s.projects.FindByPath(ctx, req.Path)
	if err != nil {
		return nil, storeError("find project", err)
	}
	if existing != nil && existing.Key != req.Key {
		return nil, fmt.Errorf("path %s is already tracked as project %s: %w", req.Path, existing.Key, driven.ErrLocalStoreConflict)
	}
	if existing != nil && existing.HasToken() {
		log.Info("project already provisioned")
		return &ProvisionResult{Project: *existing, State: ProvisionDone, Resumed: true}, nil
	}
	if existing == nil {
		other, err := s.projects.FindByKey(ctx, req.Key)
		if err != nil {
			return nil, storeError("find project", err)
		}
		if other != nil {
			return nil, fmt.Errorf("project %s is already tracked at %s: %w", req.Key, other.Path, driven.ErrLocalStoreConflict)
		}
	}

	adminToken, err := s.resolver.Resolve(ctx, host, model.CredentialClassAdmin)
	if err != nil {
		return nil, err
	}
	client := s.connector.Connect(host, driven.TokenAuth(adminToken))

	if existing != nil {
		log.Info("project already recorded, resuming provisioning")
		return s.resume(ctx, client, *existing, log), nil
	}

	// Init -> RemoteCreated
	remote, err := client.CreateProject(ctx, req.Name, req.Key, req.Visibility)
	if err != nil {
		log.Error("remote project creation failed", "error", err)
		return nil, fmt.Errorf("create remote project %s: %w", req.Key, err)
	}
	log.Info("remote project created", "remote_key", remote.Key)

	// RemoteCreated -> Persisted
	record := model.Project{
		Path:               req.Path,
		Key:                remote.Key,
		Name:               remote.Name,
		Language:           req.Language,
		SourcesPath:        req.SourcesPath,
		TestsPath:          req.TestsPath,
		CoverageReportPath: req.CoverageReportPath,
		HostURL:            host,
		Visibility:         remote.Visibility,
		Qualifier:          remote.Qualifier,
	}
	if record.Visibility == "" {
		record.Visibility = req.Visibility
	}

	saved, err := s.projects.Insert(ctx, record)
	if err != nil {
		if driven.KindOf(err) == driven.KindLocalStoreConflict {
			return s.handleConflict(ctx, client, record, err, log)
		}
		log.Error("remote project created but local record failed", "error", err)
		return nil, storeError("record project "+remote.Key, err)
	}
	log.Info("project recorded", "project_id", saved.ID)

	return s.attachToken(ctx, client, *saved, log), nil
}

// resume continues a run for a record that already exists locally.
func (s *ProvisioningService) resume(ctx context.Context, client driven.SonarClient, p model.Project, log *slog.Logger) *ProvisionResult {
	if p.HasToken() {
		return &ProvisionResult{Project: p, State: ProvisionDone, Resumed: true}
	}
	result := s.attachToken(ctx, client, p, log)
	result.Resumed = true
	return result
}

// handleConflict resolves an insert conflict raised by a concurrent run
// after the remote create succeeded. A record with the same path and key
// is the same project. Anything else leaves the new remote project
// untracked and is returned as an error.
func (s *ProvisioningService) handleConflict(ctx context.Context, client driven.SonarClient, record model.Project, insertErr error, log *slog.Logger) (*ProvisionResult, error) {
	existing, err := s.projects.FindByPath(ctx, record.Path)
	if err == nil && existing == nil {
		existing, err = s.projects.FindByKey(ctx, record.Key)
	}
	if err != nil {
		return nil, storeError("find conflicting project", err)
	}
	if existing == nil {
		return nil, storeError("record project "+record.Key, insertErr)
	}

	if existing.Key == record.Key && existing.Path == record.Path {
		log.Info("project recorded concurrently, resuming provisioning")
		return s.resume(ctx, client, *existing, log), nil
	}

	log.Error("remote project created but conflicts with a local record",
		"existing_path", existing.Path,
		"existing_key", existing.Key,
	)
	return nil, fmt.Errorf("remote project %s was created but is not recorded: project %s already exists at %s: %w",
		record.Key, existing.Key, existing.Path, insertErr)
}

// attachToken runs the token steps. Failures become warnings.
func (s *ProvisioningService) attachToken(ctx context.Context, client driven.SonarClient, p model.Project, log *slog.Logger) *ProvisionResult {
	stored, err := s.storedToken(ctx, p)
	if err != nil {
		err = storeError("find stored project token", err)
		log.Warn("could not look up stored project token", "error", err)
		return &ProvisionResult{Project: p, State: ProvisionTokenWarning, Warning: newWarning(StepGenerateToken, err)}
	}
	if stored != nil {
		log.Info("reusing stored project token", "credential_id", stored.ID)
		return s.link(ctx, p, stored.ID, log)
	}

	// Persisted -> TokenGenerated
	tok, err := s.generateToken(ctx, client, p, log)
	if err != nil {
		log.Warn("token generation failed, project recorded without token", "error", err)
		return &ProvisionResult{Project: p, State: ProvisionTokenWarning, Warning: newWarning(StepGenerateToken, err)}
	}

	// TokenGenerated -> Done
	cred, err := s.creds.Insert(ctx, model.Credential{
		Username:   tok.Login,
		Name:       tok.Name,
		Value:      tok.Token,
		HostURL:    p.HostURL,
		Class:      model.CredentialClassProjectAnalysis,
		ProjectKey: p.Key,
		Active:     true,
		ExpiresAt:  tok.ExpiresAt,
		Note:       "Token for project " + p.Name,
	})
	if err != nil {
		err = storeError("save project token", err)
		log.Warn("token generated but not stored", "token_name", tok.Name, "error", err)
		w := newWarning(StepSaveToken, err)
		w.Token = tok.Token
		return &ProvisionResult{Project: p, State: ProvisionSaveWarning, Warning: w}
	}
	return s.link(ctx, p, cred.ID, log)
}

// link points the project record at a stored token.
func (s *ProvisioningService) link(ctx context.Context, p model.Project, credentialID string, log *slog.Logger) *ProvisionResult {
	if err := s.projects.UpdateField(ctx, p.ID, model.ProjectFieldCredentialID, credentialID); err != nil {
		err = storeError(fmt.Sprintf("attach stored token %s", credentialID), err)
		log.Warn("token stored but not attached to project", "credential_id", credentialID, "error", err)
		w := newWarning(StepAttachToken, err)
		w.CredentialID = credentialID
		return &ProvisionResult{Project: p, State: ProvisionSaveWarning, Warning: w}
	}

	p.CredentialID = credentialID
	log.Info("project provisioned", "credential_id", credentialID)
	return &ProvisionResult{Project: p, State: ProvisionDone}
}

// storedToken returns an active unexpired project token kept by an earlier
// run for the project, or nil.
func (s *ProvisioningService) storedToken(ctx context.Context, p model.Project) (*model.Credential, error) {
	creds, err := s.creds.ListByProject(ctx, p.Key)
	if err != nil {
		return nil, err
	}
	now := s.now()
	for _, c := range creds {
		if c.Active && c.Class == model.CredentialClassProjectAnalysis && c.HostURL == p.HostURL && !c.Expired(now) {
			return &c, nil
		}
	}
	return nil, nil
}

// generateToken mints the project token. A token left behind under the
// same name by an earlier run whose secret was never stored is revoked
// and generated again once.
func (s *ProvisioningService) generateToken(ctx context.Context, client driven.SonarClient, p model.Project, log *slog.Logger) (*model.GeneratedToken, error) {
	req := model.TokenRequest{
		Name:       TokenName(p.Key),
		Class:      model.CredentialClassProjectAnalysis,
		ProjectKey: p.Key,
	}
	if s.cfg.TokenTTL > 0 {
		exp := s.now().UTC().Add(s.cfg.TokenTTL)
		req.ExpiresAt = &exp
	}

	tok, err := client.GenerateToken(ctx, req)
	if err == nil || !isDuplicateToken(err) {
		return tok, err
	}
	log.Warn("token name already taken remotely, revoking it", "token_name", req.Name)
	if rerr := client.RevokeToken(ctx, req.Name); rerr != nil {
		return nil, fmt.Errorf("revoke stale token %s: %w", req.Name, rerr)
	}
	return client.GenerateToken(ctx, req)
}

func isDuplicateToken(err error) bool {
	var re *driven.RemoteError
	if !errors.As(err, &re) || re.Kind != driven.KindRemoteRejected {
		return false
	}
	return strings.Contains(strings.ToLower(re.Message), "already exists")
}

func validateCreate(req CreateProjectRequest, host string) error {
	switch {
	case req.Path == "":
		return invalidf("path is required")
	case req.Name == "":
		return invalidf("name is required")
	case req.Key == "":
		return invalidf("key is required")
	case host == "":
		return invalidf("host URL is required")
	case !req.Visibility.Valid():
		return invalidf("unknown visibility %q", req.Visibility)
	}
	return nil
}
