package application

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ericfisherdev/sonarpanel/internal/domain/model"
	"github.com/ericfisherdev/sonarpanel/internal/domain/port/driven"
)

// DeprovisionResult is the outcome of a deprovisioning run that removed the
// local record. Warning is set when the remote delete failed for a reason
// other than missing privileges.
type DeprovisionResult struct {
	Project       model.Project
	RemoteDeleted bool
	Warning       *Warning
}

// DeprovisioningService deletes a project remotely and then locally.
type DeprovisioningService struct {
	projects  driven.ProjectStore
	creds     driven.CredentialStore
	resolver  *CredentialResolver
	connector driven.SonarConnector
	logger    *slog.Logger
}

// NewDeprovisioningService creates a DeprovisioningService with all required dependencies.
func NewDeprovisioningService(
	projects driven.ProjectStore,
	creds driven.CredentialStore,
	resolver *CredentialResolver,
	connector driven.SonarConnector,
	logger *slog.Logger,
) *DeprovisioningService {
	if logger == nil {
		logger = slog.Default()
	}
	return &DeprovisioningService{
		projects:  projects,
		creds:     creds,
		resolver:  resolver,
		connector: connector,
		logger:    logger,
	}
}

// DeleteProject runs the deprovisioning saga for the record at path.
//
// A privilege failure on the remote delete aborts and keeps the local
// record. Any other remote failure still removes the local record and is
// reported as a warning. A local failure after a successful remote delete
// is returned as an error.
func (s *DeprovisioningService) DeleteProject(ctx context.Context, path string) (*DeprovisionResult, error) {
	if path == "" {
		return nil, invalidf("path is required")
	}

	// Init -> LookupOk
	record, err := s.projects.FindByPath(ctx, path)
	if err != nil {
		return nil, storeError("find project", err)
	}
	if record == nil {
		return nil, fmt.Errorf("delete project %s: %w", path, driven.ErrProjectNotFound)
	}
	log := s.logger.With("project_key", record.Key, "path", path, "host", record.HostURL)

	adminToken, err := s.resolver.Resolve(ctx, record.HostURL, model.CredentialClassAdmin)
	if err != nil {
		return nil, err
	}

	// LookupOk -> RemoteDeleteAttempted
	result := &DeprovisionResult{Project: *record}
	client := s.connector.Connect(record.HostURL, driven.TokenAuth(adminToken))

	remoteErr := client.DeleteProject(ctx, record.Key)
	switch {
	case remoteErr == nil:
		result.RemoteDeleted = true
		log.Info("remote project deleted")
	case driven.IsPrivilegeDenied(remoteErr):
		log.Error("remote delete denied, keeping local record", "error", remoteErr)
		if driven.KindOf(remoteErr) != driven.KindRemotePrivilegeDenied {
			remoteErr = fmt.Errorf("%w: %w", driven.ErrRemotePrivilegeDenied, remoteErr)
		}
		return nil, fmt.Errorf("delete remote project %s: %w", record.Key, remoteErr)
	default:
		log.Warn("remote delete failed, removing local record anyway", "error", remoteErr)
		result.Warning = newWarning(StepDeleteRemote, remoteErr)
	}

	// RemoteDeleteAttempted -> Done
	if _, err := s.projects.DeleteByPath(ctx, path); err != nil {
		err = storeError("delete local project "+path, err)
		log.Error("local delete failed", "remote_deleted", result.RemoteDeleted, "error", err)
		return nil, err
	}
	log.Info("local project record deleted")

	s.deactivateProjectTokens(ctx, *record, log)

	return result, nil
}

// deactivateProjectTokens soft-deletes the project's stored tokens on its
// host, including tokens a provisioning run stored but never attached.
// Failures are logged only.
func (s *DeprovisioningService) deactivateProjectTokens(ctx context.Context, p model.Project, log *slog.Logger) {
	ids := map[string]bool{}
	if p.HasToken() {
		ids[p.CredentialID] = true
	}
	creds, err := s.creds.ListByProject(ctx, p.Key)
	if err != nil {
		log.Warn("could not list project tokens", "error", err)
	}
	for _, c := range creds {
		if c.Active && c.Class == model.CredentialClassProjectAnalysis && c.HostURL == p.HostURL {
			ids[c.ID] = true
		}
	}

	for id := range ids {
		if err := s.creds.Deactivate(ctx, id); err != nil {
			log.Warn("could not deactivate project token", "credential_id", id, "error", err)
			continue
		}
		log.Info("project token deactivated", "credential_id", id)
	}
}
