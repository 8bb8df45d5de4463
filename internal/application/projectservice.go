package application

import (
	"context"
	"fmt"

	"github.com/ericfisherdev/sonarpanel/internal/domain/model"
	"github.com/ericfisherdev/sonarpanel/internal/domain/port/driven"
)

// ProjectInfo is a local record with its remote presence. RemoteExists is
// nil when the remote check could not be made.
type ProjectInfo struct {
	Project      model.Project
	RemoteExists *bool
	RemoteError  *SectionError
}

// ProjectService answers read-only queries about recorded projects.
type ProjectService struct {
	projects  driven.ProjectStore
	resolver  *CredentialResolver
	connector driven.SonarConnector
}

// NewProjectService creates a ProjectService.
func NewProjectService(projects driven.ProjectStore, resolver *CredentialResolver, connector driven.SonarConnector) *ProjectService {
	return &ProjectService{projects: projects, resolver: resolver, connector: connector}
}

// List returns all local records ordered by path.
func (s *ProjectService) List(ctx context.Context) ([]model.Project, error) {
	projects, err := s.projects.ListAll(ctx)
	if err != nil {
		return nil, storeError("list projects", err)
	}
	return projects, nil
}

// Info returns the record at path and whether the remote server still
// knows the project.
func (s *ProjectService) Info(ctx context.Context, path string) (*ProjectInfo, error) {
	if path == "" {
		return nil, invalidf("path is required")
	}

	record, err := s.projects.FindByPath(ctx, path)
	if err != nil {
		return nil, storeError("find project", err)
	}
	if record == nil {
		return nil, fmt.Errorf("project %s: %w", path, driven.ErrProjectNotFound)
	}

	info := &ProjectInfo{Project: *record}

	token, err := s.resolver.Resolve(ctx, record.HostURL, model.CredentialClassAdmin)
	if err == nil {
		var exists bool
		exists, err = s.connector.Connect(record.HostURL, driven.TokenAuth(token)).ProjectExists(ctx, record.Key)
		if err == nil {
			info.RemoteExists = &exists
		}
	}
	if err != nil {
		info.RemoteError = &SectionError{Kind: driven.KindOf(err), Message: err.Error()}
	}

	return info, nil
}
