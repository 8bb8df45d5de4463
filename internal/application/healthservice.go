package application

import (
	"context"
	"fmt"

	"github.com/ericfisherdev/sonarpanel/internal/domain/model"
	"github.com/ericfisherdev/sonarpanel/internal/domain/port/driven"
)

// Pinger is satisfied by the local database.
type Pinger interface {
	Ping(ctx context.Context) error
}

// RemoteHealth is the reachability report of a remote server.
type RemoteHealth struct {
	Host      string
	Reachable bool
	Version   string
	Status    string
	Error     *SectionError
}

// HealthService reports local and remote health. It depends only on port interfaces.
type HealthService struct {
	db          Pinger
	connector   driven.SonarConnector
	defaultHost string
}

// NewHealthService creates a new HealthService with the required dependencies.
func NewHealthService(db Pinger, connector driven.SonarConnector, defaultHost string) *HealthService {
	return &HealthService{
		db:          db,
		connector:   connector,
		defaultHost: model.NormalizeHostURL(defaultHost),
	}
}

// Local checks the local store.
func (s *HealthService) Local(ctx context.Context) error {
	if err := s.db.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %w", driven.ErrLocalStoreFailure, err)
	}
	return nil
}

// Remote queries the server status of host, or of the default host when
// host is empty. The status endpoint needs no credential.
func (s *HealthService) Remote(ctx context.Context, host string) RemoteHealth {
	host = model.NormalizeHostURL(host)
	if host == "" {
		host = s.defaultHost
	}

	status, err := s.connector.Connect(host, driven.Auth{}).ServerStatus(ctx)
	if err != nil {
		return RemoteHealth{
			Host:  host,
			Error: &SectionError{Kind: driven.KindOf(err), Message: err.Error()},
		}
	}

	return RemoteHealth{
		Host:      host,
		Reachable: true,
		Version:   status.Version,
		Status:    status.Status,
	}
}
