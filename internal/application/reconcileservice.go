package application

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/ericfisherdev/sonarpanel/internal/domain/model"
	"github.com/ericfisherdev/sonarpanel/internal/domain/port/driven"
)

// reconcileConcurrency bounds the number of in-flight existence checks.
const reconcileConcurrency = 4

// ReconcileEntry is the remote state of one local record.
type ReconcileEntry struct {
	Project      model.Project
	RemoteExists bool
	Error        *SectionError
}

// ReconcileReport lists every local record with its remote state.
type ReconcileReport struct {
	Entries []ReconcileEntry
	Missing int
	Failed  int
}

// ReconcileService compares local records against the remote server. It
// only reports; it never creates or deletes anything on either side.
type ReconcileService struct {
	projects  driven.ProjectStore
	resolver  *CredentialResolver
	connector driven.SonarConnector
	logger    *slog.Logger
}

// NewReconcileService creates a ReconcileService with all required dependencies.
func NewReconcileService(
	projects driven.ProjectStore,
	resolver *CredentialResolver,
	connector driven.SonarConnector,
	logger *slog.Logger,
) *ReconcileService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReconcileService{
		projects:  projects,
		resolver:  resolver,
		connector: connector,
		logger:    logger,
	}
}

// Report checks every local record against the remote server. Per-record
// failures, including a missing admin credential for a host, are reported
// in the entry and do not fail the run.
func (s *ReconcileService) Report(ctx context.Context) (*ReconcileReport, error) {
	projects, err := s.projects.ListAll(ctx)
	if err != nil {
		return nil, storeError("list projects", err)
	}

	clients := newHostClients(s.resolver, s.connector)
	entries := make([]ReconcileEntry, len(projects))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(reconcileConcurrency)
	for i, p := range projects {
		g.Go(func() error {
			entries[i] = s.check(gctx, clients, p)
			return nil
		})
	}
	_ = g.Wait()

	report := &ReconcileReport{Entries: entries}
	for _, e := range entries {
		switch {
		case e.Error != nil:
			report.Failed++
		case !e.RemoteExists:
			report.Missing++
		}
	}

	s.logger.Info("reconcile report complete",
		"projects", len(entries),
		"missing", report.Missing,
		"failed", report.Failed,
	)
	return report, nil
}

func (s *ReconcileService) check(ctx context.Context, clients *hostClients, p model.Project) ReconcileEntry {
	entry := ReconcileEntry{Project: p}

	client, err := clients.get(ctx, p.HostURL)
	if err == nil {
		entry.RemoteExists, err = client.ProjectExists(ctx, p.Key)
	}
	if err != nil {
		entry.Error = &SectionError{Kind: driven.KindOf(err), Message: err.Error()}
		return entry
	}

	if !entry.RemoteExists {
		s.logger.Warn("local project missing on remote server", "project_key", p.Key, "path", p.Path, "host", p.HostURL)
	}
	return entry
}

// hostClients resolves each host's admin credential once per run.
type hostClients struct {
	resolver  *CredentialResolver
	connector driven.SonarConnector

	mu    sync.Mutex
	cache map[string]hostClient
}

type hostClient struct {
	client driven.SonarClient
	err    error
}

func newHostClients(resolver *CredentialResolver, connector driven.SonarConnector) *hostClients {
	return &hostClients{resolver: resolver, connector: connector, cache: make(map[string]hostClient)}
}

func (h *hostClients) get(ctx context.Context, host string) (driven.SonarClient, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if hc, ok := h.cache[host]; ok {
		return hc.client, hc.err
	}

	var hc hostClient
	token, err := h.resolver.Resolve(ctx, host, model.CredentialClassAdmin)
	if err != nil {
		hc.err = err
	} else {
		hc.client = h.connector.Connect(host, driven.TokenAuth(token))
	}
	h.cache[host] = hc
	return hc.client, hc.err
}
