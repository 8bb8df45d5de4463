package application

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/ericfisherdev/sonarpanel/internal/domain/model"
	"github.com/ericfisherdev/sonarpanel/internal/domain/port/driven"
)

// Fallback messages for sections whose data is not available yet.
const (
	IssuesUnavailable      = "no issues data available"
	CoverageUnavailable    = "no coverage data available"
	QualityGateUnavailable = "no quality gate data available"
)

// Default paging for issue searches. The remote server refuses to page past
// 10000 results, which 20 pages of 500 reach.
const (
	DefaultIssuePageSize = 500
	DefaultIssueMaxPages = 20
)

// SectionError describes a failed section of an aggregated response.
type SectionError struct {
	Kind    driven.ErrorKind
	Message string
}

// Section holds one independently fetched part of an aggregated response.
// Exactly one of Data, Unavailable, or Error is set.
type Section[T any] struct {
	Data        *T
	Unavailable string
	Error       *SectionError
}

// ProjectResults is the aggregated analysis view of a project.
type ProjectResults struct {
	Project     model.Project
	Issues      Section[model.IssuePage]
	Coverage    Section[model.Coverage]
	QualityGate Section[model.QualityGate]
}

// IssueCollection is the result of fetching every page of an issue search.
type IssueCollection struct {
	Issues []model.Issue
	Total  int
	Pages  int
	// Truncated is true when the page limit stopped the walk early.
	Truncated bool
}

// ResultsConfig controls issue paging.
type ResultsConfig struct {
	PageSize int
	MaxPages int
}

// ResultsService reads analysis results for recorded projects.
type ResultsService struct {
	projects  driven.ProjectStore
	resolver  *CredentialResolver
	connector driven.SonarConnector
	cfg       ResultsConfig
	logger    *slog.Logger
}

// NewResultsService creates a ResultsService. Non-positive paging values
// fall back to the defaults.
func NewResultsService(
	projects driven.ProjectStore,
	resolver *CredentialResolver,
	connector driven.SonarConnector,
	cfg ResultsConfig,
	logger *slog.Logger,
) *ResultsService {
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultIssuePageSize
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = DefaultIssueMaxPages
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ResultsService{
		projects:  projects,
		resolver:  resolver,
		connector: connector,
		cfg:       cfg,
		logger:    logger,
	}
}

// connect loads the record at path and returns a client authorized with the
// host's admin credential.
func (s *ResultsService) connect(ctx context.Context, path string) (*model.Project, driven.SonarClient, error) {
	if path == "" {
		return nil, nil, invalidf("path is required")
	}

	record, err := s.projects.FindByPath(ctx, path)
	if err != nil {
		return nil, nil, storeError("find project", err)
	}
	if record == nil {
		return nil, nil, fmt.Errorf("project %s: %w", path, driven.ErrProjectNotFound)
	}

	token, err := s.resolver.Resolve(ctx, record.HostURL, model.CredentialClassAdmin)
	if err != nil {
		return nil, nil, err
	}

	return record, s.connector.Connect(record.HostURL, driven.TokenAuth(token)), nil
}

// Aggregate fetches issues, coverage, and the quality gate concurrently.
// Once the record and credential are resolved it never fails: each remote
// read is reported in its own section.
func (s *ResultsService) Aggregate(ctx context.Context, path string) (*ProjectResults, error) {
	record, client, err := s.connect(ctx, path)
	if err != nil {
		return nil, err
	}

	results := &ProjectResults{Project: *record}
	key := record.Key

	var g errgroup.Group
	g.Go(func() error {
		page, err := client.SearchIssues(ctx, key, model.IssueFilter{}, 1, s.cfg.PageSize)
		results.Issues = toSection(page, err, IssuesUnavailable)
		return nil
	})
	g.Go(func() error {
		cov, err := client.GetCoverage(ctx, key)
		results.Coverage = toSection(cov, err, CoverageUnavailable)
		return nil
	})
	g.Go(func() error {
		gate, err := client.GetQualityGate(ctx, key)
		results.QualityGate = toSection(gate, err, QualityGateUnavailable)
		return nil
	})
	_ = g.Wait()

	s.logSection(key, "issues", results.Issues.Error)
	s.logSection(key, "coverage", results.Coverage.Error)
	s.logSection(key, "quality_gate", results.QualityGate.Error)

	return results, nil
}

func (s *ResultsService) logSection(key, section string, e *SectionError) {
	if e == nil {
		return
	}
	s.logger.Warn("results section failed", "project_key", key, "section", section, "kind", e.Kind, "error", e.Message)
}

// toSection turns a read result into a Section. Data that is not available
// yet becomes the fallback message; any other failure becomes an error.
func toSection[T any](data *T, err error, fallback string) Section[T] {
	switch {
	case err == nil && data != nil:
		return Section[T]{Data: data}
	case err == nil, driven.KindOf(err) == driven.KindRemoteUnavailableData:
		return Section[T]{Unavailable: fallback}
	default:
		return Section[T]{Error: &SectionError{Kind: driven.KindOf(err), Message: err.Error()}}
	}
}

// FetchAllIssues walks every page of the issue search for the record at path.
func (s *ResultsService) FetchAllIssues(ctx context.Context, path string, filter model.IssueFilter) (*IssueCollection, error) {
	record, client, err := s.connect(ctx, path)
	if err != nil {
		return nil, err
	}

	collection, err := CollectIssues(ctx, client, record.Key, filter, s.cfg.PageSize, s.cfg.MaxPages)
	if err != nil {
		return nil, fmt.Errorf("fetch issues for %s: %w", record.Key, err)
	}
	if collection.Truncated {
		s.logger.Warn("issue paging stopped at page limit",
			"project_key", record.Key,
			"pages", collection.Pages,
			"total", collection.Total,
		)
	}
	return collection, nil
}

// CollectIssues requests pages 1, 2, ... of size pageSize and stops after an
// empty page, after page ceil(total/pageSize), or after maxPages requests,
// whichever comes first. The page count is derived from the requested page
// size, not the one the server reports.
func CollectIssues(ctx context.Context, client driven.SonarClient, key string, filter model.IssueFilter, pageSize, maxPages int) (*IssueCollection, error) {
	if pageSize <= 0 {
		return nil, invalidf("page size must be positive")
	}
	if maxPages <= 0 {
		return nil, invalidf("max pages must be positive")
	}

	collection := &IssueCollection{Issues: []model.Issue{}}
	for page := 1; ; page++ {
		if page > maxPages {
			collection.Truncated = true
			return collection, nil
		}

		result, err := client.SearchIssues(ctx, key, filter, page, pageSize)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", page, err)
		}
		collection.Pages = page
		collection.Total = result.Paging.Total
		collection.Issues = append(collection.Issues, result.Issues...)

		lastPage := (result.Paging.Total + pageSize - 1) / pageSize
		if len(result.Issues) == 0 || page >= lastPage {
			return collection, nil
		}
	}
}
