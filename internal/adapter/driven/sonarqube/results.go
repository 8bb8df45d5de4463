package sonarqube

import (
	"context"
	"strings"
	"time"

	"github.com/ericfisherdev/sonarpanel/internal/domain/model"
	"github.com/ericfisherdev/sonarpanel/internal/domain/port/driven"
)

// CoverageMetrics are the metric keys requested for the coverage section.
var CoverageMetrics = []string{
	"coverage",
	"line_coverage",
	"branch_coverage",
	"lines_to_cover",
	"uncovered_lines",
}

type issueSearchParams struct {
	ComponentKeys string     `url:"componentKeys"`
	Resolved      bool       `url:"resolved"`
	Severities    []string   `url:"severities,comma,omitempty"`
	Types         []string   `url:"types,comma,omitempty"`
	Statuses      []string   `url:"statuses,comma,omitempty"`
	CreatedAfter  *time.Time `url:"createdAfter,omitempty" layout:"2006-01-02"`
	CreatedBefore *time.Time `url:"createdBefore,omitempty" layout:"2006-01-02"`
	Page          int        `url:"p,omitempty"`
	PageSize      int        `url:"ps,omitempty"`
}

type issueJSON struct {
	Key          string   `json:"key"`
	Rule         string   `json:"rule"`
	Severity     string   `json:"severity"`
	Component    string   `json:"component"`
	Line         int      `json:"line"`
	Message      string   `json:"message"`
	Type         string   `json:"type"`
	Status       string   `json:"status"`
	Effort       string   `json:"effort"`
	Tags         []string `json:"tags"`
	CreationDate string   `json:"creationDate"`
	UpdateDate   string   `json:"updateDate"`
}

type issueSearchResponse struct {
	Paging struct {
		PageIndex int `json:"pageIndex"`
		PageSize  int `json:"pageSize"`
		Total     int `json:"total"`
	} `json:"paging"`
	Issues []issueJSON `json:"issues"`
}

// SearchIssues returns one page of unresolved issues for the project.
func (c *Client) SearchIssues(ctx context.Context, key string, filter model.IssueFilter, page, pageSize int) (*model.IssuePage, error) {
	params := issueSearchParams{
		ComponentKeys: key,
		Resolved:      false,
		Severities:    filter.Severities,
		Types:         filter.Types,
		Statuses:      filter.Statuses,
		CreatedAfter:  filter.CreatedAfter,
		CreatedBefore: filter.CreatedBefore,
		Page:          page,
		PageSize:      pageSize,
	}

	var resp issueSearchResponse
	if err := c.get(ctx, "issues/search", params, &resp); err != nil {
		return nil, err
	}

	issues := make([]model.Issue, 0, len(resp.Issues))
	for _, i := range resp.Issues {
		issues = append(issues, model.Issue{
			Key:       i.Key,
			Rule:      i.Rule,
			Severity:  i.Severity,
			Component: i.Component,
			Line:      i.Line,
			Message:   i.Message,
			Type:      i.Type,
			Status:    i.Status,
			Effort:    i.Effort,
			Tags:      i.Tags,
			CreatedAt: parseRemoteTime(i.CreationDate),
			UpdatedAt: parseRemoteTime(i.UpdateDate),
		})
	}

	return &model.IssuePage{
		Issues: issues,
		Paging: model.Paging{
			PageIndex: resp.Paging.PageIndex,
			PageSize:  resp.Paging.PageSize,
			Total:     resp.Paging.Total,
		},
	}, nil
}

type measuresParams struct {
	Component  string `url:"component"`
	MetricKeys string `url:"metricKeys"`
}

type measuresResponse struct {
	Component struct {
		Key      string `json:"key"`
		Name     string `json:"name"`
		Measures []struct {
			Metric string `json:"metric"`
			Value  string `json:"value"`
		} `json:"measures"`
	} `json:"component"`
}

// GetCoverage returns the coverage measures of the project. A project that
// has not been analyzed yet has no measures and yields RemoteUnavailableData.
func (c *Client) GetCoverage(ctx context.Context, key string) (*model.Coverage, error) {
	const op = "measures/component"
	params := measuresParams{Component: key, MetricKeys: strings.Join(CoverageMetrics, ",")}

	var resp measuresResponse
	if err := c.get(ctx, op, params, &resp); err != nil {
		return nil, err
	}
	if len(resp.Component.Measures) == 0 {
		return nil, &driven.RemoteError{Kind: driven.KindRemoteUnavailableData, Op: op, Message: "no measures reported"}
	}

	cov := &model.Coverage{ComponentKey: resp.Component.Key, Name: resp.Component.Name}
	for _, m := range resp.Component.Measures {
		cov.Measures = append(cov.Measures, model.Measure{Metric: m.Metric, Value: m.Value})
	}
	return cov, nil
}

type qualityGateParams struct {
	ProjectKey string `url:"projectKey"`
}

type qualityGateResponse struct {
	ProjectStatus struct {
		Status     string `json:"status"`
		Conditions []struct {
			Status         string `json:"status"`
			MetricKey      string `json:"metricKey"`
			Comparator     string `json:"comparator"`
			ErrorThreshold string `json:"errorThreshold"`
			ActualValue    string `json:"actualValue"`
		} `json:"conditions"`
	} `json:"projectStatus"`
}

// GetQualityGate returns the quality gate status of the project. A gate
// that has not been computed yet yields RemoteUnavailableData.
func (c *Client) GetQualityGate(ctx context.Context, key string) (*model.QualityGate, error) {
	const op = "qualitygates/project_status"

	var resp qualityGateResponse
	if err := c.get(ctx, op, qualityGateParams{ProjectKey: key}, &resp); err != nil {
		return nil, err
	}

	status := model.QualityGateStatus(resp.ProjectStatus.Status)
	if status == "" || status == model.QualityGateNone {
		return nil, &driven.RemoteError{Kind: driven.KindRemoteUnavailableData, Op: op, Message: "quality gate not computed"}
	}

	gate := &model.QualityGate{Status: status}
	for _, cond := range resp.ProjectStatus.Conditions {
		gate.Conditions = append(gate.Conditions, model.QualityGateCondition{
			Status:         model.QualityGateStatus(cond.Status),
			MetricKey:      cond.MetricKey,
			Comparator:     cond.Comparator,
			ErrorThreshold: cond.ErrorThreshold,
			ActualValue:    cond.ActualValue,
		})
	}
	return gate, nil
}
