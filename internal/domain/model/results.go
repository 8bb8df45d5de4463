package model

import "time"

// IssueFilter narrows an issue search. Zero values mean "no filter".
type IssueFilter struct {
	Severities    []string
	Types         []string
	Statuses      []string
	CreatedAfter  *time.Time
	CreatedBefore *time.Time
}

// Issue is a single open issue reported by the remote server.
type Issue struct {
	Key       string
	Rule      string
	Severity  string
	Component string
	Line      int
	Message   string
	Type      string
	Status    string
	Effort    string
	Tags      []string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Paging is the pagination metadata of a remote list response.
type Paging struct {
	PageIndex int
	PageSize  int
	Total     int
}

// IssuePage is one page of issue search results.
type IssuePage struct {
	Issues []Issue
	Paging Paging
}

// Measure is a single metric value.
type Measure struct {
	Metric string
	Value  string
}

// Coverage holds the coverage metrics of a project component.
type Coverage struct {
	ComponentKey string
	Name         string
	Measures     []Measure
}

// Value returns the value of the given metric, or "" if it is absent.
func (c Coverage) Value(metric string) string {
	for _, m := range c.Measures {
		if m.Metric == metric {
			return m.Value
		}
	}
	return ""
}

// QualityGateCondition is one evaluated condition of a quality gate.
type QualityGateCondition struct {
	Status         QualityGateStatus
	MetricKey      string
	Comparator     string
	ErrorThreshold string
	ActualValue    string
}

// QualityGate is the quality gate status of a project.
type QualityGate struct {
	Status     QualityGateStatus
	Conditions []QualityGateCondition
}
