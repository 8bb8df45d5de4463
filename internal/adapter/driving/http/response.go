package httphandler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/ericfisherdev/sonarpanel/internal/application"
	"github.com/ericfisherdev/sonarpanel/internal/domain/model"
	"github.com/ericfisherdev/sonarpanel/internal/domain/port/driven"
)

// writeJSON marshals v to JSON and writes it to the response with the given
// status code. If marshaling fails, a 500 error is written instead.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"internal server error"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// writeError writes a JSON error response with the given status code and message.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// errorResponse is the standard error response body.
type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

// statusFor maps a service error to an HTTP status and its error kind.
func statusFor(err error) (int, string) {
	kind := driven.KindOf(err)

	switch {
	case errors.Is(err, driven.ErrProjectNotFound), errors.Is(err, driven.ErrCredentialNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, application.ErrInvalidInput):
		return http.StatusBadRequest, "invalid_input"
	case kind == driven.KindMissingCredential:
		return http.StatusBadRequest, string(kind)
	case errors.Is(err, driven.ErrEncryptionKeyNotSet):
		return http.StatusInternalServerError, "encryption_key_not_set"
	}

	switch kind {
	case driven.KindRemotePrivilegeDenied:
		return http.StatusForbidden, string(kind)
	case driven.KindRemoteRejected:
		return http.StatusBadRequest, string(kind)
	case driven.KindRemoteUnreachable, driven.KindRemoteUnavailableData:
		return http.StatusBadGateway, string(kind)
	case driven.KindLocalStoreConflict:
		return http.StatusConflict, string(kind)
	case driven.KindLocalStoreFailure:
		return http.StatusInternalServerError, string(kind)
	}
	return http.StatusInternalServerError, ""
}

// --- Requests ---

// CreateProjectRequest is the JSON body for the create project endpoint.
type CreateProjectRequest struct {
	Path               string `json:"path"`
	Name               string `json:"name"`
	Key                string `json:"key"`
	Language           string `json:"language"`
	SourcesPath        string `json:"sources_path"`
	TestsPath          string `json:"tests_path"`
	CoverageReportPath string `json:"coverage_report_path"`
	HostURL            string `json:"host_url"`
	Visibility         string `json:"visibility"`
}

// ProjectPathRequest names a project by its local path.
type ProjectPathRequest struct {
	ProjectPath string `json:"project_path"`
}

// IssuesRequest is the JSON body for the all-issues endpoint.
type IssuesRequest struct {
	ProjectPath string         `json:"project_path"`
	Filters     IssueFilterDTO `json:"filters"`
}

// IssueFilterDTO carries issue filters. Dates accept YYYY-MM-DD or RFC 3339.
type IssueFilterDTO struct {
	Severities    []string `json:"severities"`
	Types         []string `json:"types"`
	Statuses      []string `json:"statuses"`
	CreatedAfter  string   `json:"created_after"`
	CreatedBefore string   `json:"created_before"`
}

func (f IssueFilterDTO) toModel() (model.IssueFilter, error) {
	after, err := parseOptionalTime("created_after", f.CreatedAfter)
	if err != nil {
		return model.IssueFilter{}, err
	}
	before, err := parseOptionalTime("created_before", f.CreatedBefore)
	if err != nil {
		return model.IssueFilter{}, err
	}
	return model.IssueFilter{
		Severities:    f.Severities,
		Types:         f.Types,
		Statuses:      f.Statuses,
		CreatedAfter:  after,
		CreatedBefore: before,
	}, nil
}

// AdminTokenRequest is the JSON body for the admin-token endpoint.
type AdminTokenRequest struct {
	HostURL   string `json:"host_url"`
	Username  string `json:"username"`
	Password  string `json:"password"`
	TokenName string `json:"token_name"`
	Note      string `json:"note"`
	ExpiresAt string `json:"expires_at"`
}

func parseOptionalTime(field, s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	for _, layout := range []string{time.DateOnly, time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return &t, nil
		}
	}
	return nil, fmt.Errorf("invalid %s: expected YYYY-MM-DD or RFC 3339", field)
}

// --- Responses ---

// ProjectResponse is the JSON representation of a project record.
type ProjectResponse struct {
	ID                 int64  `json:"id"`
	Path               string `json:"path"`
	Key                string `json:"key"`
	Name               string `json:"name"`
	Language           string `json:"language"`
	SourcesPath        string `json:"sources_path"`
	TestsPath          string `json:"tests_path"`
	CoverageReportPath string `json:"coverage_report_path"`
	HostURL            string `json:"host_url"`
	Visibility         string `json:"visibility"`
	Qualifier          string `json:"qualifier"`
	HasToken           bool   `json:"has_token"`
	CreatedAt          string `json:"created_at"`
	UpdatedAt          string `json:"updated_at"`
}

// WarningResponse describes a degraded step. Token is only set when a
// minted token could not be stored and must be saved by the caller.
type WarningResponse struct {
	Step    string `json:"step"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
	Token   string `json:"token,omitempty"`
	// CredentialID names a stored token not yet attached to the project.
	CredentialID string `json:"credential_id,omitempty"`
}

// CreateProjectResponse is the outcome of a provisioning run.
type CreateProjectResponse struct {
	Project ProjectResponse  `json:"project"`
	State   string           `json:"state"`
	Resumed bool             `json:"resumed"`
	Warning *WarningResponse `json:"warning,omitempty"`
}

// DeleteProjectResponse is the outcome of a deprovisioning run.
type DeleteProjectResponse struct {
	Project       ProjectResponse  `json:"project"`
	RemoteDeleted bool             `json:"remote_deleted"`
	Warning       *WarningResponse `json:"warning,omitempty"`
}

// SectionErrorResponse is a failed section or remote check.
type SectionErrorResponse struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// ProjectInfoResponse is a record with its remote presence.
type ProjectInfoResponse struct {
	Project      ProjectResponse       `json:"project"`
	RemoteExists *bool                 `json:"remote_exists"`
	RemoteError  *SectionErrorResponse `json:"remote_error,omitempty"`
}

// SectionResponse is one independently fetched part of the results view.
type SectionResponse[T any] struct {
	Data        *T                    `json:"data,omitempty"`
	Unavailable string                `json:"unavailable,omitempty"`
	Error       *SectionErrorResponse `json:"error,omitempty"`
}

// IssueResponse is the JSON representation of an issue.
type IssueResponse struct {
	Key       string   `json:"key"`
	Rule      string   `json:"rule"`
	Severity  string   `json:"severity"`
	Component string   `json:"component"`
	Line      int      `json:"line,omitempty"`
	Message   string   `json:"message"`
	Type      string   `json:"type"`
	Status    string   `json:"status"`
	Effort    string   `json:"effort,omitempty"`
	Tags      []string `json:"tags"`
	CreatedAt string   `json:"created_at,omitempty"`
}

// PagingResponse is the remote paging of an issue page.
type PagingResponse struct {
	PageIndex int `json:"page_index"`
	PageSize  int `json:"page_size"`
	Total     int `json:"total"`
}

// IssuePageResponse is the first page of issues in the results view.
type IssuePageResponse struct {
	Issues []IssueResponse `json:"issues"`
	Paging PagingResponse  `json:"paging"`
}

// MeasureResponse is a single metric value.
type MeasureResponse struct {
	Metric string `json:"metric"`
	Value  string `json:"value"`
}

// CoverageResponse is the JSON representation of coverage measures.
type CoverageResponse struct {
	Component string            `json:"component"`
	Measures  []MeasureResponse `json:"measures"`
}

// ConditionResponse is one quality gate condition.
type ConditionResponse struct {
	Status         string `json:"status"`
	MetricKey      string `json:"metric_key"`
	Comparator     string `json:"comparator"`
	ErrorThreshold string `json:"error_threshold"`
	ActualValue    string `json:"actual_value"`
}

// QualityGateResponse is the JSON representation of a quality gate status.
type QualityGateResponse struct {
	Status     string              `json:"status"`
	Conditions []ConditionResponse `json:"conditions"`
}

// ResultsResponse is the aggregated results view of a project.
type ResultsResponse struct {
	Project     ProjectResponse                      `json:"project"`
	Issues      SectionResponse[IssuePageResponse]   `json:"issues"`
	Coverage    SectionResponse[CoverageResponse]    `json:"coverage"`
	QualityGate SectionResponse[QualityGateResponse] `json:"quality_gate"`
}

// IssueCollectionResponse is every page of an issue search.
type IssueCollectionResponse struct {
	Issues    []IssueResponse `json:"issues"`
	Total     int             `json:"total"`
	Pages     int             `json:"pages"`
	Truncated bool            `json:"truncated"`
}

// ScanCommandResponse is a ready-to-run scanner command.
type ScanCommandResponse struct {
	ProjectPath string `json:"project_path"`
	ProjectKey  string `json:"project_key"`
	Command     string `json:"command"`
	HasToken    bool   `json:"has_token"`
}

// CredentialResponse is the JSON representation of a credential. The value
// is always masked.
type CredentialResponse struct {
	ID         string `json:"id"`
	Username   string `json:"username"`
	Name       string `json:"name"`
	Value      string `json:"value"`
	HostURL    string `json:"host_url"`
	Class      string `json:"class"`
	ProjectKey string `json:"project_key,omitempty"`
	Active     bool   `json:"active"`
	CreatedAt  string `json:"created_at,omitempty"`
	ExpiresAt  string `json:"expires_at,omitempty"`
	Note       string `json:"note,omitempty"`
}

// CredentialResultResponse is a credential with an optional warning.
type CredentialResultResponse struct {
	Credential CredentialResponse `json:"credential"`
	Warning    *WarningResponse   `json:"warning,omitempty"`
}

// ReconcileEntryResponse is the remote state of one record.
type ReconcileEntryResponse struct {
	Project      ProjectResponse       `json:"project"`
	RemoteExists bool                  `json:"remote_exists"`
	Error        *SectionErrorResponse `json:"error,omitempty"`
}

// ReconcileResponse is the reconcile report.
type ReconcileResponse struct {
	Entries []ReconcileEntryResponse `json:"entries"`
	Missing int                      `json:"missing"`
	Failed  int                      `json:"failed"`
}

// RemoteHealthResponse reports whether the remote server answers.
type RemoteHealthResponse struct {
	Host      string                `json:"host"`
	Reachable bool                  `json:"reachable"`
	Version   string                `json:"version,omitempty"`
	Status    string                `json:"status,omitempty"`
	Error     *SectionErrorResponse `json:"error,omitempty"`
}

// HealthResponse is the JSON representation of the health check endpoint.
type HealthResponse struct {
	Status string `json:"status"`
	Time   string `json:"time"`
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func toProjectResponse(p model.Project) ProjectResponse {
	return ProjectResponse{
		ID:                 p.ID,
		Path:               p.Path,
		Key:                p.Key,
		Name:               p.Name,
		Language:           p.Language,
		SourcesPath:        p.SourcesPath,
		TestsPath:          p.TestsPath,
		CoverageReportPath: p.CoverageReportPath,
		HostURL:            p.HostURL,
		Visibility:         string(p.Visibility),
		Qualifier:          p.Qualifier,
		HasToken:           p.HasToken(),
		CreatedAt:          formatTime(p.CreatedAt),
		UpdatedAt:          formatTime(p.UpdatedAt),
	}
}

func toWarningResponse(w *application.Warning) *WarningResponse {
	if w == nil {
		return nil
	}
	return &WarningResponse{Step: w.Step, Kind: string(w.Kind), Message: w.Message, Token: w.Token, CredentialID: w.CredentialID}
}

func toSectionErrorResponse(e *application.SectionError) *SectionErrorResponse {
	if e == nil {
		return nil
	}
	return &SectionErrorResponse{Kind: string(e.Kind), Message: e.Message}
}

func toCreateProjectResponse(r application.ProvisionResult) CreateProjectResponse {
	return CreateProjectResponse{
		Project: toProjectResponse(r.Project),
		State:   string(r.State),
		Resumed: r.Resumed,
		Warning: toWarningResponse(r.Warning),
	}
}

func toSection[T, R any](s application.Section[T], convert func(T) R) SectionResponse[R] {
	out := SectionResponse[R]{
		Unavailable: s.Unavailable,
		Error:       toSectionErrorResponse(s.Error),
	}
	if s.Data != nil {
		data := convert(*s.Data)
		out.Data = &data
	}
	return out
}

func toResultsResponse(r application.ProjectResults) ResultsResponse {
	return ResultsResponse{
		Project:     toProjectResponse(r.Project),
		Issues:      toSection(r.Issues, toIssuePageResponse),
		Coverage:    toSection(r.Coverage, toCoverageResponse),
		QualityGate: toSection(r.QualityGate, toQualityGateResponse),
	}
}

func toIssueResponse(is model.Issue) IssueResponse {
	tags := is.Tags
	if tags == nil {
		tags = []string{}
	}
	return IssueResponse{
		Key:       is.Key,
		Rule:      is.Rule,
		Severity:  is.Severity,
		Component: is.Component,
		Line:      is.Line,
		Message:   is.Message,
		Type:      is.Type,
		Status:    is.Status,
		Effort:    is.Effort,
		Tags:      tags,
		CreatedAt: formatTime(is.CreatedAt),
	}
}

func toIssuePageResponse(p model.IssuePage) IssuePageResponse {
	issues := make([]IssueResponse, 0, len(p.Issues))
	for _, is := range p.Issues {
		issues = append(issues, toIssueResponse(is))
	}
	return IssuePageResponse{
		Issues: issues,
		Paging: PagingResponse{PageIndex: p.Paging.PageIndex, PageSize: p.Paging.PageSize, Total: p.Paging.Total},
	}
}

func toCoverageResponse(c model.Coverage) CoverageResponse {
	measures := make([]MeasureResponse, 0, len(c.Measures))
	for _, m := range c.Measures {
		measures = append(measures, MeasureResponse{Metric: m.Metric, Value: m.Value})
	}
	return CoverageResponse{Component: c.ComponentKey, Measures: measures}
}

func toQualityGateResponse(g model.QualityGate) QualityGateResponse {
	conditions := make([]ConditionResponse, 0, len(g.Conditions))
	for _, c := range g.Conditions {
		conditions = append(conditions, ConditionResponse{
			Status:         string(c.Status),
			MetricKey:      c.MetricKey,
			Comparator:     c.Comparator,
			ErrorThreshold: c.ErrorThreshold,
			ActualValue:    c.ActualValue,
		})
	}
	return QualityGateResponse{Status: string(g.Status), Conditions: conditions}
}

func toCredentialResponse(c model.Credential) CredentialResponse {
	resp := CredentialResponse{
		ID:         c.ID,
		Username:   c.Username,
		Name:       c.Name,
		Value:      c.MaskedValue(),
		HostURL:    c.HostURL,
		Class:      string(c.Class),
		ProjectKey: c.ProjectKey,
		Active:     c.Active,
		CreatedAt:  formatTime(c.CreatedAt),
		Note:       c.Note,
	}
	if c.ExpiresAt != nil {
		resp.ExpiresAt = formatTime(*c.ExpiresAt)
	}
	return resp
}

func toCredentialResultResponse(r application.CredentialResult) CredentialResultResponse {
	return CredentialResultResponse{
		Credential: toCredentialResponse(r.Credential),
		Warning:    toWarningResponse(r.Warning),
	}
}

func toReconcileResponse(r application.ReconcileReport) ReconcileResponse {
	entries := make([]ReconcileEntryResponse, 0, len(r.Entries))
	for _, e := range r.Entries {
		entries = append(entries, ReconcileEntryResponse{
			Project:      toProjectResponse(e.Project),
			RemoteExists: e.RemoteExists,
			Error:        toSectionErrorResponse(e.Error),
		})
	}
	return ReconcileResponse{Entries: entries, Missing: r.Missing, Failed: r.Failed}
}
