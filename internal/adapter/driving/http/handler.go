package httphandler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/ericfisherdev/sonarpanel/internal/application"
	"github.com/ericfisherdev/sonarpanel/internal/domain/model"
	"github.com/ericfisherdev/sonarpanel/internal/domain/port/driven"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 1 << 20

// Services groups the application services the REST API drives.
type Services struct {
	Provisioning   *application.ProvisioningService
	Deprovisioning *application.DeprovisioningService
	Results        *application.ResultsService
	Credentials    *application.CredentialService
	Commands       *application.CommandService
	Projects       *application.ProjectService
	Health         *application.HealthService
	Reconcile      *application.ReconcileService
}

// Handler is the HTTP driving adapter that serves the REST API.
type Handler struct {
	svc    Services
	logger *slog.Logger
}

// NewHandler creates a Handler with all required dependencies.
func NewHandler(svc Services, logger *slog.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// RouterConfig holds settings for route-specific middleware.
type RouterConfig struct {
	// AdminTokenRate is the number of admin-token requests allowed per
	// minute per client address. Zero disables the limit.
	AdminTokenRate int
}

// NewServeMux creates an http.Handler with all routes registered and wrapped
// with logging and recovery middleware.
func NewServeMux(h *Handler, cfg RouterConfig, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/v1/projects", h.ListProjects)
	mux.HandleFunc("POST /api/v1/projects", h.CreateProject)
	mux.HandleFunc("DELETE /api/v1/projects", h.DeleteProject)
	mux.HandleFunc("GET /api/v1/projects/info", h.ProjectInfo)
	mux.HandleFunc("POST /api/v1/projects/reconcile", h.Reconcile)
	mux.HandleFunc("POST /api/v1/results", h.Results)
	mux.HandleFunc("POST /api/v1/results/issues", h.AllIssues)
	mux.HandleFunc("POST /api/v1/generate-command", h.GenerateCommand)
	mux.HandleFunc("GET /api/v1/credentials", h.ListCredentials)
	mux.HandleFunc("POST /api/v1/credentials/{id}/revoke", h.RevokeCredential)
	mux.HandleFunc("DELETE /api/v1/credentials/{id}", h.DeleteCredential)
	mux.HandleFunc("GET /api/v1/remote/health", h.RemoteHealth)
	mux.HandleFunc("GET /api/v1/health", h.Health)

	var adminTokens http.Handler = http.HandlerFunc(h.CreateAdminToken)
	if cfg.AdminTokenRate > 0 {
		adminTokens = rateLimitMiddleware(logger, RateLimit{Requests: cfg.AdminTokenRate, Window: time.Minute}, adminTokens)
	}
	mux.Handle("POST /api/v1/admin-tokens", adminTokens)

	// Recovery innermost so panics are caught before logging.
	wrapped := recoveryMiddleware(logger, mux)
	wrapped = loggingMiddleware(logger, wrapped)

	return wrapped
}

// CreateProject runs the provisioning saga. Partial outcomes are still 201
// and carry a warning.
func (h *Handler) CreateProject(w http.ResponseWriter, r *http.Request) {
	var req CreateProjectRequest
	if !decodeBody(w, r, &req) {
		return
	}

	result, err := h.svc.Provisioning.CreateProject(r.Context(), application.CreateProjectRequest{
		Path:               req.Path,
		Name:               req.Name,
		Key:                req.Key,
		Language:           req.Language,
		SourcesPath:        req.SourcesPath,
		TestsPath:          req.TestsPath,
		CoverageReportPath: req.CoverageReportPath,
		HostURL:            req.HostURL,
		Visibility:         model.Visibility(req.Visibility),
	})
	if err != nil {
		h.writeServiceError(w, "create project failed", err)
		return
	}

	status := http.StatusCreated
	if result.Resumed && result.Warning == nil {
		status = http.StatusOK
	}
	writeJSON(w, status, toCreateProjectResponse(*result))
}

// ListProjects returns all local project records.
func (h *Handler) ListProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := h.svc.Projects.List(r.Context())
	if err != nil {
		h.writeServiceError(w, "list projects failed", err)
		return
	}

	resp := make([]ProjectResponse, 0, len(projects))
	for _, p := range projects {
		resp = append(resp, toProjectResponse(p))
	}
	writeJSON(w, http.StatusOK, resp)
}

// ProjectInfo returns one record and whether the remote server still has it.
func (h *Handler) ProjectInfo(w http.ResponseWriter, r *http.Request) {
	info, err := h.svc.Projects.Info(r.Context(), r.URL.Query().Get("path"))
	if err != nil {
		h.writeServiceError(w, "project info failed", err)
		return
	}

	writeJSON(w, http.StatusOK, ProjectInfoResponse{
		Project:      toProjectResponse(info.Project),
		RemoteExists: info.RemoteExists,
		RemoteError:  toSectionErrorResponse(info.RemoteError),
	})
}

// DeleteProject runs the deprovisioning saga for ?path=.
func (h *Handler) DeleteProject(w http.ResponseWriter, r *http.Request) {
	result, err := h.svc.Deprovisioning.DeleteProject(r.Context(), r.URL.Query().Get("path"))
	if err != nil {
		h.writeServiceError(w, "delete project failed", err)
		return
	}

	writeJSON(w, http.StatusOK, DeleteProjectResponse{
		Project:       toProjectResponse(result.Project),
		RemoteDeleted: result.RemoteDeleted,
		Warning:       toWarningResponse(result.Warning),
	})
}

// Reconcile reports local records whose remote project is missing.
func (h *Handler) Reconcile(w http.ResponseWriter, r *http.Request) {
	report, err := h.svc.Reconcile.Report(r.Context())
	if err != nil {
		h.writeServiceError(w, "reconcile failed", err)
		return
	}
	writeJSON(w, http.StatusOK, toReconcileResponse(*report))
}

// Results returns issues, coverage, and the quality gate of a project.
func (h *Handler) Results(w http.ResponseWriter, r *http.Request) {
	var req ProjectPathRequest
	if !decodeBody(w, r, &req) {
		return
	}

	results, err := h.svc.Results.Aggregate(r.Context(), req.ProjectPath)
	if err != nil {
		h.writeServiceError(w, "results failed", err)
		return
	}
	writeJSON(w, http.StatusOK, toResultsResponse(*results))
}

// AllIssues returns every open issue matching the filters.
func (h *Handler) AllIssues(w http.ResponseWriter, r *http.Request) {
	var req IssuesRequest
	if !decodeBody(w, r, &req) {
		return
	}

	filter, err := req.Filters.toModel()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	collection, err := h.svc.Results.FetchAllIssues(r.Context(), req.ProjectPath, filter)
	if err != nil {
		h.writeServiceError(w, "fetch issues failed", err)
		return
	}

	issues := make([]IssueResponse, 0, len(collection.Issues))
	for _, is := range collection.Issues {
		issues = append(issues, toIssueResponse(is))
	}
	writeJSON(w, http.StatusOK, IssueCollectionResponse{
		Issues:    issues,
		Total:     collection.Total,
		Pages:     collection.Pages,
		Truncated: collection.Truncated,
	})
}

// GenerateCommand returns the scanner command for a project.
func (h *Handler) GenerateCommand(w http.ResponseWriter, r *http.Request) {
	var req ProjectPathRequest
	if !decodeBody(w, r, &req) {
		return
	}

	cmd, err := h.svc.Commands.Generate(r.Context(), req.ProjectPath)
	if err != nil {
		h.writeServiceError(w, "generate command failed", err)
		return
	}

	writeJSON(w, http.StatusOK, ScanCommandResponse{
		ProjectPath: cmd.Project.Path,
		ProjectKey:  cmd.Project.Key,
		Command:     cmd.Command,
		HasToken:    cmd.HasToken,
	})
}

// CreateAdminToken mints and stores an admin token from a username and password.
func (h *Handler) CreateAdminToken(w http.ResponseWriter, r *http.Request) {
	var req AdminTokenRequest
	if !decodeBody(w, r, &req) {
		return
	}

	expiresAt, err := parseOptionalTime("expires_at", req.ExpiresAt)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.svc.Credentials.CreateAdminToken(r.Context(), application.AdminTokenRequest{
		HostURL:   req.HostURL,
		Username:  req.Username,
		Password:  req.Password,
		TokenName: req.TokenName,
		Note:      req.Note,
		ExpiresAt: expiresAt,
	})
	if err != nil {
		h.writeServiceError(w, "create admin token failed", err)
		return
	}

	writeJSON(w, http.StatusCreated, toCredentialResultResponse(*result))
}

// ListCredentials returns stored credentials with masked values, optionally
// filtered by the project_key query parameter.
func (h *Handler) ListCredentials(w http.ResponseWriter, r *http.Request) {
	creds, err := h.svc.Credentials.List(r.Context(), r.URL.Query().Get("project_key"))
	if err != nil {
		h.writeServiceError(w, "list credentials failed", err)
		return
	}

	resp := make([]CredentialResponse, 0, len(creds))
	for _, c := range creds {
		resp = append(resp, toCredentialResponse(c))
	}
	writeJSON(w, http.StatusOK, resp)
}

// RevokeCredential revokes a token remotely and deactivates it locally.
func (h *Handler) RevokeCredential(w http.ResponseWriter, r *http.Request) {
	result, err := h.svc.Credentials.Revoke(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeServiceError(w, "revoke credential failed", err)
		return
	}
	writeJSON(w, http.StatusOK, toCredentialResultResponse(*result))
}

// DeleteCredential removes a credential record.
func (h *Handler) DeleteCredential(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Credentials.Delete(r.Context(), r.PathValue("id")); err != nil {
		h.writeServiceError(w, "delete credential failed", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RemoteHealth reports whether the remote server answers. ?host= overrides
// the configured default host.
func (h *Handler) RemoteHealth(w http.ResponseWriter, r *http.Request) {
	health := h.svc.Health.Remote(r.Context(), r.URL.Query().Get("host"))

	status := http.StatusOK
	if !health.Reachable {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, RemoteHealthResponse{
		Host:      health.Host,
		Reachable: health.Reachable,
		Version:   health.Version,
		Status:    health.Status,
		Error:     toSectionErrorResponse(health.Error),
	})
}

// Health returns a simple health check response.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status, code := "ok", http.StatusOK
	if err := h.svc.Health.Local(r.Context()); err != nil {
		h.logger.Error("local health check failed", "error", err)
		status, code = "degraded", http.StatusServiceUnavailable
	}

	writeJSON(w, code, HealthResponse{
		Status: status,
		Time:   time.Now().UTC().Format(time.RFC3339),
	})
}

// decodeBody decodes a JSON request body into v, writing a 400 on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// writeServiceError maps a service error to a status code and writes it.
// Server-side failures are logged; their details stay out of the response.
func (h *Handler) writeServiceError(w http.ResponseWriter, msg string, err error) {
	status, kind := statusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.Error(msg, "error", err)
		message := "internal server error"
		if errors.Is(err, driven.ErrEncryptionKeyNotSet) {
			message = driven.ErrEncryptionKeyNotSet.Error()
		}
		writeJSON(w, status, errorResponse{Error: message, Kind: kind})
		return
	}

	h.logger.Warn(msg, "status", status, "error", err)
	writeJSON(w, status, errorResponse{Error: err.Error(), Kind: kind})
}
