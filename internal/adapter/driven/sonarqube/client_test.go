package sonarqube_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/sonarpanel/internal/adapter/driven/sonarqube"
	"github.com/ericfisherdev/sonarpanel/internal/domain/model"
	"github.com/ericfisherdev/sonarpanel/internal/domain/port/driven"
)

// newTestClient creates a Client backed by the given httptest handler.
func newTestClient(t *testing.T, handler http.Handler) (*sonarqube.Client, *httptest.Server) {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client := sonarqube.NewClientWithHTTPClient(server.Client(), server.URL+"/", driven.TokenAuth("squ_test"), nil)
	return client, server
}

func writeJSONBody(t *testing.T, w http.ResponseWriter, status int, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	require.NoError(t, json.NewEncoder(w).Encode(v))
}

func errorsEnvelope(msg string) map[string]any {
	return map[string]any{"errors": []map[string]string{{"msg": msg}}}
}

func requireKind(t *testing.T, err error, kind driven.ErrorKind) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, kind, driven.KindOf(err), "error: %v", err)
}

func TestCreateProject_Success(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/projects/create", r.URL.Path)

		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "squ_test", user)
		assert.Empty(t, pass)

		require.NoError(t, r.ParseForm())
		assert.Equal(t, "Billing", r.PostForm.Get("name"))
		assert.Equal(t, "billing", r.PostForm.Get("project"))
		assert.Equal(t, "private", r.PostForm.Get("visibility"))

		writeJSONBody(t, w, http.StatusOK, map[string]any{
			"project": map[string]string{"key": "billing", "name": "Billing", "qualifier": "TRK", "visibility": "private"},
		})
	}))

	rp, err := client.CreateProject(context.Background(), "Billing", "billing", model.VisibilityPrivate)
	require.NoError(t, err)
	assert.Equal(t, "billing", rp.Key)
	assert.Equal(t, "TRK", rp.Qualifier)
	assert.Equal(t, model.VisibilityPrivate, rp.Visibility)
}

func TestCreateProject_OmitsEmptyVisibility(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		_, present := r.PostForm["visibility"]
		assert.False(t, present)
		writeJSONBody(t, w, http.StatusOK, map[string]any{"project": map[string]string{}})
	}))

	rp, err := client.CreateProject(context.Background(), "Billing", "billing", "")
	require.NoError(t, err)
	assert.Equal(t, "billing", rp.Key)
	assert.Equal(t, "Billing", rp.Name)
}

func TestClient_ErrorClassification(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    any
		want    driven.ErrorKind
		message string
	}{
		{"validation", http.StatusBadRequest, errorsEnvelope("Could not create Project, key already exists: billing"), driven.KindRemoteRejected, "key already exists"},
		{"not found", http.StatusNotFound, errorsEnvelope("Project 'x' not found"), driven.KindRemoteRejected, "not found"},
		{"unauthorized status", http.StatusUnauthorized, nil, driven.KindRemotePrivilegeDenied, "Unauthorized"},
		{"forbidden status", http.StatusForbidden, errorsEnvelope("Insufficient privileges"), driven.KindRemotePrivilegeDenied, "Insufficient privileges"},
		{"privilege text on 400", http.StatusBadRequest, errorsEnvelope("Insufficient privileges"), driven.KindRemotePrivilegeDenied, "Insufficient"},
		{"not found key with marker", http.StatusNotFound, errorsEnvelope("Project 'privilege-audit' not found"), driven.KindRemoteRejected, "privilege-audit"},
		{"quoted key with marker on 400", http.StatusBadRequest, errorsEnvelope("Could not create Project with key: 'unauthorized-log'. A similar key already exists"), driven.KindRemoteRejected, "similar key"},
		{"server error", http.StatusInternalServerError, errorsEnvelope("boom"), driven.KindRemoteUnreachable, "boom"},
		{"gateway", http.StatusBadGateway, nil, driven.KindRemoteUnreachable, "Bad Gateway"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				if tt.body == nil {
					w.WriteHeader(tt.status)
					return
				}
				writeJSONBody(t, w, tt.status, tt.body)
			}))

			_, err := client.CreateProject(context.Background(), "Billing", "billing", "")
			requireKind(t, err, tt.want)

			var re *driven.RemoteError
			require.ErrorAs(t, err, &re)
			assert.Equal(t, tt.status, re.StatusCode)
			assert.Contains(t, re.Message, tt.message)
			assert.Equal(t, "projects/create", re.Op)
		})
	}
}

func TestClient_Unreachable(t *testing.T) {
	client, server := newTestClient(t, http.NotFoundHandler())
	server.Close()

	err := client.DeleteProject(context.Background(), "billing")
	requireKind(t, err, driven.KindRemoteUnreachable)
}

func TestClient_ContextCanceled(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := client.DeleteProject(ctx, "billing")
	requireKind(t, err, driven.KindRemoteUnreachable)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestGenerateToken(t *testing.T) {
	expires := time.Date(2030, 6, 1, 0, 0, 0, 0, time.UTC)

	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/user_tokens/generate", r.URL.Path)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "billing-token", r.PostForm.Get("name"))
		assert.Equal(t, "PROJECT_ANALYSIS_TOKEN", r.PostForm.Get("type"))
		assert.Equal(t, "billing", r.PostForm.Get("projectKey"))
		assert.Equal(t, "2030-06-01", r.PostForm.Get("expirationDate"))

		writeJSONBody(t, w, http.StatusOK, map[string]string{
			"login":          "admin",
			"name":           "billing-token",
			"token":          "sqp_secret",
			"createdAt":      "2024-03-01T10:00:00+0000",
			"type":           "PROJECT_ANALYSIS_TOKEN",
			"projectKey":     "billing",
			"expirationDate": "2030-06-01T00:00:00+0000",
		})
	}))

	tok, err := client.GenerateToken(context.Background(), model.TokenRequest{
		Name:       "billing-token",
		Class:      model.CredentialClassProjectAnalysis,
		ProjectKey: "billing",
		ExpiresAt:  &expires,
	})
	require.NoError(t, err)
	assert.Equal(t, "sqp_secret", tok.Token)
	assert.Equal(t, "admin", tok.Login)
	assert.Equal(t, model.CredentialClassProjectAnalysis, tok.Class)
	assert.Equal(t, time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC), tok.CreatedAt)
	require.NotNil(t, tok.ExpiresAt)
	assert.True(t, expires.Equal(*tok.ExpiresAt))
}

func TestGenerateToken_UndecodableBodyIsRejected(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("<html>proxy</html>"))
	}))

	_, err := client.GenerateToken(context.Background(), model.TokenRequest{Name: "x"})
	requireKind(t, err, driven.KindRemoteRejected)
}

func TestRevokeAndDelete(t *testing.T) {
	var paths []string
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		paths = append(paths, r.URL.Path+"?"+r.PostForm.Encode())
		w.WriteHeader(http.StatusNoContent)
	}))

	require.NoError(t, client.RevokeToken(context.Background(), "billing-token"))
	require.NoError(t, client.DeleteProject(context.Background(), "billing"))

	assert.Equal(t, []string{
		"/api/user_tokens/revoke?name=billing-token",
		"/api/projects/delete?project=billing",
	}, paths)
}

func TestSearchIssues(t *testing.T) {
	after := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/issues/search", r.URL.Path)

		q := r.URL.Query()
		assert.Equal(t, "billing", q.Get("componentKeys"))
		assert.Equal(t, "false", q.Get("resolved"))
		assert.Equal(t, "MAJOR,CRITICAL", q.Get("severities"))
		assert.Equal(t, "2024-01-02", q.Get("createdAfter"))
		assert.Empty(t, q.Get("createdBefore"))
		assert.Equal(t, "2", q.Get("p"))
		assert.Equal(t, "500", q.Get("ps"))

		writeJSONBody(t, w, http.StatusOK, map[string]any{
			"paging": map[string]int{"pageIndex": 2, "pageSize": 500, "total": 501},
			"issues": []map[string]any{{
				"key":          "AX1",
				"rule":         "go:S1186",
				"severity":     "MAJOR",
				"component":    "billing:main.go",
				"line":         12,
				"message":      "Add a nested comment",
				"type":         "CODE_SMELL",
				"status":       "OPEN",
				"creationDate": "2024-02-03T04:05:06+0100",
			}},
		})
	}))

	page, err := client.SearchIssues(context.Background(), "billing", model.IssueFilter{
		Severities:   []string{"MAJOR", "CRITICAL"},
		CreatedAfter: &after,
	}, 2, 500)
	require.NoError(t, err)
	assert.Equal(t, model.Paging{PageIndex: 2, PageSize: 500, Total: 501}, page.Paging)
	require.Len(t, page.Issues, 1)
	assert.Equal(t, "go:S1186", page.Issues[0].Rule)
	assert.Equal(t, 12, page.Issues[0].Line)
	assert.Equal(t, time.Date(2024, 2, 3, 3, 5, 6, 0, time.UTC), page.Issues[0].CreatedAt)
}

func TestGetCoverage(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/measures/component", r.URL.Path)
		assert.Equal(t, "billing", r.URL.Query().Get("component"))
		assert.Contains(t, r.URL.Query().Get("metricKeys"), "line_coverage")

		writeJSONBody(t, w, http.StatusOK, map[string]any{
			"component": map[string]any{
				"key":  "billing",
				"name": "Billing",
				"measures": []map[string]string{
					{"metric": "coverage", "value": "81.5"},
					{"metric": "uncovered_lines", "value": "42"},
				},
			},
		})
	}))

	cov, err := client.GetCoverage(context.Background(), "billing")
	require.NoError(t, err)
	assert.Equal(t, "81.5", cov.Value("coverage"))
	assert.Equal(t, "42", cov.Value("uncovered_lines"))
	assert.Empty(t, cov.Value("branch_coverage"))
}

func TestGetCoverage_Unavailable(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"empty body", ""},
		{"undecodable", "not json"},
		{"no measures", `{"component":{"key":"billing","measures":[]}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(tt.body))
			}))

			_, err := client.GetCoverage(context.Background(), "billing")
			requireKind(t, err, driven.KindRemoteUnavailableData)
		})
	}
}

func TestGetQualityGate(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "billing", r.URL.Query().Get("projectKey"))
		writeJSONBody(t, w, http.StatusOK, map[string]any{
			"projectStatus": map[string]any{
				"status": "ERROR",
				"conditions": []map[string]string{{
					"status":         "ERROR",
					"metricKey":      "new_coverage",
					"comparator":     "LT",
					"errorThreshold": "80",
					"actualValue":    "12.5",
				}},
			},
		})
	}))

	gate, err := client.GetQualityGate(context.Background(), "billing")
	require.NoError(t, err)
	assert.Equal(t, model.QualityGateError, gate.Status)
	require.Len(t, gate.Conditions, 1)
	assert.Equal(t, "new_coverage", gate.Conditions[0].MetricKey)
}

func TestGetQualityGate_NotComputed(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSONBody(t, w, http.StatusOK, map[string]any{"projectStatus": map[string]string{"status": "NONE"}})
	}))

	_, err := client.GetQualityGate(context.Background(), "billing")
	requireKind(t, err, driven.KindRemoteUnavailableData)
}

func TestProjectExists(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/projects/search", r.URL.Path)
		if r.URL.Query().Get("projects") == "billing" {
			writeJSONBody(t, w, http.StatusOK, map[string]any{"components": []map[string]string{{"key": "billing"}}})
			return
		}
		writeJSONBody(t, w, http.StatusOK, map[string]any{"components": []any{}})
	}))

	exists, err := client.ProjectExists(context.Background(), "billing")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = client.ProjectExists(context.Background(), "ghost")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestServerStatus(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/system/status", r.URL.Path)
		assert.Empty(t, r.URL.RawQuery)
		writeJSONBody(t, w, http.StatusOK, map[string]string{"id": "abc", "version": "10.4.1", "status": "UP"})
	}))

	status, err := client.ServerStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "10.4.1", status.Version)
	assert.Equal(t, "UP", status.Status)
}
