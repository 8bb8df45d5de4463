package application_test

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/sonarpanel/internal/application"
	"github.com/ericfisherdev/sonarpanel/internal/domain/model"
	"github.com/ericfisherdev/sonarpanel/internal/domain/port/driven"
)

func createRequest() application.CreateProjectRequest {
	return application.CreateProjectRequest{
		Path:        "/src/billing",
		Name:        "Billing",
		Key:         "billing",
		Language:    "go",
		SourcesPath: ".",
		Visibility:  model.VisibilityPrivate,
	}
}

func TestCreateProject_AllStepsSucceed(t *testing.T) {
	f := newFixture(t)
	f.client.createProject = func(name, _ string, vis model.Visibility) (*model.RemoteProject, error) {
		return &model.RemoteProject{Key: "acme_billing", Name: name, Qualifier: "TRK", Visibility: vis}, nil
	}

	result, err := f.provisioning().CreateProject(context.Background(), createRequest())
	require.NoError(t, err)

	assert.Equal(t, application.ProvisionDone, result.State)
	assert.Nil(t, result.Warning)
	assert.False(t, result.Resumed)
	assert.Equal(t, "acme_billing", result.Project.Key)
	assert.NotEmpty(t, result.Project.CredentialID)
	assert.Equal(t, testHost, result.Project.HostURL)

	stored, err := f.projects.FindByPath(context.Background(), "/src/billing")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, result.Project.CredentialID, stored.CredentialID)

	tokens := f.creds.byClass(model.CredentialClassProjectAnalysis)
	require.Len(t, tokens, 1)
	assert.Equal(t, "acme_billing-token", tokens[0].Name)
	assert.Equal(t, "acme_billing", tokens[0].ProjectKey)
	assert.Equal(t, "Token for project Billing", tokens[0].Note)
	assert.True(t, tokens[0].Active)

	require.NotEmpty(t, f.connector.auths)
	assert.Equal(t, driven.TokenAuth("squ_admin"), f.connector.auths[0])
}

func TestCreateProject_RemoteCreateFails(t *testing.T) {
	f := newFixture(t)
	f.client.createProject = func(_, _ string, _ model.Visibility) (*model.RemoteProject, error) {
		return nil, remoteErr(driven.KindRemoteRejected, http.StatusBadRequest, "key already exists")
	}

	result, err := f.provisioning().CreateProject(context.Background(), createRequest())
	require.Error(t, err)
	assert.Nil(t, result)
	assert.Equal(t, driven.KindRemoteRejected, driven.KindOf(err))
	assert.Equal(t, 0, f.projects.insertCalls)
	assert.Equal(t, 0, f.client.callCount("generate_token"))
}

func TestCreateProject_TokenGenerationFails(t *testing.T) {
	f := newFixture(t)
	f.client.generateToken = func(_ model.TokenRequest) (*model.GeneratedToken, error) {
		return nil, remoteErr(driven.KindRemoteUnreachable, http.StatusServiceUnavailable, "maintenance")
	}

	result, err := f.provisioning().CreateProject(context.Background(), createRequest())
	require.NoError(t, err)

	assert.Equal(t, application.ProvisionTokenWarning, result.State)
	require.NotNil(t, result.Warning)
	assert.Equal(t, application.StepGenerateToken, result.Warning.Step)
	assert.Equal(t, driven.KindRemoteUnreachable, result.Warning.Kind)
	assert.Empty(t, result.Warning.Token)

	stored, err := f.projects.FindByPath(context.Background(), "/src/billing")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Empty(t, stored.CredentialID)
}

func TestCreateProject_TokenSaveFails(t *testing.T) {
	f := newFixture(t)
	f.creds.insertErr = errors.New("database is locked")

	result, err := f.provisioning().CreateProject(context.Background(), createRequest())
	require.NoError(t, err)

	assert.Equal(t, application.ProvisionSaveWarning, result.State)
	require.NotNil(t, result.Warning)
	assert.Equal(t, application.StepSaveToken, result.Warning.Step)
	assert.Equal(t, driven.KindLocalStoreFailure, result.Warning.Kind)
	assert.Equal(t, "sqp_billing-token", result.Warning.Token)

	stored, err := f.projects.FindByPath(context.Background(), "/src/billing")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Empty(t, stored.CredentialID)
}

func TestCreateProject_AttachFails(t *testing.T) {
	f := newFixture(t)
	f.projects.updateErr = errors.New("database is locked")

	result, err := f.provisioning().CreateProject(context.Background(), createRequest())
	require.NoError(t, err)
	assert.Equal(t, application.ProvisionSaveWarning, result.State)
	require.NotNil(t, result.Warning)
	assert.Equal(t, application.StepAttachToken, result.Warning.Step)
	assert.Equal(t, driven.KindLocalStoreFailure, result.Warning.Kind)
	assert.Empty(t, result.Warning.Token)

	tokens := f.creds.byClass(model.CredentialClassProjectAnalysis)
	require.Len(t, tokens, 1)
	assert.Equal(t, tokens[0].ID, result.Warning.CredentialID)
	assert.Contains(t, result.Warning.Message, tokens[0].ID)
	assert.NotContains(t, result.Warning.Message, "sqp_")
}

func TestCreateProject_RetryAfterAttachFailureReusesStoredToken(t *testing.T) {
	f := newFixture(t)
	f.projects.updateErr = errors.New("database is locked")

	first, err := f.provisioning().CreateProject(context.Background(), createRequest())
	require.NoError(t, err)
	require.Equal(t, application.ProvisionSaveWarning, first.State)

	f.projects.updateErr = nil
	second, err := f.provisioning().CreateProject(context.Background(), createRequest())
	require.NoError(t, err)

	assert.Equal(t, application.ProvisionDone, second.State)
	assert.True(t, second.Resumed)
	assert.Nil(t, second.Warning)
	assert.Equal(t, first.Warning.CredentialID, second.Project.CredentialID)
	assert.Equal(t, 1, f.client.callCount("create_project"))
	assert.Equal(t, 1, f.client.callCount("generate_token"))
	assert.Len(t, f.creds.byClass(model.CredentialClassProjectAnalysis), 1)

	stored, err := f.projects.FindByPath(context.Background(), "/src/billing")
	require.NoError(t, err)
	assert.Equal(t, first.Warning.CredentialID, stored.CredentialID)
}

func TestCreateProject_RetryAfterSaveFailureReplacesRemoteToken(t *testing.T) {
	f := newFixture(t)
	minted := map[string]bool{}
	f.client.generateToken = func(req model.TokenRequest) (*model.GeneratedToken, error) {
		if minted[req.Name] {
			return nil, remoteErr(driven.KindRemoteRejected, http.StatusBadRequest,
				"A user token for login 'admin' and name '"+req.Name+"' already exists")
		}
		minted[req.Name] = true
		return &model.GeneratedToken{Name: req.Name, Token: "sqp_" + req.Name}, nil
	}
	f.client.revokeToken = func(name string) error {
		delete(minted, name)
		return nil
	}
	f.creds.insertErr = errors.New("database is locked")

	first, err := f.provisioning().CreateProject(context.Background(), createRequest())
	require.NoError(t, err)
	require.Equal(t, application.ProvisionSaveWarning, first.State)
	assert.Equal(t, "sqp_billing-token", first.Warning.Token)

	f.creds.insertErr = nil
	second, err := f.provisioning().CreateProject(context.Background(), createRequest())
	require.NoError(t, err)

	assert.Equal(t, application.ProvisionDone, second.State)
	assert.True(t, second.Resumed)
	assert.NotEmpty(t, second.Project.CredentialID)
	assert.Equal(t, 1, f.client.callCount("revoke_token"))
	assert.Equal(t, 3, f.client.callCount("generate_token"))
	assert.Len(t, f.creds.byClass(model.CredentialClassProjectAnalysis), 1)
}

func TestCreateProject_StaleTokenRevokeFails(t *testing.T) {
	f := newFixture(t)
	f.projects.put(model.Project{Path: "/src/billing", Key: "billing", Name: "Billing", HostURL: testHost})
	f.client.generateToken = func(req model.TokenRequest) (*model.GeneratedToken, error) {
		return nil, remoteErr(driven.KindRemoteRejected, http.StatusBadRequest, "token name already exists")
	}
	f.client.revokeToken = func(string) error {
		return remoteErr(driven.KindRemoteUnreachable, http.StatusBadGateway, "bad gateway")
	}

	result, err := f.provisioning().CreateProject(context.Background(), createRequest())
	require.NoError(t, err)

	assert.Equal(t, application.ProvisionTokenWarning, result.State)
	assert.Equal(t, application.StepGenerateToken, result.Warning.Step)
	assert.Equal(t, driven.KindRemoteUnreachable, result.Warning.Kind)
	assert.Equal(t, 1, f.client.callCount("generate_token"))
}

func TestCreateProject_StoredTokenLookupFails(t *testing.T) {
	f := newFixture(t)
	f.projects.put(model.Project{Path: "/src/billing", Key: "billing", Name: "Billing", HostURL: testHost})
	f.creds.listErr = errors.New("database is locked")

	result, err := f.provisioning().CreateProject(context.Background(), createRequest())
	require.NoError(t, err)

	assert.Equal(t, application.ProvisionTokenWarning, result.State)
	assert.Equal(t, driven.KindLocalStoreFailure, result.Warning.Kind)
	assert.Equal(t, 0, f.client.callCount("generate_token"))
}

func TestCreateProject_MissingAdminCredential(t *testing.T) {
	f := newFixture(t)
	req := createRequest()
	req.HostURL = "http://unknown:9000"

	_, err := f.provisioning().CreateProject(context.Background(), req)

	var missing *application.MissingCredentialError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "http://unknown:9000", missing.Host)
	assert.Equal(t, 0, f.client.callCount("create_project"))
}

func TestCreateProject_ResumesRecordWithToken(t *testing.T) {
	f := newFixture(t)
	seeded := f.seedProject(t, "/src/billing", "billing")

	result, err := f.provisioning().CreateProject(context.Background(), createRequest())
	require.NoError(t, err)

	assert.True(t, result.Resumed)
	assert.Equal(t, application.ProvisionDone, result.State)
	assert.Equal(t, seeded.ID, result.Project.ID)
	assert.Equal(t, 0, f.client.callCount("create_project"))
	assert.Equal(t, 0, f.client.callCount("generate_token"))
}

func TestCreateProject_ResumesRecordWithoutToken(t *testing.T) {
	f := newFixture(t)
	f.projects.put(model.Project{Path: "/src/billing", Key: "billing", Name: "Billing", HostURL: testHost})

	result, err := f.provisioning().CreateProject(context.Background(), createRequest())
	require.NoError(t, err)

	assert.True(t, result.Resumed)
	assert.Equal(t, application.ProvisionDone, result.State)
	assert.NotEmpty(t, result.Project.CredentialID)
	assert.Equal(t, 0, f.client.callCount("create_project"))
	assert.Equal(t, 1, f.client.callCount("generate_token"))
}

func TestCreateProject_ConcurrentInsertOfSameProject(t *testing.T) {
	f := newFixture(t)
	// Another run records the project between our lookup and our insert.
	f.client.createProject = func(name, key string, _ model.Visibility) (*model.RemoteProject, error) {
		f.projects.put(model.Project{Path: "/src/billing", Key: key, Name: name, HostURL: testHost})
		return &model.RemoteProject{Key: key, Name: name}, nil
	}

	result, err := f.provisioning().CreateProject(context.Background(), createRequest())
	require.NoError(t, err)
	assert.True(t, result.Resumed)
	assert.Equal(t, application.ProvisionDone, result.State)
	assert.NotEmpty(t, result.Project.CredentialID)
}

func TestCreateProject_PathTrackedByOtherKey(t *testing.T) {
	f := newFixture(t)
	f.seedProject(t, "/src/billing", "legacy_billing")

	result, err := f.provisioning().CreateProject(context.Background(), createRequest())
	require.Error(t, err)
	assert.Nil(t, result)
	assert.ErrorIs(t, err, driven.ErrLocalStoreConflict)
	assert.Contains(t, err.Error(), "legacy_billing")
	assert.Equal(t, 0, f.client.callCount("create_project"))
	assert.Empty(t, f.connector.hosts)
}

func TestCreateProject_KeyTrackedAtOtherPath(t *testing.T) {
	f := newFixture(t)
	f.seedProject(t, "/src/old-billing", "billing")

	_, err := f.provisioning().CreateProject(context.Background(), createRequest())
	require.Error(t, err)
	assert.Equal(t, driven.KindLocalStoreConflict, driven.KindOf(err))
	assert.Contains(t, err.Error(), "/src/old-billing")
	assert.Equal(t, 0, f.client.callCount("create_project"))
}

func TestCreateProject_ConcurrentInsertOfOtherProject(t *testing.T) {
	f := newFixture(t)
	// Another run records a different project at the same path.
	f.client.createProject = func(name, key string, _ model.Visibility) (*model.RemoteProject, error) {
		f.projects.put(model.Project{Path: "/src/billing", Key: "payroll", Name: "Payroll", HostURL: testHost})
		return &model.RemoteProject{Key: key, Name: name}, nil
	}

	result, err := f.provisioning().CreateProject(context.Background(), createRequest())
	require.Error(t, err)
	assert.Nil(t, result)
	assert.Equal(t, driven.KindLocalStoreConflict, driven.KindOf(err))
	assert.Contains(t, err.Error(), "remote project billing was created but is not recorded")
	assert.Equal(t, 0, f.client.callCount("generate_token"))
}

func TestCreateProject_ResumeWithTokenNeedsNoAdminCredential(t *testing.T) {
	f := newFixture(t)
	f.seedProject(t, "/src/billing", "billing")
	require.NoError(t, f.creds.Deactivate(context.Background(), "admin-1"))

	result, err := f.provisioning().CreateProject(context.Background(), createRequest())
	require.NoError(t, err)

	assert.Equal(t, application.ProvisionDone, result.State)
	assert.True(t, result.Resumed)
	assert.Empty(t, f.connector.hosts)
}

func TestCreateProject_LocalInsertFails(t *testing.T) {
	f := newFixture(t)
	f.projects.insertErr = errors.New("disk full")

	_, err := f.provisioning().CreateProject(context.Background(), createRequest())
	require.Error(t, err)
	assert.Equal(t, driven.KindLocalStoreFailure, driven.KindOf(err))
	assert.Equal(t, 1, f.client.callCount("create_project"))
}

func TestCreateProject_Validation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*application.CreateProjectRequest)
	}{
		{"missing path", func(r *application.CreateProjectRequest) { r.Path = "" }},
		{"missing name", func(r *application.CreateProjectRequest) { r.Name = "" }},
		{"missing key", func(r *application.CreateProjectRequest) { r.Key = "" }},
		{"bad visibility", func(r *application.CreateProjectRequest) { r.Visibility = "secret" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			req := createRequest()
			tt.mutate(&req)

			_, err := f.provisioning().CreateProject(context.Background(), req)
			assert.ErrorIs(t, err, application.ErrInvalidInput)
			assert.Equal(t, 0, f.client.callCount("create_project"))
		})
	}
}

func TestCreateProject_TokenTTL(t *testing.T) {
	f := newFixture(t)
	var gotExpiry *time.Time
	f.client.generateToken = func(req model.TokenRequest) (*model.GeneratedToken, error) {
		gotExpiry = req.ExpiresAt
		return &model.GeneratedToken{Name: req.Name, Token: "sqp_x", ExpiresAt: req.ExpiresAt}, nil
	}

	svc := application.NewProvisioningService(
		f.projects, f.creds, f.resolver, f.connector,
		application.ProvisioningConfig{DefaultHostURL: testHost + "/", TokenTTL: 24 * time.Hour},
		discardLogger(),
	)

	result, err := svc.CreateProject(context.Background(), createRequest())
	require.NoError(t, err)
	assert.Equal(t, application.ProvisionDone, result.State)
	require.NotNil(t, gotExpiry)
	assert.WithinDuration(t, time.Now().Add(24*time.Hour), *gotExpiry, time.Minute)
}
