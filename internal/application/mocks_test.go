package application_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/sonarpanel/internal/application"
	"github.com/ericfisherdev/sonarpanel/internal/domain/model"
	"github.com/ericfisherdev/sonarpanel/internal/domain/port/driven"
)

const testHost = "http://sonar.test:9000"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// --- Mock implementations ---

type mockProjectStore struct {
	mu       sync.Mutex
	projects map[string]model.Project // keyed by path
	nextID   int64

	insertErr error
	findErr   error
	updateErr error
	deleteErr error
	listErr   error

	insertCalls int
	deleteCalls int
}

func newMockProjectStore() *mockProjectStore {
	return &mockProjectStore{projects: make(map[string]model.Project)}
}

func (m *mockProjectStore) Insert(_ context.Context, p model.Project) (*model.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.insertCalls++
	if m.insertErr != nil {
		return nil, m.insertErr
	}
	for _, existing := range m.projects {
		if existing.Path == p.Path || existing.Key == p.Key {
			return nil, fmt.Errorf("insert project %s: %w", p.Path, driven.ErrProjectAlreadyExists)
		}
	}
	m.nextID++
	p.ID = m.nextID
	m.projects[p.Path] = p
	return &p, nil
}

func (m *mockProjectStore) FindByPath(_ context.Context, path string) (*model.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.findErr != nil {
		return nil, m.findErr
	}
	p, ok := m.projects[path]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (m *mockProjectStore) FindByKey(_ context.Context, key string) (*model.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.findErr != nil {
		return nil, m.findErr
	}
	for _, p := range m.projects {
		if p.Key == key {
			return &p, nil
		}
	}
	return nil, nil
}

func (m *mockProjectStore) ListAll(_ context.Context) ([]model.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	out := make([]model.Project, 0, len(m.projects))
	for _, p := range m.projects {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

func (m *mockProjectStore) UpdateField(_ context.Context, id int64, field model.ProjectField, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateErr != nil {
		return m.updateErr
	}
	for path, p := range m.projects {
		if p.ID != id {
			continue
		}
		switch field {
		case model.ProjectFieldCredentialID:
			p.CredentialID = value
		case model.ProjectFieldName:
			p.Name = value
		default:
			return fmt.Errorf("mock: unsupported field %s", field)
		}
		m.projects[path] = p
		return nil
	}
	return driven.ErrProjectNotFound
}

func (m *mockProjectStore) DeleteByPath(_ context.Context, path string) (*model.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleteCalls++
	if m.deleteErr != nil {
		return nil, m.deleteErr
	}
	p, ok := m.projects[path]
	if !ok {
		return nil, nil
	}
	delete(m.projects, path)
	return &p, nil
}

// put stores p directly, bypassing Insert.
func (m *mockProjectStore) put(p model.Project) model.Project {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	p.ID = m.nextID
	m.projects[p.Path] = p
	return p
}

type mockCredentialStore struct {
	mu     sync.Mutex
	creds  []model.Credential
	nextID int

	insertErr     error
	findErr       error
	listErr       error
	deactivateErr error
	deleteErr     error
}

func (m *mockCredentialStore) Insert(_ context.Context, c model.Credential) (*model.Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.insertErr != nil {
		return nil, m.insertErr
	}
	if c.ID == "" {
		m.nextID++
		c.ID = fmt.Sprintf("cred-%d", m.nextID)
	}
	m.creds = append(m.creds, c)
	return &c, nil
}

func (m *mockCredentialStore) Get(_ context.Context, id string) (*model.Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.creds {
		if c.ID == id {
			return &c, nil
		}
	}
	return nil, nil
}

func (m *mockCredentialStore) FindActiveByHostAndClass(_ context.Context, host string, class model.CredentialClass) (*model.Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.findErr != nil {
		return nil, m.findErr
	}
	for _, c := range m.creds {
		if c.HostURL == host && c.Class == class && c.Active {
			return &c, nil
		}
	}
	return nil, nil
}

func (m *mockCredentialStore) List(_ context.Context) ([]model.Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.Credential(nil), m.creds...), nil
}

func (m *mockCredentialStore) ListByProject(_ context.Context, projectKey string) ([]model.Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []model.Credential
	for i := len(m.creds) - 1; i >= 0; i-- {
		if m.creds[i].ProjectKey == projectKey {
			out = append(out, m.creds[i])
		}
	}
	return out, nil
}

func (m *mockCredentialStore) UpdateValue(_ context.Context, id, value string) error {
	return m.mutate(id, nil, func(c *model.Credential) { c.Value = value })
}

func (m *mockCredentialStore) Deactivate(_ context.Context, id string) error {
	return m.mutate(id, m.deactivateErr, func(c *model.Credential) { c.Active = false })
}

func (m *mockCredentialStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deleteErr != nil {
		return m.deleteErr
	}
	for i, c := range m.creds {
		if c.ID == id {
			m.creds = append(m.creds[:i], m.creds[i+1:]...)
			return nil
		}
	}
	return driven.ErrCredentialNotFound
}

func (m *mockCredentialStore) mutate(id string, injected error, fn func(*model.Credential)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if injected != nil {
		return injected
	}
	for i := range m.creds {
		if m.creds[i].ID == id {
			fn(&m.creds[i])
			return nil
		}
	}
	return driven.ErrCredentialNotFound
}

func (m *mockCredentialStore) byClass(class model.CredentialClass) []model.Credential {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Credential
	for _, c := range m.creds {
		if c.Class == class {
			out = append(out, c)
		}
	}
	return out
}

type mockSonarClient struct {
	mu    sync.Mutex
	calls []string

	createProject  func(name, key string, vis model.Visibility) (*model.RemoteProject, error)
	generateToken  func(req model.TokenRequest) (*model.GeneratedToken, error)
	revokeToken    func(name string) error
	deleteProject  func(key string) error
	searchIssues   func(key string, filter model.IssueFilter, page, pageSize int) (*model.IssuePage, error)
	getCoverage    func(key string) (*model.Coverage, error)
	getQualityGate func(key string) (*model.QualityGate, error)
	projectExists  func(key string) (bool, error)
	serverStatus   func() (*model.ServerStatus, error)
}

func (m *mockSonarClient) record(call string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, call)
}

func (m *mockSonarClient) callCount(prefix string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if c == prefix {
			n++
		}
	}
	return n
}

func (m *mockSonarClient) CreateProject(_ context.Context, name, key string, vis model.Visibility) (*model.RemoteProject, error) {
	m.record("create_project")
	if m.createProject != nil {
		return m.createProject(name, key, vis)
	}
	return &model.RemoteProject{Key: key, Name: name, Qualifier: "TRK", Visibility: vis}, nil
}

func (m *mockSonarClient) GenerateToken(_ context.Context, req model.TokenRequest) (*model.GeneratedToken, error) {
	m.record("generate_token")
	if m.generateToken != nil {
		return m.generateToken(req)
	}
	return &model.GeneratedToken{
		Login:      "admin",
		Name:       req.Name,
		Token:      "sqp_" + req.Name,
		Class:      req.Class,
		ProjectKey: req.ProjectKey,
		ExpiresAt:  req.ExpiresAt,
	}, nil
}

func (m *mockSonarClient) RevokeToken(_ context.Context, name string) error {
	m.record("revoke_token")
	if m.revokeToken != nil {
		return m.revokeToken(name)
	}
	return nil
}

func (m *mockSonarClient) DeleteProject(_ context.Context, key string) error {
	m.record("delete_project")
	if m.deleteProject != nil {
		return m.deleteProject(key)
	}
	return nil
}

func (m *mockSonarClient) SearchIssues(_ context.Context, key string, filter model.IssueFilter, page, pageSize int) (*model.IssuePage, error) {
	m.record("search_issues")
	if m.searchIssues != nil {
		return m.searchIssues(key, filter, page, pageSize)
	}
	return &model.IssuePage{Issues: []model.Issue{}}, nil
}

func (m *mockSonarClient) GetCoverage(_ context.Context, key string) (*model.Coverage, error) {
	m.record("get_coverage")
	if m.getCoverage != nil {
		return m.getCoverage(key)
	}
	return &model.Coverage{ComponentKey: key, Measures: []model.Measure{{Metric: "coverage", Value: "75.0"}}}, nil
}

func (m *mockSonarClient) GetQualityGate(_ context.Context, key string) (*model.QualityGate, error) {
	m.record("get_quality_gate")
	if m.getQualityGate != nil {
		return m.getQualityGate(key)
	}
	return &model.QualityGate{Status: model.QualityGateOK}, nil
}

func (m *mockSonarClient) ProjectExists(_ context.Context, key string) (bool, error) {
	m.record("project_exists")
	if m.projectExists != nil {
		return m.projectExists(key)
	}
	return true, nil
}

func (m *mockSonarClient) ServerStatus(_ context.Context) (*model.ServerStatus, error) {
	m.record("server_status")
	if m.serverStatus != nil {
		return m.serverStatus()
	}
	return &model.ServerStatus{Version: "10.4", Status: "UP"}, nil
}

type mockConnector struct {
	mu        sync.Mutex
	client    *mockSonarClient
	hosts     []string
	auths     []driven.Auth
	forgotten []driven.Auth
}

func (m *mockConnector) Connect(host string, auth driven.Auth) driven.SonarClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hosts = append(m.hosts, host)
	m.auths = append(m.auths, auth)
	return m.client
}

func (m *mockConnector) Forget(_ string, auth driven.Auth) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.forgotten = append(m.forgotten, auth)
}

// fixture wires mocks with an active admin credential for testHost.
type fixture struct {
	projects  *mockProjectStore
	creds     *mockCredentialStore
	client    *mockSonarClient
	connector *mockConnector
	resolver  *application.CredentialResolver
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		projects: newMockProjectStore(),
		creds:    &mockCredentialStore{},
		client:   &mockSonarClient{},
	}
	f.connector = &mockConnector{client: f.client}
	f.resolver = application.NewCredentialResolver(f.creds, discardLogger())

	_, err := f.creds.Insert(context.Background(), model.Credential{
		ID:      "admin-1",
		Name:    "bootstrap",
		Value:   "squ_admin",
		HostURL: testHost,
		Class:   model.CredentialClassAdmin,
		Active:  true,
	})
	require.NoError(t, err)

	return f
}

func (f *fixture) provisioning() *application.ProvisioningService {
	return application.NewProvisioningService(
		f.projects, f.creds, f.resolver, f.connector,
		application.ProvisioningConfig{DefaultHostURL: testHost},
		discardLogger(),
	)
}

func (f *fixture) deprovisioning() *application.DeprovisioningService {
	return application.NewDeprovisioningService(f.projects, f.creds, f.resolver, f.connector, discardLogger())
}

func (f *fixture) results(pageSize, maxPages int) *application.ResultsService {
	return application.NewResultsService(
		f.projects, f.resolver, f.connector,
		application.ResultsConfig{PageSize: pageSize, MaxPages: maxPages},
		discardLogger(),
	)
}

// seedProject stores a provisioned project with a stored project token.
func (f *fixture) seedProject(t *testing.T, path, key string) model.Project {
	t.Helper()
	cred, err := f.creds.Insert(context.Background(), model.Credential{
		Name:       key + "-token",
		Value:      "sqp_" + key,
		HostURL:    testHost,
		Class:      model.CredentialClassProjectAnalysis,
		ProjectKey: key,
		Active:     true,
	})
	require.NoError(t, err)

	return f.projects.put(model.Project{
		Path:         path,
		Key:          key,
		Name:         key,
		Language:     "go",
		HostURL:      testHost,
		CredentialID: cred.ID,
	})
}

func remoteErr(kind driven.ErrorKind, status int, msg string) error {
	return &driven.RemoteError{Kind: kind, Op: "test", StatusCode: status, Message: msg}
}
