package application

import (
	"context"
	"fmt"
	"strings"

	"github.com/ericfisherdev/sonarpanel/internal/domain/model"
	"github.com/ericfisherdev/sonarpanel/internal/domain/port/driven"
)

// TokenPlaceholder stands in for the token in commands for projects
// without a stored token.
const TokenPlaceholder = "<PROJECT_TOKEN>"

// coverageProperties maps a language tag to the scanner property that
// points at its coverage report.
var coverageProperties = map[string]string{
	"python":     "sonar.python.coverage.reportPaths",
	"javascript": "sonar.javascript.lcov.reportPaths",
	"typescript": "sonar.javascript.lcov.reportPaths",
	"go":         "sonar.go.coverage.reportPaths",
	"java":       "sonar.coverage.jacoco.xmlReportPaths",
	"kotlin":     "sonar.coverage.jacoco.xmlReportPaths",
	"csharp":     "sonar.cs.opencover.reportsPaths",
	"php":        "sonar.php.coverage.reportPaths",
	"ruby":       "sonar.ruby.coverage.reportPaths",
}

// ScanCommand is a ready-to-run scanner invocation.
type ScanCommand struct {
	Project  model.Project
	Command  string
	HasToken bool
}

// CommandService formats scanner commands for recorded projects.
type CommandService struct {
	projects driven.ProjectStore
	creds    driven.CredentialStore
}

// NewCommandService creates a CommandService.
func NewCommandService(projects driven.ProjectStore, creds driven.CredentialStore) *CommandService {
	return &CommandService{projects: projects, creds: creds}
}

// Generate returns the scanner command for the record at path. Projects
// without a stored token get TokenPlaceholder instead.
func (s *CommandService) Generate(ctx context.Context, path string) (*ScanCommand, error) {
	if path == "" {
		return nil, invalidf("path is required")
	}

	record, err := s.projects.FindByPath(ctx, path)
	if err != nil {
		return nil, storeError("find project", err)
	}
	if record == nil {
		return nil, fmt.Errorf("project %s: %w", path, driven.ErrProjectNotFound)
	}

	token := ""
	if record.HasToken() {
		cred, err := s.creds.Get(ctx, record.CredentialID)
		if err != nil {
			return nil, storeError("get project token", err)
		}
		if cred != nil && cred.Active {
			token = cred.Value
		}
	}

	return &ScanCommand{
		Project:  *record,
		Command:  FormatScanCommand(*record, token),
		HasToken: token != "",
	}, nil
}

// FormatScanCommand renders a sonar-scanner invocation for p. An empty
// token is rendered as TokenPlaceholder.
func FormatScanCommand(p model.Project, token string) string {
	if token == "" {
		token = TokenPlaceholder
	}

	args := []string{
		"sonar-scanner",
		"-Dsonar.projectKey=" + shellQuote(p.Key),
		"-Dsonar.projectName=" + shellQuote(p.Name),
		"-Dsonar.projectBaseDir=" + shellQuote(p.Path),
		"-Dsonar.sources=" + shellQuote(orDefault(p.SourcesPath, ".")),
	}
	if p.TestsPath != "" {
		args = append(args, "-Dsonar.tests="+shellQuote(p.TestsPath))
	}
	if p.CoverageReportPath != "" {
		if prop, ok := coverageProperties[strings.ToLower(p.Language)]; ok {
			args = append(args, "-D"+prop+"="+shellQuote(p.CoverageReportPath))
		}
	}
	args = append(args,
		"-Dsonar.host.url="+shellQuote(p.HostURL),
		"-Dsonar.token="+shellQuote(token),
	)

	return strings.Join(args, " \\\n  ")
}

// shellQuote single-quotes s when it contains characters a POSIX shell
// would interpret.
func shellQuote(s string) string {
	if s != "" && !strings.ContainsAny(s, " \t\n'\"\\$`!*?[]{}()<>|&;#~") {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
