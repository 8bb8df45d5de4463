package model

import "time"

// Project is the local record of a project provisioned on a remote server.
// Path is assigned by the caller; Key is assigned by the remote server.
// CredentialID stays empty between remote project creation and the moment
// a project token is durably stored.
type Project struct {
	ID                 int64
	Path               string
	Key                string
	Name               string
	Language           string
	SourcesPath        string
	TestsPath          string
	CoverageReportPath string
	HostURL            string
	Visibility         Visibility
	Qualifier          string
	CredentialID       string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// HasToken reports whether a project token has been attached to the record.
func (p Project) HasToken() bool {
	return p.CredentialID != ""
}

// ProjectField names a mutable column of a Project record.
type ProjectField string

const (
	ProjectFieldName               ProjectField = "name"
	ProjectFieldLanguage           ProjectField = "language"
	ProjectFieldSourcesPath        ProjectField = "sources_path"
	ProjectFieldTestsPath          ProjectField = "tests_path"
	ProjectFieldCoverageReportPath ProjectField = "coverage_report_path"
	ProjectFieldCredentialID       ProjectField = "credential_id"
)

// Valid reports whether f is a field that may be updated in place.
func (f ProjectField) Valid() bool {
	switch f {
	case ProjectFieldName, ProjectFieldLanguage, ProjectFieldSourcesPath,
		ProjectFieldTestsPath, ProjectFieldCoverageReportPath, ProjectFieldCredentialID:
		return true
	}
	return false
}
