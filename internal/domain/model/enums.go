package model

// CredentialClass tags the scope of a stored token on the remote server.
type CredentialClass string

const (
	CredentialClassProjectAnalysis CredentialClass = "PROJECT_ANALYSIS_TOKEN"
	CredentialClassGlobalAnalysis  CredentialClass = "GLOBAL_ANALYSIS_TOKEN"
	CredentialClassUser            CredentialClass = "USER_TOKEN"
)

// CredentialClassAdmin is the class the sagas resolve when they need
// administrative access to a host.
const CredentialClassAdmin = CredentialClassGlobalAnalysis

// Valid reports whether c is one of the recognized classes.
func (c CredentialClass) Valid() bool {
	switch c {
	case CredentialClassProjectAnalysis, CredentialClassGlobalAnalysis, CredentialClassUser:
		return true
	}
	return false
}

// Visibility is the remote project visibility.
type Visibility string

const (
	VisibilityPublic  Visibility = "public"
	VisibilityPrivate Visibility = "private"
)

// Valid reports whether v is empty (server default) or a known visibility.
func (v Visibility) Valid() bool {
	return v == "" || v == VisibilityPublic || v == VisibilityPrivate
}

// QualityGateStatus is the computed status of a project's quality gate.
type QualityGateStatus string

const (
	QualityGateOK    QualityGateStatus = "OK"
	QualityGateError QualityGateStatus = "ERROR"
	QualityGateNone  QualityGateStatus = "NONE"
)
