package model

import "time"

// Credential is a token stored for a remote host. Value is plaintext at the
// domain boundary; adapters encrypt it at rest.
type Credential struct {
	ID         string
	Username   string
	Name       string
	Value      string
	HostURL    string
	Class      CredentialClass
	ProjectKey string // set for project-scoped tokens
	Active     bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
	ExpiresAt  *time.Time
	Note       string
}

// Expired reports whether the credential has an expiry in the past.
func (c Credential) Expired(now time.Time) bool {
	return c.ExpiresAt != nil && !c.ExpiresAt.After(now)
}

// MaskedValue returns the value with all but the last four characters hidden.
func (c Credential) MaskedValue() string {
	const visible = 4
	if len(c.Value) <= visible {
		return "****"
	}
	return "****" + c.Value[len(c.Value)-visible:]
}
