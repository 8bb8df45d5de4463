package sonarqube

import (
	"context"
	"time"

	"github.com/ericfisherdev/sonarpanel/internal/domain/model"
)

// remoteTimeLayout is the timestamp layout used in Web API responses.
const remoteTimeLayout = "2006-01-02T15:04:05-0700"

type generateTokenParams struct {
	Name           string     `url:"name"`
	Type           string     `url:"type,omitempty"`
	ProjectKey     string     `url:"projectKey,omitempty"`
	ExpirationDate *time.Time `url:"expirationDate,omitempty" layout:"2006-01-02"`
}

type generateTokenResponse struct {
	Login          string `json:"login"`
	Name           string `json:"name"`
	Token          string `json:"token"`
	CreatedAt      string `json:"createdAt"`
	Type           string `json:"type"`
	ProjectKey     string `json:"projectKey"`
	ExpirationDate string `json:"expirationDate"`
}

// GenerateToken mints a token for the authenticated user.
func (c *Client) GenerateToken(ctx context.Context, req model.TokenRequest) (*model.GeneratedToken, error) {
	params := generateTokenParams{
		Name:           req.Name,
		Type:           string(req.Class),
		ProjectKey:     req.ProjectKey,
		ExpirationDate: req.ExpiresAt,
	}

	var resp generateTokenResponse
	if err := c.post(ctx, "user_tokens/generate", params, &resp); err != nil {
		return nil, err
	}

	tok := &model.GeneratedToken{
		Login:      resp.Login,
		Name:       resp.Name,
		Token:      resp.Token,
		Class:      model.CredentialClass(resp.Type),
		ProjectKey: resp.ProjectKey,
		CreatedAt:  parseRemoteTime(resp.CreatedAt),
	}
	if tok.Class == "" {
		tok.Class = req.Class
	}
	if tok.ProjectKey == "" {
		tok.ProjectKey = req.ProjectKey
	}
	if exp := parseRemoteTime(resp.ExpirationDate); !exp.IsZero() {
		tok.ExpiresAt = &exp
	} else if req.ExpiresAt != nil {
		tok.ExpiresAt = req.ExpiresAt
	}
	return tok, nil
}

type revokeTokenParams struct {
	Name string `url:"name"`
}

// RevokeToken revokes a token of the authenticated user by name.
func (c *Client) RevokeToken(ctx context.Context, name string) error {
	return c.post(ctx, "user_tokens/revoke", revokeTokenParams{Name: name}, nil)
}

// parseRemoteTime parses a Web API timestamp, returning the zero time for
// empty or unrecognized values.
func parseRemoteTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{remoteTimeLayout, time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}
