package sonarqube

import (
	"context"
	"encoding/json"

	"github.com/ericfisherdev/sonarpanel/internal/domain/model"
)

type createProjectParams struct {
	Name       string `url:"name"`
	Project    string `url:"project"`
	Visibility string `url:"visibility,omitempty"`
}

type projectJSON struct {
	Key        string `json:"key"`
	Name       string `json:"name"`
	Qualifier  string `json:"qualifier"`
	Visibility string `json:"visibility"`
}

type createProjectResponse struct {
	Project projectJSON `json:"project"`
}

// CreateProject creates a project with the given name and key.
func (c *Client) CreateProject(ctx context.Context, name, key string, visibility model.Visibility) (*model.RemoteProject, error) {
	params := createProjectParams{Name: name, Project: key, Visibility: string(visibility)}

	var resp createProjectResponse
	if err := c.post(ctx, "projects/create", params, &resp); err != nil {
		return nil, err
	}

	// Older servers answer with an empty project object; fall back to the request.
	rp := &model.RemoteProject{
		Key:        resp.Project.Key,
		Name:       resp.Project.Name,
		Qualifier:  resp.Project.Qualifier,
		Visibility: model.Visibility(resp.Project.Visibility),
	}
	if rp.Key == "" {
		rp.Key = key
	}
	if rp.Name == "" {
		rp.Name = name
	}
	return rp, nil
}

type projectKeyParams struct {
	Project string `url:"project"`
}

// DeleteProject deletes the project with the given key.
func (c *Client) DeleteProject(ctx context.Context, key string) error {
	return c.post(ctx, "projects/delete", projectKeyParams{Project: key}, nil)
}

type projectSearchParams struct {
	Projects string `url:"projects"`
}

// projectSearchResponse keeps only the field ProjectExists depends on.
type projectSearchResponse struct {
	Components []json.RawMessage `json:"components"`
}

// ProjectExists reports whether the search endpoint returns any component for key.
func (c *Client) ProjectExists(ctx context.Context, key string) (bool, error) {
	var resp projectSearchResponse
	if err := c.get(ctx, "projects/search", projectSearchParams{Projects: key}, &resp); err != nil {
		return false, err
	}
	return len(resp.Components) > 0, nil
}
