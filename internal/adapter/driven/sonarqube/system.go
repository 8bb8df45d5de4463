package sonarqube

import (
	"context"

	"github.com/ericfisherdev/sonarpanel/internal/domain/model"
)

type systemStatusResponse struct {
	ID      string `json:"id"`
	Version string `json:"version"`
	Status  string `json:"status"`
}

// ServerStatus returns the server's id, version, and lifecycle status.
func (c *Client) ServerStatus(ctx context.Context) (*model.ServerStatus, error) {
	var resp systemStatusResponse
	if err := c.get(ctx, "system/status", struct{}{}, &resp); err != nil {
		return nil, err
	}
	return &model.ServerStatus{ID: resp.ID, Version: resp.Version, Status: resp.Status}, nil
}
