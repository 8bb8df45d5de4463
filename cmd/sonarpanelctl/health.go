package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	httphandler "github.com/ericfisherdev/sonarpanel/internal/adapter/driving/http"
)

type HealthCmd struct {
	Host string `help:"SonarQube host URL to probe. Defaults to the server's host."`
}

func (c *HealthCmd) Run(rc *runCtx) error {
	var local httphandler.HealthResponse
	if err := c.get(rc, "/api/v1/health", nil, &local); err != nil {
		return err
	}

	var query url.Values
	if c.Host != "" {
		query = url.Values{"host": {c.Host}}
	}
	var remote httphandler.RemoteHealthResponse
	if err := c.get(rc, "/api/v1/remote/health", query, &remote); err != nil {
		return err
	}

	if rc.json {
		enc := json.NewEncoder(rc.out)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{"server": local, "remote": remote})
	}

	fmt.Fprintf(rc.out, "server: %s\n", local.Status)
	if remote.Reachable {
		fmt.Fprintf(rc.out, "remote: %s %s (version %s)\n", remote.Host, remote.Status, remote.Version)
	} else {
		msg := "unreachable"
		if remote.Error != nil {
			msg = remote.Error.Message
		}
		fmt.Fprintf(rc.out, "remote: %s unreachable: %s\n", remote.Host, msg)
	}

	if local.Status != "ok" || !remote.Reachable {
		return errors.New("unhealthy")
	}
	return nil
}

// get treats 503 as a valid health answer since both endpoints report
// degraded states with that status and a normal body.
func (c *HealthCmd) get(rc *runCtx, path string, query url.Values, out any) error {
	raw, err := rc.api.do(rc, http.MethodGet, path, query, nil, out)
	var apiErr *apiError
	if errors.As(err, &apiErr) && apiErr.Status == http.StatusServiceUnavailable {
		if uerr := json.Unmarshal(raw, out); uerr != nil {
			return err
		}
		return nil
	}
	return err
}
