package main

import (
	"bufio"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"text/tabwriter"

	httphandler "github.com/ericfisherdev/sonarpanel/internal/adapter/driving/http"
)

type AdminTokenCmd struct {
	Username      string `help:"SonarQube login with admin rights." required:"" short:"u"`
	Password      string `help:"Password for the login." env:"SONARPANEL_ADMIN_PASSWORD"`
	PasswordStdin bool   `help:"Read the password from stdin." name:"password-stdin"`
	Host          string `help:"SonarQube host URL. Defaults to the server's host."`
	Name          string `help:"Token name. Generated when empty."`
	Note          string `help:"Free-form note stored with the token."`
	Expires       string `help:"Expiry date (YYYY-MM-DD or RFC 3339)."`
}

func (c *AdminTokenCmd) Run(rc *runCtx) error {
	password := c.Password
	if c.PasswordStdin {
		line, err := bufio.NewReader(rc.in).ReadString('\n')
		if err != nil && line == "" {
			return fmt.Errorf("read password from stdin: %w", err)
		}
		password = strings.TrimRight(line, "\r\n")
	}
	if password == "" {
		return errors.New("password is required: use --password, SONARPANEL_ADMIN_PASSWORD or --password-stdin")
	}

	var resp httphandler.CredentialResultResponse
	render, err := rc.call(http.MethodPost, "/api/v1/admin-tokens", nil, httphandler.AdminTokenRequest{
		HostURL:   c.Host,
		Username:  c.Username,
		Password:  password,
		TokenName: c.Name,
		Note:      c.Note,
		ExpiresAt: c.Expires,
	}, &resp)
	if !render || err != nil {
		return err
	}

	fmt.Fprintf(rc.out, "Stored admin token %s (%s) for %s\n",
		resp.Credential.Name, resp.Credential.ID, resp.Credential.HostURL)
	printWarning(rc, resp.Warning)
	return nil
}

// CredentialsCmd groups the credential subcommands.
type CredentialsCmd struct {
	List   CredentialsListCmd   `cmd:"" default:"1" help:"List stored credentials with masked values."`
	Revoke CredentialsRevokeCmd `cmd:"" help:"Revoke a token remotely and mark it inactive."`
	Delete CredentialsDeleteCmd `cmd:"" help:"Delete a stored credential."`
}

type CredentialsListCmd struct {
	Project string `short:"p" help:"Only list tokens issued for this project key."`
}

func (c *CredentialsListCmd) Run(rc *runCtx) error {
	var query url.Values
	if c.Project != "" {
		query = url.Values{"project_key": {c.Project}}
	}
	var creds []httphandler.CredentialResponse
	render, err := rc.call(http.MethodGet, "/api/v1/credentials", query, nil, &creds)
	if !render || err != nil {
		return err
	}
	if len(creds) == 0 {
		fmt.Fprintln(rc.out, "No credentials.")
		return nil
	}

	tw := tabwriter.NewWriter(rc.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCLASS\tNAME\tVALUE\tPROJECT\tACTIVE\tHOST")
	for _, cr := range creds {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			cr.ID, cr.Class, cr.Name, cr.Value, dash(cr.ProjectKey), yesNo(cr.Active), cr.HostURL)
	}
	return tw.Flush()
}

type CredentialsRevokeCmd struct {
	ID string `arg:"" help:"Credential ID."`
}

func (c *CredentialsRevokeCmd) Run(rc *runCtx) error {
	var resp httphandler.CredentialResultResponse
	render, err := rc.call(http.MethodPost, "/api/v1/credentials/"+url.PathEscape(c.ID)+"/revoke", nil, nil, &resp)
	if !render || err != nil {
		return err
	}

	fmt.Fprintf(rc.out, "Revoked %s\n", resp.Credential.Name)
	printWarning(rc, resp.Warning)
	return nil
}

type CredentialsDeleteCmd struct {
	ID string `arg:"" help:"Credential ID."`
}

func (c *CredentialsDeleteCmd) Run(rc *runCtx) error {
	if _, err := rc.call(http.MethodDelete, "/api/v1/credentials/"+url.PathEscape(c.ID), nil, nil, nil); err != nil {
		return err
	}
	if !rc.json {
		fmt.Fprintf(rc.out, "Deleted %s\n", c.ID)
	}
	return nil
}
