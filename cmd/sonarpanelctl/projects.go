package main

import (
	"fmt"
	"net/http"
	"net/url"
	"text/tabwriter"

	httphandler "github.com/ericfisherdev/sonarpanel/internal/adapter/driving/http"
)

// ProjectsCmd groups the project subcommands.
type ProjectsCmd struct {
	List      ProjectsListCmd      `cmd:"" default:"1" help:"List provisioned projects."`
	Create    ProjectsCreateCmd    `cmd:"" help:"Provision a project on SonarQube and record it locally."`
	Delete    ProjectsDeleteCmd    `cmd:"" help:"Delete a project remotely and locally."`
	Info      ProjectsInfoCmd      `cmd:"" help:"Show a project record and whether it still exists remotely."`
	Reconcile ProjectsReconcileCmd `cmd:"" help:"Report records whose remote project is gone."`
}

type ProjectsListCmd struct{}

func (c *ProjectsListCmd) Run(rc *runCtx) error {
	var projects []httphandler.ProjectResponse
	render, err := rc.call(http.MethodGet, "/api/v1/projects", nil, nil, &projects)
	if !render || err != nil {
		return err
	}
	if len(projects) == 0 {
		fmt.Fprintln(rc.out, "No projects.")
		return nil
	}

	tw := tabwriter.NewWriter(rc.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "KEY\tNAME\tLANGUAGE\tTOKEN\tPATH")
	for _, p := range projects {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", p.Key, p.Name, dash(p.Language), yesNo(p.HasToken), p.Path)
	}
	return tw.Flush()
}

type ProjectsCreateCmd struct {
	Path       string `arg:"" help:"Local project directory." type:"path"`
	Name       string `help:"Display name on SonarQube." required:""`
	Key        string `help:"Project key, unique per host." required:""`
	Language   string `help:"Primary language, used for the coverage property." short:"l"`
	Sources    string `help:"Source directory relative to the project."`
	Tests      string `help:"Test directory relative to the project."`
	Coverage   string `help:"Coverage report path relative to the project."`
	Host       string `help:"SonarQube host URL. Defaults to the server's host."`
	Visibility string `help:"public or private."`
}

func (c *ProjectsCreateCmd) Run(rc *runCtx) error {
	var resp httphandler.CreateProjectResponse
	render, err := rc.call(http.MethodPost, "/api/v1/projects", nil, httphandler.CreateProjectRequest{
		Path:               c.Path,
		Name:               c.Name,
		Key:                c.Key,
		Language:           c.Language,
		SourcesPath:        c.Sources,
		TestsPath:          c.Tests,
		CoverageReportPath: c.Coverage,
		HostURL:            c.Host,
		Visibility:         c.Visibility,
	}, &resp)
	if !render || err != nil {
		return err
	}

	verb := "Created"
	if resp.Resumed {
		verb = "Resumed"
	}
	fmt.Fprintf(rc.out, "%s project %s at %s (%s)\n", verb, resp.Project.Key, resp.Project.HostURL, resp.State)
	printWarning(rc, resp.Warning)
	return nil
}

type ProjectsDeleteCmd struct {
	Path string `arg:"" help:"Local project directory." type:"path"`
}

func (c *ProjectsDeleteCmd) Run(rc *runCtx) error {
	var resp httphandler.DeleteProjectResponse
	render, err := rc.call(http.MethodDelete, "/api/v1/projects", url.Values{"path": {c.Path}}, nil, &resp)
	if !render || err != nil {
		return err
	}

	fmt.Fprintf(rc.out, "Deleted project %s\n", resp.Project.Key)
	printWarning(rc, resp.Warning)
	return nil
}

type ProjectsInfoCmd struct {
	Path string `arg:"" help:"Local project directory." type:"path"`
}

func (c *ProjectsInfoCmd) Run(rc *runCtx) error {
	var resp httphandler.ProjectInfoResponse
	render, err := rc.call(http.MethodGet, "/api/v1/projects/info", url.Values{"path": {c.Path}}, nil, &resp)
	if !render || err != nil {
		return err
	}

	p := resp.Project
	tw := tabwriter.NewWriter(rc.out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Key:\t%s\n", p.Key)
	fmt.Fprintf(tw, "Name:\t%s\n", p.Name)
	fmt.Fprintf(tw, "Path:\t%s\n", p.Path)
	fmt.Fprintf(tw, "Host:\t%s\n", p.HostURL)
	fmt.Fprintf(tw, "Language:\t%s\n", dash(p.Language))
	fmt.Fprintf(tw, "Visibility:\t%s\n", dash(p.Visibility))
	fmt.Fprintf(tw, "Token:\t%s\n", yesNo(p.HasToken))
	switch {
	case resp.RemoteError != nil:
		fmt.Fprintf(tw, "Remote:\tunknown (%s: %s)\n", resp.RemoteError.Kind, resp.RemoteError.Message)
	case resp.RemoteExists != nil && *resp.RemoteExists:
		fmt.Fprintln(tw, "Remote:\tpresent")
	default:
		fmt.Fprintln(tw, "Remote:\tmissing")
	}
	return tw.Flush()
}

type ProjectsReconcileCmd struct{}

func (c *ProjectsReconcileCmd) Run(rc *runCtx) error {
	var resp httphandler.ReconcileResponse
	render, err := rc.call(http.MethodPost, "/api/v1/projects/reconcile", nil, nil, &resp)
	if !render || err != nil {
		return err
	}

	tw := tabwriter.NewWriter(rc.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "KEY\tHOST\tREMOTE")
	for _, e := range resp.Entries {
		state := "present"
		switch {
		case e.Error != nil:
			state = "error: " + e.Error.Kind
		case !e.RemoteExists:
			state = "missing"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", e.Project.Key, e.Project.HostURL, state)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(rc.out, "%d missing, %d failed\n", resp.Missing, resp.Failed)
	return nil
}

func printWarning(rc *runCtx, w *httphandler.WarningResponse) {
	if w == nil {
		return
	}
	fmt.Fprintf(rc.out, "warning: %s failed (%s): %s\n", w.Step, w.Kind, w.Message)
	if w.Token != "" {
		fmt.Fprintf(rc.out, "token was not stored, save it now: %s\n", w.Token)
	}
	if w.CredentialID != "" {
		fmt.Fprintf(rc.out, "token is stored as credential %s, run create again to attach it\n", w.CredentialID)
	}
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
