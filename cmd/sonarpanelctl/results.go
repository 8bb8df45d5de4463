package main

import (
	"fmt"
	"net/http"
	"strconv"
	"text/tabwriter"

	httphandler "github.com/ericfisherdev/sonarpanel/internal/adapter/driving/http"
)

type ResultsCmd struct {
	Path string `arg:"" help:"Local project directory." type:"path"`
}

func (c *ResultsCmd) Run(rc *runCtx) error {
	var resp httphandler.ResultsResponse
	render, err := rc.call(http.MethodPost, "/api/v1/results", nil,
		httphandler.ProjectPathRequest{ProjectPath: c.Path}, &resp)
	if !render || err != nil {
		return err
	}

	fmt.Fprintf(rc.out, "Project %s (%s)\n\n", resp.Project.Key, resp.Project.Name)

	fmt.Fprint(rc.out, "Quality gate: ")
	if g := resp.QualityGate; sectionOK(rc, g.Unavailable, g.Error) {
		fmt.Fprintln(rc.out, g.Data.Status)
		for _, cond := range g.Data.Conditions {
			fmt.Fprintf(rc.out, "  %-4s %s %s %s (actual %s)\n",
				cond.Status, cond.MetricKey, cond.Comparator, cond.ErrorThreshold, cond.ActualValue)
		}
	}

	fmt.Fprint(rc.out, "Coverage: ")
	if cov := resp.Coverage; sectionOK(rc, cov.Unavailable, cov.Error) {
		fmt.Fprintln(rc.out)
		for _, m := range cov.Data.Measures {
			fmt.Fprintf(rc.out, "  %s = %s\n", m.Metric, m.Value)
		}
	}

	fmt.Fprint(rc.out, "Issues: ")
	if is := resp.Issues; sectionOK(rc, is.Unavailable, is.Error) {
		fmt.Fprintf(rc.out, "%d total, showing %d\n", is.Data.Paging.Total, len(is.Data.Issues))
		return printIssues(rc, is.Data.Issues)
	}
	return nil
}

// sectionOK prints the reason a section has no data and reports whether it
// has data to render.
func sectionOK(rc *runCtx, unavailable string, serr *httphandler.SectionErrorResponse) bool {
	switch {
	case serr != nil:
		fmt.Fprintf(rc.out, "error (%s): %s\n", serr.Kind, serr.Message)
		return false
	case unavailable != "":
		fmt.Fprintf(rc.out, "unavailable (%s)\n", unavailable)
		return false
	}
	return true
}

type IssuesCmd struct {
	Path          string   `arg:"" help:"Local project directory." type:"path"`
	Severity      []string `help:"Only these severities (e.g. BLOCKER,CRITICAL)." sep:","`
	Type          []string `help:"Only these types (BUG,VULNERABILITY,CODE_SMELL)." sep:","`
	Status        []string `help:"Only these statuses (e.g. OPEN,CONFIRMED)." sep:","`
	CreatedAfter  string   `help:"Only issues created on or after this date (YYYY-MM-DD or RFC 3339)."`
	CreatedBefore string   `help:"Only issues created before this date (YYYY-MM-DD or RFC 3339)."`
}

func (c *IssuesCmd) Run(rc *runCtx) error {
	var resp httphandler.IssueCollectionResponse
	render, err := rc.call(http.MethodPost, "/api/v1/results/issues", nil, httphandler.IssuesRequest{
		ProjectPath: c.Path,
		Filters: httphandler.IssueFilterDTO{
			Severities:    c.Severity,
			Types:         c.Type,
			Statuses:      c.Status,
			CreatedAfter:  c.CreatedAfter,
			CreatedBefore: c.CreatedBefore,
		},
	}, &resp)
	if !render || err != nil {
		return err
	}

	if err := printIssues(rc, resp.Issues); err != nil {
		return err
	}
	fmt.Fprintf(rc.out, "%d of %d issues in %d pages\n", len(resp.Issues), resp.Total, resp.Pages)
	if resp.Truncated {
		fmt.Fprintln(rc.out, "warning: page limit reached, results are truncated")
	}
	return nil
}

func printIssues(rc *runCtx, issues []httphandler.IssueResponse) error {
	if len(issues) == 0 {
		return nil
	}
	tw := tabwriter.NewWriter(rc.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SEVERITY\tTYPE\tLOCATION\tMESSAGE")
	for _, is := range issues {
		loc := is.Component
		if is.Line > 0 {
			loc += ":" + strconv.Itoa(is.Line)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", is.Severity, is.Type, loc, is.Message)
	}
	return tw.Flush()
}

type CommandCmd struct {
	Path string `arg:"" help:"Local project directory." type:"path"`
}

func (c *CommandCmd) Run(rc *runCtx) error {
	var resp httphandler.ScanCommandResponse
	render, err := rc.call(http.MethodPost, "/api/v1/generate-command", nil,
		httphandler.ProjectPathRequest{ProjectPath: c.Path}, &resp)
	if !render || err != nil {
		return err
	}

	fmt.Fprintln(rc.out, resp.Command)
	if !resp.HasToken {
		fmt.Fprintln(rc.out, "note: no active project token, replace the placeholder before running")
	}
	return nil
}
