// Command sonarpanelctl drives a running sonarpanel server from the shell.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
)

type cli struct {
	Server  string           `help:"Base URL of the sonarpanel server." env:"SONARPANEL_SERVER" default:"http://127.0.0.1:8080"`
	Timeout time.Duration    `help:"Per-request timeout." default:"10m"`
	JSON    bool             `help:"Print raw JSON responses." short:"j"`
	Version kong.VersionFlag `help:"Print version and exit." short:"v"`

	Projects    ProjectsCmd    `cmd:"" help:"Manage provisioned projects."`
	Results     ResultsCmd     `cmd:"" help:"Show issues, coverage and quality gate of a project."`
	Issues      IssuesCmd      `cmd:"" help:"Collect every issue of a project across pages."`
	Command     CommandCmd     `cmd:"" help:"Print the scanner command for a project."`
	AdminToken  AdminTokenCmd  `cmd:"" name:"admin-token" help:"Mint and store an admin token on a SonarQube host."`
	Credentials CredentialsCmd `cmd:"" help:"Manage stored credentials."`
	Health      HealthCmd      `cmd:"" help:"Check the server and the SonarQube host."`
}

// runCtx is bound into every command's Run method.
type runCtx struct {
	context.Context
	api  *apiClient
	out  io.Writer
	in   io.Reader
	json bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	var c cli
	parser, err := kong.New(&c,
		kong.Name("sonarpanelctl"),
		kong.Description("Provision SonarQube projects and inspect their results through sonarpanel."),
		kong.UsageOnError(),
		kong.Writers(stdout, stderr),
		kong.Vars{"version": Version},
	)
	if err != nil {
		fmt.Fprintf(stderr, "sonarpanelctl: %v\n", err)
		return 2
	}

	kctx, err := parser.Parse(args)
	if err != nil {
		fmt.Fprintf(stderr, "sonarpanelctl: error: %v\n", err)
		return 2
	}

	rc := &runCtx{
		Context: ctx,
		api:     newAPIClient(c.Server, c.Timeout),
		out:     stdout,
		in:      stdin,
		json:    c.JSON,
	}
	if err := kctx.Run(rc); err != nil {
		fmt.Fprintf(stderr, "sonarpanelctl: %v\n", err)
		return 1
	}
	return 0
}
