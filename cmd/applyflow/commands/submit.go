package commands

import (
	"context"
	"fmt"

	"github.com/alecthomas/kingpin/v2"

	"github.com/applyflow/applyflow/internal/app/submit"
	"github.com/applyflow/applyflow/internal/metrics"
)

type SubmitCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	userID      string
	jobURL      string
	companyName string
	position    string
	noStart     bool
	format      string
}

// NewSubmitCommand returns the submit command.
func NewSubmitCommand(rootCmd *RootCommand, app *kingpin.Application) *SubmitCommand {
	c := &SubmitCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("submit", "Create a job application and start filling it in the portal.")
	c.Cmd.Arg("job-url", "Job posting URL.").Required().StringVar(&c.jobURL)
	c.Cmd.Flag("user", "User that applies.").Short('u').Required().StringVar(&c.userID)
	c.Cmd.Flag("company", "Company name, the company config name is used when missing.").StringVar(&c.companyName)
	c.Cmd.Flag("position", "Position applied for.").StringVar(&c.position)
	c.Cmd.Flag("no-start", "Only create the application without running its steps.").BoolVar(&c.noStart)
	c.Cmd.Flag("format", "Output format (table, json).").Default(formatTable).EnumVar(&c.format, formatTable, formatJSON)

	return c
}

func (c SubmitCommand) Name() string { return c.Cmd.FullCommand() }

func (c SubmitCommand) Run(ctx context.Context) error {
	rt, err := c.rootCmd.newRuntime(ctx, metrics.Noop)
	if err != nil {
		return err
	}
	defer rt.Close()

	svc, err := submit.NewService(submit.ServiceConfig{
		Resolver:   rt.registry,
		Repository: rt.repo,
		Engine:     rt.engine,
		Logger:     c.rootCmd.Logger,
	})
	if err != nil {
		return fmt.Errorf("could not create service: %w", err)
	}

	resp, err := svc.Run(ctx, submit.Request{
		UserID:      c.userID,
		JobURL:      c.jobURL,
		CompanyName: c.companyName,
		Position:    c.position,
		Start:       !c.noStart,
	})
	if resp == nil {
		return fmt.Errorf("could not submit application: %w", err)
	}

	// The application exists even when the run failed, show it so it can be resumed.
	p := c.rootCmd.newPrinter(c.format)
	if perr := printApplication(ctx, rt.repo, p, resp.Application.ID); perr != nil {
		return perr
	}
	if err != nil {
		return fmt.Errorf("could not run application: %w", err)
	}

	return nil
}
