package commands

import (
	"context"
	"fmt"

	"github.com/alecthomas/kingpin/v2"

	"github.com/applyflow/applyflow/internal/app/mark"
	"github.com/applyflow/applyflow/internal/model"
)

type MarkCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	applicationID string
	status        string
	format        string
}

// NewMarkCommand returns the mark command.
func NewMarkCommand(rootCmd *RootCommand, app *kingpin.Application) *MarkCommand {
	c := &MarkCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("mark", "Set the business status of an application after hearing from the company.")
	c.Cmd.Arg("id", "Application ID.").Required().StringVar(&c.applicationID)
	c.Cmd.Arg("status", "New status.").Required().EnumVar(&c.status,
		string(model.ApplicationStatusInterview),
		string(model.ApplicationStatusRejected),
		string(model.ApplicationStatusOffer),
	)
	c.Cmd.Flag("format", "Output format (table, json).").Default(formatTable).EnumVar(&c.format, formatTable, formatJSON)

	return c
}

func (c MarkCommand) Name() string { return c.Cmd.FullCommand() }

func (c MarkCommand) Run(ctx context.Context) error {
	repo, closeRepo, err := c.rootCmd.newRepository(ctx)
	if err != nil {
		return err
	}
	defer closeRepo()

	coord, err := c.rootCmd.newCoordination(ctx, repo)
	if err != nil {
		return err
	}
	defer coord.close()

	svc, err := mark.NewService(mark.ServiceConfig{
		Repository: repo,
		Notifier:   coord.notifier,
		Logger:     c.rootCmd.Logger,
	})
	if err != nil {
		return fmt.Errorf("could not create service: %w", err)
	}

	app, err := svc.Run(ctx, mark.Request{
		ApplicationID: c.applicationID,
		Status:        model.ApplicationStatus(c.status),
	})
	if err != nil {
		return fmt.Errorf("could not mark application: %w", err)
	}

	return printApplication(ctx, repo, c.rootCmd.newPrinter(c.format), app.ID)
}
