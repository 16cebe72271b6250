package commands

import (
	"context"
	"fmt"

	"github.com/alecthomas/kingpin/v2"

	"github.com/applyflow/applyflow/internal/app/status"
)

type LogsCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	applicationID string
	format        string
}

// NewLogsCommand returns the logs command.
func NewLogsCommand(rootCmd *RootCommand, app *kingpin.Application) *LogsCommand {
	c := &LogsCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("logs", "Show the step log of an application.")
	c.Cmd.Arg("id", "Application ID.").Required().StringVar(&c.applicationID)
	c.Cmd.Flag("format", "Output format (table, json).").Default(formatTable).EnumVar(&c.format, formatTable, formatJSON)

	return c
}

func (c LogsCommand) Name() string { return c.Cmd.FullCommand() }

func (c LogsCommand) Run(ctx context.Context) error {
	repo, closeRepo, err := c.rootCmd.newRepository(ctx)
	if err != nil {
		return err
	}
	defer closeRepo()

	svc, err := status.NewService(status.ServiceConfig{
		Repository: repo,
		Logger:     c.rootCmd.Logger,
	})
	if err != nil {
		return fmt.Errorf("could not create service: %w", err)
	}

	st, err := svc.Run(ctx, status.Request{
		ApplicationID: c.applicationID,
		History:       true,
	})
	if err != nil {
		return fmt.Errorf("could not get application step log: %w", err)
	}

	if err := c.rootCmd.newPrinter(c.format).PrintSteps(st.History); err != nil {
		return fmt.Errorf("could not print step log: %w", err)
	}

	return nil
}
