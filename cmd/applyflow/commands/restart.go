package commands

import (
	"context"
	"fmt"

	"github.com/alecthomas/kingpin/v2"

	"github.com/applyflow/applyflow/internal/app/restart"
	"github.com/applyflow/applyflow/internal/metrics"
)

type RestartCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	applicationID string
	format        string
}

// NewRestartCommand returns the restart command.
func NewRestartCommand(rootCmd *RootCommand, app *kingpin.Application) *RestartCommand {
	c := &RestartCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("restart", "Restart a pending application from its first step with the latest company template.")
	c.Cmd.Arg("id", "Application ID.").Required().StringVar(&c.applicationID)
	c.Cmd.Flag("format", "Output format (table, json).").Default(formatTable).EnumVar(&c.format, formatTable, formatJSON)

	return c
}

func (c RestartCommand) Name() string { return c.Cmd.FullCommand() }

func (c RestartCommand) Run(ctx context.Context) error {
	rt, err := c.rootCmd.newRuntime(ctx, metrics.Noop)
	if err != nil {
		return err
	}
	defer rt.Close()

	svc, err := restart.NewService(restart.ServiceConfig{
		Resolver:   rt.registry,
		Repository: rt.repo,
		Leaser:     rt.leaser,
		Logger:     c.rootCmd.Logger,
	})
	if err != nil {
		return fmt.Errorf("could not create service: %w", err)
	}

	app, err := svc.Run(ctx, restart.Request{ApplicationID: c.applicationID})
	if err != nil {
		return fmt.Errorf("could not restart application: %w", err)
	}

	return printApplication(ctx, rt.repo, c.rootCmd.newPrinter(c.format), app.ID)
}
