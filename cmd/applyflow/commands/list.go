package commands

import (
	"context"
	"fmt"

	"github.com/alecthomas/kingpin/v2"

	"github.com/applyflow/applyflow/internal/app/list"
	"github.com/applyflow/applyflow/internal/model"
)

type ListCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	userID         string
	statusFilter   string
	runStateFilter string
	format         string
}

// NewListCommand returns the list command.
func NewListCommand(rootCmd *RootCommand, app *kingpin.Application) *ListCommand {
	c := &ListCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("list", "List the applications of a user.")
	c.Cmd.Flag("user", "User that applied.").Short('u').Required().StringVar(&c.userID)
	c.Cmd.Flag("status", "Filter by status.").EnumVar(&c.statusFilter,
		string(model.ApplicationStatusPending),
		string(model.ApplicationStatusApplied),
		string(model.ApplicationStatusInterview),
		string(model.ApplicationStatusRejected),
		string(model.ApplicationStatusOffer),
	)
	c.Cmd.Flag("run-state", "Filter by run state.").EnumVar(&c.runStateFilter,
		string(model.RunStateNotStarted),
		string(model.RunStateRunning),
		string(model.RunStateBlocked),
		string(model.RunStateCompleted),
		string(model.RunStateFailed),
	)
	c.Cmd.Flag("format", "Output format (table, json).").Default(formatTable).EnumVar(&c.format, formatTable, formatJSON)

	return c
}

func (c ListCommand) Name() string { return c.Cmd.FullCommand() }

func (c ListCommand) Run(ctx context.Context) error {
	req := list.Request{UserID: c.userID}
	if c.statusFilter != "" {
		s := model.ApplicationStatus(c.statusFilter)
		req.StatusFilter = &s
	}
	if c.runStateFilter != "" {
		rs := model.RunState(c.runStateFilter)
		req.RunStateFilter = &rs
	}

	repo, closeRepo, err := c.rootCmd.newRepository(ctx)
	if err != nil {
		return err
	}
	defer closeRepo()

	svc, err := list.NewService(list.ServiceConfig{
		Repository: repo,
		Logger:     c.rootCmd.Logger,
	})
	if err != nil {
		return fmt.Errorf("could not create service: %w", err)
	}

	apps, err := svc.Run(ctx, req)
	if err != nil {
		return fmt.Errorf("could not list applications: %w", err)
	}

	if err := c.rootCmd.newPrinter(c.format).PrintList(apps); err != nil {
		return fmt.Errorf("could not print list: %w", err)
	}

	return nil
}
