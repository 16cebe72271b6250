package commands

import (
	"context"
	"fmt"

	"github.com/alecthomas/kingpin/v2"
)

type CompaniesCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	format string
}

// NewCompaniesCommand returns the companies command.
func NewCompaniesCommand(rootCmd *RootCommand, app *kingpin.Application) *CompaniesCommand {
	c := &CompaniesCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("companies", "List the loaded company portal configurations.")
	c.Cmd.Flag("format", "Output format (table, json).").Default(formatTable).EnumVar(&c.format, formatTable, formatJSON)

	return c
}

func (c CompaniesCommand) Name() string { return c.Cmd.FullCommand() }

func (c CompaniesCommand) Run(ctx context.Context) error {
	reg, err := c.rootCmd.newRegistry(ctx)
	if err != nil {
		return err
	}

	if err := c.rootCmd.newPrinter(c.format).PrintCompanies(reg.List()); err != nil {
		return fmt.Errorf("could not print companies: %w", err)
	}

	return nil
}
