package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/alecthomas/kingpin/v2"

	"github.com/applyflow/applyflow/internal/app/resume"
	"github.com/applyflow/applyflow/internal/metrics"
)

type ResumeCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	applicationID string
	answers       []string
	format        string
}

// NewResumeCommand returns the resume command.
func NewResumeCommand(rootCmd *RootCommand, app *kingpin.Application) *ResumeCommand {
	c := &ResumeCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("resume", "Resume a blocked or not started application.")
	c.Cmd.Arg("id", "Application ID.").Required().StringVar(&c.applicationID)
	c.Cmd.Flag("answer", "Answer to store before resuming, as KEY=VALUE (repeatable).").Short('a').StringsVar(&c.answers)
	c.Cmd.Flag("format", "Output format (table, json).").Default(formatTable).EnumVar(&c.format, formatTable, formatJSON)

	return c
}

func (c ResumeCommand) Name() string { return c.Cmd.FullCommand() }

func (c ResumeCommand) Run(ctx context.Context) error {
	answers, err := parseAnswers(c.answers)
	if err != nil {
		return err
	}

	rt, err := c.rootCmd.newRuntime(ctx, metrics.Noop)
	if err != nil {
		return err
	}
	defer rt.Close()

	svc, err := resume.NewService(resume.ServiceConfig{
		Engine:     rt.engine,
		Repository: rt.repo,
		Logger:     c.rootCmd.Logger,
	})
	if err != nil {
		return fmt.Errorf("could not create service: %w", err)
	}

	_, err = svc.Run(ctx, resume.Request{
		ApplicationID: c.applicationID,
		Answers:       answers,
	})
	if perr := printApplication(ctx, rt.repo, c.rootCmd.newPrinter(c.format), c.applicationID); perr != nil && err == nil {
		return perr
	}
	if err != nil {
		return fmt.Errorf("could not resume application: %w", err)
	}

	return nil
}

// parseAnswers parses `KEY=VALUE` answers, later keys override earlier ones.
func parseAnswers(raw []string) (map[string]string, error) {
	answers := make(map[string]string, len(raw))
	for _, kv := range raw {
		key, value, ok := strings.Cut(kv, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid answer %q, must be KEY=VALUE", kv)
		}
		answers[key] = value
	}

	return answers, nil
}
