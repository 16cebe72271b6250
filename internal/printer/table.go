package printer

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/applyflow/applyflow/internal/app/status"
	"github.com/applyflow/applyflow/internal/model"
)

// TablePrinter prints application information in a table format.
type TablePrinter struct {
	writer io.Writer
}

var _ Printer = (*TablePrinter)(nil)

// NewTablePrinter creates a new table printer.
func NewTablePrinter(w io.Writer) *TablePrinter {
	return &TablePrinter{writer: w}
}

// PrintList prints applications in a table format.
func (t *TablePrinter) PrintList(apps []model.Application) error {
	if len(apps) == 0 {
		return nil
	}

	tw := tabwriter.NewWriter(t.writer, 0, 0, 2, ' ', 0)
	defer tw.Flush()

	now := time.Now()
	fmt.Fprintln(tw, "ID\tCOMPANY\tPOSITION\tSTATUS\tRUN\tPROGRESS\tAGE")
	for _, a := range apps {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			a.ID,
			a.CompanyName,
			orDash(a.Position),
			a.Status,
			a.RunState,
			FormatProgress(a.Progress),
			FormatAge(a.CreatedAt, now),
		)
	}

	return nil
}

// PrintStatus prints the detailed application status.
func (t *TablePrinter) PrintStatus(st status.Status) error {
	a := st.Application
	fmt.Fprintf(t.writer, "ID:         %s\n", a.ID)
	fmt.Fprintf(t.writer, "User:       %s\n", a.UserID)
	fmt.Fprintf(t.writer, "Company:    %s (%s)\n", a.CompanyName, a.CompanyConfigID)
	if a.Position != "" {
		fmt.Fprintf(t.writer, "Position:   %s\n", a.Position)
	}
	fmt.Fprintf(t.writer, "Job URL:    %s\n", a.JobURL)
	fmt.Fprintf(t.writer, "Template:   %s v%d (generation %d)\n", a.Template.ID, a.Template.Version, a.Generation)
	fmt.Fprintf(t.writer, "Status:     %s\n", a.Status)
	fmt.Fprintf(t.writer, "Run:        %s\n", a.RunState)
	fmt.Fprintf(t.writer, "Progress:   %s\n", FormatProgress(a.Progress))
	if a.BlockedReason != "" {
		fmt.Fprintf(t.writer, "Blocked:    %s\n", a.BlockedReason)
	}
	fmt.Fprintf(t.writer, "Created:    %s\n", FormatTimestamp(a.CreatedAt))
	fmt.Fprintf(t.writer, "Updated:    %s\n", FormatTimestamp(a.UpdatedAt))

	if len(st.Steps) > 0 {
		fmt.Fprintln(t.writer)
		tw := tabwriter.NewWriter(t.writer, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "STEP\tSTATUS\tATTEMPT\tACTION\tDETAILS")
		for _, s := range st.Steps {
			if s.Latest == nil {
				fmt.Fprintf(tw, "%s\t-\t-\t-\t-\n", s.Step.ID)
				continue
			}
			fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n",
				s.Step.ID,
				s.Latest.Status,
				s.Latest.Attempt,
				yesNo(s.Latest.RequiresAction),
				orDash(s.Latest.Details),
			)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}

	if len(st.History) > 0 {
		fmt.Fprintln(t.writer)
		return t.PrintSteps(st.History)
	}

	return nil
}

// PrintSteps prints step log entries in a table format.
func (t *TablePrinter) PrintSteps(entries []model.ApplicationStep) error {
	if len(entries) == 0 {
		return nil
	}

	tw := tabwriter.NewWriter(t.writer, 0, 0, 2, ' ', 0)
	defer tw.Flush()

	fmt.Fprintln(tw, "TIME\tGEN\tSTEP\tATTEMPT\tSTATUS\tACTION\tDETAILS")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%d\t%s\t%d\t%s\t%s\t%s\n",
			FormatTimestamp(e.Timestamp),
			e.Generation,
			e.StepID,
			e.Attempt,
			e.Status,
			yesNo(e.RequiresAction),
			orDash(e.Details),
		)
	}

	return nil
}

// PrintCompanies prints company configs in a table format.
func (t *TablePrinter) PrintCompanies(cfgs []model.CompanyConfig) error {
	if len(cfgs) == 0 {
		return nil
	}

	tw := tabwriter.NewWriter(t.writer, 0, 0, 2, ' ', 0)
	defer tw.Flush()

	fmt.Fprintln(tw, "ID\tNAME\tDOMAIN\tTEMPLATE\tSTEPS")
	for _, c := range cfgs {
		steps := make([]string, 0, len(c.Template.Steps))
		for _, s := range c.Template.Steps {
			steps = append(steps, s.ID)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s v%d\t%s\n", c.ID, c.Name, c.DomainPattern, c.Template.ID, c.Template.Version, strings.Join(steps, ","))
	}

	return nil
}

func orDash(s string) string {
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
