package commands

import (
	"context"
	"fmt"

	"github.com/applyflow/applyflow/internal/app/status"
	"github.com/applyflow/applyflow/internal/printer"
	"github.com/applyflow/applyflow/internal/storage"
)

// printApplication prints the current status of an application after a command changed it.
func printApplication(ctx context.Context, repo storage.Repository, p printer.Printer, applicationID string) error {
	svc, err := status.NewService(status.ServiceConfig{Repository: repo})
	if err != nil {
		return fmt.Errorf("could not create service: %w", err)
	}

	// A cancelled run still leaves the application blocked, it should be printed.
	st, err := svc.Run(context.WithoutCancel(ctx), status.Request{ApplicationID: applicationID})
	if err != nil {
		return fmt.Errorf("could not get application status: %w", err)
	}

	if err := p.PrintStatus(*st); err != nil {
		return fmt.Errorf("could not print status: %w", err)
	}

	return nil
}
