package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/oklog/run"

	"github.com/applyflow/applyflow/internal/api"
	"github.com/applyflow/applyflow/internal/app/list"
	"github.com/applyflow/applyflow/internal/app/mark"
	"github.com/applyflow/applyflow/internal/app/restart"
	"github.com/applyflow/applyflow/internal/app/resume"
	"github.com/applyflow/applyflow/internal/app/status"
	"github.com/applyflow/applyflow/internal/app/submit"
	"github.com/applyflow/applyflow/internal/conventions"
	metricsprometheus "github.com/applyflow/applyflow/internal/metrics/prometheus"
)

type ServeCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	listenAddr      string
	shutdownTimeout time.Duration
}

// NewServeCommand returns the serve command.
func NewServeCommand(rootCmd *RootCommand, app *kingpin.Application) *ServeCommand {
	c := &ServeCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("serve", "Serve the HTTP API.")
	c.Cmd.Flag("listen-address", "Address the HTTP API listens on.").Default(conventions.DefaultListenAddress).StringVar(&c.listenAddr)
	c.Cmd.Flag("shutdown-timeout", "Time to wait for in flight requests when stopping.").Default("30s").DurationVar(&c.shutdownTimeout)

	return c
}

func (c ServeCommand) Name() string { return c.Cmd.FullCommand() }

func (c ServeCommand) Run(ctx context.Context) error {
	logger := c.rootCmd.Logger

	reg := metricsprometheus.NewRegistry()
	rec, err := metricsprometheus.NewRecorder(reg)
	if err != nil {
		return fmt.Errorf("could not create metrics recorder: %w", err)
	}

	rt, err := c.rootCmd.newRuntime(ctx, rec)
	if err != nil {
		return err
	}
	defer rt.Close()

	submitSvc, err := submit.NewService(submit.ServiceConfig{Resolver: rt.registry, Repository: rt.repo, Engine: rt.engine, Logger: logger})
	if err != nil {
		return fmt.Errorf("could not create submit service: %w", err)
	}
	resumeSvc, err := resume.NewService(resume.ServiceConfig{Engine: rt.engine, Repository: rt.repo, Logger: logger})
	if err != nil {
		return fmt.Errorf("could not create resume service: %w", err)
	}
	restartSvc, err := restart.NewService(restart.ServiceConfig{Resolver: rt.registry, Repository: rt.repo, Leaser: rt.leaser, Logger: logger})
	if err != nil {
		return fmt.Errorf("could not create restart service: %w", err)
	}
	markSvc, err := mark.NewService(mark.ServiceConfig{Repository: rt.repo, Notifier: rt.notifier, Logger: logger})
	if err != nil {
		return fmt.Errorf("could not create mark service: %w", err)
	}
	statusSvc, err := status.NewService(status.ServiceConfig{Repository: rt.repo, Logger: logger})
	if err != nil {
		return fmt.Errorf("could not create status service: %w", err)
	}
	listSvc, err := list.NewService(list.ServiceConfig{Repository: rt.repo, Logger: logger})
	if err != nil {
		return fmt.Errorf("could not create list service: %w", err)
	}

	handler, err := api.NewHandler(api.HandlerConfig{
		Submit:    submitSvc,
		Resume:    resumeSvc,
		Restart:   restartSvc,
		Mark:      markSvc,
		Status:    statusSvc,
		List:      listSvc,
		Companies: rt.registry,
		Metrics:   metricsprometheus.Handler(reg),
		Logger:    logger,
	})
	if err != nil {
		return fmt.Errorf("could not create api handler: %w", err)
	}

	server := &http.Server{
		Addr:              c.listenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	var g run.Group

	// HTTP server.
	g.Add(
		func() error {
			logger.Infof("HTTP API listening on %s", c.listenAddr)
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server failed: %w", err)
			}
			return nil
		},
		func(_ error) {
			sctx, cancel := context.WithTimeout(context.Background(), c.shutdownTimeout)
			defer cancel()
			if err := server.Shutdown(sctx); err != nil {
				logger.Errorf("could not shut down http server: %s", err)
			}
		},
	)

	// Stop when the command context ends.
	{
		ctx, cancel := context.WithCancel(ctx)
		g.Add(
			func() error {
				<-ctx.Done()
				return nil
			},
			func(_ error) {
				cancel()
			},
		)
	}

	return g.Run()
}
