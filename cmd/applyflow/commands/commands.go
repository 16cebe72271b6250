package commands

import (
	"context"
	"io"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"k8s.io/client-go/util/homedir"

	"github.com/applyflow/applyflow/internal/conventions"
	"github.com/applyflow/applyflow/internal/log"
	"github.com/applyflow/applyflow/internal/printer"
)

const (
	// LoggerTypeDefault is the logger default type.
	LoggerTypeDefault = "default"
	// LoggerTypeJSON is the logger json type.
	LoggerTypeJSON = "json"

	// StorageSQLite stores applications in a local SQLite database.
	StorageSQLite = "sqlite"
	// StoragePostgres stores applications in a Postgres database.
	StoragePostgres = "postgres"
	// StorageMemory keeps applications in memory, they are lost when the process ends.
	StorageMemory = "memory"

	formatTable = "table"
	formatJSON  = "json"
)

// Command represents an application command, all commands that want to be executed
// should implement and setup on main.
type Command interface {
	Name() string
	Run(ctx context.Context) error
}

// RootCommand represents the root command configuration and global configuration
// for all the commands.
type RootCommand struct {
	// Global flags.
	Debug      bool
	NoLog      bool
	NoColor    bool
	LoggerType string

	// Data flags.
	DataDir         string
	Storage         string
	DBPath          string
	PostgresURL     string
	CompaniesDir    string
	FallbackCompany string
	ProfilesDir     string

	// Coordination flags, Redis is optional.
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Engine flags.
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	StepTimeout    time.Duration
	RunTimeout     time.Duration

	// Portal flags.
	PortalRPS          float64
	PortalBurst        int
	BreakerFailures    uint32
	BreakerOpenTimeout time.Duration
	FakeLatency        time.Duration

	// Global instances.
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
	Logger log.Logger
}

// NewRootCommand initializes the main root configuration.
func NewRootCommand(app *kingpin.Application) *RootCommand {
	c := &RootCommand{}

	app.Flag("debug", "Enable debug mode.").BoolVar(&c.Debug)
	app.Flag("no-log", "Disable logger.").BoolVar(&c.NoLog)
	app.Flag("no-color", "Disable logger color.").BoolVar(&c.NoColor)
	app.Flag("logger", "Selects the logger type.").Default(LoggerTypeDefault).EnumVar(&c.LoggerType, LoggerTypeDefault, LoggerTypeJSON)

	app.Flag("data-dir", "Directory with the database, company configs and profiles.").Default(conventions.DataDir(homedir.HomeDir())).StringVar(&c.DataDir)
	app.Flag("storage", "Storage backend.").Default(StorageSQLite).EnumVar(&c.Storage, StorageSQLite, StoragePostgres, StorageMemory)
	app.Flag("db-path", "Path to the SQLite database file (defaults to the data dir).").StringVar(&c.DBPath)
	app.Flag("postgres-url", "Postgres connection URL, required with postgres storage.").StringVar(&c.PostgresURL)
	app.Flag("companies-dir", "Directory with the company portal YAML configs (defaults to the data dir).").StringVar(&c.CompaniesDir)
	app.Flag("fallback-company", "Company config id used for job URLs without a matching config.").StringVar(&c.FallbackCompany)
	app.Flag("profiles-dir", "Directory with the `<user-id>.yaml` profiles (defaults to the data dir).").StringVar(&c.ProfilesDir)

	app.Flag("redis-addr", "Redis address for distributed leases and notifications, disabled when empty.").StringVar(&c.RedisAddr)
	app.Flag("redis-password", "Redis password.").StringVar(&c.RedisPassword)
	app.Flag("redis-db", "Redis database.").Default("0").IntVar(&c.RedisDB)

	app.Flag("max-attempts", "Attempts of a step with transient errors before blocking.").Default("3").IntVar(&c.MaxAttempts)
	app.Flag("initial-backoff", "Wait after the first failed step attempt, doubled on every attempt.").Default("1s").DurationVar(&c.InitialBackoff)
	app.Flag("max-backoff", "Maximum wait between step attempts.").Default("30s").DurationVar(&c.MaxBackoff)
	app.Flag("step-timeout", "Timeout of a single portal step execution.").Default("2m").DurationVar(&c.StepTimeout)
	app.Flag("run-timeout", "Timeout of a whole application run, 0 disables it.").Default("0s").DurationVar(&c.RunTimeout)

	app.Flag("portal-rps", "Step executions per second allowed per portal domain.").Default("1").Float64Var(&c.PortalRPS)
	app.Flag("portal-burst", "Step execution burst allowed per portal domain.").Default("1").IntVar(&c.PortalBurst)
	app.Flag("breaker-failures", "Consecutive portal failures that open the circuit of a domain.").Default("5").Uint32Var(&c.BreakerFailures)
	app.Flag("breaker-open-timeout", "Time an open portal circuit waits before probing again.").Default("30s").DurationVar(&c.BreakerOpenTimeout)
	app.Flag("fake-latency", "Latency of the scripted portal driver steps.").Default("0s").DurationVar(&c.FakeLatency)

	return c
}

func (c RootCommand) dbPath() string {
	if c.DBPath != "" {
		return c.DBPath
	}
	return conventions.DBPath(c.DataDir)
}

func (c RootCommand) companiesDir() string {
	if c.CompaniesDir != "" {
		return c.CompaniesDir
	}
	return conventions.CompaniesPath(c.DataDir)
}

func (c RootCommand) profilesDir() string {
	if c.ProfilesDir != "" {
		return c.ProfilesDir
	}
	return conventions.ProfilesPath(c.DataDir)
}

func (c RootCommand) newPrinter(format string) printer.Printer {
	if format == formatJSON {
		return printer.NewJSONPrinter(c.Stdout)
	}
	return printer.NewTablePrinter(c.Stdout)
}
