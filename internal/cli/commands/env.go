package commands

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	// Drivers selectable with database.driver
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/conduit-lang/stereotype/internal/annotation"
	"github.com/conduit-lang/stereotype/internal/cli/ui"
	"github.com/conduit-lang/stereotype/internal/config"
	"github.com/conduit-lang/stereotype/internal/demo"
	"github.com/conduit-lang/stereotype/internal/logging"
)

// environment is what a command needs to work with the demo components
type environment struct {
	cfg    *config.Config
	logger *zap.Logger
	store  *annotation.Store
	db     *sql.DB
	app    *demo.App
}

// setup loads the configuration, builds the logger and annotation store,
// opens the database and initializes the demo application. decorate, if
// set, wraps the configured logger.
func setup(ctx context.Context, cmd *cobra.Command, opts *globalOptions, decorate func(*zap.Logger) *zap.Logger) (*environment, error) {
	cfg, err := config.LoadFrom(opts.configDir)
	if err != nil {
		fmt.Fprint(cmd.ErrOrStderr(), ui.ConfigError(err.Error(), opts.noColor))
		return nil, err
	}

	logger := logging.New(cfg.Log)
	if decorate != nil {
		logger = decorate(logger)
	}

	store := annotation.NewStore(
		annotation.WithPolicy(cfg.Policy()),
		annotation.WithLogger(logger.Named("annotation")),
	)
	annotation.SetDefault(store)

	db, err := openDB(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}

	app, err := demo.NewApp(store, db, demo.DefaultConfiguration(), logger,
		demo.WithDialect(demo.DialectFor(cfg.Database.Driver)),
		demo.WithTracer(otel.Tracer("github.com/conduit-lang/stereotype")),
	)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := app.Initialize(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize components: %w", err)
	}

	return &environment{cfg: cfg, logger: logger, store: store, db: db, app: app}, nil
}

// Close disposes the components and closes the database
func (e *environment) Close(ctx context.Context) error {
	err := errors.Join(e.app.Dispose(ctx), e.db.Close())
	_ = e.logger.Sync()
	return err
}

func openDB(ctx context.Context, cfg config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open(cfg.Driver, cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Every connection to :memory: is a different database
	if cfg.Driver == "sqlite3" && cfg.URL == ":memory:" {
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

func newKeyValue(cmd *cobra.Command) *ui.KeyValueTable {
	return ui.NewKeyValueTable(cmd.OutOrStdout(), noColor(cmd))
}

func noColor(cmd *cobra.Command) bool {
	v, _ := cmd.Flags().GetBool("no-color")
	return v
}
