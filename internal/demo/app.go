package demo

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/conduit-lang/stereotype/internal/advice"
	"github.com/conduit-lang/stereotype/internal/annotation"
	"github.com/conduit-lang/stereotype/internal/aspect"
	"github.com/conduit-lang/stereotype/internal/container"
	"github.com/conduit-lang/stereotype/internal/transaction"
)

// App wires the demo components into a container
type App struct {
	store      *annotation.Store
	container  *container.Container
	manager    *transaction.Manager
	users      *UserRepository
	service    *AuthService
	controller *UserController
	login      func(ctx context.Context, svc *AuthService, name, password string) (bool, error)
	logger     *zap.Logger
	tracer     trace.Tracer
	dialect    Dialect
}

// Option configures an App
type Option func(*App)

// WithTracer traces each login
func WithTracer(tracer trace.Tracer) Option {
	return func(a *App) {
		a.tracer = tracer
	}
}

// WithDialect sets the SQL dialect of the repository
func WithDialect(d Dialect) Option {
	return func(a *App) {
		a.dialect = d
	}
}

// WithIsolation sets the isolation level of login transactions
func WithIsolation(level transaction.IsolationLevel) Option {
	return func(a *App) {
		a.manager = a.manager.WithIsolation(level)
	}
}

// NewApp declares the demo stereotypes in store and registers the
// components over db. Call Initialize before use.
func NewApp(store *annotation.Store, db *sql.DB, config *AppConfiguration, logger *zap.Logger, opts ...Option) (*App, error) {
	if store == nil {
		store = annotation.NewStore()
	}
	if config == nil {
		config = DefaultConfiguration()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := Declare(store); err != nil {
		return nil, fmt.Errorf("failed to declare components: %w", err)
	}

	a := &App{
		store:   store,
		manager: transaction.NewManager(db, logger.Named("tx")),
		logger:  logger,
	}
	for _, opt := range opts {
		opt(a)
	}

	a.users = NewUserRepository(db, a.dialect)
	a.service = NewAuthService(a.users, config)
	a.controller = NewUserController(a.users, a.Login)

	chain := []aspect.Advice{
		advice.Tracing(a.tracer),
		advice.Logging(logger),
		advice.Transactional(a.manager.Factory(false), logger),
	}
	a.login = aspect.Wrap(aspect.Chain(chain...), Authenticate,
		aspect.WithName("demo.Authenticate"),
		aspect.WithLogger(logger),
	)

	a.container = container.New(store, logger)
	for _, c := range []any{config, a.users, a.service, a.controller, Authenticate} {
		if err := a.container.RegisterManagedComponent(c); err != nil {
			return nil, err
		}
	}
	return a, nil
}

// Container returns the app's container
func (a *App) Container() *container.Container {
	return a.container
}

// Store returns the annotation store the components are declared in
func (a *App) Store() *annotation.Store {
	return a.store
}

// Users returns the user repository
func (a *App) Users() *UserRepository {
	return a.users
}

// Initialize creates the schema and seeds the configured users
func (a *App) Initialize(ctx context.Context) error {
	return a.container.Initialize(ctx)
}

// Dispose releases the components
func (a *App) Dispose(ctx context.Context) error {
	return a.container.Dispose(ctx)
}

// Login runs the authenticate use case in its own transaction
func (a *App) Login(ctx context.Context, name, password string) (bool, error) {
	return a.login(ctx, a.service, name, password)
}

// Handler returns an HTTP handler serving every registered controller
func (a *App) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(a.logger.Named("http")))
	r.Use(middleware.Recoverer)
	a.container.MountControllers(r)
	return r
}
