// Package demo is a small login application built from stereotyped
// components. The CLI uses it to show the annotation store, the container
// and the transactional advice working together.
package demo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/conduit-lang/stereotype/internal/annotation"
	"github.com/conduit-lang/stereotype/internal/stereotype"
	"github.com/conduit-lang/stereotype/internal/transaction"
)

var (
	// ErrUserNotFound is returned when no user has the given name
	ErrUserNotFound = errors.New("user not found")
	// ErrUserExists is returned when registering a taken name
	ErrUserExists = errors.New("user already exists")
)

// InvalidUserError reports a user name that cannot be looked up
type InvalidUserError struct {
	Name string
}

func (e *InvalidUserError) Error() string {
	return fmt.Sprintf("invalid user name: %s", e.Name)
}

// ValidateName rejects empty names and names with punctuation
func ValidateName(name string) error {
	if name == "" || strings.ContainsAny(name, "?!*%;'\" ") {
		return &InvalidUserError{Name: name}
	}
	return nil
}

// AppConfiguration holds the demo's settings
type AppConfiguration struct {
	// BcryptCost is the cost used to hash passwords
	BcryptCost int
	// Users are seeded at startup, name to password
	Users map[string]string
}

// DefaultConfiguration seeds the user John with password 1234
func DefaultConfiguration() *AppConfiguration {
	return &AppConfiguration{
		BcryptCost: bcrypt.DefaultCost,
		Users:      map[string]string{"John": "1234"},
	}
}

// querier is satisfied by *sql.DB and *sql.Tx
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Dialect adapts the repository's SQL to a database
type Dialect int

const (
	SQLite Dialect = iota
	Postgres
)

// DialectFor returns the dialect of a database/sql driver name
func DialectFor(driver string) Dialect {
	switch driver {
	case "pgx", "postgres":
		return Postgres
	default:
		return SQLite
	}
}

// rebind rewrites ? placeholders as $1, $2, ... for Postgres
func (d Dialect) rebind(query string) string {
	if d != Postgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (d Dialect) serial() string {
	if d == Postgres {
		return "SERIAL PRIMARY KEY"
	}
	return "INTEGER PRIMARY KEY AUTOINCREMENT"
}

// UserRepository stores users and login attempts
type UserRepository struct {
	db      *sql.DB
	dialect Dialect
}

// NewUserRepository creates a repository over db
func NewUserRepository(db *sql.DB, dialect Dialect) *UserRepository {
	return &UserRepository{db: db, dialect: dialect}
}

// Initialize creates the schema
func (r *UserRepository) Initialize(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS users (
			name TEXT PRIMARY KEY,
			password_hash TEXT NOT NULL
		);
		CREATE TABLE IF NOT EXISTS login_attempts (
			id `+r.dialect.serial()+`,
			name TEXT NOT NULL
		);
	`)
	if err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// conn returns the unit of work's transaction when ctx carries one
func (r *UserRepository) conn(ctx context.Context) querier {
	if tx, ok := transaction.TxFromContext(ctx); ok {
		return tx
	}
	return r.db
}

// Create inserts a user
func (r *UserRepository) Create(ctx context.Context, name string, hash []byte) error {
	_, err := r.conn(ctx).ExecContext(ctx, r.dialect.rebind("INSERT INTO users (name, password_hash) VALUES (?, ?)"), name, string(hash))
	if err != nil {
		if msg := strings.ToLower(err.Error()); strings.Contains(msg, "unique") || strings.Contains(msg, "duplicate key") {
			return fmt.Errorf("%w: %s", ErrUserExists, name)
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// PasswordHash returns the stored hash for name
func (r *UserRepository) PasswordHash(ctx context.Context, name string) ([]byte, error) {
	var hash string
	err := r.conn(ctx).QueryRowContext(ctx, r.dialect.rebind("SELECT password_hash FROM users WHERE name = ?"), name).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrUserNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	return []byte(hash), nil
}

// Exists reports whether a user named name exists
func (r *UserRepository) Exists(ctx context.Context, name string) (bool, error) {
	_, err := r.PasswordHash(ctx, name)
	if errors.Is(err, ErrUserNotFound) {
		return false, nil
	}
	return err == nil, err
}

// RecordAttempt stores a login attempt
func (r *UserRepository) RecordAttempt(ctx context.Context, name string) error {
	_, err := r.conn(ctx).ExecContext(ctx, r.dialect.rebind("INSERT INTO login_attempts (name) VALUES (?)"), name)
	if err != nil {
		return fmt.Errorf("failed to record login attempt: %w", err)
	}
	return nil
}

// Attempts counts stored login attempts
func (r *UserRepository) Attempts(ctx context.Context) (int, error) {
	var n int
	err := r.conn(ctx).QueryRowContext(ctx, "SELECT COUNT(*) FROM login_attempts").Scan(&n)
	return n, err
}

// AuthService checks credentials
type AuthService struct {
	users  *UserRepository
	config *AppConfiguration
	logger *zap.Logger
}

// NewAuthService creates a service over users
func NewAuthService(users *UserRepository, config *AppConfiguration) *AuthService {
	return &AuthService{users: users, config: config, logger: zap.NewNop()}
}

// SetLogger receives the container's logger
func (s *AuthService) SetLogger(logger *zap.Logger) {
	s.logger = logger
}

// Initialize seeds the configured users
func (s *AuthService) Initialize(ctx context.Context) error {
	for name, password := range s.config.Users {
		exists, err := s.users.Exists(ctx, name)
		if err != nil {
			return err
		}
		if exists {
			continue
		}
		if err := s.Register(ctx, name, password); err != nil {
			return err
		}
	}
	return nil
}

// Register hashes password and stores the user
func (s *AuthService) Register(ctx context.Context, name, password string) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.config.BcryptCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	if err := s.users.Create(ctx, name, hash); err != nil {
		return err
	}
	s.logger.Debug("registered user", zap.String("user", name))
	return nil
}

// Authenticate reports whether password matches name's stored hash. Unknown
// users authenticate as false; invalid names are errors.
func (s *AuthService) Authenticate(ctx context.Context, name, password string) (bool, error) {
	if err := ValidateName(name); err != nil {
		return false, err
	}

	hash, err := s.users.PasswordHash(ctx, name)
	if errors.Is(err, ErrUserNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	err = bcrypt.CompareHashAndPassword(hash, []byte(password))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to compare password: %w", err)
	}
	return true, nil
}

// Authenticate is the login use case: it records the attempt and checks the
// credentials. It is meant to run inside a unit of work so that an attempt
// with an invalid name is rolled back.
func Authenticate(ctx context.Context, svc *AuthService, name, password string) (bool, error) {
	if err := svc.users.RecordAttempt(ctx, name); err != nil {
		return false, err
	}
	return svc.Authenticate(ctx, name, password)
}

// Declare attaches the demo's stereotypes to store
func Declare(store *annotation.Store) error {
	if _, err := stereotype.DeclareIn[AppConfiguration](store, stereotype.Configuration{Name: "app"}); err != nil {
		return err
	}
	if _, err := stereotype.DeclareIn[UserRepository](store, stereotype.Repository{Name: "users", Entity: "User"}); err != nil {
		return err
	}
	if _, err := stereotype.DeclareIn[AuthService](store, stereotype.Service{Name: "auth"}); err != nil {
		return err
	}
	if _, err := stereotype.DeclareIn[UserController](store, stereotype.Controller{Prefix: "/users"}); err != nil {
		return err
	}
	if _, err := stereotype.FuncIn(store, Authenticate, stereotype.UseCase{Name: "authenticate"}); err != nil {
		return err
	}
	return nil
}
