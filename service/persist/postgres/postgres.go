package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/log/logrusadapter"
	"github.com/jackc/pgx/v4/pgxpool"

	"github.com/mikeydub/go-union/env"
	"github.com/mikeydub/go-union/service/logger"
	"github.com/mikeydub/go-union/util/retry"

	// register postgres driver
	_ "github.com/jackc/pgx/v4/stdlib"
)

var DefaultConnectRetry = retry.Retry{Base: 2 * time.Second, Cap: 4 * time.Second, Tries: 3}

type ErrRoleDoesNotExist struct {
	role string
}

func (e ErrRoleDoesNotExist) Error() string {
	return fmt.Sprintf("role '%s' does not exist", e.role)
}

type connectionParams struct {
	user     string
	password string
	dbname   string
	host     string
	port     int
	appname  string
	maxConns int32
	retry    *retry.Retry
}

func (c *connectionParams) toConnectionString() string {
	port := c.port
	if port == 0 {
		port = 5432
	}

	connStr := fmt.Sprintf("user=%s dbname=%s host=%s port=%d", c.user, c.dbname, c.host, port)

	// Empty passwords should be omitted so they don't interfere with other parameters
	// (e.g. "password= dbname=something" causes Postgres to ignore the dbname)
	if c.password != "" {
		connStr += fmt.Sprintf(" password=%s", c.password)
	}

	return connStr
}

func newConnectionParamsFromEnv() connectionParams {
	return connectionParams{
		user:     env.GetString("POSTGRES_USER"),
		password: env.GetString("POSTGRES_PASSWORD"),
		dbname:   env.GetString("POSTGRES_DB"),
		host:     env.GetString("POSTGRES_HOST"),
		port:     env.GetInt("POSTGRES_PORT"),
		maxConns: 20,
		retry:    &DefaultConnectRetry,
	}
}

type ConnectionOption func(params *connectionParams)

func WithUser(user string) ConnectionOption {
	return func(params *connectionParams) {
		params.user = user
	}
}

func WithPassword(password string) ConnectionOption {
	return func(params *connectionParams) {
		params.password = password
	}
}

func WithDBName(dbname string) ConnectionOption {
	return func(params *connectionParams) {
		params.dbname = dbname
	}
}

func WithHost(host string) ConnectionOption {
	return func(params *connectionParams) {
		params.host = host
	}
}

func WithPort(port int) ConnectionOption {
	return func(params *connectionParams) {
		params.port = port
	}
}

func WithAppName(appName string) ConnectionOption {
	return func(params *connectionParams) {
		params.appname = appName
	}
}

func WithMaxConns(n int32) ConnectionOption {
	return func(params *connectionParams) {
		params.maxConns = n
	}
}

func WithRetries(r retry.Retry) ConnectionOption {
	return func(params *connectionParams) {
		params.retry = &r
	}
}

func WithNoRetries() ConnectionOption {
	return func(params *connectionParams) {
		params.retry = nil
	}
}

// NewClient creates a database/sql client, used by migrations. By default, it will try to connect 3 times before returning an error.
func NewClient(opts ...ConnectionOption) (*sql.DB, error) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*20)
	defer cancel()

	params := newConnectionParamsFromEnv()
	for _, opt := range opts {
		opt(&params)
	}

	var db *sql.DB

	connectF := func(ctx context.Context) error {
		var err error
		db, err = sql.Open("pgx", params.toConnectionString())
		if err != nil {
			return err
		}
		return db.PingContext(ctx)
	}

	err := connect(ctx, connectF, params.retry)
	if err != nil && strings.Contains(err.Error(), fmt.Sprintf("role \"%s\" does not exist", params.user)) {
		return nil, ErrRoleDoesNotExist{params.user}
	}
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(int(params.maxConns))
	return db, nil
}

// NewPgxClient creates a new pgx pool. By default, it will try to connect 3 times before returning an error.
func NewPgxClient(ctx context.Context, opts ...ConnectionOption) (*pgxpool.Pool, error) {
	params := newConnectionParamsFromEnv()
	for _, opt := range opts {
		opt(&params)
	}

	config, err := pgxpool.ParseConfig(params.toConnectionString())
	if err != nil {
		return nil, fmt.Errorf("could not parse pgx connection string: %w", err)
	}

	if params.appname != "" {
		config.ConnConfig.RuntimeParams["application_name"] = params.appname
	}

	config.ConnConfig.Logger = logrusadapter.NewLogger(logger.For(ctx))
	config.ConnConfig.LogLevel = pgx.LogLevelWarn
	config.MaxConns = params.maxConns

	var pool *pgxpool.Pool

	connectF := func(ctx context.Context) error {
		var err error
		pool, err = pgxpool.ConnectConfig(ctx, config)
		if err != nil {
			return err
		}
		return pool.Ping(ctx)
	}

	if err := connect(ctx, connectF, params.retry); err != nil {
		return nil, fmt.Errorf("could not open database connection: %w", err)
	}

	return pool, nil
}

// MustCreatePgxClient panics when it fails to create a new pgx pool
func MustCreatePgxClient(ctx context.Context, opts ...ConnectionOption) *pgxpool.Pool {
	pool, err := NewPgxClient(ctx, opts...)
	if err != nil {
		logger.For(ctx).WithError(err).Fatal("could not create pgx client")
	}
	return pool
}

func connect(ctx context.Context, f func(context.Context) error, r *retry.Retry) error {
	if r == nil {
		return f(ctx)
	}
	return retry.RetryFunc(ctx, f, func(error) bool { return true }, *r)
}
