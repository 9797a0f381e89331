// Package warehouse connects to the cluster and executes catalog statements
// one at a time on a single connection.
package warehouse

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/sirupsen/logrus"
	_ "github.com/snowflakedb/gosnowflake"

	"starload/internal/catalog"
	"starload/internal/logging"
	"starload/pkg/errors"
)

// DefaultTimeout bounds a single statement when no timeout is configured.
const DefaultTimeout = 10 * time.Minute

// Executor runs rendered statements against a warehouse.
type Executor interface {
	Exec(ctx context.Context, stmt catalog.Statement) (Result, error)
	QueryInt(ctx context.Context, stmt catalog.Statement) (int64, error)
}

// PasswordSource looks up a stored password for an account.
type PasswordSource interface {
	Lookup(account string) (string, error)
}

// Result describes one executed statement.
type Result struct {
	RowsAffected int64
	Duration     time.Duration
}

// Config holds warehouse connection configuration
type Config struct {
	DSN      string
	Password string
	Timeout  time.Duration

	// Passwords is consulted when neither the DSN nor Password carries one.
	Passwords PasswordSource
}

// Service provides warehouse operations
type Service struct {
	db             *sql.DB
	config         Config
	endpoint       *Endpoint
	connected      bool
	circuitBreaker *errors.CircuitBreaker
	retry          *errors.RetryConfig
	open           func(driver, dsn string) (*sql.DB, error)
	log            *logrus.Entry
}

// NewService creates a new warehouse service
func NewService(config Config) *Service {
	return &Service{
		config:         config,
		circuitBreaker: errors.NewCircuitBreaker("warehouse", 5, 30*time.Second),
		retry:          errors.DefaultRetryConfig(),
		open:           sql.Open,
		log:            logging.For("warehouse"),
	}
}

// Endpoint resolves the configured DSN, including the password lookup.
func (s *Service) Endpoint() (*Endpoint, error) {
	if s.endpoint != nil {
		return s.endpoint, nil
	}

	e, err := ParseDSN(s.config.DSN, s.config.Password)
	if err != nil {
		return nil, err
	}

	if !e.HasPassword() && s.config.Passwords != nil && e.User != "" {
		password, err := s.config.Passwords.Lookup(e.Account())
		if err != nil {
			s.log.WithError(err).WithField("account", e.Account()).Debug("no stored password")
		} else if password != "" {
			if e, err = ParseDSN(s.config.DSN, password); err != nil {
				return nil, err
			}
		}
	}

	s.endpoint = e
	return e, nil
}

// Connect establishes the warehouse connection
func (s *Service) Connect(ctx context.Context) error {
	if s.connected {
		return nil
	}

	e, err := s.Endpoint()
	if err != nil {
		return err
	}

	return s.circuitBreaker.Execute(ctx, func() error {
		return errors.Retry(ctx, s.retry, func(ctx context.Context) error {
			db, err := s.open(e.Driver, e.DSN)
			if err != nil {
				return errors.ConnectionError("Failed to open warehouse connection", err).
					WithContext("host", e.Host)
			}

			// Statements depend on each other's effects; keep them on one session.
			db.SetMaxOpenConns(1)
			db.SetMaxIdleConns(1)
			db.SetConnMaxLifetime(0)

			connCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
			defer cancel()

			if err := db.PingContext(connCtx); err != nil {
				_ = db.Close()

				lower := strings.ToLower(err.Error())
				if strings.Contains(lower, "authentication") || strings.Contains(lower, "password") ||
					strings.Contains(lower, "incorrect username") {
					return errors.Wrap(err, errors.ErrCodeAuthenticationFailed, "Authentication failed").
						WithContext("user", e.User).
						WithSuggestions(
							"Verify the user in CLUSTER.DSN and its password",
							"Run 'starload login' to store the password in the OS keyring",
						)
				}

				return errors.ConnectionError("Failed to connect to warehouse", err).
					WithContext("host", e.Host).
					AsRecoverable()
			}

			s.db = db
			s.connected = true
			s.log.WithFields(logrus.Fields{
				"host":     e.Host,
				"database": e.Database,
				"dialect":  e.Dialect,
			}).Info("connected")
			return nil
		})
	})
}

// Close closes the database connection
func (s *Service) Close() error {
	if !s.connected {
		return nil
	}

	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close connection: %w", err)
	}

	s.connected = false
	return nil
}

// Ping checks the connection is still usable.
func (s *Service) Ping(ctx context.Context) error {
	if !s.connected {
		if err := s.Connect(ctx); err != nil {
			return err
		}
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	return s.db.PingContext(ctx)
}

// Exec runs one statement and reports the rows it affected.
func (s *Service) Exec(ctx context.Context, stmt catalog.Statement) (Result, error) {
	if !s.connected {
		return Result{}, notConnected()
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	start := time.Now()
	res, err := s.db.ExecContext(ctx, stmt.SQL)
	elapsed := time.Since(start)
	if err != nil {
		return Result{Duration: elapsed}, statementError(stmt, err)
	}

	result := Result{Duration: elapsed}
	if n, err := res.RowsAffected(); err == nil {
		result.RowsAffected = n
	}

	s.log.WithFields(logrus.Fields{
		"statement": stmt.Name,
		"rows":      result.RowsAffected,
		"duration":  elapsed.Round(time.Millisecond).String(),
	}).Debug("executed")
	return result, nil
}

// QueryInt runs a query returning a single integer. NULL reads as zero.
func (s *Service) QueryInt(ctx context.Context, stmt catalog.Statement) (int64, error) {
	if !s.connected {
		return 0, notConnected()
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var value sql.NullInt64
	if err := s.db.QueryRowContext(ctx, stmt.SQL).Scan(&value); err != nil {
		return 0, statementError(stmt, err)
	}
	return value.Int64, nil
}

func (s *Service) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := s.config.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	return context.WithTimeout(ctx, timeout)
}

func notConnected() error {
	return errors.New(errors.ErrCodeConnectionFailed, "Not connected to warehouse").
		WithSuggestions("Call Connect() before executing statements")
}

func statementError(stmt catalog.Statement, err error) error {
	return errors.SQLError(fmt.Sprintf("Statement %s failed", stmt.Name), stmt.SQL, err).
		WithContext("statement", stmt.Name).
		WithContext("stage", string(stmt.Stage)).
		WithContext("table", stmt.Table)
}
