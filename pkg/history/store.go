// Package history records finished waits in a relational database,
// so that the outcome and duration of past tasks stay queryable.
package history

import (
	"context"
	"net"
	"net/url"
	"strconv"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/icinga/icinga-go-library/backoff"
	"github.com/icinga/icinga-go-library/logging"
	"github.com/icinga/icinga-go-library/retry"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/taskwait/taskwait/pkg/taskwait"
	schemamysql "github.com/taskwait/taskwait/schema/mysql"
	schemapgsql "github.com/taskwait/taskwait/schema/pgsql"
)

// cleanupCount limits how many rows a single cleanup statement removes,
// keeping individual statements short-lived.
const cleanupCount = 5000

// Row is a single recorded wait.
type Row struct {
	Uuid   string    `db:"uuid"`
	Task   string    `db:"task"`
	Status string    `db:"status"`
	Start  time.Time `db:"start_time"`
	End    time.Time `db:"end_time"`
}

// Store writes wait results to a database.
type Store struct {
	db     *sqlx.DB
	driver string
	logger *logging.Logger
}

// NewStoreFromConfig returns a new Store connected per the given Config.
func NewStoreFromConfig(c *Config, logger *logging.Logger) (*Store, error) {
	if err := c.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid history configuration")
	}

	driver, dsn, err := buildDSN(c)
	if err != nil {
		return nil, err
	}

	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, errors.Wrap(err, "can't open history database")
	}

	return &Store{db: db, driver: driver, logger: logger}, nil
}

// buildDSN translates c into a driver name and data source name.
func buildDSN(c *Config) (string, string, error) {
	switch c.Type {
	case "mysql":
		config := mysql.NewConfig()

		config.User = c.User
		config.Passwd = c.Password

		config.Net = "tcp"
		port := c.Port
		if port == 0 {
			port = 3306
		}
		config.Addr = net.JoinHostPort(c.Host, strconv.Itoa(port))

		config.DBName = c.Database
		config.Timeout = time.Minute
		config.ParseTime = true

		return "mysql", config.FormatDSN(), nil
	case "pgsql":
		uri := &url.URL{
			Scheme: "postgres",
			User:   url.UserPassword(c.User, c.Password),
			Path:   "/" + url.PathEscape(c.Database),
		}

		query := url.Values{
			"connect_timeout": {"60"},

			// Host and port can alternatively be specified in the query string. lib/pq can't parse the connection URI
			// if a Unix domain socket path is specified in the host part of the URI, therefore always use the query
			// string. See also https://github.com/lib/pq/issues/796
			"host": {c.Host},
		}
		if c.Port != 0 {
			query["port"] = []string{strconv.Itoa(c.Port)}
		}

		uri.RawQuery = query.Encode()

		return "postgres", uri.String(), nil
	default:
		return "", "", unknownDbType(c.Type)
	}
}

// Setup creates the history schema unless the task_history table already exists.
func (s *Store) Setup(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "SELECT 1 FROM task_history WHERE 1 = 0"); err == nil {
		return nil
	}

	schema := schemamysql.Schema
	if s.driver == "postgres" {
		schema = schemapgsql.Schema
	}

	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return errors.Wrap(err, "can't create history schema")
	}

	s.logger.Info("Created wait history schema")

	return nil
}

// Insert records one finished wait.
func (s *Store) Insert(ctx context.Context, task string, result taskwait.Result) error {
	row := Row{
		Uuid:   uuid.NewString(),
		Task:   task,
		Status: result.Status,
		Start:  result.Start,
		End:    result.End,
	}

	stmt := `INSERT INTO task_history (uuid, task, status, start_time, end_time)
VALUES (:uuid, :task, :status, :start_time, :end_time)`

	return retry.WithBackoff(
		ctx,
		func(ctx context.Context) error {
			_, err := s.db.NamedExecContext(ctx, stmt, row)

			return errors.Wrap(err, "can't insert wait history")
		},
		retry.Retryable,
		backoff.NewExponentialWithJitter(1*time.Millisecond, 1*time.Second),
		retry.Settings{
			Timeout: retry.DefaultTimeout,
			OnRetryableError: func(_ time.Duration, _ uint64, err, lastErr error) {
				if lastErr == nil || err.Error() != lastErr.Error() {
					s.logger.Infow("Can't execute query. Retrying", "error", err)
				}
			},
		},
	)
}

// CleanupOlderThan deletes waits that ended before the given time, in chunks
// of cleanupCount rows. Returns the total number of rows deleted.
func (s *Store) CleanupOlderThan(ctx context.Context, olderThan time.Time) (uint64, error) {
	stmt := s.cleanupStmt()

	var total uint64
	for {
		rs, err := s.db.ExecContext(ctx, s.db.Rebind(stmt), olderThan)
		if err != nil {
			return total, errors.Wrapf(err, "can't perform %q", stmt)
		}

		deleted, err := rs.RowsAffected()
		if err != nil {
			return total, errors.Wrap(err, "can't determine deleted rows")
		}

		total += uint64(deleted)
		if deleted < cleanupCount {
			break
		}
	}

	if total > 0 {
		s.logger.Debugf("Deleted %d old wait history rows", total)
	}

	return total, nil
}

// cleanupStmt returns the database-specific chunked delete statement.
func (s *Store) cleanupStmt() string {
	switch s.driver {
	case "mysql":
		return "DELETE FROM task_history WHERE end_time < ? LIMIT " + strconv.Itoa(cleanupCount)
	default:
		return "DELETE FROM task_history WHERE uuid IN (SELECT uuid FROM task_history WHERE end_time < ? LIMIT " +
			strconv.Itoa(cleanupCount) + ")"
	}
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return errors.Wrap(s.db.Close(), "can't close history database")
}
