package warehouse

import (
	"net/url"
	"strings"

	"github.com/xo/dburl"

	"starload/internal/catalog"
	"starload/pkg/errors"
)

// KeyDSN is the configuration key of the cluster connection URL.
const KeyDSN = "CLUSTER.DSN"

// SQL driver names registered by the imported drivers.
const (
	driverPgx       = "pgx"
	driverSnowflake = "snowflake"
)

// Endpoint is a parsed cluster connection URL.
type Endpoint struct {
	Driver   string
	DSN      string
	Dialect  string
	User     string
	Host     string
	Database string

	raw *url.URL
}

// Account identifies the credential that a password belongs to.
func (e *Endpoint) Account() string {
	return e.User + "@" + e.Host
}

// Redacted returns the connection URL with any password masked.
func (e *Endpoint) Redacted() string {
	return e.raw.Redacted()
}

// HasPassword reports whether the URL carries a password.
func (e *Endpoint) HasPassword() bool {
	if e.raw.User == nil {
		return false
	}
	_, ok := e.raw.User.Password()
	return ok
}

// ParseDSN parses a cluster URL such as
// redshift://user@cluster.example.com:5439/dwh or
// snowflake://user@account/db/schema?warehouse=wh. When the URL carries no
// password and password is not empty, password is used.
func ParseDSN(raw, password string) (*Endpoint, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, errors.MissingConfigError(KeyDSN)
	}

	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, errors.ConfigError("Cluster DSN is not a valid URL", KeyDSN).
			WithSuggestions("Use the form redshift://user@host:5439/database")
	}

	dialect, driver, ok := driverFor(u.Scheme)
	if !ok {
		return nil, errors.ConfigError("Cluster DSN scheme is not supported", KeyDSN).
			WithContext("scheme", u.Scheme).
			WithSuggestions("Use a redshift://, postgres:// or snowflake:// URL")
	}

	if password != "" && u.User != nil {
		if _, has := u.User.Password(); !has {
			u.User = url.UserPassword(u.User.Username(), password)
		}
	}

	parsed, err := dburl.Parse(u.String())
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "Failed to parse cluster DSN").
			WithContext("field", KeyDSN)
	}

	e := &Endpoint{
		Driver:   driver,
		DSN:      parsed.DSN,
		Dialect:  dialect,
		Host:     u.Hostname(),
		Database: strings.TrimPrefix(u.Path, "/"),
		raw:      u,
	}
	if u.User != nil {
		e.User = u.User.Username()
	}
	return e, nil
}

func driverFor(scheme string) (dialect, driver string, ok bool) {
	switch strings.ToLower(scheme) {
	case "redshift", "rs", "postgres", "postgresql", "pg", "pgsql":
		return catalog.DialectRedshift, driverPgx, true
	case "snowflake", "sf":
		return catalog.DialectSnowflake, driverSnowflake, true
	}
	return "", "", false
}
