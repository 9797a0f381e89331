package catalog

import (
	"fmt"
	"strings"
)

// Dialect renders the warehouse-specific parts of the catalog: column types,
// bulk-load commands and date arithmetic. Everything else is shared SQL.
type Dialect interface {
	Name() string

	columnType(kind columnKind) string
	copyEvents(src Sources) string
	copySongs(src Sources) string
	epochMillis(expr string) string
	weekdayField() string
}

// Dialect names accepted by DialectByName.
const (
	DialectRedshift  = "redshift"
	DialectSnowflake = "snowflake"
)

var (
	// Redshift renders the statements for Amazon Redshift.
	Redshift Dialect = redshift{}
	// Snowflake renders the statements for Snowflake.
	Snowflake Dialect = snowflake{}
)

// DialectByName resolves a configured dialect name.
func DialectByName(name string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", DialectRedshift, "rs", "postgres":
		return Redshift, nil
	case DialectSnowflake, "sf":
		return Snowflake, nil
	default:
		return nil, fmt.Errorf("unknown warehouse dialect %q", name)
	}
}

type redshift struct{}

func (redshift) Name() string { return DialectRedshift }

func (redshift) columnType(kind columnKind) string {
	switch kind {
	case kindInt:
		return "INTEGER"
	case kindNumeric, kindEpoch:
		return "NUMERIC"
	case kindTimestamp:
		return "TIMESTAMP"
	case kindIdentity:
		return "INTEGER IDENTITY(0,1)"
	default:
		return "VARCHAR"
	}
}

func (redshift) copyEvents(src Sources) string {
	return fmt.Sprintf(`COPY %s FROM %s
    IAM_ROLE %s
    REGION %s
    JSON %s`,
		TableStagingEvents,
		quote(src.LogData),
		quote(src.IAMRoleARN),
		quote(src.Region),
		quote(src.LogJSONPath),
	)
}

func (redshift) copySongs(src Sources) string {
	return fmt.Sprintf(`COPY %s FROM %s
    IAM_ROLE %s
    REGION %s
    JSON 'auto' TRUNCATECOLUMNS`,
		TableStagingSongs,
		quote(src.SongData),
		quote(src.IAMRoleARN),
		quote(src.Region),
	)
}

func (redshift) epochMillis(expr string) string {
	return fmt.Sprintf("TIMESTAMP 'epoch' + %s/1000 * INTERVAL '1 second'", expr)
}

func (redshift) weekdayField() string { return "WEEKDAY" }

// snowflake has no JSONPaths equivalent; event fields are matched to the
// staging columns by name instead, so LOG_JSONPATH is not referenced.
type snowflake struct{}

func (snowflake) Name() string { return DialectSnowflake }

func (snowflake) columnType(kind columnKind) string {
	switch kind {
	case kindInt:
		return "INTEGER"
	case kindNumeric:
		return "DOUBLE"
	case kindEpoch:
		return "NUMBER(38,0)"
	case kindTimestamp:
		return "TIMESTAMP_NTZ"
	case kindIdentity:
		return "INTEGER IDENTITY(0,1)"
	default:
		return "VARCHAR"
	}
}

func (snowflake) copyEvents(src Sources) string {
	return fmt.Sprintf(`COPY INTO %s FROM %s
    CREDENTIALS = (AWS_ROLE = %s)
    FILE_FORMAT = (TYPE = JSON)
    MATCH_BY_COLUMN_NAME = CASE_INSENSITIVE`,
		TableStagingEvents,
		quote(src.LogData),
		quote(src.IAMRoleARN),
	)
}

func (snowflake) copySongs(src Sources) string {
	return fmt.Sprintf(`COPY INTO %s FROM %s
    CREDENTIALS = (AWS_ROLE = %s)
    FILE_FORMAT = (TYPE = JSON)
    MATCH_BY_COLUMN_NAME = CASE_INSENSITIVE
    TRUNCATECOLUMNS = TRUE`,
		TableStagingSongs,
		quote(src.SongData),
		quote(src.IAMRoleARN),
	)
}

func (snowflake) epochMillis(expr string) string {
	return fmt.Sprintf("DATEADD(millisecond, %s, '1970-01-01'::TIMESTAMP_NTZ)", expr)
}

func (snowflake) weekdayField() string { return "DAYOFWEEK" }
