package catalog

import (
	"fmt"
	"strings"
)

// Table names, in the order every statement group renders them.
const (
	TableStagingEvents = "staging_events"
	TableStagingSongs  = "staging_songs"
	TableSongplays     = "fact_songplays"
	TableUsers         = "dim_users"
	TableSongs         = "dim_songs"
	TableArtists       = "dim_artists"
	TableTime          = "dim_time"
)

type columnKind int

const (
	kindText columnKind = iota
	kindInt
	kindNumeric // measurements: length, duration, coordinates
	kindEpoch   // epoch milliseconds: ts, registration
	kindTimestamp
	kindIdentity
)

// Column describes one column of a warehouse table.
type Column struct {
	Name       string
	kind       columnKind
	NotNull    bool
	PrimaryKey bool
}

// Table describes a staging or star-schema table.
type Table struct {
	Name    string
	Staging bool
	Columns []Column
}

// Key returns the natural primary key column, or "" for keyless tables.
func (t Table) Key() string {
	for _, c := range t.Columns {
		if c.PrimaryKey {
			return c.Name
		}
	}
	return ""
}

func col(name string, kind columnKind) Column {
	return Column{Name: name, kind: kind}
}

func notNull(name string, kind columnKind) Column {
	return Column{Name: name, kind: kind, NotNull: true}
}

func primaryKey(name string, kind columnKind) Column {
	return Column{Name: name, kind: kind, PrimaryKey: true}
}

// Staging columns mirror the raw JSON field names so bulk loads can map them directly.
var stagingEvents = Table{
	Name:    TableStagingEvents,
	Staging: true,
	Columns: []Column{
		col("artist", kindText),
		col("auth", kindText),
		col("firstName", kindText),
		col("gender", kindText),
		col("itemInSession", kindInt),
		col("lastName", kindText),
		col("length", kindNumeric),
		col("level", kindText),
		col("location", kindText),
		col("method", kindText),
		col("page", kindText),
		col("registration", kindEpoch),
		col("sessionId", kindInt),
		col("song", kindText),
		col("status", kindInt),
		col("ts", kindEpoch),
		col("userAgent", kindText),
		col("userId", kindText),
	},
}

var stagingSongs = Table{
	Name:    TableStagingSongs,
	Staging: true,
	Columns: []Column{
		col("num_songs", kindInt),
		col("artist_id", kindText),
		col("artist_latitude", kindNumeric),
		col("artist_longitude", kindNumeric),
		col("artist_location", kindText),
		col("artist_name", kindText),
		col("song_id", kindText),
		col("title", kindText),
		col("duration", kindNumeric),
		col("year", kindInt),
	},
}

var factSongplays = Table{
	Name: TableSongplays,
	Columns: []Column{
		col("songplay_id", kindIdentity),
		notNull("start_time", kindTimestamp),
		notNull("user_id", kindText),
		col("level", kindText),
		notNull("song_id", kindText),
		notNull("artist_id", kindText),
		col("session_id", kindInt),
		col("location", kindText),
		col("user_agent", kindText),
	},
}

var dimUsers = Table{
	Name: TableUsers,
	Columns: []Column{
		primaryKey("user_id", kindText),
		notNull("first_name", kindText),
		notNull("last_name", kindText),
		notNull("gender", kindText),
		col("level", kindText),
	},
}

var dimSongs = Table{
	Name: TableSongs,
	Columns: []Column{
		primaryKey("song_id", kindText),
		col("title", kindText),
		col("artist_id", kindText),
		col("year", kindInt),
		col("duration", kindNumeric),
	},
}

var dimArtists = Table{
	Name: TableArtists,
	Columns: []Column{
		primaryKey("artist_id", kindText),
		notNull("name", kindText),
		col("location", kindText),
		col("latitude", kindNumeric),
		col("longitude", kindNumeric),
	},
}

var dimTime = Table{
	Name: TableTime,
	Columns: []Column{
		primaryKey("start_time", kindTimestamp),
		col("hour", kindInt),
		col("day", kindInt),
		col("week", kindInt),
		col("month", kindInt),
		col("year", kindInt),
		col("weekday", kindInt),
	},
}

var tables = []Table{
	stagingEvents,
	stagingSongs,
	factSongplays,
	dimUsers,
	dimSongs,
	dimArtists,
	dimTime,
}

// Tables returns the definitions of all seven tables in rebuild order.
func Tables() []Table {
	out := make([]Table, len(tables))
	copy(out, tables)
	return out
}

func dropTable(t Table) string {
	return "DROP TABLE IF EXISTS " + t.Name
}

func createTable(d Dialect, t Table) string {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE IF NOT EXISTS %s (\n", t.Name)
	for i, c := range t.Columns {
		b.WriteString("    ")
		b.WriteString(c.Name)
		b.WriteString(" ")
		b.WriteString(d.columnType(c.kind))
		switch {
		case c.PrimaryKey:
			b.WriteString(" PRIMARY KEY")
		case c.NotNull:
			b.WriteString(" NOT NULL")
		}
		if i < len(t.Columns)-1 {
			b.WriteString(",")
		}
		b.WriteString("\n")
	}
	b.WriteString(")")
	return b.String()
}
