// Package catalog renders every SQL statement needed to rebuild the song-play
// star schema: table drops and creates, the two bulk loads from object
// storage, and the five insert-as-select transformations.
//
// A Catalog is built once from explicit Sources and is immutable afterwards.
// Accessors return fresh slices, so callers cannot alter what other callers see.
package catalog

import (
	"fmt"
	"strings"
)

// Stage identifies a statement group.
type Stage string

const (
	StageDrop   Stage = "drop"
	StageCreate Stage = "create"
	StageCopy   Stage = "copy"
	StageInsert Stage = "insert"
	StageCheck  Stage = "check"
)

// ExecutionOrder is the order the statement groups must run in; each stage's
// output is the next stage's input.
var ExecutionOrder = []Stage{StageDrop, StageCreate, StageCopy, StageInsert}

// ParseStage resolves a stage name.
func ParseStage(name string) (Stage, error) {
	s := Stage(strings.ToLower(strings.TrimSpace(name)))
	switch s {
	case StageDrop, StageCreate, StageCopy, StageInsert, StageCheck:
		return s, nil
	}
	return "", fmt.Errorf("unknown stage %q (want one of drop, create, copy, insert, check)", name)
}

// Statement is one rendered SQL statement, without a trailing terminator.
type Statement struct {
	Name  string `json:"name" yaml:"name"`
	Stage Stage  `json:"stage" yaml:"stage"`
	Table string `json:"table" yaml:"table"`
	SQL   string `json:"sql" yaml:"sql"`
}

// Step pairs a stage with its statements.
type Step struct {
	Stage      Stage       `json:"stage" yaml:"stage"`
	Statements []Statement `json:"statements" yaml:"statements"`
}

// Catalog holds the rendered statements for one configuration.
type Catalog struct {
	dialect Dialect
	sources Sources
	drops   []Statement
	creates []Statement
	copies  []Statement
	inserts []Statement
	checks  []Check
}

// Option customizes catalog construction.
type Option func(*Catalog)

// WithDialect selects the warehouse dialect. The default is Redshift.
func WithDialect(d Dialect) Option {
	return func(c *Catalog) {
		if d != nil {
			c.dialect = d
		}
	}
}

// New validates src and renders the catalog. A missing or unsafe
// configuration value fails here, before any statement text exists.
func New(src Sources, opts ...Option) (*Catalog, error) {
	normalized, err := src.normalize()
	if err != nil {
		return nil, err
	}

	c := &Catalog{dialect: Redshift, sources: normalized}
	for _, opt := range opts {
		opt(c)
	}

	d := c.dialect
	for _, t := range tables {
		c.drops = append(c.drops, Statement{
			Name:  "drop_" + t.Name,
			Stage: StageDrop,
			Table: t.Name,
			SQL:   dropTable(t),
		})
		c.creates = append(c.creates, Statement{
			Name:  "create_" + t.Name,
			Stage: StageCreate,
			Table: t.Name,
			SQL:   createTable(d, t),
		})
	}

	c.copies = []Statement{
		{Name: "copy_" + TableStagingEvents, Stage: StageCopy, Table: TableStagingEvents, SQL: d.copyEvents(normalized)},
		{Name: "copy_" + TableStagingSongs, Stage: StageCopy, Table: TableStagingSongs, SQL: d.copySongs(normalized)},
	}

	c.inserts = []Statement{
		{Name: "insert_" + TableSongplays, Stage: StageInsert, Table: TableSongplays, SQL: insertSongplays(d)},
		{Name: "insert_" + TableUsers, Stage: StageInsert, Table: TableUsers, SQL: insertUsers()},
		{Name: "insert_" + TableSongs, Stage: StageInsert, Table: TableSongs, SQL: insertSongs()},
		{Name: "insert_" + TableArtists, Stage: StageInsert, Table: TableArtists, SQL: insertArtists()},
		{Name: "insert_" + TableTime, Stage: StageInsert, Table: TableTime, SQL: insertTime(d)},
	}

	c.checks = buildChecks()

	return c, nil
}

// Dialect returns the dialect the catalog was rendered for.
func (c *Catalog) Dialect() Dialect { return c.dialect }

// Sources returns the normalized sources the copy statements reference.
func (c *Catalog) Sources() Sources { return c.sources }

// DropStatements returns one DROP TABLE IF EXISTS per table.
func (c *Catalog) DropStatements() []Statement { return clone(c.drops) }

// CreateStatements returns one CREATE TABLE IF NOT EXISTS per table.
func (c *Catalog) CreateStatements() []Statement { return clone(c.creates) }

// CopyStatements returns the bulk loads into the two staging tables.
func (c *Catalog) CopyStatements() []Statement { return clone(c.copies) }

// InsertStatements returns the fact insert followed by the four dimension inserts.
func (c *Catalog) InsertStatements() []Statement { return clone(c.inserts) }

// CheckStatements returns the post-load checks.
func (c *Catalog) CheckStatements() []Check {
	out := make([]Check, len(c.checks))
	copy(out, c.checks)
	return out
}

// Statements returns the statements of a single stage. StageCheck yields the
// check queries as plain statements.
func (c *Catalog) Statements(stage Stage) []Statement {
	switch stage {
	case StageDrop:
		return c.DropStatements()
	case StageCreate:
		return c.CreateStatements()
	case StageCopy:
		return c.CopyStatements()
	case StageInsert:
		return c.InsertStatements()
	case StageCheck:
		out := make([]Statement, 0, len(c.checks))
		for _, ch := range c.checks {
			out = append(out, ch.Statement)
		}
		return out
	}
	return nil
}

// Plan returns the four statement groups in execution order.
func (c *Catalog) Plan() []Step {
	steps := make([]Step, 0, len(ExecutionOrder))
	for _, stage := range ExecutionOrder {
		steps = append(steps, Step{Stage: stage, Statements: c.Statements(stage)})
	}
	return steps
}

func clone(in []Statement) []Statement {
	out := make([]Statement, len(in))
	copy(out, in)
	return out
}
