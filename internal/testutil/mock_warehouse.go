package testutil

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"starload/internal/catalog"
	"starload/internal/warehouse"
)

// MockWarehouse is an in-memory warehouse.Executor. It tracks which tables
// exist, so unguarded DDL fails the way a real cluster would.
type MockWarehouse struct {
	mu sync.Mutex

	// Errors fails the statement or check with the given name.
	Errors map[string]error
	// Values answers check queries by check name; missing checks return 0.
	Values map[string]int64
	// Rows is reported as rows affected by statement name.
	Rows map[string]int64
	// BeforeExec runs before every statement, e.g. to cancel a context.
	BeforeExec func(stmt catalog.Statement)

	Executed []catalog.Statement
	Queried  []catalog.Statement
	Tables   map[string]bool
}

var _ warehouse.Executor = (*MockWarehouse)(nil)

// NewMockWarehouse creates an empty mock warehouse.
func NewMockWarehouse() *MockWarehouse {
	return &MockWarehouse{
		Errors: make(map[string]error),
		Values: make(map[string]int64),
		Rows:   make(map[string]int64),
		Tables: make(map[string]bool),
	}
}

// Exec records and simulates a statement.
func (m *MockWarehouse) Exec(ctx context.Context, stmt catalog.Statement) (warehouse.Result, error) {
	if m.BeforeExec != nil {
		m.BeforeExec(stmt)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.Executed = append(m.Executed, stmt)
	result := warehouse.Result{Duration: time.Millisecond, RowsAffected: m.Rows[stmt.Name]}

	if err := ctx.Err(); err != nil {
		return result, err
	}
	if err, ok := m.Errors[stmt.Name]; ok {
		return result, err
	}

	sql := strings.TrimSpace(stmt.SQL)
	switch {
	case strings.HasPrefix(sql, "DROP TABLE IF EXISTS "):
		delete(m.Tables, stmt.Table)
	case strings.HasPrefix(sql, "DROP TABLE "):
		if !m.Tables[stmt.Table] {
			return result, fmt.Errorf("ERROR: table %q does not exist", stmt.Table)
		}
		delete(m.Tables, stmt.Table)
	case strings.HasPrefix(sql, "CREATE TABLE IF NOT EXISTS "):
		m.Tables[stmt.Table] = true
	case strings.HasPrefix(sql, "CREATE TABLE "):
		if m.Tables[stmt.Table] {
			return result, fmt.Errorf("ERROR: relation %q already exists", stmt.Table)
		}
		m.Tables[stmt.Table] = true
	default:
		if !m.Tables[stmt.Table] {
			return result, fmt.Errorf("ERROR: relation %q does not exist", stmt.Table)
		}
	}
	return result, nil
}

// QueryInt records a check query and answers it from Values.
func (m *MockWarehouse) QueryInt(ctx context.Context, stmt catalog.Statement) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Queried = append(m.Queried, stmt)
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err, ok := m.Errors[stmt.Name]; ok {
		return 0, err
	}
	return m.Values[stmt.Name], nil
}

// ExecutedNames returns the names of executed statements in order.
func (m *MockWarehouse) ExecutedNames() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	names := make([]string, 0, len(m.Executed))
	for _, s := range m.Executed {
		names = append(names, s.Name)
	}
	return names
}
