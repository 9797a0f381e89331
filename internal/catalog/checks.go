package catalog

import "fmt"

// CheckKind classifies a post-load check query.
type CheckKind string

const (
	// CheckDuplicateKeys counts natural-key values that occur more than once.
	// Neither warehouse enforces PRIMARY KEY, so this is the only guard.
	CheckDuplicateKeys CheckKind = "duplicate_keys"
	// CheckRowCount counts the rows of a table.
	CheckRowCount CheckKind = "row_count"
)

// Check is a single-integer query run after the insert stage.
type Check struct {
	Statement `yaml:",inline"`
	Kind      CheckKind `json:"kind" yaml:"kind"`
}

// Violated reports whether the value returned by the check query is a data
// quality failure.
func (c Check) Violated(value int64) bool {
	return c.Kind == CheckDuplicateKeys && value > 0
}

func buildChecks() []Check {
	var checks []Check
	for _, t := range tables {
		if key := t.Key(); key != "" {
			checks = append(checks, Check{
				Statement: Statement{
					Name:  "check_duplicates_" + t.Name,
					Stage: StageCheck,
					Table: t.Name,
					SQL: fmt.Sprintf(`SELECT COUNT(*) FROM (
    SELECT %[1]s FROM %[2]s GROUP BY %[1]s HAVING COUNT(*) > 1
) AS duplicates`, key, t.Name),
				},
				Kind: CheckDuplicateKeys,
			})
		}
	}
	for _, t := range tables {
		checks = append(checks, Check{
			Statement: Statement{
				Name:  "check_rows_" + t.Name,
				Stage: StageCheck,
				Table: t.Name,
				SQL:   "SELECT COUNT(*) FROM " + t.Name,
			},
			Kind: CheckRowCount,
		})
	}
	return checks
}
