package toolkit

import (
	"fmt"
	"strings"

	"vitess.io/vitess/go/vt/sqlparser"
)

// ValidateQuery rejects a query before it reaches the database. The query
// must parse and must be a SELECT (or UNION of SELECTs). The model is
// prompted not to emit DML, but prompts are not enforcement.
func ValidateQuery(query string) error {
	p, err := sqlparser.New(sqlparser.Options{})
	if err != nil {
		return fmt.Errorf("create parser: %w", err)
	}

	stmt, err := p.Parse(strings.TrimSpace(query))
	if err != nil {
		return fmt.Errorf("invalid sql: %w", err)
	}

	switch stmt.(type) {
	case sqlparser.SelectStatement:
		return nil
	}

	return fmt.Errorf("only SELECT statements are allowed, got %T", stmt)
}
