package sqlstore

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

// buildUpdate renders "UPDATE table SET col = $1, ... WHERE pkCol = $N"
// for a sparse field map, keeping column order deterministic.
func buildUpdate(table, pkCol, pkVal string, sets map[string]any) (string, []any) {
	cols := make([]string, 0, len(sets))
	for c := range sets {
		cols = append(cols, c)
	}
	sort.Strings(cols)

	var sb strings.Builder
	args := make([]any, 0, len(cols)+1)
	fmt.Fprintf(&sb, "UPDATE %s SET ", table)
	for i, c := range cols {
		if i > 0 {
			sb.WriteString(", ")
		}
		args = append(args, sets[c])
		fmt.Fprintf(&sb, "%s = $%d", c, i+1)
	}
	args = append(args, pkVal)
	fmt.Fprintf(&sb, " WHERE %s = $%d", pkCol, len(args))
	return sb.String(), args
}

// isUniqueViolation reports whether err is a PostgreSQL unique-constraint
// violation (SQLSTATE 23505), the signal services translate to
// errkind.Conflict.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
