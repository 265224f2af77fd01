package database

import (
	"database/sql"
	"fmt"
	"strings"
)

// QuoteIdentifier wraps a table or column name in double quotes. Generation
// names start with a numeric agency id, so every identifier is quoted.
func QuoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func TableExists(db *sql.DB, name string) (bool, error) {
	row := db.QueryRow(`SELECT 1 FROM sqlite_master WHERE type = 'table' AND name = ?`, name)

	var one int
	err := row.Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	return true, nil
}

func DropTable(db *sql.DB, name string) error {
	_, err := db.Exec(fmt.Sprintf(`DROP TABLE IF EXISTS %s`, QuoteIdentifier(name)))
	return err
}

// ExecAtomic runs every statement inside a single transaction; either all
// of them apply or none do.
func ExecAtomic(db *sql.DB, statements []string) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}

	for _, statement := range statements {
		_, err = tx.Exec(statement)
		if err != nil {
			tx.Rollback()
			return err
		}
	}

	return tx.Commit()
}

// RenameTables applies every pair as one atomic operation. SQLite has no
// multi-pair RENAME TABLE, so the renames run inside a single transaction.
// Extra statements (index renames etc.) join the same transaction.
func RenameTables(db *sql.DB, pairs [][2]string, extraStatements ...string) error {
	statements := make([]string, 0, len(pairs)+len(extraStatements))
	for _, pair := range pairs {
		statements = append(statements, fmt.Sprintf(`ALTER TABLE %s RENAME TO %s`,
			QuoteIdentifier(pair[0]), QuoteIdentifier(pair[1])))
	}
	statements = append(statements, extraStatements...)

	return ExecAtomic(db, statements)
}

// maxBindVariables caps the bind variables per statement, well under
// SQLite's limit.
const maxBindVariables = 800

// InsertBatch writes rows with multi-row INSERT statements, splitting as
// needed to stay under the bind-variable limit.
func InsertBatch(db *sql.DB, table string, columns []string, rows [][]interface{}) error {
	if len(rows) == 0 {
		return nil
	}

	rowsPerStatement := maxBindVariables / len(columns)
	if rowsPerStatement < 1 {
		rowsPerStatement = 1
	}

	for len(rows) > rowsPerStatement {
		if err := insertRows(db, table, columns, rows[:rowsPerStatement]); err != nil {
			return err
		}
		rows = rows[rowsPerStatement:]
	}

	return insertRows(db, table, columns, rows)
}

func insertRows(db *sql.DB, table string, columns []string, rows [][]interface{}) error {
	quotedColumns := make([]string, len(columns))
	for i, column := range columns {
		quotedColumns[i] = QuoteIdentifier(column)
	}

	placeholderRow := "(" + strings.TrimSuffix(strings.Repeat("?,", len(columns)), ",") + ")"

	placeholders := make([]string, len(rows))
	values := make([]interface{}, 0, len(rows)*len(columns))
	for i, row := range rows {
		placeholders[i] = placeholderRow
		values = append(values, row...)
	}

	statement := fmt.Sprintf(`INSERT INTO %s (%s) VALUES %s`,
		QuoteIdentifier(table), strings.Join(quotedColumns, ","), strings.Join(placeholders, ","))

	_, err := db.Exec(statement, values...)
	return err
}

// CopyTable creates the destination from the supplied DDL and fills it from
// the source table.
func CopyTable(db *sql.DB, createSQL string, destination string, source string) error {
	_, err := db.Exec(createSQL)
	if err != nil {
		return err
	}

	_, err = db.Exec(fmt.Sprintf(`INSERT INTO %s SELECT * FROM %s`,
		QuoteIdentifier(destination), QuoteIdentifier(source)))
	return err
}

// TablesIdentical runs a symmetric-difference probe over the given columns:
// any row appearing in only one of the two tables makes them differ.
func TablesIdentical(db *sql.DB, a string, b string, columns []string) (bool, error) {
	quotedColumns := make([]string, len(columns))
	for i, column := range columns {
		quotedColumns[i] = QuoteIdentifier(column)
	}
	columnList := strings.Join(quotedColumns, ",")

	statement := fmt.Sprintf(
		`SELECT COUNT(*) FROM (SELECT %s FROM %s UNION ALL SELECT %s FROM %s) GROUP BY %s HAVING COUNT(*) = 1 LIMIT 1`,
		columnList, QuoteIdentifier(a), columnList, QuoteIdentifier(b), columnList)

	row := db.QueryRow(statement)

	var count int
	err := row.Scan(&count)
	if err == sql.ErrNoRows {
		return true, nil
	}
	if err != nil {
		return false, err
	}

	return false, nil
}
