package dataimporter

import (
	"database/sql"

	"github.com/transitgrid/transitgrid/pkg/database"
)

// insertChunkSize is how many validated rows are buffered before a batched
// insert against the staging generation.
const insertChunkSize = 10000

// tableFiller buffers rows for one staging table and flushes them in
// chunks.
type tableFiller struct {
	db      *sql.DB
	table   string
	columns []string

	rows  [][]interface{}
	added int
}

func newTableFiller(db *sql.DB, table string, columns []string) *tableFiller {
	return &tableFiller{db: db, table: table, columns: columns}
}

func (filler *tableFiller) add(row []interface{}) error {
	filler.rows = append(filler.rows, row)

	if len(filler.rows) >= insertChunkSize {
		return filler.flush()
	}
	return nil
}

func (filler *tableFiller) flush() error {
	if len(filler.rows) == 0 {
		return nil
	}

	err := database.InsertBatch(filler.db, filler.table, filler.columns, filler.rows)
	if err != nil {
		return err
	}

	filler.added += len(filler.rows)
	filler.rows = filler.rows[:0]
	return nil
}
