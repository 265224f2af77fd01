package database

import (
	"database/sql"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/transitgrid/transitgrid/pkg/util"

	_ "github.com/mattn/go-sqlite3"
)

type SQLInstance struct {
	DB *sql.DB
}

var GlobalInstance *SQLInstance

const defaultConnectionString = "file:transitgrid.db?_fk=1&_journal_mode=WAL"

func Connect() error {
	connectionString := defaultConnectionString

	env := util.GetEnvironmentVariables()

	if env["TRANSITGRID_SQLITE_CONNECTION"] != "" {
		connectionString = env["TRANSITGRID_SQLITE_CONNECTION"]
	}

	db, err := sql.Open("sqlite3", connectionString)
	if err != nil {
		return err
	}

	// Generation renames happen inside a single transaction, so writes
	// must be funnelled through one connection.
	db.SetMaxOpenConns(1)

	ping := func() error {
		return db.Ping()
	}
	err = backoff.Retry(ping, backoff.WithMaxRetries(backoff.NewConstantBackOff(500*time.Millisecond), 5))
	if err != nil {
		return err
	}

	GlobalInstance = &SQLInstance{DB: db}

	return nil
}

func GetDB() *sql.DB {
	return GlobalInstance.DB
}
