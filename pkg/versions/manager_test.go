package versions

import (
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/transitgrid/transitgrid/pkg/database"
	"github.com/transitgrid/transitgrid/pkg/tables"
)

func openTestDB(t *testing.T) *sql.DB {
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db
}

func indexExists(t *testing.T, db *sql.DB, name string) bool {
	row := db.QueryRow(`SELECT 1 FROM sqlite_master WHERE type = 'index' AND name = ?`, name)

	var one int
	err := row.Scan(&one)
	if err == sql.ErrNoRows {
		return false
	}
	require.NoError(t, err)
	return true
}

func insertRoute(t *testing.T, db *sql.DB, table string, routeID string) {
	err := database.InsertBatch(db, table, tables.Routes.InsertColumns(), [][]interface{}{
		{routeID, 1, "10", "Tenth Avenue", "", 3, "", "", "", 0},
	})
	require.NoError(t, err)
}

func TestPromoteStaging(t *testing.T) {
	db := openTestDB(t)
	manager := &Manager{DB: db, AgencyID: 1}

	require.NoError(t, manager.CreateStaging())
	insertRoute(t, db, tables.StagingName(1, "routes"), "R1")

	require.NoError(t, manager.PromoteStaging())

	workingExists, err := database.TableExists(db, tables.WorkingName(1, "routes"))
	require.NoError(t, err)
	assert.True(t, workingExists)

	stagingExists, err := database.TableExists(db, tables.StagingName(1, "routes"))
	require.NoError(t, err)
	assert.False(t, stagingExists)

	backupExists, err := database.TableExists(db, tables.BackupName(1, "routes"))
	require.NoError(t, err)
	assert.False(t, backupExists, "backup generation is dropped after the swap")
}

func TestPromoteStagingReplacesWorking(t *testing.T) {
	db := openTestDB(t)
	manager := &Manager{DB: db, AgencyID: 1}

	require.NoError(t, manager.CreateStaging())
	insertRoute(t, db, tables.StagingName(1, "routes"), "R1")
	require.NoError(t, manager.PromoteStaging())

	// Second run with a different route.
	require.NoError(t, manager.CreateStaging())
	insertRoute(t, db, tables.StagingName(1, "routes"), "R2")
	require.NoError(t, manager.PromoteStaging())

	row := db.QueryRow(`SELECT route_id FROM "1_working_routes"`)
	var routeID string
	require.NoError(t, row.Scan(&routeID))
	assert.Equal(t, "R2", routeID)
}

func TestStagingMatchesWorking(t *testing.T) {
	db := openTestDB(t)
	manager := &Manager{DB: db, AgencyID: 1}

	require.NoError(t, manager.CreateStaging())

	t.Run("no working generation differs", func(t *testing.T) {
		identical, err := manager.StagingMatchesWorking()
		require.NoError(t, err)
		assert.False(t, identical)
	})

	insertRoute(t, db, tables.StagingName(1, "routes"), "R1")
	require.NoError(t, manager.PromoteStaging())

	t.Run("identical content matches", func(t *testing.T) {
		require.NoError(t, manager.CreateStaging())
		insertRoute(t, db, tables.StagingName(1, "routes"), "R1")

		identical, err := manager.StagingMatchesWorking()
		require.NoError(t, err)
		assert.True(t, identical)
	})

	t.Run("different content differs", func(t *testing.T) {
		require.NoError(t, manager.CreateStaging())
		insertRoute(t, db, tables.StagingName(1, "routes"), "R2")

		identical, err := manager.StagingMatchesWorking()
		require.NoError(t, err)
		assert.False(t, identical)
	})
}

func TestDiscardStaging(t *testing.T) {
	db := openTestDB(t)
	manager := &Manager{DB: db, AgencyID: 1}

	require.NoError(t, manager.CreateStaging())
	require.NoError(t, manager.DiscardStaging())

	exists, err := database.TableExists(db, tables.StagingName(1, "routes"))
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestPublishLifecycle(t *testing.T) {
	db := openTestDB(t)
	manager := &Manager{DB: db, AgencyID: 1}

	require.NoError(t, manager.CreateStaging())
	insertRoute(t, db, tables.StagingName(1, "routes"), "R1")
	require.NoError(t, manager.PromoteStaging())

	t.Run("first publish creates a snapshot", func(t *testing.T) {
		require.NoError(t, manager.Publish("20260829"))

		exists, err := database.TableExists(db, tables.PublishedName(1, "20260829", "routes"))
		require.NoError(t, err)
		assert.True(t, exists)

		// Snapshots carry the working generation's lookup indexes.
		assert.True(t, indexExists(t, db, tables.IndexName(tables.PublishedName(1, "20260829", "routes"), "route_id")))

		latest, err := manager.LatestPublishedDate()
		require.NoError(t, err)
		assert.Equal(t, "20260829", latest)
	})

	t.Run("same-day publish with no changes is a no-op", func(t *testing.T) {
		err := manager.Publish("20260829")

		var noOp *NoOpError
		require.ErrorAs(t, err, &noOp)
	})

	t.Run("changed working republishes the same day", func(t *testing.T) {
		require.NoError(t, manager.CreateStaging())
		insertRoute(t, db, tables.StagingName(1, "routes"), "R2")
		require.NoError(t, manager.PromoteStaging())

		require.NoError(t, manager.Publish("20260829"))

		row := db.QueryRow(`SELECT route_id FROM "1_published_20260829_routes"`)
		var routeID string
		require.NoError(t, row.Scan(&routeID))
		assert.Equal(t, "R2", routeID)

		// The swap restores the published index names and leaves nothing
		// behind under the transient staging names.
		assert.True(t, indexExists(t, db, tables.IndexName(tables.PublishedName(1, "20260829", "routes"), "route_id")))
		assert.False(t, indexExists(t, db, tables.IndexName(tables.StagingName(1, "publish_routes"), "route_id")))

		// Still a single recorded date.
		latest, err := manager.LatestPublishedDate()
		require.NoError(t, err)
		assert.Equal(t, "20260829", latest)
	})

	t.Run("repeated same-day republish keeps working", func(t *testing.T) {
		require.NoError(t, manager.CreateStaging())
		insertRoute(t, db, tables.StagingName(1, "routes"), "R3")
		require.NoError(t, manager.PromoteStaging())

		require.NoError(t, manager.Publish("20260829"))

		row := db.QueryRow(`SELECT route_id FROM "1_published_20260829_routes"`)
		var routeID string
		require.NoError(t, row.Scan(&routeID))
		assert.Equal(t, "R3", routeID)

		assert.True(t, indexExists(t, db, tables.IndexName(tables.PublishedName(1, "20260829", "routes"), "route_id")))
	})
}

func TestPublishFailureDropsPartialSnapshot(t *testing.T) {
	db := openTestDB(t)
	manager := &Manager{DB: db, AgencyID: 1}

	require.NoError(t, manager.CreateStaging())
	insertRoute(t, db, tables.StagingName(1, "routes"), "R1")
	require.NoError(t, manager.PromoteStaging())

	// A leftover table under a snapshot name makes the copy fail midway.
	_, err := db.Exec(`CREATE TABLE "1_published_20260901_routes" (junk TEXT)`)
	require.NoError(t, err)

	err = manager.Publish("20260901")
	require.Error(t, err)

	for _, table := range []string{"agency", "routes", "stops"} {
		exists, err := database.TableExists(db, tables.PublishedName(1, "20260901", table))
		require.NoError(t, err)
		assert.False(t, exists, table)
	}

	latest, err := manager.LatestPublishedDate()
	require.NoError(t, err)
	assert.Empty(t, latest)
}
