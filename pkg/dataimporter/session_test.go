package dataimporter

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/transitgrid/transitgrid/pkg/database"
	"github.com/transitgrid/transitgrid/pkg/geom"
	"github.com/transitgrid/transitgrid/pkg/tables"
	"github.com/transitgrid/transitgrid/pkg/versions"
)

type recordingNotifier struct {
	progress []string
	warnings []string
	errors   []string
}

func (n *recordingNotifier) Progress(message string) { n.progress = append(n.progress, message) }
func (n *recordingNotifier) Warning(message string)  { n.warnings = append(n.warnings, message) }
func (n *recordingNotifier) Error(message string)    { n.errors = append(n.errors, message) }

func openTestDB(t *testing.T) *sql.DB {
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db
}

func writeFeed(t *testing.T, files map[string]string) string {
	dir := t.TempDir()
	for name, contents := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(contents), 0644))
	}
	return dir
}

// minimalFeed is one agency, one bus route, two stops along a three point
// shape, one weekday service and a single trip.
func minimalFeed() map[string]string {
	return map[string]string{
		"agency.txt": "agency_id,agency_name,agency_url,agency_timezone\n" +
			"A1,Metro,https://metro.example,Europe/London\n",
		"routes.txt": "route_id,agency_id,route_short_name,route_long_name,route_type\n" +
			"R1,A1,1,High Street,3\n",
		"stops.txt": "stop_id,stop_name,stop_lat,stop_lon\n" +
			"S1,First Stop,51.5000,-0.1000\n" +
			"S2,Last Stop,51.5000,-0.1020\n",
		"shapes.txt": "shape_id,shape_pt_lat,shape_pt_lon,shape_pt_sequence\n" +
			"SH1,51.5000,-0.1000,1\n" +
			"SH1,51.5000,-0.1010,2\n" +
			"SH1,51.5000,-0.1020,3\n",
		"calendar.txt": "service_id,monday,tuesday,wednesday,thursday,friday,saturday,sunday,start_date,end_date\n" +
			"WK,1,1,1,1,1,0,0,20260101,20261231\n",
		"trips.txt": "route_id,service_id,trip_id,trip_headsign,direction_id,shape_id\n" +
			"R1,WK,T1,Last Stop,0,SH1\n",
		"stop_times.txt": "trip_id,arrival_time,departure_time,stop_id,stop_sequence\n" +
			"T1,08:00:00,08:00:00,S1,1\n" +
			"T1,08:05:00,08:05:00,S2,2\n",
	}
}

func importFeed(t *testing.T, db *sql.DB, files map[string]string) (*recordingNotifier, error) {
	notifier := &recordingNotifier{}
	session := NewImportSession(db, notifier, Config{
		AgencyID: 1,
		FeedPath: writeFeed(t, files),
	})
	return notifier, session.Import()
}

func countRows(t *testing.T, db *sql.DB, table string) int {
	var count int
	err := db.QueryRow(fmt.Sprintf("SELECT COUNT(*) FROM %s", database.QuoteIdentifier(table))).Scan(&count)
	require.NoError(t, err)
	return count
}

func TestImportMinimalFeed(t *testing.T) {
	db := openTestDB(t)

	notifier, err := importFeed(t, db, minimalFeed())
	require.NoError(t, err)
	assert.Empty(t, notifier.errors)

	assert.Equal(t, 1, countRows(t, db, tables.WorkingName(1, tables.Agency.Name)))
	assert.Equal(t, 1, countRows(t, db, tables.WorkingName(1, tables.Routes.Name)))
	assert.Equal(t, 2, countRows(t, db, tables.WorkingName(1, tables.Stops.Name)))
	assert.Equal(t, 3, countRows(t, db, tables.WorkingName(1, tables.Shapes.Name)))
	assert.Equal(t, 1, countRows(t, db, tables.WorkingName(1, tables.Trips.Name)))
	assert.Equal(t, 2, countRows(t, db, tables.WorkingName(1, tables.StopTimes.Name)))
	assert.Equal(t, 1, countRows(t, db, tables.WorkingName(1, tables.ShapesCompressed.Name)))
	assert.Equal(t, 1, countRows(t, db, tables.WorkingName(1, tables.StopSequences.Name)))
	assert.Equal(t, 1, countRows(t, db, tables.WorkingName(1, tables.StopDistances.Name)))
	assert.Equal(t, 1, countRows(t, db, tables.WorkingName(1, tables.TripsSseqs.Name)))
	assert.Equal(t, 2, countRows(t, db, tables.WorkingName(1, tables.StopsSseqs.Name)))

	t.Run("staging is promoted away", func(t *testing.T) {
		exists, err := database.TableExists(db, tables.StagingName(1, tables.Routes.Name))
		require.NoError(t, err)
		assert.False(t, exists)
	})

	t.Run("stop sequence decodes to internal stop ids", func(t *testing.T) {
		var encodedStops, headsign string
		err := db.QueryRow(fmt.Sprintf("SELECT stop_ids, trip_headsign FROM %s WHERE id = 1",
			database.QuoteIdentifier(tables.WorkingName(1, tables.StopSequences.Name)))).Scan(&encodedStops, &headsign)
		require.NoError(t, err)
		assert.Equal(t, "Last Stop", headsign)

		stopIDs, err := geom.DecodeValues(encodedStops, 0)
		require.NoError(t, err)
		assert.Equal(t, []float64{1, 2}, stopIDs)
	})

	t.Run("trip references the deduplicated artifacts", func(t *testing.T) {
		var sseqID, sdistID, soffsetID int
		err := db.QueryRow(fmt.Sprintf("SELECT sseq_id, sdist_id, soffset_id FROM %s WHERE trip_id = 1",
			database.QuoteIdentifier(tables.WorkingName(1, tables.TripsSseqs.Name)))).Scan(&sseqID, &sdistID, &soffsetID)
		require.NoError(t, err)
		assert.Equal(t, 1, sseqID)
		assert.Equal(t, 1, sdistID)
		assert.Equal(t, 1, soffsetID)
	})

	t.Run("stop distances run along the shape", func(t *testing.T) {
		var encoded string
		err := db.QueryRow(fmt.Sprintf("SELECT stop_dists FROM %s WHERE id = 1",
			database.QuoteIdentifier(tables.WorkingName(1, tables.StopDistances.Name)))).Scan(&encoded)
		require.NoError(t, err)

		distances, err := geom.DecodeValues(encoded, geom.DistancePrecision)
		require.NoError(t, err)
		require.Len(t, distances, 2)
		assert.Equal(t, 0.0, distances[0])
		assert.Greater(t, distances[1], 100.0)
	})

	t.Run("route direction follows net displacement", func(t *testing.T) {
		var direction string
		var stopCount int
		err := db.QueryRow(fmt.Sprintf("SELECT gtfs_direction, stop_count FROM %s WHERE route_id = 1 AND direction_id = 0",
			database.QuoteIdentifier(tables.WorkingName(1, tables.RoutesDirections.Name)))).Scan(&direction, &stopCount)
		require.NoError(t, err)
		assert.Equal(t, "eastbound", direction)
		assert.Equal(t, 2, stopCount)
	})

	t.Run("current info counters", func(t *testing.T) {
		var nAgencies, nRoutes, nStops, nTrips, nSequences, nShapes int
		var extent string
		err := db.QueryRow(fmt.Sprintf("SELECT n_agencies, n_routes, n_stops, n_trips, n_sequences, n_shapes, extent FROM %s",
			database.QuoteIdentifier(tables.WorkingName(1, tables.CurrentInfo.Name)))).
			Scan(&nAgencies, &nRoutes, &nStops, &nTrips, &nSequences, &nShapes, &extent)
		require.NoError(t, err)
		assert.Equal(t, 1, nAgencies)
		assert.Equal(t, 1, nRoutes)
		assert.Equal(t, 2, nStops)
		assert.Equal(t, 1, nTrips)
		assert.Equal(t, 1, nSequences)
		assert.Equal(t, 1, nShapes)
		assert.Contains(t, extent, "51.5")
	})
}

func TestImportUnchangedFeedIsNoOp(t *testing.T) {
	db := openTestDB(t)

	_, err := importFeed(t, db, minimalFeed())
	require.NoError(t, err)

	notifier, err := importFeed(t, db, minimalFeed())

	var noOp *versions.NoOpError
	require.ErrorAs(t, err, &noOp)
	assert.Contains(t, notifier.progress, "No changes were detected")

	assert.Equal(t, 1, countRows(t, db, tables.WorkingName(1, tables.Routes.Name)))

	exists, err := database.TableExists(db, tables.StagingName(1, tables.Routes.Name))
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestImportChangedFeedReplacesWorking(t *testing.T) {
	db := openTestDB(t)

	_, err := importFeed(t, db, minimalFeed())
	require.NoError(t, err)

	changed := minimalFeed()
	changed["routes.txt"] = "route_id,agency_id,route_short_name,route_long_name,route_type\n" +
		"R1,A1,1,Station Loop,3\n"

	_, err = importFeed(t, db, changed)
	require.NoError(t, err)

	var longName string
	err = db.QueryRow(fmt.Sprintf("SELECT route_long_name FROM %s",
		database.QuoteIdentifier(tables.WorkingName(1, tables.Routes.Name)))).Scan(&longName)
	require.NoError(t, err)
	assert.Equal(t, "Station Loop", longName)

	exists, err := database.TableExists(db, tables.BackupName(1, tables.Routes.Name))
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestImportValidationFailureKeepsWorking(t *testing.T) {
	db := openTestDB(t)

	_, err := importFeed(t, db, minimalFeed())
	require.NoError(t, err)

	bad := minimalFeed()
	bad["stop_times.txt"] = "trip_id,arrival_time,departure_time,stop_id,stop_sequence\n" +
		"T1,09:00:00,08:00:00,S1,1\n" +
		"T1,09:05:00,09:05:00,S2,2\n"

	notifier, err := importFeed(t, db, bad)

	var validationErr *ValidationError
	require.ErrorAs(t, err, &validationErr)
	assert.Equal(t, "stop_time", validationErr.Entity)
	assert.NotEmpty(t, notifier.errors)

	var longName string
	err = db.QueryRow(fmt.Sprintf("SELECT route_long_name FROM %s",
		database.QuoteIdentifier(tables.WorkingName(1, tables.Routes.Name)))).Scan(&longName)
	require.NoError(t, err)
	assert.Equal(t, "High Street", longName)

	exists, err := database.TableExists(db, tables.StagingName(1, tables.Routes.Name))
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestImportRejectsEmptyFeeds(t *testing.T) {
	t.Run("missing agency file", func(t *testing.T) {
		db := openTestDB(t)

		feed := minimalFeed()
		delete(feed, "agency.txt")

		_, err := importFeed(t, db, feed)

		var validationErr *ValidationError
		require.ErrorAs(t, err, &validationErr)
		assert.Equal(t, "agency", validationErr.Entity)
	})

	t.Run("no routes", func(t *testing.T) {
		db := openTestDB(t)

		feed := minimalFeed()
		feed["routes.txt"] = "route_id,agency_id,route_short_name,route_long_name,route_type\n"

		_, err := importFeed(t, db, feed)

		var validationErr *ValidationError
		require.ErrorAs(t, err, &validationErr)
		assert.Equal(t, "feed", validationErr.Entity)
	})
}

func TestImportDeduplicatesSequences(t *testing.T) {
	db := openTestDB(t)

	feed := minimalFeed()
	feed["trips.txt"] = "route_id,service_id,trip_id,trip_headsign,direction_id,shape_id\n" +
		"R1,WK,T1,Last Stop,0,SH1\n" +
		"R1,WK,T2,Last Stop,0,SH1\n" +
		"R1,WK,T3,First Stop,1,SH1\n"
	feed["stop_times.txt"] = "trip_id,arrival_time,departure_time,stop_id,stop_sequence\n" +
		"T1,08:00:00,08:00:00,S1,1\n" +
		"T1,08:05:00,08:05:00,S2,2\n" +
		"T2,09:00:00,09:00:00,S1,1\n" +
		"T2,09:05:00,09:05:00,S2,2\n" +
		"T3,10:00:00,10:00:00,S2,1\n" +
		"T3,10:05:00,10:05:00,S1,2\n"

	_, err := importFeed(t, db, feed)
	require.NoError(t, err)

	assert.Equal(t, 2, countRows(t, db, tables.WorkingName(1, tables.StopSequences.Name)))
	assert.Equal(t, 3, countRows(t, db, tables.WorkingName(1, tables.TripsSseqs.Name)))

	rows, err := db.Query(fmt.Sprintf("SELECT trip_id, sseq_id, soffset_id FROM %s ORDER BY trip_id",
		database.QuoteIdentifier(tables.WorkingName(1, tables.TripsSseqs.Name))))
	require.NoError(t, err)
	defer rows.Close()

	references := map[int][2]int{}
	for rows.Next() {
		var tripID, sseqID, soffsetID int
		require.NoError(t, rows.Scan(&tripID, &sseqID, &soffsetID))
		references[tripID] = [2]int{sseqID, soffsetID}
	}
	require.NoError(t, rows.Err())

	// T1 and T2 share the same stop pattern and schedule offsets; T3 runs
	// the other way and gets its own sequence.
	assert.Equal(t, references[1], references[2])
	assert.NotEqual(t, references[1][0], references[3][0])
}

func TestImportWithoutCalendarFileSynthesizesServices(t *testing.T) {
	db := openTestDB(t)

	feed := minimalFeed()
	delete(feed, "calendar.txt")
	feed["calendar_dates.txt"] = "service_id,date,exception_type\n" +
		"WK,20260704,1\n"

	_, err := importFeed(t, db, feed)
	require.NoError(t, err)

	assert.Equal(t, 1, countRows(t, db, tables.WorkingName(1, tables.Calendar.Name)))
	assert.Equal(t, 1, countRows(t, db, tables.WorkingName(1, tables.CalendarDates.Name)))

	var maskName string
	err = db.QueryRow(fmt.Sprintf("SELECT mask_name FROM %s",
		database.QuoteIdentifier(tables.WorkingName(1, tables.Calendar.Name)))).Scan(&maskName)
	require.NoError(t, err)
	assert.Equal(t, "by date", maskName)
}

func TestRunPublishAfterImport(t *testing.T) {
	db := openTestDB(t)

	_, err := importFeed(t, db, minimalFeed())
	require.NoError(t, err)

	require.NoError(t, RunPublish(db, 1))

	date := versions.FormatDate(time.Now())
	assert.Equal(t, 1, countRows(t, db, tables.PublishedName(1, date, tables.Routes.Name)))
	assert.Equal(t, 1, countRows(t, db, tables.PublishedDatesName(1)))

	t.Run("republish without changes is a no-op", func(t *testing.T) {
		err := RunPublish(db, 1)

		var noOp *versions.NoOpError
		require.ErrorAs(t, err, &noOp)
		assert.Equal(t, 1, countRows(t, db, tables.PublishedDatesName(1)))
	})

	t.Run("publish without a working data set fails", func(t *testing.T) {
		err := RunPublish(db, 2)
		require.Error(t, err)
		assert.False(t, errors.As(err, new(*versions.NoOpError)))
	})
}
